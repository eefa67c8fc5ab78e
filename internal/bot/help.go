package bot

// GreetingText answers a plain hello
const GreetingText = "👋 Hi there! How can I help you today?\n\nUse /help to see all available commands!"

// HelpText lists the commands with an example for each
const HelpText = `📖 **What I can do**

**Reminders**
/remindme <what> <when> - e.g. /remindme Call dentist tomorrow at 3 PM
/listreminders - your upcoming reminders (add "all" to include past ones)
/deletereminder <number or name> - e.g. /deletereminder 2

**Events**
/addevent <what> <when> [#place] [!notes] - e.g. /addevent Dinner with Zahra Friday at 7 pm #Luigi's
/editevent <which> to <new details> - e.g. /editevent dinner to Saturday at 8 pm
/deleteevent <number or name> - e.g. /deleteevent dinner
/events - events in the coming weeks
/exportics - download everything as an .ics file

**Questions**
/ask <question> - e.g. /ask when is my dentist appointment?

**Other**
/debugaccount - which calendar I'm connected to
/hi, /help

Add r<minutes> to an event for an alert, e.g. r15. You can also just talk to me: "remind me to water the plants at 6 pm".`

// UnknownText is the reply when no action fits the message
const UnknownText = "🤷 I'm not sure what you mean. Try something like \"remind me to call mom tomorrow at 5 pm\", or use /help to see all commands."
