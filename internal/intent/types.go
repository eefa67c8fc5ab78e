package intent

import (
	"fmt"
	"regexp"

	"github.com/vthunder/agenda/internal/types"
)

// Rule maps a text pattern to an action. Rules are defined in code and can be
// extended or overridden by name from a YAML file.
type Rule struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description,omitempty"`
	Action      types.Action `yaml:"action"`
	Trigger     Trigger      `yaml:"trigger"`
	Priority    int          `yaml:"priority"`             // higher wins when several rules match
	Confidence  float64      `yaml:"confidence,omitempty"` // reported on match, default 0.8
	Disabled    bool         `yaml:"disabled,omitempty"`

	pattern *regexp.Regexp
	strip   *regexp.Regexp
}

// Trigger defines when a rule fires
type Trigger struct {
	Pattern  string `yaml:"pattern"`            // regex matched against the utterance
	Strip    string `yaml:"strip,omitempty"`    // regex removed before extraction ("remind me to")
	NeedTime bool   `yaml:"need_time,omitempty"` // only match if the extractor found a date or time
}

// compile prepares the rule's regexes; all patterns are case-insensitive
func (r *Rule) compile() error {
	if r.Trigger.Pattern == "" {
		return fmt.Errorf("rule %s: empty pattern", r.Name)
	}
	p, err := regexp.Compile("(?i)" + r.Trigger.Pattern)
	if err != nil {
		return fmt.Errorf("rule %s: bad pattern: %w", r.Name, err)
	}
	r.pattern = p
	if r.Trigger.Strip != "" {
		s, err := regexp.Compile("(?i)" + r.Trigger.Strip)
		if err != nil {
			return fmt.Errorf("rule %s: bad strip: %w", r.Name, err)
		}
		r.strip = s
	}
	if r.Confidence <= 0 || r.Confidence > 1 {
		r.Confidence = 0.8
	}
	return nil
}

// Match reports whether the rule's pattern matches text
func (r *Rule) Match(text string) bool {
	if r.Disabled || r.pattern == nil {
		return false
	}
	return r.pattern.MatchString(text)
}

// Strip removes the rule's trigger phrase, if it has one
func (r *Rule) Strip(text string) string {
	if r.strip == nil {
		return text
	}
	return r.strip.ReplaceAllString(text, "")
}
