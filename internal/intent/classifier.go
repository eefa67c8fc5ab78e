// Package intent decides which action an utterance asks for. Slash commands
// fix the action; free text goes through a ranked rule set.
package intent

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vthunder/agenda/internal/extract"
	"github.com/vthunder/agenda/internal/types"
)

// Extractor is the slot filler used after the action is decided
type Extractor interface {
	Extract(text string, ref time.Time) types.Fields
}

// Classifier holds an ordered rule set. It is safe for concurrent use.
type Classifier struct {
	mu        sync.RWMutex
	rules     []*Rule // sorted by priority, highest first
	extractor Extractor
}

// RuleFile is the YAML layout of a rules file
type RuleFile struct {
	Rules []Rule `yaml:"rules"`
}

// New creates a classifier with the built-in rules. A nil extractor uses
// the package-level extract.Extract.
func New(ex Extractor) *Classifier {
	if ex == nil {
		ex = extract.New(nil)
	}
	c := &Classifier{extractor: ex}
	if err := c.setRules(builtinRules()); err != nil {
		// built-in patterns are static; failing here is a programming error
		panic(err)
	}
	return c
}

// Extract fills slots from text with the classifier's extractor, for callers
// that split a message before extracting
func (c *Classifier) Extract(text string, ref time.Time) types.Fields {
	return c.extractor.Extract(text, ref)
}

// LoadFile merges rules from a YAML file into the built-in set. Rules with
// the same name replace the built-in; a missing file is not an error.
func (c *Classifier) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read rules: %w", err)
	}
	var file RuleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse rules: %w", err)
	}

	merged := make(map[string]Rule)
	var order []string
	for _, r := range builtinRules() {
		merged[r.Name] = r
		order = append(order, r.Name)
	}
	for _, r := range file.Rules {
		if r.Name == "" {
			return fmt.Errorf("rule without name in %s", path)
		}
		if _, ok := merged[r.Name]; !ok {
			order = append(order, r.Name)
		}
		merged[r.Name] = r
	}
	rules := make([]Rule, 0, len(order))
	for _, name := range order {
		rules = append(rules, merged[name])
	}
	if err := c.setRules(rules); err != nil {
		return err
	}
	log.Printf("[intent] Loaded %d rules from %s", len(file.Rules), path)
	return nil
}

// SaveFile writes the given rules as a rules file
func SaveFile(path string, rules []Rule) error {
	data, err := yaml.Marshal(RuleFile{Rules: rules})
	if err != nil {
		return fmt.Errorf("failed to marshal rules: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write rules: %w", err)
	}
	return nil
}

func (c *Classifier) setRules(rules []Rule) error {
	compiled := make([]*Rule, 0, len(rules))
	for i := range rules {
		r := rules[i]
		if err := r.compile(); err != nil {
			return err
		}
		compiled = append(compiled, &r)
	}
	sort.SliceStable(compiled, func(i, j int) bool {
		return compiled[i].Priority > compiled[j].Priority
	})
	c.mu.Lock()
	c.rules = compiled
	c.mu.Unlock()
	return nil
}

// Rules returns the active rules in priority order
func (c *Classifier) Rules() []Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Rule, len(c.rules))
	for i, r := range c.rules {
		out[i] = *r
	}
	return out
}

// ParseCommand splits "/cmd@bot rest" into ("cmd", "rest"). Text that does
// not start with a slash returns an empty command.
func ParseCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}
	head, rest, _ := strings.Cut(text, " ")
	head = strings.ToLower(strings.TrimPrefix(head, "/"))
	if i := strings.IndexByte(head, '@'); i >= 0 {
		head = head[:i]
	}
	return head, strings.TrimSpace(rest)
}

// CommandAction maps a command name to its action
func CommandAction(command string) (types.Action, bool) {
	a, ok := commands[strings.ToLower(command)]
	return a, ok
}

// Classify decides the action for text. When command is non-empty it fixes the
// action; an unknown command yields ActionUnknown. The result depends only on
// the inputs.
func (c *Classifier) Classify(text, command string, ref time.Time) types.ParsedIntent {
	text = strings.TrimSpace(text)

	c.mu.RLock()
	rules := c.rules
	c.mu.RUnlock()

	if command != "" {
		action, ok := CommandAction(command)
		if !ok {
			return types.ParsedIntent{Action: types.ActionUnknown, Text: text, Rule: "command:" + command}
		}
		body := text
		for _, r := range rules {
			if r.Action == action && r.strip != nil {
				body = strings.TrimSpace(r.Strip(text))
				break
			}
		}
		return types.ParsedIntent{
			Action:     action,
			Text:       body,
			Fields:     c.extractor.Extract(body, ref),
			Confidence: 1,
			Rule:       "command:" + command,
		}
	}

	if text == "" {
		return types.ParsedIntent{Action: types.ActionUnknown}
	}

	var timed *types.Fields
	for _, r := range rules {
		if !r.Match(text) {
			continue
		}
		if r.Trigger.NeedTime {
			if timed == nil {
				f := c.extractor.Extract(text, ref)
				timed = &f
			}
			if !timed.HasDate() {
				continue
			}
		}
		body := strings.TrimSpace(r.Strip(text))
		return types.ParsedIntent{
			Action:     r.Action,
			Text:       body,
			Fields:     c.extractor.Extract(body, ref),
			Confidence: r.Confidence,
			Rule:       r.Name,
		}
	}

	return types.ParsedIntent{Action: types.ActionUnknown, Text: text}
}
