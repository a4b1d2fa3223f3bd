// Package prompt holds the completion prompt templates and their slot
// filling.
package prompt

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// ErrTemplateNotFound is returned for unknown template names.
var ErrTemplateNotFound = errors.New("prompt template not found")

// ErrTemplateSlotMissing is returned when a template references a slot
// the caller did not supply. The wrapped message names the slot.
var ErrTemplateSlotMissing = errors.New("prompt template slot missing")

// Rendered is a filled template, split into the system and user turns
// of the completion request.
type Rendered struct {
	System string
	User   string
}

// Template is a named prompt with {slot} placeholders.
type Template struct {
	Name   string
	System string
	User   string
}

// Built-in template names.
const (
	TemplateKnowledge = "knowledge"
	TemplateCode      = "code"
	TemplateChat      = "chat"
)

var templates = map[string]*Template{
	TemplateKnowledge: {
		Name: TemplateKnowledge,
		System: "You are a helpful assistant for a team workspace. " +
			"Answer using only the provided context. " +
			"Cite your sources with the bracketed numbers given in the context, e.g. [1]. " +
			"If the context does not contain the answer, say so plainly.",
		User: "Context:\n{context}\n\nConversation so far:\n{history}\n\nQuestion: {question}",
	},
	TemplateCode: {
		Name: TemplateCode,
		System: "You are a senior engineer helping teammates understand and improve code. " +
			"Be precise, point at concrete lines, and prefer small examples over prose.",
		User: "Conversation so far:\n{history}\n\nRequest: {question}",
	},
	TemplateChat: {
		Name: TemplateChat,
		System: "You are a friendly, concise assistant in a team chat. " +
			"Keep answers short and direct; use markdown when it helps.",
		User: "Conversation so far:\n{history}\n\n{question}",
	},
}

// Lookup returns a built-in template by name.
func Lookup(name string) (*Template, error) {
	tmpl, ok := templates[name]
	if !ok {
		return nil, errors.Wrap(ErrTemplateNotFound, name)
	}
	return tmpl, nil
}

var slotPattern = regexp.MustCompile(`\{([a-z_]+)\}`)

// Format fills the named template. Every slot the template references
// must be present in slots; supplying extra slots is fine. Slot values
// may be empty strings.
func Format(name string, slots map[string]string) (*Rendered, error) {
	tmpl, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	system, err := fill(tmpl.System, slots)
	if err != nil {
		return nil, err
	}
	user, err := fill(tmpl.User, slots)
	if err != nil {
		return nil, err
	}
	return &Rendered{System: system, User: user}, nil
}

func fill(text string, slots map[string]string) (string, error) {
	var missing string
	out := slotPattern.ReplaceAllStringFunc(text, func(match string) string {
		slot := strings.Trim(match, "{}")
		value, ok := slots[slot]
		if !ok {
			if missing == "" {
				missing = slot
			}
			return match
		}
		return value
	})
	if missing != "" {
		return "", errors.Wrap(ErrTemplateSlotMissing, missing)
	}
	return out, nil
}
