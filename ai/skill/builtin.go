package skill

import (
	"context"
	"strings"

	"github.com/crewmind/crewmind/ai/prompt"
)

// DefaultSkillName is the registry fallback.
const DefaultSkillName = "general"

// RegisterBuiltins installs the stock skills: general chat,
// documentation Q&A, and code assistance.
func RegisterBuiltins(r *Registry) {
	r.Register(General())
	r.Register(Documentation())
	r.Register(Code())
}

// General is the default conversational skill.
func General() *Descriptor {
	return &Descriptor{
		Name:        "general",
		Description: "General conversation, greetings, and workspace questions.",
		Keywords:    []string{"hello", "hi", "hey", "help", "question", "chat", "thanks"},
		Functions: []*Function{
			{
				Name:        FuncChat,
				Description: "Free-form conversation.",
				Template:    prompt.TemplateChat,
			},
			{
				Name:        FuncGreet,
				Description: "Greets the user by name when one is given.",
				Handler:     greet,
			},
			{
				Name:           FuncAnswerQuestion,
				Description:    "Answers questions from the indexed knowledge base.",
				RetrievalAware: true,
				Template:       prompt.TemplateKnowledge,
			},
			{
				Name:        FuncBulletList,
				Description: "Reformats the given text as a bullet list.",
				Handler:     bulletList,
			},
		},
	}
}

// Documentation answers questions against the documentation corpus.
func Documentation() *Descriptor {
	return &Descriptor{
		Name:        "documentation",
		Description: "Questions about product and internal documentation.",
		Keywords:    []string{"guide", "manual", "reference", "handbook"},
		Overrides:   []string{"docs", "documentation"},
		Functions: []*Function{
			{
				Name:           FuncAnswerQuestion,
				Description:    "Answers from the documentation index.",
				RetrievalAware: true,
				Template:       prompt.TemplateKnowledge,
			},
			{
				Name:           FuncChat,
				Description:    "Documentation-flavored conversation.",
				RetrievalAware: true,
				Template:       prompt.TemplateKnowledge,
			},
		},
	}
}

// Code helps with code understanding and review.
func Code() *Descriptor {
	return &Descriptor{
		Name:        "code",
		Description: "Explains and analyzes code.",
		Keywords:    []string{"function", "bug", "error", "compile", "refactor"},
		Overrides:   []string{"explain", "code", "analyze"},
		Functions: []*Function{
			{
				Name:           FuncAnswerQuestion,
				Description:    "Answers code questions with indexed examples.",
				RetrievalAware: true,
				Template:       prompt.TemplateCode,
			},
			{
				Name:        FuncChat,
				Description: "Code-flavored conversation.",
				Template:    prompt.TemplateCode,
			},
		},
	}
}

// greet answers a salutation locally. When the utterance carries a name
// after the greeting word, the reply uses it.
func greet(_ context.Context, req *Request) (string, error) {
	words := strings.Fields(req.Utterance)
	name := ""
	if len(words) > 1 {
		candidate := strings.Trim(words[1], ".,!?:;")
		if candidate != "" && !greetingWords[strings.ToLower(candidate)] {
			name = candidate
		}
	}
	if name != "" {
		return "Hi " + name + "! How can I help you today?", nil
	}
	return "Hi there! How can I help you today?", nil
}

// bulletList reformats the payload of the utterance as a bullet list.
// The payload is what follows a colon when one is present, otherwise
// the whole utterance minus the formatting directive.
func bulletList(_ context.Context, req *Request) (string, error) {
	payload := req.Utterance
	if idx := strings.Index(payload, ":"); idx >= 0 {
		payload = payload[idx+1:]
	}
	var items []string
	for _, part := range strings.FieldsFunc(payload, func(r rune) bool {
		return r == '\n' || r == ';' || r == ','
	}) {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}
		items = append(items, "- "+item)
	}
	if len(items) == 0 {
		return "There is nothing to format yet. Send me some items and I will turn them into a list.", nil
	}
	return strings.Join(items, "\n"), nil
}
