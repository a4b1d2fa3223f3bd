package skill

import (
	"strings"

	"github.com/pkg/errors"
)

// ErrNoSkillMatched should be unreachable while a default skill is
// registered; Route falls back to it before reporting this.
var ErrNoSkillMatched = errors.New("no skill matched")

// Registry maps skill names to descriptors. It is populated at startup
// and treated as immutable afterwards, so reads take no lock.
type Registry struct {
	skills      map[string]*Descriptor
	order       []string
	defaultName string
}

// NewRegistry creates a registry whose fallback is the named skill.
func NewRegistry(defaultName string) *Registry {
	return &Registry{
		skills:      make(map[string]*Descriptor),
		defaultName: defaultName,
	}
}

// Register adds a skill. Re-registering a name replaces the previous
// descriptor atomically and keeps its original position in the
// registration order.
func (r *Registry) Register(d *Descriptor) {
	if _, exists := r.skills[d.Name]; !exists {
		r.order = append(r.order, d.Name)
	}
	r.skills[d.Name] = d
}

// Get returns a skill by name.
func (r *Registry) Get(name string) *Descriptor {
	return r.skills[name]
}

// Skills returns descriptors in registration order.
func (r *Registry) Skills() []*Descriptor {
	list := make([]*Descriptor, 0, len(r.order))
	for _, name := range r.order {
		list = append(list, r.skills[name])
	}
	return list
}

var questionWords = map[string]bool{
	"what": true, "how": true, "why": true,
	"when": true, "where": true, "who": true,
}

var greetingWords = map[string]bool{
	"hello": true, "hi": true, "hey": true, "greetings": true,
}

// Route resolves an utterance to (skill, function).
//
// Skill selection: route-keyword overrides win outright; otherwise the
// skill with the largest keyword intersection wins, ties broken by
// registration order, zero score falling back to the default skill.
//
// Function selection within the chosen skill, in order: question
// pattern, greeting, bullet formatting, then plain chat.
func (r *Registry) Route(utterance string) (*Descriptor, *Function, error) {
	lower := strings.ToLower(utterance)
	words := strings.Fields(lower)
	wordSet := make(map[string]bool, len(words))
	for _, w := range words {
		wordSet[strings.Trim(w, ".,!?:;")] = true
	}

	chosen := r.routeOverride(wordSet)
	if chosen == nil {
		chosen = r.routeAffinity(wordSet)
	}
	if chosen == nil {
		chosen = r.skills[r.defaultName]
	}
	if chosen == nil {
		return nil, nil, ErrNoSkillMatched
	}

	fn := selectFunction(chosen, lower, words, wordSet)
	if fn == nil {
		return nil, nil, errors.Wrapf(ErrNoSkillMatched, "skill %s has no routable function", chosen.Name)
	}
	return chosen, fn, nil
}

func (r *Registry) routeOverride(wordSet map[string]bool) *Descriptor {
	for _, name := range r.order {
		d := r.skills[name]
		for _, kw := range d.Overrides {
			if wordSet[kw] {
				return d
			}
		}
	}
	return nil
}

func (r *Registry) routeAffinity(wordSet map[string]bool) *Descriptor {
	var (
		best      *Descriptor
		bestScore int
	)
	for _, name := range r.order {
		d := r.skills[name]
		score := 0
		for _, kw := range d.Keywords {
			if wordSet[kw] {
				score++
			}
		}
		// Strict greater keeps earlier registrations on ties.
		if score > bestScore {
			best, bestScore = d, score
		}
	}
	if bestScore == 0 {
		return nil
	}
	return best
}

func selectFunction(d *Descriptor, lower string, words []string, wordSet map[string]bool) *Function {
	if isQuestion(lower, wordSet) {
		if fn := d.Function(FuncAnswerQuestion); fn != nil {
			return fn
		}
	}
	if len(words) > 0 && greetingWords[strings.Trim(words[0], ".,!?:;")] {
		if fn := d.Function(FuncGreet); fn != nil {
			return fn
		}
	}
	if strings.Contains(lower, "format") && strings.Contains(lower, "bullet") {
		if fn := d.Function(FuncBulletList); fn != nil {
			return fn
		}
	}
	if fn := d.Function(FuncChat); fn != nil {
		return fn
	}
	// A skill without a chat function answers everything with its
	// first declared function.
	if len(d.Functions) > 0 {
		return d.Functions[0]
	}
	return nil
}

func isQuestion(lower string, wordSet map[string]bool) bool {
	if strings.Contains(lower, "?") {
		return true
	}
	for w := range questionWords {
		if wordSet[w] {
			return true
		}
	}
	return false
}
