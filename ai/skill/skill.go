// Package skill holds the capability registry and the utterance
// router.
package skill

import "context"

// Request carries what a local handler needs to produce a reply.
type Request struct {
	// Utterance is the original user text, case preserved.
	Utterance string
	// History is the string-projected conversation context, oldest
	// first. Empty for the first turn.
	History string
}

// HandlerFunc is a function a skill answers locally, without a
// completion round trip.
type HandlerFunc func(ctx context.Context, req *Request) (string, error)

// Function is one addressable entry point of a skill. Either Handler
// is set (local reply) or Template names the prompt the completion
// path renders.
type Function struct {
	Name           string
	Description    string
	RetrievalAware bool
	Template       string
	Handler        HandlerFunc
}

// Descriptor declares a skill at registration time. Keywords drive
// affinity scoring; Overrides are route keywords that send an
// utterance here ahead of scoring.
type Descriptor struct {
	Name        string
	Description string
	Keywords    []string
	Overrides   []string
	Functions   []*Function
}

// Function returns the named function, nil when the skill does not
// expose it.
func (d *Descriptor) Function(name string) *Function {
	for _, fn := range d.Functions {
		if fn.Name == name {
			return fn
		}
	}
	return nil
}

// Well-known function names the router selects by lexical pattern.
const (
	FuncChat           = "chat"
	FuncGreet          = "greet"
	FuncAnswerQuestion = "answer_question"
	FuncBulletList     = "format_as_bullet_list"
)
