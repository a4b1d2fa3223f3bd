package index

import (
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"
)

// Filter evaluates CEL expressions against chunk metadata, e.g.
// `metadata.team == "platform" && document_id.startsWith("handbook")`.
// Compiled programs are cached per expression.
type Filter struct {
	env *cel.Env

	mu       sync.Mutex
	programs map[string]cel.Program
}

// NewFilter creates the filter environment.
func NewFilter() (*Filter, error) {
	env, err := cel.NewEnv(
		cel.Variable("metadata", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("document_id", cel.StringType),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create cel env")
	}
	return &Filter{env: env, programs: make(map[string]cel.Program)}, nil
}

func (f *Filter) program(expr string) (cel.Program, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if prg, ok := f.programs[expr]; ok {
		return prg, nil
	}
	ast, iss := f.env.Compile(expr)
	if iss.Err() != nil {
		return nil, errors.Wrapf(iss.Err(), "compile filter %q", expr)
	}
	prg, err := f.env.Program(ast)
	if err != nil {
		return nil, errors.Wrapf(err, "build filter program %q", expr)
	}
	f.programs[expr] = prg
	return prg, nil
}

// Apply keeps the chunks for which expr evaluates to true. Chunks whose
// evaluation errors (missing keys, type mismatches) are dropped.
func (f *Filter) Apply(expr string, chunks []*Chunk) ([]*Chunk, error) {
	if expr == "" {
		return chunks, nil
	}
	prg, err := f.program(expr)
	if err != nil {
		return nil, err
	}
	out := make([]*Chunk, 0, len(chunks))
	for _, chunk := range chunks {
		metadata := chunk.Metadata
		if metadata == nil {
			metadata = map[string]any{}
		}
		val, _, err := prg.Eval(map[string]any{
			"metadata":    metadata,
			"document_id": chunk.DocumentID,
		})
		if err != nil {
			continue
		}
		if keep, ok := val.Value().(bool); ok && keep {
			out = append(out, chunk)
		}
	}
	return out, nil
}
