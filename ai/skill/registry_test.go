package skill

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	r := NewRegistry(DefaultSkillName)
	RegisterBuiltins(r)
	return r
}

func TestRouteGreeting(t *testing.T) {
	r := newTestRegistry()
	sk, fn, err := r.Route("hi Alice")
	require.NoError(t, err)
	assert.Equal(t, "general", sk.Name)
	assert.Equal(t, FuncGreet, fn.Name)
}

func TestRouteQuestion(t *testing.T) {
	r := newTestRegistry()
	sk, fn, err := r.Route("What is the onboarding process?")
	require.NoError(t, err)
	assert.Equal(t, "general", sk.Name)
	assert.Equal(t, FuncAnswerQuestion, fn.Name)
	assert.True(t, fn.RetrievalAware)
}

func TestRouteOverrideBeatsAffinity(t *testing.T) {
	r := newTestRegistry()

	// "docs" routes to documentation even though "hello" scores for
	// the general skill.
	sk, _, err := r.Route("hello, where are the docs")
	require.NoError(t, err)
	assert.Equal(t, "documentation", sk.Name)

	sk, fn, err := r.Route("explain this function")
	require.NoError(t, err)
	assert.Equal(t, "code", sk.Name)
	assert.Equal(t, FuncChat, fn.Name)
}

func TestRouteOverridePrecedesQuestionPattern(t *testing.T) {
	r := newTestRegistry()
	sk, fn, err := r.Route("what does this code do?")
	require.NoError(t, err)
	assert.Equal(t, "code", sk.Name)
	assert.Equal(t, FuncAnswerQuestion, fn.Name)
}

func TestRouteBulletFormat(t *testing.T) {
	r := newTestRegistry()
	_, fn, err := r.Route("format as bullet list: apples, pears, plums")
	require.NoError(t, err)
	assert.Equal(t, FuncBulletList, fn.Name)
}

func TestRouteFallsBackToDefault(t *testing.T) {
	r := newTestRegistry()
	sk, fn, err := r.Route("zzz qqq vvv")
	require.NoError(t, err)
	assert.Equal(t, DefaultSkillName, sk.Name)
	assert.Equal(t, FuncChat, fn.Name)
}

func TestRouteTieBrokenByRegistrationOrder(t *testing.T) {
	r := NewRegistry("first")
	r.Register(&Descriptor{
		Name:     "first",
		Keywords: []string{"shared"},
		Functions: []*Function{{Name: FuncChat}},
	})
	r.Register(&Descriptor{
		Name:     "second",
		Keywords: []string{"shared"},
		Functions: []*Function{{Name: FuncChat}},
	})

	sk, _, err := r.Route("something shared here")
	require.NoError(t, err)
	assert.Equal(t, "first", sk.Name)
}

func TestRouteDeterminism(t *testing.T) {
	r := newTestRegistry()
	utterances := []string{
		"hi Alice",
		"What is the onboarding process?",
		"explain this code",
		"format as bullet list: a, b",
		"zzz qqq",
	}
	for _, u := range utterances {
		sk1, fn1, err := r.Route(u)
		require.NoError(t, err)
		for i := 0; i < 5; i++ {
			sk2, fn2, err := r.Route(u)
			require.NoError(t, err)
			assert.Equal(t, sk1.Name, sk2.Name, u)
			assert.Equal(t, fn1.Name, fn2.Name, u)
		}
	}
}

func TestReregisterReplacesInPlace(t *testing.T) {
	r := newTestRegistry()
	before := len(r.Skills())

	r.Register(&Descriptor{
		Name:      "general",
		Keywords:  []string{"hello"},
		Functions: []*Function{{Name: FuncChat}},
	})
	assert.Len(t, r.Skills(), before)
	assert.Nil(t, r.Get("general").Function(FuncGreet))
}

func TestGreetHandler(t *testing.T) {
	reply, err := greet(context.Background(), &Request{Utterance: "hi Alice"})
	require.NoError(t, err)
	assert.Contains(t, reply, "Alice")

	reply, err = greet(context.Background(), &Request{Utterance: "hello"})
	require.NoError(t, err)
	assert.Contains(t, reply, "Hi there")
}

func TestBulletListHandler(t *testing.T) {
	reply, err := bulletList(context.Background(), &Request{
		Utterance: "format as bullet list: apples, pears, plums",
	})
	require.NoError(t, err)
	assert.Equal(t, "- apples\n- pears\n- plums", reply)
}
