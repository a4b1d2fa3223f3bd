package hotcache

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewmind/crewmind/store"
)

func msg(id int64, content string) *store.Message {
	return &store.Message{ID: id, Role: store.RoleUser, Content: content}
}

func TestMemoryPushWithoutReplaceIsNoop(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Push(ctx, "conv", msg(1, "orphan")))

	_, ok, err := m.Recent(ctx, "conv", 10)
	require.NoError(t, err)
	assert.False(t, ok, "push may not create a list")
}

func TestMemoryReplaceThenRecent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	seed := []*store.Message{msg(3, "newest"), msg(2, "middle"), msg(1, "oldest")}
	require.NoError(t, m.Replace(ctx, "conv", seed))

	got, ok, err := m.Recent(ctx, "conv", 2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, "newest", got[0].Content)
	assert.Equal(t, "middle", got[1].Content)
}

func TestMemoryPushPrependsAfterReplace(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Replace(ctx, "conv", []*store.Message{msg(1, "old")}))
	require.NoError(t, m.Push(ctx, "conv", msg(2, "new")))

	got, ok, err := m.Recent(ctx, "conv", 10)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].Content)
}

func TestMemoryDepthCap(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Replace(ctx, "conv", []*store.Message{msg(0, "seed")}))
	for i := 1; i <= store.HotDepth+10; i++ {
		require.NoError(t, m.Push(ctx, "conv", msg(int64(i), fmt.Sprintf("m%d", i))))
	}

	got, ok, err := m.Recent(ctx, "conv", store.HotDepth*2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, got, store.HotDepth)
	assert.Equal(t, fmt.Sprintf("m%d", store.HotDepth+10), got[0].Content)
}

func TestMemoryEvict(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Replace(ctx, "conv", []*store.Message{msg(1, "x")}))
	require.NoError(t, m.Evict(ctx, "conv"))

	_, ok, err := m.Recent(ctx, "conv", 10)
	require.NoError(t, err)
	assert.False(t, ok)
}
