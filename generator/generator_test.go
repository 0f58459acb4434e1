package generator

import (
	"context"
	"testing"

	"github.com/boolforge/ternbase/tern"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nameSink records delivered candidates.
type nameSink struct {
	names []string
	limit int
}

func (s *nameSink) Found(tree *tern.Tree, name string, nPh, nEp, nBr uint32) bool {
	s.names = append(s.names, name)
	return s.limit == 0 || len(s.names) < s.limit
}

func TestReserved(t *testing.T) {
	g := New(tern.Mode{})
	sink := &nameSink{}
	require.True(t, g.Reserved(sink))
	assert.Equal(t, []string{"0", "a"}, sink.names)
}

func TestGenerateOneNode(t *testing.T) {
	g := New(tern.Mode{})
	sink := &nameSink{}
	require.NoError(t, g.Generate(context.Background(), 1, sink))

	assert.Equal(t, []string{"ab+", "ab>", "ab^", "abc!", "ab&", "abc?"}, sink.names)
	assert.Equal(t, uint64(6), g.Progress)
	assert.Len(t, g.RestartPoints, 6)
}

func TestGenerateOneNodePure(t *testing.T) {
	g := New(tern.Mode{Pure: true})
	sink := &nameSink{}
	require.NoError(t, g.Generate(context.Background(), 1, sink))

	assert.Equal(t, []string{"ab+", "ab>", "ab^", "abc!"}, sink.names)
}

func TestGenerateTwoNodes(t *testing.T) {
	g := New(tern.Mode{})
	sink := &nameSink{}
	require.NoError(t, g.Generate(context.Background(), 2, sink))

	require.NotEmpty(t, sink.names)

	seen := make(map[string]struct{}, len(sink.names))
	tree := tern.New(tern.Mode{})
	for _, name := range sink.names {
		// structures are emitted once
		_, dup := seen[name]
		require.False(t, dup, "duplicate %q", name)
		seen[name] = struct{}{}

		// every emitted name is canonical: it decodes and re-encodes to
		// itself
		require.NoError(t, tree.LoadStringSafe(name, tern.DefaultSkin), "name %q", name)
		assert.Equal(t, name, tree.String(), "name %q", name)
		assert.Equal(t, uint32(2), tree.Size(), "name %q", name)
	}
}

func TestGenerateWindow(t *testing.T) {
	g := New(tern.Mode{})
	g.WindowLo, g.WindowHi = 2, 4

	sink := &nameSink{}
	require.NoError(t, g.Generate(context.Background(), 1, sink))

	assert.Equal(t, []string{"ab^", "abc!"}, sink.names)
	// progress counts the whole walk, not just the window
	assert.Equal(t, uint64(6), g.Progress)
}

func TestGenerateStops(t *testing.T) {
	g := New(tern.Mode{})
	sink := &nameSink{limit: 2}
	require.NoError(t, g.Generate(context.Background(), 1, sink))
	assert.Len(t, sink.names, 2)
}

func TestGenerateCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := New(tern.Mode{})
	sink := &nameSink{}
	err := g.Generate(ctx, 2, sink)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sink.names)
}

func TestTaskWindow(t *testing.T) {
	lo, hi := TaskWindow(1, 4, 100)
	assert.Equal(t, uint64(0), lo)
	assert.Equal(t, uint64(25), hi)

	lo, hi = TaskWindow(4, 4, 100)
	assert.Equal(t, uint64(75), lo)
	assert.Zero(t, hi, "last task is open ended")

	lo, hi = TaskWindow(2, 1000, 10)
	assert.Equal(t, uint64(1), lo)
	assert.Equal(t, uint64(2), hi)
}
