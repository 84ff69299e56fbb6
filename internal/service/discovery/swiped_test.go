package discovery

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSwipedSet_ForgetsOldest(t *testing.T) {
	s := newSwipedSet(2)
	s.add("a")
	s.add("b")
	s.add("c")

	assert.False(t, s.has("a"))
	assert.True(t, s.has("b"))
	assert.True(t, s.has("c"))
}

func TestSwipedSet_ReAddRefreshesAge(t *testing.T) {
	s := newSwipedSet(2)
	s.add("a")
	s.add("b")
	s.add("a")
	s.add("c")

	// b is now the oldest live id
	assert.True(t, s.has("a"))
	assert.False(t, s.has("b"))
	assert.True(t, s.has("c"))
}

func TestSwipedSet_RemoveAndCompact(t *testing.T) {
	s := newSwipedSet(3)
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("u%d", i)
		s.add(id)
		s.remove(id)
	}
	assert.Empty(t, s.ids)
	assert.LessOrEqual(t, len(s.order), 6)

	s.add("x")
	assert.True(t, s.has("x"))
}
