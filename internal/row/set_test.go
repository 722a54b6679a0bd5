package row

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetCaseInsensitive(t *testing.T) {
	s := NewSet("Alice", "ALICE", " bob ", "")

	assert.Len(t, s, 2)
	assert.True(t, s.Has("alice"))
	assert.Equal(t, []string{"Alice", "bob"}, s.Sorted())
}

func TestSetUnionDoesNotMutate(t *testing.T) {
	a := NewSet("A")
	b := NewSet("b", "a")

	u := a.Union(b)

	assert.Len(t, a, 1)
	assert.Equal(t, []string{"A", "b"}, u.Sorted())
	assert.True(t, u.Has("B"))
	assert.False(t, a.Has("b"))
}

func TestNilSetJoin(t *testing.T) {
	var s Set
	assert.Equal(t, "", s.Join())
	assert.Empty(t, s.Sorted())
}
