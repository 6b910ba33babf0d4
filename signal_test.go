package playerx

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignal_AbortCascades(t *testing.T) {
	root := NewSignal()
	child := root.Child()
	grandchild := child.Child()

	var order []string
	root.OnAbort(func() { order = append(order, "root") })
	child.OnAbort(func() { order = append(order, "child") })
	grandchild.OnAbort(func() { order = append(order, "grandchild") })

	reason := errors.New("stop")
	root.Abort(reason)

	assert.True(t, child.Aborted())
	assert.True(t, grandchild.Aborted())
	assert.Equal(t, reason, grandchild.Reason())
	assert.Equal(t, []string{"grandchild", "child", "root"}, order)
	assert.Equal(t, reason, context.Cause(grandchild.Context()))
}

func TestSignal_AbortIsIdempotent(t *testing.T) {
	s := NewSignal()
	calls := 0
	s.OnAbort(func() { calls++ })

	first := errors.New("first")
	s.Abort(first)
	s.Abort(errors.New("second"))

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, s.Reason())
}

func TestSignal_ChildAbortLeavesParent(t *testing.T) {
	parent := NewSignal()
	left := parent.Child()
	right := parent.Child()

	left.Abort(nil)

	assert.True(t, left.Aborted())
	assert.ErrorIs(t, left.Reason(), context.Canceled)
	assert.False(t, parent.Aborted())
	assert.False(t, right.Aborted())
}

func TestSignal_ChildOfAbortedParent(t *testing.T) {
	parent := NewSignal()
	reason := errors.New("gone")
	parent.Abort(reason)

	child := parent.Child()
	assert.True(t, child.Aborted())
	assert.Equal(t, reason, child.Reason())
	requireClosed(t, child.Done())
}

func TestSignal_OnAbortAfterAbortRunsImmediately(t *testing.T) {
	s := NewSignal()
	s.Abort(nil)

	ran := false
	s.OnAbort(func() { ran = true })
	require.True(t, ran)
}

func TestSignal_LIFOCallbacks(t *testing.T) {
	s := NewSignal()
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		s.OnAbort(func() { order = append(order, i) })
	}
	s.Abort(nil)
	assert.Equal(t, []int{2, 1, 0}, order)
}
