package stream

import (
	"errors"
	"testing"

	"github.com/bgpfix/streamwye/cause"
	"github.com/stretchr/testify/assert"
)

func TestOfRunCollect(t *testing.T) {
	assert := assert.New(t)
	out, c := RunCollect(Of(1, 2, 3))
	assert.Equal([]int{1, 2, 3}, out)
	assert.True(c.IsEnd())
}

func TestMap(t *testing.T) {
	assert := assert.New(t)
	out, _ := RunCollect(Map(Of(1, 2, 3), func(v int) int { return v * 2 }))
	assert.Equal([]int{2, 4, 6}, out)
}

func TestFilter(t *testing.T) {
	assert := assert.New(t)
	out, _ := RunCollect(Filter(Of(1, 2, 3, 4, 5), func(v int) bool { return v%2 == 0 }))
	assert.Equal([]int{2, 4}, out)
}

func TestTake(t *testing.T) {
	assert := assert.New(t)
	out, c := RunCollect(Take(Repeat(Of(1, 2)), 5))
	assert.Equal([]int{1, 2, 1, 2, 1}, out)
	assert.True(c.IsEnd())
}

func TestDrop(t *testing.T) {
	assert := assert.New(t)
	out, _ := RunCollect(Drop(Of(1, 2, 3, 4), 2))
	assert.Equal([]int{3, 4}, out)
}

func TestAppend(t *testing.T) {
	assert := assert.New(t)
	out, c := RunCollect(Append(Of(1, 2), Of(3, 4)))
	assert.Equal([]int{1, 2, 3, 4}, out)
	assert.True(c.IsEnd())
}

func TestAppendPropagatesError(t *testing.T) {
	assert := assert.New(t)
	boom := errors.New("boom")
	_, c := RunCollect(Append(Fail[int](cause.Errorf(boom)), Of(1)))
	assert.True(c.IsError())
}

func TestChunked(t *testing.T) {
	assert := assert.New(t)
	out, c := RunCollect(Chunked(Of(1, 2, 3, 4, 5), 2))
	assert.Equal([]int{1, 2, 3, 4, 5}, out)
	assert.True(c.IsEnd())
}

func TestEvalError(t *testing.T) {
	assert := assert.New(t)
	boom := errors.New("eval failed")
	_, c := RunCollect(Eval(func() (int, error) { return 0, boom }))
	assert.True(c.IsError())
	assert.ErrorIs(c.Err(), boom)
}

func TestRunFinalizesOnEarlyStop(t *testing.T) {
	assert := assert.New(t)
	finalized := false
	s := func() Step[int] {
		return Emit([]int{1}, func(c cause.Cause) Stream[int] {
			if !c.IsEnd() {
				finalized = true
			}
			return Empty[int]()
		})
	}
	c := Run(Stream[int](s), func(chunk []int) cause.Cause { return cause.KillCause })
	assert.True(finalized)
	assert.True(c.IsEnd())
}
