package cause

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCausedBy(t *testing.T) {
	assert := assert.New(t)

	errA := errors.New("a")
	errB := errors.New("b")

	tests := []struct {
		name     string
		a, b     Cause
		wantKind Kind
	}{
		{"end+end=end", End, End, KindEnd},
		{"end+kill=kill", End, KillCause, KindKill},
		{"kill+end=kill", KillCause, End, KindKill},
		{"kill+kill=kill", KillCause, KillCause, KindKill},
		{"error+end=error", Errorf(errA), End, KindError},
		{"end+error=error", End, Errorf(errA), KindError},
		{"error+kill=error", Errorf(errA), KillCause, KindError},
		{"kill+error=error", KillCause, Errorf(errA), KindError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CausedBy(tt.a, tt.b)
			assert.Equal(tt.wantKind, got.Kind())
		})
	}

	// two errors chain, losing neither payload
	chained := CausedBy(Errorf(errA), Errorf(errB))
	assert.True(chained.IsError())
	assert.ErrorIs(chained.Err(), errA)
	assert.ErrorIs(chained.Err(), errB)
}

func TestCausedByCommutativeOverEndKill(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(CausedBy(End, KillCause).Kind(), CausedBy(KillCause, End).Kind())
	assert.Equal(CausedBy(End, End).Kind(), KindEnd)
}

func TestCausedByAssociative(t *testing.T) {
	assert := assert.New(t)
	causes := []Cause{End, KillCause}
	for _, a := range causes {
		for _, b := range causes {
			for _, c := range causes {
				left := CausedBy(CausedBy(a, b), c)
				right := CausedBy(a, CausedBy(b, c))
				assert.Equal(left.Kind(), right.Kind())
			}
		}
	}
}

func TestKill(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(KindKill, Kill(End).Kind())
	assert.Equal(KindKill, Kill(KillCause).Kind())

	err := errors.New("boom")
	assert.True(Kill(Errorf(err)).IsError())
}

func TestString(t *testing.T) {
	assert := assert.New(t)
	assert.Equal("End", End.String())
	assert.Equal("Kill", KillCause.String())
	assert.Contains(Errorf(errors.New("x")).String(), "x")
}
