package mailbox

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFIFOOrder(t *testing.T) {
	mb := New[int]()
	for i := 0; i < 100; i++ {
		mb.Post(i)
	}
	mb.Close()

	var got []int
	mb.Run(func(m int) { got = append(got, m) })

	assert.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestPostNeverBlocksUnderConcurrency(t *testing.T) {
	mb := New[int]()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			mb.Post(v)
		}(i)
	}
	wg.Wait()
	mb.Close()

	count := 0
	mb.Run(func(int) { count++ })
	assert.Equal(t, 50, count)
}

func TestPostAfterCloseDropped(t *testing.T) {
	mb := New[int]()
	mb.Post(1)
	mb.Close()
	mb.Post(2)

	var got []int
	mb.Run(func(m int) { got = append(got, m) })
	assert.Equal(t, []int{1}, got)
}
