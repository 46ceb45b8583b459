package application

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex_SerializesPerKey(t *testing.T) {
	locks := newKeyedMutex()

	const workers = 16
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			locks.Lock("shared")
			defer locks.Unlock("shared")
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, workers, counter)
}

func TestKeyedMutex_IndependentKeysDoNotBlock(t *testing.T) {
	locks := newKeyedMutex()

	locks.Lock("a")
	done := make(chan struct{})
	go func() {
		locks.Lock("b")
		locks.Unlock("b")
		close(done)
	}()
	<-done // would deadlock if "b" waited on "a"
	locks.Unlock("a")
}

func TestKeyedMutex_ReleasedEntriesAreCollected(t *testing.T) {
	locks := newKeyedMutex()

	locks.Lock("a")
	locks.Unlock("a")
	locks.Lock("b")
	locks.Unlock("b")

	locks.mu.Lock()
	defer locks.mu.Unlock()
	assert.Empty(t, locks.entries, "idle entries must not accumulate")
}
