package idgen

import (
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnowflake_UniqueAndIncreasing(t *testing.T) {
	s, err := NewSnowflake(7)
	require.NoError(t, err)

	prev := int64(0)
	for i := 0; i < 10000; i++ {
		id := s.Generate()
		assert.Greater(t, id, prev)
		prev = id
	}
}

func TestSnowflake_Concurrent(t *testing.T) {
	s, err := NewSnowflake(1)
	require.NoError(t, err)

	var (
		mu   sync.Mutex
		seen = make(map[int64]struct{})
		wg   sync.WaitGroup
	)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				id := s.Generate()
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 8000)
}

func TestNewSnowflake_InvalidWorker(t *testing.T) {
	_, err := NewSnowflake(-1)
	assert.Error(t, err)
	_, err = NewSnowflake(maxWorkerID + 1)
	assert.Error(t, err)
}

func TestGenerateReference(t *testing.T) {
	pattern := regexp.MustCompile(`^REF[0-9A-Z]{8}$`)
	for i := 0; i < 100; i++ {
		assert.Regexp(t, pattern, GenerateReference())
	}
}

func TestGenerateTransactionID(t *testing.T) {
	a := GenerateTransactionID()
	b := GenerateTransactionID()
	assert.Regexp(t, `^TXN[0-9A-Z]+$`, a)
	assert.NotEqual(t, a, b)
}

func TestGenerateMessageID(t *testing.T) {
	assert.Len(t, GenerateMessageID(), 26)
}
