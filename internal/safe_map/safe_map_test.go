package safe_map

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeMap_StoreLoadClear(t *testing.T) {
	m := NewSafeMap[string, int]()

	_, ok := m.Load("battery")
	assert.False(t, ok)

	m.Store("battery", 87)
	v, ok := m.Load("battery")
	assert.True(t, ok)
	assert.Equal(t, 87, v)

	m.Store("battery", 86)
	v, _ = m.Load("battery")
	assert.Equal(t, 86, v)

	m.Store("heart_rate", 1)
	m.Clear()
	_, ok = m.Load("battery")
	assert.False(t, ok)
	_, ok = m.Load("heart_rate")
	assert.False(t, ok)
}

func TestSafeMap_Concurrent(t *testing.T) {
	m := NewSafeMap[string, int]()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i)
			m.Store(key, i)
			m.Load(key)
		}(i)
	}
	wg.Wait()
	for i := 0; i < 20; i++ {
		v, ok := m.Load(fmt.Sprintf("k%d", i))
		assert.True(t, ok)
		assert.Equal(t, i, v)
	}
}
