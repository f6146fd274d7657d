package safe_map

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeMap_StoreLoadDelete(t *testing.T) {
	m := NewSafeMap[string, int]()
	_, ok := m.Load("ftms")
	assert.False(t, ok)

	m.Store("ftms", 1)
	v, ok := m.Load("ftms")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 1, m.Len())

	m.Delete("ftms")
	assert.Equal(t, 0, m.Len())
}

func TestSafeMap_LoadOrStore(t *testing.T) {
	m := NewSafeMap[string, string]()
	v, loaded := m.LoadOrStore("aa:bb", "trainer")
	assert.False(t, loaded)
	assert.Equal(t, "trainer", v)

	v, loaded = m.LoadOrStore("aa:bb", "strap")
	assert.True(t, loaded)
	assert.Equal(t, "trainer", v)
}

func TestSafeMap_DeleteFuncAndValues(t *testing.T) {
	m := NewSafeMap[int, int]()
	for i := 0; i < 10; i++ {
		m.Store(i, i*i)
	}
	removed := m.DeleteFunc(func(k, _ int) bool { return k%2 == 0 })
	assert.Len(t, removed, 5)
	assert.ElementsMatch(t, []int{1, 9, 25, 49, 81}, m.Values())

	m.Clear()
	assert.Equal(t, 0, m.Len())
}

func TestSafeMap_Concurrent(t *testing.T) {
	m := NewSafeMap[int, int]()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			m.Store(n, n)
			m.Load(n)
			m.Values()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, m.Len())
}
