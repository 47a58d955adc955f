package attributes

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	t.Run("absent key reads as empty", func(t *testing.T) {
		s := New()
		v, ok := s.Get("missing")
		assert.False(t, ok)
		assert.Nil(t, v)
		assert.False(t, s.Has("missing"))
	})

	t.Run("set overwrites", func(t *testing.T) {
		var s Store
		s.Set("k", 1)
		s.Set("k", "two")
		v, ok := s.Get("k")
		require.True(t, ok)
		assert.Equal(t, "two", v)
		assert.Equal(t, 1, s.Len())
	})

	t.Run("typed nil removes", func(t *testing.T) {
		s := New()
		s.Set("p", new(int))
		s.Set("p", (*int)(nil))
		assert.False(t, s.Has("p"))

		s.Set("m", map[string]int{"a": 1})
		s.Set("m", map[string]int(nil))
		assert.False(t, s.Has("m"))

		s.Set("zero", 0)
		assert.True(t, s.Has("zero"), "zero values other than nil are kept")
	})

	t.Run("clone is independent", func(t *testing.T) {
		s := New()
		s.Set("a", 1)
		c := s.Clone()
		s.Set("b", 2)
		c.Set("a", 3)

		assert.Equal(t, []string{"a"}, c.Keys())
		v, _ := s.Get("a")
		assert.Equal(t, 1, v)
		assert.Zero(t, new(Store).Clone().Len())
	})

	t.Run("set nil removes", func(t *testing.T) {
		s := New()
		s.Set("k", 1)
		s.Set("k", nil)
		assert.False(t, s.Has("k"))
		assert.Zero(t, s.Len())

		s.Set("j", true)
		s.Delete("j")
		assert.False(t, s.Has("j"))
	})

	t.Run("keys are sorted", func(t *testing.T) {
		s := New()
		s.Set("b", 1)
		s.Set("a", 2)
		s.Set("c", 3)
		assert.Equal(t, []string{"a", "b", "c"}, s.Keys())

		var seen []string
		s.Range(func(k string, _ any) bool {
			seen = append(seen, k)
			return k != "b"
		})
		assert.Equal(t, []string{"a", "b"}, seen)
	})

	t.Run("typed value", func(t *testing.T) {
		s := New()
		s.Set("port", 8080)
		port, ok := Value[int](s, "port")
		require.True(t, ok)
		assert.Equal(t, 8080, port)

		_, ok = Value[string](s, "port")
		assert.False(t, ok, "type mismatch should read as absent")
	})
}

func TestStoreConcurrentAccess(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%4)
			for j := range 100 {
				s.Set(key, j)
				s.Get(key)
				s.Keys()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 4, s.Len())
}
