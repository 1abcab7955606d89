package hooks

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter_EmptyIsIdentity(t *testing.T) {
	f := NewFilter[string]()
	require.Equal(t, "admin-no-ajax", f.Apply("admin-no-ajax"))
	require.Zero(t, f.Len())
}

func TestFilter_PriorityOrder(t *testing.T) {
	f := NewFilter[string]()
	f.Add(20, func(s string) string { return s + "-late" })
	f.Add(DefaultPriority, func(s string) string { return s + "-first" })
	f.Add(DefaultPriority, func(s string) string { return s + "-second" })
	f.Add(5, func(s string) string { return strings.ToUpper(s) })

	require.Equal(t, "AJAX-first-second-late", f.Apply("ajax"))
}

func TestFilter_SliceValues(t *testing.T) {
	f := NewFilter[[]string]()
	f.Add(DefaultPriority, func(h []string) []string { return append(h, "X-Extra: 1") })

	got := f.Apply([]string{"X-Robots-Tag: noindex"})
	require.Equal(t, []string{"X-Robots-Tag: noindex", "X-Extra: 1"}, got)
}

func TestAction_EachInOrder(t *testing.T) {
	a := NewAction[func() string]()
	a.Add(11, func() string { return "b" })
	a.Add(1, func() string { return "a" })

	var got []string
	a.Each(func(fn func() string) { got = append(got, fn()) })
	require.Equal(t, []string{"a", "b"}, got)
	require.Equal(t, 2, a.Len())
}

func TestAction_CallbackMayRegister(t *testing.T) {
	a := NewAction[func()]()
	a.Add(DefaultPriority, func() {
		a.Add(DefaultPriority, func() {})
	})

	// Must not deadlock.
	a.Each(func(fn func()) { fn() })
	require.Equal(t, 2, a.Len())
}

func TestFamily_NamedDispatch(t *testing.T) {
	fam := NewFamily[func() string]()
	fam.Add("foo", DefaultPriority, func() string { return "foo" })
	fam.Add("bar", DefaultPriority, func() string { return "bar" })

	var got []string
	fam.Each("foo", func(fn func() string) { got = append(got, fn()) })
	require.Equal(t, []string{"foo"}, got)

	fam.Each("missing", func(fn func() string) { t.Fatal("unexpected call") })

	assert.True(t, fam.Has("bar"))
	assert.False(t, fam.Has("missing"))
	assert.Equal(t, []string{"bar", "foo"}, fam.Names())
}

func TestFamily_ConcurrentUse(t *testing.T) {
	fam := NewFamily[func()]()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			fam.Add("heartbeat", DefaultPriority, func() {})
		}()
		go func() {
			defer wg.Done()
			fam.Each("heartbeat", func(fn func()) { fn() })
		}()
	}
	wg.Wait()

	count := 0
	fam.Each("heartbeat", func(func()) { count++ })
	require.Equal(t, 50, count)
}
