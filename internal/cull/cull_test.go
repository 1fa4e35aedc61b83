package cull

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type item struct {
	quitting  bool
	destroyed int
	onCull    func()
}

func (i *item) MarkQuitting() bool {
	if i.quitting {
		return false
	}

	i.quitting = true
	return true
}

func (i *item) Cull() {
	i.destroyed++
	if i.onCull != nil {
		i.onCull()
	}
}

func TestList(t *testing.T) {
	t.Run("exactly once", func(t *testing.T) {
		list := New()
		it := new(item)
		list.AddItem(it)
		list.AddItem(it)
		require.Equal(t, 1, list.Len())

		require.Equal(t, 1, list.Apply())
		require.Equal(t, 1, it.destroyed)
		require.Zero(t, list.Apply())
		require.Equal(t, 1, it.destroyed)

		// the quitting flag outlives the list entry
		list.AddItem(it)
		require.Zero(t, list.Apply())
		require.Equal(t, 1, it.destroyed)
	})

	t.Run("many", func(t *testing.T) {
		list := New()
		items := make([]*item, 10)
		for i := range items {
			items[i] = new(item)
			list.AddItem(items[i])
		}

		require.Equal(t, len(items), list.Apply())
		for _, it := range items {
			require.Equal(t, 1, it.destroyed)
		}
	})

	t.Run("culled while applying", func(t *testing.T) {
		list := New()
		second := new(item)
		first := &item{onCull: func() { list.AddItem(second) }}
		list.AddItem(first)

		require.Equal(t, 2, list.Apply())
		require.Equal(t, 1, second.destroyed)
		require.Zero(t, list.Len())
	})
}
