// Package cull implements deferred destruction. Objects, which may still be referenced
// by an event handler running in the current tick, are only marked as unusable and
// get destroyed later, at a well-defined point of the event loop.
package cull

// Item is something that can be culled. MarkQuitting must atomically (in terms of the
// single event loop) set the item's quitting flag and report whether it was unset
// before, so the item gets into the list only once.
type Item interface {
	MarkQuitting() bool
	// Cull deregisters the item from the engine, closes its descriptor, removes it
	// from the owning collection and releases everything it holds.
	Cull()
}

// List is a queue of items pending destruction. It isn't safe for concurrent use.
type List struct {
	items []Item
	spare []Item
}

func New() *List {
	return new(List)
}

// AddItem schedules the item for destruction. Repeated calls for the same item are no-op.
func (l *List) AddItem(item Item) {
	if !item.MarkQuitting() {
		return
	}

	l.items = append(l.items, item)
}

// Apply destroys every scheduled item and returns how many were destroyed. Items scheduled
// by a Cull call itself are destroyed by the same Apply call.
func (l *List) Apply() (culled int) {
	for len(l.items) > 0 {
		batch := l.items
		l.items = l.spare[:0]

		for i, item := range batch {
			item.Cull()
			batch[i] = nil
			culled++
		}

		l.spare = batch[:0]
	}

	return culled
}

// Len returns the number of items pending destruction.
func (l *List) Len() int {
	return len(l.items)
}
