package buffer

import "sync"

// Buffer is a single-slot container for exchanging data between goroutines.
// The last Set wins; nothing is queued. Readers poll IsDirty or call Get.
type Buffer[T any] struct {
	mu       sync.Mutex
	contents T
	isDirty  bool
}

// NewBuffer returns an empty, clean buffer.
func NewBuffer[T any]() *Buffer[T] {
	return &Buffer[T]{}
}

// NewBufferWith returns a buffer holding v. The buffer starts dirty so the
// first reader observes the initial contents.
func NewBufferWith[T any](v T) *Buffer[T] {
	return &Buffer[T]{contents: v, isDirty: true}
}

// Set stores v and marks the buffer dirty.
func (b *Buffer[T]) Set(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.contents = v
	b.isDirty = true
}

// Update replaces the contents with fn(current) under the lock and marks the
// buffer dirty. Concurrent appends through Update never lose data.
func (b *Buffer[T]) Update(fn func(T) T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.contents = fn(b.contents)
	b.isDirty = true
}

// Get returns the current contents and clears the dirty flag.
func (b *Buffer[T]) Get() T {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.isDirty = false
	return b.contents
}

// Peek returns the current contents without touching the dirty flag.
func (b *Buffer[T]) Peek() T {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.contents
}

// IsDirty reports whether a Set happened since the last Get.
func (b *Buffer[T]) IsDirty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.isDirty
}

// Reset clears the contents to the zero value and the dirty flag.
func (b *Buffer[T]) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	var zero T
	b.contents = zero
	b.isDirty = false
}
