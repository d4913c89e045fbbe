package dirstore

import (
	"sort"

	"github.com/yndnr/dirstore-go/pkg/storable"
)

// Storage maps string keys to values of T. Each key is persisted as one
// file named after it.
//
// The zero value is an empty storage with default options.
type Storage[T any, P storable.Ptr[T]] struct {
	entries map[string]*T
	cfg     *options
}

// New creates a storage holding copies of entries. A nil map gives an empty
// storage.
func New[T any, P storable.Ptr[T]](entries map[string]T, opts ...Option) *Storage[T, P] {
	s := &Storage[T, P]{
		entries: make(map[string]*T, len(entries)),
		cfg:     buildOptions(opts),
	}
	for k, v := range entries {
		val := v
		s.entries[k] = &val
	}
	return s
}

func (s *Storage[T, P]) options() *options {
	if s.cfg == nil {
		s.cfg = defaultOptions()
	}
	return s.cfg
}

// Get returns a copy of the value stored under key.
func (s *Storage[T, P]) Get(key string) (T, bool) {
	if v, ok := s.entries[key]; ok {
		return *v, true
	}
	var zero T
	return zero, false
}

// GetMut returns the stored value itself. Changes through the pointer are
// visible to later Get and Store calls.
func (s *Storage[T, P]) GetMut(key string) (*T, bool) {
	v, ok := s.entries[key]
	return v, ok
}

// ContainsKey reports whether key is present.
func (s *Storage[T, P]) ContainsKey(key string) bool {
	_, ok := s.entries[key]
	return ok
}

// Insert stores a copy of v under key and returns the previous value, if
// any.
func (s *Storage[T, P]) Insert(key string, v T) (T, bool) {
	if s.entries == nil {
		s.entries = make(map[string]*T)
	}
	prev, had := s.entries[key]
	s.entries[key] = &v
	if had {
		return *prev, true
	}
	var zero T
	return zero, false
}

// Delete removes key from memory and returns the removed value. The file
// on disk is left alone; see Prune.
func (s *Storage[T, P]) Delete(key string) (T, bool) {
	v, ok := s.entries[key]
	if !ok {
		var zero T
		return zero, false
	}
	delete(s.entries, key)
	return *v, true
}

// Len returns the number of entries.
func (s *Storage[T, P]) Len() int {
	return len(s.entries)
}

// Keys returns all keys in sorted order.
func (s *Storage[T, P]) Keys() []string {
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Range calls fn for every entry in key order until fn returns false.
func (s *Storage[T, P]) Range(fn func(key string, v T) bool) {
	for _, k := range s.Keys() {
		if !fn(k, *s.entries[k]) {
			return
		}
	}
}
