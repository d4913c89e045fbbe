package command

import (
	"bytes"
	"fmt"

	"github.com/yndnr/dirstore-go/pkg/dirstore"
	"github.com/yndnr/dirstore-go/pkg/storable"
)

// codec opens storages of one value type without exposing its type parameters.
type codec interface {
	Restore(dir string, opts []dirstore.Option) (entrySet, error)
	Empty(opts []dirstore.Option) entrySet
}

// entrySet is the view of a dirstore.Storage the commands need.
type entrySet interface {
	Keys() []string
	Len() int
	// Encoded returns the value of key as the codec writes it to disk. A
	// missing key is a dirstore not-found error.
	Encoded(key string) ([]byte, error)
	// Value returns the decoded value of key for structured output.
	Value(key string) (any, bool)
	// Parse decodes raw with the codec and inserts the result under key.
	Parse(key string, raw []byte) error
	Delete(key string) bool
	Store(dir string) error
	StoreSingle(dir, key string) error
	Prune(dir string) ([]string, error)
	// CopyTo inserts every entry into dst, which must use the same codec.
	CopyTo(dst entrySet)
}

var codecs = map[string]codec{
	"text":   typedCodec[storable.Text, *storable.Text]{},
	"bytes":  typedCodec[storable.Bytes, *storable.Bytes]{},
	"uint32": typedCodec[storable.Uint32, *storable.Uint32]{},
	"int64":  typedCodec[storable.Int64, *storable.Int64]{},
	"json":   typedCodec[storable.JSON[any], *storable.JSON[any]]{},
	"yaml":   typedCodec[storable.YAML[any], *storable.YAML[any]]{},
}

func lookupCodec(name string) (codec, error) {
	c, ok := codecs[name]
	if !ok {
		return nil, fmt.Errorf("unknown codec %q", name)
	}
	return c, nil
}

type typedCodec[T any, P storable.Ptr[T]] struct{}

func (typedCodec[T, P]) Restore(dir string, opts []dirstore.Option) (entrySet, error) {
	s, err := dirstore.Restore[T, P](dir, opts...)
	if err != nil {
		return nil, err
	}
	return &typedSet[T, P]{s: s}, nil
}

func (typedCodec[T, P]) Empty(opts []dirstore.Option) entrySet {
	return &typedSet[T, P]{s: dirstore.New[T, P](nil, opts...)}
}

type typedSet[T any, P storable.Ptr[T]] struct {
	s *dirstore.Storage[T, P]
}

func (t *typedSet[T, P]) Keys() []string { return t.s.Keys() }
func (t *typedSet[T, P]) Len() int       { return t.s.Len() }

func (t *typedSet[T, P]) Encoded(key string) ([]byte, error) {
	v, ok := t.s.GetMut(key)
	if !ok {
		return nil, &dirstore.Error{Kind: dirstore.KindNotFound, Key: key}
	}
	var buf bytes.Buffer
	if err := P(v).Store(&buf); err != nil {
		return nil, &dirstore.Error{Kind: dirstore.KindStore, Key: key, Err: err}
	}
	return buf.Bytes(), nil
}

func (t *typedSet[T, P]) Value(key string) (any, bool) {
	v, ok := t.s.GetMut(key)
	if !ok {
		return nil, false
	}
	return plain(P(v)), true
}

func (t *typedSet[T, P]) Parse(key string, raw []byte) error {
	var v T
	if err := P(&v).Restore(bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("invalid value for %q: %w", key, err)
	}
	t.s.Insert(key, v)
	return nil
}

func (t *typedSet[T, P]) Delete(key string) bool {
	_, ok := t.s.Delete(key)
	return ok
}

func (t *typedSet[T, P]) Store(dir string) error             { return t.s.Store(dir) }
func (t *typedSet[T, P]) StoreSingle(dir, key string) error  { return t.s.StoreSingle(dir, key) }
func (t *typedSet[T, P]) Prune(dir string) ([]string, error) { return t.s.Prune(dir) }

func (t *typedSet[T, P]) CopyTo(dst entrySet) {
	out := dst.(*typedSet[T, P])
	t.s.Range(func(key string, v T) bool {
		out.s.Insert(key, v)
		return true
	})
}

// plain unwraps codec wrapper types for JSON and YAML output.
func plain(v storable.Storable) any {
	switch x := v.(type) {
	case *storable.Text:
		return string(*x)
	case *storable.Bytes:
		return []byte(*x)
	case *storable.Uint32:
		return uint32(*x)
	case *storable.Int64:
		return int64(*x)
	case *storable.JSON[any]:
		return x.V
	case *storable.YAML[any]:
		return x.V
	default:
		return v
	}
}
