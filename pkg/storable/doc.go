// Package storable defines the serialization contract for values kept in a
// directory-backed storage.
//
// A storable value knows how to write itself to an io.Writer and how to
// rebuild itself from an io.Reader. The encoding is owned entirely by the
// value type; the storage only moves bytes between files and values.
//
// Ready-made implementations:
//
//   - Uint32, Int64: decimal text terminated by a newline
//   - Text, Bytes: raw file contents
//   - JSON[V]: a single JSON document
//   - YAML[V]: a single YAML document
//   - Proto[M]: deterministic protobuf wire format
//
// Every implementation must satisfy the round-trip law: restoring the bytes
// produced by Store yields an equal value. Restore must return an error on
// malformed input and must never panic.
package storable
