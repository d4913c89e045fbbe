package storable

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/proto"
	"gopkg.in/yaml.v3"
)

var (
	ErrTrailingData = errors.New("storable: trailing data after document")
	ErrEmpty        = errors.New("storable: empty document")
)

// JSON stores V as a single JSON document.
type JSON[V any] struct {
	V V
}

// Store encodes the value followed by a newline.
func (j *JSON[V]) Store(w io.Writer) error {
	if err := json.NewEncoder(w).Encode(j.V); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

// Restore decodes exactly one JSON document.
func (j *JSON[V]) Restore(r io.Reader) error {
	dec := json.NewDecoder(r)
	if err := dec.Decode(&j.V); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmpty
		}
		return fmt.Errorf("decode json: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return ErrTrailingData
	}
	return nil
}

// YAML stores V as a single YAML document.
type YAML[V any] struct {
	V V
}

// Store encodes the value with two-space indentation.
func (y *YAML[V]) Store(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(y.V); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

// Restore decodes exactly one YAML document.
func (y *YAML[V]) Restore(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&y.V); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmpty
		}
		return fmt.Errorf("decode yaml: %w", err)
	}
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		if err != nil {
			return fmt.Errorf("decode yaml: %w", err)
		}
		return ErrTrailingData
	}
	return nil
}

// Proto stores a protobuf message in wire format.
//
// Marshaling is deterministic so storing the same message twice produces
// identical files.
type Proto[M proto.Message] struct {
	Msg M
}

// Store marshals the message.
func (p *Proto[M]) Store(w io.Writer) error {
	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(p.Msg)
	if err != nil {
		return fmt.Errorf("marshal proto: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// Restore unmarshals the whole stream into a fresh message.
func (p *Proto[M]) Restore(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	var zero M
	msg, ok := zero.ProtoReflect().Type().New().Interface().(M)
	if !ok {
		return fmt.Errorf("storable: cannot allocate %T", zero)
	}
	if err := proto.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("unmarshal proto: %w", err)
	}
	p.Msg = msg
	return nil
}
