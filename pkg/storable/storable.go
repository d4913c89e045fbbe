package storable

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
)

// Storable is implemented by values that serialize themselves to a byte
// stream and rebuild themselves from one.
type Storable interface {
	// Store writes the receiver to w.
	Store(w io.Writer) error

	// Restore replaces the receiver with the value decoded from r.
	// It is called on a pointer to a zero value.
	Restore(r io.Reader) error
}

// Ptr constrains P to be a pointer to T that implements Storable.
//
// It lets generic containers allocate a zero T and restore into it:
//
//	var v T
//	err := P(&v).Restore(r)
type Ptr[T any] interface {
	*T
	Storable
}

// Uint32 stores an unsigned 32-bit integer as decimal text.
type Uint32 uint32

// Store writes the value followed by a newline.
func (u *Uint32) Store(w io.Writer) error {
	_, err := io.WriteString(w, strconv.FormatUint(uint64(*u), 10)+"\n")
	return err
}

// Restore parses decimal text. Surrounding whitespace is ignored.
func (u *Uint32) Restore(r io.Reader) error {
	text, err := readTrimmed(r)
	if err != nil {
		return err
	}
	n, err := strconv.ParseUint(text, 10, 32)
	if err != nil {
		return fmt.Errorf("parse uint32: %w", err)
	}
	*u = Uint32(n)
	return nil
}

// Int64 stores a signed 64-bit integer as decimal text.
type Int64 int64

// Store writes the value followed by a newline.
func (i *Int64) Store(w io.Writer) error {
	_, err := io.WriteString(w, strconv.FormatInt(int64(*i), 10)+"\n")
	return err
}

// Restore parses decimal text. Surrounding whitespace is ignored.
func (i *Int64) Restore(r io.Reader) error {
	text, err := readTrimmed(r)
	if err != nil {
		return err
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return fmt.Errorf("parse int64: %w", err)
	}
	*i = Int64(n)
	return nil
}

// Text stores a string verbatim.
type Text string

// Store writes the string as-is.
func (t *Text) Store(w io.Writer) error {
	_, err := io.WriteString(w, string(*t))
	return err
}

// Restore reads the whole stream.
func (t *Text) Restore(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	*t = Text(data)
	return nil
}

// Bytes stores raw bytes verbatim.
type Bytes []byte

// Store writes the bytes as-is.
func (b *Bytes) Store(w io.Writer) error {
	_, err := w.Write(*b)
	return err
}

// Restore reads the whole stream.
func (b *Bytes) Restore(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	*b = data
	return nil
}

func readTrimmed(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(bytes.TrimSpace(data)), nil
}
