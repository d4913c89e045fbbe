package dirstore

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/dirstore-go/pkg/storable"
)

const tempSuffix = ".tmp"

// Restore builds a storage from the regular files in dir.
//
// A missing path, or a path that is not a directory, yields an empty
// storage. Hidden files and anything that is not a regular file are
// skipped. Every other file must restore cleanly or the call fails with
// an error naming it.
func Restore[T any, P storable.Ptr[T]](dir string, opts ...Option) (*Storage[T, P], error) {
	s := New[T, P](nil, opts...)
	start := time.Now()
	entries, err := s.restoreDir(dir)
	s.cfg.observer.ObserveRestore(dir, len(entries), time.Since(start), err)
	if err != nil {
		return nil, err
	}
	s.entries = entries
	s.cfg.logger.Debug("restored directory",
		"dir", dir,
		"entries", len(entries),
		"elapsed", time.Since(start),
	)
	return s, nil
}

func (s *Storage[T, P]) restoreDir(dir string) (map[string]*T, error) {
	cfg := s.options()
	entries := make(map[string]*T)

	info, err := os.Stat(dir)
	if err != nil {
		// ENOTDIR: a parent component is a regular file, so dir cannot exist.
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
			cfg.logger.Debug("directory does not exist, restoring empty storage", "dir", dir)
			return entries, nil
		}
		return nil, &Error{Kind: KindIO, Path: dir, Err: err}
	}
	if !info.IsDir() {
		cfg.logger.Debug("path is not a directory, restoring empty storage", "dir", dir)
		return entries, nil
	}

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &Error{Kind: KindIO, Path: dir, Err: err}
	}

	for _, e := range dirEntries {
		name := e.Name()
		if cfg.hidden(name) {
			cfg.logger.Debug("skipping hidden entry", "dir", dir, "name", name)
			continue
		}
		path := filepath.Join(dir, name)
		regular, err := isRegular(e, path)
		if err != nil {
			return nil, &Error{Kind: KindOS, Key: name, Path: path, Err: err}
		}
		if !regular {
			cfg.logger.Debug("skipping non-regular entry", "dir", dir, "name", name)
			continue
		}

		v, err := s.restoreFile(path, name)
		if err != nil {
			return nil, err
		}
		entries[name] = v
	}
	return entries, nil
}

func (s *Storage[T, P]) restoreFile(path, key string) (*T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &Error{Kind: KindOS, Key: key, Path: path, Err: err}
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if c := s.options().cipher; c != nil {
		sealed, err := io.ReadAll(r)
		if err != nil {
			return nil, &Error{Kind: KindIO, Key: key, Path: path, Err: err}
		}
		plain, err := c.Decrypt(sealed, []byte(key))
		if err != nil {
			return nil, &Error{Kind: KindRestore, Key: key, Path: path, Err: err}
		}
		r = bytes.NewReader(plain)
	}

	var v T
	if err := P(&v).Restore(r); err != nil {
		return nil, &Error{Kind: KindRestore, Key: key, Path: path, Err: err}
	}
	return &v, nil
}

// Store writes every entry to dir, one file per key, in key order. It stops
// at the first failure; files already written are left in place.
func (s *Storage[T, P]) Store(dir string) error {
	cfg := s.options()
	start := time.Now()
	written := 0
	for _, key := range s.Keys() {
		if err := s.storeSingle(dir, key); err != nil {
			cfg.observer.ObserveStore(dir, written, time.Since(start), err)
			return err
		}
		written++
	}
	cfg.observer.ObserveStore(dir, written, time.Since(start), nil)
	cfg.logger.Debug("stored directory",
		"dir", dir,
		"entries", written,
		"elapsed", time.Since(start),
	)
	return nil
}

// StoreSingle writes the entry for key to dir/key.
func (s *Storage[T, P]) StoreSingle(dir, key string) error {
	cfg := s.options()
	start := time.Now()
	err := s.storeSingle(dir, key)
	written := 1
	if err != nil {
		written = 0
	}
	cfg.observer.ObserveStore(dir, written, time.Since(start), err)
	return err
}

func (s *Storage[T, P]) storeSingle(dir, key string) error {
	cfg := s.options()
	v, ok := s.entries[key]
	if !ok {
		return &Error{Kind: KindNotFound, Key: key}
	}
	if !cfg.validKey(key) {
		return &Error{Kind: KindInvalidKey, Key: key}
	}

	path := filepath.Join(dir, key)
	if cfg.atomic {
		return s.writeAtomic(dir, path, key, v)
	}
	return s.writeInPlace(path, key, v)
}

func (s *Storage[T, P]) writeInPlace(path, key string, v *T) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, s.options().fileMode)
	if err != nil {
		return &Error{Kind: KindOS, Key: key, Path: path, Err: err}
	}
	if err := s.encode(f, path, key, v); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return &Error{Kind: KindIO, Key: key, Path: path, Err: err}
	}
	return nil
}

func (s *Storage[T, P]) writeAtomic(dir, path, key string, v *T) error {
	cfg := s.options()
	prefix := cfg.hiddenPrefix
	if prefix == "" {
		prefix = DefaultHiddenPrefix
	}
	tmp := filepath.Join(dir, prefix+key+"."+ulid.Make().String()+tempSuffix)

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, cfg.fileMode)
	if err != nil {
		return &Error{Kind: KindOS, Key: key, Path: tmp, Err: err}
	}
	defer os.Remove(tmp)

	if err := s.encode(f, path, key, v); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return &Error{Kind: KindIO, Key: key, Path: tmp, Err: err}
	}
	if err := f.Close(); err != nil {
		return &Error{Kind: KindIO, Key: key, Path: tmp, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		return &Error{Kind: KindIO, Key: key, Path: path, Err: err}
	}
	return nil
}

// encode serializes v into w, sealing it first when a cipher is set.
// path is the final file path reported in errors.
func (s *Storage[T, P]) encode(w io.Writer, path, key string, v *T) error {
	c := s.options().cipher
	if c == nil {
		bw := bufio.NewWriter(w)
		if err := P(v).Store(bw); err != nil {
			return &Error{Kind: KindStore, Key: key, Path: path, Err: err}
		}
		if err := bw.Flush(); err != nil {
			return &Error{Kind: KindIO, Key: key, Path: path, Err: err}
		}
		return nil
	}

	var buf bytes.Buffer
	if err := P(v).Store(&buf); err != nil {
		return &Error{Kind: KindStore, Key: key, Path: path, Err: err}
	}
	sealed, err := c.Encrypt(buf.Bytes(), []byte(key))
	if err != nil {
		return &Error{Kind: KindStore, Key: key, Path: path, Err: err}
	}
	if _, err := w.Write(sealed); err != nil {
		return &Error{Kind: KindIO, Key: key, Path: path, Err: err}
	}
	return nil
}

// Prune removes regular, non-hidden files in dir whose names are not keys
// of the storage. It returns the removed names in directory order.
func (s *Storage[T, P]) Prune(dir string) ([]string, error) {
	cfg := s.options()
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &Error{Kind: KindIO, Path: dir, Err: err}
	}

	var removed []string
	for _, e := range dirEntries {
		name := e.Name()
		if cfg.hidden(name) {
			continue
		}
		if _, ok := s.entries[name]; ok {
			continue
		}
		path := filepath.Join(dir, name)
		regular, err := isRegular(e, path)
		if err != nil || !regular {
			continue
		}
		if err := os.Remove(path); err != nil {
			return removed, &Error{Kind: KindIO, Key: name, Path: path, Err: err}
		}
		cfg.logger.Debug("pruned stale entry", "dir", dir, "name", name)
		removed = append(removed, name)
	}
	return removed, nil
}

func (o *options) hidden(name string) bool {
	return o.hiddenPrefix != "" && strings.HasPrefix(name, o.hiddenPrefix)
}

// validKey reports whether key maps to a file directly inside the storage
// directory and would be picked up again by Restore.
func (o *options) validKey(key string) bool {
	if key == "" || key == "." || key == ".." {
		return false
	}
	if strings.ContainsRune(key, '/') || strings.ContainsRune(key, filepath.Separator) || strings.ContainsRune(key, 0) {
		return false
	}
	return !o.hidden(key)
}

// isRegular resolves symlinks and reports whether the entry is a regular
// file.
func isRegular(e fs.DirEntry, path string) (bool, error) {
	if e.Type()&fs.ModeSymlink != 0 {
		info, err := os.Stat(path)
		if err != nil {
			return false, err
		}
		return info.Mode().IsRegular(), nil
	}
	return e.Type().IsRegular(), nil
}
