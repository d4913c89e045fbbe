package backup

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/dirstore-go/pkg/crypto/adaptive"
	"github.com/yndnr/dirstore-go/pkg/dirstore"
	"github.com/yndnr/dirstore-go/pkg/storable"
)

var magicBytes = []byte("DIRSTBAK")

const (
	filePrefix    = "backup-"
	fileExtension = ".dsb"
	checksumSize  = 32
	headerVersion = 1

	// Latest selects the newest readable archive in Load and Restore.
	Latest = "latest"

	DefaultRetentionCount = 5
	DefaultRetentionDays  = 7
)

var (
	ErrInvalidMagic     = errors.New("backup: invalid magic bytes")
	ErrChecksumMismatch = errors.New("backup: checksum mismatch")
	ErrNotFound         = errors.New("backup: not found")
	ErrNoBackups        = errors.New("backup: no backups available")
	ErrKeyRequired      = errors.New("backup: archive is encrypted, key required")
	ErrNotEncrypted     = errors.New("backup: expected encrypted archive")
	ErrBlockTooLarge    = errors.New("backup: block length exceeds archive size")
)

// Entries is the codec-agnostic view of a directory used for archiving.
type Entries = dirstore.Storage[storable.Bytes, *storable.Bytes]

type header struct {
	Version    int    `json:"version"`
	CreatedAt  int64  `json:"created_at"`
	Source     string `json:"source"`
	EntryCount int    `json:"entry_count"`
	Encrypted  bool   `json:"encrypted"`
}

type entry struct {
	Key  string `json:"key"`
	Data []byte `json:"data"`
}

// Config configures the backup manager.
type Config struct {
	Dir string

	RetentionCount int
	RetentionDays  int

	// Cipher seals the data block of new archives and is required to read
	// encrypted ones.
	Cipher adaptive.Cipher
	Logger *slog.Logger
}

func DefaultConfig(dir string) Config {
	return Config{
		Dir:            dir,
		RetentionCount: DefaultRetentionCount,
		RetentionDays:  DefaultRetentionDays,
	}
}

type Manager struct {
	cfg    Config
	logger *slog.Logger
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("backup: dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
		return nil, fmt.Errorf("backup: create dir: %w", err)
	}
	if cfg.RetentionCount == 0 {
		cfg.RetentionCount = DefaultRetentionCount
	}
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = DefaultRetentionDays
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Manager{cfg: cfg, logger: logger}, nil
}

// Info contains metadata about an archive.
type Info struct {
	ID         string    `json:"id" yaml:"id"`
	Source     string    `json:"source,omitempty" yaml:"source,omitempty"`
	EntryCount int       `json:"entry_count" yaml:"entry_count"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
	Size       int64     `json:"size" yaml:"size"`
	Path       string    `json:"path" yaml:"path"`
	Checksum   string    `json:"checksum,omitempty" yaml:"checksum,omitempty"`
	Encrypted  bool      `json:"encrypted" yaml:"encrypted"`
	// Corrupt is set by List when the header cannot be read.
	Corrupt bool `json:"corrupt,omitempty" yaml:"corrupt,omitempty"`
}

// Create archives the entries restored from src. opts are applied to the
// restore and should not include a cipher: sealed entry files are archived
// as they are on disk.
func (m *Manager) Create(src string, opts ...dirstore.Option) (*Info, error) {
	s, err := dirstore.Restore[storable.Bytes](src, opts...)
	if err != nil {
		return nil, fmt.Errorf("backup: read %s: %w", src, err)
	}
	return m.CreateFrom(src, s)
}

// CreateFrom archives an already restored storage. source is recorded in
// the header only.
func (m *Manager) CreateFrom(source string, s *Entries) (*Info, error) {
	now := time.Now()
	id := ulid.Make().String()

	tempPath := filepath.Join(m.cfg.Dir, "."+id+".tmp")
	file, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, fmt.Errorf("backup: create temp file: %w", err)
	}
	defer os.Remove(tempPath)

	hash := sha256.New()
	writer := io.MultiWriter(file, hash)

	if _, err := writer.Write(magicBytes); err != nil {
		file.Close()
		return nil, err
	}

	hdr := header{
		Version:    headerVersion,
		CreatedAt:  now.UnixMilli(),
		Source:     source,
		EntryCount: s.Len(),
		Encrypted:  m.cfg.Cipher != nil,
	}
	hdrJSON, err := json.Marshal(hdr)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("backup: marshal header: %w", err)
	}
	if err := writeBlock(writer, hdrJSON); err != nil {
		file.Close()
		return nil, fmt.Errorf("backup: write header: %w", err)
	}

	encoded := make([]entry, 0, s.Len())
	s.Range(func(key string, v storable.Bytes) bool {
		encoded = append(encoded, entry{Key: key, Data: v})
		return true
	})
	data, err := json.Marshal(encoded)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("backup: marshal entries: %w", err)
	}
	if m.cfg.Cipher != nil {
		data, err = m.cfg.Cipher.Encrypt(data, hdrJSON)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("backup: encrypt: %w", err)
		}
	}
	if err := writeBlock(writer, data); err != nil {
		file.Close()
		return nil, fmt.Errorf("backup: write data: %w", err)
	}

	// Checksum trailer, not itself hashed.
	sum := hash.Sum(nil)
	if _, err := file.Write(sum); err != nil {
		file.Close()
		return nil, fmt.Errorf("backup: write checksum: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return nil, fmt.Errorf("backup: sync: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("backup: close: %w", err)
	}

	stat, err := os.Stat(tempPath)
	if err != nil {
		return nil, err
	}

	finalPath := m.pathOf(id)
	if err := os.Rename(tempPath, finalPath); err != nil {
		return nil, fmt.Errorf("backup: rename: %w", err)
	}

	m.logger.Info("backup created",
		"id", id,
		"source", source,
		"entries", hdr.EntryCount,
		"encrypted", hdr.Encrypted,
	)

	return &Info{
		ID:         id,
		Source:     source,
		EntryCount: hdr.EntryCount,
		CreatedAt:  time.UnixMilli(hdr.CreatedAt),
		Size:       stat.Size(),
		Path:       finalPath,
		Checksum:   hex.EncodeToString(sum),
		Encrypted:  hdr.Encrypted,
	}, nil
}

// Load reads an archive by ID. With Latest it tries archives newest first,
// skipping ones whose checksum or magic is wrong.
func (m *Manager) Load(id string) (*Entries, *Info, error) {
	if id != Latest {
		path := m.pathOf(id)
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
			}
			return nil, nil, err
		}
		return m.loadFile(path)
	}

	infos, err := m.List()
	if err != nil {
		return nil, nil, err
	}
	for i := len(infos) - 1; i >= 0; i-- {
		s, info, err := m.loadFile(infos[i].Path)
		if err == nil {
			return s, info, nil
		}
		if errors.Is(err, ErrChecksumMismatch) || errors.Is(err, ErrInvalidMagic) {
			m.logger.Warn("skipping corrupt backup", "id", infos[i].ID, "error", err)
			continue
		}
		return nil, nil, err
	}
	return nil, nil, ErrNoBackups
}

// Restore writes the entries of an archive into dst. With prune, files in
// dst that are not in the archive are removed.
func (m *Manager) Restore(id, dst string, prune bool, opts ...dirstore.Option) (*Info, error) {
	s, info, err := m.Load(id)
	if err != nil {
		return nil, err
	}
	out := dirstore.New[storable.Bytes](nil, opts...)
	s.Range(func(key string, v storable.Bytes) bool {
		out.Insert(key, v)
		return true
	})

	if err := os.MkdirAll(dst, 0750); err != nil {
		return nil, fmt.Errorf("backup: create %s: %w", dst, err)
	}
	if err := out.Store(dst); err != nil {
		return nil, fmt.Errorf("backup: write %s: %w", dst, err)
	}
	if prune {
		removed, err := out.Prune(dst)
		if err != nil {
			return nil, fmt.Errorf("backup: prune %s: %w", dst, err)
		}
		if len(removed) > 0 {
			m.logger.Info("pruned stale entries", "dir", dst, "removed", removed)
		}
	}

	m.logger.Info("backup restored", "id", info.ID, "dir", dst, "entries", info.EntryCount)
	return info, nil
}

func (m *Manager) loadFile(path string) (*Entries, *Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	if stat.Size() < int64(len(magicBytes))+checksumSize {
		return nil, nil, ErrChecksumMismatch
	}

	dataLen := stat.Size() - checksumSize
	expected := make([]byte, checksumSize)
	if _, err := io.ReadFull(io.NewSectionReader(f, dataLen, checksumSize), expected); err != nil {
		return nil, nil, err
	}
	h := sha256.New()
	if _, err := io.CopyN(h, io.NewSectionReader(f, 0, dataLen), dataLen); err != nil {
		return nil, nil, err
	}
	if !bytes.Equal(h.Sum(nil), expected) {
		return nil, nil, ErrChecksumMismatch
	}

	br := bufio.NewReader(io.NewSectionReader(f, 0, dataLen))
	hdr, hdrJSON, err := readHeader(br, dataLen)
	if err != nil {
		return nil, nil, err
	}

	data, err := readBlock(br, dataLen)
	if err != nil {
		return nil, nil, fmt.Errorf("backup: read data: %w", err)
	}

	switch {
	case hdr.Encrypted && m.cfg.Cipher == nil:
		return nil, nil, ErrKeyRequired
	case hdr.Encrypted:
		data, err = m.cfg.Cipher.Decrypt(data, hdrJSON)
		if err != nil {
			return nil, nil, fmt.Errorf("backup: decrypt: %w", err)
		}
	case m.cfg.Cipher != nil:
		return nil, nil, ErrNotEncrypted
	}

	var decoded []entry
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, nil, fmt.Errorf("backup: unmarshal entries: %w", err)
	}
	s := dirstore.New[storable.Bytes](nil)
	for _, e := range decoded {
		s.Insert(e.Key, e.Data)
	}

	info := infoFromHeader(path, hdr)
	info.Size = stat.Size()
	info.Checksum = hex.EncodeToString(expected)
	return s, info, nil
}

// List lists archives oldest first. Headers are read but checksums are not
// verified.
func (m *Manager) List() ([]*Info, error) {
	entries, err := os.ReadDir(m.cfg.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileExtension) {
			paths = append(paths, filepath.Join(m.cfg.Dir, name))
		}
	}
	sort.Strings(paths)

	infos := make([]*Info, 0, len(paths))
	for _, p := range paths {
		stat, err := os.Stat(p)
		if err != nil {
			continue
		}
		info, err := m.peek(p)
		if err != nil {
			info = &Info{ID: idOf(p), Path: p, Corrupt: true}
		}
		info.Size = stat.Size()
		infos = append(infos, info)
	}
	return infos, nil
}

func (m *Manager) peek(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	hdr, _, err := readHeader(bufio.NewReader(f), stat.Size())
	if err != nil {
		return nil, err
	}
	return infoFromHeader(path, hdr), nil
}

// Prune applies the retention policy and returns the IDs it removed.
// The newest archive is always kept.
func (m *Manager) Prune() ([]string, error) {
	infos, err := m.List()
	if err != nil {
		return nil, err
	}
	if len(infos) <= 1 {
		return nil, nil
	}

	keep := make(map[string]struct{}, len(infos))

	if m.cfg.RetentionCount > 0 {
		start := max(len(infos)-m.cfg.RetentionCount, 0)
		for _, info := range infos[start:] {
			keep[info.Path] = struct{}{}
		}
	}

	if m.cfg.RetentionDays > 0 {
		cutoff := time.Now().Add(-time.Duration(m.cfg.RetentionDays) * 24 * time.Hour)
		for _, info := range infos {
			st, err := os.Stat(info.Path)
			if err != nil {
				continue
			}
			if st.ModTime().After(cutoff) {
				keep[info.Path] = struct{}{}
			}
		}
	}

	keep[infos[len(infos)-1].Path] = struct{}{}

	var removed []string
	for _, info := range infos {
		if _, ok := keep[info.Path]; ok {
			continue
		}
		if err := os.Remove(info.Path); err != nil {
			m.logger.Warn("failed to remove backup", "id", info.ID, "error", err)
			continue
		}
		removed = append(removed, info.ID)
	}
	if len(removed) > 0 {
		m.logger.Info("pruned backups", "removed", len(removed))
	}
	return removed, nil
}

func (m *Manager) pathOf(id string) string {
	return filepath.Join(m.cfg.Dir, filePrefix+id+fileExtension)
}

func idOf(path string) string {
	return strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), filePrefix), fileExtension)
}

func infoFromHeader(path string, hdr header) *Info {
	return &Info{
		ID:         idOf(path),
		Source:     hdr.Source,
		EntryCount: hdr.EntryCount,
		CreatedAt:  time.UnixMilli(hdr.CreatedAt),
		Path:       path,
		Encrypted:  hdr.Encrypted,
	}
}

// readHeader reads the magic and header block. limit bounds the block
// length so a corrupt prefix cannot force a large allocation.
func readHeader(r io.Reader, limit int64) (header, []byte, error) {
	var hdr header

	magic := make([]byte, len(magicBytes))
	if _, err := io.ReadFull(r, magic); err != nil {
		return hdr, nil, err
	}
	if !bytes.Equal(magic, magicBytes) {
		return hdr, nil, ErrInvalidMagic
	}

	hdrJSON, err := readBlock(r, limit)
	if err != nil {
		return hdr, nil, fmt.Errorf("backup: read header: %w", err)
	}
	if len(hdrJSON) == 0 {
		return hdr, nil, fmt.Errorf("backup: empty header")
	}
	if err := json.Unmarshal(hdrJSON, &hdr); err != nil {
		return hdr, nil, fmt.Errorf("backup: unmarshal header: %w", err)
	}
	if hdr.Version != headerVersion {
		return hdr, nil, fmt.Errorf("backup: unsupported version %d", hdr.Version)
	}
	return hdr, hdrJSON, nil
}

func writeBlock(w io.Writer, b []byte) error {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(b)))
	if _, err := w.Write(n[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBlock(r io.Reader, limit int64) ([]byte, error) {
	var n [4]byte
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(n[:])
	if int64(size) > limit {
		return nil, ErrBlockTooLarge
	}
	b := make([]byte, size)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}
