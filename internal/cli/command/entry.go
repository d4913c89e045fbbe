package command

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spaolacci/murmur3"
	"github.com/urfave/cli/v2"

	"github.com/yndnr/dirstore-go/internal/cli/output"
	"github.com/yndnr/dirstore-go/pkg/dirstore"
)

// entryInfo is one row of `dirstore ls`.
type entryInfo struct {
	Key    string `json:"key" yaml:"key"`
	Size   int    `json:"size" yaml:"size"`
	Digest string `json:"digest" yaml:"digest"`
}

// digest is the murmur3 x64 128-bit hash of an encoded value.
func digest(b []byte) string {
	h1, h2 := murmur3.Sum128(b)
	var sum [16]byte
	for i := range 8 {
		sum[i] = byte(h1 >> (56 - 8*i))
		sum[8+i] = byte(h2 >> (56 - 8*i))
	}
	return hex.EncodeToString(sum[:])
}

// ListCommand returns the ls command.
func ListCommand() *cli.Command {
	return &cli.Command{
		Name:    "ls",
		Aliases: []string{"list"},
		Usage:   "List entries with their encoded size and digest",
		Action:  listEntries,
	}
}

func listEntries(c *cli.Context) error {
	e := envFrom(c)
	set, err := e.codec.Restore(e.cfg.Dir, e.dirOptions())
	if err != nil {
		return err
	}

	rows, err := listRows(set)
	if err != nil {
		return err
	}
	return e.render(rows)
}

func listRows(set entrySet) ([]entryInfo, error) {
	rows := make([]entryInfo, 0, set.Len())
	for _, key := range set.Keys() {
		enc, err := set.Encoded(key)
		if err != nil {
			return nil, err
		}
		rows = append(rows, entryInfo{Key: key, Size: len(enc), Digest: digest(enc)})
	}
	return rows, nil
}

// GetCommand returns the get command.
func GetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Print one entry",
		ArgsUsage: "KEY",
		Action:    getEntry,
	}
}

func getEntry(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: dirstore get KEY", 2)
	}
	key := c.Args().First()

	e := envFrom(c)
	set, err := e.codec.Restore(e.cfg.Dir, e.dirOptions())
	if err != nil {
		return err
	}

	if e.format == output.FormatTable {
		enc, err := set.Encoded(key)
		if err != nil {
			return err
		}
		_, err = e.out.Write(enc)
		return err
	}

	v, ok := set.Value(key)
	if !ok {
		return &dirstore.Error{Kind: dirstore.KindNotFound, Key: key}
	}
	return e.render(map[string]any{"key": key, "value": v})
}

// PutCommand returns the put command.
func PutCommand() *cli.Command {
	return &cli.Command{
		Name:      "put",
		Usage:     "Write one entry, reading the value from stdin when omitted",
		ArgsUsage: "KEY [VALUE]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "mkdir",
				Usage: "Create the storage directory if missing",
				Value: true,
			},
		},
		Action: putEntry,
	}
}

func putEntry(c *cli.Context) error {
	if c.NArg() < 1 || c.NArg() > 2 {
		return cli.Exit("usage: dirstore put KEY [VALUE]", 2)
	}
	key := c.Args().Get(0)

	e := envFrom(c)
	var raw []byte
	if c.NArg() == 2 {
		raw = []byte(c.Args().Get(1))
	} else {
		var err error
		if raw, err = io.ReadAll(e.in); err != nil {
			return fmt.Errorf("read value: %w", err)
		}
	}

	set := e.codec.Empty(e.dirOptions())
	if err := set.Parse(key, raw); err != nil {
		return err
	}

	if c.Bool("mkdir") {
		if err := os.MkdirAll(e.cfg.Dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", e.cfg.Dir, err)
		}
	}
	if err := set.StoreSingle(e.cfg.Dir, key); err != nil {
		return err
	}
	e.log.Info("entry written", "dir", e.cfg.Dir, "key", key)
	return nil
}

// RemoveCommand returns the rm command.
func RemoveCommand() *cli.Command {
	return &cli.Command{
		Name:      "rm",
		Usage:     "Remove one entry",
		ArgsUsage: "KEY",
		Action:    removeEntry,
	}
}

func removeEntry(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: dirstore rm KEY", 2)
	}
	key := c.Args().First()

	e := envFrom(c)
	set, err := e.codec.Restore(e.cfg.Dir, e.dirOptions())
	if err != nil {
		return err
	}
	if !set.Delete(key) {
		return &dirstore.Error{Kind: dirstore.KindNotFound, Key: key}
	}

	removed, err := set.Prune(e.cfg.Dir)
	if err != nil {
		return err
	}
	e.log.Info("entry removed", "dir", e.cfg.Dir, "key", key, "files", removed)
	return nil
}

// verifyResult is the output of `dirstore verify`.
type verifyResult struct {
	Dir     string `json:"dir" yaml:"dir"`
	OK      bool   `json:"ok" yaml:"ok"`
	Entries int    `json:"entries" yaml:"entries"`
	Kind    string `json:"kind,omitempty" yaml:"kind,omitempty"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

// VerifyCommand returns the verify command.
func VerifyCommand() *cli.Command {
	return &cli.Command{
		Name:   "verify",
		Usage:  "Check that every entry decodes; exit 1 naming the first bad file",
		Action: verifyDir,
	}
}

func verifyDir(c *cli.Context) error {
	e := envFrom(c)
	res := verifyResult{Dir: e.cfg.Dir}

	set, err := e.codec.Restore(e.cfg.Dir, e.dirOptions())
	if err == nil {
		res.OK = true
		res.Entries = set.Len()
		return e.render(res)
	}

	res.Error = err.Error()
	var serr *dirstore.Error
	if errors.As(err, &serr) {
		res.Kind = serr.Kind.String()
		res.Path = serr.Path
	}
	if rerr := e.render(res); rerr != nil {
		return rerr
	}
	return cli.Exit("", 1)
}

// copyResult is the output of `dirstore copy`.
type copyResult struct {
	Source      string   `json:"source" yaml:"source"`
	Destination string   `json:"destination" yaml:"destination"`
	Entries     int      `json:"entries" yaml:"entries"`
	Pruned      []string `json:"pruned,omitempty" yaml:"pruned,omitempty"`
}

// CopyCommand returns the copy command.
func CopyCommand() *cli.Command {
	return &cli.Command{
		Name:      "copy",
		Aliases:   []string{"cp"},
		Usage:     "Decode every entry and write it to another directory",
		ArgsUsage: "DST",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "prune",
				Usage: "Remove files in DST that are not in the source",
			},
		},
		Action: copyDir,
	}
}

func copyDir(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: dirstore copy DST", 2)
	}
	dst := c.Args().First()

	e := envFrom(c)
	src, err := e.codec.Restore(e.cfg.Dir, e.dirOptions())
	if err != nil {
		return err
	}

	out := e.codec.Empty(e.dirOptions())
	src.CopyTo(out)

	if err := os.MkdirAll(dst, 0755); err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if err := out.Store(dst); err != nil {
		return err
	}

	res := copyResult{Source: e.cfg.Dir, Destination: dst, Entries: out.Len()}
	if c.Bool("prune") {
		if res.Pruned, err = out.Prune(dst); err != nil {
			return err
		}
	}
	e.log.Info("directory copied", "src", res.Source, "dst", dst, "entries", res.Entries)
	return e.render(res)
}
