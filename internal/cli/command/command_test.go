package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/dirstore-go/internal/backup"
	"github.com/yndnr/dirstore-go/pkg/dirstore"
)

// syncBuffer is a bytes.Buffer safe for concurrent writers and readers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// newTestApp builds an app with captured output and no os.Exit on errors.
func newTestApp(t *testing.T, stdin string) (*cli.App, *syncBuffer) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	out := &syncBuffer{}
	app := App()
	app.Writer = out
	app.ErrWriter = &syncBuffer{}
	app.Reader = strings.NewReader(stdin)
	app.ExitErrHandler = func(*cli.Context, error) {}
	return app, out
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	app, out := newTestApp(t, stdin)
	err := app.Run(append([]string{"dirstore"}, args...))
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, "", args...)
	if err != nil {
		t.Fatalf("dirstore %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestApp(t *testing.T) {
	app := App()
	if app.Name != "dirstore" {
		t.Errorf("Name = %q, want dirstore", app.Name)
	}

	commands := make(map[string]bool)
	for _, cmd := range app.Commands {
		commands[cmd.Name] = true
	}
	for _, name := range []string{"ls", "get", "put", "rm", "verify", "copy", "watch", "backup", "config", "version"} {
		if !commands[name] {
			t.Errorf("missing command: %s", name)
		}
	}

	flags := make(map[string]bool)
	for _, f := range app.Flags {
		flags[f.Names()[0]] = true
	}
	for name := range flagKeys {
		if !flags[name] {
			t.Errorf("flagKeys refers to undefined flag %s", name)
		}
	}
}

func TestCodecs_MatchConfig(t *testing.T) {
	for _, name := range []string{"text", "bytes", "uint32", "int64", "json", "yaml"} {
		if _, err := lookupCodec(name); err != nil {
			t.Errorf("lookupCodec(%q) error = %v", name, err)
		}
	}
	if _, err := lookupCodec("xml"); err == nil {
		t.Error("lookupCodec(xml) should fail")
	}
}

func TestPutGetList(t *testing.T) {
	dir := t.TempDir()

	mustRun(t, "-d", dir, "-c", "uint32", "put", "a", "5")
	if _, err := run(t, " 7 \n", "-d", dir, "-c", "uint32", "put", "b"); err != nil {
		t.Fatalf("put from stdin: %v", err)
	}

	if got := readFile(t, filepath.Join(dir, "a")); got != "5\n" {
		t.Errorf("file a = %q, want %q", got, "5\n")
	}
	if got := readFile(t, filepath.Join(dir, "b")); got != "7\n" {
		t.Errorf("file b = %q, want normalized %q", got, "7\n")
	}

	if got := mustRun(t, "-d", dir, "-c", "uint32", "get", "b"); got != "7\n" {
		t.Errorf("get b = %q", got)
	}

	var rows []entryInfo
	if err := json.Unmarshal([]byte(mustRun(t, "-d", dir, "-c", "uint32", "-o", "json", "ls")), &rows); err != nil {
		t.Fatalf("ls output: %v", err)
	}
	if len(rows) != 2 || rows[0].Key != "a" || rows[1].Key != "b" {
		t.Fatalf("ls = %+v", rows)
	}
	if rows[0].Size != 2 || rows[0].Digest != digest([]byte("5\n")) || len(rows[0].Digest) != 32 {
		t.Errorf("ls[0] = %+v", rows[0])
	}

	table := mustRun(t, "-d", dir, "-c", "uint32", "ls")
	if !strings.HasPrefix(table, "KEY") || !strings.Contains(table, rows[1].Digest) {
		t.Errorf("ls table = %q", table)
	}
}

func TestPut_Rejects(t *testing.T) {
	dir := t.TempDir()

	if _, err := run(t, "", "-d", dir, "-c", "uint32", "put", "n", "not-a-number"); err == nil {
		t.Error("put should reject a value the codec cannot decode")
	}
	if _, err := os.Stat(filepath.Join(dir, "n")); !os.IsNotExist(err) {
		t.Error("rejected value must not be written")
	}

	_, err := run(t, "", "-d", dir, "put", "../escape", "x")
	if !errors.Is(err, dirstore.ErrInvalidKey) {
		t.Errorf("put ../escape error = %v, want ErrInvalidKey", err)
	}

	_, err = run(t, "", "-d", dir, "put", ".hidden", "x")
	if !errors.Is(err, dirstore.ErrInvalidKey) {
		t.Errorf("put .hidden error = %v, want ErrInvalidKey", err)
	}
}

func TestGet_JSONOutput(t *testing.T) {
	dir := t.TempDir()
	mustRun(t, "-d", dir, "-c", "json", "put", "cfg", `{"replicas": 3}`)

	out := mustRun(t, "-d", dir, "-c", "json", "-o", "json", "get", "cfg")
	var got struct {
		Key   string         `json:"key"`
		Value map[string]any `json:"value"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("get output %q: %v", out, err)
	}
	if got.Key != "cfg" || got.Value["replicas"] != float64(3) {
		t.Errorf("get = %+v", got)
	}

	_, err := run(t, "", "-d", dir, "-c", "json", "get", "missing")
	if !errors.Is(err, dirstore.ErrNotFound) {
		t.Errorf("get missing error = %v, want ErrNotFound", err)
	}
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()
	mustRun(t, "-d", dir, "put", "keep", "k")
	mustRun(t, "-d", dir, "put", "drop", "d")

	mustRun(t, "-d", dir, "rm", "drop")
	if _, err := os.Stat(filepath.Join(dir, "drop")); !os.IsNotExist(err) {
		t.Error("drop should be removed")
	}
	if got := readFile(t, filepath.Join(dir, "keep")); got != "k" {
		t.Errorf("keep = %q", got)
	}

	if _, err := run(t, "", "-d", dir, "rm", "drop"); !errors.Is(err, dirstore.ErrNotFound) {
		t.Errorf("rm missing error = %v, want ErrNotFound", err)
	}
}

func TestVerify(t *testing.T) {
	dir := t.TempDir()
	mustRun(t, "-d", dir, "-c", "int64", "put", "x", "-4")

	var res verifyResult
	if err := json.Unmarshal([]byte(mustRun(t, "-d", dir, "-c", "int64", "-o", "json", "verify")), &res); err != nil {
		t.Fatal(err)
	}
	if !res.OK || res.Entries != 1 {
		t.Errorf("verify = %+v, want ok with 1 entry", res)
	}

	bad := filepath.Join(dir, "y")
	if err := os.WriteFile(bad, []byte("oops"), 0644); err != nil {
		t.Fatal(err)
	}
	out, err := run(t, "", "-d", dir, "-c", "int64", "-o", "json", "verify")
	var exit cli.ExitCoder
	if !errors.As(err, &exit) || exit.ExitCode() != 1 {
		t.Fatalf("verify error = %v, want exit code 1", err)
	}
	res = verifyResult{}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatal(err)
	}
	if res.OK || res.Path != bad || res.Kind != dirstore.KindRestore.String() {
		t.Errorf("verify = %+v, want failure naming %s", res, bad)
	}
}

func TestCopy(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	mustRun(t, "-d", src, "put", "one", "1")
	mustRun(t, "-d", src, "put", "two", "2")
	if err := os.WriteFile(filepath.Join(dst, "stale"), []byte("s"), 0644); err != nil {
		t.Fatal(err)
	}

	var res copyResult
	if err := json.Unmarshal([]byte(mustRun(t, "-d", src, "-o", "json", "copy", "--prune", dst)), &res); err != nil {
		t.Fatal(err)
	}
	if res.Entries != 2 || len(res.Pruned) != 1 {
		t.Errorf("copy = %+v", res)
	}
	if readFile(t, filepath.Join(dst, "one")) != "1" || readFile(t, filepath.Join(dst, "two")) != "2" {
		t.Error("copied entries differ from source")
	}
	if _, err := os.Stat(filepath.Join(dst, "stale")); !os.IsNotExist(err) {
		t.Error("stale should be pruned")
	}
}

func TestSealedEntries(t *testing.T) {
	dir := t.TempDir()
	mustRun(t, "-d", dir, "-c", "uint32", "--passphrase", "hunter2", "--atomic", "put", "n", "42")

	if raw := readFile(t, filepath.Join(dir, "n")); strings.Contains(raw, "42") {
		t.Errorf("sealed file contains plaintext: %q", raw)
	}
	if got := mustRun(t, "-d", dir, "-c", "uint32", "--passphrase", "hunter2", "get", "n"); got != "42\n" {
		t.Errorf("get sealed = %q", got)
	}
	if _, err := run(t, "", "-d", dir, "-c", "uint32", "get", "n"); !errors.Is(err, dirstore.ErrRestore) {
		t.Errorf("get without passphrase error = %v, want ErrRestore", err)
	}
	if _, err := run(t, "", "-d", dir, "-c", "uint32", "--passphrase", "wrong", "get", "n"); !errors.Is(err, dirstore.ErrRestore) {
		t.Errorf("get with wrong passphrase error = %v, want ErrRestore", err)
	}
}

func TestKeyFileAndPassphraseExclusive(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), "key")
	if err := os.WriteFile(keyFile, []byte(strings.Repeat("ab", 32)), 0600); err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()

	mustRun(t, "-d", dir, "--key-file", keyFile, "put", "s", "secret")
	if got := mustRun(t, "-d", dir, "--key-file", keyFile, "get", "s"); got != "secret" {
		t.Errorf("get = %q", got)
	}
	if _, err := run(t, "", "-d", dir, "--key-file", keyFile, "--passphrase", "p", "ls"); err == nil {
		t.Error("--key-file with --passphrase should fail")
	}
}

func TestBackupCommands(t *testing.T) {
	dir := t.TempDir()
	archives := t.TempDir()
	mustRun(t, "-d", dir, "put", "a", "alpha")
	mustRun(t, "-d", dir, "put", "b", "beta")

	var created backup.Info
	out := mustRun(t, "-d", dir, "-o", "json", "backup", "--backup-dir", archives, "create")
	if err := json.Unmarshal([]byte(out), &created); err != nil {
		t.Fatalf("backup create output %q: %v", out, err)
	}
	if created.EntryCount != 2 {
		t.Errorf("EntryCount = %d, want 2", created.EntryCount)
	}

	var listed []backup.Info
	if err := json.Unmarshal([]byte(mustRun(t, "-d", dir, "-o", "json", "backup", "--backup-dir", archives, "list")), &listed); err != nil {
		t.Fatal(err)
	}
	if len(listed) != 1 || listed[0].ID != created.ID {
		t.Errorf("backup list = %+v", listed)
	}

	target := filepath.Join(t.TempDir(), "restored")
	mustRun(t, "-d", dir, "backup", "--backup-dir", archives, "restore", "--to", target, "latest")
	if readFile(t, filepath.Join(target, "a")) != "alpha" || readFile(t, filepath.Join(target, "b")) != "beta" {
		t.Error("restored entries differ")
	}

	if out := mustRun(t, "-d", dir, "-o", "json", "backup", "--backup-dir", archives, "prune"); strings.TrimSpace(out) != "[]" {
		t.Errorf("backup prune = %q, want []", out)
	}
}

func TestBackup_DefaultDirIsHidden(t *testing.T) {
	dir := t.TempDir()
	mustRun(t, "-d", dir, "put", "a", "1")
	mustRun(t, "-d", dir, "backup", "create")
	mustRun(t, "-d", dir, "backup", "create")

	// The archive directory lives inside the storage directory but is skipped.
	var rows []entryInfo
	if err := json.Unmarshal([]byte(mustRun(t, "-d", dir, "-o", "json", "ls")), &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Errorf("ls = %+v, want only the entry", rows)
	}
	entries, err := os.ReadDir(filepath.Join(dir, ".backups"))
	if err != nil || len(entries) != 2 {
		t.Errorf("backups = %v, %v", entries, err)
	}
}

func TestSealedBackupKeepsEntryFilesVerbatim(t *testing.T) {
	dir := t.TempDir()
	mustRun(t, "-d", dir, "--passphrase", "pw", "put", "k", "v")
	sealed := readFile(t, filepath.Join(dir, "k"))

	mustRun(t, "-d", dir, "--passphrase", "pw", "backup", "create")
	target := t.TempDir()
	mustRun(t, "-d", dir, "--passphrase", "pw", "backup", "restore", "--to", target, "latest")

	if got := readFile(t, filepath.Join(target, "k")); got != sealed {
		t.Error("restored file should be byte-identical to the sealed original")
	}
	if got := mustRun(t, "-d", target, "--passphrase", "pw", "get", "k"); got != "v" {
		t.Errorf("get restored = %q", got)
	}

	if _, err := run(t, "", "-d", dir, "backup", "restore", "--to", target, "latest"); !errors.Is(err, backup.ErrKeyRequired) {
		t.Errorf("restore without passphrase error = %v, want ErrKeyRequired", err)
	}
}

func TestConfigShow(t *testing.T) {
	cfgFile := filepath.Join(t.TempDir(), "dirstore.yaml")
	if err := os.WriteFile(cfgFile, []byte("codec: yaml\nlog:\n  level: info\n"), 0644); err != nil {
		t.Fatal(err)
	}

	out := mustRun(t, "--config", cfgFile, "--log-level", "error", "-o", "json", "config", "show")
	var got struct {
		Codec string `json:"codec"`
		Log   struct {
			Level string `json:"level"`
		} `json:"log"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("config show output %q: %v", out, err)
	}
	if got.Codec != "yaml" || got.Log.Level != "error" {
		t.Errorf("config show = %+v", got)
	}

	yamlOut := mustRun(t, "--config", cfgFile, "config", "show")
	if !strings.Contains(yamlOut, "codec: yaml") {
		t.Errorf("table format should fall back to YAML, got %q", yamlOut)
	}
}

func TestInvalidGlobalFlags(t *testing.T) {
	if _, err := run(t, "", "-c", "msgpack", "ls"); err == nil {
		t.Error("unknown codec should fail")
	}
	if _, err := run(t, "", "-o", "xml", "ls"); err == nil {
		t.Error("unknown output format should fail")
	}
}

func TestVersion(t *testing.T) {
	out := mustRun(t, "-o", "json", "version")
	var got map[string]string
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatal(err)
	}
	if got["version"] == "" || got["go_version"] == "" {
		t.Errorf("version = %v", got)
	}
	if !strings.HasPrefix(mustRun(t, "version"), "dirstore ") {
		t.Error("table version output should start with the program name")
	}
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	app, out := newTestApp(t, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- app.RunContext(ctx, []string{"dirstore", "-d", dir, "watch", "--debounce", "50ms"})
	}()

	waitFor := func(want string) {
		t.Helper()
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			if strings.Contains(out.String(), want) {
				return
			}
			time.Sleep(20 * time.Millisecond)
		}
		t.Fatalf("output never contained %q:\n%s", want, out.String())
	}

	waitFor("entries=0")
	// fsnotify registers inside Run, after the initial scan is printed.
	time.Sleep(200 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(dir, "k"), []byte("v"), 0644); err != nil {
		t.Fatal(err)
	}
	waitFor("entries=1 changed=[k]")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("watch returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancellation")
	}
}

func TestWatch_MissingDir(t *testing.T) {
	_, err := run(t, "", "-d", filepath.Join(t.TempDir(), "absent"), "watch")
	if err == nil {
		t.Error("watch should fail when the directory does not exist")
	}
}

func TestDigest(t *testing.T) {
	a := digest([]byte("hello"))
	if len(a) != 32 {
		t.Errorf("digest length = %d, want 32 hex chars", len(a))
	}
	if a != digest([]byte("hello")) || a == digest([]byte("hellp")) {
		t.Error("digest should be deterministic and content-sensitive")
	}
}

// unencodable restores anything but refuses to be written back.
type unencodable struct{ raw string }

func (u *unencodable) Restore(r io.Reader) error {
	b, err := io.ReadAll(r)
	u.raw = string(b)
	return err
}

func (u *unencodable) Store(io.Writer) error { return errors.New("cannot encode " + u.raw) }

func TestEncoded_ReportsErrors(t *testing.T) {
	set := typedCodec[unencodable, *unencodable]{}.Empty(nil)
	if err := set.Parse("k", []byte("v")); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if _, err := set.Encoded("k"); !errors.Is(err, dirstore.ErrStore) {
		t.Errorf("Encoded(k) error = %v, want store error", err)
	}
	if _, err := set.Encoded("missing"); !errors.Is(err, dirstore.ErrNotFound) {
		t.Errorf("Encoded(missing) error = %v, want not found", err)
	}

	rows, err := listRows(set)
	if !errors.Is(err, dirstore.ErrStore) {
		t.Errorf("listRows error = %v, want store error", err)
	}
	if rows != nil {
		t.Errorf("listRows rows = %v, want none", rows)
	}
}
