package command

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/dirstore-go/internal/cli/config"
	"github.com/yndnr/dirstore-go/internal/cli/output"
	"github.com/yndnr/dirstore-go/internal/infra/buildinfo"
	"github.com/yndnr/dirstore-go/internal/telemetry/logger"
	"github.com/yndnr/dirstore-go/pkg/crypto/adaptive"
	"github.com/yndnr/dirstore-go/pkg/dirstore"
)

const envKey = "env"

// passphraseSalt is fixed so that a passphrase opens the same files in any directory.
var passphraseSalt = []byte("dirstore")

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "dirstore",
		Usage:   "Inspect and maintain directories of one-file-per-key values",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			ListCommand(),
			GetCommand(),
			PutCommand(),
			RemoveCommand(),
			VerifyCommand(),
			CopyCommand(),
			WatchCommand(),
			BackupCommand(),
			ConfigCommand(),
			VersionCommand(),
		},
		Before:               before,
		EnableBashCompletion: true,
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "Config file (default: $XDG_CONFIG_HOME/dirstore/config.yaml)",
			EnvVars: []string{"DIRSTORE_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "dir",
			Aliases: []string{"d"},
			Usage:   "Storage directory",
		},
		&cli.StringFlag{
			Name:    "codec",
			Aliases: []string{"c"},
			Usage:   "Value codec: text, bytes, uint32, int64, json, yaml",
		},
		&cli.StringFlag{
			Name:  "hidden-prefix",
			Usage: "Names starting with this prefix are ignored (empty disables)",
		},
		&cli.BoolFlag{
			Name:  "atomic",
			Usage: "Write entries through a temp file and rename",
		},
		&cli.StringFlag{
			Name:  "key-file",
			Usage: "Seal entry files with the 32-byte key in this file",
		},
		&cli.StringFlag{
			Name:    "passphrase",
			Usage:   "Seal entry files with a key derived from this passphrase",
			EnvVars: []string{"DIRSTORE_PASSPHRASE"},
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "Log format: text, json",
		},
		&cli.StringFlag{
			Name:  "log-file",
			Usage: "Also write JSON logs to this rotated file",
		},
	}
}

// flagKeys maps global flags to config keys.
var flagKeys = map[string]string{
	"dir":           "dir",
	"codec":         "codec",
	"hidden-prefix": "hidden_prefix",
	"atomic":        "atomic",
	"key-file":      "key_file",
	"output":        "output",
	"log-level":     "log.level",
	"log-format":    "log.format",
	"log-file":      "log.file",
}

// env is the per-invocation state shared by all commands.
type env struct {
	cfg    *config.Config
	log    logger.Logger
	codec  codec
	cipher adaptive.Cipher
	format output.Format
	out    io.Writer
	in     io.Reader
}

func before(c *cli.Context) error {
	overrides := make(map[string]any)
	for flag, key := range flagKeys {
		if !c.IsSet(flag) {
			continue
		}
		if flag == "atomic" {
			overrides[key] = c.Bool(flag)
		} else {
			overrides[key] = c.String(flag)
		}
	}

	cfg, err := config.Load(c.String("config"), overrides)
	if err != nil {
		return err
	}

	lcfg := logger.DefaultConfig()
	lcfg.Level = cfg.Log.Level
	lcfg.Format = cfg.Log.Format
	lcfg.Output = c.App.ErrWriter
	lcfg.File = cfg.Log.File
	lcfg.FileMaxSizeMB = cfg.Log.FileMaxSizeMB
	lcfg.FileMaxBackups = cfg.Log.FileMaxBackups
	log, err := logger.New(lcfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	cdc, err := lookupCodec(cfg.Codec)
	if err != nil {
		return err
	}
	format, err := output.ParseFormat(cfg.Output)
	if err != nil {
		return err
	}

	cipher, err := loadCipher(cfg.KeyFile, c.String("passphrase"))
	if err != nil {
		return err
	}

	e := &env{
		cfg:    cfg,
		log:    log,
		codec:  cdc,
		cipher: cipher,
		format: format,
		out:    c.App.Writer,
		in:     c.App.Reader,
	}
	if c.App.Metadata == nil {
		c.App.Metadata = make(map[string]any)
	}
	c.App.Metadata[envKey] = e

	log.Debug("configuration resolved",
		"dir", cfg.Dir,
		"codec", cfg.Codec,
		"atomic", cfg.Atomic,
		"sealed", cipher != nil,
	)
	return nil
}

func loadCipher(keyFile, passphrase string) (adaptive.Cipher, error) {
	var (
		key []byte
		err error
	)
	switch {
	case keyFile != "" && passphrase != "":
		return nil, fmt.Errorf("--key-file and --passphrase are mutually exclusive")
	case keyFile != "":
		key, err = adaptive.LoadKey(keyFile)
	case passphrase != "":
		key, err = adaptive.DeriveKey([]byte(passphrase), passphraseSalt)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return adaptive.New(key)
}

// envFrom retrieves the invocation state set up by before.
func envFrom(c *cli.Context) *env {
	if e, ok := c.App.Metadata[envKey].(*env); ok {
		return e
	}
	panic("command: env not initialized; Before did not run")
}

// dirOptions returns the storage options derived from configuration.
func (e *env) dirOptions(extra ...dirstore.Option) []dirstore.Option {
	return append(e.storageOptions(true), extra...)
}

// rawOptions are dirOptions without the cipher, for moving sealed files verbatim.
func (e *env) rawOptions() []dirstore.Option {
	return e.storageOptions(false)
}

func (e *env) storageOptions(sealed bool) []dirstore.Option {
	mode, _ := e.cfg.Mode()
	opts := []dirstore.Option{
		dirstore.WithHiddenPrefix(e.cfg.HiddenPrefix),
		dirstore.WithFileMode(mode),
		dirstore.WithLogger(e.log.Slog()),
	}
	if e.cfg.Atomic {
		opts = append(opts, dirstore.WithAtomicWrites())
	}
	if sealed && e.cipher != nil {
		opts = append(opts, dirstore.WithCipher(e.cipher))
	}
	return opts
}

// render writes data in the selected output format.
func (e *env) render(data any) error {
	return output.NewFormatter(e.format).Format(e.out, data)
}

// slogger is a shorthand for components that take a *slog.Logger.
func (e *env) slogger() *slog.Logger {
	return e.log.Slog()
}
