package command

import (
	"github.com/urfave/cli/v2"

	"github.com/yndnr/dirstore-go/internal/backup"
)

// BackupCommand returns the backup subcommand group.
func BackupCommand() *cli.Command {
	return &cli.Command{
		Name:  "backup",
		Usage: "Archive the directory into checksummed backup files",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "backup-dir",
				Usage: "Archive directory (default: <dir>/.backups)",
			},
		},
		Subcommands: []*cli.Command{
			{
				Name:   "create",
				Usage:  "Archive the current entries",
				Action: backupCreate,
			},
			{
				Name:   "list",
				Usage:  "List archives, oldest first",
				Action: backupList,
			},
			{
				Name:      "restore",
				Usage:     "Write an archive back into the directory",
				ArgsUsage: "ID|latest",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "to",
						Usage: "Restore into this directory instead of --dir",
					},
					&cli.BoolFlag{
						Name:  "prune",
						Usage: "Remove entries that are not in the archive",
					},
				},
				Action: backupRestore,
			},
			{
				Name:   "prune",
				Usage:  "Delete archives outside the retention policy",
				Action: backupPrune,
			},
		},
	}
}

func backupManager(c *cli.Context) (*env, *backup.Manager, error) {
	e := envFrom(c)
	dir := e.cfg.BackupDir()
	if c.IsSet("backup-dir") {
		dir = c.String("backup-dir")
	}
	m, err := backup.NewManager(backup.Config{
		Dir:            dir,
		RetentionCount: e.cfg.Backup.RetentionCount,
		RetentionDays:  e.cfg.Backup.RetentionDays,
		Cipher:         e.cipher,
		Logger:         e.slogger(),
	})
	return e, m, err
}

func backupCreate(c *cli.Context) error {
	e, m, err := backupManager(c)
	if err != nil {
		return err
	}
	// Entry files are archived as stored; the cipher seals the archive itself.
	info, err := m.Create(e.cfg.Dir, e.rawOptions()...)
	if err != nil {
		return err
	}
	return e.render(info)
}

func backupList(c *cli.Context) error {
	e, m, err := backupManager(c)
	if err != nil {
		return err
	}
	infos, err := m.List()
	if err != nil {
		return err
	}
	return e.render(infos)
}

func backupRestore(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: dirstore backup restore ID|latest", 2)
	}
	e, m, err := backupManager(c)
	if err != nil {
		return err
	}
	dst := e.cfg.Dir
	if c.IsSet("to") {
		dst = c.String("to")
	}
	info, err := m.Restore(c.Args().First(), dst, c.Bool("prune"), e.rawOptions()...)
	if err != nil {
		return err
	}
	return e.render(info)
}

func backupPrune(c *cli.Context) error {
	e, m, err := backupManager(c)
	if err != nil {
		return err
	}
	removed, err := m.Prune()
	if err != nil {
		return err
	}
	if removed == nil {
		removed = []string{}
	}
	return e.render(removed)
}
