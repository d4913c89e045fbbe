package command

import (
	"github.com/urfave/cli/v2"

	"github.com/yndnr/dirstore-go/internal/cli/config"
	"github.com/yndnr/dirstore-go/internal/cli/output"
)

// ConfigCommand returns the config subcommand group.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration management",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Print the resolved configuration",
				Action: configShow,
			},
			{
				Name:   "path",
				Usage:  "Print the default config file path",
				Action: configPath,
			},
		},
	}
}

func configShow(c *cli.Context) error {
	e := envFrom(c)
	// Nested sections do not fit a two-column table.
	f := e.format
	if f == output.FormatTable {
		f = output.FormatYAML
	}
	return output.NewFormatter(f).Format(e.out, e.cfg)
}

func configPath(c *cli.Context) error {
	_, err := c.App.Writer.Write([]byte(config.DefaultConfigPath() + "\n"))
	return err
}
