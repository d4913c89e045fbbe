package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/dirstore-go/internal/cli/output"
	"github.com/yndnr/dirstore-go/internal/infra/buildinfo"
)

// VersionCommand returns the version command.
func VersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print build information",
		Action: func(c *cli.Context) error {
			e := envFrom(c)
			info := buildinfo.Get()
			if e.format == output.FormatTable {
				_, err := fmt.Fprintf(e.out, "dirstore %s\n  commit:   %s\n  built:    %s\n  go:       %s\n  platform: %s\n",
					info.Version, info.Commit, info.BuildTime, info.GoVersion, info.Platform)
				return err
			}
			return e.render(info)
		},
	}
}
