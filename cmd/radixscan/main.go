// Radixscan runs prefix scans and radix sorts of generated data on the
// cohort device and reports per-kernel timings.
//
// Usage:
//
//	radixscan scan -n 10000000 --type uint32 --algorithm vectorized
//	radixscan sort -n 10000000 --key-bits 32 --radix-bits 8 --layout per-worker
//	radixscan info --memory mapped
//
// Defaults can be placed in $XDG_CONFIG_HOME/radixscan/config.yaml or in
// the file named by --config. Flags given on the command line win.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "radixscan",
		Usage: "Prefix scan and radix sort on the cohort device",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			scanCmd(),
			sortCmd(),
			infoCmd(),
		},
	}
}
