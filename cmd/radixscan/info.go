package main

import (
	"context"
	"errors"

	"github.com/goccy/go-json"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v3"
)

type infoReport struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Memory         string `json:"memory"`
	MaxCohortSize  int    `json:"max_cohort_size"`
	MaxSharedBytes int    `json:"max_shared_bytes"`
	MemoryLimit    int64  `json:"memory_limit"`
	Concurrency    int    `json:"concurrency"`
}

func infoCmd() *cli.Command {
	var s settings

	return &cli.Command{
		Name:  "info",
		Usage: "Show the device configuration",
		Flags: concatFlags(commonFlags(&s), deviceFlags(&s)),
		Action: func(ctx context.Context, cmd *cli.Command) (err error) {
			cfg, err := loadConfig(s.configPath)
			if err != nil {
				return err
			}
			applyConfig(cmd, cfg, &s)

			e, err := openEnv(cmd, &s)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, e.close()) }()

			info := e.dev.Info()
			r := infoReport{
				ID:             info.ID.String(),
				Name:           info.Name,
				Memory:         info.Memory.String(),
				MaxCohortSize:  info.MaxCohortSize,
				MaxSharedBytes: info.MaxSharedBytes,
				MemoryLimit:    info.MemoryLimit,
				Concurrency:    info.Concurrency,
			}
			if e.format == "json" {
				enc := json.NewEncoder(e.out)
				enc.SetIndent("", "  ")
				return enc.Encode(r)
			}

			t := table.NewWriter()
			t.SetOutputMirror(e.out)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Field", "Value"})
			t.AppendRows([]table.Row{
				{"id", r.ID},
				{"name", r.Name},
				{"memory", r.Memory},
				{"max cohort size", r.MaxCohortSize},
				{"max shared bytes", r.MaxSharedBytes},
				{"memory limit", r.MemoryLimit},
				{"concurrency", r.Concurrency},
			})
			t.Render()
			return nil
		},
	}
}
