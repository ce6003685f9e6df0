package main

import "github.com/urfave/cli/v3"

// settings collects the flags shared by every command.
type settings struct {
	configPath string
	logLevel   string
	logFormat  string
	output     string

	memory        string
	concurrency   int64
	memoryLimit   int64
	maxCohortSize int64

	cohortSize      int64
	algorithm       string
	vectorWidth     int64
	noBankAvoidance bool
	numBanks        int64

	n      int64
	seed   int64
	verify bool
}

func commonFlags(s *settings) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to a YAML config file",
			Destination: &s.configPath,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &s.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (text, json)",
			Value:       "text",
			Destination: &s.logFormat,
		},
		&cli.StringFlag{
			Name:        "output",
			Aliases:     []string{"o"},
			Usage:       "report format (table, json)",
			Value:       "table",
			Destination: &s.output,
		},
	}
}

func deviceFlags(s *settings) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "memory",
			Usage:       "device memory backend (heap, mapped)",
			Value:       "heap",
			Destination: &s.memory,
		},
		&cli.Int64Flag{
			Name:        "concurrency",
			Usage:       "cohorts executing at once (0 = GOMAXPROCS)",
			Destination: &s.concurrency,
		},
		&cli.Int64Flag{
			Name:        "memory-limit",
			Usage:       "device memory limit in bytes (0 = unlimited)",
			Destination: &s.memoryLimit,
		},
		&cli.Int64Flag{
			Name:        "max-cohort-size",
			Usage:       "largest cohort the device accepts",
			Value:       1024,
			Destination: &s.maxCohortSize,
		},
	}
}

func scanFlags(s *settings) []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "cohort-size",
			Usage:       "workers per cohort (power of two)",
			Value:       256,
			Destination: &s.cohortSize,
		},
		&cli.StringFlag{
			Name:        "algorithm",
			Aliases:     []string{"algo"},
			Usage:       "block scan (work-efficient, naive, vectorized)",
			Value:       "work-efficient",
			Destination: &s.algorithm,
		},
		&cli.Int64Flag{
			Name:        "vector-width",
			Usage:       "elements per worker for the vectorized scan",
			Value:       4,
			Destination: &s.vectorWidth,
		},
		&cli.BoolFlag{
			Name:        "no-bank-avoidance",
			Usage:       "disable padded shared-memory addressing",
			Destination: &s.noBankAvoidance,
		},
		&cli.Int64Flag{
			Name:        "banks",
			Usage:       "shared-memory banks targeted by the padding",
			Value:       32,
			Destination: &s.numBanks,
		},
	}
}

func dataFlags(s *settings) []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "n",
			Usage:       "number of elements",
			Value:       1 << 20,
			Destination: &s.n,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "seed of the generated data",
			Value:       1,
			Destination: &s.seed,
		},
		&cli.BoolFlag{
			Name:        "verify",
			Usage:       "check the result against a sequential reference",
			Value:       true,
			Destination: &s.verify,
		},
	}
}

func concatFlags(groups ...[]cli.Flag) []cli.Flag {
	var out []cli.Flag
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
