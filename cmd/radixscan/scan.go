package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/tamirms/radixscan"
	"github.com/tamirms/radixscan/device"
	"github.com/tamirms/radixscan/internal/logger"
)

func scanCmd() *cli.Command {
	var (
		s         settings
		elemType  string
		inclusive bool
		maxValue  int64
	)

	return &cli.Command{
		Name:  "scan",
		Usage: "Prefix-sum generated data and report kernel timings",
		Flags: concatFlags(commonFlags(&s), deviceFlags(&s), scanFlags(&s), dataFlags(&s), []cli.Flag{
			&cli.StringFlag{
				Name:        "type",
				Usage:       "element type (uint32, uint64, int64, float64)",
				Value:       "uint32",
				Destination: &elemType,
			},
			&cli.BoolFlag{
				Name:        "inclusive",
				Usage:       "include each element in its own prefix",
				Destination: &inclusive,
			},
			&cli.Int64Flag{
				Name:        "max-value",
				Usage:       "bound of generated integers (0 = full range)",
				Value:       1 << 16,
				Destination: &maxValue,
			},
		}),
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
			ctx = logger.WithContext(ctx, e.log)

			n, seed, limit := int(s.n), uint64(s.seed), uint64(maxValue)
			switch elemType {
			case "uint32":
				return runScan(ctx, e, &s, elemType, inclusive, generate(n, seed, func(h uint64) uint32 {
					return uint32(bounded(h, limit))
				}))
			case "uint64":
				return runScan(ctx, e, &s, elemType, inclusive, generate(n, seed, func(h uint64) uint64 {
					return bounded(h, limit)
				}))
			case "int64":
				// Centered on zero so negative values are exercised.
				return runScan(ctx, e, &s, elemType, inclusive, generate(n, seed, func(h uint64) int64 {
					return int64(bounded(h, limit)) - int64(limit/2)
				}))
			case "float64":
				return runScan(ctx, e, &s, elemType, inclusive, generate(n, seed, unitFloat))
			}
			return fmt.Errorf("unknown element type %q", elemType)
		},
	}
}

func runScan[T radixscan.Number](ctx context.Context, e *env, s *settings, typeName string, inclusive bool, data []T) (err error) {
	opts, err := s.scanOptions(e.slog)
	if err != nil {
		return err
	}
	scanner, err := radixscan.NewScanner[T](e.dev, opts...)
	if err != nil {
		return err
	}

	in, err := device.Alloc[T](e.dev, len(data))
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, in.Close()) }()
	if err := in.Upload(data); err != nil {
		return err
	}

	e.kernels.reset()
	start := time.Now()
	out, err := scanner.Scan(ctx, in, len(data), inclusive)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)
	defer func() { err = errors.Join(err, out.Close()) }()

	result := make([]T, len(data))
	if err := out.Download(result); err != nil {
		return err
	}
	logger.FromContext(ctx).Info("scan complete", "n", len(data), "elapsed", elapsed)

	r := e.newReport("scan", typeName, len(data), elapsed)
	r.Params = params(
		"algorithm", s.algorithm,
		"cohort size", s.cohortSize,
		"block elements", scanner.BlockElems(),
		"bank avoidance", !s.noBankAvoidance,
		"inclusive", inclusive,
	)
	r.Checksum = fmt.Sprintf("%016x", radixscan.Checksum(result))

	var verifyErr error
	if s.verify {
		verifyErr = radixscan.VerifyScan(data, result, inclusive)
		ok := verifyErr == nil
		r.Verified = &ok
	}
	return errors.Join(e.write(r), verifyErr)
}
