package main

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unsafe"

	"github.com/urfave/cli/v3"

	"github.com/tamirms/radixscan"
	"github.com/tamirms/radixscan/device"
	"github.com/tamirms/radixscan/internal/logger"
)

// sortSettings holds the flags only the sort command has.
type sortSettings struct {
	keyType       string
	keyBits       int64
	radixBits     int64
	keysPerWorker int64
	layout        string
	pairs         bool
}

func sortCmd() *cli.Command {
	var (
		s  settings
		ss sortSettings
	)

	return &cli.Command{
		Name:  "sort",
		Usage: "Radix-sort generated keys and report kernel timings",
		Flags: concatFlags(commonFlags(&s), deviceFlags(&s), scanFlags(&s), dataFlags(&s), []cli.Flag{
			&cli.StringFlag{
				Name:        "type",
				Usage:       "key type (uint16, uint32, uint64)",
				Value:       "uint32",
				Destination: &ss.keyType,
			},
			&cli.Int64Flag{
				Name:        "key-bits",
				Usage:       "number of low key bits to sort by (0 = whole key)",
				Destination: &ss.keyBits,
			},
			&cli.Int64Flag{
				Name:        "radix-bits",
				Usage:       "digit width of each pass",
				Value:       4,
				Destination: &ss.radixBits,
			},
			&cli.Int64Flag{
				Name:        "keys-per-worker",
				Usage:       "keys each worker owns per pass",
				Value:       4,
				Destination: &ss.keysPerWorker,
			},
			&cli.StringFlag{
				Name:        "layout",
				Usage:       "histogram layout (per-block, per-worker)",
				Value:       "per-block",
				Destination: &ss.layout,
			},
			&cli.BoolFlag{
				Name:        "pairs",
				Usage:       "carry a uint32 value with every key",
				Destination: &ss.pairs,
			},
		}),
		Action: func(ctx context.Context, cmd *cli.Command) (err error) {
			cfg, err := loadConfig(s.configPath)
			if err != nil {
				return err
			}
			applyConfig(cmd, cfg, &s)
			applySortConfig(cmd, cfg, &ss)

			e, err := openEnv(cmd, &s)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, e.close()) }()
			ctx = logger.WithContext(ctx, e.log)

			n, seed := int(s.n), uint64(s.seed)
			switch ss.keyType {
			case "uint16":
				return runSort(ctx, e, &s, &ss, generate(n, seed, func(h uint64) uint16 { return uint16(h) }))
			case "uint32":
				return runSort(ctx, e, &s, &ss, generate(n, seed, func(h uint64) uint32 { return uint32(h) }))
			case "uint64":
				return runSort(ctx, e, &s, &ss, generate(n, seed, func(h uint64) uint64 { return h }))
			}
			return fmt.Errorf("unknown key type %q", ss.keyType)
		},
	}
}

func (ss *sortSettings) options(s *settings, e *env) ([]radixscan.Option, error) {
	opts, err := s.scanOptions(e.slog)
	if err != nil {
		return nil, err
	}
	layout, err := radixscan.ParseHistogramLayout(ss.layout)
	if err != nil {
		return nil, err
	}
	return append(opts,
		radixscan.WithRadixBits(int(ss.radixBits)),
		radixscan.WithKeysPerWorker(int(ss.keysPerWorker)),
		radixscan.WithHistogramLayout(layout),
	), nil
}

func runSort[K radixscan.Key](ctx context.Context, e *env, s *settings, ss *sortSettings, keys []K) (err error) {
	opts, err := ss.options(s, e)
	if err != nil {
		return err
	}
	sorter, err := radixscan.NewSorter[K](e.dev, opts...)
	if err != nil {
		return err
	}
	keyBits := int(ss.keyBits)
	if keyBits == 0 {
		keyBits = keyWidth[K]()
	}

	in, err := device.Alloc[K](e.dev, len(keys))
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, in.Close()) }()
	if err := in.Upload(keys); err != nil {
		return err
	}

	var values []uint32
	var vin *device.Buffer[uint32]
	if ss.pairs {
		values = make([]uint32, len(keys))
		for i := range values {
			values[i] = uint32(i)
		}
		if vin, err = device.Alloc[uint32](e.dev, len(values)); err != nil {
			return err
		}
		defer func() { err = errors.Join(err, vin.Close()) }()
		if err := vin.Upload(values); err != nil {
			return err
		}
	}

	e.kernels.reset()
	start := time.Now()
	var kout *device.Buffer[K]
	var vout *device.Buffer[uint32]
	if ss.pairs {
		kout, vout, err = sorter.SortPairs(ctx, in, vin, len(keys), keyBits)
	} else {
		kout, err = sorter.Sort(ctx, in, len(keys), keyBits)
	}
	if err != nil {
		return err
	}
	elapsed := time.Since(start)
	// The result may be the input buffer; Close is idempotent.
	defer func() { err = errors.Join(err, kout.Close()) }()
	if vout != nil {
		defer func() { err = errors.Join(err, vout.Close()) }()
	}

	sorted := make([]K, len(keys))
	if err := kout.Download(sorted); err != nil {
		return err
	}
	var sortedVals []uint32
	if vout != nil {
		sortedVals = make([]uint32, len(keys))
		if err := vout.Download(sortedVals); err != nil {
			return err
		}
	}
	logger.FromContext(ctx).Info("sort complete", "n", len(keys), "key_bits", keyBits, "elapsed", elapsed)

	r := e.newReport("sort", ss.keyType, len(keys), elapsed)
	r.Params = params(
		"key bits", keyBits,
		"radix bits", ss.radixBits,
		"passes", keyBits/int(ss.radixBits),
		"layout", ss.layout,
		"keys per worker", ss.keysPerWorker,
		"block elements", sorter.BlockElems(),
		"scan algorithm", s.algorithm,
		"pairs", ss.pairs,
	)
	r.Checksum = fmt.Sprintf("%016x", radixscan.Checksum(sorted))

	var verifyErr error
	if s.verify {
		if ss.pairs {
			verifyErr = radixscan.VerifySortedPairs(keys, values, sorted, sortedVals, keyBits)
		} else {
			verifyErr = radixscan.VerifySorted(keys, sorted, keyBits)
		}
		ok := verifyErr == nil
		r.Verified = &ok
	}
	return errors.Join(e.write(r), verifyErr)
}

func keyWidth[K radixscan.Key]() int {
	var zero K
	return 8 * int(unsafe.Sizeof(zero))
}
