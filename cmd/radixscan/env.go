package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/tamirms/radixscan"
	"github.com/tamirms/radixscan/device"
	"github.com/tamirms/radixscan/internal/logger"
)

// env is what every command runs against: the device, the loggers and the
// dispatch timings collected through the device hook.
type env struct {
	dev     *device.Device
	log     logger.Logger
	slog    *slog.Logger
	kernels *kernelStats
	out     io.Writer
	format  string
}

func openEnv(c *cli.Command, s *settings) (*env, error) {
	root := c.Root()
	sl, err := newSlog(writerOr(root.ErrWriter, os.Stderr), s.logLevel, s.logFormat)
	if err != nil {
		return nil, err
	}
	if s.output != "table" && s.output != "json" {
		return nil, fmt.Errorf("unknown output format %q", s.output)
	}

	kind, err := device.ParseMemoryKind(s.memory)
	if err != nil {
		return nil, err
	}
	kernels := newKernelStats()
	opts := []device.Option{
		device.WithMemory(kind),
		device.WithMaxCohortSize(int(s.maxCohortSize)),
		device.WithLogger(sl),
		device.WithAfterDispatch(kernels.record),
	}
	if s.concurrency > 0 {
		opts = append(opts, device.WithConcurrency(int(s.concurrency)))
	}
	if s.memoryLimit > 0 {
		opts = append(opts, device.WithMemoryLimit(s.memoryLimit))
	}
	dev, err := device.Open(opts...)
	if err != nil {
		return nil, err
	}

	log := logger.FromSlog(sl).With("command", c.Name, "device", dev.Info().ID.String())
	log.Debug("device opened", "memory", kind.String(), "concurrency", dev.Info().Concurrency)
	return &env{
		dev:     dev,
		log:     log,
		slog:    sl,
		kernels: kernels,
		out:     writerOr(root.Writer, os.Stdout),
		format:  s.output,
	}, nil
}

func (e *env) close() error {
	return e.dev.Close()
}

// newReport starts a report with the fields every command shares.
func (e *env) newReport(command, typeName string, n int, elapsed time.Duration) *report {
	info := e.dev.Info()
	r := &report{
		Command:   command,
		DeviceID:  info.ID.String(),
		Memory:    info.Memory.String(),
		Elements:  n,
		Type:      typeName,
		Elapsed:   elapsed,
		PeakBytes: e.dev.Stats().PeakBytes,
		Kernels:   e.kernels.snapshot(),
	}
	if elapsed > 0 {
		r.ElementsPerSec = float64(n) / elapsed.Seconds()
	}
	return r
}

func (e *env) write(r *report) error {
	return r.write(e.out, e.format)
}

func (s *settings) scanOptions(sl *slog.Logger) ([]radixscan.Option, error) {
	algo, err := radixscan.ParseScanAlgorithm(s.algorithm)
	if err != nil {
		return nil, err
	}
	return []radixscan.Option{
		radixscan.WithCohortSize(int(s.cohortSize)),
		radixscan.WithAlgorithm(algo),
		radixscan.WithVectorWidth(int(s.vectorWidth)),
		radixscan.WithBankConflictAvoidance(!s.noBankAvoidance),
		radixscan.WithNumBanks(int(s.numBanks)),
		radixscan.WithLogger(sl),
	}, nil
}

func newSlog(w io.Writer, level, format string) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: logger.ParseLevel(level)}
	switch format {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("unknown log format %q", format)
}

func writerOr(w, def io.Writer) io.Writer {
	if w == nil {
		return def
	}
	return w
}
