package radixscan

import (
	"log/slog"

	"github.com/tamirms/radixscan/internal/logger"
)

const (
	defaultCohortSize    = 256
	defaultVectorWidth   = 4
	defaultNumBanks      = 32
	defaultRadixBits     = 4
	defaultKeysPerWorker = 4

	maxVectorWidth = 16
	maxRadixBits   = 16
)

// Option is a functional option for configuring a Scanner or a Sorter.
type Option func(*config)

type config struct {
	cohortSize         int
	algorithm          ScanAlgorithm
	vectorWidth        int
	avoidBankConflicts bool
	numBanks           int

	radixBits     int
	keysPerWorker int
	layout        HistogramLayout

	log logger.Logger
}

func defaultConfig() *config {
	return &config{
		cohortSize:         defaultCohortSize,
		algorithm:          AlgoWorkEfficient,
		vectorWidth:        defaultVectorWidth,
		avoidBankConflicts: true,
		numBanks:           defaultNumBanks,
		radixBits:          defaultRadixBits,
		keysPerWorker:      defaultKeysPerWorker,
		layout:             LayoutPerBlock,
		log:                logger.Discard(),
	}
}

func newConfig(opts []Option) *config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithCohortSize sets the number of workers per cohort. It must be a power
// of two no larger than the device limit.
func WithCohortSize(n int) Option {
	return func(c *config) {
		c.cohortSize = n
	}
}

// WithAlgorithm selects the block scan strategy.
// Default is AlgoWorkEfficient.
func WithAlgorithm(algo ScanAlgorithm) Option {
	return func(c *config) {
		c.algorithm = algo
	}
}

// WithVectorWidth sets how many consecutive elements each worker scans
// sequentially under AlgoVectorized. Must be a power of two in [2, 16].
func WithVectorWidth(n int) Option {
	return func(c *config) {
		c.vectorWidth = n
	}
}

// WithBankConflictAvoidance toggles the padded shared-memory addressing of
// the work-efficient and vectorized scans. It never changes results.
func WithBankConflictAvoidance(enabled bool) Option {
	return func(c *config) {
		c.avoidBankConflicts = enabled
	}
}

// WithNumBanks sets the number of shared-memory banks the padded addressing
// targets. Must be a power of two.
func WithNumBanks(n int) Option {
	return func(c *config) {
		c.numBanks = n
	}
}

// WithRadixBits sets the digit width of each radix pass. It must divide the
// key width passed to Sort.
func WithRadixBits(n int) Option {
	return func(c *config) {
		c.radixBits = n
	}
}

// WithKeysPerWorker sets how many keys each worker of a radix pass owns.
func WithKeysPerWorker(n int) Option {
	return func(c *config) {
		c.keysPerWorker = n
	}
}

// WithHistogramLayout selects the radix histogram layout.
// Default is LayoutPerBlock.
func WithHistogramLayout(layout HistogramLayout) Option {
	return func(c *config) {
		c.layout = layout
	}
}

// WithLogger sets the structured logger. Levels, allocations and passes are
// logged at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.log = logger.FromSlog(l)
	}
}
