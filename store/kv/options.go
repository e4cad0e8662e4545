package kv

import (
	"github.com/sirupsen/logrus"
)

// Options collects the small set of tuning knobs this store exposes.
// Grounded on the donor's NewBadgerStore, which hard-codes these as a
// badger.Options literal; generalized here to functional options
// since callers outside this package (and its tests) need to inject
// a logger and vary batch size without reaching into badger directly.
type Options struct {
	logger         logrus.FieldLogger
	batchSize      int
	memTableSize   int64
	blockCacheSize int64
}

// Option configures a Store at Open time.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		logger:         logrus.StandardLogger(),
		batchSize:      txDatomBatchSize,
		memTableSize:   128 << 20,
		blockCacheSize: 256 << 20,
	}
}

// WithLogger injects a structured logger (spec's ambient logging
// concern — see SPEC_FULL.md). Passing nil disables logging.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *Options) {
		if l == nil {
			l = noopLogger()
		}
		o.logger = l
	}
}

// WithBatchSize overrides +tx-datom-batch-size+ (spec §4.4).
func WithBatchSize(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

func noopLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(discardWriter{})
	return l
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
