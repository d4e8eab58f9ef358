// Package ingest finds coupon codes shared by several large gzipped code
// lists. Each list is scanned twice: the first pass builds one bloom filter
// per file, the second keeps codes that hit the filter of another file.
package ingest

import (
	"bufio"
	"context"
	"math/bits"
	"os"
	"slices"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options tunes the scan.
type Options struct {
	// Capacity is the expected number of codes per file.
	Capacity uint
	// FPR is the bloom filter false positive rate.
	FPR float64
	// Codes outside [MinLen, MaxLen] are skipped.
	MinLen, MaxLen int
	// ProgressEvery logs scan progress every n codes; zero disables it.
	ProgressEvery uint64
	Logger        *zap.Logger
}

func (o *Options) setDefaults() {
	if o.Capacity == 0 {
		o.Capacity = 1_000_000
	}
	if o.FPR <= 0 {
		o.FPR = 0.001
	}
	if o.MaxLen == 0 {
		o.MaxLen = 10
	}
	if o.MinLen == 0 {
		o.MinLen = 8
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

func (o *Options) accept(code string) bool {
	return len(code) >= o.MinLen && len(code) <= o.MaxLen
}

// SharedCodes returns, sorted, the codes that appear in at least two of the
// given files. Bloom false positives never produce a code that occurs in a
// single file, since each file only marks its own bit.
func SharedCodes(ctx context.Context, files []string, opts Options) ([]string, error) {
	if len(files) < 2 {
		return nil, errors.Errorf("need at least two files, got %d", len(files))
	}
	if len(files) > bits.UintSize {
		return nil, errors.Errorf("too many files: %d", len(files))
	}
	opts.setDefaults()

	opts.Logger.Info("Pass 1: building bloom filters", zap.Int("files", len(files)))
	filters, err := buildFilters(ctx, files, &opts)
	if err != nil {
		return nil, errors.Wrap(err, "build bloom filters")
	}

	opts.Logger.Info("Pass 2: finding shared codes")
	masks := make([]map[string]uint, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			m, err := candidates(gctx, i, path, filters, &opts)
			if err != nil {
				return errors.Wrapf(err, "scan file %d", i+1)
			}
			masks[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint)
	for _, m := range masks {
		for code, mask := range m {
			merged[code] |= mask
		}
	}
	var shared []string
	for code, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			shared = append(shared, code)
		}
	}
	slices.Sort(shared)
	return shared, nil
}

func buildFilters(ctx context.Context, files []string, opts *Options) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(opts.Capacity, opts.FPR)
			var n uint64
			err := scan(ctx, path, func(code string) {
				if !opts.accept(code) {
					return
				}
				filter.AddString(code)
				n++
				opts.progress("Pass 1 progress", i, n)
			})
			if err != nil {
				return errors.Wrapf(err, "build filter for file %d", i+1)
			}
			opts.Logger.Info("Pass 1 complete", zap.Int("file", i+1), zap.Uint64("codes", n))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// candidates marks codes of file idx that hit any other file's filter.
func candidates(ctx context.Context, idx int, path string, filters []*bloom.BloomFilter, opts *Options) (map[string]uint, error) {
	out := make(map[string]uint)
	bit := uint(1) << uint(idx)
	var n uint64

	err := scan(ctx, path, func(code string) {
		if !opts.accept(code) {
			return
		}
		n++
		opts.progress("Pass 2 progress", idx, n)
		for j, f := range filters {
			if j != idx && f.TestString(code) {
				out[code] |= bit
				return
			}
		}
	})
	if err != nil {
		return nil, err
	}
	opts.Logger.Info("Pass 2 complete",
		zap.Int("file", idx+1),
		zap.Uint64("codes", n),
		zap.Int("candidates", len(out)),
	)
	return out, nil
}

func (o *Options) progress(msg string, idx int, n uint64) {
	if o.ProgressEvery > 0 && n%o.ProgressEvery == 0 {
		o.Logger.Info(msg, zap.Int("file", idx+1), zap.Uint64("codes", n))
	}
}

// scan calls fn for every line of a gzip file.
func scan(ctx context.Context, path string, fn func(code string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrap(err, "gzip reader")
	}
	defer func() { _ = gz.Close() }()

	s := bufio.NewScanner(gz)
	for s.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(s.Text())
	}
	if err := s.Err(); err != nil {
		return errors.Wrap(err, "scan")
	}
	return nil
}
