package assetpack

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/meigma/assetpack/format"
	"github.com/meigma/assetpack/internal/extract"
)

// ExtractOption configures Container.Extract.
type ExtractOption func(*extractConfig)

type extractConfig struct {
	overwrite bool
	filter    func(format.Entry) bool
}

// WithOverwrite allows Extract to replace existing files.
// By default, existing files are skipped.
func WithOverwrite(overwrite bool) ExtractOption {
	return func(c *extractConfig) {
		c.overwrite = overwrite
	}
}

// WithFilter limits Extract to entries for which keep returns true.
func WithFilter(keep func(format.Entry) bool) ExtractOption {
	return func(c *extractConfig) {
		c.filter = keep
	}
}

// ExtractStats summarizes an Extract call.
type ExtractStats struct {
	Written int
	Skipped int
}

// Extract writes the unpacked content of every entry below destDir, using
// the entry name as a relative path. Backslashes in names are treated as
// separators; names that would leave destDir fail with ErrUnsafePath and
// names that collide after cleaning fail with ErrDuplicateEntry. Both are
// checked before anything is written.
//
// Entries are written concurrently with the registry's worker limit. Each
// file appears atomically. The first error cancels the remaining writes.
func (c *Container) Extract(ctx context.Context, destDir string, opts ...ExtractOption) (ExtractStats, error) {
	cfg := extractConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	sink := extract.NewFileSink(destDir, extract.WithOverwrite(cfg.overwrite))

	var stats ExtractStats
	todo := make([]format.Entry, 0, c.dir.Len())
	seen := make(map[string]string, c.dir.Len())
	for _, e := range c.dir.All() {
		if cfg.filter != nil && !cfg.filter(e) {
			continue
		}
		rel, err := extract.CleanName(e.Name)
		if err != nil {
			return ExtractStats{}, fmt.Errorf("extract %q: %w", e.Name, err)
		}
		if first, ok := seen[rel]; ok {
			return ExtractStats{}, fmt.Errorf("%w: %q and %q both extract to %s", ErrDuplicateEntry, first, e.Name, rel)
		}
		seen[rel] = e.Name
		if !sink.ShouldWrite(e.Name) {
			stats.Skipped++
			continue
		}
		todo = append(todo, e)
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(c.reg.workers)
	for _, e := range todo {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return c.extractEntry(sink, e)
		})
	}
	if err := eg.Wait(); err != nil {
		return ExtractStats{}, err
	}
	stats.Written = len(todo)

	c.reg.log().Info("extracted container",
		slog.String("name", c.name),
		slog.String("dest", destDir),
		slog.Int("written", stats.Written),
		slog.Int("skipped", stats.Skipped))
	return stats, nil
}

func (c *Container) extractEntry(sink *extract.FileSink, e format.Entry) error {
	data, err := c.ReadEntry(e)
	if err != nil {
		return err
	}
	w, err := sink.Writer(e.Name)
	if err != nil {
		return fmt.Errorf("extract %q: %w", e.Name, err)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Discard() //nolint:errcheck // the write error takes precedence
		return fmt.Errorf("extract %q: %w", e.Name, err)
	}
	if err := w.Commit(); err != nil {
		return fmt.Errorf("extract %q: %w", e.Name, err)
	}
	c.reg.log().Debug("extracted entry", slog.String("entry", e.Name), slog.String("path", w.Path()))
	return nil
}
