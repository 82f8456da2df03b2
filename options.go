package assetpack

import "log/slog"

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger for probe and open events.
// A nil logger disables logging.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithMaxEntries limits the number of entries a container may declare.
// Directories with more entries are declined. Values <= 0 or above
// format.MaxEntries select format.MaxEntries.
func WithMaxEntries(n int) Option {
	return func(r *Registry) {
		r.maxEntries = n
	}
}

// WithMaxEntrySize limits the stored and unpacked size of entries read with
// Container.ReadEntry. Set limit to 0 to disable the limit.
func WithMaxEntrySize(limit uint64) Option {
	return func(r *Registry) {
		r.maxEntrySize = limit
	}
}

// WithWorkers sets how many files OpenAll opens at once (default: GOMAXPROCS).
func WithWorkers(n int) Option {
	return func(r *Registry) {
		r.workers = n
	}
}

// WithMaxDecoderMemory limits the memory the zstd decoder may use per frame
// (default: 256 MiB). A limit of 0 selects the decoder library's own default.
func WithMaxDecoderMemory(limit uint64) Option {
	return func(r *Registry) {
		r.maxDecoderMemory = limit
	}
}

// WithConfig applies the limits of cfg. Zero fields keep their defaults.
//
// Disabled and Obfuscated only take effect in NewDefaultRegistry, which
// decides which built-in modules are registered.
func WithConfig(cfg *Config) Option {
	return func(r *Registry) {
		if cfg == nil {
			return
		}
		if cfg.MaxEntries > 0 {
			r.maxEntries = cfg.MaxEntries
		}
		if cfg.MaxEntrySize > 0 {
			r.maxEntrySize = cfg.MaxEntrySize
		}
		if cfg.Workers > 0 {
			r.workers = cfg.Workers
		}
		if cfg.MaxDecoderMemory > 0 {
			r.maxDecoderMemory = cfg.MaxDecoderMemory
		}
		r.cfg = cfg
	}
}
