package assetpack

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/meigma/assetpack/format"
	"github.com/meigma/assetpack/formats/arc"
	"github.com/meigma/assetpack/formats/bank"
	"github.com/meigma/assetpack/formats/cpix"
	"github.com/meigma/assetpack/formats/dib"
	"github.com/meigma/assetpack/formats/pack"
	"github.com/meigma/assetpack/formats/pcm"
	"github.com/meigma/assetpack/formats/xorwrap"
	"github.com/meigma/assetpack/source"
)

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide sealed registry with every built-in
// module, created on first use.
func Default() *Registry {
	defaultOnce.Do(func() {
		r, err := NewDefaultRegistry()
		if err != nil {
			panic(fmt.Sprintf("assetpack: built-in modules: %v", err))
		}
		defaultRegistry = r
	})
	return defaultRegistry
}

// builtins returns fresh instances of the built-in modules in registration
// order. arc precedes xorwrap so plain archives never pay for an XOR probe.
func builtins() []format.Module {
	return []format.Module{
		pack.New(),
		bank.New(),
		arc.New(),
		xorwrap.NewDefault(),
		cpix.New(),
		dib.New(),
		pcm.New(),
	}
}

// NewDefaultRegistry returns a sealed registry with the built-in modules,
// minus those disabled by the Config given with WithConfig, plus its
// obfuscated aliases.
func NewDefaultRegistry(opts ...Option) (*Registry, error) {
	r := NewRegistry(opts...)
	cfg := r.cfg
	if cfg == nil {
		cfg = &Config{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	disabled := make(map[string]bool, len(cfg.Disabled))
	for _, tag := range cfg.Disabled {
		disabled[tag] = true
	}
	for _, m := range builtins() {
		tag := m.Descriptor().Tag
		if disabled[tag] {
			r.log().Debug("module disabled", slog.String("module", tag))
			delete(disabled, tag)
			continue
		}
		if err := r.Register(m); err != nil {
			return nil, err
		}
	}
	if len(disabled) > 0 {
		return nil, fmt.Errorf("%w: disabled tags %q name no built-in module",
			ErrUnknownModule, slices.Sorted(maps.Keys(disabled)))
	}

	for _, o := range cfg.Obfuscated {
		inner, ok := r.containerModule(o.Inner)
		if !ok {
			return nil, fmt.Errorf("%w: obfuscated %q wraps %q", ErrUnknownModule, o.Tag, o.Inner)
		}
		desc := o.Description
		if desc == "" {
			desc = fmt.Sprintf("%s under xor %#02x", o.Inner, o.Key)
		}
		if err := r.Register(xorwrap.New(o.Tag, desc, inner, o.Key, o.Extensions)); err != nil {
			return nil, err
		}
	}

	r.Seal()
	return r, nil
}

// Open identifies src with the default registry.
func Open(src source.Source, name string) (*Container, error) {
	return Default().Open(src, name)
}

// OpenFile opens the file at path with the default registry.
func OpenFile(path string) (*Container, error) {
	return Default().OpenFile(path)
}
