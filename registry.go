package assetpack

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/meigma/assetpack/codec"
	"github.com/meigma/assetpack/format"
	"github.com/meigma/assetpack/internal/index"
	"github.com/meigma/assetpack/source"
)

// DefaultMaxEntrySize is the default ReadEntry limit (256 MiB).
const DefaultMaxEntrySize = 256 << 20

// Registry holds format modules and dispatches sources to them.
//
// Modules are registered while the registry is open. After Seal the
// registry is read-only and lookups take no locks, so a sealed registry can
// be shared freely between goroutines.
type Registry struct {
	mu     sync.RWMutex
	sealed atomic.Bool

	modules    []format.Module
	containers []format.ContainerModule
	images     []format.ImageModule
	audio      []format.AudioModule
	tags       map[string]format.Module

	maxEntries       int
	maxEntrySize     uint64
	maxDecoderMemory uint64
	workers          int
	cfg              *Config
	unpacker         *codec.Unpacker
	logger           *slog.Logger
}

// NewRegistry creates an empty, open registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		tags:         make(map[string]format.Module),
		maxEntries:   format.MaxEntries,
		maxEntrySize: DefaultMaxEntrySize,
		workers:      runtime.GOMAXPROCS(0),

		maxDecoderMemory: codec.DefaultMaxDecoderMemory,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.maxEntries <= 0 || r.maxEntries > format.MaxEntries {
		r.maxEntries = format.MaxEntries
	}
	if r.workers <= 0 {
		r.workers = runtime.GOMAXPROCS(0)
	}
	r.unpacker = codec.NewUnpacker(codec.NewZstdDecoder(r.maxDecoderMemory, codec.WithDecoderConcurrency(r.workers)))
	return r
}

// log returns the logger, falling back to a discard logger if nil.
func (r *Registry) log() *slog.Logger {
	if r.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.logger
}

// Register adds m under its descriptor tag. A module implementing several
// capabilities is registered for each of them.
func (r *Registry) Register(m format.Module) error {
	if m == nil {
		return fmt.Errorf("%w: nil module", ErrInvalidModule)
	}
	d := m.Descriptor()
	if d.Tag == "" {
		return fmt.Errorf("%w: empty tag", ErrInvalidModule)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed.Load() {
		return fmt.Errorf("%w: register %q", ErrRegistrySealed, d.Tag)
	}
	if _, dup := r.tags[d.Tag]; dup {
		return fmt.Errorf("%w: %q", ErrDuplicateTag, d.Tag)
	}

	var registered bool
	if c, ok := m.(format.ContainerModule); ok {
		r.containers = append(r.containers, c)
		registered = true
	}
	if im, ok := m.(format.ImageModule); ok {
		r.images = append(r.images, im)
		registered = true
	}
	if am, ok := m.(format.AudioModule); ok {
		r.audio = append(r.audio, am)
		registered = true
	}
	if !registered {
		return fmt.Errorf("%w: %q implements no module capability", ErrInvalidModule, d.Tag)
	}
	r.tags[d.Tag] = m
	r.modules = append(r.modules, m)
	r.log().Debug("registered module", slog.String("module", d.Tag))
	return nil
}

// Seal makes the registry read-only. Sealing twice is a no-op.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed.Store(true)
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	return r.sealed.Load()
}

// rlock takes the read lock while the registry is open and returns the
// matching unlock. Sealed registries are never written, so no lock is taken.
func (r *Registry) rlock() func() {
	if r.sealed.Load() {
		return func() {}
	}
	r.mu.RLock()
	return r.mu.RUnlock
}

// Module returns the module registered under tag.
func (r *Registry) Module(tag string) (format.Module, bool) {
	defer r.rlock()()
	m, ok := r.tags[tag]
	return m, ok
}

// Descriptors returns the descriptors of all modules in registration order.
func (r *Registry) Descriptors() []format.Descriptor {
	defer r.rlock()()
	out := make([]format.Descriptor, 0, len(r.modules))
	for _, m := range r.modules {
		out = append(out, m.Descriptor())
	}
	return out
}

func (r *Registry) containerModule(tag string) (format.ContainerModule, bool) {
	m, ok := r.Module(tag)
	if !ok {
		return nil, false
	}
	c, ok := m.(format.ContainerModule)
	return c, ok
}

func (r *Registry) containerCandidates(sig uint32, ext string) []format.ContainerModule {
	defer r.rlock()()
	return candidates(r.containers, sig, ext)
}

func (r *Registry) imageCandidates(sig uint32, ext string) []format.ImageModule {
	defer r.rlock()()
	return candidates(r.images, sig, ext)
}

func (r *Registry) audioCandidates(sig uint32, ext string) []format.AudioModule {
	defer r.rlock()()
	return candidates(r.audio, sig, ext)
}

// candidates orders mods for dispatch: signature matches, then extension
// matches, then every signature-less module. Each module appears once.
func candidates[M format.Module](mods []M, sig uint32, ext string) []M {
	out := make([]M, 0, len(mods))
	seen := make(map[string]bool, len(mods))
	add := func(m M) {
		tag := m.Descriptor().Tag
		if seen[tag] {
			return
		}
		seen[tag] = true
		out = append(out, m)
	}

	if sig != 0 {
		for _, m := range mods {
			if m.Descriptor().Signature == sig {
				add(m)
			}
		}
	}
	if ext != "" {
		for _, m := range mods {
			if slices.Contains(m.Descriptor().Extensions, ext) {
				add(m)
			}
		}
	}
	for _, m := range mods {
		if m.Descriptor().Signature == 0 {
			add(m)
		}
	}
	return out
}

// Open identifies the container format of src and parses its directory.
//
// name is used for extension matching and diagnostics only. The returned
// Container reads from src on demand; the caller keeps src alive.
func (r *Registry) Open(src source.Source, name string) (*Container, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil source", ErrUnknownFormat)
	}
	head := source.NewView(src, name)
	for _, m := range r.containerCandidates(head.Signature(), head.Ext()) {
		tag := m.Descriptor().Tag
		dir, err := r.probe(m, source.NewView(src, name))
		if err != nil {
			r.logDecline(tag, name, err)
			continue
		}
		r.log().Info("opened container",
			slog.String("name", name),
			slog.String("module", tag),
			slog.Int("entries", dir.Len()))
		return newContainer(r, name, src, m, dir), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, name)
}

// probe runs one module probe, containing panics and re-checking every
// returned entry against the source.
func (r *Registry) probe(m format.ContainerModule, v *source.View) (*format.Directory, error) {
	dir, err := contain(format.ErrMalformedIndex, m.Descriptor().Tag, func() (*format.Directory, error) {
		return m.Probe(v)
	})
	if err != nil {
		return nil, err
	}
	if dir == nil {
		return nil, fmt.Errorf("%w: probe returned no directory", format.ErrNotThisFormat)
	}
	if dir.Len() > r.maxEntries {
		return nil, fmt.Errorf("%w: %d entries exceeds limit %d", format.ErrMalformedIndex, dir.Len(), r.maxEntries)
	}
	limit := v.MaxOffset()
	for i, e := range dir.All() {
		if err := format.CheckPlacement(e, limit); err != nil {
			return nil, fmt.Errorf("entry %d (%q): %w", i, e.Name, err)
		}
	}
	return dir, nil
}

// contain calls fn, turning a panic into an error wrapping kind.
func contain[T any](kind error, tag string, fn func() (T, error)) (out T, err error) {
	defer func() {
		if p := recover(); p != nil {
			var zero T
			out = zero
			err = fmt.Errorf("%w: %s panicked: %v", kind, tag, p)
		}
	}()
	return fn()
}

func (r *Registry) logDecline(tag, name string, err error) {
	r.log().Debug("probe declined",
		slog.String("module", tag),
		slog.String("name", name),
		slog.Bool("malformed", errors.Is(err, format.ErrMalformedIndex)),
		slog.Any("error", err))
}

// DecodeImage decodes src with the first image module whose metadata probe
// accepts it. Decode errors of that module are returned as is.
func (r *Registry) DecodeImage(src source.Source, name string) (*format.Pixels, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil source", ErrUnknownFormat)
	}
	head := source.NewView(src, name)
	for _, m := range r.imageCandidates(head.Signature(), head.Ext()) {
		tag := m.Descriptor().Tag
		meta, err := contain(format.ErrMalformedIndex, tag, func() (*format.ImageMeta, error) {
			return m.ProbeMetadata(src)
		})
		if err == nil && meta == nil {
			err = fmt.Errorf("%w: probe returned no metadata", format.ErrNotThisFormat)
		}
		if err != nil {
			r.logDecline(tag, name, err)
			continue
		}
		px, err := contain(format.ErrDecode, tag, func() (*format.Pixels, error) {
			return m.Decode(src, meta)
		})
		if err != nil {
			return nil, fmt.Errorf("%s: decode %s: %w", tag, name, err)
		}
		return px, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, name)
}

// DecodeAudio decodes src with the first audio module whose metadata probe
// accepts it. Decode errors of that module are returned as is.
func (r *Registry) DecodeAudio(src source.Source, name string) (*format.Samples, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil source", ErrUnknownFormat)
	}
	head := source.NewView(src, name)
	for _, m := range r.audioCandidates(head.Signature(), head.Ext()) {
		tag := m.Descriptor().Tag
		meta, err := contain(format.ErrMalformedIndex, tag, func() (*format.AudioMeta, error) {
			return m.ProbeMetadata(src)
		})
		if err == nil && meta == nil {
			err = fmt.Errorf("%w: probe returned no metadata", format.ErrNotThisFormat)
		}
		if err != nil {
			r.logDecline(tag, name, err)
			continue
		}
		s, err := contain(format.ErrDecode, tag, func() (*format.Samples, error) {
			return m.Decode(src, meta)
		})
		if err != nil {
			return nil, fmt.Errorf("%s: decode %s: %w", tag, name, err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, name)
}

// EncodeImage encodes px with the image module registered under tag.
func (r *Registry) EncodeImage(tag string, px *format.Pixels) ([]byte, error) {
	m, ok := r.Module(tag)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModule, tag)
	}
	im, ok := m.(format.ImageModule)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not an image module", ErrUnknownModule, tag)
	}
	if !im.Descriptor().CanWrite {
		return nil, fmt.Errorf("%w: %q is read-only", format.ErrUnsupportedWrite, tag)
	}
	if err := px.Validate(); err != nil {
		return nil, err
	}
	return contain(format.ErrUnsupportedWrite, tag, func() ([]byte, error) {
		return im.Encode(px)
	})
}

// EncodeAudio encodes s with the audio module registered under tag.
func (r *Registry) EncodeAudio(tag string, s *format.Samples) ([]byte, error) {
	m, ok := r.Module(tag)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModule, tag)
	}
	am, ok := m.(format.AudioModule)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not an audio module", ErrUnknownModule, tag)
	}
	if !am.Descriptor().CanWrite {
		return nil, fmt.Errorf("%w: %q is read-only", format.ErrUnsupportedWrite, tag)
	}
	return contain(format.ErrUnsupportedWrite, tag, func() ([]byte, error) {
		return am.Encode(s)
	})
}

// LoadIndex restores a Container from an index produced by
// Container.MarshalIndex without probing src.
//
// The index must name a registered container module and every entry must
// lie inside src.
func (r *Registry) LoadIndex(data []byte, src source.Source, name string) (*Container, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil source", format.ErrOutOfRange)
	}
	idx, err := index.Load(data)
	if err != nil {
		return nil, err
	}
	m, ok := r.containerModule(idx.Format())
	if !ok {
		return nil, fmt.Errorf("%w: index format %q", ErrUnknownModule, idx.Format())
	}
	if idx.Len() > r.maxEntries {
		return nil, fmt.Errorf("%w: %d entries exceeds limit %d", format.ErrMalformedIndex, idx.Len(), r.maxEntries)
	}
	dir, err := idx.Directory(source.NewView(src, name).MaxOffset())
	if err != nil {
		return nil, err
	}
	r.log().Info("loaded index",
		slog.String("name", name),
		slog.String("module", idx.Format()),
		slog.Int("entries", dir.Len()))
	return newContainer(r, name, src, m, dir), nil
}

// OpenFile opens the file at path and identifies its container format.
// Closing the returned Container closes the file.
func (r *Registry) OpenFile(path string) (*Container, error) {
	f, err := source.OpenFile(path)
	if err != nil {
		return nil, err
	}
	c, err := r.Open(f, path)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	c.closer = f
	return c, nil
}
