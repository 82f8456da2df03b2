package assetpack

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/singleflight"

	"github.com/meigma/assetpack/format"
	"github.com/meigma/assetpack/internal/index"
	"github.com/meigma/assetpack/internal/sizing"
	"github.com/meigma/assetpack/source"
	"github.com/meigma/assetpack/stream"
)

// Container is a parsed container: a source, the module that recognized it
// and the directory of entries the module produced.
//
// A Container is safe for concurrent use. It does not own its source unless
// it was created by OpenFile, in which case Close closes the file.
type Container struct {
	reg    *Registry
	name   string
	src    source.Source
	module format.ContainerModule
	dir    *format.Directory

	readGroup singleflight.Group // zero value is valid
	closer    io.Closer
	closeOnce sync.Once
	closeErr  error
}

func newContainer(r *Registry, name string, src source.Source, m format.ContainerModule, dir *format.Directory) *Container {
	return &Container{
		reg:    r,
		name:   name,
		src:    src,
		module: m,
		dir:    dir,
	}
}

// Name returns the name the container was opened with.
func (c *Container) Name() string {
	return c.name
}

// Format returns the tag of the module that recognized the container.
func (c *Container) Format() string {
	return c.module.Descriptor().Tag
}

// Module returns the module that recognized the container.
func (c *Container) Module() format.ContainerModule {
	return c.module
}

// Source returns the container's source.
func (c *Container) Source() source.Source {
	return c.src
}

// Directory returns the container's entries.
func (c *Container) Directory() *format.Directory {
	return c.dir
}

// Lookup returns the first entry with the given name.
func (c *Container) Lookup(name string) (format.Entry, bool) {
	return c.dir.Lookup(name)
}

// Close releases the underlying file when the container owns it.
func (c *Container) Close() error {
	c.closeOnce.Do(func() {
		if c.closer != nil {
			c.closeErr = c.closer.Close()
		}
	})
	return c.closeErr
}

// entryStream applies the module's transform chain for e.
func (c *Container) entryStream(e format.Entry) (source.Source, error) {
	if err := format.CheckPlacement(e, c.dir.MaxOffset()); err != nil {
		return nil, fmt.Errorf("entry %q: %w", e.Name, err)
	}
	s, err := stream.Apply(c.src, c.module.Transforms(e)...)
	if err != nil {
		return nil, fmt.Errorf("entry %q: %w", e.Name, err)
	}
	if size := s.Size(); size < 0 || uint64(size) != e.Size {
		return nil, fmt.Errorf("%w: entry %q stream is %d bytes, want %d",
			format.ErrOutOfRange, e.Name, size, e.Size)
	}
	return s, nil
}

// OpenEntry returns the stored bytes of e, after the module's
// de-obfuscation but before decompression.
func (c *Container) OpenEntry(e format.Entry) (*io.SectionReader, error) {
	s, err := c.entryStream(e)
	if err != nil {
		return nil, err
	}
	return io.NewSectionReader(s, 0, s.Size()), nil
}

// ReadEntry returns the unpacked content of e.
//
// Concurrent reads of the same entry are deduplicated; every caller gets
// its own copy of the content.
func (c *Container) ReadEntry(e format.Entry) ([]byte, error) {
	if limit := c.reg.maxEntrySize; limit > 0 && (e.Size > limit || e.ContentSize() > limit) {
		return nil, fmt.Errorf("%w: %q is %d bytes (limit %d)", ErrEntryTooLarge, e.Name, max(e.Size, e.ContentSize()), limit)
	}

	key := fmt.Sprintf("%d:%d:%d:%d", e.Offset, e.Size, e.Compression, e.UnpackedSize)
	result, err, shared := c.readGroup.Do(key, func() (any, error) {
		return c.readEntry(e)
	})
	if err != nil {
		return nil, err
	}
	data := result.([]byte) //nolint:errcheck // type assertion always succeeds when err is nil
	if shared {
		c.reg.log().Debug("shared entry read", slog.String("name", c.name), slog.String("entry", e.Name))
		data = bytes.Clone(data)
	}
	return data, nil
}

func (c *Container) readEntry(e format.Entry) ([]byte, error) {
	r, err := c.OpenEntry(e)
	if err != nil {
		return nil, err
	}
	stored, err := sizing.ToInt(e.Size, ErrEntryTooLarge)
	if err != nil {
		return nil, err
	}
	unpacked, err := sizing.ToInt(e.ContentSize(), ErrEntryTooLarge)
	if err != nil {
		return nil, err
	}

	packed := make([]byte, stored)
	if _, err := io.ReadFull(r, packed); err != nil {
		return nil, fmt.Errorf("read entry %q: %w", e.Name, err)
	}
	data, err := c.reg.unpacker.Unpack(e.Compression, packed, unpacked)
	if err != nil {
		return nil, fmt.Errorf("entry %q: %w", e.Name, err)
	}
	return data, nil
}

// contentSource returns e's unpacked content as a source. Stored entries
// stream from the container; packed entries are read into memory.
func (c *Container) contentSource(e format.Entry) (source.Source, error) {
	if e.Compression == format.CompressionNone {
		return c.entryStream(e)
	}
	data, err := c.ReadEntry(e)
	if err != nil {
		return nil, err
	}
	return source.Bytes(data), nil
}

// OpenNested opens the content of e as a container with the same registry.
// The nested container reads through this container's source.
func (c *Container) OpenNested(e format.Entry) (*Container, error) {
	src, err := c.contentSource(e)
	if err != nil {
		return nil, err
	}
	return c.reg.Open(src, e.Name)
}

// DecodeImage decodes the content of e with the registry's image modules.
func (c *Container) DecodeImage(e format.Entry) (*format.Pixels, error) {
	src, err := c.contentSource(e)
	if err != nil {
		return nil, err
	}
	return c.reg.DecodeImage(src, e.Name)
}

// DecodeAudio decodes the content of e with the registry's audio modules.
func (c *Container) DecodeAudio(e format.Entry) (*format.Samples, error) {
	src, err := c.contentSource(e)
	if err != nil {
		return nil, err
	}
	return c.reg.DecodeAudio(src, e.Name)
}

// Digest returns the sha256 digest of e's unpacked content.
func (c *Container) Digest(e format.Entry) (digest.Digest, error) {
	if e.Compression != format.CompressionNone {
		data, err := c.ReadEntry(e)
		if err != nil {
			return "", err
		}
		return digest.FromBytes(data), nil
	}
	r, err := c.OpenEntry(e)
	if err != nil {
		return "", err
	}
	d, err := digest.FromReader(r)
	if err != nil {
		return "", fmt.Errorf("digest entry %q: %w", e.Name, err)
	}
	return d, nil
}

// MarshalIndex encodes the directory as FlatBuffers for Registry.LoadIndex.
func (c *Container) MarshalIndex() []byte {
	return index.Marshal(c.Format(), c.dir.MaxOffset(), c.dir)
}
