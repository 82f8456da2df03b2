package format

import (
	"fmt"
	"iter"

	"github.com/meigma/assetpack/internal/sizing"
)

// Kind classifies a contained resource.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindArchive
	KindImage
	KindAudio
	KindScript
)

// String returns the human-readable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindArchive:
		return "archive"
	case KindImage:
		return "image"
	case KindAudio:
		return "audio"
	case KindScript:
		return "script"
	default:
		return "unknown"
	}
}

// Ext returns the extension used when naming a resource of this kind whose
// content matched no known signature.
func (k Kind) Ext() string {
	switch k {
	case KindArchive:
		return ".dat"
	case KindImage:
		return ".img"
	case KindAudio:
		return ".snd"
	case KindScript:
		return ".txt"
	default:
		return ".bin"
	}
}

// Compression identifies how an entry's bytes are packed.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZlib
	CompressionZstd
	CompressionLZ4
	CompressionLZSS
)

// String returns the human-readable name of the compression algorithm.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZlib:
		return "zlib"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	case CompressionLZSS:
		return "lzss"
	default:
		return "unknown"
	}
}

// Entry describes one resource inside a container.
type Entry struct {
	// Name is the entry name as stored, or an auto-numbered name for
	// formats without names.
	Name string

	// Kind is the resource type, from context or from DetectKind.
	Kind Kind

	// Offset is the byte offset of the stored data in the container's
	// source (after the module's de-obfuscation, before slicing).
	Offset uint64

	// Size is the stored size in bytes. For packed entries this is the
	// compressed size.
	Size uint64

	// Compression is the algorithm the stored bytes are packed with.
	Compression Compression

	// UnpackedSize is the size after decompression.
	// Zero for stored entries.
	UnpackedSize uint64
}

// ContentSize returns the size of the entry's content after unpacking.
func (e Entry) ContentSize() uint64 {
	if e.Compression == CompressionNone {
		return e.Size
	}
	return e.UnpackedSize
}

// Directory is the ordered, immutable list of entries produced by a
// successful probe. Order is on-disk index order.
type Directory struct {
	entries   []Entry
	byName    map[string]int
	maxOffset uint64
}

// Len returns the number of entries.
func (d *Directory) Len() int {
	return len(d.entries)
}

// At returns the i-th entry.
func (d *Directory) At(i int) Entry {
	return d.entries[i]
}

// All returns an iterator over entries in index order.
func (d *Directory) All() iter.Seq2[int, Entry] {
	return func(yield func(int, Entry) bool) {
		for i, e := range d.entries {
			if !yield(i, e) {
				return
			}
		}
	}
}

// Entries returns a copy of the entries in index order.
func (d *Directory) Entries() []Entry {
	return append([]Entry(nil), d.entries...)
}

// Lookup returns the first entry with the given name.
func (d *Directory) Lookup(name string) (Entry, bool) {
	i, ok := d.byName[name]
	if !ok {
		return Entry{}, false
	}
	return d.entries[i], true
}

// MaxOffset returns the source length every entry was validated against.
func (d *Directory) MaxOffset() uint64 {
	return d.maxOffset
}

// Builder accumulates entries for a Directory, checking placement as each
// entry is added.
type Builder struct {
	maxOffset uint64
	entries   []Entry
}

// NewBuilder creates a Builder validating against maxOffset.
// sizeHint preallocates; it is capped so hostile counts cannot force a large
// allocation before any entry is validated.
func NewBuilder(maxOffset uint64, sizeHint int) *Builder {
	const maxHint = 4096
	sizeHint = min(max(sizeHint, 0), maxHint)
	return &Builder{
		maxOffset: maxOffset,
		entries:   make([]Entry, 0, sizeHint),
	}
}

// Add appends e after checking its placement.
func (b *Builder) Add(e Entry) error {
	if err := CheckPlacement(e, b.maxOffset); err != nil {
		return fmt.Errorf("entry %d (%q): %w", len(b.entries), e.Name, err)
	}
	b.entries = append(b.entries, e)
	return nil
}

// Len returns the number of entries added so far.
func (b *Builder) Len() int {
	return len(b.entries)
}

// Build returns the finished Directory. The Builder must not be used afterwards.
func (b *Builder) Build() *Directory {
	byName := make(map[string]int, len(b.entries))
	for i, e := range b.entries {
		if _, dup := byName[e.Name]; !dup {
			byName[e.Name] = i
		}
	}
	d := &Directory{
		entries:   b.entries,
		byName:    byName,
		maxOffset: b.maxOffset,
	}
	b.entries = nil
	return d
}

// Placement converts signed header fields into an Entry, rejecting negative
// values, and checks the result against maxOffset.
func Placement(name string, offset, size int64, maxOffset uint64) (Entry, error) {
	off, ok := sizing.FromInt64(offset)
	if !ok {
		return Entry{}, fmt.Errorf("%w: negative offset %d", ErrMalformedIndex, offset)
	}
	sz, ok := sizing.FromInt64(size)
	if !ok {
		return Entry{}, fmt.Errorf("%w: negative size %d", ErrMalformedIndex, size)
	}
	e := Entry{Name: name, Offset: off, Size: sz}
	if err := CheckPlacement(e, maxOffset); err != nil {
		return Entry{}, err
	}
	return e, nil
}
