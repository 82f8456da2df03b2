// Package index encodes container directories as FlatBuffers so that a
// parsed directory can be saved and reloaded without re-probing.
package index

import (
	"fmt"
	"iter"

	flatbuffers "github.com/google/flatbuffers/go"

	"github.com/meigma/assetpack/format"
	"github.com/meigma/assetpack/internal/fb"
)

// Version is the index layout version written by Marshal.
const Version = 1

// Index provides read access to a FlatBuffers-encoded directory.
type Index struct {
	data []byte
	root *fb.Index
}

// Marshal encodes d as an index for a source of sourceSize bytes produced by
// the module with tag formatTag.
func Marshal(formatTag string, sourceSize uint64, d *format.Directory) []byte {
	builder := flatbuffers.NewBuilder(1024)

	// Child objects must be built before the tables that reference them.
	entryOffsets := make([]flatbuffers.UOffsetT, d.Len())
	for i, e := range d.All() {
		nameOffset := builder.CreateString(e.Name)
		fb.EntryStart(builder)
		fb.EntryAddName(builder, nameOffset)
		fb.EntryAddKind(builder, byte(e.Kind))
		fb.EntryAddOffset(builder, e.Offset)
		fb.EntryAddSize(builder, e.Size)
		fb.EntryAddCompression(builder, byte(e.Compression))
		fb.EntryAddUnpackedSize(builder, e.UnpackedSize)
		entryOffsets[i] = fb.EntryEnd(builder)
	}

	fb.IndexStartEntriesVector(builder, len(entryOffsets))
	for i := len(entryOffsets) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(entryOffsets[i])
	}
	entriesOffset := builder.EndVector(len(entryOffsets))

	formatOffset := builder.CreateString(formatTag)
	fb.IndexStart(builder)
	fb.IndexAddVersion(builder, Version)
	fb.IndexAddFormat(builder, formatOffset)
	fb.IndexAddSourceSize(builder, sourceSize)
	fb.IndexAddEntries(builder, entriesOffset)
	indexOffset := fb.IndexEnd(builder)
	fb.FinishIndexBuffer(builder, indexOffset)

	return builder.FinishedBytes()
}

// Load parses a FlatBuffers-encoded index.
//
// Every table is walked once so that corrupt offsets surface here as
// format.ErrMalformedIndex rather than as panics in later accessors. The
// provided data is retained; callers must not modify it after calling Load.
func Load(data []byte) (idx *Index, err error) {
	if len(data) < flatbuffers.SizeUOffsetT {
		return nil, fmt.Errorf("%w: index data too short", format.ErrMalformedIndex)
	}

	defer func() {
		if r := recover(); r != nil {
			idx = nil
			err = fmt.Errorf("%w: corrupt index: %v", format.ErrMalformedIndex, r)
		}
	}()

	root := fb.GetRootAsIndex(data, 0)
	idx = &Index{data: data, root: root}
	if v := root.Version(); v != Version {
		return nil, fmt.Errorf("%w: unsupported index version %d", format.ErrMalformedIndex, v)
	}
	if n := root.EntriesLength(); n > format.MaxEntries {
		return nil, fmt.Errorf("%w: %d entries exceeds limit", format.ErrMalformedIndex, n)
	}
	_ = root.Format()
	for range idx.Entries() { //nolint:revive // decoding each entry is the check
	}
	return idx, nil
}

// Version returns the layout version of the index.
func (idx *Index) Version() uint32 {
	return idx.root.Version()
}

// Format returns the tag of the module that produced the directory.
func (idx *Index) Format() string {
	return string(idx.root.Format())
}

// SourceSize returns the size of the source the directory was parsed from.
func (idx *Index) SourceSize() uint64 {
	return idx.root.SourceSize()
}

// Len returns the number of entries in the index.
func (idx *Index) Len() int {
	return idx.root.EntriesLength()
}

// Entries returns an iterator over the decoded entries in index order.
func (idx *Index) Entries() iter.Seq2[int, format.Entry] {
	return func(yield func(int, format.Entry) bool) {
		var fbEntry fb.Entry
		for i := range idx.root.EntriesLength() {
			if !idx.root.Entries(&fbEntry, i) {
				return
			}
			if !yield(i, entryFromFlatBuffers(&fbEntry)) {
				return
			}
		}
	}
}

// Directory rebuilds the directory for a source whose readable extent is
// maxOffset, re-checking every entry's placement against it.
func (idx *Index) Directory(maxOffset uint64) (*format.Directory, error) {
	if idx.SourceSize() != maxOffset {
		return nil, fmt.Errorf("%w: index built for %d bytes, source has %d",
			format.ErrMalformedIndex, idx.SourceSize(), maxOffset)
	}
	b := format.NewBuilder(maxOffset, idx.Len())
	for i, e := range idx.Entries() {
		if err := b.Add(e); err != nil {
			return nil, fmt.Errorf("entry %d %q: %w", i, e.Name, err)
		}
	}
	return b.Build(), nil
}

func entryFromFlatBuffers(e *fb.Entry) format.Entry {
	return format.Entry{
		Name:         string(e.Name()),
		Kind:         format.Kind(e.Kind()),
		Offset:       e.Offset(),
		Size:         e.Size(),
		Compression:  format.Compression(e.Compression()),
		UnpackedSize: e.UnpackedSize(),
	}
}
