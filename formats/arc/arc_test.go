package arc

import (
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/assetpack/format"
	"github.com/meigma/assetpack/internal/testutil"
	"github.com/meigma/assetpack/source"
	"github.com/meigma/assetpack/stream"
)

func probe(t *testing.T, data []byte) (*format.Directory, error) {
	t.Helper()
	return New().Probe(source.NewView(source.Bytes(data), "test.arc"))
}

func twoEntries() []testutil.TestEntry {
	return []testutil.TestEntry{
		{Name: "logo.png", Data: []byte("\x89PNG\r\n\x1a\nimagebytes")},
		{Name: "readme", Data: []byte("plain text")},
	}
}

func TestProbe_TwoRecords(t *testing.T) {
	t.Parallel()

	data := testutil.BuildArc(twoEntries(), 0x50)
	dir, err := probe(t, data)
	require.NoError(t, err)
	require.Equal(t, 2, dir.Len())

	first, second := dir.At(0), dir.At(1)
	assert.Equal(t, "logo.png", first.Name)
	assert.Equal(t, uint64(0x50), first.Offset)
	assert.Equal(t, uint64(18), first.Size)
	assert.Equal(t, format.KindImage, first.Kind)

	assert.Equal(t, "readme", second.Name)
	assert.Equal(t, uint64(0x50+18), second.Offset)
	assert.Equal(t, format.KindUnknown, second.Kind)

	for _, e := range dir.All() {
		assert.NoError(t, format.CheckPlacement(e, uint64(len(data))))
	}
}

func TestProbe_ShiftJISName(t *testing.T) {
	t.Parallel()

	data := testutil.BuildArc([]testutil.TestEntry{
		{Name: "\x83\x65\x83\x58\x83\x67.txt", Data: []byte("text")},
	}, 0)
	dir, err := probe(t, data)
	require.NoError(t, err)

	e, ok := dir.Lookup("テスト.txt")
	require.True(t, ok)
	assert.Equal(t, uint64(4), e.Size)
}

func TestProbe_OffsetPastEndDeclines(t *testing.T) {
	t.Parallel()

	data := testutil.BuildArc(twoEntries(), 0x50)
	binary.LittleEndian.PutUint32(data[testutil.ArcRecordOffset(1):], uint32(len(data)))

	_, err := probe(t, data)
	require.Error(t, err)
	assert.True(t, format.IsDecline(err))
	assert.ErrorIs(t, err, format.ErrOutOfRange)
}

func TestProbe_Declines(t *testing.T) {
	t.Parallel()

	valid := func() []byte { return testutil.BuildArc(twoEntries(), 0x50) }

	tests := []struct {
		name   string
		mutate func([]byte) []byte
		want   error
	}{
		{
			name:   "too short",
			mutate: func(b []byte) []byte { return b[:6] },
			want:   format.ErrOutOfRange,
		},
		{
			name: "zero count",
			mutate: func(b []byte) []byte {
				binary.LittleEndian.PutUint32(b, 0)
				return b
			},
			want: format.ErrNotThisFormat,
		},
		{
			name: "huge count",
			mutate: func(b []byte) []byte {
				binary.LittleEndian.PutUint32(b, 0xFFFFFFFF)
				return b
			},
			want: format.ErrMalformedIndex,
		},
		{
			name: "data offset inside index",
			mutate: func(b []byte) []byte {
				binary.LittleEndian.PutUint32(b[4:], 0x20)
				return b
			},
			want: format.ErrMalformedIndex,
		},
		{
			name: "data offset past end",
			mutate: func(b []byte) []byte {
				binary.LittleEndian.PutUint32(b[4:], 0x10000)
				return b
			},
			want: format.ErrOutOfRange,
		},
		{
			name: "record before data start",
			mutate: func(b []byte) []byte {
				binary.LittleEndian.PutUint32(b[testutil.ArcRecordOffset(0):], 0x10)
				return b
			},
			want: format.ErrMalformedIndex,
		},
		{
			name: "empty name",
			mutate: func(b []byte) []byte {
				b[testutil.ArcHeaderSize] = 0
				return b
			},
			want: format.ErrMalformedIndex,
		},
		{
			name:   "foreign file",
			mutate: func([]byte) []byte { return []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR") },
			want:   format.ErrMalformedIndex,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := probe(t, tt.mutate(valid()))
			require.ErrorIs(t, err, tt.want)
			assert.True(t, format.IsDecline(err))
		})
	}
}

func TestTransforms_MaterializeEntry(t *testing.T) {
	t.Parallel()

	data := testutil.BuildArc(twoEntries(), 0)
	src := source.Bytes(data)
	dir, err := New().Probe(source.NewView(src, "x.arc"))
	require.NoError(t, err)

	e := dir.At(1)
	out, err := stream.Apply(src, New().Transforms(e)...)
	require.NoError(t, err)
	require.Equal(t, int64(e.Size), out.Size())

	got, err := io.ReadAll(io.NewSectionReader(out, 0, out.Size()))
	require.NoError(t, err)
	assert.Equal(t, []byte("plain text"), got)
}
