package assetpack

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/assetpack/format"
	"github.com/meigma/assetpack/internal/testutil"
	"github.com/meigma/assetpack/source"
)

var (
	plainText  = []byte("hello from a stored entry")
	repetitive = bytes.Repeat([]byte("abcd"), 64)
)

// packedFixture returns a PACK container holding one entry per compression.
func packedFixture(t *testing.T) []byte {
	t.Helper()
	packed := func(name string, c format.Compression, data []byte, unpacked int) testutil.TestEntry {
		return testutil.TestEntry{Name: name, Data: data, Compression: uint8(c), UnpackedSize: uint32(unpacked)}
	}
	return testutil.BuildPack([]testutil.TestEntry{
		{Name: "plain.txt", Data: plainText},
		packed("text.zlib", format.CompressionZlib, zlibData(t, plainText), len(plainText)),
		packed("blob.zst", format.CompressionZstd, zstdData(t, repetitive), len(repetitive)),
		packed("blob.lz4", format.CompressionLZ4, lz4Data(t, repetitive), len(repetitive)),
		packed("abc.lzss", format.CompressionLZSS, []byte{0x07, 'A', 'B', 'C', 0xEE, 0xF0}, 6),
	})
}

func openPacked(t *testing.T, opts ...Option) *Container {
	t.Helper()
	r, err := NewDefaultRegistry(opts...)
	require.NoError(t, err)
	c, err := r.Open(source.Bytes(packedFixture(t)), "fixture.pak")
	require.NoError(t, err)
	require.Equal(t, "pack", c.Format())
	return c
}

func lookup(t *testing.T, c *Container, name string) format.Entry {
	t.Helper()
	e, ok := c.Lookup(name)
	require.True(t, ok, name)
	return e
}

func TestReadEntry_Compressions(t *testing.T) {
	t.Parallel()

	c := openPacked(t)
	tests := []struct {
		name string
		want []byte
	}{
		{"plain.txt", plainText},
		{"text.zlib", plainText},
		{"blob.zst", repetitive},
		{"blob.lz4", repetitive},
		{"abc.lzss", []byte("ABCABC")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := lookup(t, c, tt.name)
			got, err := c.ReadEntry(e)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			again, err := c.ReadEntry(e)
			require.NoError(t, err)
			assert.Equal(t, got, again)
		})
	}
}

func TestReadEntry_Concurrent(t *testing.T) {
	t.Parallel()

	c := openPacked(t)
	e := lookup(t, c, "blob.zst")

	const readers = 16
	results := make([][]byte, readers)
	var wg sync.WaitGroup
	for i := range readers {
		wg.Go(func() {
			data, err := c.ReadEntry(e)
			assert.NoError(t, err)
			results[i] = data
		})
	}
	wg.Wait()

	for _, data := range results {
		assert.Equal(t, repetitive, data)
	}
	results[0][0] = 'X'
	assert.Equal(t, repetitive, results[1], "callers must not share buffers")
}

func TestReadEntry_TooLarge(t *testing.T) {
	t.Parallel()

	c := openPacked(t, WithMaxEntrySize(64))

	_, err := c.ReadEntry(lookup(t, c, "plain.txt"))
	require.NoError(t, err)

	// Stored size is small, unpacked size is not.
	_, err = c.ReadEntry(lookup(t, c, "blob.zst"))
	require.ErrorIs(t, err, ErrEntryTooLarge)
}

func TestReadEntry_CorruptPayload(t *testing.T) {
	t.Parallel()

	data := testutil.BuildPack([]testutil.TestEntry{
		{Name: "bad.zlib", Data: []byte("not zlib at all"), Compression: uint8(format.CompressionZlib), UnpackedSize: 10},
	})
	c, err := Open(source.Bytes(data), "bad.pak")
	require.NoError(t, err)

	_, err = c.ReadEntry(lookup(t, c, "bad.zlib"))
	require.ErrorIs(t, err, ErrDecode)
}

func TestOpen_ReadsLazily(t *testing.T) {
	t.Parallel()

	big := bytes.Repeat([]byte{0x5A}, 1<<20)
	src := testutil.NewMockSource(testutil.BuildPack([]testutil.TestEntry{
		{Name: "big.bin", Data: big},
		{Name: "small.txt", Data: plainText},
	}))
	c, err := Open(src, "lazy.pak")
	require.NoError(t, err)
	opened := src.Reads()
	assert.Less(t, opened, int64(32), "probing reads headers only")

	got, err := c.ReadEntry(lookup(t, c, "small.txt"))
	require.NoError(t, err)
	assert.Equal(t, plainText, got)
	assert.Greater(t, src.Reads(), opened)
}

func TestOpenEntry(t *testing.T) {
	t.Parallel()

	c := openPacked(t)
	e := lookup(t, c, "text.zlib")

	r, err := c.OpenEntry(e)
	require.NoError(t, err)
	assert.Equal(t, int64(e.Size), r.Size())
	stored, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, zlibData(t, plainText), stored, "OpenEntry returns stored bytes")

	e.Size = c.Directory().MaxOffset()
	_, err = c.OpenEntry(e)
	require.ErrorIs(t, err, ErrOutOfRange)
}

func TestOpenEntry_Xor(t *testing.T) {
	t.Parallel()

	data := testutil.Xor(testutil.BuildArc([]testutil.TestEntry{{Name: "secret", Data: []byte("clear text")}}, 0), 0xA5)
	c, err := Open(source.Bytes(data), "hidden.xarc")
	require.NoError(t, err)
	require.Equal(t, "xarc", c.Format())

	got, err := c.ReadEntry(lookup(t, c, "secret"))
	require.NoError(t, err)
	assert.Equal(t, []byte("clear text"), got)
}

func TestOpenNested(t *testing.T) {
	t.Parallel()

	inner := testutil.BuildArc([]testutil.TestEntry{
		{Name: "deep.txt", Data: []byte("nested content")},
	}, 0)
	outer := testutil.BuildPack([]testutil.TestEntry{
		{Name: "stored.arc", Data: inner},
		{Name: "packed.arc", Data: zlibData(t, inner), Compression: uint8(format.CompressionZlib), UnpackedSize: uint32(len(inner))},
	})
	c, err := Open(source.Bytes(outer), "outer.pak")
	require.NoError(t, err)

	for _, name := range []string{"stored.arc", "packed.arc"} {
		nested, err := c.OpenNested(lookup(t, c, name))
		require.NoError(t, err, name)
		assert.Equal(t, "arc", nested.Format())
		assert.Equal(t, name, nested.Name())

		got, err := nested.ReadEntry(lookup(t, nested, "deep.txt"))
		require.NoError(t, err)
		assert.Equal(t, []byte("nested content"), got)
	}
}

func TestDigest(t *testing.T) {
	t.Parallel()

	c := openPacked(t)
	for _, name := range []string{"plain.txt", "text.zlib"} {
		d, err := c.Digest(lookup(t, c, name))
		require.NoError(t, err)
		assert.Equal(t, digest.FromBytes(plainText), d, name)
	}
}

func TestIndex_RoundTrip(t *testing.T) {
	t.Parallel()

	c := openPacked(t)
	data := c.MarshalIndex()

	r, err := NewDefaultRegistry()
	require.NoError(t, err)
	restored, err := r.LoadIndex(data, c.Source(), "fixture.pak")
	require.NoError(t, err)
	assert.Equal(t, "pack", restored.Format())
	assert.Equal(t, c.Directory().Entries(), restored.Directory().Entries())

	got, err := restored.ReadEntry(lookup(t, restored, "blob.lz4"))
	require.NoError(t, err)
	assert.Equal(t, repetitive, got)
}

func TestLoadIndex_Rejects(t *testing.T) {
	t.Parallel()

	fixture := packedFixture(t)
	c, err := Open(source.Bytes(fixture), "fixture.pak")
	require.NoError(t, err)
	data := c.MarshalIndex()

	t.Run("shorter source", func(t *testing.T) {
		t.Parallel()
		_, err := Default().LoadIndex(data, source.Bytes(fixture[:len(fixture)-4]), "cut.pak")
		require.ErrorIs(t, err, ErrMalformedIndex)
	})

	t.Run("unregistered format", func(t *testing.T) {
		t.Parallel()
		r, err := NewDefaultRegistry(WithConfig(&Config{Disabled: []string{"pack"}}))
		require.NoError(t, err)
		_, err = r.LoadIndex(data, source.Bytes(fixture), "fixture.pak")
		require.ErrorIs(t, err, ErrUnknownModule)
	})

	t.Run("garbage", func(t *testing.T) {
		t.Parallel()
		_, err := Default().LoadIndex([]byte{1, 2}, source.Bytes(fixture), "fixture.pak")
		require.ErrorIs(t, err, ErrMalformedIndex)
	})

	t.Run("too many entries", func(t *testing.T) {
		t.Parallel()
		r, err := NewDefaultRegistry(WithMaxEntries(2))
		require.NoError(t, err)
		_, err = r.LoadIndex(data, source.Bytes(fixture), "fixture.pak")
		require.ErrorIs(t, err, ErrMalformedIndex)
	})
}

func TestOpenFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "fixture.pak")
	require.NoError(t, os.WriteFile(path, packedFixture(t), 0o600))

	c, err := OpenFile(path)
	require.NoError(t, err)
	got, err := c.ReadEntry(lookup(t, c, "text.zlib"))
	require.NoError(t, err)
	assert.Equal(t, plainText, got)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err = OpenFile(filepath.Join(t.TempDir(), "missing.pak"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
