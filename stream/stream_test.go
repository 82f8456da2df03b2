package stream

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/assetpack/source"
)

func readAll(t *testing.T, src source.Source) []byte {
	t.Helper()
	data, err := io.ReadAll(io.NewSectionReader(src, 0, src.Size()))
	require.NoError(t, err)
	return data
}

func TestXor_ArbitraryOffsets(t *testing.T) {
	t.Parallel()

	plain := []byte("the quick brown fox")
	enc := make([]byte, len(plain))
	for i, b := range plain {
		enc[i] = b ^ 0x5A
	}
	x := Xor(source.Bytes(enc), 0x5A)

	assert.Equal(t, plain, readAll(t, x))

	// re-read from the middle, backwards
	buf := make([]byte, 5)
	_, err := x.ReadAt(buf, 10)
	require.NoError(t, err)
	assert.Equal(t, []byte("brown"), buf)
	_, err = x.ReadAt(buf, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("quick"), buf)
}

func TestXorKey_UsesAbsoluteOffset(t *testing.T) {
	t.Parallel()

	key := []byte{0x01, 0x02, 0x03}
	plain := []byte("abcdefgh")
	enc := make([]byte, len(plain))
	for i, b := range plain {
		enc[i] = b ^ key[i%len(key)]
	}
	x, err := XorKey(source.Bytes(enc), key)
	require.NoError(t, err)

	buf := make([]byte, 3)
	_, err = x.ReadAt(buf, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("efg"), buf)
	assert.Equal(t, plain, readAll(t, x))

	_, err = XorKey(source.Bytes(enc), nil)
	require.Error(t, err)
}

func TestPrefix(t *testing.T) {
	t.Parallel()

	p := Prefix([]byte("BM"), source.Bytes([]byte("body")))
	assert.Equal(t, int64(6), p.Size())
	assert.Equal(t, []byte("BMbody"), readAll(t, p))

	// read straddling the boundary
	buf := make([]byte, 3)
	n, err := p.ReadAt(buf, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte("Mbo"), buf)

	// read entirely inside the inner source
	n, err = p.ReadAt(buf[:2], 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("dy"), buf[:n])

	_, err = p.ReadAt(buf, 6)
	assert.ErrorIs(t, err, io.EOF)
}

func TestSlice_Relative(t *testing.T) {
	t.Parallel()

	s, err := Slice(source.Bytes([]byte("0123456789")), 3, 4, true)
	require.NoError(t, err)
	assert.Equal(t, int64(4), s.Size())
	assert.Equal(t, []byte("3456"), readAll(t, s))

	buf := make([]byte, 4)
	n, err := s.ReadAt(buf, 2)
	assert.Equal(t, 2, n)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []byte("56"), buf[:n])
}

func TestSlice_Absolute(t *testing.T) {
	t.Parallel()

	s, err := Slice(source.Bytes([]byte("0123456789")), 3, 4, false)
	require.NoError(t, err)
	assert.Equal(t, int64(7), s.Size())

	buf := make([]byte, 2)
	_, err = s.ReadAt(buf, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("45"), buf)

	_, err = s.ReadAt(buf, 1)
	require.ErrorIs(t, err, source.ErrOutOfRange)
}

func TestSlice_OutOfBounds(t *testing.T) {
	t.Parallel()

	src := source.Bytes([]byte("0123"))
	_, err := Slice(src, 2, 3, true)
	require.ErrorIs(t, err, source.ErrOutOfRange)
	_, err = Slice(src, ^uint64(0), 2, true)
	require.ErrorIs(t, err, source.ErrOutOfRange)

	s, err := Slice(src, 4, 0, true)
	require.NoError(t, err)
	assert.Equal(t, int64(0), s.Size())
}

func TestSliceOfXor_MatchesSourceXorKey(t *testing.T) {
	t.Parallel()

	raw := make([]byte, 256)
	for i := range raw {
		raw[i] = byte(i * 7)
	}
	const key = 0xC3
	const start, length = 37, 100

	s, err := Apply(source.Bytes(raw), WithXor(key), WithSlice(start, length, true))
	require.NoError(t, err)
	got := readAll(t, s)
	require.Len(t, got, length)
	for k := range length {
		assert.Equal(t, raw[start+k]^key, got[k], "offset %d", k)
	}
}

func TestApply_OrderMatters(t *testing.T) {
	t.Parallel()

	src := source.Bytes([]byte("abcdef"))

	sliceThenPrefix, err := Apply(src, WithSlice(2, 2, true), WithPrefix([]byte("XY")))
	require.NoError(t, err)
	prefixThenSlice, err := Apply(src, WithPrefix([]byte("XY")), WithSlice(2, 2, true))
	require.NoError(t, err)

	assert.Equal(t, []byte("XYcd"), readAll(t, sliceThenPrefix))
	assert.Equal(t, []byte("ab"), readAll(t, prefixThenSlice))
}

func TestApply_PropagatesError(t *testing.T) {
	t.Parallel()

	_, err := Apply(source.Bytes([]byte("ab")), WithSlice(0, 10, true))
	require.ErrorIs(t, err, source.ErrOutOfRange)
}
