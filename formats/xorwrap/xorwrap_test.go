package xorwrap

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/assetpack/format"
	"github.com/meigma/assetpack/formats/pack"
	"github.com/meigma/assetpack/internal/testutil"
	"github.com/meigma/assetpack/source"
	"github.com/meigma/assetpack/stream"
)

func TestNewDefault(t *testing.T) {
	t.Parallel()

	m := NewDefault()
	d := m.Descriptor()
	assert.Equal(t, DefaultTag, d.Tag)
	assert.Equal(t, uint32(0), d.Signature)
	assert.Equal(t, []string{".xarc"}, d.Extensions)
	assert.False(t, d.CanWrite)
	assert.Equal(t, byte(DefaultKey), m.Key())
	assert.Equal(t, "arc", m.Inner().Descriptor().Tag)
}

func TestNew_NormalizesExtensions(t *testing.T) {
	t.Parallel()

	m := New("xpak", "", pack.New(), 0x3C, []string{"XPK", ".xpk", "", " .Dat "})
	assert.Equal(t, []string{".xpk", ".dat"}, m.Descriptor().Extensions)
}

func TestProbe_DelegatesToInner(t *testing.T) {
	t.Parallel()

	plain := testutil.BuildArc([]testutil.TestEntry{
		{Name: "one", Data: []byte("first payload")},
		{Name: "two", Data: []byte("second")},
	}, 0x50)
	obfuscated := testutil.Xor(plain, DefaultKey)
	src := source.Bytes(obfuscated)

	m := NewDefault()
	dir, err := m.Probe(source.NewView(src, "data.xarc"))
	require.NoError(t, err)
	require.Equal(t, 2, dir.Len())
	assert.Equal(t, "one", dir.At(0).Name)
	assert.Equal(t, uint64(0x50), dir.At(0).Offset)

	e := dir.At(1)
	out, err := stream.Apply(src, m.Transforms(e)...)
	require.NoError(t, err)
	got, err := io.ReadAll(io.NewSectionReader(out, 0, out.Size()))
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
}

func TestProbe_PlainInputDeclines(t *testing.T) {
	t.Parallel()

	plain := testutil.BuildArc([]testutil.TestEntry{{Name: "one", Data: []byte("x")}}, 0)
	_, err := NewDefault().Probe(source.NewView(source.Bytes(plain), "data.xarc"))
	require.Error(t, err)
	assert.True(t, format.IsDecline(err))
}

func TestProbe_WrapsSignedInner(t *testing.T) {
	t.Parallel()

	plain := testutil.BuildPack([]testutil.TestEntry{{Name: "a.lua", Data: []byte("\x1bLua!")}})
	m := New("xpak", "pack under xor", pack.New(), 0x3C, []string{".xpk"})

	dir, err := m.Probe(source.NewView(source.Bytes(testutil.Xor(plain, 0x3C)), "a.xpk"))
	require.NoError(t, err)
	require.Equal(t, 1, dir.Len())
	assert.Equal(t, format.KindScript, dir.At(0).Kind, "kind sniffed through the xor")

	_, err = m.Probe(source.NewView(source.Bytes(testutil.Xor(plain, 0x3D)), "a.xpk"))
	require.ErrorIs(t, err, format.ErrNotThisFormat)
}
