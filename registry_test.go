package assetpack

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/assetpack/format"
	"github.com/meigma/assetpack/formats/arc"
	"github.com/meigma/assetpack/internal/testutil"
	"github.com/meigma/assetpack/source"
)

func TestOpen_DispatchOrder(t *testing.T) {
	t.Parallel()

	sig := format.Magic("AAAA")
	data := []byte("AAAA payload")

	t.Run("signature then extension", func(t *testing.T) {
		t.Parallel()
		var trace []string
		r := NewRegistry()
		require.NoError(t, r.Register(declining("loose", 0, &trace)))
		require.NoError(t, r.Register(accepting("byext", 0, &trace, ".x")))
		require.NoError(t, r.Register(declining("signed", sig, &trace, ".x")))

		c, err := r.Open(source.Bytes(data), "file.x")
		require.NoError(t, err)
		assert.Equal(t, "byext", c.Format())
		assert.Equal(t, []string{"signed", "byext"}, trace)
	})

	t.Run("every module once", func(t *testing.T) {
		t.Parallel()
		var trace []string
		r := NewRegistry()
		require.NoError(t, r.Register(declining("signed", sig, &trace, ".x")))
		require.NoError(t, r.Register(declining("byext", 0, &trace, ".x")))
		require.NoError(t, r.Register(declining("loose", 0, &trace)))
		require.NoError(t, r.Register(declining("other", format.Magic("BBBB"), &trace, ".y")))

		_, err := r.Open(source.Bytes(data), "FILE.X")
		require.ErrorIs(t, err, ErrUnknownFormat)
		assert.Equal(t, []string{"signed", "byext", "loose"}, trace)
	})

	t.Run("signature failure falls through", func(t *testing.T) {
		t.Parallel()
		var trace []string
		r := NewRegistry()
		require.NoError(t, r.Register(declining("signed", sig, &trace)))
		require.NoError(t, r.Register(accepting("loose", 0, &trace)))

		c, err := r.Open(source.Bytes(data), "noext")
		require.NoError(t, err)
		assert.Equal(t, "loose", c.Format())
	})
}

func TestOpen_ContainsPanics(t *testing.T) {
	t.Parallel()

	panicking := &fakeContainer{
		desc: format.Descriptor{Tag: "panics"},
		probe: func(*source.View) (*format.Directory, error) {
			var entries []format.Entry
			_ = entries[3]
			return nil, nil
		},
	}
	r := NewRegistry()
	require.NoError(t, r.Register(panicking))
	require.NoError(t, r.Register(accepting("fallback", 0, nil)))

	c, err := r.Open(source.Bytes([]byte("data")), "x")
	require.NoError(t, err)
	assert.Equal(t, "fallback", c.Format())
}

func TestOpen_RechecksPlacement(t *testing.T) {
	t.Parallel()

	lying := &fakeContainer{
		desc: format.Descriptor{Tag: "liar"},
		probe: func(*source.View) (*format.Directory, error) {
			b := format.NewBuilder(1<<20, 1)
			if err := b.Add(format.Entry{Name: "far", Offset: 0x100, Size: 0x100}); err != nil {
				return nil, err
			}
			return b.Build(), nil
		},
	}
	nilDir := &fakeContainer{
		desc: format.Descriptor{Tag: "nil"},
		probe: func(*source.View) (*format.Directory, error) {
			return nil, nil
		},
	}
	r := NewRegistry()
	require.NoError(t, r.Register(lying))
	require.NoError(t, r.Register(nilDir))

	_, err := r.Open(source.Bytes(make([]byte, 16)), "x")
	require.ErrorIs(t, err, ErrUnknownFormat)
}

func TestOpen_MaxEntries(t *testing.T) {
	t.Parallel()

	data := testutil.BuildArc([]testutil.TestEntry{
		{Name: "a", Data: []byte("one")},
		{Name: "b", Data: []byte("two")},
	}, 0)

	r := NewRegistry(WithMaxEntries(1))
	require.NoError(t, r.Register(arc.New()))
	_, err := r.Open(source.Bytes(data), "x.arc")
	require.ErrorIs(t, err, ErrUnknownFormat)

	r = NewRegistry(WithMaxEntries(2))
	require.NoError(t, r.Register(arc.New()))
	c, err := r.Open(source.Bytes(data), "x.arc")
	require.NoError(t, err)
	assert.Equal(t, 2, c.Directory().Len())
}

func TestOpen_LogsDeclines(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	r := NewRegistry(WithLogger(logger))
	require.NoError(t, r.Register(arc.New()))

	// Two records, but the index would end past the declared data offset.
	data := testutil.BuildArc([]testutil.TestEntry{{Name: "a", Data: []byte("one")}, {Name: "b", Data: []byte("two")}}, 0)
	data[4] = testutil.ArcHeaderSize

	_, err := r.Open(source.Bytes(data), "bad.arc")
	require.ErrorIs(t, err, ErrUnknownFormat)
	assert.Contains(t, buf.String(), "probe declined")
	assert.Contains(t, buf.String(), "module=arc")
	assert.Contains(t, buf.String(), "malformed=true")
}

func TestRegister(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register(accepting("one", 0, nil)))

	err := r.Register(accepting("one", 0, nil))
	require.ErrorIs(t, err, ErrDuplicateTag)

	require.ErrorIs(t, r.Register(nil), ErrInvalidModule)
	require.ErrorIs(t, r.Register(accepting("", 0, nil)), ErrInvalidModule)
	require.ErrorIs(t, r.Register(descriptorOnly{}), ErrInvalidModule)

	assert.False(t, r.Sealed())
	r.Seal()
	r.Seal()
	assert.True(t, r.Sealed())
	require.ErrorIs(t, r.Register(accepting("two", 0, nil)), ErrRegistrySealed)

	m, ok := r.Module("one")
	require.True(t, ok)
	assert.Equal(t, "one", m.Descriptor().Tag)
	_, ok = r.Module("two")
	assert.False(t, ok)
}

type descriptorOnly struct{}

func (descriptorOnly) Descriptor() format.Descriptor {
	return format.Descriptor{Tag: "bare"}
}

func TestCandidates_Dedupe(t *testing.T) {
	t.Parallel()

	sig := format.Magic("SIGN")
	mods := []format.ContainerModule{
		accepting("both", sig, nil, ".a"),
		accepting("loose", 0, nil, ".a"),
		accepting("other", format.Magic("OTHR"), nil, ".b"),
	}
	got := candidates(mods, sig, ".a")

	tags := make([]string, 0, len(got))
	for _, m := range got {
		tags = append(tags, m.Descriptor().Tag)
	}
	assert.Equal(t, []string{"both", "loose"}, tags)
}

func TestDefault(t *testing.T) {
	t.Parallel()

	r := Default()
	assert.Same(t, r, Default())
	assert.True(t, r.Sealed())

	var tags []string
	for _, d := range r.Descriptors() {
		tags = append(tags, d.Tag)
	}
	assert.Equal(t, []string{"pack", "bank", "arc", "xarc", "cpix", "dib", "pcm"}, tags)
	require.ErrorIs(t, r.Register(accepting("late", 0, nil)), ErrRegistrySealed)
}

func TestOpen_BuiltinFormats(t *testing.T) {
	t.Parallel()

	arcData := testutil.BuildArc([]testutil.TestEntry{{Name: "readme", Data: []byte("plain")}}, 0)
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"game.pak", testutil.BuildPack([]testutil.TestEntry{{Name: "a", Data: []byte("x")}}), "pack"},
		{"sfx.bnk", testutil.BuildBank([]byte("RIFF....WAVE")), "bank"},
		{"data.arc", arcData, "arc"},
		{"unnamed", arcData, "arc"},
		{"data.xarc", testutil.Xor(arcData, 0xA5), "xarc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, err := Open(source.Bytes(tt.data), tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Format())
			assert.Equal(t, tt.name, c.Name())
		})
	}

	_, err := Open(source.Bytes([]byte("just some text, no archive here")), "notes.txt")
	require.ErrorIs(t, err, ErrUnknownFormat)
}
