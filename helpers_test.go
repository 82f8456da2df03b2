package assetpack

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/require"

	"github.com/meigma/assetpack/format"
	"github.com/meigma/assetpack/source"
	"github.com/meigma/assetpack/stream"
)

// fakeContainer is a container module driven by a probe function.
type fakeContainer struct {
	desc  format.Descriptor
	probe func(v *source.View) (*format.Directory, error)
	trace *[]string
}

func (f *fakeContainer) Descriptor() format.Descriptor {
	return f.desc
}

func (f *fakeContainer) Probe(v *source.View) (*format.Directory, error) {
	if f.trace != nil {
		*f.trace = append(*f.trace, f.desc.Tag)
	}
	return f.probe(v)
}

func (f *fakeContainer) Transforms(e format.Entry) []stream.Transform {
	return format.DefaultTransforms(e)
}

func declining(tag string, sig uint32, trace *[]string, exts ...string) *fakeContainer {
	return &fakeContainer{
		desc:  format.Descriptor{Tag: tag, Signature: sig, Extensions: exts},
		trace: trace,
		probe: func(*source.View) (*format.Directory, error) {
			return nil, format.ErrNotThisFormat
		},
	}
}

// accepting returns a module that claims the whole source as one entry.
func accepting(tag string, sig uint32, trace *[]string, exts ...string) *fakeContainer {
	return &fakeContainer{
		desc:  format.Descriptor{Tag: tag, Signature: sig, Extensions: exts},
		trace: trace,
		probe: func(v *source.View) (*format.Directory, error) {
			b := format.NewBuilder(v.MaxOffset(), 1)
			if err := b.Add(format.Entry{Name: "all", Size: v.MaxOffset()}); err != nil {
				return nil, err
			}
			return b.Build(), nil
		},
	}
}

func zstdData(t *testing.T, data []byte) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	defer enc.Close()
	return enc.EncodeAll(data, nil)
}

func zlibData(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func lz4Data(t *testing.T, data []byte) []byte {
	t.Helper()
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, dst, nil)
	require.NoError(t, err)
	require.Positive(t, n, "test data must be compressible")
	return dst[:n]
}

// cpixImage builds a 24-bit CPIX image from a back-reference payload.
func cpixImage(width, height uint16, payload []byte) []byte {
	buf := make([]byte, 16, 16+len(payload))
	copy(buf, "CPIX")
	binary.LittleEndian.PutUint16(buf[4:], width)
	binary.LittleEndian.PutUint16(buf[6:], height)
	buf[8] = 24
	binary.LittleEndian.PutUint32(buf[12:], uint32(len(payload)))
	return append(buf, payload...)
}
