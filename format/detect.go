package format

import (
	"bytes"

	"github.com/meigma/assetpack/source"
)

// sniffLen is the longest magic in the table.
const sniffLen = 8

type magic struct {
	prefix []byte
	kind   Kind
	ext    string
}

// magics is checked in order; longer prefixes sharing a start go first.
var magics = []magic{
	{[]byte("PACK"), KindArchive, ".pak"},
	{[]byte("SBNK"), KindArchive, ".bnk"},
	{[]byte("PK\x03\x04"), KindArchive, ".zip"},
	{[]byte("CPIX"), KindImage, ".cpx"},
	{[]byte("\x89PNG\r\n\x1a\n"), KindImage, ".png"},
	{[]byte("\xFF\xD8\xFF"), KindImage, ".jpg"},
	{[]byte("GIF8"), KindImage, ".gif"},
	{[]byte("TIM2"), KindImage, ".tm2"},
	{[]byte("BM"), KindImage, ".bmp"},
	{[]byte("\x28\x00\x00\x00"), KindImage, ".dib"},
	{[]byte("RIFF"), KindAudio, ".wav"},
	{[]byte("OggS"), KindAudio, ".ogg"},
	{[]byte("PCM "), KindAudio, ".pcm"},
	{[]byte("VAGp"), KindAudio, ".vag"},
	{[]byte("\x1bLua"), KindScript, ".lua"},
	{[]byte("<?xml"), KindScript, ".xml"},
	{[]byte("#!"), KindScript, ".txt"},
}

// Sniff inspects the first bytes of the resource at [offset, offset+size)
// and returns its kind and a conventional extension. Unmatched or unreadable
// resources are KindUnknown with extension ".bin".
//
// The range should already have passed CheckPlacement.
func Sniff(v *source.View, offset, size uint64) (Kind, string) {
	n := min(size, sniffLen)
	if n == 0 {
		return KindUnknown, KindUnknown.Ext()
	}
	head, err := v.ReadBytes(offset, n)
	if err != nil {
		return KindUnknown, KindUnknown.Ext()
	}
	for _, m := range magics {
		if bytes.HasPrefix(head, m.prefix) {
			return m.kind, m.ext
		}
	}
	return KindUnknown, KindUnknown.Ext()
}

// DetectKind returns the kind Sniff assigns to the resource.
func DetectKind(v *source.View, offset, size uint64) Kind {
	k, _ := Sniff(v, offset, size)
	return k
}
