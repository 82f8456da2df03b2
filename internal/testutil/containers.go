package testutil

import (
	"encoding/binary"
)

// Layout constants for the synthetic container formats.
const (
	ArcHeaderSize = 8
	ArcStride     = 0x20
	ArcNameLen    = 0x18

	PackHeaderSize = 0x10
	PackStride     = 0x30
	PackNameLen    = 0x20

	BankHeaderSize = 8
	BankVersion    = 1
)

// TestEntry holds data for building test containers.
type TestEntry struct {
	Name string
	// Data is the stored payload (already packed when Compression is set).
	Data []byte
	// Compression and UnpackedSize are written by pack only.
	Compression  uint8
	UnpackedSize uint32
}

// BuildArc creates an arc container: count, data offset, fixed-stride
// records of name[0x18], offset, size, then the payloads back to back from
// dataOffset. A zero dataOffset places data right after the index.
func BuildArc(entries []TestEntry, dataOffset uint32) []byte {
	indexEnd := uint32(ArcHeaderSize + len(entries)*ArcStride)
	if dataOffset == 0 {
		dataOffset = indexEnd
	}
	buf := make([]byte, dataOffset, int(dataOffset)+payloadSize(entries))
	binary.LittleEndian.PutUint32(buf[0:], uint32(len(entries)))
	binary.LittleEndian.PutUint32(buf[4:], dataOffset)

	for i, e := range entries {
		rec := buf[ArcHeaderSize+i*ArcStride:]
		copy(rec[:ArcNameLen], e.Name)
		binary.LittleEndian.PutUint32(rec[ArcNameLen:], uint32(len(buf)))
		binary.LittleEndian.PutUint32(rec[ArcNameLen+4:], uint32(len(e.Data)))
		buf = append(buf, e.Data...)
	}
	return buf
}

// ArcRecordOffset returns the position of entry i's offset field in an arc
// container, for tests that corrupt it.
func ArcRecordOffset(i int) int {
	return ArcHeaderSize + i*ArcStride + ArcNameLen
}

// BuildPack creates a PACK container: magic, count, data offset, reserved,
// then records of name[0x20], offset, size, unpacked size, compression,
// pad[3], then payloads.
func BuildPack(entries []TestEntry) []byte {
	dataOffset := PackHeaderSize + len(entries)*PackStride
	buf := make([]byte, dataOffset, dataOffset+payloadSize(entries))
	copy(buf, "PACK")
	binary.LittleEndian.PutUint32(buf[4:], uint32(len(entries)))
	binary.LittleEndian.PutUint32(buf[8:], uint32(dataOffset))

	for i, e := range entries {
		rec := buf[PackHeaderSize+i*PackStride:]
		copy(rec[:PackNameLen], e.Name)
		binary.LittleEndian.PutUint32(rec[PackNameLen:], uint32(len(buf)))
		binary.LittleEndian.PutUint32(rec[PackNameLen+4:], uint32(len(e.Data)))
		binary.LittleEndian.PutUint32(rec[PackNameLen+8:], e.UnpackedSize)
		rec[PackNameLen+12] = e.Compression
		buf = append(buf, e.Data...)
	}
	return buf
}

// BuildBank creates an SBNK container: magic, version, then size-prefixed
// records running to the end of the file. Names are not stored.
func BuildBank(payloads ...[]byte) []byte {
	total := BankHeaderSize
	for _, p := range payloads {
		total += 4 + len(p)
	}
	buf := make([]byte, BankHeaderSize, total)
	copy(buf, "SBNK")
	binary.LittleEndian.PutUint32(buf[4:], BankVersion)
	for _, p := range payloads {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(p)))
		buf = append(buf, p...)
	}
	return buf
}

// Xor returns a copy of data with every byte XORed with key.
func Xor(data []byte, key byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ key
	}
	return out
}

func payloadSize(entries []TestEntry) int {
	n := 0
	for _, e := range entries {
		n += len(e.Data)
	}
	return n
}
