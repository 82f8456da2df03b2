// Package xorwrap implements containers that are another container format
// with every byte XORed by a single-byte key.
//
// The wrapper probes the unmodified inner module against a de-obfuscated
// stream, so the inner module never learns it is being wrapped. Entries keep
// the inner module's offsets; materializing one applies the XOR first and
// slices second.
package xorwrap

import (
	"fmt"
	"slices"
	"strings"

	"github.com/meigma/assetpack/format"
	"github.com/meigma/assetpack/formats/arc"
	"github.com/meigma/assetpack/source"
	"github.com/meigma/assetpack/stream"
)

// Built-in alias of arc obfuscated with 0xA5.
const (
	DefaultTag = "xarc"
	DefaultKey = 0xA5
)

// Module wraps an inner container module behind a single-byte XOR.
type Module struct {
	desc  format.Descriptor
	inner format.ContainerModule
	key   byte
}

// New returns a wrapper registered as tag that XORs with key and probes with
// inner. The wrapper has no signature: obfuscated magic is only known after
// de-obfuscation, so candidates come from extensions or the fallback pass.
func New(tag, description string, inner format.ContainerModule, key byte, extensions []string) *Module {
	exts := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		if ext = normalizeExt(ext); ext != "" && !slices.Contains(exts, ext) {
			exts = append(exts, ext)
		}
	}
	return &Module{
		desc: format.Descriptor{
			Tag:         tag,
			Description: description,
			Extensions:  exts,
		},
		inner: inner,
		key:   key,
	}
}

// NewDefault returns the built-in xarc alias.
func NewDefault() *Module {
	return New(DefaultTag, "arc obfuscated with XOR 0xA5", arc.New(), DefaultKey, []string{".xarc"})
}

// Descriptor implements format.Module.
func (m *Module) Descriptor() format.Descriptor {
	return m.desc
}

// Key returns the XOR key.
func (m *Module) Key() byte {
	return m.key
}

// Inner returns the wrapped module.
func (m *Module) Inner() format.ContainerModule {
	return m.inner
}

// Probe implements format.ContainerModule.
func (m *Module) Probe(v *source.View) (*format.Directory, error) {
	plain := source.NewView(stream.Xor(v.Source(), m.key), v.Name())
	dir, err := m.inner.Probe(plain)
	if err != nil {
		return nil, fmt.Errorf("%s under xor %#02x: %w", m.inner.Descriptor().Tag, m.key, err)
	}
	return dir, nil
}

// Transforms implements format.ContainerModule. The XOR wraps the container
// source before the inner module's own chain runs.
func (m *Module) Transforms(e format.Entry) []stream.Transform {
	return append([]stream.Transform{stream.WithXor(m.key)}, m.inner.Transforms(e)...)
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" || strings.HasPrefix(ext, ".") {
		return ext
	}
	return "." + ext
}
