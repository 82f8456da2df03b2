//go:generate flatc --go --go-namespace fb -o internal schema/index.fbs

// Package assetpack extracts sub-files, images and audio from game asset
// containers whose binary layouts vary per title.
//
// Format handling is split into independent modules (see [format]) that are
// collected in a [Registry]. Opening a source asks each candidate module, in
// a fixed order, whether the source is in its format:
//
//  1. modules whose signature equals the first four bytes,
//  2. modules listing the source's extension, in registration order,
//  3. every module without a signature, in registration order.
//
// The first module whose probe succeeds wins. A probe that declines, fails a
// bounds check or even panics only moves dispatch on to the next candidate.
// Every entry in the resulting [Container] has been checked to lie inside the
// source.
//
// # Quick Start
//
// Open a file with the built-in modules and read an entry:
//
//	c, err := assetpack.OpenFile("data/title.pak")
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//	for _, e := range c.Directory().All() {
//	    data, err := c.ReadEntry(e)
//	    ...
//	}
//
// Entries are materialized lazily through the owning module's stream
// transforms (XOR de-obfuscation, prefix injection, region slicing), so the
// container is never loaded into memory as a whole.
//
// # Configuration
//
// [NewDefaultRegistry] accepts a [Config], usually loaded from YAML with
// [LoadConfigFile], to adjust limits, disable built-in modules and register
// additional XOR-obfuscated aliases of existing container formats.
//
// # Index export
//
// [Container.MarshalIndex] encodes a parsed directory as FlatBuffers;
// [Registry.LoadIndex] restores it for the same source without re-probing,
// re-checking every entry against the source it is given.
package assetpack
