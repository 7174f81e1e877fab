package runtime

import (
	"context"
	"io"

	"github.com/pithecene-io/suipack/types"
)

// Source yields packages one at a time. Next returns io.EOF after the last
// package; any other error ends the run.
type Source interface {
	Next(ctx context.Context) (*types.PackageWithMetadata, error)
}

// SliceSource serves packages that are already in memory.
type SliceSource struct {
	pkgs []*types.PackageWithMetadata
	pos  int
}

// NewSliceSource returns a source over pkgs in order.
func NewSliceSource(pkgs []*types.PackageWithMetadata) *SliceSource {
	return &SliceSource{pkgs: pkgs}
}

// Next returns the next package or io.EOF.
func (s *SliceSource) Next(ctx context.Context) (*types.PackageWithMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.pkgs) {
		return nil, io.EOF
	}
	p := s.pkgs[s.pos]
	s.pos++
	return p, nil
}

// Fetcher returns every package created after a checkpoint.
// *fetch.Client implements it.
type Fetcher interface {
	FetchAll(ctx context.Context, afterCheckpoint uint64) ([]*types.PackageWithMetadata, error)
}

// NewFetchSource returns a source that completes the whole paginated fetch
// before handing over the first package. A failure on any page or node
// ends the run with nothing archived.
func NewFetchSource(f Fetcher, afterCheckpoint uint64) *DeferredSource {
	return NewDeferredSource(func(ctx context.Context) ([]*types.PackageWithMetadata, error) {
		return f.FetchAll(ctx, afterCheckpoint)
	})
}

// PackageFetcher fetches one package by address. *fetch.Client implements it.
type PackageFetcher interface {
	FetchPackage(ctx context.Context, address string) (*types.PackageWithMetadata, error)
}

// AddressSource fetches the given addresses one per Next call, in order.
type AddressSource struct {
	fetcher   PackageFetcher
	addresses []string
	pos       int
}

// NewAddressSource returns a source over addresses.
func NewAddressSource(f PackageFetcher, addresses []string) *AddressSource {
	return &AddressSource{fetcher: f, addresses: addresses}
}

// Next fetches the next address or returns io.EOF.
func (s *AddressSource) Next(ctx context.Context) (*types.PackageWithMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.addresses) {
		return nil, io.EOF
	}
	addr := s.addresses[s.pos]
	s.pos++
	return s.fetcher.FetchPackage(ctx, addr)
}

// DeferredSource loads its packages on the first Next call so that load
// failures end the run like any other source error.
type DeferredSource struct {
	load   func(ctx context.Context) ([]*types.PackageWithMetadata, error)
	loaded *SliceSource
}

// NewDeferredSource returns a source backed by load.
func NewDeferredSource(load func(ctx context.Context) ([]*types.PackageWithMetadata, error)) *DeferredSource {
	return &DeferredSource{load: load}
}

// Next returns the next loaded package, the load error, or io.EOF.
func (s *DeferredSource) Next(ctx context.Context) (*types.PackageWithMetadata, error) {
	if s.loaded == nil {
		pkgs, err := s.load(ctx)
		if err != nil {
			return nil, err
		}
		s.loaded = NewSliceSource(pkgs)
	}
	return s.loaded.Next(ctx)
}
