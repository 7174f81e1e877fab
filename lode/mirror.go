package lode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/suipack/archive"
	"github.com/pithecene-io/suipack/metrics"
	"github.com/pithecene-io/suipack/types"
)

// Mirror backends.
const (
	BackendFS = "fs"
	BackendS3 = "s3"
)

// Config selects and configures a mirror backend.
type Config struct {
	// Backend is BackendFS or BackendS3.
	Backend string
	// Root is the filesystem mirror directory (fs backend).
	Root string
	// S3 configures the s3 backend.
	S3 S3Config
	// Force overwrites objects that already exist.
	Force bool
}

// Validate checks that the selected backend is configured.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendFS:
		if c.Root == "" {
			return errors.New("fs mirror root is required")
		}
		return nil
	case BackendS3:
		return c.S3.Validate()
	default:
		return fmt.Errorf("unknown mirror backend %q", c.Backend)
	}
}

// Mirror copies archive artifacts to a lode store, keyed by their path
// relative to the archive root with forward slashes.
type Mirror struct {
	store   lode.Store
	force   bool
	metrics *metrics.Collector
}

// Open creates a mirror for cfg. The s3 backend loads AWS credentials
// from the default chain.
func Open(ctx context.Context, cfg Config, m *metrics.Collector) (*Mirror, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var factory lode.StoreFactory
	switch cfg.Backend {
	case BackendFS:
		if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
			return nil, wrap("init", cfg.Root, err)
		}
		factory = lode.NewFSFactory(cfg.Root)
	case BackendS3:
		f, err := newS3Factory(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		factory = f
	}
	return NewMirror(factory, cfg.Force, m)
}

// NewMirror creates a mirror over the store built by factory.
// Use lode.NewMemoryFactory() for testing.
func NewMirror(factory lode.StoreFactory, force bool, m *metrics.Collector) (*Mirror, error) {
	store, err := factory()
	if err != nil {
		return nil, wrap("init", "", err)
	}
	return &Mirror{store: store, force: force, metrics: m}, nil
}

// Key returns the object key of an artifact, relative to the package
// directory of id.
func Key(id types.Address, rel string) string {
	return path.Join(filepath.ToSlash(archive.ShardPath(id)), filepath.ToSlash(rel))
}

// Upload copies one local file to key. An existing object is kept unless
// the mirror forces, in which case it is deleted and rewritten. Reports
// whether the object was written.
func (m *Mirror) Upload(ctx context.Context, key, localPath string) (bool, error) {
	if !m.force {
		ok, err := m.store.Exists(ctx, key)
		if err != nil {
			return false, wrap("exists", key, err)
		}
		if ok {
			return false, nil
		}
	} else if err := m.store.Delete(ctx, key); err != nil && !errors.Is(classifyError(err), ErrNotFound) {
		return false, wrap("delete", key, err)
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return false, wrap("read", localPath, err)
	}
	if err := m.store.Put(ctx, key, bytes.NewReader(data)); err != nil {
		return false, wrap("put", key, err)
	}
	return true, nil
}

// MirrorPackage uploads the artifacts Save just wrote. The first failure
// stops the package and is reported as a filesystem error.
func (m *Mirror) MirrorPackage(ctx context.Context, res *archive.SaveResult) (int, error) {
	uploaded := 0
	for _, rel := range res.Written {
		if err := ctx.Err(); err != nil {
			return uploaded, err
		}
		key := Key(res.PackageID, rel)
		ok, err := m.Upload(ctx, key, filepath.Join(res.Dir, rel))
		if err != nil {
			m.metrics.IncMirrorFailure()
			return uploaded, types.NewError(types.ErrFilesystem, "mirror artifact", key, err)
		}
		if ok {
			m.metrics.IncMirrorUpload()
			uploaded++
		}
	}
	return uploaded, nil
}

// Close releases mirror resources.
func (m *Mirror) Close() error {
	// lode stores hold no open handles
	return nil
}
