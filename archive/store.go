// Package archive owns the on-disk package archive: a two-level sharded
// directory tree holding one directory per package id, with idempotent
// per-artifact writes and checkpoint recovery.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pithecene-io/suipack/introspect"
	"github.com/pithecene-io/suipack/iox"
	"github.com/pithecene-io/suipack/types"
)

// Artifact file and directory names inside a package directory.
const (
	BCSFile       = "bcs.json"
	CallGraphFile = "call_graph.json"
	MetadataFile  = "metadata.json"
	BytecodeDir   = "bytecode_modules"
	DecompiledDir = "decompiled_modules"
)

const filePerm = 0o644

// Store is an archive rooted at one directory. It holds no other state, so
// any number of stores may point at different roots.
type Store struct {
	root string
}

// New returns a store rooted at root. The directory is created lazily on
// the first write.
func New(root string) *Store {
	return &Store{root: root}
}

// Root returns the archive root directory.
func (s *Store) Root() string {
	return s.root
}

// ShardPath returns the package directory of id relative to the root:
// "0x" plus the first two hex digits, then the remaining 62 digits.
func ShardPath(id types.Address) string {
	h := id.Hex()
	return filepath.Join("0x"+h[:2], h[2:])
}

// PackageDir returns the absolute package directory of id.
func (s *Store) PackageDir(id types.Address) string {
	return filepath.Join(s.root, ShardPath(id))
}

// SaveOptions selects which artifacts Save writes. An artifact is written
// when it is enabled and either Force is set or the file does not exist.
type SaveOptions struct {
	BCS        bool
	Bytecode   bool
	Decompiled bool
	CallGraph  bool
	Metadata   bool
	Force      bool

	// Decompiler renders decompiled_modules. Required when Decompiled is set.
	Decompiler Decompiler
}

// AllArtifacts enables every artifact. The caller still sets Decompiler.
func AllArtifacts() SaveOptions {
	return SaveOptions{BCS: true, Bytecode: true, Decompiled: true, CallGraph: true, Metadata: true}
}

// SaveResult reports what Save did for one package. Paths are relative to
// the package directory.
type SaveResult struct {
	PackageID types.Address
	Dir       string
	Written   []string
	Skipped   []string
	// DecompilerRuns counts decompiler invocations.
	DecompilerRuns int
}

// Save writes the enabled artifacts of p in the order bcs.json, bytecode and
// decompiled modules, call_graph.json, metadata.json. The first failure
// aborts the package. Files are written atomically, so an interrupted run
// never leaves a partial artifact that a later run would skip.
func (s *Store) Save(ctx context.Context, p *types.PackageWithMetadata, opts SaveOptions) (*SaveResult, error) {
	pkg := p.Package
	subject := pkg.ID.String()
	if opts.Decompiled && opts.Decompiler == nil {
		return nil, types.NewError(types.ErrSubprocess, "decompile", subject,
			errors.New("decompiled output requested without a decompiler"))
	}
	for name := range pkg.ModuleMap {
		if !types.IsIdentifier(name) {
			return nil, types.NewError(types.ErrDecode, "validate module name", subject,
				fmt.Errorf("invalid module name %q", name))
		}
	}
	w := &saver{
		ctx:     ctx,
		pkg:     p,
		opts:    opts,
		dir:     s.PackageDir(pkg.ID),
		subject: subject,
		result:  &SaveResult{PackageID: pkg.ID, Dir: s.PackageDir(pkg.ID)},
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, types.NewError(types.ErrFilesystem, "create package directory", subject, err)
	}

	steps := []func() error{w.saveBCS, w.saveCodeFiles, w.saveCallGraph, w.saveMetadata}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return w.result, err
		}
		if err := step(); err != nil {
			return w.result, err
		}
	}
	return w.result, nil
}

// saver carries the state of one Save call. The analysis is computed on
// first use so a package whose report artifacts all exist is not decoded.
type saver struct {
	ctx      context.Context
	pkg      *types.PackageWithMetadata
	opts     SaveOptions
	dir      string
	subject  string
	result   *SaveResult
	analysis *introspect.Analysis
}

func (w *saver) analyze() (*introspect.Analysis, error) {
	if w.analysis != nil {
		return w.analysis, nil
	}
	a, err := introspect.Analyze(w.pkg.Package)
	if err != nil {
		return nil, err
	}
	w.analysis = a
	return a, nil
}

// shouldWrite reports whether rel must be (re)written and records a skip.
func (w *saver) shouldWrite(rel string) (bool, error) {
	if w.opts.Force {
		return true, nil
	}
	ok, err := exists(filepath.Join(w.dir, rel))
	if err != nil {
		return false, types.NewError(types.ErrFilesystem, "stat "+rel, w.subject, err)
	}
	if ok {
		w.result.Skipped = append(w.result.Skipped, rel)
		return false, nil
	}
	return true, nil
}

func (w *saver) write(rel string, data []byte) error {
	if err := iox.WriteFileAtomic(filepath.Join(w.dir, rel), data, filePerm); err != nil {
		return types.NewError(types.ErrFilesystem, "write "+rel, w.subject, err)
	}
	w.result.Written = append(w.result.Written, rel)
	return nil
}

func (w *saver) writeJSON(rel string, build func(a *introspect.Analysis) (any, error)) error {
	ok, err := w.shouldWrite(rel)
	if err != nil || !ok {
		return err
	}
	a, err := w.analyze()
	if err != nil {
		return err
	}
	v, err := build(a)
	if err != nil {
		return err
	}
	data, err := marshalPretty(v)
	if err != nil {
		return types.NewError(types.ErrFilesystem, "serialize "+rel, w.subject, err)
	}
	return w.write(rel, data)
}

func (w *saver) saveBCS() error {
	if !w.opts.BCS {
		return nil
	}
	return w.writeJSON(BCSFile, func(a *introspect.Analysis) (any, error) {
		return a.Report(), nil
	})
}

func (w *saver) saveCallGraph() error {
	if !w.opts.CallGraph {
		return nil
	}
	return w.writeJSON(CallGraphFile, func(a *introspect.Analysis) (any, error) {
		return a.CallGraph(), nil
	})
}

func (w *saver) saveMetadata() error {
	if !w.opts.Metadata {
		return nil
	}
	return w.writeJSON(MetadataFile, func(a *introspect.Analysis) (any, error) {
		return a.Metadata(w.pkg)
	})
}

// saveCodeFiles writes bytecode_modules/<name>.mv and
// decompiled_modules/<name>.move per module, in module name order.
func (w *saver) saveCodeFiles() error {
	if !w.opts.Bytecode && !w.opts.Decompiled {
		return nil
	}
	pkg := w.pkg.Package
	for _, name := range pkg.ModuleNames() {
		code := pkg.ModuleMap[name]
		bytecodeRel := filepath.Join(BytecodeDir, name+".mv")

		if w.opts.Bytecode {
			ok, err := w.shouldWrite(bytecodeRel)
			if err != nil {
				return err
			}
			if ok {
				if err := w.write(bytecodeRel, code); err != nil {
					return err
				}
			}
		}

		if w.opts.Decompiled {
			if err := w.saveDecompiled(name, code, bytecodeRel); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *saver) saveDecompiled(name string, code []byte, bytecodeRel string) error {
	rel := filepath.Join(DecompiledDir, name+".move")
	ok, err := w.shouldWrite(rel)
	if err != nil || !ok {
		return err
	}

	input := filepath.Join(w.dir, bytecodeRel)
	if !w.opts.Bytecode {
		tmpDir, err := os.MkdirTemp("", "suipack-decompile-*")
		if err != nil {
			return types.NewError(types.ErrFilesystem, "create decompiler input", w.subject, err)
		}
		defer func() { _ = os.RemoveAll(tmpDir) }()

		input = filepath.Join(tmpDir, name+".mv")
		if err := os.WriteFile(input, code, filePerm); err != nil {
			return types.NewError(types.ErrFilesystem, "write decompiler input", w.subject, err)
		}
	}

	w.result.DecompilerRuns++
	out, err := w.opts.Decompiler.Decompile(w.ctx, input)
	if err != nil {
		return types.NewError(types.ErrSubprocess, "decompile "+name, w.subject, err)
	}
	return w.write(rel, out)
}

// marshalPretty renders v as two-space indented JSON. Signatures such as
// &mut Coin<T> are written literally, not as \u0026 and \u003c escapes.
func marshalPretty(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}
