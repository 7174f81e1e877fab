package reader

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pithecene-io/suipack/archive"
	"github.com/pithecene-io/suipack/introspect"
	"github.com/pithecene-io/suipack/movebin"
	"github.com/pithecene-io/suipack/types"
)

// Reader abstracts read-only data access for CLI commands.
type Reader interface {
	ListPackages() ([]ListPackageItem, error)
	InspectPackage(id types.Address) (*InspectPackageResponse, error)
	Stats() (*ArchiveStats, error)
	AuditCaps() ([]CapFinding, error)
}

// ArchiveReader answers queries from an on-disk archive.
type ArchiveReader struct {
	store *archive.Store
}

var _ Reader = (*ArchiveReader)(nil)

// New creates a reader over store.
func New(store *archive.Store) *ArchiveReader {
	return &ArchiveReader{store: store}
}

// ListPackages lists every archived package in id order. A package without
// metadata.json is listed with HasMetadata false; a corrupt one fails.
func (r *ArchiveReader) ListPackages() ([]ListPackageItem, error) {
	ids, err := r.store.PackageIDs()
	if err != nil {
		return nil, err
	}
	items := make([]ListPackageItem, 0, len(ids))
	for _, id := range ids {
		item := ListPackageItem{ID: id}
		meta, err := r.store.ReadMetadata(id)
		switch {
		case err == nil:
			item.Version = meta.Version
			item.Checkpoint = meta.Checkpoint
			item.HasMetadata = true
		case !errors.Is(err, fs.ErrNotExist):
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// InspectPackage summarizes one archived package. bcs.json is required;
// metadata.json is optional.
func (r *ArchiveReader) InspectPackage(id types.Address) (*InspectPackageResponse, error) {
	dir := r.store.PackageDir(id)
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, types.NewError(types.ErrFilesystem, "inspect", id.String(), errors.New("package not archived"))
		}
		return nil, types.NewError(types.ErrFilesystem, "inspect", id.String(), err)
	}

	pkg, err := r.store.LoadPackage(id)
	if err != nil {
		return nil, err
	}
	analysis, err := introspect.Analyze(pkg)
	if err != nil {
		return nil, err
	}

	resp := &InspectPackageResponse{
		ID:           id,
		Version:      pkg.Version,
		Dependencies: len(pkg.LinkageTable),
		Modules:      make([]ModuleSummary, 0, len(analysis.Modules)),
	}
	if original, err := analysis.OriginalID(); err == nil {
		resp.OriginalPackageID = &original
	}

	meta, err := r.store.ReadMetadata(id)
	switch {
	case err == nil:
		resp.Checkpoint = &meta.Checkpoint
		resp.TransactionDigest = meta.TransactionDigest
		resp.Sender = meta.Sender
	case !errors.Is(err, fs.ErrNotExist):
		return nil, err
	}

	if resp.Artifacts, err = artifacts(dir); err != nil {
		return nil, err
	}
	for _, m := range analysis.Modules {
		resp.Modules = append(resp.Modules, summarize(m))
	}
	return resp, nil
}

func summarize(m introspect.NamedModule) ModuleSummary {
	s := ModuleSummary{
		Name:    m.Name,
		Structs: len(m.Module.StructDefs()),
		Caps:    []string{},
	}
	for _, def := range m.Module.FunctionDefs() {
		s.Functions++
		if def.Visibility == movebin.Public {
			s.PublicFunctions++
		}
		if def.IsEntry {
			s.EntryFunctions++
		}
	}
	for _, c := range introspect.InterestingCaps(m.Module) {
		s.Caps = append(s.Caps, c.Name)
	}
	return s
}

// artifacts lists the files under dir relative to it, slash-separated and
// in lexical order.
func artifacts(dir string) ([]string, error) {
	out := []string{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, types.NewError(types.ErrFilesystem, "list artifacts", dir, err)
	}
	return out, nil
}

// Stats summarizes the archive.
func (r *ArchiveReader) Stats() (*ArchiveStats, error) {
	st, err := r.store.Stats()
	if err != nil {
		return nil, err
	}
	return &ArchiveStats{
		Root:              r.store.Root(),
		Packages:          st.Packages,
		WithBCS:           st.WithBCS,
		WithCallGraph:     st.WithCallGraph,
		WithMetadata:      st.WithMetadata,
		BytecodeModules:   st.BytecodeModules,
		DecompiledModules: st.DecompiledModules,
		LatestCheckpoint:  st.LatestCheckpoint,
	}, nil
}

// AuditCaps decodes every archived package from its bcs.json and reports
// structs whose name ends in "Cap" and which carry more than one field.
// Packages without bcs.json are skipped; a bcs.json that fails to decode
// fails the audit.
func (r *ArchiveReader) AuditCaps() ([]CapFinding, error) {
	ids, err := r.store.PackageIDs()
	if err != nil {
		return nil, err
	}
	findings := []CapFinding{}
	for _, id := range ids {
		modules, err := r.store.LoadModules(id)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, m := range modules {
			for _, c := range introspect.InterestingCaps(m.Module) {
				findings = append(findings, CapFinding{
					PackageID: id,
					Module:    c.Module,
					Name:      c.Name,
					Fields:    c.Fields,
					Qualified: c.Qualified,
				})
			}
		}
	}
	return findings, nil
}
