package archive

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/pithecene-io/suipack/introspect"
	"github.com/pithecene-io/suipack/types"
)

var shardPattern = regexp.MustCompile(`^[0-9a-f]{62}$`)

// PackageDirs lists every package directory in the archive: second-level
// directories named by 62 hex digits under first-level directories whose
// name starts with "0x". The result is sorted. A missing root is an empty
// archive.
func (s *Store) PackageDirs() ([]string, error) {
	first, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, types.NewError(types.ErrFilesystem, "list archive", s.root, err)
	}

	var dirs []string
	for _, shard := range first {
		if !shard.IsDir() || !strings.HasPrefix(shard.Name(), "0x") {
			continue
		}
		shardDir := filepath.Join(s.root, shard.Name())
		second, err := os.ReadDir(shardDir)
		if err != nil {
			return nil, types.NewError(types.ErrFilesystem, "list shard", shardDir, err)
		}
		for _, entry := range second {
			if entry.IsDir() && shardPattern.MatchString(entry.Name()) {
				dirs = append(dirs, filepath.Join(shardDir, entry.Name()))
			}
		}
	}
	slices.Sort(dirs)
	return dirs, nil
}

// PackageIDs lists the ids of every archived package, sorted. Directories
// whose path does not spell a 64-digit id are ignored.
func (s *Store) PackageIDs() ([]types.Address, error) {
	dirs, err := s.PackageDirs()
	if err != nil {
		return nil, err
	}
	ids := make([]types.Address, 0, len(dirs))
	for _, dir := range dirs {
		id, ok := idFromDir(dir)
		if ok {
			ids = append(ids, id)
		}
	}
	slices.SortFunc(ids, types.Address.Compare)
	return ids, nil
}

func idFromDir(dir string) (types.Address, bool) {
	shard := filepath.Base(filepath.Dir(dir))
	if len(shard) != 4 {
		return types.Address{}, false
	}
	id, err := types.ParseAddress(shard + filepath.Base(dir))
	if err != nil {
		return types.Address{}, false
	}
	return id, true
}

// LatestCheckpoint returns the highest checkpoint recorded in any
// metadata.json, or 0 for an empty archive. A package directory with a
// missing or unreadable metadata.json fails the scan.
func (s *Store) LatestCheckpoint() (uint64, error) {
	dirs, err := s.PackageDirs()
	if err != nil {
		return 0, err
	}
	var latest uint64
	for _, dir := range dirs {
		meta, err := readMetadataFile(filepath.Join(dir, MetadataFile))
		if err != nil {
			return 0, err
		}
		latest = max(latest, meta.Checkpoint)
	}
	return latest, nil
}

// ReadMetadata reads the metadata.json of id.
func (s *Store) ReadMetadata(id types.Address) (*types.PackageMetadata, error) {
	return readMetadataFile(filepath.Join(s.PackageDir(id), MetadataFile))
}

func readMetadataFile(path string) (*types.PackageMetadata, error) {
	var meta types.PackageMetadata
	if err := readJSON(path, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadPackageReport reads the bcs.json of id.
func (s *Store) LoadPackageReport(id types.Address) (*introspect.PackageReport, error) {
	var report introspect.PackageReport
	if err := readJSON(filepath.Join(s.PackageDir(id), BCSFile), &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// LoadPackage rebuilds the package of id from its bcs.json.
func (s *Store) LoadPackage(id types.Address) (*types.Package, error) {
	report, err := s.LoadPackageReport(id)
	if err != nil {
		return nil, err
	}
	return &types.Package{
		ID:              report.ID,
		Version:         report.Version,
		ModuleMap:       report.ModuleMap,
		TypeOriginTable: report.TypeOriginTable,
		LinkageTable:    report.LinkageTable,
	}, nil
}

// LoadModules decodes the modules stored in the bcs.json of id, in module
// name order.
func (s *Store) LoadModules(id types.Address) ([]introspect.NamedModule, error) {
	pkg, err := s.LoadPackage(id)
	if err != nil {
		return nil, err
	}
	return introspect.DecodeModules(pkg)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.NewError(types.ErrFilesystem, "read", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return types.NewError(types.ErrDecode, "parse", path, err)
	}
	return nil
}

// Stats summarizes archive contents.
type Stats struct {
	Packages          int    `json:"packages"`
	WithBCS           int    `json:"with_bcs"`
	WithCallGraph     int    `json:"with_call_graph"`
	WithMetadata      int    `json:"with_metadata"`
	BytecodeModules   int    `json:"bytecode_modules"`
	DecompiledModules int    `json:"decompiled_modules"`
	LatestCheckpoint  uint64 `json:"latest_checkpoint"`
}

// Stats walks every package directory and counts its artifacts. Unlike
// LatestCheckpoint, a missing metadata.json is counted rather than fatal;
// a corrupt one still fails.
func (s *Store) Stats() (*Stats, error) {
	dirs, err := s.PackageDirs()
	if err != nil {
		return nil, err
	}
	st := &Stats{Packages: len(dirs)}
	for _, dir := range dirs {
		for name, counter := range map[string]*int{
			BCSFile:       &st.WithBCS,
			CallGraphFile: &st.WithCallGraph,
		} {
			ok, err := exists(filepath.Join(dir, name))
			if err != nil {
				return nil, types.NewError(types.ErrFilesystem, "stat "+name, dir, err)
			}
			if ok {
				*counter++
			}
		}

		metaPath := filepath.Join(dir, MetadataFile)
		ok, err := exists(metaPath)
		if err != nil {
			return nil, types.NewError(types.ErrFilesystem, "stat "+MetadataFile, dir, err)
		}
		if ok {
			meta, err := readMetadataFile(metaPath)
			if err != nil {
				return nil, err
			}
			st.WithMetadata++
			st.LatestCheckpoint = max(st.LatestCheckpoint, meta.Checkpoint)
		}

		if st.BytecodeModules, err = addFiles(st.BytecodeModules, filepath.Join(dir, BytecodeDir), ".mv"); err != nil {
			return nil, err
		}
		if st.DecompiledModules, err = addFiles(st.DecompiledModules, filepath.Join(dir, DecompiledDir), ".move"); err != nil {
			return nil, err
		}
	}
	return st, nil
}

func addFiles(n int, dir, ext string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return n, nil
		}
		return n, types.NewError(types.ErrFilesystem, "list", dir, err)
	}
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ext {
			n++
		}
	}
	return n, nil
}
