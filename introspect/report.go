package introspect

import (
	"errors"

	"github.com/pithecene-io/suipack/movebin"
	"github.com/pithecene-io/suipack/types"
)

var errNoModules = errors.New("package has no modules")

// FunctionSignature is one functionMap entry in bcs.json.
type FunctionSignature struct {
	Visibility movebin.Visibility `json:"visibility"`
	IsEntry    bool               `json:"isEntry"`
	Params     []string           `json:"params"`
	Return     []string           `json:"return"`
}

// PackageReport is the content of bcs.json.
type PackageReport struct {
	DataType        string                                  `json:"dataType"`
	ID              types.Address                           `json:"id"`
	Version         uint64                                  `json:"version"`
	ModuleMap       map[string][]byte                       `json:"moduleMap"`
	TypeOriginTable []types.TypeOrigin                      `json:"typeOriginTable"`
	LinkageTable    map[types.Address]types.UpgradeInfo     `json:"linkageTable"`
	FunctionMap     map[string]map[string]FunctionSignature `json:"functionMap"`
}

// FunctionMap returns the interface of every function defined in view,
// keyed by function name.
func FunctionMap(view ModuleView) map[string]FunctionSignature {
	defs := view.FunctionDefs()
	out := make(map[string]FunctionSignature, len(defs))
	for i := range defs {
		def := &defs[i]
		h := view.FunctionHandleAt(def.Handle)
		out[view.IdentifierAt(h.Name)] = FunctionSignature{
			Visibility: def.Visibility,
			IsEntry:    def.IsEntry,
			Params:     FormatSignature(view, view.SignatureAt(h.Parameters)),
			Return:     FormatSignature(view, view.SignatureAt(h.Return)),
		}
	}
	return out
}

// Analysis holds the decoded modules of one package so that every report is
// derived from a single decode pass.
type Analysis struct {
	Package *types.Package
	Modules []NamedModule
}

// Analyze decodes all modules of pkg.
func Analyze(pkg *types.Package) (*Analysis, error) {
	modules, err := DecodeModules(pkg)
	if err != nil {
		return nil, err
	}
	return &Analysis{Package: pkg, Modules: modules}, nil
}

// Report builds the bcs.json document.
func (a *Analysis) Report() *PackageReport {
	pkg := a.Package
	r := &PackageReport{
		DataType:        "package",
		ID:              pkg.ID,
		Version:         pkg.Version,
		ModuleMap:       make(map[string][]byte, len(pkg.ModuleMap)),
		TypeOriginTable: make([]types.TypeOrigin, 0, len(pkg.TypeOriginTable)),
		LinkageTable:    make(map[types.Address]types.UpgradeInfo, len(pkg.LinkageTable)),
		FunctionMap:     make(map[string]map[string]FunctionSignature, len(a.Modules)),
	}
	for name, code := range pkg.ModuleMap {
		r.ModuleMap[name] = code
	}
	r.TypeOriginTable = append(r.TypeOriginTable, pkg.TypeOriginTable...)
	for k, v := range pkg.LinkageTable {
		r.LinkageTable[k] = v
	}
	for _, m := range a.Modules {
		r.FunctionMap[m.Name] = FunctionMap(m.Module)
	}
	return r
}

// BuildPackageReport decodes pkg and builds its bcs.json document.
func BuildPackageReport(pkg *types.Package) (*PackageReport, error) {
	a, err := Analyze(pkg)
	if err != nil {
		return nil, err
	}
	return a.Report(), nil
}

// OriginalID returns the id of the first version of the package. Version 1
// is its own original; upgrades keep the original id as the self address of
// their modules.
func (a *Analysis) OriginalID() (types.Address, error) {
	if a.Package.Version == 1 {
		return a.Package.ID, nil
	}
	if len(a.Modules) == 0 {
		return types.Address{}, types.NewError(types.ErrDecode, "original package id", a.Package.ID.String(), errNoModules)
	}
	first := a.Modules[0].Module
	return first.AddressAt(first.SelfHandle().Address), nil
}

// Metadata builds the metadata.json document for p.
func (a *Analysis) Metadata(p *types.PackageWithMetadata) (*types.PackageMetadata, error) {
	original, err := a.OriginalID()
	if err != nil {
		return nil, err
	}
	return &types.PackageMetadata{
		ID:                a.Package.ID,
		OriginalPackageID: original,
		Version:           a.Package.Version,
		Sender:            p.Sender,
		TransactionDigest: p.TransactionDigest,
		Checkpoint:        p.Checkpoint,
	}, nil
}
