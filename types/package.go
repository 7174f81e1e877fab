package types

import (
	"fmt"
	"regexp"
	"slices"

	"github.com/pithecene-io/suipack/bcs"
)

// TypeOrigin records which package first defined a datatype.
// JSON keys follow the on-chain serde names.
type TypeOrigin struct {
	ModuleName   string  `json:"module_name"`
	DatatypeName string  `json:"datatype_name"`
	Package      Address `json:"package"`
}

// UpgradeInfo is the linkage entry for one dependency.
type UpgradeInfo struct {
	UpgradedID      Address `json:"upgraded_id"`
	UpgradedVersion uint64  `json:"upgraded_version"`
}

// Package is a decoded Move package object.
type Package struct {
	ID      Address
	Version uint64
	// ModuleMap maps module name to raw module bytecode.
	ModuleMap map[string][]byte
	// TypeOriginTable and LinkageTable are carried through unchanged.
	TypeOriginTable []TypeOrigin
	LinkageTable    map[Address]UpgradeInfo
}

// identifierPattern is the Move identifier grammar.
var identifierPattern = regexp.MustCompile(`^(?:[a-zA-Z][a-zA-Z0-9_]*|_[a-zA-Z0-9_]+)$`)

// IsIdentifier reports whether s is a valid Move identifier. Module names
// become file names in the archive, so nothing else is accepted.
func IsIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// ModuleNames returns the module names in sorted order.
func (p *Package) ModuleNames() []string {
	names := make([]string, 0, len(p.ModuleMap))
	for name := range p.ModuleMap {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// DecodePackage parses the BCS encoding of a package object:
// id, version, module map, type-origin table, linkage table.
// Trailing bytes are rejected.
func DecodePackage(b []byte) (*Package, error) {
	d := bcs.NewDecoder(b)
	pkg := &Package{}

	id, err := readAddress(d)
	if err != nil {
		return nil, fmt.Errorf("package id: %w", err)
	}
	pkg.ID = id

	if pkg.Version, err = d.ReadU64(); err != nil {
		return nil, fmt.Errorf("package version: %w", err)
	}

	n, err := d.ReadLength()
	if err != nil {
		return nil, fmt.Errorf("module map: %w", err)
	}
	pkg.ModuleMap = make(map[string][]byte, n)
	for i := 0; i < n; i++ {
		name, err := d.ReadString()
		if err != nil {
			return nil, fmt.Errorf("module map entry %d name: %w", i, err)
		}
		if !IsIdentifier(name) {
			return nil, fmt.Errorf("module map entry %d: invalid module name %q", i, name)
		}
		code, err := d.ReadByteVector()
		if err != nil {
			return nil, fmt.Errorf("module %s bytes: %w", name, err)
		}
		if _, dup := pkg.ModuleMap[name]; dup {
			return nil, fmt.Errorf("duplicate module %q", name)
		}
		pkg.ModuleMap[name] = code
	}

	if n, err = d.ReadLength(); err != nil {
		return nil, fmt.Errorf("type origin table: %w", err)
	}
	pkg.TypeOriginTable = make([]TypeOrigin, 0, n)
	for i := 0; i < n; i++ {
		var origin TypeOrigin
		if origin.ModuleName, err = d.ReadString(); err != nil {
			return nil, fmt.Errorf("type origin %d: %w", i, err)
		}
		if origin.DatatypeName, err = d.ReadString(); err != nil {
			return nil, fmt.Errorf("type origin %d: %w", i, err)
		}
		if origin.Package, err = readAddress(d); err != nil {
			return nil, fmt.Errorf("type origin %d: %w", i, err)
		}
		pkg.TypeOriginTable = append(pkg.TypeOriginTable, origin)
	}

	if n, err = d.ReadLength(); err != nil {
		return nil, fmt.Errorf("linkage table: %w", err)
	}
	pkg.LinkageTable = make(map[Address]UpgradeInfo, n)
	for i := 0; i < n; i++ {
		key, err := readAddress(d)
		if err != nil {
			return nil, fmt.Errorf("linkage %d key: %w", i, err)
		}
		var info UpgradeInfo
		if info.UpgradedID, err = readAddress(d); err != nil {
			return nil, fmt.Errorf("linkage %d: %w", i, err)
		}
		if info.UpgradedVersion, err = d.ReadU64(); err != nil {
			return nil, fmt.Errorf("linkage %d: %w", i, err)
		}
		pkg.LinkageTable[key] = info
	}

	if d.Remaining() != 0 {
		return nil, fmt.Errorf("%d trailing bytes after package", d.Remaining())
	}
	return pkg, nil
}

// EncodePackage serializes p in the layout DecodePackage reads. Map entries
// are written in key order.
func EncodePackage(p *Package) []byte {
	e := bcs.NewEncoder()
	e.WriteBytes(p.ID[:])
	e.WriteU64(p.Version)

	names := p.ModuleNames()
	e.WriteULEB128(uint64(len(names)))
	for _, name := range names {
		e.WriteString(name)
		e.WriteByteVector(p.ModuleMap[name])
	}

	e.WriteULEB128(uint64(len(p.TypeOriginTable)))
	for _, origin := range p.TypeOriginTable {
		e.WriteString(origin.ModuleName)
		e.WriteString(origin.DatatypeName)
		e.WriteBytes(origin.Package[:])
	}

	keys := make([]Address, 0, len(p.LinkageTable))
	for k := range p.LinkageTable {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, Address.Compare)
	e.WriteULEB128(uint64(len(keys)))
	for _, k := range keys {
		info := p.LinkageTable[k]
		e.WriteBytes(k[:])
		e.WriteBytes(info.UpgradedID[:])
		e.WriteU64(info.UpgradedVersion)
	}
	return e.Bytes()
}

func readAddress(d *bcs.Decoder) (Address, error) {
	var a Address
	b, err := d.ReadBytes(AddressLength)
	if err != nil {
		return a, err
	}
	copy(a[:], b)
	return a, nil
}
