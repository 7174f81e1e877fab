// Package introspect derives human-readable reports from decoded Move
// modules: per-function interface signatures (bcs.json functionMap) and
// per-module call graphs (call_graph.json).
//
// Everything here is pure: the same module always yields the same report.
package introspect

import (
	"fmt"

	"github.com/pithecene-io/suipack/movebin"
	"github.com/pithecene-io/suipack/types"
)

// ModuleView is the read capability introspection needs from a decoded
// module. *movebin.Module implements it.
type ModuleView interface {
	SelfHandle() movebin.ModuleHandle
	AddressAt(movebin.AddressIdentifierIndex) types.Address
	IdentifierAt(movebin.IdentifierIndex) string
	ModuleHandleAt(movebin.ModuleHandleIndex) movebin.ModuleHandle
	DatatypeHandleAt(movebin.DatatypeHandleIndex) movebin.DatatypeHandle
	FunctionHandleAt(movebin.FunctionHandleIndex) movebin.FunctionHandle
	FunctionInstantiationAt(movebin.FunctionInstIndex) movebin.FunctionInstantiation
	SignatureAt(movebin.SignatureIndex) movebin.Signature
	FunctionDefs() []movebin.FunctionDefinition
	StructDefs() []movebin.StructDefinition
	InstructionsOf(*movebin.FunctionDefinition) []movebin.Instruction
}

var _ ModuleView = (*movebin.Module)(nil)

// NamedModule is one decoded entry of a package's module map.
type NamedModule struct {
	Name   string
	Module ModuleView
}

// DecodeModules decodes every module of pkg in name order. A single bad
// module fails the whole package.
func DecodeModules(pkg *types.Package) ([]NamedModule, error) {
	names := pkg.ModuleNames()
	modules := make([]NamedModule, 0, len(names))
	for _, name := range names {
		m, err := movebin.Decode(pkg.ModuleMap[name])
		if err != nil {
			return nil, types.NewError(types.ErrDecode, "decode module", fmt.Sprintf("%s::%s", pkg.ID, name), err)
		}
		modules = append(modules, NamedModule{Name: name, Module: m})
	}
	return modules, nil
}

// qualifiedName renders address::module::name for a module handle.
func qualifiedName(view ModuleView, module movebin.ModuleHandleIndex, name movebin.IdentifierIndex) string {
	mh := view.ModuleHandleAt(module)
	return view.AddressAt(mh.Address).String() + "::" + view.IdentifierAt(mh.Name) + "::" + view.IdentifierAt(name)
}
