package movebin

import "github.com/pithecene-io/suipack/types"

// Module is a decoded compiled module. It is read-only and safe to share.
type Module struct {
	version uint32
	self    ModuleHandleIndex

	moduleHandles   []ModuleHandle
	datatypeHandles []DatatypeHandle
	functionHandles []FunctionHandle
	functionInsts   []FunctionInstantiation
	signatures      []Signature
	identifiers     []string
	addresses       []types.Address
	structDefs      []StructDefinition
	functionDefs    []FunctionDefinition
}

// Version returns the binary format version.
func (m *Module) Version() uint32 { return m.version }

// SelfHandle returns the handle of the module itself.
func (m *Module) SelfHandle() ModuleHandle { return m.moduleHandles[m.self] }

// SelfAddress returns the address the module was published under.
func (m *Module) SelfAddress() types.Address { return m.addresses[m.SelfHandle().Address] }

// SelfName returns the module name.
func (m *Module) SelfName() string { return m.identifiers[m.SelfHandle().Name] }

// ModuleHandleAt returns the module handle at idx.
func (m *Module) ModuleHandleAt(idx ModuleHandleIndex) ModuleHandle { return m.moduleHandles[idx] }

// DatatypeHandleAt returns the datatype handle at idx.
func (m *Module) DatatypeHandleAt(idx DatatypeHandleIndex) DatatypeHandle {
	return m.datatypeHandles[idx]
}

// FunctionHandleAt returns the function handle at idx.
func (m *Module) FunctionHandleAt(idx FunctionHandleIndex) FunctionHandle {
	return m.functionHandles[idx]
}

// FunctionInstantiationAt returns the function instantiation at idx.
func (m *Module) FunctionInstantiationAt(idx FunctionInstIndex) FunctionInstantiation {
	return m.functionInsts[idx]
}

// SignatureAt returns the signature at idx.
func (m *Module) SignatureAt(idx SignatureIndex) Signature { return m.signatures[idx] }

// IdentifierAt returns the identifier at idx.
func (m *Module) IdentifierAt(idx IdentifierIndex) string { return m.identifiers[idx] }

// AddressAt returns the address identifier at idx.
func (m *Module) AddressAt(idx AddressIdentifierIndex) types.Address { return m.addresses[idx] }

// FunctionDefs returns the function definitions in declaration order.
func (m *Module) FunctionDefs() []FunctionDefinition { return m.functionDefs }

// StructDefs returns the struct definitions in declaration order.
func (m *Module) StructDefs() []StructDefinition { return m.structDefs }

// InstructionsOf returns the body of def, or nil for a native function.
func (m *Module) InstructionsOf(def *FunctionDefinition) []Instruction {
	if def.Code == nil {
		return nil
	}
	return def.Code.Code
}
