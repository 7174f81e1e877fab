package movebin

import (
	"github.com/pithecene-io/suipack/bcs"
	"github.com/pithecene-io/suipack/types"
)

// Builder assembles module binaries from declarations. Handles, identifiers,
// addresses and signatures are interned, so declaring the same thing twice
// returns the same index.
//
// Builder exists for fixtures and tests; the archive pipeline only decodes.
type Builder struct {
	m Module

	addrIdx  map[types.Address]AddressIdentifierIndex
	identIdx map[string]IdentifierIndex
	modIdx   map[ModuleHandle]ModuleHandleIndex
	dtIdx    map[declKey]DatatypeHandleIndex
	fnIdx    map[declKey]FunctionHandleIndex
	sigIdx   map[string]SignatureIndex
}

type declKey struct {
	module ModuleHandleIndex
	name   IdentifierIndex
}

// NewBuilder starts a module named name published at self, in binary
// format version 6.
func NewBuilder(self types.Address, name string) *Builder {
	b := &Builder{
		addrIdx:  make(map[types.Address]AddressIdentifierIndex),
		identIdx: make(map[string]IdentifierIndex),
		modIdx:   make(map[ModuleHandle]ModuleHandleIndex),
		dtIdx:    make(map[declKey]DatatypeHandleIndex),
		fnIdx:    make(map[declKey]FunctionHandleIndex),
		sigIdx:   make(map[string]SignatureIndex),
	}
	b.m.version = 6
	b.m.self = b.Module(self, name)
	return b
}

// SetVersion sets the binary format version written by Bytes.
func (b *Builder) SetVersion(v uint32) *Builder {
	b.m.version = v
	return b
}

// Self returns the handle of the module being built.
func (b *Builder) Self() ModuleHandleIndex { return b.m.self }

func (b *Builder) address(a types.Address) AddressIdentifierIndex {
	if idx, ok := b.addrIdx[a]; ok {
		return idx
	}
	idx := AddressIdentifierIndex(len(b.m.addresses))
	b.m.addresses = append(b.m.addresses, a)
	b.addrIdx[a] = idx
	return idx
}

func (b *Builder) identifier(s string) IdentifierIndex {
	if idx, ok := b.identIdx[s]; ok {
		return idx
	}
	idx := IdentifierIndex(len(b.m.identifiers))
	b.m.identifiers = append(b.m.identifiers, s)
	b.identIdx[s] = idx
	return idx
}

// Module declares a module handle.
func (b *Builder) Module(addr types.Address, name string) ModuleHandleIndex {
	h := ModuleHandle{Address: b.address(addr), Name: b.identifier(name)}
	if idx, ok := b.modIdx[h]; ok {
		return idx
	}
	idx := ModuleHandleIndex(len(b.m.moduleHandles))
	b.m.moduleHandles = append(b.m.moduleHandles, h)
	b.modIdx[h] = idx
	return idx
}

// Datatype declares a struct or enum handle with typeParams type parameters.
func (b *Builder) Datatype(module ModuleHandleIndex, name string, typeParams int) DatatypeHandleIndex {
	key := declKey{module: module, name: b.identifier(name)}
	if idx, ok := b.dtIdx[key]; ok {
		return idx
	}
	h := DatatypeHandle{Module: module, Name: key.name}
	for i := 0; i < typeParams; i++ {
		h.TypeParameters = append(h.TypeParameters, DatatypeTypeParameter{})
	}
	idx := DatatypeHandleIndex(len(b.m.datatypeHandles))
	b.m.datatypeHandles = append(b.m.datatypeHandles, h)
	b.dtIdx[key] = idx
	return idx
}

// Signature interns a signature.
func (b *Builder) Signature(tokens ...SignatureToken) SignatureIndex {
	e := bcs.NewEncoder()
	writeSignature(e, tokens)
	key := string(e.Bytes())
	if idx, ok := b.sigIdx[key]; ok {
		return idx
	}
	idx := SignatureIndex(len(b.m.signatures))
	b.m.signatures = append(b.m.signatures, append(Signature{}, tokens...))
	b.sigIdx[key] = idx
	return idx
}

// FunctionHandle declares a function handle in module.
func (b *Builder) FunctionHandle(module ModuleHandleIndex, name string, params, returns []SignatureToken, typeParams int) FunctionHandleIndex {
	key := declKey{module: module, name: b.identifier(name)}
	if idx, ok := b.fnIdx[key]; ok {
		return idx
	}
	h := FunctionHandle{
		Module:     module,
		Name:       key.name,
		Parameters: b.Signature(params...),
		Return:     b.Signature(returns...),
	}
	for i := 0; i < typeParams; i++ {
		h.TypeParameters = append(h.TypeParameters, 0)
	}
	idx := FunctionHandleIndex(len(b.m.functionHandles))
	b.m.functionHandles = append(b.m.functionHandles, h)
	b.fnIdx[key] = idx
	return idx
}

// Instantiate declares a generic instantiation of handle.
func (b *Builder) Instantiate(handle FunctionHandleIndex, typeArgs ...SignatureToken) FunctionInstIndex {
	inst := FunctionInstantiation{Handle: handle, TypeParameters: b.Signature(typeArgs...)}
	for i, existing := range b.m.functionInsts {
		if existing == inst {
			return FunctionInstIndex(i)
		}
	}
	b.m.functionInsts = append(b.m.functionInsts, inst)
	return FunctionInstIndex(len(b.m.functionInsts) - 1)
}

// FunctionSpec declares a function defined in the module being built.
type FunctionSpec struct {
	Name       string
	Visibility Visibility
	Entry      bool
	Native     bool
	Params     []SignatureToken
	Returns    []SignatureToken
	TypeParams int
	Code       []Instruction
}

// Function defines a function in the module being built and returns its
// handle. A handle declared earlier under the same name is reused, so
// forward calls can be wired before the callee is defined.
func (b *Builder) Function(spec FunctionSpec) FunctionHandleIndex {
	handle := b.FunctionHandle(b.m.self, spec.Name, spec.Params, spec.Returns, spec.TypeParams)
	def := FunctionDefinition{
		Handle:     handle,
		Visibility: spec.Visibility,
		IsEntry:    spec.Entry,
	}
	if !spec.Native {
		def.Code = &CodeUnit{Locals: b.Signature(), Code: spec.Code}
	}
	b.m.functionDefs = append(b.m.functionDefs, def)
	return handle
}

// Field declares one struct field.
type Field struct {
	Name string
	Type SignatureToken
}

// Struct defines a struct in the module being built.
func (b *Builder) Struct(name string, typeParams int, fields ...Field) DatatypeHandleIndex {
	handle := b.Datatype(b.m.self, name, typeParams)
	def := StructDefinition{Handle: handle}
	for _, f := range fields {
		def.Fields = append(def.Fields, FieldDefinition{Name: b.identifier(f.Name), Type: f.Type})
	}
	b.m.structDefs = append(b.m.structDefs, def)
	return handle
}

// Bytes serializes the module.
func (b *Builder) Bytes() []byte {
	m := &b.m
	type table struct {
		kind tableKind
		data []byte
	}
	var tables []table
	add := func(kind tableKind, n int, write func(e *bcs.Encoder, i int)) {
		if n == 0 {
			return
		}
		e := bcs.NewEncoder()
		for i := 0; i < n; i++ {
			write(e, i)
		}
		tables = append(tables, table{kind: kind, data: e.Bytes()})
	}

	add(tableModuleHandles, len(m.moduleHandles), func(e *bcs.Encoder, i int) {
		h := m.moduleHandles[i]
		e.WriteULEB128(uint64(h.Address))
		e.WriteULEB128(uint64(h.Name))
	})
	add(tableDatatypeHandles, len(m.datatypeHandles), func(e *bcs.Encoder, i int) {
		h := m.datatypeHandles[i]
		e.WriteULEB128(uint64(h.Module))
		e.WriteULEB128(uint64(h.Name))
		e.WriteU8(h.Abilities)
		e.WriteULEB128(uint64(len(h.TypeParameters)))
		for _, tp := range h.TypeParameters {
			e.WriteU8(tp.Constraints)
			if tp.IsPhantom {
				e.WriteU8(1)
			} else {
				e.WriteU8(0)
			}
		}
	})
	add(tableFunctionHandles, len(m.functionHandles), func(e *bcs.Encoder, i int) {
		h := m.functionHandles[i]
		e.WriteULEB128(uint64(h.Module))
		e.WriteULEB128(uint64(h.Name))
		e.WriteULEB128(uint64(h.Parameters))
		e.WriteULEB128(uint64(h.Return))
		e.WriteULEB128(uint64(len(h.TypeParameters)))
		for _, c := range h.TypeParameters {
			e.WriteU8(c)
		}
	})
	add(tableFunctionInst, len(m.functionInsts), func(e *bcs.Encoder, i int) {
		e.WriteULEB128(uint64(m.functionInsts[i].Handle))
		e.WriteULEB128(uint64(m.functionInsts[i].TypeParameters))
	})
	add(tableSignatures, len(m.signatures), func(e *bcs.Encoder, i int) {
		writeSignature(e, m.signatures[i])
	})
	add(tableIdentifiers, len(m.identifiers), func(e *bcs.Encoder, i int) {
		e.WriteString(m.identifiers[i])
	})
	add(tableAddressIdentifiers, len(m.addresses), func(e *bcs.Encoder, i int) {
		e.WriteBytes(m.addresses[i][:])
	})
	add(tableStructDefs, len(m.structDefs), func(e *bcs.Encoder, i int) {
		def := m.structDefs[i]
		e.WriteULEB128(uint64(def.Handle))
		if def.Native {
			e.WriteU8(fieldInfoNative)
			return
		}
		e.WriteU8(fieldInfoDeclared)
		e.WriteULEB128(uint64(len(def.Fields)))
		for _, f := range def.Fields {
			e.WriteULEB128(uint64(f.Name))
			writeToken(e, f.Type)
		}
	})
	add(tableFunctionDefs, len(m.functionDefs), func(e *bcs.Encoder, i int) {
		writeFunctionDef(e, &m.functionDefs[i], m.version)
	})

	out := bcs.NewEncoder()
	out.WriteBytes(Magic[:])
	out.WriteU32(m.version)
	out.WriteULEB128(uint64(len(tables)))
	var offset uint64
	for _, t := range tables {
		out.WriteU8(uint8(t.kind))
		out.WriteULEB128(offset)
		out.WriteULEB128(uint64(len(t.data)))
		offset += uint64(len(t.data))
	}
	for _, t := range tables {
		out.WriteBytes(t.data)
	}
	out.WriteULEB128(uint64(m.self))
	return out.Bytes()
}

func writeSignature(e *bcs.Encoder, sig []SignatureToken) {
	e.WriteULEB128(uint64(len(sig)))
	for _, tok := range sig {
		writeToken(e, tok)
	}
}

func writeToken(e *bcs.Encoder, tok SignatureToken) {
	e.WriteU8(uint8(tok.Kind))
	switch tok.Kind {
	case TokenVector, TokenReference, TokenMutableReference:
		writeToken(e, *tok.Inner)
	case TokenTypeParameter:
		e.WriteULEB128(uint64(tok.TypeParameter))
	case TokenDatatype:
		e.WriteULEB128(uint64(tok.Datatype))
	case TokenDatatypeInstantiation:
		e.WriteULEB128(uint64(tok.Datatype))
		e.WriteULEB128(uint64(len(tok.TypeArgs)))
		for _, arg := range tok.TypeArgs {
			writeToken(e, arg)
		}
	}
}

func writeFunctionDef(e *bcs.Encoder, def *FunctionDefinition, version uint32) {
	e.WriteULEB128(uint64(def.Handle))
	e.WriteU8(uint8(def.Visibility))
	var flags uint8
	if def.IsEntry {
		flags |= flagEntry
	}
	if def.Code == nil {
		flags |= flagNative
	}
	e.WriteU8(flags)
	e.WriteULEB128(uint64(len(def.Acquires)))
	for _, a := range def.Acquires {
		e.WriteULEB128(uint64(a))
	}
	if def.Code == nil {
		return
	}

	e.WriteULEB128(uint64(def.Code.Locals))
	if version >= 7 {
		e.WriteULEB128(uint64(len(def.Code.JumpTables)))
		for _, jt := range def.Code.JumpTables {
			e.WriteULEB128(uint64(jt.Enum))
			e.WriteU8(jumpTableFull)
			e.WriteULEB128(uint64(len(jt.Offsets)))
			for _, off := range jt.Offsets {
				e.WriteULEB128(uint64(off))
			}
		}
	}
	e.WriteULEB128(uint64(len(def.Code.Code)))
	for _, ins := range def.Code.Code {
		writeInstruction(e, ins)
	}
}

func writeInstruction(e *bcs.Encoder, ins Instruction) {
	e.WriteU8(uint8(ins.Op))
	kind, _ := operandOf(ins.Op)
	switch kind {
	case operandULEB:
		e.WriteULEB128(ins.Index)
	case operandU8:
		e.WriteU8(uint8(ins.Index))
	case operandU16:
		e.WriteU16(uint16(ins.Index))
	case operandU32:
		e.WriteU32(uint32(ins.Index))
	case operandU64:
		e.WriteU64(ins.Index)
	case operandU128:
		e.WriteBytes(padded(ins.Wide, 16))
	case operandU256:
		e.WriteBytes(padded(ins.Wide, 32))
	case operandULEBU64:
		e.WriteULEB128(ins.Index)
		e.WriteU64(ins.Count)
	}
}

func padded(b []byte, n int) []byte {
	out := make([]byte, n)
	copy(out, b)
	return out
}

// Token constructors.

// Prim returns a primitive token such as TokenU64 or TokenAddress.
func Prim(kind TokenKind) SignatureToken { return SignatureToken{Kind: kind} }

// Vector returns vector<inner>.
func Vector(inner SignatureToken) SignatureToken {
	return SignatureToken{Kind: TokenVector, Inner: &inner}
}

// Ref returns &inner.
func Ref(inner SignatureToken) SignatureToken {
	return SignatureToken{Kind: TokenReference, Inner: &inner}
}

// MutRef returns &mut inner.
func MutRef(inner SignatureToken) SignatureToken {
	return SignatureToken{Kind: TokenMutableReference, Inner: &inner}
}

// TypeParam returns the i-th type parameter.
func TypeParam(i uint16) SignatureToken {
	return SignatureToken{Kind: TokenTypeParameter, TypeParameter: i}
}

// Datatype returns a reference to a datatype, instantiated when args are given.
func Datatype(idx DatatypeHandleIndex, args ...SignatureToken) SignatureToken {
	if len(args) == 0 {
		return SignatureToken{Kind: TokenDatatype, Datatype: idx}
	}
	return SignatureToken{Kind: TokenDatatypeInstantiation, Datatype: idx, TypeArgs: args}
}

// Call returns a call to a non-generic function handle.
func Call(h FunctionHandleIndex) Instruction {
	return Instruction{Op: OpCall, Index: uint64(h)}
}

// CallGeneric returns a call through a function instantiation.
func CallGeneric(i FunctionInstIndex) Instruction {
	return Instruction{Op: OpCallGeneric, Index: uint64(i)}
}
