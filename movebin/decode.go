package movebin

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/pithecene-io/suipack/bcs"
	"github.com/pithecene-io/suipack/types"
)

type tableHeader struct {
	kind   tableKind
	offset uint32
	length uint32
}

// Decode parses a compiled module.
func Decode(b []byte) (*Module, error) {
	d := bcs.NewDecoder(b)

	magic, err := d.ReadBytes(len(Magic))
	if err != nil || !bytes.Equal(magic, Magic[:]) {
		return nil, malformed("bad magic")
	}
	raw, err := d.ReadU32()
	if err != nil {
		return nil, malformed("version: %v", err)
	}
	version := raw & versionMask
	if version < MinVersion || version > MaxVersion {
		return nil, malformed("unsupported version %d", version)
	}

	headers, err := readTableHeaders(d)
	if err != nil {
		return nil, err
	}

	contentStart := d.Offset()
	var contentLen uint64
	for _, h := range headers {
		contentLen += uint64(h.length)
	}
	if contentLen > uint64(d.Remaining()) {
		return nil, malformed("tables extend past end of binary")
	}

	m := &Module{version: version}
	for _, h := range headers {
		start := contentStart + int(h.offset)
		table := bcs.NewDecoder(b[start : start+int(h.length)])
		if err := m.loadTable(h.kind, table); err != nil {
			return nil, err
		}
		if table.Remaining() != 0 {
			return nil, malformed("table 0x%x: %d unread bytes", uint8(h.kind), table.Remaining())
		}
	}

	tail := bcs.NewDecoder(b[contentStart+int(contentLen):])
	self, err := readIndex(tail)
	if err != nil {
		return nil, malformed("self module handle: %v", err)
	}
	if tail.Remaining() != 0 {
		return nil, malformed("%d trailing bytes", tail.Remaining())
	}
	m.self = ModuleHandleIndex(self)

	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// readTableHeaders reads the table directory and checks that the tables
// tile the content region without gaps or overlaps.
func readTableHeaders(d *bcs.Decoder) ([]tableHeader, error) {
	count, err := d.ReadULEB128()
	if err != nil {
		return nil, malformed("table count: %v", err)
	}
	if count > uint64(tableVariantInstHandles) {
		return nil, malformed("too many tables: %d", count)
	}

	headers := make([]tableHeader, 0, count)
	seen := make(map[tableKind]bool, count)
	for i := uint64(0); i < count; i++ {
		kind, err := d.ReadU8()
		if err != nil {
			return nil, malformed("table header %d: %v", i, err)
		}
		k := tableKind(kind)
		if !k.known() {
			return nil, malformed("unknown table kind 0x%x", kind)
		}
		if seen[k] {
			return nil, malformed("duplicate table kind 0x%x", kind)
		}
		seen[k] = true

		offset, err := d.ReadULEB128()
		if err != nil || offset > math.MaxUint32 {
			return nil, malformed("table 0x%x offset", kind)
		}
		length, err := d.ReadULEB128()
		if err != nil || length > math.MaxUint32 {
			return nil, malformed("table 0x%x length", kind)
		}
		headers = append(headers, tableHeader{kind: k, offset: uint32(offset), length: uint32(length)})
	}

	sorted := slices.Clone(headers)
	slices.SortFunc(sorted, func(a, b tableHeader) int { return int(a.offset) - int(b.offset) })
	var next uint64
	for _, h := range sorted {
		if uint64(h.offset) != next {
			return nil, malformed("table 0x%x at offset %d, expected %d", uint8(h.kind), h.offset, next)
		}
		next += uint64(h.length)
	}
	return headers, nil
}

func (m *Module) loadTable(kind tableKind, d *bcs.Decoder) error {
	var err error
	switch kind {
	case tableModuleHandles:
		err = readAll(d, func() error {
			addr, err := readIndex(d)
			if err != nil {
				return err
			}
			name, err := readIndex(d)
			if err != nil {
				return err
			}
			m.moduleHandles = append(m.moduleHandles, ModuleHandle{
				Address: AddressIdentifierIndex(addr),
				Name:    IdentifierIndex(name),
			})
			return nil
		})
	case tableDatatypeHandles:
		err = readAll(d, func() error {
			h, err := readDatatypeHandle(d)
			if err == nil {
				m.datatypeHandles = append(m.datatypeHandles, h)
			}
			return err
		})
	case tableFunctionHandles:
		err = readAll(d, func() error {
			h, err := readFunctionHandle(d)
			if err == nil {
				m.functionHandles = append(m.functionHandles, h)
			}
			return err
		})
	case tableFunctionInst:
		err = readAll(d, func() error {
			handle, err := readIndex(d)
			if err != nil {
				return err
			}
			sig, err := readIndex(d)
			if err != nil {
				return err
			}
			m.functionInsts = append(m.functionInsts, FunctionInstantiation{
				Handle:         FunctionHandleIndex(handle),
				TypeParameters: SignatureIndex(sig),
			})
			return nil
		})
	case tableSignatures:
		err = readAll(d, func() error {
			sig, err := readSignature(d)
			if err == nil {
				m.signatures = append(m.signatures, sig)
			}
			return err
		})
	case tableIdentifiers:
		err = readAll(d, func() error {
			s, err := d.ReadString()
			if err == nil {
				m.identifiers = append(m.identifiers, s)
			}
			return err
		})
	case tableAddressIdentifiers:
		err = readAll(d, func() error {
			b, err := d.ReadBytes(types.AddressLength)
			if err != nil {
				return err
			}
			var a types.Address
			copy(a[:], b)
			m.addresses = append(m.addresses, a)
			return nil
		})
	case tableStructDefs:
		err = readAll(d, func() error {
			def, err := readStructDef(d)
			if err == nil {
				m.structDefs = append(m.structDefs, def)
			}
			return err
		})
	case tableFunctionDefs:
		err = readAll(d, func() error {
			def, err := readFunctionDef(d, m.version)
			if err == nil {
				m.functionDefs = append(m.functionDefs, def)
			}
			return err
		})
	default:
		// Constants, field handles, friends, metadata, enums and the various
		// instantiation tables are not needed for introspection.
		_, err = d.ReadBytes(d.Remaining())
	}
	if err != nil {
		return malformed("table 0x%x: %v", uint8(kind), err)
	}
	return nil
}

func readAll(d *bcs.Decoder, entry func() error) error {
	for d.Remaining() > 0 {
		if err := entry(); err != nil {
			return err
		}
	}
	return nil
}

// readIndex reads a ULEB128 table index, which is at most 16 bits.
func readIndex(d *bcs.Decoder) (uint16, error) {
	v, err := d.ReadULEB128()
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint16 {
		return 0, fmt.Errorf("index %d out of range", v)
	}
	return uint16(v), nil
}

func readCount(d *bcs.Decoder) (int, error) {
	n, err := d.ReadULEB128()
	if err != nil {
		return 0, err
	}
	// Every element takes at least one byte.
	if n > uint64(d.Remaining()) {
		return 0, fmt.Errorf("count %d exceeds remaining %d bytes", n, d.Remaining())
	}
	return int(n), nil
}

func readDatatypeHandle(d *bcs.Decoder) (DatatypeHandle, error) {
	var h DatatypeHandle
	module, err := readIndex(d)
	if err != nil {
		return h, err
	}
	name, err := readIndex(d)
	if err != nil {
		return h, err
	}
	h.Module, h.Name = ModuleHandleIndex(module), IdentifierIndex(name)
	if h.Abilities, err = d.ReadU8(); err != nil {
		return h, err
	}
	n, err := readCount(d)
	if err != nil {
		return h, err
	}
	for i := 0; i < n; i++ {
		constraints, err := d.ReadU8()
		if err != nil {
			return h, err
		}
		phantom, err := d.ReadU8()
		if err != nil {
			return h, err
		}
		if phantom > 1 {
			return h, fmt.Errorf("bad phantom flag %d", phantom)
		}
		h.TypeParameters = append(h.TypeParameters, DatatypeTypeParameter{
			Constraints: constraints,
			IsPhantom:   phantom == 1,
		})
	}
	return h, nil
}

func readFunctionHandle(d *bcs.Decoder) (FunctionHandle, error) {
	var h FunctionHandle
	var idx [4]uint16
	for i := range idx {
		v, err := readIndex(d)
		if err != nil {
			return h, err
		}
		idx[i] = v
	}
	h.Module = ModuleHandleIndex(idx[0])
	h.Name = IdentifierIndex(idx[1])
	h.Parameters = SignatureIndex(idx[2])
	h.Return = SignatureIndex(idx[3])

	n, err := readCount(d)
	if err != nil {
		return h, err
	}
	for i := 0; i < n; i++ {
		constraints, err := d.ReadU8()
		if err != nil {
			return h, err
		}
		h.TypeParameters = append(h.TypeParameters, constraints)
	}
	return h, nil
}

func readSignature(d *bcs.Decoder) (Signature, error) {
	n, err := readCount(d)
	if err != nil {
		return nil, err
	}
	sig := make(Signature, 0, n)
	for i := 0; i < n; i++ {
		tok, err := readToken(d, 0)
		if err != nil {
			return nil, err
		}
		sig = append(sig, tok)
	}
	return sig, nil
}

func readToken(d *bcs.Decoder, depth int) (SignatureToken, error) {
	var tok SignatureToken
	if depth > maxTokenDepth {
		return tok, errors.New("signature token nested too deeply")
	}
	tag, err := d.ReadU8()
	if err != nil {
		return tok, err
	}
	tok.Kind = TokenKind(tag)

	switch tok.Kind {
	case TokenBool, TokenU8, TokenU16, TokenU32, TokenU64, TokenU128, TokenU256,
		TokenAddress, TokenSigner:
		return tok, nil
	case TokenVector, TokenReference, TokenMutableReference:
		inner, err := readToken(d, depth+1)
		if err != nil {
			return tok, err
		}
		tok.Inner = &inner
		return tok, nil
	case TokenTypeParameter:
		idx, err := readIndex(d)
		tok.TypeParameter = idx
		return tok, err
	case TokenDatatype:
		idx, err := readIndex(d)
		tok.Datatype = DatatypeHandleIndex(idx)
		return tok, err
	case TokenDatatypeInstantiation:
		idx, err := readIndex(d)
		if err != nil {
			return tok, err
		}
		tok.Datatype = DatatypeHandleIndex(idx)
		arity, err := readCount(d)
		if err != nil {
			return tok, err
		}
		if arity == 0 {
			return tok, errors.New("datatype instantiation without type arguments")
		}
		for i := 0; i < arity; i++ {
			arg, err := readToken(d, depth+1)
			if err != nil {
				return tok, err
			}
			tok.TypeArgs = append(tok.TypeArgs, arg)
		}
		return tok, nil
	default:
		return tok, fmt.Errorf("unknown signature token 0x%x", tag)
	}
}

func readStructDef(d *bcs.Decoder) (StructDefinition, error) {
	var def StructDefinition
	handle, err := readIndex(d)
	if err != nil {
		return def, err
	}
	def.Handle = DatatypeHandleIndex(handle)

	info, err := d.ReadU8()
	if err != nil {
		return def, err
	}
	switch info {
	case fieldInfoNative:
		def.Native = true
		return def, nil
	case fieldInfoDeclared:
	default:
		return def, fmt.Errorf("bad field info 0x%x", info)
	}

	n, err := readCount(d)
	if err != nil {
		return def, err
	}
	for i := 0; i < n; i++ {
		name, err := readIndex(d)
		if err != nil {
			return def, err
		}
		typ, err := readToken(d, 0)
		if err != nil {
			return def, err
		}
		def.Fields = append(def.Fields, FieldDefinition{Name: IdentifierIndex(name), Type: typ})
	}
	return def, nil
}

func readFunctionDef(d *bcs.Decoder, version uint32) (FunctionDefinition, error) {
	var def FunctionDefinition
	handle, err := readIndex(d)
	if err != nil {
		return def, err
	}
	def.Handle = FunctionHandleIndex(handle)

	vis, err := d.ReadU8()
	if err != nil {
		return def, err
	}
	switch Visibility(vis) {
	case Private, Public, Friend:
		def.Visibility = Visibility(vis)
	default:
		return def, fmt.Errorf("bad visibility 0x%x", vis)
	}

	flags, err := d.ReadU8()
	if err != nil {
		return def, err
	}
	if flags&^(flagNative|flagEntry) != 0 {
		return def, fmt.Errorf("bad function flags 0x%x", flags)
	}
	def.IsEntry = flags&flagEntry != 0

	n, err := readCount(d)
	if err != nil {
		return def, err
	}
	for i := 0; i < n; i++ {
		idx, err := readIndex(d)
		if err != nil {
			return def, err
		}
		def.Acquires = append(def.Acquires, idx)
	}

	if flags&flagNative != 0 {
		return def, nil
	}
	code, err := readCodeUnit(d, version)
	if err != nil {
		return def, err
	}
	def.Code = code
	return def, nil
}

func readCodeUnit(d *bcs.Decoder, version uint32) (*CodeUnit, error) {
	locals, err := readIndex(d)
	if err != nil {
		return nil, err
	}
	cu := &CodeUnit{Locals: SignatureIndex(locals)}

	if version >= 7 {
		n, err := readCount(d)
		if err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			jt, err := readJumpTable(d)
			if err != nil {
				return nil, err
			}
			cu.JumpTables = append(cu.JumpTables, jt)
		}
	}

	n, err := readCount(d)
	if err != nil {
		return nil, err
	}
	cu.Code = make([]Instruction, 0, n)
	for i := 0; i < n; i++ {
		ins, err := readInstruction(d)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		cu.Code = append(cu.Code, ins)
	}
	return cu, nil
}

func readJumpTable(d *bcs.Decoder) (JumpTable, error) {
	var jt JumpTable
	enum, err := readIndex(d)
	if err != nil {
		return jt, err
	}
	jt.Enum = enum
	flavor, err := d.ReadU8()
	if err != nil {
		return jt, err
	}
	if flavor != jumpTableFull {
		return jt, fmt.Errorf("bad jump table flavor 0x%x", flavor)
	}
	n, err := readCount(d)
	if err != nil {
		return jt, err
	}
	for i := 0; i < n; i++ {
		off, err := readIndex(d)
		if err != nil {
			return jt, err
		}
		jt.Offsets = append(jt.Offsets, off)
	}
	return jt, nil
}

func readInstruction(d *bcs.Decoder) (Instruction, error) {
	b, err := d.ReadU8()
	if err != nil {
		return Instruction{}, err
	}
	ins := Instruction{Op: Opcode(b)}
	kind, ok := operandOf(ins.Op)
	if !ok {
		return ins, fmt.Errorf("unknown opcode 0x%x", b)
	}

	switch kind {
	case operandNone:
	case operandULEB:
		ins.Index, err = d.ReadULEB128()
	case operandU8:
		var v uint8
		v, err = d.ReadU8()
		ins.Index = uint64(v)
	case operandU16:
		var v uint16
		v, err = d.ReadU16()
		ins.Index = uint64(v)
	case operandU32:
		var v uint32
		v, err = d.ReadU32()
		ins.Index = uint64(v)
	case operandU64:
		ins.Index, err = d.ReadU64()
	case operandU128:
		ins.Wide, err = d.ReadBytes(16)
	case operandU256:
		ins.Wide, err = d.ReadBytes(32)
	case operandULEBU64:
		if ins.Index, err = d.ReadULEB128(); err == nil {
			ins.Count, err = d.ReadU64()
		}
	}
	return ins, err
}

// validate checks every cross-table index the accessors rely on.
func (m *Module) validate() error {
	if int(m.self) >= len(m.moduleHandles) {
		return malformed("self module handle %d out of range", m.self)
	}
	for i, h := range m.moduleHandles {
		if int(h.Address) >= len(m.addresses) || int(h.Name) >= len(m.identifiers) {
			return malformed("module handle %d out of range", i)
		}
	}
	for i, h := range m.datatypeHandles {
		if int(h.Module) >= len(m.moduleHandles) || int(h.Name) >= len(m.identifiers) {
			return malformed("datatype handle %d out of range", i)
		}
	}
	for i, h := range m.functionHandles {
		if int(h.Module) >= len(m.moduleHandles) || int(h.Name) >= len(m.identifiers) ||
			int(h.Parameters) >= len(m.signatures) || int(h.Return) >= len(m.signatures) {
			return malformed("function handle %d out of range", i)
		}
	}
	for i, inst := range m.functionInsts {
		if int(inst.Handle) >= len(m.functionHandles) || int(inst.TypeParameters) >= len(m.signatures) {
			return malformed("function instantiation %d out of range", i)
		}
	}
	for i, sig := range m.signatures {
		for _, tok := range sig {
			if err := m.validateToken(tok); err != nil {
				return malformed("signature %d: %v", i, err)
			}
		}
	}
	for i, def := range m.structDefs {
		if int(def.Handle) >= len(m.datatypeHandles) {
			return malformed("struct definition %d out of range", i)
		}
		for _, f := range def.Fields {
			if int(f.Name) >= len(m.identifiers) {
				return malformed("struct definition %d field name out of range", i)
			}
			if err := m.validateToken(f.Type); err != nil {
				return malformed("struct definition %d: %v", i, err)
			}
		}
	}
	for i, def := range m.functionDefs {
		if int(def.Handle) >= len(m.functionHandles) {
			return malformed("function definition %d out of range", i)
		}
		if def.Code == nil {
			continue
		}
		if int(def.Code.Locals) >= len(m.signatures) {
			return malformed("function definition %d locals out of range", i)
		}
		for j, ins := range def.Code.Code {
			switch ins.Op {
			case OpCall:
				if ins.Index >= uint64(len(m.functionHandles)) {
					return malformed("function definition %d instruction %d: call target out of range", i, j)
				}
			case OpCallGeneric:
				if ins.Index >= uint64(len(m.functionInsts)) {
					return malformed("function definition %d instruction %d: generic call target out of range", i, j)
				}
			}
		}
	}
	return nil
}

func (m *Module) validateToken(tok SignatureToken) error {
	switch tok.Kind {
	case TokenDatatype, TokenDatatypeInstantiation:
		if int(tok.Datatype) >= len(m.datatypeHandles) {
			return fmt.Errorf("datatype %d out of range", tok.Datatype)
		}
		for _, arg := range tok.TypeArgs {
			if err := m.validateToken(arg); err != nil {
				return err
			}
		}
	case TokenVector, TokenReference, TokenMutableReference:
		return m.validateToken(*tok.Inner)
	}
	return nil
}
