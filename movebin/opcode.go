package movebin

// Opcode is a bytecode instruction tag.
type Opcode uint8

// Opcodes, as encoded in the binary.
const (
	OpPop                        Opcode = 0x01
	OpRet                        Opcode = 0x02
	OpBrTrue                     Opcode = 0x03
	OpBrFalse                    Opcode = 0x04
	OpBranch                     Opcode = 0x05
	OpLdU64                      Opcode = 0x06
	OpLdConst                    Opcode = 0x07
	OpLdTrue                     Opcode = 0x08
	OpLdFalse                    Opcode = 0x09
	OpCopyLoc                    Opcode = 0x0a
	OpMoveLoc                    Opcode = 0x0b
	OpStLoc                      Opcode = 0x0c
	OpMutBorrowLoc               Opcode = 0x0d
	OpImmBorrowLoc               Opcode = 0x0e
	OpMutBorrowField             Opcode = 0x0f
	OpImmBorrowField             Opcode = 0x10
	OpCall                       Opcode = 0x11
	OpPack                       Opcode = 0x12
	OpUnpack                     Opcode = 0x13
	OpReadRef                    Opcode = 0x14
	OpWriteRef                   Opcode = 0x15
	OpAdd                        Opcode = 0x16
	OpSub                        Opcode = 0x17
	OpMul                        Opcode = 0x18
	OpMod                        Opcode = 0x19
	OpDiv                        Opcode = 0x1a
	OpBitOr                      Opcode = 0x1b
	OpBitAnd                     Opcode = 0x1c
	OpXor                        Opcode = 0x1d
	OpOr                         Opcode = 0x1e
	OpAnd                        Opcode = 0x1f
	OpNot                        Opcode = 0x20
	OpEq                         Opcode = 0x21
	OpNeq                        Opcode = 0x22
	OpLt                         Opcode = 0x23
	OpGt                         Opcode = 0x24
	OpLe                         Opcode = 0x25
	OpGe                         Opcode = 0x26
	OpAbort                      Opcode = 0x27
	OpNop                        Opcode = 0x28
	OpExists                     Opcode = 0x29
	OpMutBorrowGlobal            Opcode = 0x2a
	OpImmBorrowGlobal            Opcode = 0x2b
	OpMoveFrom                   Opcode = 0x2c
	OpMoveTo                     Opcode = 0x2d
	OpFreezeRef                  Opcode = 0x2e
	OpShl                        Opcode = 0x2f
	OpShr                        Opcode = 0x30
	OpLdU8                       Opcode = 0x31
	OpLdU128                     Opcode = 0x32
	OpCastU8                     Opcode = 0x33
	OpCastU64                    Opcode = 0x34
	OpCastU128                   Opcode = 0x35
	OpMutBorrowFieldGeneric      Opcode = 0x36
	OpImmBorrowFieldGeneric      Opcode = 0x37
	OpCallGeneric                Opcode = 0x38
	OpPackGeneric                Opcode = 0x39
	OpUnpackGeneric              Opcode = 0x3a
	OpExistsGeneric              Opcode = 0x3b
	OpMutBorrowGlobalGeneric     Opcode = 0x3c
	OpImmBorrowGlobalGeneric     Opcode = 0x3d
	OpMoveFromGeneric            Opcode = 0x3e
	OpMoveToGeneric              Opcode = 0x3f
	OpVecPack                    Opcode = 0x40
	OpVecLen                     Opcode = 0x41
	OpVecImmBorrow               Opcode = 0x42
	OpVecMutBorrow               Opcode = 0x43
	OpVecPushBack                Opcode = 0x44
	OpVecPopBack                 Opcode = 0x45
	OpVecUnpack                  Opcode = 0x46
	OpVecSwap                    Opcode = 0x47
	OpLdU16                      Opcode = 0x48
	OpLdU32                      Opcode = 0x49
	OpLdU256                     Opcode = 0x4a
	OpCastU16                    Opcode = 0x4b
	OpCastU32                    Opcode = 0x4c
	OpCastU256                   Opcode = 0x4d
	OpPackVariant                Opcode = 0x4e
	OpPackVariantGeneric         Opcode = 0x4f
	OpUnpackVariant              Opcode = 0x50
	OpUnpackVariantImmRef        Opcode = 0x51
	OpUnpackVariantMutRef        Opcode = 0x52
	OpUnpackVariantGeneric       Opcode = 0x53
	OpUnpackVariantGenericImmRef Opcode = 0x54
	OpUnpackVariantGenericMutRef Opcode = 0x55
	OpVariantSwitch              Opcode = 0x56
)

// operandKind describes the immediate that follows an opcode.
type operandKind uint8

const (
	operandNone operandKind = iota
	operandULEB
	operandU8
	operandU16
	operandU32
	operandU64
	operandU128
	operandU256
	operandULEBU64 // signature index followed by a u64 element count
)

// operandOf returns the operand layout of op and whether op is known.
func operandOf(op Opcode) (operandKind, bool) {
	switch {
	case op == OpLdU64:
		return operandU64, true
	case op == OpLdU128:
		return operandU128, true
	case op == OpLdU256:
		return operandU256, true
	case op == OpLdU16:
		return operandU16, true
	case op == OpLdU32:
		return operandU32, true
	case op == OpVecPack, op == OpVecUnpack:
		return operandULEBU64, true
	case op >= OpCopyLoc && op <= OpImmBorrowLoc, op == OpLdU8:
		return operandU8, true
	case op >= OpBrTrue && op <= OpBranch, op == OpLdConst,
		op >= OpMutBorrowField && op <= OpUnpack,
		op >= OpExists && op <= OpMoveTo,
		op >= OpMutBorrowFieldGeneric && op <= OpMoveToGeneric,
		op >= OpVecLen && op <= OpVecPopBack, op == OpVecSwap,
		op >= OpPackVariant && op <= OpVariantSwitch:
		return operandULEB, true
	case op == OpPop, op == OpRet, op == OpLdTrue, op == OpLdFalse,
		op >= OpReadRef && op <= OpNop,
		op >= OpFreezeRef && op <= OpShr,
		op >= OpCastU8 && op <= OpCastU128,
		op >= OpCastU16 && op <= OpCastU256:
		return operandNone, true
	default:
		return operandNone, false
	}
}

// Instruction is one decoded bytecode instruction.
type Instruction struct {
	Op Opcode
	// Index is the ULEB or small fixed-width immediate: a table index, branch
	// target, local slot or literal, depending on Op. For OpCall it is a
	// FunctionHandleIndex; for OpCallGeneric a FunctionInstIndex.
	Index uint64
	// Count is the element count of OpVecPack and OpVecUnpack.
	Count uint64
	// Wide holds the little-endian immediate of OpLdU128 and OpLdU256.
	Wide []byte
}
