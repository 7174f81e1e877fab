// Package movebin decodes compiled Move modules in the Sui binary format.
//
// The decoder is read-only and keeps just the tables needed to introspect a
// module: handles, identifiers, addresses, signatures, struct definitions and
// function definitions with their instruction streams. Every cross-table
// index is checked during Decode, so the accessors on a decoded Module never
// go out of range.
package movebin

import (
	"errors"
	"fmt"
)

// Magic is the 4-byte prefix of every module binary.
var Magic = [4]byte{0xa1, 0x1c, 0xeb, 0x0b}

// Supported binary format versions.
const (
	MinVersion = 5
	MaxVersion = 7

	// versionMask strips the flavor byte Sui stores in the top of the version word.
	versionMask = 0x00ff_ffff

	// maxTokenDepth bounds signature token nesting.
	maxTokenDepth = 256
)

// ErrMalformed is returned for any structurally invalid module binary.
var ErrMalformed = errors.New("malformed module binary")

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// tableKind identifies a table in the module's table directory.
type tableKind uint8

const (
	tableModuleHandles      tableKind = 0x1
	tableDatatypeHandles    tableKind = 0x2
	tableFunctionHandles    tableKind = 0x3
	tableFunctionInst       tableKind = 0x4
	tableSignatures         tableKind = 0x5
	tableConstantPool       tableKind = 0x6
	tableIdentifiers        tableKind = 0x7
	tableAddressIdentifiers tableKind = 0x8
	tableStructDefs         tableKind = 0xa
	tableStructDefInst      tableKind = 0xb
	tableFunctionDefs       tableKind = 0xc
	tableFieldHandle        tableKind = 0xd
	tableFieldInst          tableKind = 0xe
	tableFriendDecls        tableKind = 0xf
	tableMetadata           tableKind = 0x10
	tableEnumDefs           tableKind = 0x11
	tableEnumDefInst        tableKind = 0x12
	tableVariantHandles     tableKind = 0x13
	tableVariantInstHandles tableKind = 0x14
)

func (k tableKind) known() bool {
	return (k >= tableModuleHandles && k <= tableAddressIdentifiers) ||
		(k >= tableStructDefs && k <= tableVariantInstHandles)
}

// Table indexes.
type (
	ModuleHandleIndex      uint16
	DatatypeHandleIndex    uint16
	FunctionHandleIndex    uint16
	FunctionInstIndex      uint16
	SignatureIndex         uint16
	IdentifierIndex        uint16
	AddressIdentifierIndex uint16
)

// ModuleHandle names a module by address and identifier.
type ModuleHandle struct {
	Address AddressIdentifierIndex
	Name    IdentifierIndex
}

// DatatypeTypeParameter is one type parameter of a struct or enum.
type DatatypeTypeParameter struct {
	Constraints uint8
	IsPhantom   bool
}

// DatatypeHandle names a struct or enum declared in some module.
type DatatypeHandle struct {
	Module         ModuleHandleIndex
	Name           IdentifierIndex
	Abilities      uint8
	TypeParameters []DatatypeTypeParameter
}

// FunctionHandle names a function declared in some module.
type FunctionHandle struct {
	Module         ModuleHandleIndex
	Name           IdentifierIndex
	Parameters     SignatureIndex
	Return         SignatureIndex
	TypeParameters []uint8
}

// FunctionInstantiation is a generic function handle applied to type arguments.
type FunctionInstantiation struct {
	Handle         FunctionHandleIndex
	TypeParameters SignatureIndex
}

// Visibility is a function definition's visibility.
type Visibility uint8

// Visibility values, as encoded in the binary.
const (
	Private Visibility = 0x0
	Public  Visibility = 0x1
	Friend  Visibility = 0x3
)

// String returns the upper-case name used in interface reports.
func (v Visibility) String() string {
	switch v {
	case Private:
		return "PRIVATE"
	case Public:
		return "PUBLIC"
	case Friend:
		return "FRIEND"
	default:
		return fmt.Sprintf("Visibility(%d)", uint8(v))
	}
}

// TokenKind is the tag of a SignatureToken.
type TokenKind uint8

// Signature token tags, as encoded in the binary.
const (
	TokenBool                  TokenKind = 0x1
	TokenU8                    TokenKind = 0x2
	TokenU64                   TokenKind = 0x3
	TokenU128                  TokenKind = 0x4
	TokenAddress               TokenKind = 0x5
	TokenReference             TokenKind = 0x6
	TokenMutableReference      TokenKind = 0x7
	TokenDatatype              TokenKind = 0x8
	TokenTypeParameter         TokenKind = 0x9
	TokenVector                TokenKind = 0xa
	TokenDatatypeInstantiation TokenKind = 0xb
	TokenSigner                TokenKind = 0xc
	TokenU16                   TokenKind = 0xd
	TokenU32                   TokenKind = 0xe
	TokenU256                  TokenKind = 0xf
)

// SignatureToken is one node of a type in a signature.
type SignatureToken struct {
	Kind TokenKind
	// Datatype is set for TokenDatatype and TokenDatatypeInstantiation.
	Datatype DatatypeHandleIndex
	// TypeArgs is set for TokenDatatypeInstantiation.
	TypeArgs []SignatureToken
	// TypeParameter is set for TokenTypeParameter.
	TypeParameter uint16
	// Inner is set for TokenVector, TokenReference and TokenMutableReference.
	Inner *SignatureToken
}

// Signature is an ordered list of types.
type Signature []SignatureToken

// FieldDefinition is one declared struct field.
type FieldDefinition struct {
	Name IdentifierIndex
	Type SignatureToken
}

// StructDefinition is a struct declared in this module.
type StructDefinition struct {
	Handle DatatypeHandleIndex
	Native bool
	Fields []FieldDefinition
}

// Function definition flags.
const (
	flagNative uint8 = 0x2
	flagEntry  uint8 = 0x4
)

// Struct field info tags.
const (
	fieldInfoNative   uint8 = 0x1
	fieldInfoDeclared uint8 = 0x2
)

// jumpTableFull is the only jump table flavor.
const jumpTableFull uint8 = 0x1

// JumpTable maps enum variants to code offsets for VariantSwitch.
type JumpTable struct {
	Enum    uint16
	Offsets []uint16
}

// CodeUnit is a function body.
type CodeUnit struct {
	Locals     SignatureIndex
	JumpTables []JumpTable
	Code       []Instruction
}

// FunctionDefinition is a function declared in this module.
// Code is nil for native functions.
type FunctionDefinition struct {
	Handle     FunctionHandleIndex
	Visibility Visibility
	IsEntry    bool
	Acquires   []uint16
	Code       *CodeUnit
}

// IsNative reports whether the function has no body.
func (f *FunctionDefinition) IsNative() bool {
	return f.Code == nil
}

// MarshalText implements encoding.TextMarshaler.
func (v Visibility) MarshalText() ([]byte, error) {
	switch v {
	case Private, Public, Friend:
		return []byte(v.String()), nil
	default:
		return nil, fmt.Errorf("invalid visibility %d", uint8(v))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Visibility) UnmarshalText(b []byte) error {
	switch string(b) {
	case "PRIVATE":
		*v = Private
	case "PUBLIC":
		*v = Public
	case "FRIEND":
		*v = Friend
	default:
		return fmt.Errorf("invalid visibility %q", b)
	}
	return nil
}
