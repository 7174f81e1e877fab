package introspect

import (
	"strconv"
	"strings"

	"github.com/pithecene-io/suipack/movebin"
)

// FormatSignatureToken renders tok as a canonical type string, resolving
// datatypes through view. Addresses are always the full 64-digit form.
func FormatSignatureToken(view ModuleView, tok movebin.SignatureToken) string {
	var sb strings.Builder
	writeToken(&sb, view, tok)
	return sb.String()
}

func writeToken(sb *strings.Builder, view ModuleView, tok movebin.SignatureToken) {
	switch tok.Kind {
	case movebin.TokenBool:
		sb.WriteString("bool")
	case movebin.TokenU8:
		sb.WriteString("u8")
	case movebin.TokenU16:
		sb.WriteString("u16")
	case movebin.TokenU32:
		sb.WriteString("u32")
	case movebin.TokenU64:
		sb.WriteString("u64")
	case movebin.TokenU128:
		sb.WriteString("u128")
	case movebin.TokenU256:
		sb.WriteString("u256")
	case movebin.TokenAddress:
		sb.WriteString("address")
	case movebin.TokenSigner:
		sb.WriteString("signer")
	case movebin.TokenVector:
		sb.WriteString("vector<")
		writeToken(sb, view, *tok.Inner)
		sb.WriteByte('>')
	case movebin.TokenReference:
		sb.WriteByte('&')
		writeToken(sb, view, *tok.Inner)
	case movebin.TokenMutableReference:
		sb.WriteString("&mut ")
		writeToken(sb, view, *tok.Inner)
	case movebin.TokenTypeParameter:
		sb.WriteByte('T')
		sb.WriteString(strconv.Itoa(int(tok.TypeParameter)))
	case movebin.TokenDatatype, movebin.TokenDatatypeInstantiation:
		h := view.DatatypeHandleAt(tok.Datatype)
		sb.WriteString(qualifiedName(view, h.Module, h.Name))
		if len(tok.TypeArgs) > 0 {
			sb.WriteByte('<')
			for i, arg := range tok.TypeArgs {
				if i > 0 {
					sb.WriteString(", ")
				}
				writeToken(sb, view, arg)
			}
			sb.WriteByte('>')
		}
	}
}

// FormatSignature renders every token of sig. The result is never nil.
func FormatSignature(view ModuleView, sig movebin.Signature) []string {
	out := make([]string, 0, len(sig))
	for _, tok := range sig {
		out = append(out, FormatSignatureToken(view, tok))
	}
	return out
}
