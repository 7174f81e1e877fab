package reader

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pithecene-io/suipack/types"
)

// ParsePackageID accepts a package id in any of the forms a user is likely
// to paste: "0x2", the full 64-digit id with or without prefix, or an
// archive directory path ending in 0x<2hex>/<62hex>.
func ParsePackageID(s string) (types.Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return types.Address{}, fmt.Errorf("package id must not be empty")
	}

	clean := filepath.ToSlash(filepath.Clean(s))
	if strings.Contains(clean, "/") {
		parts := strings.Split(clean, "/")
		shard, rest := parts[len(parts)-2], parts[len(parts)-1]
		if len(shard) != 4 || !strings.HasPrefix(shard, "0x") || len(rest) != 62 {
			return types.Address{}, fmt.Errorf("invalid package directory %q: expected 0x<2hex>/<62hex>", s)
		}
		return types.ParseAddress(shard + rest)
	}
	return types.ParseAddress(clean)
}
