// Package reader provides the read-side data access layer for the suipack CLI.
//
// Every query reads the on-disk archive through archive.Store and never
// writes to it.
package reader

import "github.com/pithecene-io/suipack/types"

// ListPackageItem is one row of `suipack list`.
type ListPackageItem struct {
	ID         types.Address `json:"id"`
	Version    uint64        `json:"version"`
	Checkpoint uint64        `json:"checkpoint"`
	// HasMetadata is false when metadata.json is missing; Version and
	// Checkpoint are then zero.
	HasMetadata bool `json:"has_metadata"`
}

// ModuleSummary describes one module of an inspected package.
type ModuleSummary struct {
	Name            string   `json:"name"`
	Functions       int      `json:"functions"`
	PublicFunctions int      `json:"public_functions"`
	EntryFunctions  int      `json:"entry_functions"`
	Structs         int      `json:"structs"`
	Caps            []string `json:"caps"`
}

// InspectPackageResponse is the output of `suipack inspect`.
type InspectPackageResponse struct {
	ID                types.Address   `json:"id"`
	OriginalPackageID *types.Address  `json:"original_package_id"`
	Version           uint64          `json:"version"`
	Checkpoint        *uint64         `json:"checkpoint"`
	TransactionDigest string          `json:"transaction_digest"`
	Sender            *string         `json:"sender"`
	Dependencies      int             `json:"dependencies"`
	Artifacts         []string        `json:"artifacts"`
	Modules           []ModuleSummary `json:"modules"`
}

// ArchiveStats is the output of `suipack stats`.
type ArchiveStats struct {
	Root              string `json:"root"`
	Packages          int    `json:"packages"`
	WithBCS           int    `json:"with_bcs"`
	WithCallGraph     int    `json:"with_call_graph"`
	WithMetadata      int    `json:"with_metadata"`
	BytecodeModules   int    `json:"bytecode_modules"`
	DecompiledModules int    `json:"decompiled_modules"`
	LatestCheckpoint  uint64 `json:"latest_checkpoint"`
}

// CapFinding is one interesting capability struct found by `suipack audit caps`.
type CapFinding struct {
	PackageID types.Address `json:"package_id"`
	Module    string        `json:"module"`
	Name      string        `json:"name"`
	Fields    int           `json:"fields"`
	Qualified string        `json:"qualified"`
}
