package types

// Version is the canonical project version.
// The CLI, the completion event contract and the HTTP User-Agent share it.
const Version = "0.1.0"

// ContractVersion is the version of the archive completion event payload.
// It moves in lockstep with Version.
const ContractVersion = Version
