package types

// PackageWithMetadata is a package together with the provenance of the
// transaction that created it. It is produced by a fetcher or a file source,
// consumed once by the orchestrator and then discarded.
type PackageWithMetadata struct {
	Package           *Package
	Checkpoint        uint64
	TransactionDigest string
	// Sender is nil when the source did not report one.
	Sender *string
}

// PackageMetadata is the content of metadata.json.
type PackageMetadata struct {
	ID                Address `json:"id"`
	OriginalPackageID Address `json:"originalPackageId"`
	Version           uint64  `json:"version"`
	Sender            *string `json:"sender"`
	TransactionDigest string  `json:"transactionDigest"`
	Checkpoint        uint64  `json:"checkpoint"`
}

// NewPackageWithMetadata decodes the package BCS payload and attaches its
// provenance. subject names the package in errors, usually the address the
// source reported for it.
func NewPackageWithMetadata(subject string, payload []byte, checkpoint uint64, digest string, sender *string) (*PackageWithMetadata, error) {
	pkg, err := DecodePackage(payload)
	if err != nil {
		return nil, NewError(ErrDecode, "decode package bcs", subject, err)
	}
	return &PackageWithMetadata{
		Package:           pkg,
		Checkpoint:        checkpoint,
		TransactionDigest: digest,
		Sender:            sender,
	}, nil
}
