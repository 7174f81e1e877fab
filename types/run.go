package types

import (
	"context"
	"errors"
	"fmt"
)

// SourceKind names where a run reads packages from.
type SourceKind string

// Source kinds, one per CLI entry point.
const (
	SourceGraphQL   SourceKind = "graphql"
	SourceSingle    SourceKind = "single"
	SourceFramework SourceKind = "framework"
	SourceReplay    SourceKind = "replay"
	SourceCSV       SourceKind = "csv"
)

// RunMeta contains run identity attached to every log line and event.
type RunMeta struct {
	// RunID is the canonical run identifier. Must be globally unique.
	RunID string
	// Source is the input the run archives from.
	Source SourceKind
}

// Validate checks that the run identity is complete.
func (r *RunMeta) Validate() error {
	if r.RunID == "" {
		return errors.New("run_id must be non-empty")
	}
	switch r.Source {
	case SourceGraphQL, SourceSingle, SourceFramework, SourceReplay, SourceCSV:
		return nil
	default:
		return fmt.Errorf("unknown source %q", r.Source)
	}
}

// OutcomeStatus is the final status of a run.
type OutcomeStatus string

const (
	// OutcomeSuccess indicates every package was archived.
	OutcomeSuccess OutcomeStatus = "success"
	// OutcomeFetchError indicates the remote endpoint or input could not be read.
	OutcomeFetchError OutcomeStatus = "fetch_error"
	// OutcomeDecodeError indicates a package payload was malformed.
	OutcomeDecodeError OutcomeStatus = "decode_error"
	// OutcomeStorageError indicates an archive or mirror write failed.
	OutcomeStorageError OutcomeStatus = "storage_error"
	// OutcomeDecompilerError indicates the external decompiler failed.
	OutcomeDecompilerError OutcomeStatus = "decompiler_error"
	// OutcomeCanceled indicates the run was interrupted.
	OutcomeCanceled OutcomeStatus = "canceled"
	// OutcomeUnknownError covers failures outside the taxonomy.
	OutcomeUnknownError OutcomeStatus = "unknown_error"
)

// OutcomeFor classifies a run error. A nil error is a success.
func OutcomeFor(err error) OutcomeStatus {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrTransport), errors.Is(err, ErrResponseParse),
		errors.Is(err, ErrServerReported), errors.Is(err, ErrProvenanceUnavailable):
		return OutcomeFetchError
	case errors.Is(err, ErrDecode):
		return OutcomeDecodeError
	case errors.Is(err, ErrFilesystem):
		return OutcomeStorageError
	case errors.Is(err, ErrSubprocess):
		return OutcomeDecompilerError
	case errors.Is(err, context.Canceled):
		return OutcomeCanceled
	default:
		return OutcomeUnknownError
	}
}
