package runtime

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pithecene-io/suipack/archive"
	"github.com/pithecene-io/suipack/iox"
	"github.com/pithecene-io/suipack/types"
)

// WriteCheckpointFile atomically replaces path with checkpoint as a
// decimal number and a trailing newline.
func WriteCheckpointFile(path string, checkpoint uint64) error {
	data := []byte(strconv.FormatUint(checkpoint, 10) + "\n")
	if err := iox.WriteFileAtomic(path, data, 0o644); err != nil {
		return types.NewError(types.ErrFilesystem, "write checkpoint file", path, err)
	}
	return nil
}

// ReadCheckpointFile parses a file written by WriteCheckpointFile.
func ReadCheckpointFile(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, types.NewError(types.ErrFilesystem, "read checkpoint file", path, err)
	}
	cp, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, types.NewError(types.ErrDecode, "parse checkpoint file", path, err)
	}
	return cp, nil
}

// ResolveStartCheckpoint returns the checkpoint a bulk sync starts after.
// An explicit value wins; otherwise the archive's high-water mark is
// recovered by scanning its metadata.
func ResolveStartCheckpoint(explicit *uint64, store *archive.Store) (uint64, error) {
	if explicit != nil {
		return *explicit, nil
	}
	cp, err := store.LatestCheckpoint()
	if err != nil {
		return 0, fmt.Errorf("recover checkpoint: %w", err)
	}
	return cp, nil
}
