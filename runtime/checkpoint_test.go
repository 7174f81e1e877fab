package runtime

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pithecene-io/suipack/archive"
	"github.com/pithecene-io/suipack/types"
)

func TestCheckpointFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "checkpoint")
	if err := WriteCheckpointFile(path, 123456789); err != nil {
		t.Fatalf("WriteCheckpointFile failed: %v", err)
	}
	got, err := ReadCheckpointFile(path)
	if err != nil {
		t.Fatalf("ReadCheckpointFile failed: %v", err)
	}
	if got != 123456789 {
		t.Errorf("got %d", got)
	}
}

func TestReadCheckpointFile_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := ReadCheckpointFile(filepath.Join(dir, "missing")); !errors.Is(err, types.ErrFilesystem) {
		t.Errorf("missing: err = %v, want ErrFilesystem", err)
	}

	bad := filepath.Join(dir, "bad")
	if err := os.WriteFile(bad, []byte("twelve\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadCheckpointFile(bad); !errors.Is(err, types.ErrDecode) {
		t.Errorf("bad: err = %v, want ErrDecode", err)
	}
}

func TestResolveStartCheckpoint(t *testing.T) {
	store := archive.New(t.TempDir())
	for _, p := range []*types.PackageWithMetadata{testPackage("0x1", 100), testPackage("0x2", 250), testPackage("0x3", 75)} {
		if _, err := store.Save(t.Context(), p, archive.SaveOptions{Metadata: true}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := ResolveStartCheckpoint(nil, store)
	if err != nil || got != 250 {
		t.Errorf("recovered = %d, %v; want 250", got, err)
	}

	explicit := uint64(7)
	got, err = ResolveStartCheckpoint(&explicit, store)
	if err != nil || got != 7 {
		t.Errorf("explicit = %d, %v; want 7", got, err)
	}

	got, err = ResolveStartCheckpoint(nil, archive.New(filepath.Join(t.TempDir(), "absent")))
	if err != nil || got != 0 {
		t.Errorf("empty archive = %d, %v; want 0", got, err)
	}
}
