package cmd

import (
	"testing"
)

func flagNames(flags []interface{ Names() []string }) map[string]bool {
	names := make(map[string]bool)
	for _, f := range flags {
		names[f.Names()[0]] = true
	}
	return names
}

func TestReadOnlyFlags_IncludesTUI(t *testing.T) {
	flags := ReadOnlyFlags()

	hasTUI := false
	for _, f := range flags {
		if f.Names()[0] == "tui" {
			hasTUI = true
			break
		}
	}

	if !hasTUI {
		t.Error("ReadOnlyFlags should include --tui flag for explicit error handling")
	}
}

func TestArchiveReadFlags(t *testing.T) {
	var flags []interface{ Names() []string }
	for _, f := range ArchiveReadFlags() {
		flags = append(flags, f)
	}
	names := flagNames(flags)

	for _, want := range []string{"config", "archive", "format", "no-color", "tui"} {
		if !names[want] {
			t.Errorf("ArchiveReadFlags missing --%s", want)
		}
	}
}

func TestRunFlags(t *testing.T) {
	var flags []interface{ Names() []string }
	for _, f := range RunFlags(false) {
		flags = append(flags, f)
	}
	names := flagNames(flags)

	for _, want := range []string{
		"config", "archive", "decompiler", "force", "skip", "checkpoint-file",
		"graphql-url", "rpc-url", "mirror-backend", "adapter", "log-file", "metrics-textfile",
	} {
		if !names[want] {
			t.Errorf("RunFlags missing --%s", want)
		}
	}
	if names["tui"] {
		t.Error("RunFlags should not include --tui")
	}
}

func TestArchiveReadFlags_FreshValues(t *testing.T) {
	a, b := ArchiveReadFlags(), ArchiveReadFlags()
	for i := range a {
		if a[i] == b[i] {
			t.Errorf("flag --%s is shared between commands", a[i].Names()[0])
		}
	}
	r1, r2 := RunFlags(false), RunFlags(false)
	if r1[0] == r2[0] || r1[1] == r2[1] {
		t.Error("RunFlags should return fresh --config and --archive flags")
	}
}

func TestIsStderrTTY(_ *testing.T) {
	// This test documents the function exists and can be called.
	// Actual TTY behavior depends on runtime environment.
	_ = isStderrTTY()
}
