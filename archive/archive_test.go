package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/pithecene-io/suipack/movebin"
	"github.com/pithecene-io/suipack/types"
)

// =============================================================================
// Fixtures
// =============================================================================

func moduleBytes(addr types.Address, name string) []byte {
	b := movebin.NewBuilder(addr, name)
	b.Function(movebin.FunctionSpec{
		Name:       "run",
		Visibility: movebin.Public,
		Entry:      true,
		Code:       []movebin.Instruction{{Op: movebin.OpRet}},
	})
	return b.Bytes()
}

func testPackage(id string, checkpoint uint64, modules ...string) *types.PackageWithMetadata {
	addr := types.MustParseAddress(id)
	mm := make(map[string][]byte, len(modules))
	for _, name := range modules {
		mm[name] = moduleBytes(addr, name)
	}
	return &types.PackageWithMetadata{
		Package:           &types.Package{ID: addr, Version: 1, ModuleMap: mm},
		Checkpoint:        checkpoint,
		TransactionDigest: "digest",
	}
}

// fakeDecompiler records every invocation.
type fakeDecompiler struct {
	calls  []string
	inputs [][]byte
	err    error
}

func (f *fakeDecompiler) Decompile(_ context.Context, path string) ([]byte, error) {
	f.calls = append(f.calls, path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f.inputs = append(f.inputs, data)
	if f.err != nil {
		return nil, f.err
	}
	return []byte("module " + strings.TrimSuffix(filepath.Base(path), ".mv") + " {}\n"), nil
}

func readTree(t *testing.T, root string) map[string][]byte {
	t.Helper()
	out := map[string][]byte{}
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		out[rel] = data
		return nil
	})
	if err != nil {
		t.Fatalf("walk %s: %v", root, err)
	}
	return out
}

// =============================================================================
// Sharding
// =============================================================================

func TestShardPath(t *testing.T) {
	a := types.MustParseAddress("0xab" + strings.Repeat("0", 61) + "1")
	b := types.MustParseAddress("0xab" + strings.Repeat("0", 61) + "2")

	pa, pb := ShardPath(a), ShardPath(b)
	if filepath.Dir(pa) != "0xab" || filepath.Dir(pb) != "0xab" {
		t.Errorf("first level = %s, %s; want 0xab", filepath.Dir(pa), filepath.Dir(pb))
	}
	if filepath.Base(pa) == filepath.Base(pb) {
		t.Error("different ids resolved to the same package directory")
	}
	if len(filepath.Base(pa)) != 62 {
		t.Errorf("second level %q is not 62 digits", filepath.Base(pa))
	}

	two := ShardPath(types.MustParseAddress("0x2"))
	if want := filepath.Join("0x00", strings.Repeat("0", 61)+"2"); two != want {
		t.Errorf("ShardPath(0x2) = %s, want %s", two, want)
	}
}

// =============================================================================
// Save
// =============================================================================

func TestSave_WritesAllArtifacts(t *testing.T) {
	s := New(t.TempDir())
	dec := &fakeDecompiler{}
	opts := AllArtifacts()
	opts.Decompiler = dec

	p := testPackage("0xc0ffee", 42, "beta", "alpha")
	res, err := s.Save(t.Context(), p, opts)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	want := []string{
		BCSFile,
		filepath.Join(BytecodeDir, "alpha.mv"),
		filepath.Join(DecompiledDir, "alpha.move"),
		filepath.Join(BytecodeDir, "beta.mv"),
		filepath.Join(DecompiledDir, "beta.move"),
		CallGraphFile,
		MetadataFile,
	}
	if strings.Join(res.Written, ",") != strings.Join(want, ",") {
		t.Errorf("Written = %v, want %v", res.Written, want)
	}
	if len(res.Skipped) != 0 || res.DecompilerRuns != 2 {
		t.Errorf("Skipped = %v, DecompilerRuns = %d", res.Skipped, res.DecompilerRuns)
	}

	dir := s.PackageDir(p.Package.ID)
	mv, err := os.ReadFile(filepath.Join(dir, BytecodeDir, "alpha.mv"))
	if err != nil || !bytes.Equal(mv, p.Package.ModuleMap["alpha"]) {
		t.Errorf("alpha.mv mismatch (err=%v)", err)
	}

	var meta map[string]any
	raw, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	if err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		t.Fatalf("parse metadata: %v", err)
	}
	if meta["sender"] != nil {
		t.Errorf("sender = %v, want null", meta["sender"])
	}
	if meta["originalPackageId"] != p.Package.ID.String() || meta["checkpoint"] != float64(42) {
		t.Errorf("metadata = %v", meta)
	}
	if !bytes.Contains(raw, []byte("\n  \"id\"")) {
		t.Errorf("metadata is not two-space indented:\n%s", raw)
	}

	var graph struct {
		PackageID        string `json:"packageId"`
		ModuleCallGraphs []struct {
			ModuleName string `json:"moduleName"`
		} `json:"moduleCallGraphs"`
	}
	raw, _ = os.ReadFile(filepath.Join(dir, CallGraphFile))
	if err := json.Unmarshal(raw, &graph); err != nil {
		t.Fatalf("parse call graph: %v", err)
	}
	if len(graph.ModuleCallGraphs) != 2 || graph.ModuleCallGraphs[0].ModuleName != "alpha" {
		t.Errorf("call graph = %+v", graph)
	}
}

func TestSave_IdempotentWithoutForce(t *testing.T) {
	s := New(t.TempDir())
	dec := &fakeDecompiler{}
	opts := AllArtifacts()
	opts.Decompiler = dec
	p := testPackage("0x1234", 7, "m1", "m2")

	if _, err := s.Save(t.Context(), p, opts); err != nil {
		t.Fatalf("first Save failed: %v", err)
	}
	before := readTree(t, s.Root())
	firstCalls := len(dec.calls)

	res, err := s.Save(t.Context(), p, opts)
	if err != nil {
		t.Fatalf("second Save failed: %v", err)
	}
	if len(dec.calls) != firstCalls {
		t.Errorf("decompiler re-invoked: %d calls after second save, want %d", len(dec.calls), firstCalls)
	}
	if len(res.Written) != 0 || len(res.Skipped) != 7 {
		t.Errorf("Written = %v, Skipped = %v", res.Written, res.Skipped)
	}

	after := readTree(t, s.Root())
	if len(after) != len(before) {
		t.Fatalf("file count changed: %d -> %d", len(before), len(after))
	}
	for path, data := range before {
		if !bytes.Equal(after[path], data) {
			t.Errorf("%s changed between runs", path)
		}
	}
}

func TestSave_ForceRewrites(t *testing.T) {
	s := New(t.TempDir())
	p := testPackage("0x1234", 7, "m")
	opts := SaveOptions{BCS: true, Metadata: true}

	if _, err := s.Save(t.Context(), p, opts); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	metaPath := filepath.Join(s.PackageDir(p.Package.ID), MetadataFile)
	if err := os.WriteFile(metaPath, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	opts.Force = true
	res, err := s.Save(t.Context(), p, opts)
	if err != nil {
		t.Fatalf("forced Save failed: %v", err)
	}
	if len(res.Written) != 2 {
		t.Errorf("Written = %v, want both artifacts", res.Written)
	}
	meta, err := s.ReadMetadata(p.Package.ID)
	if err != nil {
		t.Fatalf("ReadMetadata failed: %v", err)
	}
	if meta.Checkpoint != 7 {
		t.Errorf("checkpoint = %d, want 7", meta.Checkpoint)
	}
}

func TestSave_DecompileWithoutBytecode(t *testing.T) {
	s := New(t.TempDir())
	dec := &fakeDecompiler{}
	p := testPackage("0x99", 1, "only")

	res, err := s.Save(t.Context(), p, SaveOptions{Decompiled: true, Decompiler: dec})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if len(dec.calls) != 1 || !bytes.Equal(dec.inputs[0], p.Package.ModuleMap["only"]) {
		t.Fatalf("decompiler did not receive the module bytes: %v", dec.calls)
	}
	if filepath.Base(dec.calls[0]) != "only.mv" {
		t.Errorf("input file = %s, want only.mv", dec.calls[0])
	}
	if _, err := os.Stat(dec.calls[0]); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("temp input not removed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.PackageDir(p.Package.ID), BytecodeDir)); !errors.Is(err, os.ErrNotExist) {
		t.Error("bytecode_modules written although disabled")
	}
	if len(res.Written) != 1 || res.Written[0] != filepath.Join(DecompiledDir, "only.move") {
		t.Errorf("Written = %v", res.Written)
	}
}

func TestSave_DecompilerFailureIsFatal(t *testing.T) {
	s := New(t.TempDir())
	dec := &fakeDecompiler{err: errors.New("exit status 2")}
	opts := AllArtifacts()
	opts.Decompiler = dec

	_, err := s.Save(t.Context(), testPackage("0x5", 1, "m"), opts)
	if !errors.Is(err, types.ErrSubprocess) {
		t.Fatalf("err = %v, want ErrSubprocess", err)
	}
	if _, statErr := os.Stat(filepath.Join(s.PackageDir(types.MustParseAddress("0x5")), MetadataFile)); statErr == nil {
		t.Error("metadata.json written after a failed decompile")
	}
}

func TestSave_DecodeFailure(t *testing.T) {
	s := New(t.TempDir())
	p := testPackage("0x5", 1, "good")
	p.Package.ModuleMap["bad"] = []byte{0x00}

	_, err := s.Save(t.Context(), p, SaveOptions{BCS: true})
	if !errors.Is(err, types.ErrDecode) {
		t.Fatalf("err = %v, want ErrDecode", err)
	}
	if _, statErr := os.Stat(filepath.Join(s.PackageDir(p.Package.ID), BCSFile)); statErr == nil {
		t.Error("bcs.json written for an undecodable package")
	}
}

func TestSave_RequiresDecompiler(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.Save(t.Context(), testPackage("0x5", 1, "m"), SaveOptions{Decompiled: true})
	if !errors.Is(err, types.ErrSubprocess) {
		t.Fatalf("err = %v, want subprocess error", err)
	}
	if got := types.OutcomeFor(err); got != types.OutcomeDecompilerError {
		t.Errorf("outcome = %s, want %s", got, types.OutcomeDecompilerError)
	}
}

func TestSave_SignaturesWrittenLiterally(t *testing.T) {
	framework := types.MustParseAddress("0x2")
	b := movebin.NewBuilder(framework, "pay")
	coin := b.Datatype(b.Module(framework, "coin"), "Coin", 1)
	sui := b.Datatype(b.Module(framework, "sui"), "SUI", 0)
	b.Function(movebin.FunctionSpec{
		Name:       "split",
		Visibility: movebin.Public,
		Entry:      true,
		Params:     []movebin.SignatureToken{movebin.MutRef(movebin.Datatype(coin, movebin.Datatype(sui)))},
		Code:       []movebin.Instruction{{Op: movebin.OpRet}},
	})
	p := &types.PackageWithMetadata{
		Package:    &types.Package{ID: framework, Version: 1, ModuleMap: map[string][]byte{"pay": b.Bytes()}},
		Checkpoint: 1,
	}

	s := New(t.TempDir())
	if _, err := s.Save(t.Context(), p, SaveOptions{BCS: true}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(s.PackageDir(framework), BCSFile))
	if err != nil {
		t.Fatal(err)
	}

	two := framework.String()
	want := `"&mut ` + two + `::coin::Coin<` + two + `::sui::SUI>"`
	if !bytes.Contains(data, []byte(want)) {
		t.Errorf("bcs.json missing %s:\n%s", want, data)
	}
	if bytes.Contains(data, []byte(`\u00`)) {
		t.Errorf("bcs.json contains escaped characters:\n%s", data)
	}
	if bytes.HasSuffix(data, []byte("\n")) {
		t.Error("bcs.json should not end with a newline")
	}
}

func TestSave_RejectsPathModuleName(t *testing.T) {
	root := t.TempDir()
	s := New(filepath.Join(root, "archive"))
	p := testPackage("0x6", 1, "m")
	p.Package.ModuleMap["../../escape"] = moduleBytes(p.Package.ID, "m")

	_, err := s.Save(t.Context(), p, SaveOptions{BCS: true, Bytecode: true})
	if !errors.Is(err, types.ErrDecode) {
		t.Fatalf("err = %v, want decode error", err)
	}
	if _, err := os.Stat(filepath.Join(root, "escape.mv")); !os.IsNotExist(err) {
		t.Errorf("file written outside the archive, stat err = %v", err)
	}
	if _, err := os.Stat(s.PackageDir(p.Package.ID)); !os.IsNotExist(err) {
		t.Errorf("package directory created for a rejected package, stat err = %v", err)
	}
}

func TestSave_Canceled(t *testing.T) {
	s := New(t.TempDir())
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := s.Save(ctx, testPackage("0x5", 1, "m"), SaveOptions{BCS: true})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

// =============================================================================
// Scans
// =============================================================================

func TestLatestCheckpoint(t *testing.T) {
	s := New(t.TempDir())
	for i, cp := range []uint64{100, 250, 75} {
		id := []string{"0xa1", "0xb2", "0xc3"}[i]
		if _, err := s.Save(t.Context(), testPackage(id, cp, "m"), SaveOptions{Metadata: true}); err != nil {
			t.Fatalf("Save %s failed: %v", id, err)
		}
	}

	got, err := s.LatestCheckpoint()
	if err != nil {
		t.Fatalf("LatestCheckpoint failed: %v", err)
	}
	if got != 250 {
		t.Errorf("LatestCheckpoint = %d, want 250", got)
	}
}

func TestLatestCheckpoint_Empty(t *testing.T) {
	for name, root := range map[string]string{
		"empty dir":    t.TempDir(),
		"missing root": filepath.Join(t.TempDir(), "absent"),
	} {
		t.Run(name, func(t *testing.T) {
			got, err := New(root).LatestCheckpoint()
			if err != nil {
				t.Fatalf("LatestCheckpoint failed: %v", err)
			}
			if got != 0 {
				t.Errorf("LatestCheckpoint = %d, want 0", got)
			}
		})
	}
}

func TestLatestCheckpoint_BadMetadataIsFatal(t *testing.T) {
	tests := []struct {
		name    string
		content []byte // nil removes the file
		kind    error
	}{
		{name: "corrupt", content: []byte("{not json"), kind: types.ErrDecode},
		{name: "missing", content: nil, kind: types.ErrFilesystem},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(t.TempDir())
			p := testPackage("0xa1", 10, "m")
			if _, err := s.Save(t.Context(), p, SaveOptions{Metadata: true}); err != nil {
				t.Fatal(err)
			}
			path := filepath.Join(s.PackageDir(p.Package.ID), MetadataFile)
			var err error
			if tt.content == nil {
				err = os.Remove(path)
			} else {
				err = os.WriteFile(path, tt.content, 0o644)
			}
			if err != nil {
				t.Fatal(err)
			}

			_, err = s.LatestCheckpoint()
			if !errors.Is(err, tt.kind) {
				t.Fatalf("err = %v, want %v", err, tt.kind)
			}
		})
	}
}

func TestPackageIDs(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	for _, id := range []string{"0xff01", "0x02", "0xab"} {
		if _, err := s.Save(t.Context(), testPackage(id, 1, "m"), SaveOptions{Metadata: true}); err != nil {
			t.Fatal(err)
		}
	}
	for _, junk := range []string{
		filepath.Join("0x00", "short"),
		filepath.Join("tmp", strings.Repeat("a", 62)),
	} {
		if err := os.MkdirAll(filepath.Join(root, junk), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	ids, err := s.PackageIDs()
	if err != nil {
		t.Fatalf("PackageIDs failed: %v", err)
	}
	want := []string{"0x02", "0xab", "0xff01"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i, w := range want {
		if ids[i] != types.MustParseAddress(w) {
			t.Errorf("ids[%d] = %s, want %s", i, ids[i], w)
		}
	}
}

func TestLoadModules(t *testing.T) {
	s := New(t.TempDir())
	p := testPackage("0x77", 1, "zz", "aa")
	if _, err := s.Save(t.Context(), p, SaveOptions{BCS: true}); err != nil {
		t.Fatal(err)
	}

	modules, err := s.LoadModules(p.Package.ID)
	if err != nil {
		t.Fatalf("LoadModules failed: %v", err)
	}
	if len(modules) != 2 || modules[0].Name != "aa" || modules[1].Name != "zz" {
		t.Fatalf("modules = %+v", modules)
	}

	report, err := s.LoadPackageReport(p.Package.ID)
	if err != nil {
		t.Fatalf("LoadPackageReport failed: %v", err)
	}
	if fn := report.FunctionMap["aa"]["run"]; fn.Visibility != movebin.Public || !fn.IsEntry {
		t.Errorf("run = %+v", fn)
	}
}

func TestStats(t *testing.T) {
	s := New(t.TempDir())
	dec := &fakeDecompiler{}
	opts := AllArtifacts()
	opts.Decompiler = dec
	if _, err := s.Save(t.Context(), testPackage("0x1", 30, "a", "b"), opts); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Save(t.Context(), testPackage("0x2", 40, "c"), SaveOptions{BCS: true}); err != nil {
		t.Fatal(err)
	}

	st, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	want := Stats{
		Packages:          2,
		WithBCS:           2,
		WithCallGraph:     1,
		WithMetadata:      1,
		BytecodeModules:   2,
		DecompiledModules: 2,
		LatestCheckpoint:  30,
	}
	if *st != want {
		t.Errorf("Stats = %+v, want %+v", *st, want)
	}
}

// =============================================================================
// CommandDecompiler
// =============================================================================

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "decompiler.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCommandDecompiler(t *testing.T) {
	script := writeScript(t, `[ "$1" = "--bytecode" ] || exit 3
echo "decompiled $(basename "$2")"
`)
	d := &CommandDecompiler{Path: script}

	out, err := d.Decompile(t.Context(), "/tmp/coin.mv")
	if err != nil {
		t.Fatalf("Decompile failed: %v", err)
	}
	if string(out) != "decompiled coin.mv\n" {
		t.Errorf("output = %q", out)
	}
}

func TestCommandDecompiler_NonZeroExit(t *testing.T) {
	script := writeScript(t, "echo partial\necho 'bad magic' >&2\nexit 2\n")
	d := &CommandDecompiler{Path: script}

	_, err := d.Decompile(t.Context(), "/tmp/x.mv")
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	if !strings.Contains(err.Error(), "code 2") || !strings.Contains(err.Error(), "bad magic") {
		t.Errorf("error = %v, want exit code and stderr", err)
	}
}

func TestCommandDecompiler_MissingBinary(t *testing.T) {
	d := &CommandDecompiler{Path: filepath.Join(t.TempDir(), "nope")}
	if _, err := d.Decompile(t.Context(), "x.mv"); err == nil {
		t.Fatal("expected error for missing binary")
	}
}
