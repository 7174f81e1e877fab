package reader

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pithecene-io/suipack/archive"
	"github.com/pithecene-io/suipack/movebin"
	"github.com/pithecene-io/suipack/types"
)

// =============================================================================
// Fixtures
// =============================================================================

var (
	coinID  = types.MustParseAddress("0xab" + strings.Repeat("0", 61) + "1")
	adminID = types.MustParseAddress("0x2")
)

func coinModule(addr types.Address) []byte {
	b := movebin.NewBuilder(addr, "coin")
	b.Function(movebin.FunctionSpec{
		Name:       "mint",
		Visibility: movebin.Public,
		Entry:      true,
		Code:       []movebin.Instruction{{Op: movebin.OpRet}},
	})
	b.Function(movebin.FunctionSpec{
		Name:       "helper",
		Visibility: movebin.Private,
		Code:       []movebin.Instruction{{Op: movebin.OpRet}},
	})
	return b.Bytes()
}

func adminModule(addr types.Address) []byte {
	u64 := movebin.Prim(movebin.TokenU64)
	b := movebin.NewBuilder(addr, "admin")
	b.Struct("AdminCap", 0, movebin.Field{Name: "id", Type: u64}, movebin.Field{Name: "limit", Type: u64})
	b.Struct("OwnerCap", 0, movebin.Field{Name: "id", Type: u64})
	return b.Bytes()
}

func seedArchive(t *testing.T) *archive.Store {
	t.Helper()
	store := archive.New(t.TempDir())
	opts := archive.SaveOptions{BCS: true, Bytecode: true, CallGraph: true, Metadata: true}

	sender := "0xfeed"
	pkgs := []*types.PackageWithMetadata{
		{
			Package: &types.Package{
				ID:        coinID,
				Version:   1,
				ModuleMap: map[string][]byte{"coin": coinModule(coinID)},
			},
			Checkpoint:        120,
			TransactionDigest: "digest-coin",
			Sender:            &sender,
		},
		{
			Package: &types.Package{
				ID:        adminID,
				Version:   1,
				ModuleMap: map[string][]byte{"admin": adminModule(adminID)},
			},
			Checkpoint:        80,
			TransactionDigest: "digest-admin",
		},
	}
	for _, p := range pkgs {
		if _, err := store.Save(t.Context(), p, opts); err != nil {
			t.Fatalf("seed %s: %v", p.Package.ID, err)
		}
	}
	return store
}

// =============================================================================
// List
// =============================================================================

func TestListPackages(t *testing.T) {
	store := seedArchive(t)
	items, err := New(store).ListPackages()
	if err != nil {
		t.Fatalf("ListPackages failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	// Sorted by id: 0x2 sorts before 0xab...
	if items[0].ID != adminID || items[1].ID != coinID {
		t.Errorf("order = %s, %s", items[0].ID, items[1].ID)
	}
	if !items[1].HasMetadata || items[1].Checkpoint != 120 || items[1].Version != 1 {
		t.Errorf("coin item = %+v", items[1])
	}
}

func TestListPackages_MissingMetadata(t *testing.T) {
	store := seedArchive(t)
	if err := os.Remove(filepath.Join(store.PackageDir(coinID), archive.MetadataFile)); err != nil {
		t.Fatal(err)
	}
	items, err := New(store).ListPackages()
	if err != nil {
		t.Fatalf("ListPackages failed: %v", err)
	}
	if items[1].HasMetadata || items[1].Checkpoint != 0 {
		t.Errorf("coin item = %+v, want no metadata", items[1])
	}
}

func TestListPackages_EmptyArchive(t *testing.T) {
	store := archive.New(filepath.Join(t.TempDir(), "missing"))
	items, err := New(store).ListPackages()
	if err != nil {
		t.Fatalf("ListPackages failed: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("items = %v, want none", items)
	}
}

// =============================================================================
// Inspect
// =============================================================================

func TestInspectPackage(t *testing.T) {
	store := seedArchive(t)
	resp, err := New(store).InspectPackage(coinID)
	if err != nil {
		t.Fatalf("InspectPackage failed: %v", err)
	}

	if resp.ID != coinID || resp.Version != 1 {
		t.Errorf("identity = %s v%d", resp.ID, resp.Version)
	}
	if resp.OriginalPackageID == nil || *resp.OriginalPackageID != coinID {
		t.Errorf("original id = %v, want %s", resp.OriginalPackageID, coinID)
	}
	if resp.Checkpoint == nil || *resp.Checkpoint != 120 {
		t.Errorf("checkpoint = %v, want 120", resp.Checkpoint)
	}
	if resp.Sender == nil || *resp.Sender != "0xfeed" || resp.TransactionDigest != "digest-coin" {
		t.Errorf("provenance = %v %q", resp.Sender, resp.TransactionDigest)
	}

	wantArtifacts := []string{archive.BCSFile, "bytecode_modules/coin.mv", archive.CallGraphFile, archive.MetadataFile}
	if strings.Join(resp.Artifacts, ",") != strings.Join(wantArtifacts, ",") {
		t.Errorf("artifacts = %v, want %v", resp.Artifacts, wantArtifacts)
	}

	if len(resp.Modules) != 1 {
		t.Fatalf("modules = %+v", resp.Modules)
	}
	m := resp.Modules[0]
	if m.Name != "coin" || m.Functions != 2 || m.PublicFunctions != 1 || m.EntryFunctions != 1 {
		t.Errorf("module = %+v", m)
	}
	if len(m.Caps) != 0 {
		t.Errorf("caps = %v, want none", m.Caps)
	}
}

func TestInspectPackage_Caps(t *testing.T) {
	resp, err := New(seedArchive(t)).InspectPackage(adminID)
	if err != nil {
		t.Fatalf("InspectPackage failed: %v", err)
	}
	m := resp.Modules[0]
	if m.Structs != 2 || len(m.Caps) != 1 || m.Caps[0] != "AdminCap" {
		t.Errorf("module = %+v", m)
	}
}

func TestInspectPackage_NotArchived(t *testing.T) {
	_, err := New(seedArchive(t)).InspectPackage(types.MustParseAddress("0x3"))
	if !errors.Is(err, types.ErrFilesystem) {
		t.Fatalf("err = %v, want filesystem error", err)
	}
	if !strings.Contains(err.Error(), "not archived") {
		t.Errorf("err = %v", err)
	}
}

func TestInspectPackage_CorruptBCS(t *testing.T) {
	store := seedArchive(t)
	if err := os.WriteFile(filepath.Join(store.PackageDir(coinID), archive.BCSFile), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(store).InspectPackage(coinID); !errors.Is(err, types.ErrDecode) {
		t.Fatalf("err = %v, want decode error", err)
	}
}

// =============================================================================
// Stats and audit
// =============================================================================

func TestStats(t *testing.T) {
	store := seedArchive(t)
	st, err := New(store).Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if st.Root != store.Root() {
		t.Errorf("root = %q", st.Root)
	}
	if st.Packages != 2 || st.WithBCS != 2 || st.WithMetadata != 2 || st.BytecodeModules != 2 {
		t.Errorf("stats = %+v", st)
	}
	if st.DecompiledModules != 0 || st.LatestCheckpoint != 120 {
		t.Errorf("stats = %+v", st)
	}
}

func TestAuditCaps(t *testing.T) {
	store := seedArchive(t)
	findings, err := New(store).AuditCaps()
	if err != nil {
		t.Fatalf("AuditCaps failed: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("findings = %+v, want one", findings)
	}
	f := findings[0]
	if f.PackageID != adminID || f.Module != "admin" || f.Name != "AdminCap" || f.Fields != 2 {
		t.Errorf("finding = %+v", f)
	}
	if f.Qualified != adminID.String()+"::admin::AdminCap" {
		t.Errorf("qualified = %q", f.Qualified)
	}
}

func TestAuditCaps_SkipsPackagesWithoutBCS(t *testing.T) {
	store := seedArchive(t)
	if err := os.Remove(filepath.Join(store.PackageDir(adminID), archive.BCSFile)); err != nil {
		t.Fatal(err)
	}
	findings, err := New(store).AuditCaps()
	if err != nil {
		t.Fatalf("AuditCaps failed: %v", err)
	}
	if len(findings) != 0 {
		t.Errorf("findings = %+v, want none", findings)
	}
}
