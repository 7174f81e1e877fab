package introspect

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/pithecene-io/suipack/movebin"
	"github.com/pithecene-io/suipack/types"
)

var (
	framework = types.MustParseAddress("0x2")
	pkgAddr   = types.MustParseAddress("0xbeef")
)

func decode(t *testing.T, b *movebin.Builder) *movebin.Module {
	t.Helper()
	m, err := movebin.Decode(b.Bytes())
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	return m
}

// marshalLiteral encodes v the way archive artifacts are written: no HTML
// escaping and no trailing newline.
func marshalLiteral(t *testing.T, v any) string {
	t.Helper()
	var sb strings.Builder
	enc := json.NewEncoder(&sb)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func TestFormatSignatureToken(t *testing.T) {
	b := movebin.NewBuilder(pkgAddr, "m")
	mod := b.Module(framework, "mod")
	mod2 := b.Module(framework, "mod2")
	name := b.Datatype(mod, "Name", 1)
	arg := b.Datatype(mod2, "Arg", 0)
	pair := b.Datatype(mod, "Pair", 2)

	tokens := []movebin.SignatureToken{
		movebin.Vector(movebin.MutRef(movebin.Datatype(name, movebin.Datatype(arg)))),
		movebin.Ref(movebin.Vector(movebin.Prim(movebin.TokenU8))),
		movebin.Datatype(pair, movebin.TypeParam(0), movebin.Prim(movebin.TokenU256)),
		movebin.Prim(movebin.TokenSigner),
		movebin.Datatype(arg),
		movebin.TypeParam(3),
	}
	b.Function(movebin.FunctionSpec{Name: "f", Params: tokens, TypeParams: 4, Code: []movebin.Instruction{{Op: movebin.OpRet}}})
	m := decode(t, b)

	prefix := framework.String()
	want := []string{
		"vector<&mut " + prefix + "::mod::Name<" + prefix + "::mod2::Arg>>",
		"&vector<u8>",
		prefix + "::mod::Pair<T0, u256>",
		"signer",
		prefix + "::mod2::Arg",
		"T3",
	}

	params := m.SignatureAt(m.FunctionHandleAt(m.FunctionDefs()[0].Handle).Parameters)
	got := FormatSignature(m, params)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("FormatSignature =\n%q\nwant\n%q", got, want)
	}
	if !strings.HasPrefix(prefix, "0x000000") || len(prefix) != 66 {
		t.Errorf("address not canonical: %s", prefix)
	}
}

func TestFormatSignatureToken_Primitives(t *testing.T) {
	m := decode(t, movebin.NewBuilder(pkgAddr, "m"))
	tests := map[movebin.TokenKind]string{
		movebin.TokenBool:    "bool",
		movebin.TokenU8:      "u8",
		movebin.TokenU16:     "u16",
		movebin.TokenU32:     "u32",
		movebin.TokenU64:     "u64",
		movebin.TokenU128:    "u128",
		movebin.TokenU256:    "u256",
		movebin.TokenAddress: "address",
		movebin.TokenSigner:  "signer",
	}
	for kind, want := range tests {
		if got := FormatSignatureToken(m, movebin.Prim(kind)); got != want {
			t.Errorf("kind 0x%x = %q, want %q", kind, got, want)
		}
	}
}

func TestFunctionMap_TransferExample(t *testing.T) {
	b := movebin.NewBuilder(framework, "pay")
	coin := b.Datatype(b.Module(framework, "coin"), "Coin", 1)
	sui := b.Datatype(b.Module(framework, "sui"), "SUI", 0)
	b.Function(movebin.FunctionSpec{
		Name:       "transfer",
		Visibility: movebin.Public,
		Entry:      true,
		Params:     []movebin.SignatureToken{movebin.Datatype(coin, movebin.Datatype(sui)), movebin.Prim(movebin.TokenAddress)},
		Code:       []movebin.Instruction{{Op: movebin.OpRet}},
	})
	b.Function(movebin.FunctionSpec{
		Name:       "helper",
		Visibility: movebin.Friend,
		Returns:    []movebin.SignatureToken{movebin.Prim(movebin.TokenU64)},
		Code:       []movebin.Instruction{{Op: movebin.OpLdU64, Index: 1}, {Op: movebin.OpRet}},
	})

	fm := FunctionMap(decode(t, b))
	got := marshalLiteral(t, fm["transfer"])
	two := framework.String()
	want := `{"visibility":"PUBLIC","isEntry":true,"params":["` + two + `::coin::Coin<` + two + `::sui::SUI>","address"],"return":[]}`
	if got != want {
		t.Errorf("transfer =\n%s\nwant\n%s", got, want)
	}

	helper := fm["helper"]
	if helper.Visibility != movebin.Friend || helper.IsEntry {
		t.Errorf("helper = %+v", helper)
	}
	if !reflect.DeepEqual(helper.Return, []string{"u64"}) || len(helper.Params) != 0 || helper.Params == nil {
		t.Errorf("helper params/return = %#v / %#v", helper.Params, helper.Return)
	}
}

// counterPackage wraps the hand-encoded counter module from movebin/testdata.
func counterPackage(t *testing.T) *types.Package {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("..", "movebin", "testdata", "counter.mv"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	return &types.Package{
		ID:        types.MustParseAddress("0xcafe"),
		Version:   1,
		ModuleMap: map[string][]byte{"counter": raw},
	}
}

func TestAnalysis_CounterModule(t *testing.T) {
	a, err := Analyze(counterPackage(t))
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	self := types.MustParseAddress("0xcafe").String()
	sui := framework.String()

	wantFunctions := map[string]FunctionSignature{
		"create": {
			Visibility: movebin.Public,
			IsEntry:    true,
			Params:     []string{"&mut " + sui + "::tx_context::TxContext"},
			Return:     []string{},
		},
		"value": {
			Visibility: movebin.Public,
			Params:     []string{"&" + self + "::counter::Counter"},
			Return:     []string{"u64"},
		},
		"increment": {
			Visibility: movebin.Public,
			IsEntry:    true,
			Params:     []string{"&mut " + self + "::counter::Counter"},
			Return:     []string{},
		},
	}
	if got := a.Report().FunctionMap["counter"]; !reflect.DeepEqual(got, wantFunctions) {
		t.Errorf("functionMap = %+v\nwant %+v", got, wantFunctions)
	}

	g := a.CallGraph()
	if len(g.ModuleCallGraphs) != 1 || g.ModuleCallGraphs[0].ModuleName != "counter" {
		t.Fatalf("module call graphs = %+v", g.ModuleCallGraphs)
	}
	wantGraph := map[string][]string{
		"create":    {sui + "::object::new", sui + "::transfer::share_object"},
		"value":     {},
		"increment": {self + "::counter::value"},
	}
	if got := g.ModuleCallGraphs[0].CallGraph; !reflect.DeepEqual(got, wantGraph) {
		t.Errorf("callGraph = %v\nwant %v", got, wantGraph)
	}
}

func TestCallGraph_DeduplicatesEdges(t *testing.T) {
	b := movebin.NewBuilder(pkgAddr, "m")
	bh := b.FunctionHandle(b.Self(), "B", nil, nil, 0)
	ch := b.FunctionHandle(b.Self(), "C", nil, nil, 0)
	b.Function(movebin.FunctionSpec{Name: "A", Code: []movebin.Instruction{
		movebin.Call(bh), movebin.Call(ch), movebin.Call(bh), {Op: movebin.OpRet},
	}})
	b.Function(movebin.FunctionSpec{Name: "B", Code: []movebin.Instruction{{Op: movebin.OpRet}}})
	b.Function(movebin.FunctionSpec{Name: "C", Code: []movebin.Instruction{{Op: movebin.OpRet}}})
	b.Function(movebin.FunctionSpec{Name: "N", Native: true})

	g := CallGraph(decode(t, b))

	self := pkgAddr.String() + "::m::"
	if want := []string{self + "B", self + "C"}; !reflect.DeepEqual(g["A"], want) {
		t.Errorf("A -> %v, want %v", g["A"], want)
	}

	keys := make([]string, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	if len(keys) != 4 {
		t.Errorf("keys = %v, want exactly A B C N", keys)
	}
	for _, leaf := range []string{"B", "C", "N"} {
		edges, ok := g[leaf]
		if !ok || edges == nil || len(edges) != 0 {
			t.Errorf("%s -> %#v, want empty non-nil", leaf, edges)
		}
	}
}

func TestCallGraph_GenericInstantiationsCollapse(t *testing.T) {
	b := movebin.NewBuilder(pkgAddr, "m")
	coinMod := b.Module(framework, "coin")
	value := b.FunctionHandle(coinMod, "value", nil, []movebin.SignatureToken{movebin.Prim(movebin.TokenU64)}, 1)
	sui := b.Datatype(b.Module(framework, "sui"), "SUI", 0)
	asU64 := b.Instantiate(value, movebin.Prim(movebin.TokenU64))
	asSui := b.Instantiate(value, movebin.Datatype(sui))

	b.Function(movebin.FunctionSpec{Name: "f", Code: []movebin.Instruction{
		movebin.CallGeneric(asU64), movebin.CallGeneric(asSui), movebin.Call(value), {Op: movebin.OpRet},
	}})

	g := CallGraph(decode(t, b))
	want := []string{framework.String() + "::coin::value"}
	if !reflect.DeepEqual(g["f"], want) {
		t.Errorf("f -> %v, want %v", g["f"], want)
	}
}

func TestCallGraph_UsesEmbeddedAddress(t *testing.T) {
	dep := types.MustParseAddress("0xd1")
	upgraded := types.MustParseAddress("0xd2")

	b := movebin.NewBuilder(pkgAddr, "m")
	call := b.FunctionHandle(b.Module(dep, "lib"), "go", nil, nil, 0)
	b.Function(movebin.FunctionSpec{Name: "f", Code: []movebin.Instruction{movebin.Call(call), {Op: movebin.OpRet}}})

	pkg := &types.Package{
		ID:        pkgAddr,
		Version:   1,
		ModuleMap: map[string][]byte{"m": b.Bytes()},
		LinkageTable: map[types.Address]types.UpgradeInfo{
			dep: {UpgradedID: upgraded, UpgradedVersion: 2},
		},
	}
	g, err := BuildPackageCallGraph(pkg)
	if err != nil {
		t.Fatalf("BuildPackageCallGraph: %v", err)
	}
	got := g.ModuleCallGraphs[0].CallGraph["f"]
	if want := []string{dep.String() + "::lib::go"}; !reflect.DeepEqual(got, want) {
		t.Errorf("f -> %v, want %v", got, want)
	}
}

func simpleModule(addr types.Address, name string) []byte {
	b := movebin.NewBuilder(addr, name)
	b.Function(movebin.FunctionSpec{Name: "run", Visibility: movebin.Public, Code: []movebin.Instruction{{Op: movebin.OpRet}}})
	return b.Bytes()
}

func TestAnalysis_ReportJSON(t *testing.T) {
	pkg := &types.Package{
		ID:      pkgAddr,
		Version: 1,
		ModuleMap: map[string][]byte{
			"zeta":  simpleModule(pkgAddr, "zeta"),
			"alpha": simpleModule(pkgAddr, "alpha"),
		},
	}
	a, err := Analyze(pkg)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	raw, err := json.Marshal(a.Report())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if string(doc["dataType"]) != `"package"` {
		t.Errorf("dataType = %s", doc["dataType"])
	}
	if string(doc["id"]) != `"`+pkgAddr.String()+`"` {
		t.Errorf("id = %s", doc["id"])
	}
	if string(doc["typeOriginTable"]) != "[]" {
		t.Errorf("typeOriginTable = %s, want []", doc["typeOriginTable"])
	}
	if string(doc["linkageTable"]) != "{}" {
		t.Errorf("linkageTable = %s, want {}", doc["linkageTable"])
	}

	var back PackageReport
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("Unmarshal report: %v", err)
	}
	if len(back.FunctionMap["alpha"]) != 1 || back.FunctionMap["alpha"]["run"].Visibility != movebin.Public {
		t.Errorf("functionMap = %+v", back.FunctionMap)
	}
	if string(back.ModuleMap["zeta"]) != string(pkg.ModuleMap["zeta"]) {
		t.Error("moduleMap bytes did not survive base64")
	}

	g := a.CallGraph()
	if g.ModuleCallGraphs[0].ModuleName != "alpha" || g.ModuleCallGraphs[1].ModuleName != "zeta" {
		t.Errorf("module order = %s, %s", g.ModuleCallGraphs[0].ModuleName, g.ModuleCallGraphs[1].ModuleName)
	}
}

func TestAnalysis_OriginalID(t *testing.T) {
	original := types.MustParseAddress("0x0001")
	upgraded := types.MustParseAddress("0x0002")

	tests := []struct {
		name string
		pkg  *types.Package
		want types.Address
	}{
		{
			name: "first version is its own original",
			pkg:  &types.Package{ID: original, Version: 1, ModuleMap: map[string][]byte{"a": simpleModule(original, "a")}},
			want: original,
		},
		{
			name: "upgrade uses first module self address",
			pkg: &types.Package{ID: upgraded, Version: 3, ModuleMap: map[string][]byte{
				"b": simpleModule(types.MustParseAddress("0x99"), "b"),
				"a": simpleModule(original, "a"),
			}},
			want: original,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Analyze(tt.pkg)
			if err != nil {
				t.Fatalf("Analyze: %v", err)
			}
			got, err := a.OriginalID()
			if err != nil {
				t.Fatalf("OriginalID: %v", err)
			}
			if got != tt.want {
				t.Errorf("OriginalID = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAnalyze_BadModuleFailsPackage(t *testing.T) {
	pkg := &types.Package{
		ID:      pkgAddr,
		Version: 1,
		ModuleMap: map[string][]byte{
			"good": simpleModule(pkgAddr, "good"),
			"bad":  {0xde, 0xad},
		},
	}
	_, err := BuildPackageReport(pkg)
	if !errors.Is(err, types.ErrDecode) {
		t.Fatalf("err = %v, want ErrDecode", err)
	}
	if !errors.Is(err, movebin.ErrMalformed) {
		t.Errorf("cause not preserved: %v", err)
	}
	if !strings.Contains(err.Error(), "::bad") {
		t.Errorf("error should name the module: %v", err)
	}
}

func TestInterestingCaps(t *testing.T) {
	b := movebin.NewBuilder(pkgAddr, "admin")
	u64 := movebin.Prim(movebin.TokenU64)
	b.Struct("AdminCap", 0, movebin.Field{Name: "id", Type: u64}, movebin.Field{Name: "limit", Type: u64})
	b.Struct("OwnerCap", 0, movebin.Field{Name: "id", Type: u64})
	b.Struct("Pool", 0, movebin.Field{Name: "a", Type: u64}, movebin.Field{Name: "b", Type: u64})

	caps := InterestingCaps(decode(t, b))
	if len(caps) != 1 {
		t.Fatalf("caps = %v, want only AdminCap", caps)
	}
	want := pkgAddr.String() + "::admin::AdminCap (n_fields: 2)"
	if caps[0].String() != want {
		t.Errorf("cap = %q, want %q", caps[0].String(), want)
	}
}
