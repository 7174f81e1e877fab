package source

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/pithecene-io/suipack/movebin"
	"github.com/pithecene-io/suipack/types"
)

func encodedPackage(id string, version uint64) string {
	addr := types.MustParseAddress(id)
	b := movebin.NewBuilder(addr, "m")
	raw := types.EncodePackage(&types.Package{
		ID:        addr,
		Version:   version,
		ModuleMap: map[string][]byte{"m": b.Bytes()},
	})
	return base64.StdEncoding.EncodeToString(raw)
}

func readAll(t *testing.T, r *CSVReader) []*types.PackageWithMetadata {
	t.Helper()
	var out []*types.PackageWithMetadata
	for {
		p, err := r.Next(t.Context())
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		out = append(out, p)
	}
}

func TestCSVReader(t *testing.T) {
	input := "PACKAGE_ID,PACKAGE_VERSION,CHECKPOINT,BCS,TRANSACTION_DIGEST,SENDER\n" +
		"0x1,1,100," + encodedPackage("0x1", 1) + ",D1,0xabc\n" +
		"0x2,3,250," + encodedPackage("0x2", 3) + ",D2,\n"

	r, err := NewCSVReader(strings.NewReader(input), "export.csv")
	if err != nil {
		t.Fatalf("NewCSVReader failed: %v", err)
	}
	got := readAll(t, r)
	if len(got) != 2 {
		t.Fatalf("got %d rows, want 2", len(got))
	}

	if got[0].Checkpoint != 100 || got[0].TransactionDigest != "D1" || got[0].Sender == nil || *got[0].Sender != "0xabc" {
		t.Errorf("row 1 = %+v", got[0])
	}
	if got[1].Sender != nil {
		t.Errorf("empty SENDER should be nil, got %q", *got[1].Sender)
	}
	if got[1].Package.Version != 3 || got[1].Package.ID != types.MustParseAddress("0x2") {
		t.Errorf("row 2 package = %s v%d", got[1].Package.ID, got[1].Package.Version)
	}
}

func TestCSVReader_ColumnOrderAndBOM(t *testing.T) {
	input := "\ufeffsender,bcs,checkpoint,transaction_digest,package_version,package_id\n" +
		"," + encodedPackage("0x9", 2) + ",5,D,2,0x9\n"

	r, err := NewCSVReader(strings.NewReader(input), "export.csv")
	if err != nil {
		t.Fatalf("NewCSVReader failed: %v", err)
	}
	got := readAll(t, r)
	if len(got) != 1 || got[0].Checkpoint != 5 {
		t.Fatalf("got %+v", got)
	}
}

func TestCSVReader_WithoutSenderColumn(t *testing.T) {
	input := "PACKAGE_ID,PACKAGE_VERSION,CHECKPOINT,BCS,TRANSACTION_DIGEST\n" +
		"0x4,1,42," + encodedPackage("0x4", 1) + ",D4\n"

	r, err := NewCSVReader(strings.NewReader(input), "export.csv")
	if err != nil {
		t.Fatalf("NewCSVReader failed: %v", err)
	}
	got := readAll(t, r)
	if len(got) != 1 {
		t.Fatalf("got %d rows, want 1", len(got))
	}
	if got[0].Sender != nil {
		t.Errorf("Sender = %q, want nil", *got[0].Sender)
	}
	if got[0].Checkpoint != 42 || got[0].TransactionDigest != "D4" {
		t.Errorf("row = %+v", got[0])
	}
}

func TestCSVReader_HeaderErrors(t *testing.T) {
	tests := map[string]string{
		"empty":          "",
		"missing column": "PACKAGE_ID,PACKAGE_VERSION,CHECKPOINT,TRANSACTION_DIGEST,SENDER\n",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewCSVReader(strings.NewReader(input), "bad.csv")
			if !errors.Is(err, types.ErrDecode) {
				t.Fatalf("err = %v, want ErrDecode", err)
			}
		})
	}
}

func TestCSVReader_BadRowFailsWithLine(t *testing.T) {
	header := "PACKAGE_ID,PACKAGE_VERSION,CHECKPOINT,BCS,TRANSACTION_DIGEST,SENDER\n"
	good := "0x1,1,1," + encodedPackage("0x1", 1) + ",D,\n"

	tests := []struct {
		name string
		row  string
		msg  string
	}{
		{name: "checkpoint", row: "0x2,1,abc," + encodedPackage("0x2", 1) + ",D,\n", msg: "CHECKPOINT"},
		{name: "base64", row: "0x2,1,1,@@@,D,\n", msg: "BCS"},
		{name: "truncated bcs", row: "0x2,1,1,AAAA,D,\n", msg: "decode"},
		{name: "id mismatch", row: "0x3,1,1," + encodedPackage("0x2", 1) + ",D,\n", msg: "does not match"},
		{name: "version mismatch", row: "0x2,9,1," + encodedPackage("0x2", 1) + ",D,\n", msg: "does not match"},
		{name: "empty digest", row: "0x2,1,1," + encodedPackage("0x2", 1) + ",,\n", msg: "TRANSACTION_DIGEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewCSVReader(strings.NewReader(header+good+tt.row+good), "x.csv")
			if err != nil {
				t.Fatalf("NewCSVReader failed: %v", err)
			}
			if _, err := r.Next(t.Context()); err != nil {
				t.Fatalf("first row failed: %v", err)
			}

			_, err = r.Next(t.Context())
			if !errors.Is(err, types.ErrDecode) {
				t.Fatalf("err = %v, want ErrDecode", err)
			}
			if !strings.Contains(err.Error(), "line 3") || !strings.Contains(err.Error(), tt.msg) {
				t.Errorf("err = %v, want line 3 and %q", err, tt.msg)
			}
		})
	}
}

func TestCSVReader_Canceled(t *testing.T) {
	r, err := NewCSVReader(strings.NewReader("PACKAGE_ID,PACKAGE_VERSION,CHECKPOINT,BCS,TRANSACTION_DIGEST,SENDER\n"), "x.csv")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if _, err := r.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
