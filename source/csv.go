// Package source reads package records from exported files.
package source

import (
	"context"
	"encoding/base64"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pithecene-io/suipack/types"
)

// CSV column names, as produced by the warehouse export.
const (
	ColPackageID         = "PACKAGE_ID"
	ColPackageVersion    = "PACKAGE_VERSION"
	ColCheckpoint        = "CHECKPOINT"
	ColBCS               = "BCS"
	ColTransactionDigest = "TRANSACTION_DIGEST"
	ColSender            = "SENDER"
)

// SENDER is optional; without it every package has an unknown sender.
var requiredColumns = []string{
	ColPackageID, ColPackageVersion, ColCheckpoint, ColBCS, ColTransactionDigest,
}

// CSVReader yields one package per CSV row. The first row names the
// columns; their order is free.
type CSVReader struct {
	r       *csv.Reader
	columns map[string]int
	name    string
}

// NewCSVReader reads the header row from r. name labels errors, usually
// the file path.
func NewCSVReader(r io.Reader, name string) (*CSVReader, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, types.NewError(types.ErrDecode, "read csv header", name, errors.New("empty file"))
		}
		return nil, types.NewError(types.ErrDecode, "read csv header", name, err)
	}

	columns := make(map[string]int, len(header))
	for i, col := range header {
		columns[strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := columns[col]; !ok {
			return nil, types.NewError(types.ErrDecode, "read csv header", name, fmt.Errorf("missing column %s", col))
		}
	}
	return &CSVReader{r: cr, columns: columns, name: name}, nil
}

// Next returns the next package, or io.EOF after the last row. A bad row
// is an error naming its line; there is no skip-and-continue.
func (c *CSVReader) Next(ctx context.Context) (*types.PackageWithMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	record, err := c.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, types.NewError(types.ErrDecode, "read csv", c.name, err)
	}
	line, _ := c.r.FieldPos(0)

	p, err := c.parse(record)
	if err != nil {
		return nil, types.NewError(types.ErrDecode, fmt.Sprintf("parse csv line %d", line), c.name, err)
	}
	return p, nil
}

func (c *CSVReader) field(record []string, col string) string {
	i, ok := c.columns[col]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func (c *CSVReader) parse(record []string) (*types.PackageWithMetadata, error) {
	id, err := types.ParseAddress(c.field(record, ColPackageID))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ColPackageID, err)
	}
	version, err := strconv.ParseUint(c.field(record, ColPackageVersion), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ColPackageVersion, err)
	}
	checkpoint, err := strconv.ParseUint(c.field(record, ColCheckpoint), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ColCheckpoint, err)
	}
	payload, err := base64.StdEncoding.DecodeString(c.field(record, ColBCS))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ColBCS, err)
	}
	digest := c.field(record, ColTransactionDigest)
	if digest == "" {
		return nil, fmt.Errorf("%s is empty", ColTransactionDigest)
	}

	var sender *string
	if s := c.field(record, ColSender); s != "" {
		sender = &s
	}

	p, err := types.NewPackageWithMetadata(id.String(), payload, checkpoint, digest, sender)
	if err != nil {
		return nil, err
	}
	if p.Package.ID != id {
		return nil, fmt.Errorf("%s %s does not match encoded id %s", ColPackageID, id, p.Package.ID)
	}
	if p.Package.Version != version {
		return nil, fmt.Errorf("%s %d does not match encoded version %d", ColPackageVersion, version, p.Package.Version)
	}
	return p, nil
}
