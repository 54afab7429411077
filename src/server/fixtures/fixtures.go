// Package fixtures decodes the dev API's fixture documents and seeds stores
// from them.
package fixtures

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/txn-review/approvals/src/data"
	"github.com/txn-review/approvals/src/server/storage"
	"github.com/txn-review/approvals/src/server/store"
	"gopkg.in/yaml.v3"
)

var ErrUnsupportedFormat = errors.New("fixtures: unsupported format")

// Document is the fixture file layout.
type Document struct {
	Employees    []data.Employee    `json:"employees"`
	Transactions []data.Transaction `json:"transactions"`
}

// Decode parses a fixture document. The format follows the key's extension:
// .json, .yaml or .yml.
func Decode(key string, r io.Reader) (Document, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Document{}, fmt.Errorf("reading fixtures: %w", err)
	}

	switch strings.ToLower(path.Ext(key)) {
	case ".json":
	case ".yaml", ".yml":
		raw, err = yamlToJSON(raw)
		if err != nil {
			return Document{}, fmt.Errorf("parsing yaml fixtures %s: %w", key, err)
		}
	default:
		return Document{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, key)
	}

	var doc Document
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("parsing fixtures %s: %w", key, err)
	}
	doc.fillEmployees()
	return doc, nil
}

// yamlToJSON routes YAML through the JSON decoder so amounts land in
// decimal.Decimal the same way for both formats.
func yamlToJSON(raw []byte) ([]byte, error) {
	var v any
	if err := yaml.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// fillEmployees completes transaction owners that only carry an ID, and adds
// owners missing from the employee list.
func (d *Document) fillEmployees() {
	byID := make(map[string]data.Employee, len(d.Employees))
	for _, e := range d.Employees {
		byID[e.ID] = e
	}
	for i := range d.Transactions {
		owner := d.Transactions[i].Employee
		known, ok := byID[owner.ID]
		switch {
		case ok && owner.FirstName == "" && owner.LastName == "":
			d.Transactions[i].Employee = known
		case !ok && owner.ID != "":
			byID[owner.ID] = owner
			d.Employees = append(d.Employees, owner)
		}
	}
}

// Load reads and decodes key from the object storage.
func Load(ctx context.Context, src storage.ObjectStorage, key string) (Document, error) {
	rc, err := src.Open(ctx, key)
	if err != nil {
		return Document{}, fmt.Errorf("opening fixtures %s: %w", key, err)
	}
	defer rc.Close()
	return Decode(key, rc)
}

// Seed inserts the document into st. Records already present are left as is.
func Seed(st store.Store, doc Document) error {
	employees := st.AddEmployees(doc.Employees)
	transactions := st.AddTransactions(doc.Transactions)
	total, err := st.CountTransactions()
	if err != nil {
		return fmt.Errorf("seeding fixtures: %w", err)
	}
	slog.Info("Seeded fixtures",
		"employees_added", len(employees),
		"transactions_added", len(transactions),
		"transactions_total", total,
	)
	return nil
}
