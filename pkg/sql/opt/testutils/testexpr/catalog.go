// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package testexpr

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cockroachdb/cascades/pkg/sql/opt/props/physical"
	"github.com/cockroachdb/errors"
)

// Table is a table of the toy catalog.
type Table struct {
	Name string

	// RowCount is the number of rows in the table.
	RowCount float64

	// Ordering is the order in which the rows are stored, if any.
	Ordering physical.Ordering

	// InvalidCost makes the coster refuse to cost scans of the table.
	InvalidCost bool
}

func (t *Table) String() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "%s: rows=%g", t.Name, t.RowCount)
	if !t.Ordering.Empty() {
		fmt.Fprintf(&buf, " ordering=%s", t.Ordering)
	}
	if t.InvalidCost {
		buf.WriteString(" invalid-cost")
	}
	return buf.String()
}

// Catalog is a set of tables, by name.
type Catalog struct {
	tables map[string]*Table
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{tables: make(map[string]*Table)}
}

// AddTable adds a table to the catalog. Table names must be unique.
func (c *Catalog) AddTable(t *Table) error {
	if t.Name == "" {
		return errors.New("table name cannot be empty")
	}
	if t.RowCount < 0 {
		return errors.Newf("table %s: row count cannot be negative", t.Name)
	}
	if _, ok := c.tables[t.Name]; ok {
		return errors.Newf("table %s already exists", t.Name)
	}
	c.tables[t.Name] = t
	return nil
}

// Table returns the table with the given name.
func (c *Catalog) Table(name string) (*Table, bool) {
	t, ok := c.tables[name]
	return t, ok
}

// Tables returns every table in the catalog, sorted by name.
func (c *Catalog) Tables() []*Table {
	res := make([]*Table, 0, len(c.tables))
	for _, t := range c.tables {
		res = append(res, t)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res
}
