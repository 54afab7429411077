// Package view derives the visible transactions from the record store.
package view

import (
	"github.com/txn-review/approvals/src/data"
)

type selectionKind int

const (
	selectionUnresolved selectionKind = iota
	selectionAll
	selectionEmployee
)

// Selection is the current filter mode: every employee, or exactly one. The
// zero value is unresolved and projects to nothing.
type Selection struct {
	kind       selectionKind
	employeeID string
}

// All selects every employee.
func All() Selection { return Selection{kind: selectionAll} }

// Employee selects one employee. An empty ID yields an unresolved selection.
func Employee(id string) Selection {
	if id == "" {
		return Selection{}
	}
	return Selection{kind: selectionEmployee, employeeID: id}
}

// FromEmployeeID normalises a picker value: no choice yet and the
// all-employees sentinel both mean All.
func FromEmployeeID(id string) Selection {
	if id == "" || id == data.AllEmployeesID {
		return All()
	}
	return Employee(id)
}

// IsAll reports whether every employee is selected.
func (s Selection) IsAll() bool { return s.kind == selectionAll }

// EmployeeID returns the selected employee, if one is selected.
func (s Selection) EmployeeID() (string, bool) {
	return s.employeeID, s.kind == selectionEmployee
}

// Resolved reports whether the selection is All or a specific employee.
func (s Selection) Resolved() bool { return s.kind != selectionUnresolved }

func (s Selection) String() string {
	switch s.kind {
	case selectionAll:
		return data.AllEmployeesID
	case selectionEmployee:
		return "employee:" + s.employeeID
	}
	return "unresolved"
}

// Source is anything that lists transactions in display order.
type Source interface {
	All() []data.Transaction
}

// Project returns the transactions visible under sel, in the source's order.
// It keeps no state and is meant to be recomputed after every change.
func Project(src Source, sel Selection) []data.Transaction {
	switch sel.kind {
	case selectionAll:
		return src.All()
	case selectionEmployee:
		all := src.All()
		out := make([]data.Transaction, 0, len(all))
		for _, tx := range all {
			if tx.Employee.ID == sel.employeeID {
				out = append(out, tx)
			}
		}
		return out
	}
	return []data.Transaction{}
}
