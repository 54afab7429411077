package data

import "github.com/shopspring/decimal"

// Resource names understood by the transport and the dev API.
const (
	ResourceEmployees              = "employees"
	ResourcePaginatedTransactions  = "paginatedTransactions"
	ResourceTransactionsByEmployee = "transactionsByEmployee"
)

// AllEmployeesID is the reserved identity of the "all employees" pseudo-owner.
const AllEmployeesID = "all-employees"

type Employee struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// AllEmployees is the sentinel entry shown first in employee pickers.
var AllEmployees = Employee{ID: AllEmployeesID, FirstName: "All", LastName: "Employees"}

// DisplayName joins first and last name.
func (e Employee) DisplayName() string {
	switch {
	case e.FirstName == "":
		return e.LastName
	case e.LastName == "":
		return e.FirstName
	}
	return e.FirstName + " " + e.LastName
}

type Transaction struct {
	ID       string          `json:"id"`
	Amount   decimal.Decimal `json:"amount"`
	Employee Employee        `json:"employee"`
	Merchant string          `json:"merchant"`
	Date     string          `json:"date"`
	Approved bool            `json:"approved"`
}

// PaginatedResponse is one page of the paginated transactions feed.
// A nil NextPage means there are no further pages.
type PaginatedResponse struct {
	Data     []Transaction `json:"data"`
	NextPage *int          `json:"nextPage"`
}

// ── Request params ──

// Param keys understood by the transport.
const (
	ParamPage       = "page"
	ParamEmployeeID = "employeeId"
)

type PaginatedRequestParams struct {
	Page int `json:"page"`
}

// Values returns the params as a transport parameter map.
func (p PaginatedRequestParams) Values() map[string]any {
	return map[string]any{ParamPage: p.Page}
}

type EmployeeRequestParams struct {
	EmployeeID string `json:"employeeId"`
}

func (p EmployeeRequestParams) Values() map[string]any {
	return map[string]any{ParamEmployeeID: p.EmployeeID}
}
