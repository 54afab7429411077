package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/txn-review/approvals/src/server/store"
)

type EmployeeHandler struct {
	Store store.Store
}

func (h *EmployeeHandler) List(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Store.ListEmployees())
}

// Transactions lists the transactions owned by one employee. An unknown
// employee yields an empty list.
func (h *EmployeeHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		http.Error(w, `{"error":"employee id is required"}`, http.StatusBadRequest)
		return
	}
	json.NewEncoder(w).Encode(h.Store.TransactionsByEmployee(id))
}
