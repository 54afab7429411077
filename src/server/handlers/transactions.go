package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/txn-review/approvals/src/server/store"
)

type TransactionHandler struct {
	Store    store.Store
	PageSize int
}

// List serves one page of the transactions feed. The page query parameter
// defaults to 0.
func (h *TransactionHandler) List(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	page := 0
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "page must be an integer")
			return
		}
		page = n
	}

	resp, err := store.Paginate(h.Store, page, h.PageSize)
	if errors.Is(err, store.ErrInvalidPage) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Paginate failed", "error", err, "page", page)
		writeError(w, http.StatusInternalServerError, "transactions unavailable")
		return
	}
	json.NewEncoder(w).Encode(resp)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
