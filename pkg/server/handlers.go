package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lstore/lstore/pkg/database"
	"github.com/lstore/lstore/pkg/mvcc"
)

// handlers holds the database the façade routes requests to.
type handlers struct {
	db *database.Database
}

func newHandlers(db *database.Database) *handlers {
	return &handlers{db: db}
}

func (h *handlers) table(r *http.Request) (*database.Table, error) {
	name := chi.URLParam(r, "table")
	return h.db.Table(name)
}

func parseJSONBody(r *http.Request, target interface{}) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return errBadRequest("failed to read request body")
	}
	defer r.Body.Close()
	if len(body) == 0 {
		return errBadRequest("request body is empty")
	}
	if err := json.Unmarshal(body, target); err != nil {
		return errBadRequest("invalid JSON: " + err.Error())
	}
	return nil
}

type badRequestError string

func errBadRequest(msg string) error  { return badRequestError(msg) }
func (e badRequestError) Error() string { return string(e) }

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"ok":    false,
		"error": err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(body)
}

// --- table registry ---

type createTableRequest struct {
	Name       string `json:"name"`
	NumColumns int    `json:"num_columns"`
	KeyIndex   int    `json:"key_index"`
}

func (h *handlers) CreateTable(w http.ResponseWriter, r *http.Request) {
	var req createTableRequest
	if err := parseJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if _, err := h.db.CreateTable(req.Name, req.NumColumns, req.KeyIndex); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, map[string]interface{}{"ok": true, "table": req.Name})
}

func (h *handlers) ListTables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{"ok": true, "tables": h.db.ListTables()})
}

func (h *handlers) DropTable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "table")
	if err := h.db.DropTable(name); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, map[string]interface{}{"ok": true})
}

func (h *handlers) Stats(w http.ResponseWriter, r *http.Request, requestsServed uint64) {
	stats := h.db.Stats()
	stats["requests_served"] = requestsServed
	writeJSON(w, map[string]interface{}{"ok": true, "stats": stats})
}

// --- query surface: insert/select/update/delete/sum/sum_version/increment ---

type insertRequest struct {
	Values []int64 `json:"values"`
}

func (h *handlers) Insert(w http.ResponseWriter, r *http.Request) {
	tbl, err := h.table(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	var req insertRequest
	if err := parseJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var cause error
	ok := h.db.Autocommit(func(txn *mvcc.Transaction) error {
		cause = tbl.Insert(txn, req.Values)
		return cause
	})
	writeJSON(w, map[string]interface{}{"ok": ok, "error": errString(cause)})
}

type selectRequest struct {
	Key    int64  `json:"key"`
	KeyCol int    `json:"key_col"`
	Mask   []bool `json:"mask,omitempty"`
}

func (h *handlers) Select(w http.ResponseWriter, r *http.Request) {
	h.doSelect(w, r, 0)
}

type selectVersionRequest struct {
	selectRequest
	RelativeVersion int `json:"relative_version"`
}

func (h *handlers) SelectVersion(w http.ResponseWriter, r *http.Request) {
	var req selectVersionRequest
	if err := parseJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	tbl, err := h.table(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	rows, err := tbl.SelectVersion(nil, req.Key, req.KeyCol, req.Mask, req.RelativeVersion)
	if err != nil {
		rows = nil
	}
	writeJSON(w, map[string]interface{}{"ok": true, "rows": rows})
}

func (h *handlers) doSelect(w http.ResponseWriter, r *http.Request, _ int) {
	var req selectRequest
	if err := parseJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	tbl, err := h.table(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	rows, err := tbl.Select(nil, req.Key, req.KeyCol, req.Mask)
	if err != nil || rows == nil {
		rows = []database.Record{}
	}
	writeJSON(w, map[string]interface{}{"ok": true, "rows": rows})
}

type updateRequest struct {
	Key     int64    `json:"key"`
	Updates []*int64 `json:"updates"`
}

func (h *handlers) Update(w http.ResponseWriter, r *http.Request) {
	tbl, err := h.table(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	var req updateRequest
	if err := parseJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var cause error
	ok := h.db.Autocommit(func(txn *mvcc.Transaction) error {
		cause = tbl.Update(txn, req.Key, req.Updates)
		return cause
	})
	writeJSON(w, map[string]interface{}{"ok": ok, "error": errString(cause)})
}

type deleteRequest struct {
	Key int64 `json:"key"`
}

func (h *handlers) Delete(w http.ResponseWriter, r *http.Request) {
	tbl, err := h.table(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	var req deleteRequest
	if err := parseJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var cause error
	ok := h.db.Autocommit(func(txn *mvcc.Transaction) error {
		cause = tbl.Delete(txn, req.Key)
		return cause
	})
	writeJSON(w, map[string]interface{}{"ok": ok, "error": errString(cause)})
}

type sumRequest struct {
	Lo  int64 `json:"lo"`
	Hi  int64 `json:"hi"`
	Col int   `json:"col"`
}

func (h *handlers) Sum(w http.ResponseWriter, r *http.Request) {
	tbl, err := h.table(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	var req sumRequest
	if err := parseJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	total, err := tbl.Sum(nil, req.Lo, req.Hi, req.Col)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, map[string]interface{}{"ok": true, "sum": total})
}

type sumVersionRequest struct {
	sumRequest
	RelativeVersion int `json:"relative_version"`
}

func (h *handlers) SumVersion(w http.ResponseWriter, r *http.Request) {
	tbl, err := h.table(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	var req sumVersionRequest
	if err := parseJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	total, err := tbl.SumVersion(nil, req.Lo, req.Hi, req.Col, req.RelativeVersion)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, map[string]interface{}{"ok": true, "sum": total})
}

type incrementRequest struct {
	Key int64 `json:"key"`
	Col int   `json:"col"`
}

func (h *handlers) Increment(w http.ResponseWriter, r *http.Request) {
	tbl, err := h.table(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	var req incrementRequest
	if err := parseJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var cause error
	ok := h.db.Autocommit(func(txn *mvcc.Transaction) error {
		cause = tbl.Increment(txn, req.Key, req.Col)
		return cause
	})
	writeJSON(w, map[string]interface{}{"ok": ok, "error": errString(cause)})
}

type createIndexRequest struct {
	Column int `json:"column"`
}

func (h *handlers) CreateIndex(w http.ResponseWriter, r *http.Request) {
	tbl, err := h.table(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	var req createIndexRequest
	if err := parseJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := tbl.CreateIndex(req.Column); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, map[string]interface{}{"ok": true})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
