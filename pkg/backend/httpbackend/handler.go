package httpbackend

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	layout "github.com/goliatone/go-layout"
	"github.com/goliatone/go-layout/pkg/backend"
	"github.com/goliatone/go-layout/pkg/exchange"
)

// API exposes any backend.Backend over the REST routes Client speaks.
type API struct {
	backend backend.Backend
	maxBody int64
}

// NewAPI wraps b.
func NewAPI(b backend.Backend) *API {
	return &API{backend: b, maxBody: exchange.DefaultMaxImportSize}
}

// RegisterRoutes mounts the layout routes on router.
func (a *API) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/users/{user}/layout", a.GetLayout).Methods(http.MethodGet)
	router.HandleFunc("/users/{user}/layout", a.SaveLayout).Methods(http.MethodPut)
	router.HandleFunc("/users/{user}/snapshots", a.GetSnapshots).Methods(http.MethodGet)
	router.HandleFunc("/users/{user}/snapshots", a.SaveSnapshot).Methods(http.MethodPost)
	router.HandleFunc("/users/{user}/templates/{template}/apply", a.ApplyTemplate).Methods(http.MethodPost)
	router.HandleFunc("/users/{user}/layouts/{layout}/export", a.ExportLayout).Methods(http.MethodGet)
	router.HandleFunc("/users/{user}/import", a.ImportLayout).Methods(http.MethodPost)
}

// Handler returns a router with the layout routes mounted.
func (a *API) Handler() http.Handler {
	router := mux.NewRouter()
	a.RegisterRoutes(router)
	return router
}

func (a *API) GetLayout(w http.ResponseWriter, r *http.Request) {
	doc, err := a.backend.GetLayout(r.Context(), mux.Vars(r)["user"])
	if err != nil {
		writeError(w, err)
		return
	}
	if doc == nil {
		http.Error(w, "layout not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (a *API) SaveLayout(w http.ResponseWriter, r *http.Request) {
	var doc layout.Document
	if err := json.NewDecoder(io.LimitReader(r.Body, a.maxBody)).Decode(&doc); err != nil {
		http.Error(w, fmt.Sprintf("invalid layout: %v", err), http.StatusBadRequest)
		return
	}
	saved, err := a.backend.SaveLayout(r.Context(), mux.Vars(r)["user"], doc)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (a *API) GetSnapshots(w http.ResponseWriter, r *http.Request) {
	snaps, err := a.backend.GetSnapshots(r.Context(), mux.Vars(r)["user"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (a *API) SaveSnapshot(w http.ResponseWriter, r *http.Request) {
	var input backend.SnapshotInput
	if err := json.NewDecoder(io.LimitReader(r.Body, a.maxBody)).Decode(&input); err != nil {
		http.Error(w, fmt.Sprintf("invalid snapshot: %v", err), http.StatusBadRequest)
		return
	}
	snap, err := a.backend.SaveSnapshot(r.Context(), mux.Vars(r)["user"], input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (a *API) ApplyTemplate(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	doc, err := a.backend.ApplyTemplate(r.Context(), vars["user"], vars["template"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (a *API) ExportLayout(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	query := r.URL.Query()
	opts := exchange.ExportOptions{
		IncludeMetadata: queryBool(query.Get("metadata")),
		IncludeHistory:  queryBool(query.Get("history")),
		Compress:        queryBool(query.Get("compress")),
	}
	if raw := query.Get("format"); raw != "" {
		format, err := exchange.ParseFormat(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		opts.Format = format
	}

	blob, err := a.backend.ExportLayout(r.Context(), vars["user"], vars["layout"], opts)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", blob.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", blob.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(blob.Data)
}

func (a *API) ImportLayout(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, a.maxBody))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	query := r.URL.Query()
	file := exchange.File{
		Name:        query.Get("filename"),
		ContentType: r.Header.Get("Content-Type"),
		Data:        data,
	}
	result, err := a.backend.ImportLayout(r.Context(), mux.Vars(r)["user"], file, backend.ImportOptions{
		Replace:  queryBool(query.Get("replace")),
		Validate: queryBool(query.Get("validate")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, result)
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, backend.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, backend.ErrVersionConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func queryBool(value string) bool {
	parsed, err := strconv.ParseBool(value)
	return err == nil && parsed
}
