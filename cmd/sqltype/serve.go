// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"

	"github.com/canonical/sqltype"
)

// maxQueryBytes bounds the size of a check request.
const maxQueryBytes = 1 << 20

func runServe(args []string, e *env) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	var sf schemaFlags
	sf.register(fs)
	addr := fs.String("addr", "", "listen `address` (default :$PORT or :8080)")
	if err := parseFlags(fs, e, args); err != nil {
		return err
	}
	if *addr == "" {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		*addr = ":" + port
	}
	schema, path, err := sf.load(e.stderr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           newServer(schema).handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		log.Printf("checking against %s, listening on %s", path, *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Print("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// server checks queries sent over HTTP against a schema.
type server struct {
	schema *sqltype.Schema
}

func newServer(schema *sqltype.Schema) *server {
	return &server{schema: schema}
}

func (s *server) handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok\n"))
	})
	r.Route("/api", func(r chi.Router) {
		r.Get("/schema", s.handleSchema)
		r.Get("/schema/{table}", s.handleTable)
		r.Post("/check", s.handleCheck)
	})
	return r
}

type checkRequest struct {
	Query string `json:"query"`
}

type paramJSON struct {
	Placeholder string `json:"placeholder"`
	Type        string `json:"type"`
	Nullable    bool   `json:"nullable"`
	List        bool   `json:"list,omitempty"`
}

type columnJSON struct {
	Name     string `json:"name"`
	Table    string `json:"table,omitempty"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

type checkResponse struct {
	SQL     string       `json:"sql"`
	Params  []paramJSON  `json:"params"`
	Columns []columnJSON `json:"columns"`
}

type errorJSON struct {
	Kind     string `json:"kind,omitempty"`
	Category string `json:"category,omitempty"`
	Message  string `json:"message"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
	Report   string `json:"report,omitempty"`
}

type errorResponse struct {
	Error errorJSON `json:"error"`
}

type tableJSON struct {
	Name       string            `json:"name"`
	Columns    []tableColumnJSON `json:"columns"`
	PrimaryKey []string          `json:"primary_key,omitempty"`
}

type tableColumnJSON struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	Nullable      bool   `json:"nullable"`
	AutoIncrement bool   `json:"auto_increment,omitempty"`
	HasDefault    bool   `json:"has_default,omitempty"`
}

func (s *server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQueryBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errorJSON{Message: "invalid request: " + err.Error()})
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, errorJSON{Message: "missing query"})
		return
	}

	stmt, err := s.schema.Prepare(req.Query)
	if err != nil {
		ej := errorJSON{Message: err.Error(), Report: sqltype.Render("query", req.Query, err)}
		var de *sqltype.Error
		if errors.As(err, &de) {
			ej.Kind = de.Kind.String()
			ej.Category = de.Kind.Category()
			ej.Message = de.Msg
			ej.Line, ej.Column = de.Line, de.Column
		}
		writeError(w, http.StatusUnprocessableEntity, ej)
		return
	}

	resp := checkResponse{
		SQL:     stmt.SQL(),
		Params:  []paramJSON{},
		Columns: []columnJSON{},
	}
	for _, p := range stmt.Params() {
		resp.Params = append(resp.Params, paramJSON{
			Placeholder: placeholder(p),
			Type:        p.Type.String(),
			Nullable:    p.Nullable,
			List:        p.List,
		})
	}
	for _, c := range stmt.Columns() {
		resp.Columns = append(resp.Columns, columnJSON{
			Name:     c.Name,
			Table:    c.Table,
			Type:     c.Type.String(),
			Nullable: c.Nullable,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleSchema(w http.ResponseWriter, r *http.Request) {
	tables := []tableJSON{}
	for _, t := range s.schema.Tables() {
		tables = append(tables, newTableJSON(t))
	}
	writeJSON(w, http.StatusOK, tables)
}

func (s *server) handleTable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "table")
	t := s.schema.Table(name)
	if t == nil {
		writeError(w, http.StatusNotFound, errorJSON{Message: "unknown table " + name})
		return
	}
	writeJSON(w, http.StatusOK, newTableJSON(t))
}

func newTableJSON(t *sqltype.Table) tableJSON {
	tj := tableJSON{Name: t.Name, PrimaryKey: t.PrimaryKey}
	for _, c := range t.Columns {
		tj.Columns = append(tj.Columns, tableColumnJSON{
			Name:          c.Name,
			Type:          c.Type.String(),
			Nullable:      c.Nullable,
			AutoIncrement: c.AutoIncrement,
			HasDefault:    c.HasDefault,
		})
	}
	return tj
}

func writeError(w http.ResponseWriter, status int, ej errorJSON) {
	writeJSON(w, status, errorResponse{Error: ej})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Printf("cannot write response: %v", err)
	}
}
