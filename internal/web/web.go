// Package web exposes the engine's operations over a small JSON API. The
// touchscreen UI (and any remote-management tooling) is a client of this
// server; no rendering happens here.
package web

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"touchcal/internal/atomicfile"
	"touchcal/internal/config"
	"touchcal/internal/events"
	"touchcal/internal/ics"
	appLog "touchcal/internal/log"
	"touchcal/internal/model"
	"touchcal/internal/planner"
	"touchcal/internal/taskstore"
	"touchcal/internal/template"
)

// Server provides the HTTP API over the task engine and event store.
type Server struct {
	cfg    *config.Config
	engine *planner.Engine
	mux    *http.ServeMux

	// The event store is not concurrency-safe on its own; handler-level
	// serialization happens here.
	eventsMu sync.Mutex
	events   *events.Store
	importer *ics.Importer
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, engine *planner.Engine, eventStore *events.Store, importer *ics.Importer) *Server {
	s := &Server{
		cfg:      cfg,
		engine:   engine,
		mux:      http.NewServeMux(),
		events:   eventStore,
		importer: importer,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Treat empty username or password as disabled.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="touchcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/tasks", s.handleTasks)
	s.mux.HandleFunc("/api/tasks/toggle", s.handleToggle)
	s.mux.HandleFunc("/api/tasks/adhoc", s.handleAdhoc)
	s.mux.HandleFunc("/api/reload", s.handleReload)
	s.mux.HandleFunc("/api/events", s.handleEvents)
	s.mux.HandleFunc("/api/import/ics", s.handleImportICS)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// tasksResponse is the JSON shape for GET /api/tasks.
type tasksResponse struct {
	Date    string         `json:"date"`
	Classes model.DayTasks `json:"classes"`
}

// handleTasks returns the task set for a date, materializing it on first
// access.
//
// GET /api/tasks?date=2025-09-15 (default: today)
func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	date := r.URL.Query().Get("date")
	if date == "" {
		date = s.engine.Today()
	}
	if !model.ValidDate(date) {
		writeError(w, http.StatusBadRequest, "invalid date, want YYYY-MM-DD")
		return
	}

	day, err := s.engine.GetTasksForDate(date)
	if err != nil {
		appLog.Error("get tasks failed", err, "date", date)
		writeError(w, http.StatusInternalServerError, "failed to load tasks")
		return
	}

	writeJSON(w, http.StatusOK, tasksResponse{Date: date, Classes: day})
}

type toggleRequest struct {
	Date      string `json:"date"`
	Class     string `json:"class"`
	Title     string `json:"title"`
	Origin    string `json:"origin"`
	Completed bool   `json:"completed"`
}

// handleToggle flips a completion flag.
//
// POST /api/tasks/toggle {"date","class","title","origin","completed"}
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !model.ValidDate(req.Date) {
		writeError(w, http.StatusBadRequest, "invalid date, want YYYY-MM-DD")
		return
	}

	err := s.engine.ToggleCompletion(req.Date, req.Class, req.Title, model.ParseOrigin(req.Origin), req.Completed)
	if err != nil {
		var notFound *taskstore.NotFoundError
		if errors.As(err, &notFound) {
			writeError(w, http.StatusNotFound, notFound.Error())
			return
		}
		appLog.Error("toggle failed", err, "date", req.Date, "class", req.Class, "title", req.Title)
		writeError(w, http.StatusInternalServerError, "failed to save toggle")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type adhocRequest struct {
	Date        string `json:"date"`
	Class       string `json:"class"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

// handleAdhoc adds a one-off task to a single date.
//
// POST /api/tasks/adhoc {"date","class","title","description","priority"}
func (s *Server) handleAdhoc(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req adhocRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !model.ValidDate(req.Date) {
		writeError(w, http.StatusBadRequest, "invalid date, want YYYY-MM-DD")
		return
	}
	if req.Title == "" || req.Class == "" {
		writeError(w, http.StatusBadRequest, "class and title are required")
		return
	}

	inst, err := s.engine.AddAdhocTask(req.Date, req.Class, req.Title, req.Description, model.ParsePriority(req.Priority))
	if err != nil {
		appLog.Error("adhoc add failed", err, "date", req.Date, "class", req.Class)
		writeError(w, http.StatusInternalServerError, "failed to add task")
		return
	}

	writeJSON(w, http.StatusCreated, inst)
}

// reloadResponse is the JSON shape for POST /api/reload.
type reloadResponse struct {
	ActiveDates int            `json:"active_dates"`
	Today       model.DayTasks `json:"today"`
}

// handleReload re-reads the template documents and re-materializes all
// active dates. A parse error is reported with its line number and leaves
// the previous templates in effect.
//
// POST /api/reload
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	merged, err := s.engine.ReloadTemplateFiles(s.cfg.ClassesPath, s.cfg.ICSClassesPath)
	if err != nil {
		var parseErr *template.ParseError
		if errors.As(err, &parseErr) {
			writeError(w, http.StatusUnprocessableEntity, parseErr.Error())
			return
		}
		appLog.Error("reload failed", err)
		writeError(w, http.StatusInternalServerError, "reload failed")
		return
	}

	writeJSON(w, http.StatusOK, reloadResponse{
		ActiveDates: len(merged),
		Today:       merged[s.engine.Today()],
	})
}

type eventRequest struct {
	Date  string      `json:"date"`
	Index int         `json:"index"`
	Event model.Event `json:"event"`
}

// handleEvents is the calendar event CRUD surface.
//
//	GET    /api/events?date=2025-09-15
//	POST   /api/events {"date","event":{...}}
//	PUT    /api/events {"date","index","event":{...}}
//	DELETE /api/events?date=2025-09-15&index=0
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()

	switch r.Method {
	case http.MethodGet:
		date := r.URL.Query().Get("date")
		if !model.ValidDate(date) {
			writeError(w, http.StatusBadRequest, "invalid date, want YYYY-MM-DD")
			return
		}
		writeJSON(w, http.StatusOK, s.events.ForDate(date))

	case http.MethodPost, http.MethodPut:
		var req eventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if !model.ValidDate(req.Date) {
			writeError(w, http.StatusBadRequest, "invalid date, want YYYY-MM-DD")
			return
		}
		if req.Event.Title == "" {
			writeError(w, http.StatusBadRequest, "event title is required")
			return
		}
		if req.Event.Duration <= 0 {
			req.Event.Duration = s.cfg.DefaultEventDuration
		}

		if r.Method == http.MethodPost {
			s.events.Add(req.Date, req.Event)
		} else if err := s.events.Update(req.Date, req.Index, req.Event); err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}

		if err := s.events.Save(); err != nil {
			appLog.Error("event save failed", err, "date", req.Date)
			writeError(w, http.StatusInternalServerError, "failed to save events")
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})

	case http.MethodDelete:
		date := r.URL.Query().Get("date")
		if !model.ValidDate(date) {
			writeError(w, http.StatusBadRequest, "invalid date, want YYYY-MM-DD")
			return
		}
		index, err := strconv.Atoi(r.URL.Query().Get("index"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid index")
			return
		}
		if err := s.events.Remove(date, index); err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		if err := s.events.Save(); err != nil {
			appLog.Error("event save failed", err, "date", date)
			writeError(w, http.StatusInternalServerError, "failed to save events")
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type importRequest struct {
	Source string `json:"source"` // local .ics path or http(s) URL
}

type importResponse struct {
	EventsImported int      `json:"events_imported"`
	ClassesSeeded  []string `json:"classes_seeded"`
}

// handleImportICS fetches an ICS payload, imports its occurrences into the
// event store, writes the seed template appendix and reloads templates so
// the seeded classes materialize immediately.
//
// POST /api/import/ics {"source": "/path/to/file.ics" | "https://..."}
func (s *Server) handleImportICS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Source == "" {
		writeError(w, http.StatusBadRequest, "source is required")
		return
	}

	body, err := ics.Fetch(r.Context(), req.Source)
	if err != nil {
		appLog.Error("ics fetch failed", err, "source", req.Source)
		writeError(w, http.StatusBadGateway, "failed to fetch ICS source")
		return
	}

	s.eventsMu.Lock()
	res, err := s.importer.Import(body, time.Now())
	if err == nil {
		err = s.events.Save()
	}
	s.eventsMu.Unlock()
	if err != nil {
		appLog.Error("ics import failed", err, "source", req.Source)
		writeError(w, http.StatusUnprocessableEntity, "failed to import ICS")
		return
	}

	if len(res.ClassesSeeded) > 0 {
		doc := ics.SeedTemplateDocument(res.ClassesSeeded)
		if err := atomicfile.WriteFile(s.cfg.ICSClassesPath, []byte(doc), 0o644); err != nil {
			appLog.Error("failed to write seed templates", err, "path", s.cfg.ICSClassesPath)
			writeError(w, http.StatusInternalServerError, "failed to write seed templates")
			return
		}
		if _, err := s.engine.ReloadTemplateFiles(s.cfg.ClassesPath, s.cfg.ICSClassesPath); err != nil {
			appLog.Error("reload after import failed", err)
			writeError(w, http.StatusInternalServerError, "reload after import failed")
			return
		}
	}

	writeJSON(w, http.StatusOK, importResponse{
		EventsImported: res.EventsImported,
		ClassesSeeded:  res.ClassesSeeded,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
