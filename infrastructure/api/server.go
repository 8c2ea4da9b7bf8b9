// Package api exposes the HTTP surface: runs, out-of-band file access,
// search, health, metrics and the real-time endpoint.
package api

import (
	"code-lab/domain/session"
	"code-lab/errors"
	"code-lab/services"
	"encoding/json"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
)

const (
	maxBodyBytes      = 4 << 20
	AISuggestDisabled = "AI suggestions are disabled on this server"
)

type RunRequest struct {
	Session  string `json:"session"`
	Language string `json:"language"`
	Filename string `json:"filename,omitempty"`
	Code     string `json:"code"`
}

type RunResponse struct {
	Output string `json:"output"`
	OK     bool   `json:"ok"`
}

type FilesResponse struct {
	Files session.Files `json:"files"`
}

type SaveRequest struct {
	Filename string  `json:"filename"`
	Content  *string `json:"content"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

type SearchResponse struct {
	Matches []string `json:"matches"`
}

type SuggestResponse struct {
	Suggestion string `json:"suggestion"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type Server struct {
	log       *slog.Logger
	workspace services.IWorkspaceService
	runs      services.IRunService
	realtime  http.Handler
	metrics   http.Handler
}

func NewServer(log *slog.Logger, workspace services.IWorkspaceService, runs services.IRunService,
	realtime, metrics http.Handler) *Server {
	return &Server{log: log, workspace: workspace, runs: runs, realtime: realtime, metrics: metrics}
}

func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/run", s.handleRun).Methods(http.MethodPost)
	router.HandleFunc("/files/{session}", s.handleFiles).Methods(http.MethodGet)
	router.HandleFunc("/files/{session}/save", s.handleSave).Methods(http.MethodPost)
	router.HandleFunc("/files/{session}/search", s.handleSearch).Methods(http.MethodGet)
	router.HandleFunc("/ai-suggest", s.handleSuggest).Methods(http.MethodPost)
	if s.metrics != nil {
		router.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}
	if s.realtime != nil {
		router.Handle("/ws", s.realtime).Methods(http.MethodGet)
	}
	return router
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.reply(w, http.StatusOK, OKResponse{OK: true})
}

// handleRun answers 200 for every program outcome, failures included:
// only malformed requests and infrastructure faults change the status.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var body RunRequest
	if !s.decode(w, r, &body) {
		return
	}
	result, err := s.runs.Run(r.Context(), services.RunCommand{
		Session:  body.Session,
		Language: body.Language,
		Filename: body.Filename,
		Code:     body.Code,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	s.reply(w, http.StatusOK, RunResponse{Output: result.Output, OK: result.Success})
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.workspace.Files(r.Context(), sessionOf(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	if files == nil {
		files = session.Files{}
	}
	s.reply(w, http.StatusOK, FilesResponse{Files: files})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var body SaveRequest
	if !s.decode(w, r, &body) {
		return
	}
	err := s.workspace.Save(r.Context(), services.SaveFileCommand{
		Session:  sessionOf(r),
		Filename: body.Filename,
		Content:  body.Content,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	s.reply(w, http.StatusOK, OKResponse{OK: true})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	matches, err := s.workspace.Search(r.Context(), sessionOf(r), r.URL.Query().Get("q"))
	if err != nil {
		s.fail(w, err)
		return
	}
	if matches == nil {
		matches = []string{}
	}
	s.reply(w, http.StatusOK, SearchResponse{Matches: matches})
}

func (s *Server) handleSuggest(w http.ResponseWriter, _ *http.Request) {
	s.reply(w, http.StatusOK, SuggestResponse{Suggestion: AISuggestDisabled})
}

func sessionOf(r *http.Request) session.ID {
	return session.ID(mux.Vars(r)["session"])
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, body any) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(body)
	if err != nil {
		s.reply(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
		return false
	}
	return true
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := errors.MapToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("Request failed", "error", err)
	}
	message := err.Error()
	if stderrors.Is(err, errors.ErrInfrastructure) {
		message = errors.ErrInfrastructure.Error()
	}
	s.reply(w, status, ErrorResponse{Error: message})
}

func (s *Server) reply(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Debug("Failed to write response", "error", err)
	}
}
