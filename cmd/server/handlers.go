package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/himanishpuri/mousai/pkg/logger"
	"github.com/himanishpuri/mousai/pkg/mousai"
	"github.com/himanishpuri/mousai/pkg/utils"
)

// maxUploadSize bounds POST /api/identify bodies.
const maxUploadSize = 50 << 20

// Controller is the part of mousai.Controller the HTTP API drives.
type Controller interface {
	Start() error
	Cancel() error
	IdentifyFile(path string) error
	Status() (mousai.Status, error)
	History() ([]mousai.Song, error)
	SearchHistory(query string) ([]mousai.Song, error)
	ClearHistory() error
	RemoveSong(link string) error
	SetToken(token string) error
}

// Server encapsulates the HTTP server and its dependencies
type Server struct {
	ctrl   Controller
	view   *webView
	config *ServerConfig
	log    mousai.Logger
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	DBPath         string
	UploadDir      string
	AllowedOrigins []string
}

// NewServer creates a new server instance
func NewServer(ctrl Controller, view *webView, config *ServerConfig) *Server {
	return &Server{
		ctrl:   ctrl,
		view:   view,
		config: config,
		log:    logger.GetLogger().With("http"),
	}
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// respondControllerError maps controller errors onto status codes.
func (s *Server) respondControllerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, mousai.ErrBusy), errors.Is(err, mousai.ErrNotRecording):
		s.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, mousai.ErrNoToken):
		s.respondError(w, http.StatusPreconditionFailed, "No AudD API token is set")
	case errors.Is(err, mousai.ErrDeviceUnavailable):
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, mousai.ErrSongNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, mousai.ErrClosed):
		s.respondError(w, http.StatusServiceUnavailable, "Server is shutting down")
	default:
		s.log.Errorf("Controller error: %v", err)
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"service": "Mousai API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"health":        "GET /health",
			"state":         "GET /api/state",
			"listen":        "POST /api/listen",
			"cancel":        "POST /api/cancel",
			"identify":      "POST /api/identify",
			"history":       "GET /api/history",
			"clearHistory":  "DELETE /api/history",
			"removeSong":    "DELETE /api/history?link={song_link}",
			"searchHistory": "GET /api/history/search?q={query}",
			"setToken":      "PUT /api/token",
		},
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleState handles GET /api/state
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	st, err := s.ctrl.Status()
	if err != nil {
		s.respondControllerError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, StateResponse{
		State:       st.State,
		Device:      st.Device,
		RemainingMs: st.Remaining.Milliseconds(),
		Level:       st.Level,
		Peak:        st.Peak,
		HistorySize: st.HistorySize,
		Notice:      s.view.lastNotice(),
	})
}

// handleListen handles POST /api/listen
func (s *Server) handleListen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if err := s.ctrl.Start(); err != nil {
		s.respondControllerError(w, err)
		return
	}
	s.log.Infof("Listening started from %s", getClientIP(r))
	s.respondJSON(w, http.StatusAccepted, ActionResponse{Message: "Listening", State: mousai.StateRecording})
}

// handleCancel handles POST /api/cancel
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if err := s.ctrl.Cancel(); err != nil {
		s.respondControllerError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, ActionResponse{Message: "Recording cancelled", State: mousai.StateIdle})
}

// handleIdentify handles POST /api/identify (multipart file upload)
func (s *Server) handleIdentify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		s.log.Errorf("Failed to parse form: %v", err)
		s.respondError(w, http.StatusBadRequest, "Failed to parse form data")
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	if err := utils.MakeDir(s.config.UploadDir); err != nil {
		s.log.Errorf("Failed to create upload dir: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to process upload")
		return
	}
	name := fmt.Sprintf("upload_%s%s", utils.NewID(), filepath.Ext(header.Filename))
	tempFile := filepath.Join(s.config.UploadDir, name)
	out, err := os.Create(tempFile)
	if err != nil {
		s.log.Errorf("Failed to create temp file: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to process upload")
		return
	}
	_, copyErr := io.Copy(out, file)
	closeErr := out.Close()
	if copyErr != nil || closeErr != nil {
		utils.DeleteFile(tempFile)
		s.log.Errorf("Failed to save file: %v", errors.Join(copyErr, closeErr))
		s.respondError(w, http.StatusInternalServerError, "Failed to save uploaded file")
		return
	}

	if err := s.ctrl.IdentifyFile(tempFile); err != nil {
		utils.DeleteFile(tempFile)
		s.respondControllerError(w, err)
		return
	}
	// removed by the view once the controller is idle again
	s.view.track(tempFile)

	s.log.Infof("Identifying upload %s", header.Filename)
	s.respondJSON(w, http.StatusAccepted, ActionResponse{Message: "Identifying", State: mousai.StateProcessing})
}

// handleHistory handles GET and DELETE /api/history
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		songs, err := s.ctrl.History()
		if err != nil {
			s.respondControllerError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, HistoryResponse{Songs: nonNil(songs), Count: len(songs)})
	case http.MethodDelete:
		if link := r.URL.Query().Get("link"); link != "" {
			if err := s.ctrl.RemoveSong(link); err != nil {
				s.respondControllerError(w, err)
				return
			}
			s.log.Infof("Removed %s from history", link)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if err := s.ctrl.ClearHistory(); err != nil {
			s.respondControllerError(w, err)
			return
		}
		s.log.Infof("History cleared")
		w.WriteHeader(http.StatusNoContent)
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleSearch handles GET /api/history/search?q=
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	query := r.URL.Query().Get("q")
	songs, err := s.ctrl.SearchHistory(query)
	if err != nil {
		s.respondControllerError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, HistoryResponse{Songs: nonNil(songs), Count: len(songs), Query: query})
}

// handleToken handles PUT /api/token
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req SetTokenRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.ctrl.SetToken(req.Token); err != nil {
		s.respondControllerError(w, err)
		return
	}
	s.log.Infof("API token updated")
	w.WriteHeader(http.StatusNoContent)
}

func nonNil(songs []mousai.Song) []mousai.Song {
	if songs == nil {
		return []mousai.Song{}
	}
	return songs
}
