package pdfagent

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"ieee-pdf-agent/internal/fileutil"
	"ieee-pdf-agent/internal/logger"
)

// uploadTimestampLayout prefixes stored filenames so re-uploads of the
// same document do not collide.
const uploadTimestampLayout = "20060102_150405"

// JobSubmitter starts a background conversion for an uploaded record.
type JobSubmitter interface {
	Submit(sessionID string, rec FileRecord, opts ConversionOptions) error
}

// Server wires the HTTP surface to the core pipeline.
type Server struct {
	store     *Store
	scheduler JobSubmitter
	hub       *Hub
	previewer *Previewer
	updates   []UpdateNotification
	uploadDir string
	outDir    string
	log       logger.AppLogger
}

// NewServer creates the HTTP layer. uploadDir is created if absent.
func NewServer(store *Store, scheduler JobSubmitter, hub *Hub, previewer *Previewer,
	updates []UpdateNotification, uploadDir, outDir string, log logger.AppLogger) (*Server, error) {
	if err := os.MkdirAll(uploadDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}
	return &Server{
		store:     store,
		scheduler: scheduler,
		hub:       hub,
		previewer: previewer,
		updates:   updates,
		uploadDir: uploadDir,
		outDir:    outDir,
		log:       log.With("service", "http"),
	}, nil
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.hub.ServeWS).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)
	api.HandleFunc("/convert", s.handleConvert).Methods(http.MethodPost)
	api.HandleFunc("/download/{filename}", s.handleDownload).Methods(http.MethodGet)
	api.HandleFunc("/session/{id}", s.handleSession).Methods(http.MethodGet)
	api.HandleFunc("/updates", s.handleUpdates).Methods(http.MethodGet)
	api.HandleFunc("/updates/dismiss", s.handleDismissUpdate).Methods(http.MethodPost)
	api.HandleFunc("/preview/{session_id}/{filename}", s.handlePreview).Methods(http.MethodGet)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUpload accepts one document per call, stores it under a
// timestamped name, and records it in the session (status "uploaded").
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		s.writeError(w, http.StatusBadRequest, ErrNoFile)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, ErrNoFile)
		return
	}
	defer func() { _ = file.Close() }()

	if header.Filename == "" {
		s.writeError(w, http.StatusBadRequest, ErrEmptyFilename)
		return
	}
	if !AllowedFile(header.Filename) {
		s.writeError(w, http.StatusBadRequest, ErrInvalidFileType)
		return
	}

	sessionID := r.FormValue("session_id")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	safeName, err := fileutil.SanitizeFilename(header.Filename)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, ErrEmptyFilename)
		return
	}
	filename := time.Now().Format(uploadTimestampLayout) + "_" + safeName
	storagePath := filepath.Join(s.uploadDir, filename)

	if err := saveUpload(file, storagePath); err != nil {
		s.log.Error("unable to store upload", err, "filename", filename)
		s.writeError(w, http.StatusInternalServerError, errors.New("unable to store file"))
		return
	}

	s.store.AddFile(sessionID, FileRecord{
		Filename:     filename,
		OriginalName: header.Filename,
		StoragePath:  storagePath,
		Status:       StatusUploaded,
		UploadedAt:   time.Now(),
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"filename":   filename,
		"session_id": sessionID,
		"message":    fmt.Sprintf("File %s uploaded successfully", header.Filename),
	})
}

// convertRequest is the body of POST /api/convert. SendEmail decodes as
// a pointer so an absent key can be told apart from an explicit false:
// omitting it means "deliver by email to the configured recipient".
type convertRequest struct {
	SessionID string          `json:"session_id"`
	Filename  string          `json:"filename"`
	Options   *convertOptions `json:"options"`
}

type convertOptions struct {
	SendEmail      *bool  `json:"send_email"`
	EmailRecipient string `json:"email_recipient"`
}

// conversionOptions resolves the request body into domain options,
// applying the email-by-default rule for absent keys.
func (r convertRequest) conversionOptions() ConversionOptions {
	opts := ConversionOptions{SendEmail: true}
	if r.Options == nil {
		return opts
	}
	opts.EmailRecipient = r.Options.EmailRecipient
	if r.Options.SendEmail != nil {
		opts.SendEmail = *r.Options.SendEmail
	}
	return opts
}

// handleConvert validates the request and hands the record to the
// scheduler. The response returns before the conversion runs; progress
// arrives on the event channel.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	var req convertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON body: %w", err))
		return
	}
	if req.SessionID == "" || req.Filename == "" {
		s.writeError(w, http.StatusBadRequest, ErrSessionRequired)
		return
	}

	rec, err := s.store.FindFile(req.SessionID, req.Filename)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}

	if err := s.scheduler.Submit(req.SessionID, rec, req.conversionOptions()); err != nil {
		switch {
		case errors.Is(err, ErrQueueFull):
			s.writeError(w, http.StatusServiceUnavailable, err)
		case errors.Is(err, ErrInvalidTransition):
			s.writeError(w, http.StatusConflict, err)
		default:
			s.log.Error("unable to submit conversion", err,
				"session_id", req.SessionID, "filename", req.Filename)
			s.writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    "Conversion started",
		"session_id": req.SessionID,
	})
}

// handleDownload serves a generated PDF from the output directory as a
// binary attachment.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	filename := mux.Vars(r)["filename"]

	path, err := fileutil.ContainedIn(s.outDir, filename)
	if err != nil || !fileutil.FileExists(path) {
		s.writeError(w, http.StatusNotFound, ErrNotOnDisk)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeFile(w, r, path)
}

// handleSession returns the full session document, creating it if
// absent.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess := s.store.GetOrCreate(mux.Vars(r)["id"])
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleUpdates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.updates)
}

// dismissRequest is the body of POST /api/updates/dismiss.
type dismissRequest struct {
	SessionID string `json:"session_id"`
	UpdateID  string `json:"update_id"`
}

func (s *Server) handleDismissUpdate(w http.ResponseWriter, r *http.Request) {
	var req dismissRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON body: %w", err))
		return
	}
	if req.SessionID == "" || req.UpdateID == "" {
		s.writeError(w, http.StatusBadRequest, ErrUpdateIDRequired)
		return
	}

	s.store.DismissUpdate(req.SessionID, req.UpdateID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handlePreview renders an uploaded Markdown document to HTML.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sessionID, filename := vars["session_id"], vars["filename"]

	rec, err := s.store.FindFile(sessionID, filename)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	if !IsMarkdown(rec.Filename) {
		s.writeError(w, http.StatusUnprocessableEntity, ErrNotMarkdown)
		return
	}

	content, err := os.ReadFile(rec.StoragePath) // #nosec G304 -- path was written by the upload handler
	if err != nil {
		s.writeError(w, http.StatusNotFound, ErrNotOnDisk)
		return
	}

	rendered, err := s.previewer.Render(r.Context(), string(content))
	if err != nil {
		s.log.Error("preview rendering failed", err, "filename", filename)
		s.writeError(w, http.StatusInternalServerError, errors.New("preview rendering failed"))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, rendered)
}

// saveUpload streams the multipart part to disk.
func saveUpload(src io.Reader, dst string) error {
	out, err := os.Create(dst) // #nosec G304 -- dst is built from a sanitized name inside uploadDir
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, src); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
