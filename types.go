package pdfagent

import (
	"path/filepath"
	"strings"
	"time"
)

// FileStatus is the lifecycle state of an uploaded document.
type FileStatus string

// Lifecycle states. Transitions are one-directional:
// uploaded -> processing -> completed | failed.
const (
	StatusUploaded   FileStatus = "uploaded"
	StatusProcessing FileStatus = "processing"
	StatusCompleted  FileStatus = "completed"
	StatusFailed     FileStatus = "failed"
)

// canTransitionTo reports whether s -> next is a legal transition.
func (s FileStatus) canTransitionTo(next FileStatus) bool {
	switch s {
	case StatusUploaded:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	}
	return false
}

// FileRecord is one uploaded document and its conversion lifecycle state.
// A record is owned by its session; all mutations go through Store methods
// so they happen under the store's lock.
type FileRecord struct {
	Filename     string     `json:"filename"`
	OriginalName string     `json:"original_name"`
	StoragePath  string     `json:"storage_path"`
	Status       FileStatus `json:"status"`
	PDFPath      string     `json:"pdf_path,omitempty"`
	Error        string     `json:"error,omitempty"`
	UploadedAt   time.Time  `json:"uploaded_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// Session is a client-scoped container of uploaded file records and
// dismissed update notification ids. Sessions are created lazily on first
// reference and live for the process lifetime.
type Session struct {
	ID               string       `json:"id"`
	CreatedAt        time.Time    `json:"created_at"`
	Files            []FileRecord `json:"files"`
	DismissedUpdates []string     `json:"dismissed_updates"`
}

// ConversionOptions are supplied per conversion request, not persisted.
type ConversionOptions struct {
	SendEmail      bool   `json:"send_email"`
	EmailRecipient string `json:"email_recipient,omitempty"`
}

// ConversionOutcome is the Engine's result for one job.
type ConversionOutcome struct {
	Success    bool
	OutputPath string
}

// StatusEvent is an ephemeral progress notification pushed to live
// clients. Events are published best-effort and never stored.
type StatusEvent struct {
	SessionID string     `json:"session_id"`
	Filename  string     `json:"filename"`
	Status    FileStatus `json:"status"`
	Message   string     `json:"message"`
	PDFPath   string     `json:"pdf_path,omitempty"`
}

// Notifier publishes job-status events to whatever transport is wired in.
// Publish is fire-and-forget: no delivery guarantee, no replay.
type Notifier interface {
	Publish(ev StatusEvent)
}

// UpdateNotification is one entry of the static announcement feed.
type UpdateNotification struct {
	ID          string `yaml:"id" json:"id"`
	Title       string `yaml:"title" json:"title"`
	Message     string `yaml:"message" json:"message"`
	Type        string `yaml:"type" json:"type"`
	Date        string `yaml:"date" json:"date"`
	Dismissible bool   `yaml:"dismissible" json:"dismissible"`
}

// MaxUploadSize is the largest accepted document (16 MiB).
const MaxUploadSize = 16 << 20

// allowedExtensions are the upload extensions accepted by the service.
var allowedExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".tex":      true,
	".latex":    true,
}

// AllowedFile reports whether the filename carries an accepted extension.
func AllowedFile(filename string) bool {
	return allowedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// IsMarkdown reports whether the filename is a Markdown document.
// The preview endpoint only renders Markdown; LaTeX uploads are rejected.
func IsMarkdown(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".md", ".markdown":
		return true
	}
	return false
}
