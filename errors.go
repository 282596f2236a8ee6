package pdfagent

import "errors"

// Sentinel errors for service operations. The HTTP layer maps these to
// response codes; background jobs record them on the owning FileRecord.
var (
	// Request validation errors (client error, job never started).
	ErrSessionRequired  = errors.New("session ID and filename required")
	ErrNoFile           = errors.New("no file provided")
	ErrEmptyFilename    = errors.New("no file selected")
	ErrInvalidFileType  = errors.New("invalid file type: only .md, .markdown, .tex, .latex files are allowed")
	ErrNotMarkdown      = errors.New("preview is only available for markdown files")
	ErrUpdateIDRequired = errors.New("session ID and update ID required")

	// Lookup errors.
	ErrFileNotFound = errors.New("file not found in session")
	ErrNotOnDisk    = errors.New("file not found")

	// Scheduling errors.
	ErrQueueFull         = errors.New("conversion queue is full")
	ErrInvalidTransition = errors.New("invalid status transition")

	// Conversion errors (reported asynchronously, never to the caller).
	ErrConversionFailed = errors.New("conversion failed")

	// Email errors (logged only, never change job status).
	ErrEmailConfigIncomplete = errors.New("incomplete email configuration")
)
