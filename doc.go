// Package pdfagent converts uploaded Markdown and LaTeX documents to
// IEEE-formatted PDFs by driving the external pandoc binary, and delivers
// results to clients through asynchronous status events and optional email.
//
// # Pipeline
//
// A conversion request moves through these stages:
//
//  1. Upload: the document is stored on disk and recorded in the client's
//     in-memory session (status "uploaded").
//  2. Submit: the JobScheduler marks the record "processing", publishes a
//     processing event, and enqueues the job on a bounded worker pool.
//  3. Convert: a worker invokes pandoc with the IEEE flag set. A non-zero
//     exit triggers exactly one retry without the template flag.
//  4. Report: the terminal status ("completed" or "failed") is written to
//     the record first, then published as a conversion_status event.
//  5. Deliver: when requested, the PDF is emailed as an attachment. Email
//     failure never changes the job's terminal status.
//
// # Components
//
// Store holds per-client sessions, Engine wraps the pandoc invocation,
// Scheduler owns the worker pool and the job boundary, Hub pushes status
// events over WebSocket, and Mailer sends artifacts over SMTP.
//
// # Requirements
//
// Conversion requires pandoc and a LaTeX PDF engine (xelatex by default)
// on PATH. Both are probed at startup and missing binaries are logged.
package pdfagent
