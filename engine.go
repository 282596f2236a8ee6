package pdfagent

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"ieee-pdf-agent/internal/fileutil"
	"ieee-pdf-agent/internal/logger"
)

// defaultConvertTimeout bounds a single pandoc invocation. An unresponsive
// LaTeX engine would otherwise hang its worker forever.
const defaultConvertTimeout = 2 * time.Minute

// outputSuffix is appended to the input's base name for the default
// output path.
const outputSuffix = "_IEEE.pdf"

// ieeeArgs is the fixed formatting flag set, applied to every invocation.
var ieeeArgs = []string{
	"--standalone",
	"--number-sections",
	"--columns", "72",
	"-V", "geometry:margin=1in",
	"-V", "fontsize=10pt",
	"-V", "documentclass=IEEEtran",
	"-V", "classoption=10pt,conference",
	"--top-level-division=section",
}

// CommandRunner abstracts command execution to enable testing without
// real subprocesses.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout string, stderr string, err error)
}

// ExecRunner implements CommandRunner using os/exec. The context bounds
// the subprocess lifetime.
type ExecRunner struct{}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...) // #nosec G204 -- executable name is a package constant

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// Engine invokes pandoc with the IEEE flag set. A failed templated
// attempt is retried exactly once without the template flag, so a broken
// or missing template never blocks conversion.
type Engine struct {
	cfg     PandocConfig
	outDir  string
	runner  CommandRunner
	timeout time.Duration
	log     logger.AppLogger
}

// MissingBinaries reports which of pandoc and the configured PDF engine
// cannot be found on PATH. Conversion fails without them, so the daemon
// checks at startup and logs what is absent.
func MissingBinaries(cfg PandocConfig) []string {
	var missing []string
	for _, bin := range []string{"pandoc", cfg.Engine} {
		if bin == "" {
			continue
		}
		if _, err := exec.LookPath(bin); err != nil {
			missing = append(missing, bin)
		}
	}
	return missing
}

// NewEngine creates an Engine with a real command runner.
func NewEngine(cfg PandocConfig, outDir string, log logger.AppLogger) *Engine {
	return &Engine{
		cfg:     cfg,
		outDir:  outDir,
		runner:  &ExecRunner{},
		timeout: defaultConvertTimeout,
		log:     log.With("service", "engine"),
	}
}

// Convert runs pandoc on inputPath and returns the outcome. The output
// lands at <outDir>/<stem>_IEEE.pdf. On failure the returned error
// carries the converter's stderr; the outcome reports Success=false and
// no output path.
func (e *Engine) Convert(ctx context.Context, inputPath string) (ConversionOutcome, error) {
	outputPath, err := e.defaultOutputPath(inputPath)
	if err != nil {
		return ConversionOutcome{}, err
	}
	return e.ConvertTo(ctx, inputPath, outputPath)
}

// ConvertTo is Convert with an explicit output path.
func (e *Engine) ConvertTo(ctx context.Context, inputPath, outputPath string) (ConversionOutcome, error) {
	// The template flag is only added when the file is verifiably on
	// disk; a configured-but-absent template degrades to a template-less
	// first attempt.
	withTemplate := e.cfg.Template != "" && fileutil.FileExists(e.cfg.Template)

	args := e.buildArgs(inputPath, outputPath, withTemplate)
	e.log.Info("running pandoc", "args", strings.Join(args, " "))

	stderr, err := e.run(ctx, args)
	if err == nil {
		e.log.Info("conversion succeeded", "input", inputPath, "output", outputPath)
		return ConversionOutcome{Success: true, OutputPath: outputPath}, nil
	}
	e.log.Warn("pandoc conversion failed", "input", inputPath, "stderr", stderr)

	// Retry once without the template. When the first attempt was
	// already template-less a second identical run cannot change the
	// result, so the retry is skipped.
	if !withTemplate {
		return ConversionOutcome{}, fmt.Errorf("%w: %s", ErrConversionFailed, firstLine(stderr))
	}

	e.log.Info("retrying conversion without template", "input", inputPath)
	stderr, err = e.run(ctx, e.buildArgs(inputPath, outputPath, false))
	if err == nil {
		e.log.Info("fallback conversion succeeded", "input", inputPath, "output", outputPath)
		return ConversionOutcome{Success: true, OutputPath: outputPath}, nil
	}
	e.log.Error("fallback conversion failed", err, "input", inputPath, "stderr", stderr)

	return ConversionOutcome{}, fmt.Errorf("%w: %s", ErrConversionFailed, firstLine(stderr))
}

// run executes one pandoc invocation bounded by the engine timeout.
func (e *Engine) run(ctx context.Context, args []string) (stderr string, err error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	_, stderr, err = e.runner.Run(ctx, "pandoc", args...)
	if err != nil && ctx.Err() == context.DeadlineExceeded {
		return stderr, fmt.Errorf("pandoc timed out after %s", e.timeout)
	}
	return stderr, err
}

// buildArgs assembles the pandoc argument list. Order matters: input,
// output, engine, template, IEEE set, then user-configured extras last
// so they can override.
func (e *Engine) buildArgs(inputPath, outputPath string, withTemplate bool) []string {
	args := []string{inputPath, "-o", outputPath, "--pdf-engine", e.cfg.Engine}
	if withTemplate {
		args = append(args, "--template", e.cfg.Template)
	}
	args = append(args, ieeeArgs...)
	args = append(args, e.cfg.Options...)
	return args
}

// defaultOutputPath derives <outDir>/<stem>_IEEE.pdf, creating the
// output directory if needed.
func (e *Engine) defaultOutputPath(inputPath string) (string, error) {
	if err := os.MkdirAll(e.outDir, 0o750); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	base := filepath.Base(inputPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(e.outDir, stem+outputSuffix), nil
}

// firstLine trims stderr to its first non-empty line for error messages;
// LaTeX engines are notoriously chatty.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return "converter exited with a non-zero status"
}
