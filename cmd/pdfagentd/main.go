package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"go.uber.org/automaxprocs/maxprocs"

	pdfagent "ieee-pdf-agent"
	"ieee-pdf-agent/internal/logger"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	var (
		configPath = flag.String("config", "config.json", "path to the JSON config file")
		addr       = flag.String("addr", ":5000", "HTTP listen address")
		uploadDir  = flag.String("upload-dir", "uploads", "directory for uploaded documents")
		workers    = flag.Int("workers", pdfagent.DefaultWorkers, "concurrent conversion jobs")
		queueDepth = flag.Int("queue", pdfagent.DefaultQueueDepth, "pending conversion queue depth")
		verbose    = flag.BoolP("verbose", "v", false, "enable debug logging")
	)
	flag.Parse()

	log := logger.NewAppSLogger(*verbose)

	// Dev convenience; production injects env vars through infra.
	_ = godotenv.Load()

	// Error ignored: maxprocs.Set only fails on an invalid GOMAXPROCS
	// env value, in which case runtime defaults apply.
	_, _ = maxprocs.Set(maxprocs.Logger(func(string, ...interface{}) {}))

	log.Info("starting pdf agent", "version", Version, "addr", *addr, "config", *configPath)

	cfg, created, err := pdfagent.LoadConfig(*configPath)
	if err != nil {
		log.Fatal("unable to load config", err, "path", *configPath)
	}
	if created {
		log.Warn("created default config; please fill it in", "path", *configPath)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, bin := range pdfagent.MissingBinaries(cfg.Pandoc) {
		log.Warn("required binary not found on PATH, conversions will fail", "binary", bin)
	}

	store := pdfagent.NewStore()
	engine := pdfagent.NewEngine(cfg.Pandoc, cfg.Output.Directory, log)
	mailer := pdfagent.NewMailer(cfg.Email, log)

	hub := pdfagent.NewHub(log)
	go hub.Run(ctx)

	scheduler := pdfagent.NewScheduler(ctx, store, engine, mailer, hub,
		cfg.Email.ToEmail, *workers, *queueDepth, log)

	updates, err := pdfagent.LoadUpdates()
	if err != nil {
		log.Fatal("unable to load updates feed", err)
	}

	server, err := pdfagent.NewServer(store, scheduler, hub, pdfagent.NewPreviewer(),
		updates, *uploadDir, cfg.Output.Directory, log)
	if err != nil {
		log.Fatal("unable to create server", err)
	}

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "*"
	}
	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{allowedOrigins}),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)

	srv := &http.Server{
		Addr:         *addr,
		Handler:      cors(server.Router()),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info("listening", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", err)
		}
	}()

	<-quit
	log.Info("shutdown signal received, draining requests")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("forced shutdown", err)
	}

	// Stop accepting jobs, let in-flight conversions finish, then tear
	// down the hub.
	scheduler.Stop()
	cancel()
	log.Info("server stopped cleanly")
}
