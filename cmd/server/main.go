package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/storyqa/internal/answer"
	"github.com/dgallion1/storyqa/internal/api"
	"github.com/dgallion1/storyqa/internal/config"
	"github.com/dgallion1/storyqa/internal/ollama"
	"github.com/dgallion1/storyqa/internal/parser"
	"github.com/dgallion1/storyqa/internal/reference"
)

func main() {
	cfg, err := config.Load()
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()}))
	if err != nil {
		log.Error("loading configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Load the reference document once; every request shares it.
	doc, err := reference.Load(cfg.DocumentPath, parser.Options{PDFFallbackPdftotext: cfg.PDFFallbackPdftotext})
	if err != nil {
		log.Error("loading document", "path", cfg.DocumentPath, "error", err)
		os.Exit(1)
	}
	log.Info("document loaded", "path", doc.Path(), "paragraphs", doc.Paragraphs(), "chars", doc.Chars())

	// Initialize clients.
	client := ollama.NewClient(cfg.OllamaURL, cfg.OllamaTimeout, ollama.NewCallStats(cfg.StatsWindow))
	svc := answer.NewService(client, doc, cfg.ModelName, answer.Options{
		ContextChars: cfg.ContextChars,
		Temperature:  &cfg.Temperature,
		NumCtx:       cfg.NumCtx,
	}, log)

	verifyCtx, verifyCancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = svc.VerifyModel(verifyCtx)
	verifyCancel()
	if err != nil {
		log.Error("model unavailable", "model", cfg.ModelName, "ollama", cfg.OllamaURL, "error", err)
		os.Exit(1)
	}

	// Initialize HTTP server.
	srv := api.NewServer(svc, client.Stats, log, cfg)

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.OllamaTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		client.Close()
	}()

	log.Info("starting storyqa", "addr", cfg.Addr(), "model", cfg.ModelName)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
