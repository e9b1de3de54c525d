// Package main starts a development gallery server that speaks the ws.php
// session API (login, getStatus, logout), optionally over HTTPS with a
// self-signed certificate.
package main

import (
	"cmp"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	nethttp "net/http"

	"github.com/atinyakov/GalleryKeeper/internal/certgen"
	"github.com/atinyakov/GalleryKeeper/internal/config"
	"github.com/atinyakov/GalleryKeeper/internal/logger"
	"github.com/atinyakov/GalleryKeeper/internal/server/handler/http"
	"go.uber.org/zap"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	// Parse command-line and environment configuration.
	options, err := config.ParseServer(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}
	zapLogger := log.Log

	users, err := http.ParseUsers(options.Users)
	if err != nil {
		zapLogger.Fatal("invalid users", zap.Error(err))
	}

	ws := &http.WSHandler{
		Users:    users,
		Sessions: http.NewMemorySessions(),
		Version:  cmp.Or(version, "dev"),
	}
	router := http.NewRouter(ws, "/", zapLogger)

	server := &nethttp.Server{
		Addr:              options.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if options.TLS {
		host, _, err := net.SplitHostPort(options.Addr)
		if err != nil || host == "" {
			host = "localhost"
		}
		cert, err := certgen.EnsureServerTLS(options.CertDir, []string{host, "localhost", "127.0.0.1"})
		if err != nil {
			zapLogger.Fatal("failed to prepare server TLS cert/key", zap.Error(err))
		}
		server.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
		zapLogger.Info("trust the development CA with -ca",
			zap.String("ca", filepath.Join(options.CertDir, certgen.CACertFile)))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zapLogger.Error("shutdown", zap.Error(err))
		}
	}()

	zapLogger.Info("starting gallery server", zap.String("addr", options.Addr), zap.Bool("tls", options.TLS))
	if options.TLS {
		err = server.ListenAndServeTLS("", "")
	} else {
		err = server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		zapLogger.Fatal("failed to start server", zap.Error(err))
	}
}
