// Package main is the gallery session client: it logs in to gallery sites,
// keeps the resulting accounts and sessions in a local store and tracks
// which account is active.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/atinyakov/GalleryKeeper/internal/client/gallery"
	"github.com/atinyakov/GalleryKeeper/internal/config"
	"github.com/atinyakov/GalleryKeeper/internal/db"
	"github.com/atinyakov/GalleryKeeper/internal/logger"
	"github.com/atinyakov/GalleryKeeper/internal/repository"
	"github.com/atinyakov/GalleryKeeper/internal/secrets"
	"github.com/atinyakov/GalleryKeeper/internal/service"
	"github.com/atinyakov/GalleryKeeper/internal/worker"
	"go.uber.org/zap"
)

var (
	version   string
	buildDate string
)

const dataDirName = ".gallerykeeper"

// main parses configuration, opens the account store and dispatches the
// selected command.
func main() {
	if len(os.Args) > 1 && os.Args[1] == "-version" {
		fmt.Printf("GalleryKeeper Client\nVersion: %s\nBuild Date: %s\n", version, buildDate)
		return
	}

	options, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, closeApp, err := newApp(ctx, options, log.Log)
	if err != nil {
		log.Log.Error("startup failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer closeApp()

	if err := a.run(ctx, options); err != nil {
		fmt.Fprintln(os.Stderr, describe(err))
		closeApp()
		os.Exit(1)
	}
}

// newApp wires the store, the session client and the dispatcher.
func newApp(ctx context.Context, o *config.Options, log *zap.Logger) (*app, func(), error) {
	repo, closeRepo, err := openRepository(ctx, o)
	if err != nil {
		return nil, nil, err
	}

	keyFile := o.KeyFile
	if keyFile == "" {
		keyFile, err = dataPath("key")
		if err != nil {
			closeRepo()
			return nil, nil, err
		}
	}
	key, err := secrets.LoadOrCreateKey(keyFile)
	if err != nil {
		closeRepo()
		return nil, nil, err
	}
	sealer, err := secrets.NewSealer(key)
	if err != nil {
		closeRepo()
		return nil, nil, err
	}

	store, err := service.NewAccountStore(ctx, repo, sealer, nil, log)
	if err != nil {
		closeRepo()
		return nil, nil, err
	}

	httpClient, err := gallery.NewHTTPClient(o.CAFile, time.Duration(o.Timeout))
	if err != nil {
		closeRepo()
		return nil, nil, err
	}
	client := service.NewSessionClient(gallery.NewClient(httpClient, log), store, log)
	d := worker.New(o.Workers, log)

	a := &app{
		store:  store,
		client: client,
		async:  service.NewAsyncSession(client, d),
		out:    os.Stdout,
		in:     bufio.NewScanner(os.Stdin),
	}
	a.readPassword = func(prompt string) (string, error) {
		return readPassword(a.out, a.in, prompt)
	}

	var once bool
	closeApp := func() {
		if once {
			return
		}
		once = true
		d.Close()
		closeRepo()
	}
	return a, closeApp, nil
}

// openRepository opens the account store selected by o.
func openRepository(ctx context.Context, o *config.Options) (service.AccountRepository, func(), error) {
	noop := func() {}

	switch o.StoreDriver {
	case config.DriverFile:
		path := o.StoreDSN
		if path == "" {
			p, err := dataPath("accounts.json")
			if err != nil {
				return nil, nil, err
			}
			path = p
		}
		repo, err := repository.NewFileAccountRepository(path)
		if err != nil {
			return nil, nil, err
		}
		return repo, noop, nil

	case config.DriverSQLite, config.DriverPostgres:
		dsn := o.StoreDSN
		if dsn == "" && o.StoreDriver == config.DriverSQLite {
			p, err := dataPath("accounts.db")
			if err != nil {
				return nil, nil, err
			}
			dsn = p
		}
		if dsn == "" {
			return nil, nil, errors.New("postgres store requires -dsn")
		}
		conn, err := db.Open(ctx, o.StoreDriver, dsn)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewSQLAccountRepository(conn), func() { _ = conn.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unsupported store driver %q", o.StoreDriver)
}

// dataPath returns name inside the per-user data directory, creating it.
func dataPath(name string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locate home directory: %w", err)
	}
	dir := filepath.Join(home, dataDirName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}
	return filepath.Join(dir, name), nil
}
