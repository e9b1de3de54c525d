// Package config provides functionality for managing configuration options
// for the client and the development gallery server using command-line
// flags, an optional JSON config file and environment variables.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store drivers accepted by the client.
const (
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Duration is a time.Duration read as "30s" from flags, JSON and env.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Options holds the client configuration.
type Options struct {
	// Command selects the client action (login, status, logout, accounts, use, shell).
	Command string `json:"-"`
	// SiteURL is the gallery URL for login and anonymous status.
	SiteURL string `json:"-"`
	// Username is the login name; empty logs in as guest.
	Username string `json:"-"`
	// Account is the key of a stored account.
	Account string `json:"-"`

	// StoreDriver selects the account store backend.
	StoreDriver string `json:"store_driver" env:"GALLERY_STORE_DRIVER"`
	// StoreDSN is the file path or database connection string of the store.
	StoreDSN string `json:"store_dsn" env:"GALLERY_STORE_DSN"`
	// KeyFile holds the key that encrypts stored passwords.
	KeyFile string `json:"key_file" env:"GALLERY_KEY_FILE"`
	// CAFile is an extra CA certificate trusted for gallery TLS.
	CAFile string `json:"ca_file" env:"GALLERY_CA_FILE"`
	// Timeout bounds every gallery HTTP request.
	Timeout Duration `json:"timeout" env:"GALLERY_TIMEOUT"`
	// Workers is the number of concurrent network calls.
	Workers int `json:"workers" env:"GALLERY_WORKERS"`
	// LogLevel is the zap level name.
	LogLevel string `json:"log_level" env:"GALLERY_LOG_LEVEL"`

	// Config is the path to the config file.
	Config string `json:"-"`
}

// ServerOptions holds the development gallery server configuration.
type ServerOptions struct {
	// Addr defines the server's listening address (ip:port).
	Addr string `json:"address" env:"SERVER_ADDRESS"`
	// Users lists accepted credentials as "user:pass,user:pass".
	Users string `json:"users" env:"GALLERY_USERS"`
	// TLS serves HTTPS with a self-signed certificate.
	TLS bool `json:"tls" env:"GALLERY_TLS"`
	// CertDir receives the generated CA and server certificate.
	CertDir string `json:"cert_dir" env:"GALLERY_CERT_DIR"`
	// LogLevel is the zap level name.
	LogLevel string `json:"log_level" env:"GALLERY_LOG_LEVEL"`

	// Config is the path to the config file.
	Config string `json:"-"`
}

// Parse reads the client configuration from args (without the program
// name), the config file and the environment, in increasing precedence of
// explicit flags over the file and the environment over both.
func Parse(args []string) (*Options, error) {
	o := &Options{
		StoreDriver: DriverFile,
		Timeout:     Duration(30 * time.Second),
		Workers:     4,
		LogLevel:    "warn",
	}

	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	fs.StringVar(&o.Command, "cmd", "shell", "action: login, status, logout, accounts, use, shell")
	fs.StringVar(&o.SiteURL, "url", "", "gallery url")
	fs.StringVar(&o.Username, "user", "", "username (empty for guest)")
	fs.StringVar(&o.Account, "account", "", "stored account key")
	fs.StringVar(&o.StoreDriver, "store", o.StoreDriver, "account store: file, sqlite or postgres")
	fs.StringVar(&o.StoreDSN, "dsn", "", "account store path or connection string")
	fs.StringVar(&o.KeyFile, "key", "", "password encryption key file")
	fs.StringVar(&o.CAFile, "ca", "", "extra CA certificate for gallery TLS")
	fs.TextVar(&o.Timeout, "timeout", o.Timeout, "request timeout")
	fs.IntVar(&o.Workers, "workers", o.Workers, "concurrent network calls")
	fs.StringVar(&o.LogLevel, "log-level", o.LogLevel, "log level")
	fs.StringVar(&o.Config, "config", "", "path to config file")
	fs.StringVar(&o.Config, "c", "", "path to config file (shorthand)")

	if err := load(fs, args, &o.Config, o); err != nil {
		return nil, err
	}

	switch o.StoreDriver {
	case DriverFile, DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported store driver %q", o.StoreDriver)
	}
	if o.Workers < 1 {
		return nil, errors.New("workers must be positive")
	}
	return o, nil
}

// ParseServer reads the development server configuration.
func ParseServer(args []string) (*ServerOptions, error) {
	o := &ServerOptions{
		Addr:     "localhost:8080",
		Users:    "admin:admin",
		CertDir:  "certs",
		LogLevel: "info",
	}

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.StringVar(&o.Addr, "a", o.Addr, "run on ip:port server")
	fs.StringVar(&o.Users, "users", o.Users, "accepted credentials user:pass,...")
	fs.BoolVar(&o.TLS, "tls", false, "serve HTTPS with a self-signed certificate")
	fs.StringVar(&o.CertDir, "certs", o.CertDir, "directory for generated certificates")
	fs.StringVar(&o.LogLevel, "log-level", o.LogLevel, "log level")
	fs.StringVar(&o.Config, "config", "", "path to config file")
	fs.StringVar(&o.Config, "c", "", "path to config file (shorthand)")

	if err := load(fs, args, &o.Config, o); err != nil {
		return nil, err
	}
	return o, nil
}

// load applies flags, the config file, flags again so explicit flags win
// over the file, then the environment.
func load(fs *flag.FlagSet, args []string, configPath *string, dst any) error {
	if err := fs.Parse(args); err != nil {
		return err
	}

	if p := os.Getenv("CONFIG"); p != "" {
		*configPath = p
	}
	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			return fmt.Errorf("error while reading config file: %w", err)
		}
		if err := json.Unmarshal(data, dst); err != nil {
			return fmt.Errorf("error while parsing config file: %w", err)
		}
		if err := fs.Parse(args); err != nil {
			return err
		}
	}

	if err := env.Parse(dst); err != nil {
		return fmt.Errorf("error while parsing environment: %w", err)
	}
	return nil
}
