// Package main generates a Certificate Authority (CA) and a server
// certificate for the development gallery, writing them under a
// certificate directory. Clients trust the gallery with -ca <dir>/ca.crt.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/atinyakov/GalleryKeeper/internal/certgen"
)

func main() {
	dir := flag.String("dir", "certs", "output directory")
	hosts := flag.String("hosts", "localhost,127.0.0.1", "comma-separated server names and IPs")
	flag.Parse()

	if err := run(*dir, splitHosts(*hosts)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("Certificates generated into %s, clients trust %s\n", *dir, caPath(*dir))
}

func run(dir string, hosts []string) error {
	if _, err := certgen.EnsureServerTLS(dir, hosts); err != nil {
		return fmt.Errorf("generate certificates: %w", err)
	}
	return nil
}

func splitHosts(s string) []string {
	var out []string
	for _, h := range strings.Split(s, ",") {
		if h = strings.TrimSpace(h); h != "" {
			out = append(out, h)
		}
	}
	return out
}

// caPath is the CA certificate clients should trust.
func caPath(dir string) string {
	return filepath.Join(dir, certgen.CACertFile)
}
