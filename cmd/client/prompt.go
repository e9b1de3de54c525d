package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// readPassword prompts on out and reads a password without echo when stdin
// is a terminal, or a plain line from in otherwise.
func readPassword(out io.Writer, in *bufio.Scanner, prompt string) (string, error) {
	fmt.Fprint(out, prompt)

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}

	if !in.Scan() {
		if err := in.Err(); err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return "", io.ErrUnexpectedEOF
	}
	return in.Text(), nil
}
