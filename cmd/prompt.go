package cmd

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// promptSecret asks for the share secret on the controlling terminal.
// ok is false when stdin is not a terminal.
var promptSecret = func(mode string) (secret string, ok bool, err error) { //nolint:gochecknoglobals
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", false, nil
	}
	if mode == "view" {
		fmt.Fprint(os.Stderr, "Share password: ")
	} else {
		fmt.Fprint(os.Stderr, "Choose a share password: ")
	}
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", true, fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimSpace(string(b)), true, nil
}
