// Package secret obtains the account password without echoing it.
package secret

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/animus-labs/sentinel-fetch/internal/platform/env"
)

var ErrEmptyPassword = errors.New("password is empty")

// Reader takes the password from an environment variable when it is set,
// otherwise from a no-echo terminal prompt.
type Reader struct {
	envKey string
	prompt string
	fd     int
	out    io.Writer

	isTerminal   func(fd int) bool
	readPassword func(fd int) ([]byte, error)
}

func NewTerminalReader(envKey string, in *os.File, out io.Writer) *Reader {
	if out == nil {
		out = io.Discard
	}
	return &Reader{
		envKey:       envKey,
		prompt:       "Password: ",
		fd:           int(in.Fd()),
		out:          out,
		isTerminal:   term.IsTerminal,
		readPassword: term.ReadPassword,
	}
}

func (r *Reader) Password() (string, error) {
	if r.envKey != "" {
		if v := env.String(r.envKey, ""); v != "" {
			return v, nil
		}
	}
	if !r.isTerminal(r.fd) {
		return "", fmt.Errorf("stdin is not a terminal; set %s to supply the password", r.envKey)
	}

	_, _ = io.WriteString(r.out, r.prompt)
	raw, err := r.readPassword(r.fd)
	_, _ = io.WriteString(r.out, "\n")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	defer clear(raw)
	if len(raw) == 0 {
		return "", ErrEmptyPassword
	}
	return string(raw), nil
}
