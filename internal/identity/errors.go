package identity

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingAccessToken  = errors.New("token response missing access_token")
	ErrMissingRefreshToken = errors.New("token response missing refresh_token")
)

// AuthenticationError reports a rejected or malformed token exchange.
type AuthenticationError struct {
	Grant      string
	StatusCode int
	Body       string
	Err        error
}

func (e *AuthenticationError) Error() string {
	var b strings.Builder
	b.WriteString("token creation failed")
	if e.Grant != "" {
		fmt.Fprintf(&b, " (%s grant", e.Grant)
		if e.StatusCode != 0 {
			fmt.Fprintf(&b, ", status %d", e.StatusCode)
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if body := strings.TrimSpace(e.Body); body != "" {
		b.WriteString(". Response from the server was: ")
		b.WriteString(body)
	}
	return b.String()
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}
