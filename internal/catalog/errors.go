package catalog

import (
	"fmt"
	"strings"
)

// QueryError reports a failed or unparseable catalog query.
type QueryError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *QueryError) Error() string {
	var b strings.Builder
	b.WriteString("catalog query failed")
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
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

func (e *QueryError) Unwrap() error {
	return e.Err
}
