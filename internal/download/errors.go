package download

import (
	"fmt"
	"strings"
)

// TransferError reports a network or filesystem failure while resolving or
// streaming one product. A partially written file is left in place.
type TransferError struct {
	ProductID  string
	Path       string
	StatusCode int
	Err        error
}

func (e *TransferError) Error() string {
	var b strings.Builder
	b.WriteString("transfer failed")
	if e.ProductID != "" {
		fmt.Fprintf(&b, " for product %s", e.ProductID)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " (%s)", e.Path)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// TooManyRedirectsError is returned when the asset is still redirecting
// after Limit followed hops.
type TooManyRedirectsError struct {
	Limit   int
	LastURL string
}

func (e *TooManyRedirectsError) Error() string {
	return fmt.Sprintf("stopped after %d redirects (last location %s)", e.Limit, e.LastURL)
}

// SizeMismatchError is returned when size verification is enabled and the
// stream ended at a different length than content-length announced.
type SizeMismatchError struct {
	Expected int64
	Written  int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("wrote %d bytes, content-length announced %d", e.Written, e.Expected)
}
