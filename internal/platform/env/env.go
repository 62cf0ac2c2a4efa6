package env

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Prefix scopes lookups to variables that share a common prefix, e.g.
// Prefix("SENTINEL_FETCH_").String("USERNAME", "") reads
// SENTINEL_FETCH_USERNAME. Values are trimmed; a variable that is set but
// blank is treated as unset.
type Prefix string

func (p Prefix) Key(name string) string {
	return string(p) + name
}

func (p Prefix) lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(p.Key(name))
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	return v, true
}

func (p Prefix) String(name string, def string) string {
	if v, ok := p.lookup(name); ok {
		return v
	}
	return def
}

func (p Prefix) Duration(name string, def time.Duration) (time.Duration, error) {
	if v, ok := p.lookup(name); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("parse %s: %w", p.Key(name), err)
		}
		return d, nil
	}
	return def, nil
}

func (p Prefix) Bool(name string, def bool) (bool, error) {
	if v, ok := p.lookup(name); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("parse %s: %w", p.Key(name), err)
		}
		return b, nil
	}
	return def, nil
}

func (p Prefix) Int(name string, def int) (int, error) {
	if v, ok := p.lookup(name); ok {
		i, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("parse %s: %w", p.Key(name), err)
		}
		return i, nil
	}
	return def, nil
}

// String reads an unprefixed variable.
func String(key string, def string) string {
	return Prefix("").String(key, def)
}
