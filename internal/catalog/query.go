package catalog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultTop = 50
	MaxTop     = 1000
	MaxSkip    = 10000

	odataTimeLayout = "2006-01-02T15:04:05.000Z"
)

// Search is a structured product search rendered to the catalog's OData
// query string. Only Collection is mandatory.
type Search struct {
	Collection   string
	Instrument   string
	NameContains string
	// Area is a WKT geometry in SRID 4326, e.g. POLYGON ((...)).
	Area       string
	OnlineOnly bool
	// Start and End bound ContentDate/Start as [Start, End).
	Start time.Time
	End   time.Time
	Top   int
	Skip  int
}

func (s Search) Validate() error {
	if strings.TrimSpace(s.Collection) == "" {
		return errors.New("search collection is required")
	}
	if s.Top < 0 || s.Top > MaxTop {
		return fmt.Errorf("search top must be within 0..%d (got %d)", MaxTop, s.Top)
	}
	if s.Skip < 0 || s.Skip > MaxSkip {
		return fmt.Errorf("search skip must be within 0..%d (got %d)", MaxSkip, s.Skip)
	}
	if !s.Start.IsZero() && !s.End.IsZero() && !s.Start.Before(s.End) {
		return fmt.Errorf("search start %s must be before end %s", s.Start.Format(time.RFC3339), s.End.Format(time.RFC3339))
	}
	if area := strings.TrimSpace(s.Area); area != "" && !isWKT(area) {
		return fmt.Errorf("search area must be a WKT geometry (got %q)", area)
	}
	return nil
}

// Expression renders the query string that follows "Products?". Results
// are ordered by ContentDate/Start descending and expand attributes and
// assets.
func (s Search) Expression() (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}

	clauses := []string{"Collection/Name eq " + literal(s.Collection)}
	if v := strings.TrimSpace(s.Instrument); v != "" {
		clauses = append(clauses, "Attributes/OData.CSC.StringAttribute/any(att:att/Name eq 'instrumentShortName' and att/OData.CSC.StringAttribute/Value eq "+literal(v)+")")
	}
	if v := strings.TrimSpace(s.NameContains); v != "" {
		clauses = append(clauses, "contains(Name,"+literal(v)+")")
	}
	if v := strings.TrimSpace(s.Area); v != "" {
		clauses = append(clauses, "OData.CSC.Intersects(area=geography'SRID=4326;"+v+"')")
	}
	if s.OnlineOnly {
		clauses = append(clauses, "Online eq true")
	}
	if !s.Start.IsZero() {
		clauses = append(clauses, "ContentDate/Start ge "+s.Start.UTC().Format(odataTimeLayout))
	}
	if !s.End.IsZero() {
		clauses = append(clauses, "ContentDate/Start lt "+s.End.UTC().Format(odataTimeLayout))
	}

	top := s.Top
	if top == 0 {
		top = DefaultTop
	}

	params := []string{
		"$filter=" + escape("("+strings.Join(clauses, " and ")+")"),
		"$orderby=" + escape("ContentDate/Start desc"),
		"$expand=Attributes",
		"$count=True",
		"$top=" + strconv.Itoa(top),
		"$expand=Assets",
		"$skip=" + strconv.Itoa(s.Skip),
	}
	return strings.Join(params, "&"), nil
}

// literal quotes an OData string, doubling embedded quotes.
func literal(v string) string {
	return "'" + strings.ReplaceAll(strings.TrimSpace(v), "'", "''") + "'"
}

var queryEscaper = strings.NewReplacer(
	"%", "%25",
	" ", "%20",
	"'", "%27",
	"&", "%26",
	"#", "%23",
	"+", "%2B",
)

// escape percent-encodes only what breaks the query string; the catalog
// expects parentheses, commas and slashes verbatim.
func escape(v string) string {
	return queryEscaper.Replace(v)
}

func isWKT(v string) bool {
	upper := strings.ToUpper(v)
	for _, kind := range []string{"POLYGON", "MULTIPOLYGON", "POINT", "LINESTRING"} {
		if strings.HasPrefix(upper, kind) {
			return true
		}
	}
	return false
}
