package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newCatalog(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(srv.URL+"/odata/v1/", srv.Client())
	if err != nil {
		t.Fatalf("NewClient() err=%v", err)
	}
	return client, srv
}

func TestQuerySingleProduct(t *testing.T) {
	var gotAuth, gotPath, gotQuery string
	client, _ := newCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"value":[{"Id":"abc-123","Name":"S5P_NO2_20230901"}]}`))
	})

	products, err := client.Query(context.Background(), "$filter=(Collection/Name%20eq%20%27SENTINEL-5P%27)&$top=50", "access-1")
	if err != nil {
		t.Fatalf("Query() err=%v", err)
	}
	if len(products) != 1 {
		t.Fatalf("len(products)=%d, want 1", len(products))
	}
	if products[0].ID != "abc-123" || products[0].Name != "S5P_NO2_20230901" {
		t.Fatalf("products[0]=%+v", products[0])
	}
	if gotAuth != "Bearer access-1" {
		t.Fatalf("Authorization=%q", gotAuth)
	}
	if gotPath != "/odata/v1/Products" {
		t.Fatalf("path=%q", gotPath)
	}
	if !strings.HasPrefix(gotQuery, "$filter=") {
		t.Fatalf("query=%q", gotQuery)
	}
}

func TestQueryPreservesServerOrder(t *testing.T) {
	client, _ := newCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"@odata.count":3,"value":[
			{"Id":"c","Name":"third","ContentLength":10,"Online":true,"ContentDate":{"Start":"2023-09-03T00:00:00.000Z","End":"2023-09-03T01:00:00.000Z"}},
			{"Id":"a","Name":"first"},
			{"Id":"b","Name":"second"}]}`))
	})

	products, err := client.Query(context.Background(), "$top=3", "t")
	if err != nil {
		t.Fatalf("Query() err=%v", err)
	}
	var ids []string
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	if strings.Join(ids, ",") != "c,a,b" {
		t.Fatalf("order=%v, want c,a,b", ids)
	}
	if products[0].ContentLength != 10 || !products[0].Online || products[0].ContentDate.Start.Day() != 3 {
		t.Fatalf("products[0]=%+v", products[0])
	}
}

func TestQueryEmptyResult(t *testing.T) {
	client, _ := newCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"value":[]}`))
	})
	products, err := client.Query(context.Background(), "$top=1", "t")
	if err != nil {
		t.Fatalf("Query() err=%v", err)
	}
	if len(products) != 0 {
		t.Fatalf("len(products)=%d, want 0", len(products))
	}
}

func TestQueryHTTPFailure(t *testing.T) {
	client, _ := newCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"Invalid filter"}`))
	})

	_, err := client.Query(context.Background(), "$filter=bogus", "t")
	var qerr *QueryError
	if !errors.As(err, &qerr) {
		t.Fatalf("Query() err=%v, want *QueryError", err)
	}
	if qerr.StatusCode != http.StatusBadRequest || !strings.Contains(qerr.Body, "Invalid filter") {
		t.Fatalf("QueryError=%+v", qerr)
	}
}

func TestQueryMalformedJSON(t *testing.T) {
	for name, body := range map[string]string{
		"not json":     `<html>oops</html>`,
		"no value":     `{"items":[]}`,
		"missing id":   `{"value":[{"Name":"x"}]}`,
		"missing name": `{"value":[{"Id":"x"}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			client, _ := newCatalog(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			})
			_, err := client.Query(context.Background(), "$top=1", "t")
			var qerr *QueryError
			if !errors.As(err, &qerr) {
				t.Fatalf("Query() err=%v, want *QueryError", err)
			}
		})
	}
}

func TestQueryRequiresExpression(t *testing.T) {
	client, err := NewClient(DefaultBaseURL, nil)
	if err != nil {
		t.Fatalf("NewClient() err=%v", err)
	}
	if _, err := client.Query(context.Background(), "  ", "t"); err == nil {
		t.Fatalf("Query() expected error for empty expression")
	}
}

func TestURLs(t *testing.T) {
	client, err := NewClient(DefaultBaseURL+"/", nil)
	if err != nil {
		t.Fatalf("NewClient() err=%v", err)
	}
	if got := client.ValueURL("abc-123"); got != "https://catalogue.dataspace.copernicus.eu/odata/v1/Products(abc-123)/$value" {
		t.Fatalf("ValueURL()=%q", got)
	}
	if got := client.ProductsURL("?&$top=1"); got != "https://catalogue.dataspace.copernicus.eu/odata/v1/Products?$top=1" {
		t.Fatalf("ProductsURL()=%q", got)
	}
	if _, err := NewClient("ftp://example.com", nil); err == nil {
		t.Fatalf("NewClient() expected error for ftp scheme")
	}
}
