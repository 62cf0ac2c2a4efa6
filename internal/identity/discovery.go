package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
)

// DiscoverTokenURL resolves the token endpoint advertised by an OpenID
// Connect issuer, e.g. https://identity.dataspace.copernicus.eu/auth/realms/CDSE.
func DiscoverTokenURL(ctx context.Context, httpClient *http.Client, issuerURL string) (string, error) {
	issuerURL = strings.TrimRight(strings.TrimSpace(issuerURL), "/")
	if issuerURL == "" {
		return "", errors.New("issuer url is required")
	}
	if httpClient != nil {
		ctx = oidc.ClientContext(ctx, httpClient)
	}
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return "", fmt.Errorf("oidc provider: %w", err)
	}
	tokenURL := provider.Endpoint().TokenURL
	if tokenURL == "" {
		return "", fmt.Errorf("oidc provider %s advertises no token endpoint", issuerURL)
	}
	return tokenURL, nil
}
