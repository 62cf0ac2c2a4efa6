package identity

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

const (
	DefaultTokenURL = "https://identity.dataspace.copernicus.eu/auth/realms/CDSE/protocol/openid-connect/token"
	DefaultClientID = "cdse-public"

	grantPassword = "password"
	grantRefresh  = "refresh_token"

	// oauth2 itself stops reading token responses at 1 MiB.
	maxRecordedBody = 1 << 20
)

// Credentials is the token pair issued by the provider. A refresh replaces
// it wholesale.
type Credentials struct {
	AccessToken  string
	RefreshToken string
}

// Client is not safe for concurrent use.
type Client struct {
	oauth      oauth2.Config
	httpClient *http.Client
}

func NewClient(tokenURL, clientID string, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(tokenURL) == "" {
		return nil, errors.New("token url is required")
	}
	if strings.TrimSpace(clientID) == "" {
		return nil, errors.New("client id is required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		oauth: oauth2.Config{
			ClientID: clientID,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: httpClient,
	}, nil
}

// Acquire performs the password grant.
func (c *Client) Acquire(ctx context.Context, username, password string) (Credentials, error) {
	if strings.TrimSpace(username) == "" {
		return Credentials{}, &AuthenticationError{Grant: grantPassword, Err: errors.New("username is required")}
	}
	if password == "" {
		return Credentials{}, &AuthenticationError{Grant: grantPassword, Err: errors.New("password is required")}
	}
	return c.exchange(ctx, grantPassword, func(ctx context.Context) (*oauth2.Token, error) {
		return c.oauth.PasswordCredentialsToken(ctx, username, password)
	})
}

// Refresh trades refreshToken for a new token pair. The old refresh token
// must not be used again afterwards.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (Credentials, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return Credentials{}, &AuthenticationError{Grant: grantRefresh, Err: errors.New("refresh token is required")}
	}
	return c.exchange(ctx, grantRefresh, func(ctx context.Context) (*oauth2.Token, error) {
		// A token without an access token is never valid, so the source
		// always goes to the endpoint.
		return c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	})
}

func (c *Client) exchange(ctx context.Context, grant string, fetch func(context.Context) (*oauth2.Token, error)) (Credentials, error) {
	rec := &recordingTransport{base: c.httpClient.Transport}
	hc := *c.httpClient
	hc.Transport = rec

	tok, err := fetch(context.WithValue(ctx, oauth2.HTTPClient, &hc))
	if err != nil {
		return Credentials{}, rec.authError(grant, unwrapRetrieve(err))
	}
	creds, err := credentialsFrom(tok)
	if err != nil {
		return Credentials{}, rec.authError(grant, err)
	}
	return creds, nil
}

func credentialsFrom(tok *oauth2.Token) (Credentials, error) {
	if tok == nil || tok.AccessToken == "" {
		return Credentials{}, ErrMissingAccessToken
	}
	// oauth2 backfills RefreshToken with the one that was sent, so the raw
	// response is the only place a rotated token can be checked.
	refresh, _ := tok.Extra("refresh_token").(string)
	if strings.TrimSpace(refresh) == "" {
		return Credentials{}, ErrMissingRefreshToken
	}
	return Credentials{AccessToken: tok.AccessToken, RefreshToken: refresh}, nil
}

// unwrapRetrieve drops the response carried by *oauth2.RetrieveError; the
// status and body are reported from the recorded exchange instead.
func unwrapRetrieve(err error) error {
	var rerr *oauth2.RetrieveError
	if !errors.As(err, &rerr) {
		return err
	}
	if rerr.ErrorCode != "" {
		if rerr.ErrorDescription != "" {
			return errors.New(rerr.ErrorCode + ": " + rerr.ErrorDescription)
		}
		return errors.New(rerr.ErrorCode)
	}
	if rerr.Response != nil {
		return errors.New(rerr.Response.Status)
	}
	return errors.New("token endpoint rejected the request")
}

// recordingTransport keeps a copy of the last token response so failures
// can surface what the provider actually said.
type recordingTransport struct {
	base   http.RoundTripper
	status int
	body   bytes.Buffer
}

func (t *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	t.status = resp.StatusCode
	t.body.Reset()
	resp.Body = &teeReadCloser{
		Reader: io.TeeReader(resp.Body, &limitedWriter{w: &t.body, n: maxRecordedBody}),
		closer: resp.Body,
	}
	return resp, nil
}

func (t *recordingTransport) authError(grant string, err error) *AuthenticationError {
	return &AuthenticationError{
		Grant:      grant,
		StatusCode: t.status,
		Body:       t.body.String(),
		Err:        err,
	}
}

type teeReadCloser struct {
	io.Reader
	closer io.Closer
}

func (t *teeReadCloser) Close() error {
	return t.closer.Close()
}

type limitedWriter struct {
	w io.Writer
	n int
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if l.n <= 0 {
		return len(p), nil
	}
	chunk := p
	if len(chunk) > l.n {
		chunk = chunk[:l.n]
	}
	written, err := l.w.Write(chunk)
	l.n -= written
	if err != nil {
		return written, err
	}
	return len(p), nil
}
