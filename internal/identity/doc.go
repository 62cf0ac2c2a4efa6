// Package identity exchanges user credentials for OAuth2 tokens at a
// Keycloak-style token endpoint.
//
// Two grants are used against the same endpoint with a public client id:
//   - password: username + password -> access token + refresh token
//   - refresh_token: refresh token -> new access token + new refresh token
//
// The provider is expected to rotate the refresh token on every refresh; a
// response without a refresh token is rejected as malformed. Every failure
// is returned as *AuthenticationError and carries the provider's raw
// response body when one was received. Nothing is cached or retried.
package identity
