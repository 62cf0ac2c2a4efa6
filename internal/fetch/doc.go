// Package fetch runs the product download workflow: authenticate once,
// query the catalog once, then for each product refresh the credentials
// and download the product with the refreshed access token.
//
// The workflow is strictly sequential. The catalog query uses the access
// token from the initial grant; every download uses the token returned by
// the refresh issued immediately before it.
package fetch
