package acl

import (
	"context"
	"net/http"

	"github.com/dghubble/oauth1"
)

// OAuth1Transport returns a transport decorator that signs every request with
// OAuth 1.0a user context using the consumer key pair and access token pair.
func OAuth1Transport(consumerKey, consumerSecret, accessToken, accessSecret string) func(http.RoundTripper) http.RoundTripper {
	return func(base http.RoundTripper) http.RoundTripper {
		cfg := oauth1.NewConfig(consumerKey, consumerSecret)
		token := oauth1.NewToken(accessToken, accessSecret)

		// oauth1 picks its base transport out of the context.
		ctx := context.WithValue(context.Background(), oauth1.HTTPClient, &http.Client{Transport: base})

		return cfg.Client(ctx, token).Transport
	}
}

// BearerAuth returns an AuthFunc that sets a bearer Authorization header.
func BearerAuth(token string) func(*http.Request) {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}
