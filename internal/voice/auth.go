package voice

import (
	"context"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// NewTokenSource returns a cached client-credentials token source for the
// EVI API. The API key and secret key are the client id and secret.
func NewTokenSource(ctx context.Context, baseURL, apiKey, secretKey string) oauth2.TokenSource {
	cfg := &clientcredentials.Config{
		ClientID:     apiKey,
		ClientSecret: secretKey,
		TokenURL:     strings.TrimRight(baseURL, "/") + "/oauth2-cc/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	return cfg.TokenSource(ctx)
}
