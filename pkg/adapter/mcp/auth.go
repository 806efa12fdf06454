package mcp

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// OAuthConfig configures the OAuth 2.0 client_credentials grant.
type OAuthConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// buildHTTPClient layers static headers and, when configured, an OAuth
// token source over base. It returns base unchanged when neither is set.
func buildHTTPClient(base *http.Client, headers map[string]string, oauth *OAuthConfig) *http.Client {
	if len(headers) == 0 && oauth == nil {
		return base
	}
	if base == nil {
		base = http.DefaultClient
	}

	rt := base.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	if len(headers) > 0 {
		rt = &headerTransport{base: rt, headers: headers}
	}

	client := &http.Client{Transport: rt, CheckRedirect: base.CheckRedirect, Jar: base.Jar}
	if oauth == nil {
		return client
	}

	cc := clientcredentials.Config{
		ClientID:     oauth.ClientID,
		ClientSecret: oauth.ClientSecret,
		TokenURL:     oauth.TokenURL,
		Scopes:       oauth.Scopes,
	}
	// Token requests use the base client; only server calls carry the
	// static headers.
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	return &http.Client{
		Transport:     &oauth2.Transport{Source: cc.TokenSource(tokenCtx), Base: rt},
		CheckRedirect: base.CheckRedirect,
		Jar:           base.Jar,
	}
}

// headerTransport sets fixed headers on every request.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}
