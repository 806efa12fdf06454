package auth

import (
	"net/http"
	"strings"
)

// CredentialKind classifies an inbound credential.
type CredentialKind int

const (
	KindNone CredentialKind = iota
	KindBearer
	KindAPIKey
)

func (k CredentialKind) String() string {
	switch k {
	case KindBearer:
		return "bearer"
	case KindAPIKey:
		return "api_key"
	default:
		return "none"
	}
}

// DefaultAPIKeyHeader is the explicit API-key header.
const DefaultAPIKeyHeader = "X-API-Key"

// DefaultAPIKeyPrefixes mark bearer tokens that are really API keys.
var DefaultAPIKeyPrefixes = []string{"sk_", "ak_"}

// CredentialOptions control credential extraction.
type CredentialOptions struct {
	// APIKeyHeader is checked before Authorization (default: X-API-Key).
	APIKeyHeader string

	// APIKeyPrefixes reclassify matching bearer tokens as API keys.
	// Nil selects DefaultAPIKeyPrefixes; an empty non-nil slice disables
	// reclassification.
	APIKeyPrefixes []string
}

func (o CredentialOptions) withDefaults() CredentialOptions {
	if o.APIKeyHeader == "" {
		o.APIKeyHeader = DefaultAPIKeyHeader
	}
	if o.APIKeyPrefixes == nil {
		o.APIKeyPrefixes = DefaultAPIKeyPrefixes
	}
	return o
}

// Credential is an extracted, classified credential.
type Credential struct {
	Kind  CredentialKind
	Value string

	// Reclassified is set when a bearer token was routed to the API-key
	// path because of its prefix.
	Reclassified bool

	// Headers are forwarded to the delegate alongside the body.
	Headers map[string]string
}

// ExtractCredential classifies the credential carried by headers.
// An explicit API-key header wins over Authorization. A bearer token with
// a configured API-key prefix is treated as an API key, and both the
// original Authorization header and a synthesized API-key header are
// forwarded.
func ExtractCredential(headers http.Header, opts CredentialOptions) Credential {
	opts = opts.withDefaults()

	if key := strings.TrimSpace(headers.Get(opts.APIKeyHeader)); key != "" {
		return Credential{
			Kind:    KindAPIKey,
			Value:   key,
			Headers: map[string]string{opts.APIKeyHeader: key},
		}
	}

	token, ok := bearerToken(headers.Get("Authorization"))
	if !ok {
		return Credential{Kind: KindNone}
	}

	for _, prefix := range opts.APIKeyPrefixes {
		if prefix != "" && strings.HasPrefix(token, prefix) {
			return Credential{
				Kind:         KindAPIKey,
				Value:        token,
				Reclassified: true,
				Headers: map[string]string{
					"Authorization":   "Bearer " + token,
					opts.APIKeyHeader: token,
				},
			}
		}
	}

	return Credential{
		Kind:    KindBearer,
		Value:   token,
		Headers: map[string]string{"Authorization": "Bearer " + token},
	}
}

// bearerToken parses "Bearer <token>" with a case-insensitive scheme.
func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
