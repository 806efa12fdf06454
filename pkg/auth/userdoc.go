package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoPrincipal is returned when a verifier response names no subject.
var ErrNoPrincipal = errors.New("response carries no principal")

// ParseUserDocument builds an Identity from a verifier response body.
// The user object may be nested under "user" or sit at the top level;
// the subject is taken from "id", "sub" or "user_id" in that order.
func ParseUserDocument(body []byte) (*Identity, error) {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decoding user document: %w", err)
	}

	user, nested := doc["user"].(map[string]any)
	if !nested {
		user = doc
	}

	subject := firstString(user, "id", "sub", "user_id")
	if subject == "" && nested {
		subject = firstString(doc, "sub", "user_id")
	}
	if subject == "" {
		return nil, ErrNoPrincipal
	}

	id := &Identity{
		Subject:     subject,
		ServiceTier: firstString(user, "service_tier", "tier"),
		Scopes:      scopesOf(user),
		Metadata:    make(map[string]string),
	}
	if tenant := firstString(user, "tenant_id", "org_id"); tenant != "" {
		id.Metadata["tenant_id"] = tenant
	}
	if email := firstString(user, "email"); email != "" {
		id.Metadata["email"] = email
	}
	if role := firstString(user, "role"); role != "" {
		id.Metadata["role"] = role
	}
	return id, nil
}

// firstString returns the first non-empty value among keys. Numeric ids
// are rendered without a fractional part.
func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}

// scopesOf reads "scopes" or "scope" as either a space-separated string
// or a JSON array.
func scopesOf(m map[string]any) []string {
	for _, key := range []string{"scopes", "scope"} {
		switch v := m[key].(type) {
		case string:
			if parts := strings.Fields(v); len(parts) > 0 {
				return parts
			}
		case []any:
			var out []string
			for _, item := range v {
				if s, ok := item.(string); ok {
					out = append(out, s)
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	return nil
}
