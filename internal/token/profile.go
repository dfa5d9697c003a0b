package token

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"
)

// Profile is the cached snapshot of the authenticated principal. It is a
// read cache for optimistic UI only; the server profile stays authoritative
// and the snapshot is never consulted for authorization decisions.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role,omitempty"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// Resolver maps a possibly-relative or legacy-host resource URL to an
// absolute, currently reachable one. Treated as an opaque pure function.
type Resolver func(url string) string

// normalize returns a copy of the profile with resource references passed
// through the resolver. Applied on every store, not only the first write,
// so re-cached profiles pick up host changes.
func (p Profile) normalize(resolve Resolver) Profile {
	if resolve == nil {
		return p
	}
	p.AvatarURL = resolve(p.AvatarURL)
	return p
}

// Claims are non-authoritative fields peeked from a token payload, used for
// display and logging only. Never a trust decision input: the signature is
// not checked.
type Claims struct {
	Subject  string
	IssuedAt time.Time
	Expiry   time.Time
}

// PeekClaims best-effort decodes the payload segment of a JWT-shaped token.
// Returns false for opaque tokens or malformed payloads.
func PeekClaims(token string) (Claims, bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Claims{}, false
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return Claims{}, false
	}

	var raw struct {
		Sub string `json:"sub"`
		Iat int64  `json:"iat"`
		Exp int64  `json:"exp"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Claims{}, false
	}

	claims := Claims{Subject: raw.Sub}
	if raw.Iat > 0 {
		claims.IssuedAt = time.Unix(raw.Iat, 0)
	}
	if raw.Exp > 0 {
		claims.Expiry = time.Unix(raw.Exp, 0)
	}
	return claims, true
}
