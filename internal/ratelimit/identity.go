package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// Class is the caller category that decides whether limits apply.
type Class int

// Caller classes.
const (
	ClassGuest Class = iota
	ClassUser
	ClassAPIKey
)

func (c Class) String() string {
	switch c {
	case ClassUser:
		return "user"
	case ClassAPIKey:
		return "apikey"
	default:
		return "guest"
	}
}

// apiKeyPrefixLen is how much of an API key contributes to its identity.
const apiKeyPrefixLen = 8

// Identity is the derived caller key used for counting.
type Identity struct {
	Key   string
	Class Class
}

// Exempt reports whether the identity bypasses every tier.
func (i Identity) Exempt() bool {
	return i.Class != ClassGuest
}

// KeyVerifier checks long-lived API credentials.
type KeyVerifier interface {
	VerifyAPIKey(key string) bool
}

// TokenDecoder decodes a bearer token into its subject.
type TokenDecoder interface {
	DecodeSubject(token string) (subject string, guest bool, err error)
}

// Resolver derives an Identity from a request.
type Resolver struct {
	keys   KeyVerifier
	tokens TokenDecoder
}

// NewResolver creates a Resolver. Either dependency may be nil, in which
// case the corresponding credential is ignored.
func NewResolver(keys KeyVerifier, tokens TokenDecoder) *Resolver {
	return &Resolver{keys: keys, tokens: tokens}
}

// Resolve applies, in order: a verified X-API-Key yields an exempt
// apikey identity; a bearer token for a non-guest subject yields an exempt
// user identity; everything else, including undecodable tokens and invalid
// API keys, is a guest keyed by source address.
func (r *Resolver) Resolve(req *http.Request) Identity {
	if key := req.Header.Get("X-API-Key"); key != "" && r.keys != nil && r.keys.VerifyAPIKey(key) {
		return APIKeyIdentity(key)
	}

	guest := GuestIdentity(req)

	token, ok := BearerToken(req)
	if !ok || r.tokens == nil {
		return guest
	}
	subject, isGuest, err := r.tokens.DecodeSubject(token)
	if err != nil || isGuest || subject == "" {
		return guest
	}
	return UserIdentity(subject)
}

// APIKeyIdentity is the identity of a verified API key. Only a prefix of
// the key is kept.
func APIKeyIdentity(key string) Identity {
	return Identity{Key: "apikey:" + prefix(key, apiKeyPrefixLen), Class: ClassAPIKey}
}

// UserIdentity is the identity of an authenticated non-guest subject.
func UserIdentity(subject string) Identity {
	return Identity{Key: "user:" + subject, Class: ClassUser}
}

// GuestIdentity is the identity of an unauthenticated or guest caller.
func GuestIdentity(r *http.Request) Identity {
	return Identity{Key: "guest:" + SourceAddress(r), Class: ClassGuest}
}

// SourceAddress extracts the client IP from RemoteAddr.
// Proxy headers (X-Forwarded-For, X-Real-Ip) are NOT trusted because
// they can be spoofed by attackers to bypass rate limiting.
func SourceAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const scheme = "Bearer "
	if len(h) <= len(scheme) || !strings.EqualFold(h[:len(scheme)], scheme) {
		return "", false
	}
	token := strings.TrimSpace(h[len(scheme):])
	return token, token != ""
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
