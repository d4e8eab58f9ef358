package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"slices"
)

// ScopeStaff grants access to the admin order views.
const ScopeStaff = "staff"

// APIKeyInfo holds the identity and permission data for a validated API key.
// Only active keys are ever returned by a Repository.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// HasScope reports whether the key was granted the given scope.
func (i *APIKeyInfo) HasScope(scope string) bool {
	return slices.Contains(i.Scopes, scope)
}

// IsStaff reports whether the key belongs to a staff identity.
func (i *APIKeyInfo) IsStaff() bool {
	return i.HasScope(ScopeStaff)
}

// HashKey returns the hex HMAC-SHA256 of key under pepper, as stored in
// the api_keys table.
func HashKey(pepper []byte, key string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// Repository provides lookup of active API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

type identityKey struct{}

// WithIdentity stores the authenticated key in the context.
func WithIdentity(ctx context.Context, info *APIKeyInfo) context.Context {
	return context.WithValue(ctx, identityKey{}, info)
}

// IdentityFromContext returns the authenticated key, if any.
func IdentityFromContext(ctx context.Context) (*APIKeyInfo, bool) {
	info, ok := ctx.Value(identityKey{}).(*APIKeyInfo)
	return info, ok && info != nil
}
