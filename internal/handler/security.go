package handler

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-shop/internal/domain/auth"
)

// APIKeyHeader carries the staff API key. "Authorization: Bearer <key>" is
// accepted as well.
const APIKeyHeader = "api_key"

func apiKeyFromRequest(r *http.Request) string {
	if key := r.Header.Get(APIKeyHeader); key != "" {
		return key
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// StaffOnly lets through requests that present an active API key with the
// staff scope. The key is stored in the context for handlers.
func (h *Handler) StaffOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := apiKeyFromRequest(r)
		if key == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		hash := auth.HashKey(h.cfg.APIKeyPepper, key)
		info, err := h.apikeys.FindByHash(r.Context(), hash)
		if err != nil {
			zctx.From(r.Context()).Debug("API key rejected", zap.Error(err))
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		// The row must carry exactly the hash we computed.
		if subtle.ConstantTimeCompare([]byte(hash), []byte(info.KeyHash)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !info.IsStaff() {
			writeError(w, http.StatusForbidden, "staff access required")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), info)))
	})
}
