package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

// TenantIDKey is the context key for the authenticated tenant ID.
const TenantIDKey contextKey = "tenant_id"

// TenantExtractor resolves the tenant for a request from the X-Tenant-Id
// header, falling back to the tenant query parameter. Requests without a
// tenant keep an empty ID; handlers that require one reject the request.
func TenantExtractor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := strings.TrimSpace(r.Header.Get("X-Tenant-Id"))
		if tenantID == "" {
			tenantID = strings.TrimSpace(r.URL.Query().Get("tenant"))
		}

		ctx := context.WithValue(r.Context(), TenantIDKey, tenantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetTenantID retrieves the tenant ID from the request context. Empty when
// the request did not identify a tenant.
func GetTenantID(ctx context.Context) string {
	if v, ok := ctx.Value(TenantIDKey).(string); ok {
		return v
	}
	return ""
}
