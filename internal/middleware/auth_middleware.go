package middleware

import (
	"net/http"
	"strings"

	"stayhub/internal/metrics"
	"stayhub/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	TenantIDKey   = "tenant_id"
	ModulesKey    = "tenant_modules"
	ServiceSubKey = "service_subject"
)

// ServiceClaims is the service-to-service token payload. The modules claim is
// untrusted input and kept as raw values for the registry to normalize.
type ServiceClaims struct {
	TenantID string `json:"tenant_id"`
	Modules  []any  `json:"modules"`
	jwt.RegisteredClaims
}

func AuthMiddleware(secret string, counters *metrics.Counters) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearer(c)
		if token == "" {
			reject(c, counters)
			return
		}

		claims := &ServiceClaims{}
		parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !parsed.Valid {
			reject(c, counters)
			return
		}

		c.Set(TenantIDKey, claims.TenantID)
		c.Set(ModulesKey, claims.Modules)
		c.Set(ServiceSubKey, claims.Subject)
		c.Next()
	}
}

func reject(c *gin.Context, counters *metrics.Counters) {
	if counters != nil {
		counters.IncUnauthorized()
	}
	c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
	c.Abort()
}

func extractBearer(c *gin.Context) string {
	value := c.GetHeader("Authorization")
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
