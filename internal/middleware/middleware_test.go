package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/resto-audit-api/internal/models"
	"github.com/noah-isme/resto-audit-api/pkg/logger"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims models.JWTClaims, method jwt.SigningMethod, key interface{}) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func validClaims() models.JWTClaims {
	return models.JWTClaims{
		UserID:   "manager-1",
		TenantID: "tenant-1",
		Role:     models.RoleManager,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "identity",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func newProtectedRouter(roles ...models.UserRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers := []gin.HandlerFunc{Authorization(testSecret, "identity")}
	if len(roles) > 0 {
		handlers = append(handlers, RequireRoles(roles...))
	}
	handlers = append(handlers, func(c *gin.Context) {
		claims := c.MustGet(ContextUserKey).(*models.JWTClaims)
		c.JSON(http.StatusOK, gin.H{"user": claims.UserID, "tenant": c.GetString(logger.TenantContextKey)})
	})
	r.GET("/protected", handlers...)
	return r
}

func call(r *gin.Engine, header string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestAuthorizationAcceptsValidToken(t *testing.T) {
	r := newProtectedRouter()
	token := signToken(t, validClaims(), jwt.SigningMethodHS256, []byte(testSecret))

	w := call(r, "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"manager-1","tenant":"tenant-1"}`, w.Body.String())
}

func TestAuthorizationRejections(t *testing.T) {
	r := newProtectedRouter()

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	foreignIssuer := validClaims()
	foreignIssuer.Issuer = "someone-else"
	noTenant := validClaims()
	noTenant.TenantID = ""
	badRole := validClaims()
	badRole.Role = "owner"

	cases := map[string]string{
		"missing header":  "",
		"basic scheme":    "Basic abc",
		"garbage token":   "Bearer not-a-jwt",
		"wrong secret":    "Bearer " + signToken(t, validClaims(), jwt.SigningMethodHS256, []byte("other")),
		"wrong algorithm": "Bearer " + signToken(t, validClaims(), jwt.SigningMethodHS512, []byte(testSecret)),
		"expired":         "Bearer " + signToken(t, expired, jwt.SigningMethodHS256, []byte(testSecret)),
		"foreign issuer":  "Bearer " + signToken(t, foreignIssuer, jwt.SigningMethodHS256, []byte(testSecret)),
		"no tenant":       "Bearer " + signToken(t, noTenant, jwt.SigningMethodHS256, []byte(testSecret)),
		"unknown role":    "Bearer " + signToken(t, badRole, jwt.SigningMethodHS256, []byte(testSecret)),
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			w := call(r, header)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), `"success":false`)
		})
	}
}

func TestRequireRoles(t *testing.T) {
	r := newProtectedRouter(models.RoleAdmin)

	manager := signToken(t, validClaims(), jwt.SigningMethodHS256, []byte(testSecret))
	assert.Equal(t, http.StatusForbidden, call(r, "Bearer "+manager).Code)

	admin := validClaims()
	admin.Role = models.RoleAdmin
	assert.Equal(t, http.StatusOK, call(r, "Bearer "+signToken(t, admin, jwt.SigningMethodHS256, []byte(testSecret))).Code)
}

func TestResponseMeta(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(WithResponseMeta())
	r.GET("/stats", func(c *gin.Context) {
		SetCacheHit(c, true)
		c.JSON(http.StatusOK, ExtractMeta(c))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cache_hit":true`)
	assert.Contains(t, w.Body.String(), `"processing_time_ms"`)
}
