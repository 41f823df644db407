package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/resto-audit-api/internal/middleware"
	"github.com/noah-isme/resto-audit-api/internal/models"
	appErrors "github.com/noah-isme/resto-audit-api/pkg/errors"
	"github.com/noah-isme/resto-audit-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// actorFromContext resolves the caller or writes a 401 and returns nil.
func actorFromContext(c *gin.Context) *models.AuthorizationContext {
	actor := models.FromClaims(claimsFromContext(c))
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil
	}
	return actor
}

// bindJSON decodes the body or writes a 400 and returns false.
func bindJSON(c *gin.Context, dest interface{}, what string) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid "+what+" payload"))
		return false
	}
	return true
}

func parseQueryInt(c *gin.Context, key string, def int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return val
}

// pageParams reads page and page_size, accepting limit as an alias.
func pageParams(c *gin.Context) (int, int) {
	size := parseQueryInt(c, "page_size", 0)
	if size == 0 {
		size = parseQueryInt(c, "limit", 0)
	}
	return parseQueryInt(c, "page", 1), size
}

// queryList merges repeated and comma separated values.
func queryList(c *gin.Context, key string) []string {
	var out []string
	for _, raw := range c.QueryArray(key) {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func queryBool(c *gin.Context, key string) bool {
	val, err := strconv.ParseBool(strings.TrimSpace(c.Query(key)))
	return err == nil && val
}

// queryFloat returns nil when absent and an error when malformed.
func queryFloat(c *gin.Context, key string) (*float64, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, key+" must be a number")
	}
	return &val, nil
}
