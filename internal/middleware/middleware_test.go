package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/volunteer-scheduler-api/internal/models"
	"github.com/noah-isme/volunteer-scheduler-api/internal/service"
	appErrors "github.com/noah-isme/volunteer-scheduler-api/pkg/errors"
)

type validatorStub map[string]*models.JWTClaims

func (v validatorStub) ValidateToken(raw string) (*models.JWTClaims, error) {
	if claims, ok := v[raw]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

type auditWriterStub struct {
	logs []*models.AuditLog
}

func (a *auditWriterStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return errors.New("ignored")
}

var tokens = validatorStub{
	"admin":     {UserID: "u-admin", Role: models.RoleAdmin},
	"volunteer": {UserID: "u-vol", Role: models.RoleVolunteer},
}

func protectedRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handlers := append([]gin.HandlerFunc{JWT(tokens)}, mw...)
	handlers = append(handlers, func(c *gin.Context) { c.Status(http.StatusNoContent) })
	router.GET("/users/:id", handlers...)
	return router
}

func serve(router http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestJWTRejectsMissingAndMalformedTokens(t *testing.T) {
	router := protectedRouter()

	assert.Equal(t, http.StatusUnauthorized, serve(router, "/users/x", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(router, "/users/x", "Token admin").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(router, "/users/x", "Bearer nope").Code)
	assert.Equal(t, http.StatusNoContent, serve(router, "/users/x", "Bearer admin").Code)
}

func TestRBACAllowsRolesAndSelf(t *testing.T) {
	router := protectedRouter(RBAC(string(models.RoleAdmin), SelfAccess))

	assert.Equal(t, http.StatusNoContent, serve(router, "/users/anyone", "Bearer admin").Code)
	assert.Equal(t, http.StatusNoContent, serve(router, "/users/u-vol", "Bearer volunteer").Code)

	rec := serve(router, "/users/someone-else", "Bearer volunteer")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	var body struct {
		Error appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, appErrors.ErrForbidden.Code, body.Error.Code)
}

func TestOptionalJWTNeverBlocks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/", OptionalJWT(tokens), func(c *gin.Context) {
		_, ok := c.Get(ContextUserKey)
		c.JSON(http.StatusOK, gin.H{"authenticated": ok})
	})

	assert.JSONEq(t, `{"authenticated":false}`, serve(router, "/", "Bearer nope").Body.String())
	assert.JSONEq(t, `{"authenticated":true}`, serve(router, "/", "Bearer volunteer").Body.String())
}

func TestAuditRecordsSuccessfulRequestsOnly(t *testing.T) {
	writer := &auditWriterStub{}
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(JWT(tokens))
	router.DELETE("/skills/:id", Audit(writer, nil, models.AuditActionCatalogChange, "skills"), func(c *gin.Context) {
		if c.Param("id") == "missing" {
			c.Status(http.StatusNotFound)
			return
		}
		c.Status(http.StatusNoContent)
	})

	for _, id := range []string{"s1", "missing"} {
		req := httptest.NewRequest(http.MethodDelete, "/skills/"+id, nil)
		req.Header.Set("Authorization", "Bearer admin")
		router.ServeHTTP(httptest.NewRecorder(), req)
	}

	require.Len(t, writer.logs, 1)
	entry := writer.logs[0]
	assert.Equal(t, models.AuditActionCatalogChange, entry.Action)
	require.NotNil(t, entry.ResourceID)
	assert.Equal(t, "s1", *entry.ResourceID)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, "u-admin", *entry.UserID)
}

func TestMetricsLabelsUnmatchedRoutes(t *testing.T) {
	metrics := service.NewMetricsService()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Metrics(metrics))
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(router, "/ok", "")
	serve(router, "/probe/../etc", "")

	assert.Equal(t, uint64(2), metrics.Snapshot().RequestsTotal)
}

func TestResponseMetaStampsProcessingTime(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var meta map[string]interface{}
	router := gin.New()
	router.Use(WithResponseMeta())
	router.GET("/", func(c *gin.Context) {
		SetMeta(c, "cache_hit", true)
		meta = ResponseMeta(c)
		c.JSON(http.StatusOK, gin.H{"meta": meta})
	})

	rec := serve(router, "/", "")
	assert.Equal(t, true, meta["cache_hit"])
	assert.Contains(t, meta, "processing_time_ms")
	assert.Contains(t, rec.Body.String(), `"processing_time_ms":`)
}

func TestResponseMetaWithoutMiddlewareHasNoTiming(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var meta map[string]interface{}
	router := gin.New()
	router.GET("/", func(c *gin.Context) {
		meta = ResponseMeta(c)
		c.Status(http.StatusOK)
	})

	serve(router, "/", "")
	assert.NotNil(t, meta)
	assert.NotContains(t, meta, "processing_time_ms")
}
