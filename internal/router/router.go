// Package router assembles the gin engine: ambient middleware, ops endpoints
// and the role-guarded API routes.
package router

import (
	"strings"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/volunteer-scheduler-api/internal/handler"
	"github.com/noah-isme/volunteer-scheduler-api/internal/middleware"
	"github.com/noah-isme/volunteer-scheduler-api/internal/models"
	"github.com/noah-isme/volunteer-scheduler-api/internal/service"
	"github.com/noah-isme/volunteer-scheduler-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/volunteer-scheduler-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/volunteer-scheduler-api/pkg/middleware/requestid"
)

// Options are the HTTP-facing settings taken from config.
type Options struct {
	APIPrefix      string
	MetricsPath    string
	MetricsEnabled bool
	Docs           bool
	AllowedOrigins []string
}

// Handlers groups every HTTP handler the API serves.
type Handlers struct {
	Auth      *handler.AuthHandler
	Users     *handler.UserHandler
	Invites   *handler.InviteHandler
	Branches  *handler.CatalogHandler
	Skills    *handler.CatalogHandler
	Languages *handler.CatalogHandler
	Postings  *handler.PostingHandler
	Signups   *handler.SignupHandler
	Reviews   *handler.ReviewHandler
	Ops       *handler.MetricsHandler
}

// Deps are the cross-cutting collaborators middleware needs.
type Deps struct {
	Logger  *zap.Logger
	Tokens  middleware.TokenValidator
	Audit   middleware.AuditWriter
	Metrics *service.MetricsService
}

// New builds the engine.
func New(opts Options, deps Deps, h Handlers) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if opts.APIPrefix == "" {
		opts.APIPrefix = "/api/v1"
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(deps.Logger))
	r.Use(corsmiddleware.New(opts.AllowedOrigins))
	r.Use(middleware.Metrics(deps.Metrics))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", h.Ops.Health)
	r.GET("/ready", h.Ops.Ready)
	if opts.MetricsEnabled {
		r.GET(opts.MetricsPath, h.Ops.Prometheus)
	}
	if opts.Docs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	admin := middleware.RequireRoles(models.RoleAdmin)
	adminOrSelf := middleware.RBAC(string(models.RoleAdmin), middleware.SelfAccess)

	api := r.Group(opts.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", h.Auth.Login)
	auth.POST("/signup", h.Auth.Signup)
	auth.POST("/refresh", h.Auth.Refresh)
	auth.POST("/forgot-password", h.Auth.ForgotPassword)
	auth.POST("/reset-password", h.Auth.ResetPassword)

	secured := api.Group("")
	secured.Use(middleware.JWT(deps.Tokens))

	secured.POST("/auth/logout", h.Auth.Logout)
	secured.POST("/auth/change-password", h.Auth.ChangePassword)
	secured.GET("/auth/me", h.Auth.Me)

	postings := secured.Group("/postings")
	postings.GET("", h.Postings.List)
	postings.POST("", admin, h.Postings.Create)
	postings.POST("/drafts/review", admin, h.Postings.ReviewDraft)
	postings.GET("/:id", h.Postings.Get)
	postings.PUT("/:id", admin, h.Postings.Update)
	postings.DELETE("/:id", admin, h.Postings.Delete)
	postings.POST("/:id/publish", admin, h.Postings.Publish)
	postings.GET("/:id/shifts", h.Postings.Shifts)
	postings.GET("/:id/review", h.Reviews.Get)
	postings.POST("/:id/review/confirm", admin, h.Reviews.Confirm)
	postings.POST("/:id/review/publish", admin, h.Reviews.Publish)
	postings.GET("/:id/review/export", h.Reviews.Export)

	secured.POST("/shifts/preview", admin, h.Postings.PreviewShifts)
	secured.POST("/signups/batch", h.Signups.Batch)

	users := secured.Group("/users")
	users.GET("", admin, h.Users.List)
	users.GET("/:id", adminOrSelf, h.Users.Get)
	users.PUT("/:id", adminOrSelf, h.Users.Update)
	users.DELETE("/:id", admin, h.Users.Delete)
	users.GET("/:id/signups", adminOrSelf, h.Signups.ListByUser)

	invites := secured.Group("/user-invites", admin)
	invites.GET("", h.Invites.List)
	invites.POST("", h.Invites.Create)
	invites.DELETE("/:id", h.Invites.Delete)

	catalogue(secured, "/branches", h.Branches, admin, deps)
	catalogue(secured, "/skills", h.Skills, admin, deps)
	catalogue(secured, "/languages", h.Languages, admin, deps)

	secured.GET("/metrics/summary", admin, h.Ops.Summary)

	return r
}

func catalogue(parent *gin.RouterGroup, path string, h *handler.CatalogHandler, admin gin.HandlerFunc, deps Deps) {
	group := parent.Group(path)
	group.GET("", h.List)

	guards := []gin.HandlerFunc{admin}
	if deps.Audit != nil {
		guards = append(guards, middleware.Audit(deps.Audit, deps.Logger, models.AuditActionCatalogChange, strings.TrimPrefix(path, "/")))
	}
	write := func(final gin.HandlerFunc) []gin.HandlerFunc {
		chain := make([]gin.HandlerFunc, 0, len(guards)+1)
		return append(append(chain, guards...), final)
	}
	group.POST("", write(h.Create)...)
	group.PUT("/:id", write(h.Rename)...)
	group.DELETE("/:id", write(h.Delete)...)
}
