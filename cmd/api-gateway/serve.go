package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/volunteer-scheduler-api/internal/handler"
	"github.com/noah-isme/volunteer-scheduler-api/internal/models"
	"github.com/noah-isme/volunteer-scheduler-api/internal/repository"
	"github.com/noah-isme/volunteer-scheduler-api/internal/router"
	"github.com/noah-isme/volunteer-scheduler-api/internal/service"
	"github.com/noah-isme/volunteer-scheduler-api/pkg/cache"
	"github.com/noah-isme/volunteer-scheduler-api/pkg/config"
	"github.com/noah-isme/volunteer-scheduler-api/pkg/database"
	"github.com/noah-isme/volunteer-scheduler-api/pkg/token"
)

const shutdownTimeout = 15 * time.Second

func serve(ctx context.Context, rt *runtime, migrate bool) error {
	cfg, logr := rt.cfg, rt.logger
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if migrate {
		if _, err := database.NewMigrator(db, logr).Up(ctx); err != nil {
			return err
		}
	}

	// Redis is optional: without it the posting cache degrades to misses.
	var redisClient redis.UniversalClient
	checks := map[string]handler.Pinger{"postgres": db.PingContext}
	if cfg.Cache.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, posting cache disabled", zap.Error(err))
		} else {
			defer client.Close()
			redisClient = client
			checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		}
	}

	loc := cfg.Schedule.Location()
	validate := validator.New()
	metrics := service.NewMetricsService()
	signer := token.NewSigner(cfg.Tokens.Secret)

	users := repository.NewUserRepository(db)
	postings := repository.NewPostingRepository(db)
	shifts := repository.NewShiftRepository(db)
	signups := repository.NewSignupRepository(db)
	catalog := repository.NewCatalogRepository(db)
	invites := repository.NewInviteRepository(db)

	cacheSvc := service.NewCacheService(repository.NewCacheRepository(redisClient, logr), metrics, cfg.Cache.PostingsTTL, logr, cfg.Cache.Enabled && redisClient != nil)
	postingSvc := service.NewPostingService(postings, shifts, catalog, users, users, cacheSvc, metrics, db, validate, logr, service.PostingConfig{
		Location: loc,
		CacheTTL: cfg.Cache.PostingsTTL,
	})
	signupSvc := service.NewSignupService(signups, shifts, db, metrics, validate, logr, loc)
	reviewSvc := service.NewReviewService(postings, signups, users, db, metrics, validate, logr, loc)
	exportSvc := service.NewExportService(reviewSvc, logr, loc)
	userSvc := service.NewUserService(users, catalog, db, validate, logr)
	authSvc := service.NewAuthService(users, invites, signer, db, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		ResetTokenExpiry:   cfg.Tokens.ResetTTL,
		Issuer:             cfg.JWT.Issuer,
		SingleSession:      cfg.JWT.SingleSession,
		ExposeResetToken:   cfg.Env != config.EnvProduction,
	})
	inviteSvc := service.NewInviteService(invites, users, signer, users, validate, logr, cfg.Tokens.InviteTTL)
	catalogSvc := service.NewCatalogService(catalog, cacheSvc, validate, logr)

	audit := service.NewAuditDispatcher(users, logr)
	audit.Start(ctx)
	defer audit.Stop()

	engine := router.New(router.Options{
		APIPrefix:      cfg.APIPrefix,
		MetricsPath:    cfg.Metrics.Path,
		MetricsEnabled: cfg.Metrics.Enabled,
		Docs:           cfg.Env != config.EnvProduction,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	}, router.Deps{
		Logger:  logr,
		Tokens:  authSvc,
		Audit:   audit,
		Metrics: metrics,
	}, router.Handlers{
		Auth:      handler.NewAuthHandler(authSvc, userSvc),
		Users:     handler.NewUserHandler(userSvc),
		Invites:   handler.NewInviteHandler(inviteSvc),
		Branches:  handler.NewCatalogHandler(catalogSvc, models.CatalogBranches),
		Skills:    handler.NewCatalogHandler(catalogSvc, models.CatalogSkills),
		Languages: handler.NewCatalogHandler(catalogSvc, models.CatalogLanguages),
		Postings:  handler.NewPostingHandler(postingSvc),
		Signups:   handler.NewSignupHandler(signupSvc),
		Reviews:   handler.NewReviewHandler(reviewSvc, exportSvc),
		Ops:       handler.NewMetricsHandler(metrics, checks),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env), zap.String("timezone", loc.String()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
