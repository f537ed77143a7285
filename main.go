package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/onboardly/questengine/analytics"
	apirest "github.com/onboardly/questengine/api/rest"
	"github.com/onboardly/questengine/api/sse"
	"github.com/onboardly/questengine/cache"
	"github.com/onboardly/questengine/catalog"
	"github.com/onboardly/questengine/config"
	dbadapter "github.com/onboardly/questengine/db"
	"github.com/onboardly/questengine/hook"
	mw "github.com/onboardly/questengine/middleware"
	"github.com/onboardly/questengine/model"
	"github.com/onboardly/questengine/quest/badge"
	"github.com/onboardly/questengine/quest/notify"
	"github.com/onboardly/questengine/quest/progress"
	"github.com/onboardly/questengine/quest/template"
	"github.com/onboardly/questengine/scheduler"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	// Warn loudly if admin endpoints will be disabled.
	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized")

	// ---- Analytics ----
	events := analytics.New(db, logger)
	defer events.Stop(context.Background())

	// ---- Cache / PubSub ----
	cacheConfig := cache.Config{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized")

	// ---- Catalog ----
	loader := catalog.NewLoader(cfg.Onboarding.CatalogDir, logger)
	badgeDefs, err := loader.LoadBadges()
	if err != nil {
		log.Fatalf("catalog badges: %v", err)
	}
	templateDefs, err := loader.LoadTemplates()
	if err != nil {
		log.Fatalf("catalog templates: %v", err)
	}
	if err := catalog.CheckBadgeRefs(templateDefs, badgeDefs); err != nil {
		log.Fatalf("catalog: %v", err)
	}
	if err := loader.Seed(context.Background(), db, templateDefs); err != nil {
		log.Fatalf("catalog seed: %v", err)
	}
	logger.Info("Catalog loaded",
		zap.Int("templates", len(templateDefs)),
		zap.Int("badges", len(badgeDefs)))

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()

	// ---- Hooks ----
	hooks := hook.NewHookCenter()

	// ---- Services ----
	templates := template.NewStore(db, c, cfg.Onboarding.TemplateCacheTTL, logger)
	badges := badge.NewService(db, badge.NewCatalog(badgeDefs), logger)
	notifier := notify.New(pubsub, logger)
	tracker := progress.NewTracker(db, progress.Options{
		Templates: templates,
		Badges:    badges,
		Notifier:  notifier,
		Hooks:     hooks,
		Events:    events,
		Cache:     c,
		Retries:   cfg.Onboarding.TransitionRetries,
	}, logger)

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	// Health check
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	// ---- REST API routes ----
	authH := apirest.NewAuthHandler(db, c, cfg.Security)
	onboardingH := apirest.NewOnboardingHandler(tracker, logger)
	templateH := apirest.NewTemplateHandler(templates, logger)
	badgeH := apirest.NewBadgeHandler(badges, logger)
	rankH := apirest.NewRankingHandler(db, c, logger)
	adminH := apirest.NewAdminHandler(db, tracker, events, sched, logger)

	// ---- Periodic Scheduler Tasks ----
	sched.AddTicker("leaderboard_refresh", cfg.Onboarding.LeaderboardRefresh, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if n, err := rankH.RebuildLeaderboard(ctx); err != nil {
			logger.Warn("leaderboard refresh failed", zap.Error(err))
		} else {
			logger.Debug("leaderboard refreshed", zap.Int("entries", n))
		}
	})
	sched.AddTicker("template_cache_warm", cfg.Onboarding.TemplateCacheTTL, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		templates.WarmCache(ctx)
	})

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/login", authH.Login)
		authG.POST("/logout", mw.Auth(cfg.Security, c), authH.Logout)
		authG.POST("/refresh", mw.Auth(cfg.Security, c), authH.Refresh)

		onboardingG := api.Group("/onboarding")
		onboardingG.Use(mw.Auth(cfg.Security, c))
		onboardingG.POST("/start", onboardingH.Start)
		onboardingG.GET("/progress", onboardingH.Progress)
		onboardingG.GET("/next-step", onboardingH.NextStep)
		onboardingG.POST("/steps/:id/complete", onboardingH.CompleteStep)
		onboardingG.POST("/steps/:id/skip", onboardingH.SkipStep)

		templatesG := api.Group("/templates")
		templatesG.Use(mw.Auth(cfg.Security, c))
		templatesG.GET("", templateH.List)
		templatesG.GET("/:id", templateH.Get)

		badgesG := api.Group("/badges")
		badgesG.Use(mw.Auth(cfg.Security, c))
		badgesG.GET("", badgeH.Catalog)
		badgesG.GET("/earned", badgeH.Earned)

		rankG := api.Group("/ranking")
		rankG.GET("/points", rankH.TopPoints)

		adminG := api.Group("/admin")
		adminG.Use(apirest.AdminAuth(cfg.Server.AdminKey))
		adminG.GET("/metrics", adminH.Metrics)
		adminG.GET("/progress/:user_id", adminH.UserProgress)
		adminG.GET("/events", adminH.Events)
		adminG.POST("/accounts/:id/disable", adminH.DisableAccount)
		adminG.POST("/ranking/refresh", rankH.Refresh)
		adminG.GET("/scheduler", adminH.ListSchedulerTasks)
	}

	// ---- SSE ----
	sseH := sse.NewHandler(tracker, c, cfg.Security, logger)
	r.GET("/sse", sseH.ServeSSE)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Server listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
