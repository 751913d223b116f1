package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rentwise/portal/handlers"
	"github.com/rentwise/portal/internal/checkout"
	"github.com/rentwise/portal/internal/config"
	"github.com/rentwise/portal/internal/contact"
	"github.com/rentwise/portal/internal/database"
	"github.com/rentwise/portal/internal/entitlements"
	"github.com/rentwise/portal/internal/guard"
	"github.com/rentwise/portal/internal/identity"
	"github.com/rentwise/portal/internal/invalidation"
	"github.com/rentwise/portal/internal/oidc"
	"github.com/rentwise/portal/internal/override"
	"github.com/rentwise/portal/internal/properties/repository"
	propservice "github.com/rentwise/portal/internal/properties/service"
	"github.com/rentwise/portal/internal/roles"
	"github.com/rentwise/portal/internal/sessions"
	"github.com/rentwise/portal/internal/storage"
	"github.com/rentwise/portal/internal/subscriptions"
	"github.com/rentwise/portal/internal/users"
	"github.com/rentwise/portal/pkg/logger"
	"github.com/rentwise/portal/pkg/metrics"
	"github.com/rentwise/portal/pkg/middleware"
	"go.mongodb.org/mongo-driver/mongo"
)

var startTime = time.Now()

func main() {
	// LOG_LEVEL: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: env=%s keycloak=%v mongo=%v redis=%v", cfg.Server.Environment, cfg.Keycloak.URL != "", cfg.MongoDB.URI != "", cfg.Redis.Host != "")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Redis backs invalidation, the token blacklist, refresh sessions and the
	// optional rate limiter. Without it everything falls back to in-process.
	var rdb *redis.Client
	if cfg.Redis.Host != "" {
		c := redis.NewClient(&redis.Options{Addr: cfg.Redis.Host + ":" + cfg.Redis.Port, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := c.Ping(ctx).Err(); err != nil {
			logger.Warnf("redis %s:%s unreachable, using in-process fallbacks: %v", cfg.Redis.Host, cfg.Redis.Port, err)
			_ = c.Close()
		} else {
			rdb = c
			defer func() { _ = rdb.Close() }()
			logger.Infof("connected to redis %s:%s", cfg.Redis.Host, cfg.Redis.Port)
		}
	}

	var ch invalidation.Channel = invalidation.NewLocalChannel()
	var sessRepo sessions.Repository = sessions.NewMemoryRepository()
	if rdb != nil {
		ch = invalidation.NewRedisChannel(rdb, "")
		sessRepo = sessions.NewRedisRepository(rdb, "")
	}
	blacklist := sessions.NewBlacklist(rdb)

	var (
		userRepo users.UserRepository     = users.NewMemoryUserRepository()
		subRepo  subscriptions.Repository = subscriptions.NewMemoryRepository()
		propRepo repository.Repository    = repository.NewMemoryRepo()
		mongoCli *mongo.Client
	)
	if cfg.MongoDB.URI != "" {
		mongoCli, err = database.ConnectWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, 5)
		if err != nil {
			logger.Warnf("mongodb unavailable, using in-memory stores: %v", err)
		} else {
			defer func() { _ = mongoCli.Disconnect(context.Background()) }()
			db := mongoCli.Database(cfg.MongoDB.Database)
			userRepo = users.NewMongoUserRepository(db.Collection("users"))
			if r, err := subscriptions.NewMongoRepository(ctx, db.Collection("subscriptions")); err != nil {
				logger.Fatalf("subscriptions index: %v", err)
			} else {
				subRepo = r
			}
			if r, err := repository.NewMongoRepo(ctx, db.Collection("properties")); err != nil {
				logger.Fatalf("properties index: %v", err)
			} else {
				propRepo = r
			}
			if rdb == nil {
				if r, err := sessions.NewMongoRepository(ctx, db.Collection("sessions")); err != nil {
					logger.Fatalf("sessions index: %v", err)
				} else {
					sessRepo = r
				}
			}
		}
	}

	// The identity provider is discovered in the background; until then
	// guarded views answer with the loading placeholder.
	holder := oidc.NewHolder()
	switch {
	case cfg.Issuer() != "" && cfg.Keycloak.ClientID != "":
		cc := oidc.ClientConfig{Issuer: cfg.Issuer(), ClientID: cfg.Keycloak.ClientID, ClientSecret: cfg.Keycloak.ClientSecret, RedirectURL: cfg.Keycloak.RedirectURL}
		go holder.Discover(ctx, func(ctx context.Context) (oidc.TokenVerifier, error) {
			return oidc.NewVerifier(ctx, cc)
		}, time.Second, 30*time.Second)
	case cfg.Keycloak.AllowInsecureToken:
		logger.Warn("enabling insecure OIDC verifier (integration mode)")
		holder.Set(oidc.NewInsecureVerifier())
	default:
		logger.Warn("no identity provider configured; only portal tokens and the access override are accepted")
		holder = nil
	}

	usersSvc := users.NewService(userRepo)
	subsSvc := subscriptions.NewService(subRepo, ch)
	sessionsSvc := sessions.NewService(sessRepo)

	idOpts := identity.Options{Secret: cfg.JWT.Secret, OIDC: holder, Blacklist: blacklist, Users: usersSvc, AdminRole: cfg.Access.AdminRole}
	idp := identity.NewProvider(idOpts)
	resolver := entitlements.NewResolver(subsSvc, cfg.Access.EntitlementTTL)
	evaluator := guard.NewEvaluator(idp, roles.NewResolver(cfg.Access.AdminEmails, idp), resolver, guard.Config{
		Production:     cfg.IsProduction(),
		OverrideUserID: cfg.Access.OverrideUserID,
		FetchTimeout:   cfg.Access.FetchTimeout,
		LoginPath:      cfg.Access.LoginPath,
		UpgradePath:    cfg.Access.UpgradePath,
		AdminHome:      cfg.Access.AdminHome,
	})
	registry := override.NewRegistry(cfg.IsProduction(), cfg.Access.ViewSessionTTL)
	tracker := invalidation.NewTracker(ch, resolver.Invalidate, cfg.Access.ViewSessionTTL)

	var photos propservice.PhotoStore
	if cfg.MinIO.Endpoint != "" {
		if s, err := storage.NewMinIOStorage(ctx, cfg.MinIO); err != nil {
			logger.Warnf("minio unavailable, photo upload disabled: %v", err)
		} else {
			photos = s
		}
	}
	props := propservice.New(propRepo, photos)

	var co checkout.Provider
	if cfg.Checkout.FunctionURL != "" {
		if fc, err := checkout.NewFunctionClient(cfg.Checkout, nil); err != nil {
			logger.Warnf("checkout disabled: %v", err)
		} else {
			co = fc
		}
	}

	var mailer contact.Mailer = contact.LogMailer{}
	if cfg.SMTP.Host != "" {
		mailer = contact.NewSMTPMailer(cfg.SMTP)
	}

	if !cfg.IsProduction() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(cors())
	r.Use(middleware.ViewSession(cfg.Access.ViewSessionTTL, cfg.IsProduction()), middleware.Identify())
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && rdb != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(rdb, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})
	r.GET("/ready", func(c *gin.Context) {
		deps := gin.H{
			"oidc":  holder == nil || holder.Ready(),
			"redis": cfg.Redis.Host == "" || rdb != nil,
			"mongo": cfg.MongoDB.URI == "" || mongoCli != nil,
		}
		ready := true
		for _, ok := range deps {
			ready = ready && ok.(bool)
		}
		status, code := "ready", http.StatusOK
		if !ready {
			status, code = "not_ready", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "deps": deps, "uptime": time.Since(startTime).String()})
	})

	var auth *handlers.AuthHandler
	if holder != nil {
		auth = handlers.NewAuthHandler(cfg, handlers.AuthDeps{
			Users: usersSvc, Sessions: sessionsSvc, Blacklist: blacklist,
			OIDC: holder, Tracker: tracker, Overrides: registry,
		})
	}
	handlers.Mount(r, handlers.Portal{
		Evaluator:  evaluator,
		Overrides:  registry,
		Tracker:    tracker,
		Auth:       auth,
		Account:    handlers.NewAccountHandler(resolver, co, props),
		Admin:      handlers.NewAdminHandler(subsSvc, usersSvc),
		Properties: props,
		Mailer:     mailer,
	})

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadTimeout: cfg.Server.ReadTimeout, WriteTimeout: cfg.Server.WriteTimeout}
	go func() {
		logger.Infof("starting portal on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}

// cors sets permissive headers for the browser front end and answers preflight requests.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		h.Set("Access-Control-Expose-Headers", "Content-Length, Location, Retry-After")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}
