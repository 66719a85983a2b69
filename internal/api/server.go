package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"crypto-trading-saas/internal/auth"
	"crypto-trading-saas/internal/billing"
	"crypto-trading-saas/internal/cache"
	"crypto-trading-saas/internal/database"
	"crypto-trading-saas/internal/entitlement"
	"crypto-trading-saas/internal/events"
	"crypto-trading-saas/internal/licensing"
	"crypto-trading-saas/internal/plans"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RateLimiter provides simple in-memory rate limiting per endpoint
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int           // max requests
	window   time.Duration // time window
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	// Filter out old requests
	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Host           string
	AllowedOrigins string
	ProductionMode bool
}

// Server represents the HTTP API server
type Server struct {
	router           *gin.Engine
	httpServer       *http.Server
	config           ServerConfig
	repo             *database.Repository
	catalog          *plans.Catalog
	evaluator        *entitlement.Evaluator
	counter          *entitlement.Counter
	licensing        *licensing.Manager
	billing          *billing.Service
	authService      *auth.Service
	eventBus         *events.EventBus
	entitlementCache *cache.EntitlementCache
	rateLimiter      *RateLimiter // guards license validation/activation endpoints
}

// NewServer creates a new API server
func NewServer(
	config ServerConfig,
	repo *database.Repository,
	catalog *plans.Catalog,
	evaluator *entitlement.Evaluator,
	counter *entitlement.Counter,
	licensingManager *licensing.Manager,
	billingService *billing.Service, // Can be nil if billing is disabled
	authService *auth.Service,
	eventBus *events.EventBus,
	entitlementCache *cache.EntitlementCache, // Can be nil if redis is disabled
) *Server {
	// Set Gin mode
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	// Middleware
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// CORS middleware
	corsConfig := cors.DefaultConfig()
	if config.AllowedOrigins == "" || config.AllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = strings.Split(config.AllowedOrigins, ",")
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Content-Length"}
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:           router,
		config:           config,
		repo:             repo,
		catalog:          catalog,
		evaluator:        evaluator,
		counter:          counter,
		licensing:        licensingManager,
		billing:          billingService,
		authService:      authService,
		eventBus:         eventBus,
		entitlementCache: entitlementCache,
		rateLimiter:      NewRateLimiter(30, time.Minute),
	}

	server.setupRoutes()

	return server
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	jwtManager := s.authService.GetJWTManager()

	// Health check
	s.router.GET("/health", s.handleHealth)

	// WebSocket for quota/subscription updates
	s.router.GET("/ws", auth.OptionalMiddleware(jwtManager), s.handleWebSocket)

	api := s.router.Group("/api")

	// Auth endpoints
	authHandlers := auth.NewHandlers(s.authService)
	authHandlers.RegisterRoutes(api.Group("/auth"), jwtManager)

	// Payment provider webhook (signature-verified, no JWT)
	if s.billing != nil {
		api.POST("/billing/webhook", s.handleBillingWebhook)
	}

	// Public plan catalog
	api.GET("/plans", s.handleListPlans)

	// External license validation surface (rate-limited, no JWT; the EA and
	// desktop clients authenticate by credential alone)
	licenseGroup := api.Group("/license")
	licenseGroup.Use(s.rateLimitMiddleware())
	{
		licenseGroup.POST("/validate", s.handleValidateCode)
		licenseGroup.POST("/forex/validate", s.handleValidateForexKey)
		licenseGroup.POST("/forex/trade", s.handleRecordForexTrade)
		licenseGroup.POST("/desktop/activate", s.handleActivateDesktop)
	}

	// Authenticated user surface
	protected := api.Group("")
	protected.Use(auth.Middleware(jwtManager))
	{
		protected.GET("/entitlement", s.handleCheckEntitlement)
		protected.POST("/trades", s.handleRecordTrade)

		protected.GET("/subscription", s.handleGetSubscription)
		protected.POST("/subscription/cancel", s.handleCancelSubscription)
		protected.POST("/subscription/resume", s.handleResumeSubscription)
		protected.POST("/wallet", s.handleLinkWallet)

		protected.GET("/forex/licenses", s.handleListForexLicenses)
		protected.POST("/forex/licenses/:key/renew", s.handleRenewForexLicense)
	}

	// Admin surface
	admin := api.Group("/admin")
	admin.Use(auth.Middleware(jwtManager), auth.RequireAdmin())
	{
		admin.POST("/codes", s.handleIssueCode)
		admin.GET("/codes", s.handleListCodes)
		admin.DELETE("/codes/:code", s.handleRevokeCode)
		admin.GET("/codes/stats", s.handleCodeStats)
		admin.GET("/subscriptions/stats", s.handleSubscriptionStats)
	}
}

// rateLimitMiddleware applies the per-IP rate limit to license endpoints
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.rateLimiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "RATE_LIMITED",
				"message": "too many requests, please try again later",
			})
			return
		}
		c.Next()
	}
}

// handleHealth reports service health
// GET /health
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	dbStatus := "ok"
	if err := s.repo.HealthCheck(ctx); err != nil {
		status = "degraded"
		dbStatus = err.Error()
	}

	c.JSON(http.StatusOK, gin.H{
		"status":          status,
		"database":        dbStatus,
		"catalog_version": s.catalog.Version(),
		"timestamp":       time.Now().UTC(),
	})
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	log.Printf("API server listening on %s", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
