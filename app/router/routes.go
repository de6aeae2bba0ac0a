// Package router provides HTTP routing, middleware configuration, and server setup for the web application
package router

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"slices"
	"strings"
	"time"

	"github.com/amirphl/donation-ledger/app/dto"
	"github.com/amirphl/donation-ledger/app/handlers"
	"github.com/amirphl/donation-ledger/app/middleware"
	"github.com/amirphl/donation-ledger/config"
	"github.com/amirphl/donation-ledger/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/compress"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/helmet"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/pprof"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	healthPath  = "/api/v1/health"
	webhookPath = "/api/v1/donations/webhook"

	accessLogJSONFormat = `{"time":"${time}","pid":"${pid}","request_id":"${respHeader:X-Request-ID}","level":"info","method":"${method}","path":"${path}","protocol":"${protocol}","ip":"${ip}","user_agent":"${ua}","status":${status},"latency":"${latency}","bytes_in":${bytesReceived},"bytes_out":${bytesSent},"referer":"${referer}"}` + "\n"
)

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	Shutdown(ctx context.Context) error
	GetApp() *fiber.App
}

// Handlers groups the HTTP handlers mounted by the router
type Handlers struct {
	Donation       handlers.DonationHandlerInterface
	CampaignLedger handlers.CampaignLedgerHandlerInterface
	Admin          handlers.AdminHandlerInterface
}

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app       *fiber.App
	cfg       *config.ProductionConfig
	handlers  Handlers
	auth      *middleware.AuthMiddleware
	whitelist []*net.IPNet
	accessLog io.WriteCloser
}

// NewFiberRouter creates a new Fiber router
func NewFiberRouter(cfg *config.ProductionConfig, h Handlers, auth *middleware.AuthMiddleware) *FiberRouter {
	app := fiber.New(fiber.Config{
		AppName:      "Donation Ledger API",
		ServerHeader: "donation-ledger",
		ErrorHandler: errorHandler,
		BodyLimit:    cfg.Server.BodyLimit,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
		// c.IP() reads ProxyHeader only for requests arriving from a trusted proxy
		TrustProxy:       len(cfg.Server.TrustedProxies) > 0,
		TrustProxyConfig: fiber.TrustProxyConfig{Proxies: cfg.Server.TrustedProxies},
		ProxyHeader:      cfg.Server.ProxyHeader,
	})

	return &FiberRouter{
		app:       app,
		cfg:       cfg,
		handlers:  h,
		auth:      auth,
		whitelist: parseIPNets(cfg.Security.IPWhitelist),
	}
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	log.Println("Setting up routes...")

	r.setupMiddleware()

	if r.cfg.Metrics.Enabled {
		r.app.Get(r.cfg.Metrics.Path, adaptor.HTTPHandler(promhttp.Handler()))
	}

	api := r.app.Group("/api/v1")

	// Health check route (no rate limiting)
	api.Get("/health", r.healthCheck)

	api.Use(r.rateLimiter(r.cfg.Security.GlobalRateLimit, func(c fiber.Ctx) bool {
		return c.Path() == healthPath
	}))

	// Admin session endpoints with stricter rate limiting
	auth := api.Group("/auth")
	auth.Use(r.rateLimiter(r.cfg.Security.AuthRateLimit, nil))
	adminAuth := auth.Group("/admin", r.ipWhitelist)
	adminAuth.Post("/login", r.handlers.Admin.Login)
	adminAuth.Post("/refresh", r.handlers.Admin.Refresh)
	adminAuth.Post("/logout", r.auth.AdminAuthenticate(), r.handlers.Admin.Logout)

	// The webhook is authenticated by its body signature, not a bearer token
	donations := api.Group("/donations")
	donations.Post("/webhook", r.handlers.Donation.Webhook)
	donations.Post("/create-order", r.auth.Authenticate(), r.handlers.Donation.CreateOrder)
	donations.Post("/verify-payment", r.auth.Authenticate(), r.handlers.Donation.VerifyPayment)
	donations.Get("/my", r.auth.Authenticate(), r.handlers.Donation.ListMyDonations)
	donations.Get("/:uuid", r.auth.Authenticate(), r.handlers.Donation.GetDonation)

	campaigns := api.Group("/campaigns")
	campaigns.Get("/:id/funds", r.handlers.CampaignLedger.GetFunds)
	campaigns.Get("/:id/transactions", r.handlers.CampaignLedger.ListTransactions)
	campaigns.Get("/:id/payouts", r.handlers.CampaignLedger.ListPayouts)
	campaigns.Post("/:id/disburse", r.ipWhitelist, r.auth.AdminAuthenticate(), r.handlers.CampaignLedger.Disburse)

	api.Get("/transactions/:transaction_id", r.handlers.CampaignLedger.GetTransaction)

	admin := api.Group("/admin", r.ipWhitelist, r.auth.AdminAuthenticate())
	admin.Get("/campaigns/:id/ledger.xlsx", r.handlers.Admin.ExportLedger)
	admin.Get("/reconciliation", r.handlers.Admin.Reconciliation)

	// Not found handler
	r.app.Use(r.notFoundHandler)

	log.Println("Routes configured successfully")
}

// setupMiddleware configures global middleware
func (r *FiberRouter) setupMiddleware() {
	// Request ID middleware - must be first
	r.app.Use(requestid.New(requestid.Config{
		Header:    "X-Request-ID",
		Generator: generateRequestID,
	}))

	if r.cfg.Server.EnableMetrics {
		r.app.Use(middleware.Metrics())
	}

	if r.cfg.Server.EnablePprof {
		r.app.Use("/debug/pprof", r.ipWhitelist)
		r.app.Use(pprof.New())
	}

	r.app.Use(helmet.New(helmet.Config{
		XSSProtection:             r.cfg.Security.XSSProtection,
		ContentTypeNosniff:        r.cfg.Security.XContentTypeOptions,
		XFrameOptions:             r.cfg.Security.XFrameOptions,
		HSTSMaxAge:                r.cfg.Security.HSTSMaxAge,
		HSTSExcludeSubdomains:     !r.cfg.Security.HSTSIncludeSubDoms,
		HSTSPreloadEnabled:        r.cfg.Security.HSTSPreload,
		ContentSecurityPolicy:     r.cfg.Security.CSPPolicy,
		ReferrerPolicy:            r.cfg.Security.ReferrerPolicy,
		CrossOriginEmbedderPolicy: "require-corp",
		CrossOriginOpenerPolicy:   "same-origin",
		CrossOriginResourcePolicy: "cross-origin",
		OriginAgentCluster:        "?1",
		XDNSPrefetchControl:       "off",
		XDownloadOptions:          "noopen",
		XPermittedCrossDomain:     "none",
	}))

	r.app.Use(cors.New(cors.Config{
		AllowOrigins:     r.cfg.Security.AllowedOrigins,
		AllowMethods:     r.cfg.Security.AllowedMethods,
		AllowHeaders:     append(slices.Clone(r.cfg.Security.AllowedHeaders), "X-Request-ID"),
		ExposeHeaders:    []string{"X-Request-ID", "X-Response-Time", "Content-Disposition", "X-Ledger-Archive-URL"},
		AllowCredentials: r.cfg.Security.AllowCredentials,
		MaxAge:           r.cfg.Security.CORSMaxAge,
	}))

	if r.cfg.Server.EnableCompression {
		r.app.Use(compress.New(compress.Config{
			Level: compress.Level(r.cfg.Server.CompressionLevel),
			Next: func(c fiber.Ctx) bool {
				// xlsx is already a zip archive
				return strings.HasSuffix(c.Path(), ".xlsx")
			},
		}))
	}

	if r.cfg.Logging.EnableAccessLog {
		format := accessLogJSONFormat
		if r.cfg.Logging.AccessLogFormat == "combined" {
			format = logger.CombinedFormat
		}
		r.app.Use(logger.New(logger.Config{
			Stream:        r.accessLogStream(),
			Format:        format,
			TimeFormat:    time.RFC3339,
			TimeZone:      "UTC",
			DisableColors: true,
			Next: func(c fiber.Ctx) bool {
				return c.Path() == healthPath
			},
		}))
	}

	r.app.Use(r.securityMiddleware)
	r.app.Use(r.apiKeyMiddleware)

	r.app.Use(recover.New(recover.Config{
		EnableStackTrace: r.cfg.Logging.EnableStacktrace,
		StackTraceHandler: func(c fiber.Ctx, e any) {
			log.Printf(`{"time":"%s","level":"error","request_id":"%s","event":"panic","error":"%v","path":"%s","method":"%s","ip":"%s"}`,
				utils.UTCNow().Format(time.RFC3339),
				requestid.FromContext(c),
				e,
				c.Path(),
				c.Method(),
				c.IP(),
			)
		},
	}))
}

func (r *FiberRouter) rateLimiter(max int, next func(c fiber.Ctx) bool) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: r.cfg.Security.RateLimitWindow,
		KeyGenerator: func(c fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(dto.APIResponse{
				Success: false,
				Message: "Too many requests. Please try again later.",
				Error: dto.ErrorDetail{
					Code: "RATE_LIMIT_EXCEEDED",
				},
			})
		},
		Next: next,
	})
}

// accessLogStream rotates the access log with the application log's limits.
// An empty path shares the application log writer.
func (r *FiberRouter) accessLogStream() io.Writer {
	path := r.cfg.Logging.AccessLogPath
	if path == "" {
		return log.Writer()
	}
	r.accessLog = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    r.cfg.Logging.MaxSize,
		MaxBackups: r.cfg.Logging.MaxBackups,
		MaxAge:     r.cfg.Logging.MaxAge,
		Compress:   r.cfg.Logging.Compress,
	}
	return r.accessLog
}

// ipWhitelist admits only configured addresses to operator routes. An empty
// whitelist admits everyone.
func (r *FiberRouter) ipWhitelist(c fiber.Ctx) error {
	if len(r.whitelist) == 0 {
		return c.Next()
	}
	ip := net.ParseIP(c.IP())
	for _, n := range r.whitelist {
		if ip != nil && n.Contains(ip) {
			return c.Next()
		}
	}
	return c.Status(fiber.StatusForbidden).JSON(dto.APIResponse{
		Success: false,
		Message: "Access denied from this IP address",
		Error: dto.ErrorDetail{
			Code: "IP_NOT_WHITELISTED",
		},
	})
}

// parseIPNets turns IPs and CIDRs into networks; a bare IP becomes a /32 or /128.
// Invalid entries are rejected by config validation and skipped here.
func parseIPNets(entries []string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(entries))
	for _, entry := range entries {
		if _, n, err := net.ParseCIDR(entry); err == nil {
			nets = append(nets, n)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			continue
		}
		bits := 128
		if v4 := ip.To4(); v4 != nil {
			ip, bits = v4, 32
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets
}

// securityMiddleware stamps the response time and rejects blacklisted IPs
func (r *FiberRouter) securityMiddleware(c fiber.Ctx) error {
	c.Set("X-Response-Time", utils.UTCNow().Format(time.RFC3339))

	if slices.Contains(r.cfg.Security.IPBlacklist, c.IP()) {
		return c.Status(fiber.StatusForbidden).JSON(dto.APIResponse{
			Success: false,
			Message: "Access denied from this IP address",
			Error: dto.ErrorDetail{
				Code: "ACCESS_DENIED",
			},
		})
	}

	return c.Next()
}

// apiKeyMiddleware enforces X-API-Key when configured. Health checks, metrics
// and the gateway webhook are exempt.
func (r *FiberRouter) apiKeyMiddleware(c fiber.Ctx) error {
	if !r.cfg.Security.RequireAPIKey {
		return c.Next()
	}
	switch c.Path() {
	case healthPath, webhookPath, r.cfg.Metrics.Path:
		return c.Next()
	}

	header := r.cfg.Security.APIKeyHeader
	if header == "" {
		header = "X-API-Key"
	}
	apiKey := c.Get(header)
	if apiKey == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
			Success: false,
			Message: "API key is required",
			Error: dto.ErrorDetail{
				Code: "MISSING_API_KEY",
			},
		})
	}
	if !slices.Contains(r.cfg.Security.AllowedAPIKeys, apiKey) {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
			Success: false,
			Message: "Invalid API key",
			Error: dto.ErrorDetail{
				Code: "INVALID_API_KEY",
			},
		})
	}

	return c.Next()
}

// Start starts the HTTP server, serving TLS when configured
func (r *FiberRouter) Start(address string) error {
	listenCfg, err := r.listenConfig()
	if err != nil {
		return err
	}
	log.Printf("Starting server on %s (tls=%t)", address, r.cfg.Security.TLSEnabled)
	return r.app.Listen(address, listenCfg)
}

func (r *FiberRouter) listenConfig() (fiber.ListenConfig, error) {
	listenCfg := fiber.ListenConfig{DisableStartupMessage: true}
	if !r.cfg.Security.TLSEnabled {
		return listenCfg, nil
	}
	minVersion, err := config.ParseTLSVersion(r.cfg.Security.TLSMinVersion)
	if err != nil {
		return listenCfg, err
	}
	listenCfg.CertFile = r.cfg.Security.TLSCertFile
	listenCfg.CertKeyFile = r.cfg.Security.TLSKeyFile
	listenCfg.TLSMinVersion = minVersion
	return listenCfg, nil
}

// Shutdown stops accepting connections and waits for in-flight requests
func (r *FiberRouter) Shutdown(ctx context.Context) error {
	err := r.app.ShutdownWithContext(ctx)
	if r.accessLog != nil {
		if cerr := r.accessLog.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// GetApp returns the Fiber app instance
func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

func (r *FiberRouter) healthCheck(c fiber.Ctx) error {
	return c.JSON(dto.APIResponse{
		Success: true,
		Message: "Service is healthy",
		Data: fiber.Map{
			"status":      "ok",
			"timestamp":   utils.UTCNow().Unix(),
			"version":     r.cfg.Deployment.Version,
			"commit":      r.cfg.Deployment.CommitHash,
			"environment": r.cfg.Deployment.Environment,
			"service":     "donation-ledger-api",
		},
	})
}

func (r *FiberRouter) notFoundHandler(c fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{
		Success: false,
		Message: "The requested resource was not found",
		Error: dto.ErrorDetail{
			Code: "NOT_FOUND",
			Details: fiber.Map{
				"path":       c.Path(),
				"method":     c.Method(),
				"request_id": requestid.FromContext(c),
			},
		},
	})
}

// errorHandler renders errors that escaped the handlers
func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "An internal server error occurred"
	errorCode := "INTERNAL_ERROR"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		if code < fiber.StatusInternalServerError {
			message = fe.Message
			errorCode = "REQUEST_ERROR"
		}
	}

	log.Printf("Error %d: %v", code, err)

	return c.Status(code).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code: errorCode,
			Details: fiber.Map{
				"timestamp":  utils.UTCNow().Unix(),
				"request_id": requestid.FromContext(c),
			},
		},
	})
}

// generateRequestID creates a unique request ID
func generateRequestID() string {
	bytes := make([]byte, 8)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
