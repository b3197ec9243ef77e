package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"golang.org/x/oauth2"

	"github.com/wisbric/hrctl/internal/audit"
	"github.com/wisbric/hrctl/internal/auth"
	"github.com/wisbric/hrctl/internal/config"
	"github.com/wisbric/hrctl/internal/httpserver"
	"github.com/wisbric/hrctl/internal/platform"
	"github.com/wisbric/hrctl/internal/seed"
	"github.com/wisbric/hrctl/internal/telemetry"
	"github.com/wisbric/hrctl/pkg/billing"
	"github.com/wisbric/hrctl/pkg/hrdomain"
	"github.com/wisbric/hrctl/pkg/isolation"
	"github.com/wisbric/hrctl/pkg/lifecycle"
	"github.com/wisbric/hrctl/pkg/notify"
	"github.com/wisbric/hrctl/pkg/operator"
	"github.com/wisbric/hrctl/pkg/plan"
	"github.com/wisbric/hrctl/pkg/tenant"
	"github.com/wisbric/hrctl/pkg/usage"
)

// Run is the main application entry point. It reads config, connects to
// infrastructure, and starts the appropriate mode (api, worker, seed).
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting hrctl", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb, metricsReg)
	case "worker":
		return runWorker(ctx, cfg, logger, db, rdb)
	case "seed":
		return seed.Run(ctx, db, logger)
	case "seed-demo":
		return seed.RunDemo(ctx, db, logger)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

// components bundles the wiring shared by runAPI and runWorker so both
// modes build the same lifecycle/plan/billing/usage graph.
type components struct {
	lifecycleMgr *lifecycle.Manager
	catalog      *plan.Catalog
	billingStore *billing.Store
	ingestor     *billing.Ingestor
	retryScanner *billing.RetryScanner
	usageStore   *usage.Store
	usageChecker *usage.Checker
	usageScanner *usage.Scanner
	sweeper      *lifecycle.DeletionSweeper
	operatorStore *operator.Store
	notifier     notify.Notifier
}

func buildComponents(cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client) (*components, error) {
	var base notify.Notifier
	if cfg.SlackBotToken != "" {
		base = notify.NewSlackNotifier(cfg.SlackBotToken, cfg.SlackAlertChannel, logger)
		logger.Info("slack notifications enabled", "channel", cfg.SlackAlertChannel)
	} else {
		base = notify.NewLogNotifier(logger)
		logger.Info("slack notifications disabled (SLACK_BOT_TOKEN not set), logging instead")
	}

	operatorStore := operator.NewStore(db)
	notifier := notify.NewRecordingNotifier(base, operatorStore, logger)
	invitations := notify.NewLogInvitationDispatcher(logger)

	lifecycleMgr := lifecycle.NewManager(db, notifier, invitations, cfg.GracePeriodDays, cfg.DeletionRetentionDays, logger)

	planCache := plan.NewCache(rdb, logger)
	catalog := plan.NewCatalog(db, planCache, notifier, lifecycleMgr)
	lifecycleMgr.SetCatalog(catalog)

	billingStore := billing.NewStore(db)
	verifier := billing.NewStripeVerifier(cfg.StripeWebhookSecret)
	ingestor := billing.NewIngestor(verifier, billingStore, rdb, catalog, lifecycleMgr, notifier, logger)

	retryInterval, err := time.ParseDuration(cfg.WebhookRetryInterval)
	if err != nil {
		return nil, fmt.Errorf("parsing webhook retry interval %q: %w", cfg.WebhookRetryInterval, err)
	}
	retryScanner := billing.NewRetryScanner(ingestor, billingStore, retryInterval, logger)

	usageStore := usage.NewStore(db)
	usageChecker := usage.NewChecker(usageStore, catalog)
	scanInterval, err := time.ParseDuration(cfg.UsageScanInterval)
	if err != nil {
		return nil, fmt.Errorf("parsing usage scan interval %q: %w", cfg.UsageScanInterval, err)
	}
	usageScanner := usage.NewScanner(usageStore, usageChecker, lifecycleMgr, notifier, scanInterval, logger)

	sweepInterval, err := time.ParseDuration(cfg.DeletionSweepInterval)
	if err != nil {
		return nil, fmt.Errorf("parsing deletion sweep interval %q: %w", cfg.DeletionSweepInterval, err)
	}
	sweeper := lifecycle.NewDeletionSweeper(lifecycleMgr, sweepInterval, logger)

	return &components{
		lifecycleMgr:  lifecycleMgr,
		catalog:       catalog,
		billingStore:  billingStore,
		ingestor:      ingestor,
		retryScanner:  retryScanner,
		usageStore:    usageStore,
		usageChecker:  usageChecker,
		usageScanner:  usageScanner,
		sweeper:       sweeper,
		operatorStore: operatorStore,
		notifier:      notifier,
	}, nil
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	comps, err := buildComponents(cfg, logger, db, rdb)
	if err != nil {
		return err
	}

	// Session manager.
	sessionSecret := cfg.SessionSecret
	if sessionSecret == "" {
		sessionSecret = auth.GenerateDevSecret()
		logger.Info("session: using auto-generated dev secret (set HRCTL_SESSION_SECRET in production)")
	}
	sessionMaxAge, err := time.ParseDuration(cfg.SessionMaxAge)
	if err != nil {
		return fmt.Errorf("parsing session max age %q: %w", cfg.SessionMaxAge, err)
	}
	sessionMgr, err := auth.NewSessionManager(sessionSecret, sessionMaxAge)
	if err != nil {
		return fmt.Errorf("creating session manager: %w", err)
	}

	impersonationTTL, err := time.ParseDuration(cfg.ImpersonationTTL)
	if err != nil {
		return fmt.Errorf("parsing impersonation TTL %q: %w", cfg.ImpersonationTTL, err)
	}

	// OIDC authenticator (optional — operator SSO only, nil if not configured).
	var oidcAuth *auth.OIDCAuthenticator
	if cfg.OIDCIssuerURL != "" && cfg.OIDCClientID != "" {
		oidcAuth, err = auth.NewOIDCAuthenticator(ctx, cfg.OIDCIssuerURL, cfg.OIDCClientID)
		if err != nil {
			return fmt.Errorf("initializing OIDC authenticator: %w", err)
		}
		logger.Info("OIDC authentication enabled", "issuer", cfg.OIDCIssuerURL)
	} else {
		logger.Info("OIDC authentication disabled (OIDC_ISSUER_URL not set)")
	}

	patAuth := auth.NewPATAuthenticator(db)

	// Audit log writer (async, buffered).
	auditWriter := audit.NewWriter(db, logger, func() { telemetry.AuditWriteFailuresTotal.Inc() })
	auditWriter.Start(ctx)
	defer auditWriter.Close()

	tenantStore := tenant.NewStore(db)

	srv := httpserver.NewServer(cfg, logger, db, rdb, metricsReg, sessionMgr, oidcAuth, patAuth, tenantStore)

	// --- Public, pre-authentication routes ---

	rateLimiter := auth.NewRateLimiter(rdb, 10, 15*time.Minute)

	loginHandler := auth.NewLoginHandler(sessionMgr, db, logger, oidcAuth != nil)
	srv.Router.Post("/auth/login", rateLimitLogin(rateLimiter, logger, loginHandler.HandleLogin))
	srv.Router.Get("/auth/me", loginHandler.HandleMe)
	srv.Router.Post("/auth/logout", loginHandler.HandleLogout)
	srv.Router.Get("/auth/config", loginHandler.HandleAuthConfig)

	resetHandler := auth.NewResetHandler(db)
	srv.Router.Post("/auth/reset", resetHandler.HandleReset)

	signupHandler := lifecycle.NewSignupHandler(comps.lifecycleMgr, logger)
	srv.Router.Mount("/", signupHandler.Routes())

	if oidcAuth != nil && cfg.OIDCClientSecret != "" {
		oauth2Cfg := &oauth2.Config{
			ClientID:     cfg.OIDCClientID,
			ClientSecret: cfg.OIDCClientSecret,
			RedirectURL:  cfg.OIDCRedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.OIDCIssuerURL + "/authorize",
				TokenURL: cfg.OIDCIssuerURL + "/oauth/token",
			},
		}
		oidcFlow := auth.NewOIDCFlowHandler(oauth2Cfg, oidcAuth, sessionMgr, db, rdb, logger)
		srv.Router.Get("/auth/oidc/login", oidcFlow.HandleLogin)
		srv.Router.Get("/auth/oidc/callback", oidcFlow.HandleCallback)
		logger.Info("OIDC Authorization Code flow enabled", "redirect_url", cfg.OIDCRedirectURL)
	}

	// Billing webhook ingestion is its own trust boundary: verified by
	// provider signature, not by session/API-key auth.
	srv.Router.Mount("/webhooks/billing", comps.ingestor.Routes())

	// --- Authenticated, tenant-scoped API routes ---

	hrHandler := hrdomain.NewHandler(db, logger)
	srv.APIRouter.Mount("/", hrHandler.Routes())

	auditScopeFor := func(r *http.Request) *isolation.Scope {
		info := tenant.FromContext(r.Context())
		return isolation.New(db, info.ID)
	}
	auditHandler := audit.NewHandler(auditScopeFor, logger)
	srv.APIRouter.Mount("/audit-log", auditHandler.Routes())

	// --- Operator surface (SuperAdmin only) ---

	operatorHandler := operator.NewHandler(logger, auditWriter, comps.operatorStore, db, comps.lifecycleMgr, comps.usageScanner, sessionMgr, impersonationTTL)
	srv.APIRouter.Mount("/operator", operatorHandler.Routes())

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Background workers run inside the API process too, since this is a
	// single-binary deployment; "worker" mode exists for operators who want
	// to split them onto dedicated instances.
	go func() {
		if err := comps.retryScanner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("billing retry scanner stopped", "error", err)
		}
	}()
	go func() {
		if err := comps.usageScanner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("usage scanner stopped", "error", err)
		}
	}()
	go func() {
		if err := comps.sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("deletion sweeper stopped", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// runWorker runs only the background scanners, for deployments that split
// the HTTP surface and the background workers onto separate processes.
func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client) error {
	comps, err := buildComponents(cfg, logger, db, rdb)
	if err != nil {
		return err
	}

	logger.Info("worker started")

	errCh := make(chan error, 3)
	go func() { errCh <- comps.retryScanner.Run(ctx) }()
	go func() { errCh <- comps.usageScanner.Run(ctx) }()
	go func() { errCh <- comps.sweeper.Run(ctx) }()

	err = <-errCh
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// rateLimitLogin wraps a login handler with a per-IP failed-attempt limit,
// resetting the counter on success and recording it on a 401 response.
func rateLimitLogin(rl *auth.RateLimiter, logger *slog.Logger, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		result, err := rl.Check(r.Context(), ip)
		if err != nil {
			logger.Error("rate limit check failed", "error", err)
		} else if !result.Allowed {
			httpserver.RespondError(w, http.StatusTooManyRequests, "rate_limited",
				fmt.Sprintf("too many failed login attempts, retry after %s", result.RetryAt.Format(time.RFC3339)))
			return
		}

		sw := &statusCapture{ResponseWriter: w, status: http.StatusOK}
		next(sw, r)

		if sw.status == http.StatusUnauthorized {
			if err := rl.Record(r.Context(), ip); err != nil {
				logger.Error("recording failed login attempt", "error", err)
			}
		} else if sw.status == http.StatusOK {
			if err := rl.Reset(r.Context(), ip); err != nil {
				logger.Error("resetting rate limit", "error", err)
			}
		}
	}
}

type statusCapture struct {
	http.ResponseWriter
	status int
}

func (s *statusCapture) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}
