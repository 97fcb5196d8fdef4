package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/foodtracker/internal/auth"
	"github.com/example/foodtracker/internal/blob"
	cfg "github.com/example/foodtracker/internal/config"
	"github.com/example/foodtracker/internal/dbmigrate"
	"github.com/example/foodtracker/internal/invites"
	"github.com/example/foodtracker/internal/logging"
	"github.com/gorilla/mux"
)

const (
	serviceName    = "Food Expiration Tracker API"
	serviceVersion = "1.0.0"
)

type App struct {
	Store   Store
	Auth    auth.TokenAuthenticator
	Local   *auth.LocalAuthenticator // nil in federated mode
	Invites invites.Store
	Blobs   blob.Store
	Logger  *slog.Logger

	RefreshTTL         time.Duration
	InviteTTL          time.Duration
	RateLimitPerMinute int
	Origins            []string

	rateLimiter *RateLimiter
	now         func() time.Time
}

func (a *App) federated() bool { return a.Local == nil }

func (a *App) setDefaults() {
	if a.Logger == nil {
		a.Logger = slog.Default()
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.RefreshTTL <= 0 {
		a.RefreshTTL = 30 * 24 * time.Hour
	}
	if a.InviteTTL <= 0 {
		a.InviteTTL = 7 * 24 * time.Hour
	}
	if a.RateLimitPerMinute <= 0 {
		a.RateLimitPerMinute = 120
	}
	if a.rateLimiter == nil {
		a.rateLimiter = NewRateLimiter(a.RateLimitPerMinute)
	}
	if a.Invites == nil {
		a.Invites = invites.NewMemoryStore()
	}
	if a.Blobs == nil {
		a.Blobs = blob.NewMemoryStore()
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write json", "error", err)
	}
}

// handle registers h for path with and without a trailing slash.
func handle(r *mux.Router, path string, h http.HandlerFunc, methods ...string) {
	r.HandleFunc(path, h).Methods(methods...)
	r.HandleFunc(path+"/", h).Methods(methods...)
}

// Router builds the HTTP handler with every route mounted.
func (a *App) Router() http.Handler {
	a.setDefaults()
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
	})

	// Health check endpoints (no auth required)
	r.HandleFunc("/", a.HandleRoot).Methods("GET")
	r.HandleFunc("/health", a.HandleHealth).Methods("GET")
	r.HandleFunc("/ready", a.HandleReady).Methods("GET")

	public := r.NewRoute().Subrouter()
	public.Use(a.RateLimit)
	if !a.federated() {
		public.HandleFunc("/auth/register", a.HandleRegister).Methods("POST")
		public.HandleFunc("/auth/login", a.HandleLogin).Methods("POST")
		public.HandleFunc("/auth/refresh", a.HandleRefresh).Methods("POST")
	}
	public.HandleFunc("/auth/logout", a.HandleLogout).Methods("POST")
	public.HandleFunc("/auth/introspect", a.HandleTokenIntrospect).Methods("POST")
	public.HandleFunc("/auth/validate", a.HandleTokenValidate).Methods("GET")

	optional := r.NewRoute().Subrouter()
	optional.Use(a.OptionalAuth, a.RateLimit)
	optional.HandleFunc("/recipes/suggestions", a.HandleRecipeSuggestions).Methods("GET", "POST")
	optional.HandleFunc("/recipes/search", a.HandleRecipeSearch).Methods("GET")

	p := r.NewRoute().Subrouter()
	p.Use(a.RequireAuth, a.RateLimit)
	p.HandleFunc("/protected", a.HandleProtected).Methods("GET")
	p.HandleFunc("/auth/me", a.HandleMe).Methods("GET")

	p.HandleFunc("/users/profile", a.HandleGetProfile).Methods("GET")
	p.HandleFunc("/users/profile", a.HandleUpdateProfile).Methods("PUT")
	p.HandleFunc("/users/profile", a.HandleDeleteProfile).Methods("DELETE")
	p.HandleFunc("/users/preferences", a.HandleGetPreferences).Methods("GET")
	p.HandleFunc("/users/preferences", a.HandleUpdatePreferences).Methods("PUT")
	if !a.federated() {
		p.HandleFunc("/users/password", a.HandleChangePassword).Methods("POST")
	}

	handle(p, "/household", a.HandleGetHousehold, "GET")
	handle(p, "/household", a.HandleCreateHousehold, "POST")
	p.HandleFunc("/household/invite", a.HandleInvite).Methods("POST")
	p.HandleFunc("/household/join", a.HandleJoinHousehold).Methods("POST")
	p.HandleFunc("/household/leave", a.HandleLeaveHousehold).Methods("DELETE")
	p.HandleFunc("/household/members", a.HandleHouseholdMembers).Methods("GET")

	handle(p, "/food-items", a.HandleListFoodItems, "GET")
	handle(p, "/food-items", a.HandleCreateFoodItem, "POST")
	p.HandleFunc("/food-items/expiring", a.HandleExpiringFoodItems).Methods("GET")
	p.HandleFunc("/food-items/{id}", a.HandleGetFoodItem).Methods("GET")
	p.HandleFunc("/food-items/{id}", a.HandleUpdateFoodItem).Methods("PUT")
	p.HandleFunc("/food-items/{id}", a.HandleDeleteFoodItem).Methods("DELETE")
	p.HandleFunc("/food-items/{id}/consume", a.HandleConsumeFoodItem).Methods("POST")

	p.HandleFunc("/analytics/waste-report", a.HandleWasteReport).Methods("GET")
	p.HandleFunc("/analytics/waste-history", a.HandleWasteHistory).Methods("GET")
	p.HandleFunc("/analytics/category-breakdown", a.HandleCategoryBreakdown).Methods("GET")
	p.HandleFunc("/analytics/expiring-soon", a.HandleExpiringSoon).Methods("GET")

	p.HandleFunc("/storage/upload", a.HandleUpload).Methods("POST")
	p.HandleFunc("/storage/download/{name:.+}", a.HandleDownload).Methods("GET")
	p.HandleFunc("/storage/delete/{name:.+}", a.HandleDeleteBlob).Methods("DELETE")
	p.HandleFunc("/storage/list", a.HandleListBlobs).Methods("GET")

	// mux middleware only runs on matched routes, so the global chain wraps
	// the router to cover preflight and 404 responses too.
	return SecurityHeaders(a.Logging(a.Recover(CORS(a.Origins)(r))))
}

func (a *App) HandleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": serviceName,
		"version": serviceVersion,
		"status":  "running",
	})
}

func (a *App) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (a *App) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.Store.Ping(ctx); err != nil {
		a.Logger.WarnContext(r.Context(), "readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]bool{"ready": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
}

func (a *App) HandleProtected(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.IdentityFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "This is a protected route",
		"user":    ident.Email,
	})
}

func openStore(ctx context.Context, c *cfg.Config, logger *slog.Logger) (Store, error) {
	switch c.DBAdapter {
	case "sqlite":
		return NewSQLiteDB(ctx, c.SQLiteFile)
	case "postgres":
		logger.Info("applying database migrations", "dir", c.MigrationsDir)
		if err := dbmigrate.Apply(c.MigrationsDir, c.PostgresDSN, logger); err != nil {
			logger.Warn("migration error (continuing anyway)", "error", err)
		}
		p, err := NewPostgresDB(ctx, c.PostgresDSN)
		if err != nil {
			return nil, err
		}
		logger.Info("connected to PostgreSQL database")
		return p, nil
	case "memory":
		logger.Warn("using in-memory database (not recommended for production)")
		return NewMemoryDB(), nil
	}
	return nil, fmt.Errorf("unsupported DB_ADAPTER: %s", c.DBAdapter)
}

// buildAuthenticator returns the active authenticator and, in local mode,
// the token issuer. The returned closer releases the federated key cache.
func buildAuthenticator(c *cfg.Config, logger *slog.Logger) (auth.TokenAuthenticator, *auth.LocalAuthenticator, func() error, error) {
	if c.AuthMode == cfg.AuthModeFederated {
		v, err := auth.NewFederatedVerifier(auth.FederatedConfig{
			Tenant:       c.B2CTenant,
			ClientID:     c.B2CClientID,
			Policy:       c.B2CPolicy,
			Issuer:       c.B2CIssuer,
			KeysURL:      c.B2CKeysURL,
			FetchTimeout: c.JWKSFetchTimeout,
			Logger:       logger,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		logger.Info("federated authentication enabled", "issuer", v.Issuer())
		return v, nil, v.Close, nil
	}
	l, err := auth.NewLocalAuthenticator(auth.LocalConfig{
		Secret:    []byte(c.JwtSecret),
		Algorithm: c.JwtAlgorithm,
		TTL:       c.AccessTokenTTL(),
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return l, l, func() error { return nil }, nil
}

func openInvites(ctx context.Context, c *cfg.Config, logger *slog.Logger) (invites.Store, error) {
	if c.RedisAddr == "" {
		logger.Info("REDIS_ADDR not set; household invitations kept in memory")
		return invites.NewMemoryStore(), nil
	}
	return invites.Dial(ctx, c.RedisAddr, c.RedisKeyPrefix)
}

func openBlobs(ctx context.Context, c *cfg.Config, logger *slog.Logger) (blob.Store, error) {
	if c.S3Bucket == "" {
		logger.Warn("S3_BUCKET not set; uploaded images kept in memory")
		return blob.NewMemoryStore(), nil
	}
	return blob.NewS3Store(ctx, blob.S3Config{
		Bucket:    c.S3Bucket,
		Region:    c.S3Region,
		Endpoint:  c.S3Endpoint,
		AccessKey: c.S3AccessKey,
		SecretKey: c.S3SecretKey,
	})
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}

func main() {
	c, err := cfg.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(c.LogLevel, c.LogFormat, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, c, logger)
	if err != nil {
		fatal(logger, "store init failed", err)
	}
	authn, local, closeAuth, err := buildAuthenticator(c, logger)
	if err != nil {
		fatal(logger, "authenticator init failed", err)
	}
	inv, err := openInvites(ctx, c, logger)
	if err != nil {
		fatal(logger, "invitation store init failed", err)
	}
	blobs, err := openBlobs(ctx, c, logger)
	if err != nil {
		fatal(logger, "blob store init failed", err)
	}

	app := &App{
		Store:              store,
		Auth:               authn,
		Local:              local,
		Invites:            inv,
		Blobs:              blobs,
		Logger:             logger,
		RefreshTTL:         c.RefreshTokenTTL(),
		InviteTTL:          c.InviteTTL,
		RateLimitPerMinute: c.RateLimitPerMinute,
		Origins:            c.Origins(),
	}

	srv := &http.Server{
		Handler:           app.Router(),
		Addr:              ":" + c.Port,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", c.Port, "auth_mode", c.AuthMode, "db_adapter", c.DBAdapter)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(logger, "server error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
	if err := closeAuth(); err != nil {
		logger.Warn("closing authenticator", "error", err)
	}
	if err := inv.Close(); err != nil {
		logger.Warn("closing invitation store", "error", err)
	}
	if err := store.Close(); err != nil {
		logger.Warn("closing store", "error", err)
	}
	logger.Info("server exited properly")
}
