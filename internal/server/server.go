package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/waterhq/internal/allowlist"
	"github.com/dukerupert/waterhq/internal/analytics"
	"github.com/dukerupert/waterhq/internal/backup"
	"github.com/dukerupert/waterhq/internal/captcha"
	"github.com/dukerupert/waterhq/internal/config"
	"github.com/dukerupert/waterhq/internal/email"
	"github.com/dukerupert/waterhq/internal/handler"
	"github.com/dukerupert/waterhq/internal/identity"
	"github.com/dukerupert/waterhq/internal/insights"
	"github.com/dukerupert/waterhq/internal/middleware"
	"github.com/dukerupert/waterhq/internal/occupancy"
	"github.com/dukerupert/waterhq/internal/push"
	"github.com/dukerupert/waterhq/internal/store"
	ws "github.com/dukerupert/waterhq/internal/websocket"
)

// Sign-in endpoints share one budget per client IP.
const (
	authRateLimit  = 10
	authRatePeriod = time.Minute
)

type Server struct {
	db       *sql.DB
	cfg      *config.Config
	hub      *ws.Hub
	machine  *occupancy.Machine
	relay    *push.Relay
	sched    *push.Scheduler
	backups  *backup.Manager
	limiter  *middleware.RateLimiter
	verifier *identity.Verifier
	gate     *allowlist.Gate

	statusH *handler.StatusHandler
	slotH   *handler.SlotHandler
	logH    *handler.LogHandler
	askH    *handler.InsightsHandler
	pushH   *handler.PushHandler
	authH   *handler.AuthHandler

	logger *slog.Logger
}

type options struct {
	sender     push.Sender
	httpClient *http.Client
	clock      func() time.Time
}

type Option func(*options)

// WithPushSender replaces the web push transport.
func WithPushSender(s push.Sender) Option {
	return func(o *options) {
		o.sender = s
	}
}

// WithHTTPClient sets the client used for captcha, email and insights calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithClock overrides time.Now for the state machine and scheduler.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.clock = now
	}
}

func New(db *sql.DB, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	loc, err := cfg.Loc()
	if err != nil {
		return nil, err
	}

	pushLogger := logger.With("component", "push")

	statusStore := store.NewStatusStore(db)
	logStore := store.NewLogStore(db)
	slotStore := store.NewSlotStore(db)
	alertStore := store.NewAlertStore(db)
	pushStore := store.NewPushStore(db)
	allowStore := store.NewAllowlistStore(db)
	settingsStore := store.NewSettingsStore(db)
	codeStore := store.NewLoginCodeStore(db)

	s := &Server{
		db:       db,
		cfg:      cfg,
		hub:      ws.NewHub(logger),
		limiter:  middleware.NewRateLimiter(),
		verifier: identity.NewVerifier(cfg.TokenSecret),
		gate:     allowlist.NewGate(allowStore, settingsStore, logger.With("component", "allowlist")),
		logger:   logger,
	}

	sender := o.sender
	if sender == nil {
		sender = push.NewService(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubscriber)
	}
	s.relay = push.NewRelay(pushStore, sender, pushLogger)

	s.machine = occupancy.New(statusStore, logger.With("component", "occupancy"),
		occupancy.WithClock(o.clock),
		occupancy.WithHook(s.onTransition),
	)

	s.sched = push.NewScheduler(s.machine, slotStore, alertStore, s.relay, pushLogger,
		push.WithInterval(cfg.SchedulerInterval),
		push.WithLocation(loc),
		push.WithSchedulerClock(o.clock),
		push.WithSweeper(codeStore),
	)

	s.backups, err = backup.NewManager(BackupConfig(cfg), db, store.NewBackupStore(db), logger.With("component", "backup"))
	switch {
	case errors.Is(err, backup.ErrNotConfigured):
		logger.Info("backups disabled", "s3_configured", cfg.S3.Configured())
	case err != nil:
		return nil, err
	}

	var captchaOpts []captcha.Option
	var emailOpts []email.Option
	var insightsOpts []insights.Option
	if o.httpClient != nil {
		captchaOpts = append(captchaOpts, captcha.WithHTTPClient(o.httpClient))
		emailOpts = append(emailOpts, email.WithHTTPClient(o.httpClient))
		insightsOpts = append(insightsOpts, insights.WithHTTPClient(o.httpClient))
	}

	s.statusH = handler.NewStatusHandler(s.machine, logger.With("component", "status"))
	s.slotH = handler.NewSlotHandler(slotStore, alertStore, s.hub, loc, logger.With("component", "slot"))
	summaries := analytics.NewService(logStore, loc)
	s.logH = handler.NewLogHandler(logStore, summaries, logger.With("component", "log"))
	asker := insights.NewClient(insights.Config{
		URL:    cfg.InsightsURL,
		APIKey: cfg.InsightsAPIKey,
		Model:  cfg.InsightsModel,
	}, insightsOpts...)
	if !asker.Configured() {
		logger.Info("analytics insights disabled")
	}
	s.askH = handler.NewInsightsHandler(asker, summaries, loc, logger.With("component", "insights"))
	s.pushH = handler.NewPushHandler(s.relay, cfg.VAPIDPublicKey, logger.With("component", "push_handler"))
	s.authH = handler.NewAuthHandler(
		captcha.NewClient(captcha.Config{Secret: cfg.TurnstileSecret, VerifyURL: cfg.TurnstileVerifyURL}, captchaOpts...),
		identity.NewIssuer(cfg.TokenSecret, cfg.TokenTTL),
		s.verifier,
		codeStore,
		email.NewClient(cfg.PostmarkToken, cfg.FromEmail, cfg.BaseURL, emailOpts...),
		s.gate,
		logger.With("component", "auth"),
	)

	return s, nil
}

// BackupConfig maps the backup settings of cfg.
func BackupConfig(cfg *config.Config) backup.Config {
	return backup.Config{
		S3: backup.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
		},
		Passphrase: cfg.BackupPassphrase,
	}
}

// Start launches the scheduler, rate limiter cleanup and, when configured,
// scheduled backups. Everything stops when ctx is cancelled or Stop is called.
func (s *Server) Start(ctx context.Context) {
	s.sched.Start(ctx)
	go s.limiter.RunCleanup(ctx, 5*time.Minute)
	if s.backups != nil && s.cfg.BackupInterval > 0 {
		s.backups.Start(ctx, s.cfg.BackupInterval)
	}
}

func (s *Server) Stop() {
	s.sched.Stop()
	if s.backups != nil {
		s.backups.Stop()
	}
}

// onTransition fans a state change out to live clients and other members.
func (s *Server) onTransition(_ context.Context, tr occupancy.Transition) {
	status := map[string]any{"currentUser": nil, "startedAt": nil}
	if tr.Kind == occupancy.KindStarted {
		status = map[string]any{"currentUser": tr.User, "startedAt": tr.StartedAt}
	}
	s.hub.Publish(ws.EntityStatus, string(tr.Kind), "", status)
	if tr.Entry != nil {
		s.hub.Publish(ws.EntityLog, "created", "", tr.Entry)
	}
	s.relay.NotifyAsync(push.StatusNotification(tr))
}

func (s *Server) snapshot(ctx context.Context) (ws.Message, error) {
	st, err := s.machine.Current(ctx)
	if err != nil {
		return ws.Message{}, err
	}
	return ws.NewMessage(ws.EntityStatus, "snapshot", "", st), nil
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.HandleFunc("GET /manifest.webmanifest", manifestHandler)
	outerMux.HandleFunc("GET /api/push/vapid-key", s.pushH.VAPIDKey)
	outerMux.HandleFunc("POST /api/auth/captcha", s.rateLimited(s.authH.Captcha))
	outerMux.HandleFunc("POST /api/auth/email/start", s.rateLimited(s.authH.EmailStart))
	outerMux.HandleFunc("POST /api/auth/email/verify", s.rateLimited(s.authH.EmailVerify))
	outerMux.HandleFunc("GET /api/me/user", handler.GetUser)
	outerMux.HandleFunc("PUT /api/me/user", handler.PutUser)
	outerMux.HandleFunc("DELETE /api/me/user", handler.DeleteUser)

	requireBearer := middleware.RequireBearer(s.verifier, s.gate, s.logger.With("component", "auth"))

	// Browsers cannot set headers on a websocket handshake, so the token
	// may ride in the query string instead.
	outerMux.Handle("GET /ws", tokenFromQuery(requireBearer(ws.HandleWebSocket(s.hub, s.logger, ws.HandlerOptions{
		OriginPatterns: s.cfg.AllowedOrigins,
		Snapshot:       s.snapshot,
	}))))

	// Protected routes
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)
	outerMux.Handle("/", requireBearer(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/push-subscribe", s.pushH.Subscribe)
	mux.HandleFunc("POST /api/push-notify", s.pushH.Notify)
	// Paths the service worker of older installs still posts to.
	mux.HandleFunc("POST /push-subscribe", s.pushH.Subscribe)
	mux.HandleFunc("POST /push-notify", s.pushH.Notify)

	mux.HandleFunc("GET /api/status", s.statusH.Get)
	mux.HandleFunc("POST /api/status/start", s.statusH.Start)
	mux.HandleFunc("POST /api/status/end", s.statusH.End)

	mux.HandleFunc("GET /api/slots", s.slotH.List)
	mux.HandleFunc("GET /api/slots/today", s.slotH.Today)
	mux.HandleFunc("POST /api/slots", s.slotH.Create)
	mux.HandleFunc("PUT /api/slots/{id}", s.slotH.Update)
	mux.HandleFunc("DELETE /api/slots/{id}", s.slotH.Delete)
	mux.HandleFunc("POST /api/slots/{id}/complete", s.slotH.Complete)

	mux.HandleFunc("GET /api/log", s.logH.List)
	mux.HandleFunc("GET /api/analytics", s.logH.Analytics)
	mux.HandleFunc("POST /api/analytics-insights", s.askH.Insights)
}

func (s *Server) rateLimited(h http.HandlerFunc) http.HandlerFunc {
	return middleware.RateLimit(s.limiter, middleware.KeyByIP, authRateLimit, authRatePeriod)(h).ServeHTTP
}

func tokenFromQuery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tok := r.URL.Query().Get("token"); tok != "" && r.Header.Get("Authorization") == "" {
			r.Header.Set("Authorization", "Bearer "+tok)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type manifestIcon struct {
	Src   string `json:"src"`
	Sizes string `json:"sizes"`
	Type  string `json:"type"`
}

var manifest = struct {
	Name            string         `json:"name"`
	ShortName       string         `json:"short_name"`
	StartURL        string         `json:"start_url"`
	Display         string         `json:"display"`
	BackgroundColor string         `json:"background_color"`
	ThemeColor      string         `json:"theme_color"`
	Icons           []manifestIcon `json:"icons"`
}{
	Name:            "💧 WATER HQ",
	ShortName:       "WATER HQ",
	StartURL:        "/",
	Display:         "standalone",
	BackgroundColor: "#F5F0E8",
	ThemeColor:      "#F5F0E8",
	Icons: []manifestIcon{
		{Src: "/icon-192.png", Sizes: "192x192", Type: "image/png"},
		{Src: "/icon-512.png", Sizes: "512x512", Type: "image/png"},
	},
}

func manifestHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/manifest+json")
	json.NewEncoder(w).Encode(manifest)
}
