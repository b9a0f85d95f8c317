package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/TickerVal-io/tickerval/internal/archive"
	"github.com/TickerVal-io/tickerval/internal/auth"
	"github.com/TickerVal-io/tickerval/internal/billing"
	"github.com/TickerVal-io/tickerval/internal/config"
	"github.com/TickerVal-io/tickerval/internal/database"
	"github.com/TickerVal-io/tickerval/internal/entitlement"
	"github.com/TickerVal-io/tickerval/internal/gate"
	"github.com/TickerVal-io/tickerval/internal/reports"
	"github.com/TickerVal-io/tickerval/internal/subscription"
	"github.com/TickerVal-io/tickerval/internal/usage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// snapshotArchive is the slice of the archive client the admin surface
// needs for browsing stored report snapshots.
type snapshotArchive interface {
	ListSnapshots(ctx context.Context, ticker string) ([]string, error)
	PresignSnapshot(ctx context.Context, key string, expiration time.Duration) (string, error)
}

type Api struct {
	Config *config.Config
	Router *chi.Mux

	tokenManager *auth.TokenManager
	store        subscription.Store
	gate         *gate.Gate
	reports      *reports.Service
	billing      *billing.Client
	reconciler   *billing.Reconciler
	webhook      *billing.WebhookHandler
	archive      snapshotArchive
}

func NewApi(cfg *config.Config) (*Api, error) {
	tokenManager := auth.NewTokenManager(cfg.Secrets.TokenSecret)
	store := subscription.NewSQLStore(database.GetDB())

	policy := entitlement.Policy{
		AnonymousViews: cfg.Quota.AnonymousViews,
		FreeViews:      cfg.Quota.FreeViews,
	}
	codec := usage.NewCodec(cfg.Secrets.UsageSecret)

	var (
		archiver  reports.Archiver
		snapshots snapshotArchive
	)
	if cfg.Archive.Enabled {
		s3Client, err := archive.NewS3Client(
			cfg.Archive.Endpoint,
			cfg.Archive.Region,
			cfg.Archive.Bucket,
			cfg.Archive.AccessKeyID,
			cfg.Archive.SecretAccessKey,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create archive client: %w", err)
		}
		archiver = s3Client
		snapshots = s3Client
	}

	billing.Init(cfg.Stripe.SecretKey)
	reconciler := billing.NewReconciler(store, nil)

	api := &Api{
		Config:       cfg,
		Router:       chi.NewRouter(),
		tokenManager: tokenManager,
		store:        store,
		gate:         gate.New(policy, codec, store, cfg.Domains.Secure),
		reports: reports.NewService(
			cfg.Providers.FinnhubURL,
			cfg.Providers.FinnhubKey,
			cfg.Providers.FMPURL,
			cfg.Providers.FMPKey,
			archiver,
		),
		billing: billing.NewClient(
			cfg.Stripe.PriceIDProMonthly,
			cfg.Stripe.SuccessURL,
			cfg.Stripe.CancelURL,
		),
		reconciler: reconciler,
		webhook: billing.NewWebhookHandler(
			cfg.Stripe.WebhookSecret,
			reconciler,
		),
		archive: snapshots,
	}

	api.setupRoutes()
	return api, nil
}

func (api *Api) setupRoutes() {
	r := api.Router

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://*.local:*", "http://localhost:*", "http://127.0.0.1:*", "https://" + api.Config.Domains.App},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	r.Get("/heartbeat", api.Heartbeat)
	r.Handle("/metrics", promhttp.Handler())

	// Webhook route carries its own authentication (the Stripe signature),
	// so it stays outside the identity middleware.
	r.Post("/api/billing/webhook", api.webhook.ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(auth.ResolveIdentity(api.tokenManager))

		// Auth routes
		r.Post("/auth/register", auth.RegisterHandler)
		r.Post("/auth/login", auth.LoginHandler)
		r.Post("/auth/logout", auth.LogoutHandler)

		// Catalog browsing is never metered.
		r.Get("/api/tickers", reports.ListTickersHandler)

		// Opening a report is; the gate admits, counts or redirects.
		r.Group(func(r chi.Router) {
			r.Use(api.gate.Middleware)
			r.Get("/api/reports/{ticker}", api.reports.GetReportHandler)
		})

		// Billing and token minting require a signed-in account.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth)
			r.Post("/auth/token", auth.TokenHandler(api.tokenManager))
			r.Post("/api/billing/checkout", api.CreateCheckoutHandler)
			r.Get("/api/billing/verify", api.VerifyCheckoutHandler)
		})
	})

	// Operator surface, guarded by a static token.
	r.Group(func(r chi.Router) {
		r.Use(api.AdminAuthMiddleware)
		r.Post("/admin/subscriptions/{email}/activate", api.AdminActivateHandler)
		r.Get("/admin/subscriptions/{email}", api.AdminGetSubscriptionHandler)
		r.Get("/admin/reports/{ticker}/snapshots", api.AdminListSnapshotsHandler)
	})
}

func (api *Api) Serve() {
	// Start session cleanup goroutine
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			err := auth.CleanupExpiredSessions()
			if err != nil {
				log.Printf("Error cleaning up expired sessions: %v", err)
			}
			<-ticker.C
		}
	}()

	log.Printf("Starting API server on 0.0.0.0:%d", api.Config.APIPort)
	log.Fatal(http.ListenAndServe(fmt.Sprintf("0.0.0.0:%d", api.Config.APIPort), api.Router))
}

func (api *Api) Heartbeat(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
