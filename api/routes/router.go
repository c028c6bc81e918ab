package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/gpo-backend/api/controllers"
	gpocontrollers "github.com/angelmondragon/gpo-backend/api/controllers/gpo"
	"github.com/angelmondragon/gpo-backend/api/middleware"
	"github.com/angelmondragon/gpo-backend/internal/demand"
	"github.com/angelmondragon/gpo-backend/internal/grouporders"
	"github.com/angelmondragon/gpo-backend/internal/groups"
	"github.com/angelmondragon/gpo-backend/internal/intents"
	"github.com/angelmondragon/gpo-backend/internal/savings"
	"github.com/angelmondragon/gpo-backend/pkg/config"
	"github.com/angelmondragon/gpo-backend/pkg/db"
	"github.com/angelmondragon/gpo-backend/pkg/logger"
	"github.com/angelmondragon/gpo-backend/pkg/metrics"
	"github.com/angelmondragon/gpo-backend/pkg/redis"
)

type idempotencyStore interface {
	redis.IdempotencyStore
	redis.Pinger
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient idempotencyStore,
	gatherer prometheus.Gatherer,
	groupService groups.Service,
	intentService intents.Service,
	demandService demand.Service,
	orderService grouporders.Service,
	savingsService savings.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})
	if gatherer != nil {
		r.Handle("/metrics", metrics.Handler(gatherer))
	}

	idem := middleware.Idempotency(redisClient, middleware.IdempotencyTTLs{
		Default:  cfg.GPO.IdempotencyTTL,
		Critical: cfg.GPO.CriticalIdempotencyTTL,
	}, logg)

	r.Route("/api/v1/gpo", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Get("/groups", gpocontrollers.ListGroups(groupService, logg))
		r.With(middleware.RequirePlatformAdmin(logg)).Post("/groups", gpocontrollers.CreateGroup(groupService, logg))

		r.Route("/groups/{slug}", func(r chi.Router) {
			r.Use(middleware.GroupContext(groupService, logg))

			r.Get("/", gpocontrollers.GetGroup(logg))
			r.Get("/members", gpocontrollers.ListMembers(groupService, logg))
			r.Get("/thresholds", gpocontrollers.ListThresholds(groupService, logg))
			r.Get("/demand", gpocontrollers.GroupDemand(demandService, nil, logg))

			r.Get("/intents", gpocontrollers.ListIntents(intentService, logg))
			r.With(idem).Post("/intents", gpocontrollers.SubmitIntent(intentService, logg))
			r.Delete("/intents/{intentId}", gpocontrollers.CancelIntent(intentService, logg))

			r.Get("/orders", gpocontrollers.ListOrders(orderService, logg))
			r.Get("/orders/{orderId}", gpocontrollers.GetOrder(orderService, logg))
			r.Get("/orders/{orderId}/allocations", gpocontrollers.OrderAllocations(orderService, logg))

			r.Get("/savings", gpocontrollers.GroupSavings(savingsService, logg))
			r.Get("/savings/me", gpocontrollers.MySavings(savingsService, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireGroupAdmin(logg))

				r.Put("/", gpocontrollers.UpdateGroup(groupService, logg))
				r.Post("/members", gpocontrollers.AddMember(groupService, logg))
				r.Delete("/members/{memberId}", gpocontrollers.RemoveMember(groupService, logg))
				r.Put("/thresholds", gpocontrollers.SetThreshold(groupService, logg))

				r.With(idem).Post("/orders", gpocontrollers.CreateOrder(orderService, logg))
				r.Put("/orders/{orderId}/status", gpocontrollers.AdvanceOrder(orderService, logg))
				r.Put("/orders/{orderId}/pricing", gpocontrollers.SetOrderPricing(orderService, logg))
				r.With(idem).Post("/orders/{orderId}/cancel", gpocontrollers.CancelOrder(orderService, logg))
				r.Get("/facilitation-fees", gpocontrollers.ListFacilitationFees(orderService, logg))
			})
		})
	})

	return r
}
