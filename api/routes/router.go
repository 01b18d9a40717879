package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/orderplanner/api/controllers"
	"github.com/angelmondragon/orderplanner/api/middleware"
	product "github.com/angelmondragon/orderplanner/internal/products"
	"github.com/angelmondragon/orderplanner/internal/weeks"
	"github.com/angelmondragon/orderplanner/pkg/config"
	"github.com/angelmondragon/orderplanner/pkg/db"
	"github.com/angelmondragon/orderplanner/pkg/logger"
	"github.com/angelmondragon/orderplanner/pkg/redis"
)

// Dependencies are the services mounted by the router. Redis and Metrics are optional.
type Dependencies struct {
	DB       db.Pinger
	Redis    redis.Pinger
	Products product.Service
	Weeks    weeks.Service
	Metrics  http.Handler
	Now      func() time.Time
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	if logg == nil {
		logg = logger.Nop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/calendar", func(r chi.Router) {
			r.Get("/current-week", controllers.CalendarCurrentWeek(now))
			r.Get("/weeks", controllers.CalendarWeeksInMonth(now, logg))
			r.Get("/weeks/{year}/{week}", controllers.CalendarWeek(logg))
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", controllers.ProductList(deps.Products, logg))
			r.Route("/{reference}", func(r chi.Router) {
				r.Get("/", controllers.ProductGet(deps.Products, logg))
				r.Patch("/", controllers.ProductUpdate(deps.Products, logg))
				r.Put("/visibility", controllers.ProductSetVisibility(deps.Products, logg))
				r.Put("/unit-conversion", controllers.ProductSetUnitConversion(deps.Products, logg))
				r.Delete("/unit-conversion", controllers.ProductClearUnitConversion(deps.Products, logg))
			})
		})

		r.Route("/weeks/{year}/{week}", func(r chi.Router) {
			r.Get("/", controllers.WeekGet(deps.Weeks, logg))
			r.Get("/plan", controllers.WeekPlan(deps.Weeks, logg))
			r.Post("/recompute", controllers.WeekRecompute(deps.Weeks, logg))
			r.Post("/import", controllers.WeekImport(deps.Weeks, cfg.Import.MaxUploadBytes(), logg))
			r.Put("/forecast", controllers.WeekSetForecastBatch(deps.Weeks, logg))
			r.Put("/forecast/{date}", controllers.WeekSetForecast(deps.Weeks, logg))
			r.Route("/orders/{orderNumber}", func(r chi.Router) {
				r.Put("/stock/{reference}", controllers.WeekSetRealStock(deps.Weeks, logg))
				r.Delete("/stock/{reference}", controllers.WeekClearRealStock(deps.Weeks, logg))
				r.Put("/ordered/{reference}", controllers.WeekSetOrdered(deps.Weeks, logg))
			})
		})
	})

	return r
}
