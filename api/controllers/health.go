package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/orderplanner/api/responses"
	"github.com/angelmondragon/orderplanner/pkg/config"
	"github.com/angelmondragon/orderplanner/pkg/db"
	pkgerrors "github.com/angelmondragon/orderplanner/pkg/errors"
	"github.com/angelmondragon/orderplanner/pkg/logger"
	"github.com/angelmondragon/orderplanner/pkg/redis"
)

const readinessTimeout = 2 * time.Second

const envHeader = "X-OrderPlanner-Env"

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings the database and, when configured, Redis.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		checks := map[string]string{}
		var failed error
		if dbP != nil {
			checks["database"] = "ok"
			if err := dbP.Ping(ctx); err != nil {
				checks["database"] = "unavailable"
				failed = err
			}
		}
		if redisP != nil {
			checks["redis"] = "ok"
			if err := redisP.Ping(ctx); err != nil {
				checks["redis"] = "unavailable"
				failed = err
			}
		}

		if failed != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, failed, "not ready").WithDetails(checks))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
