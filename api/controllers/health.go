package controllers

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/gpo-backend/api/responses"
	"github.com/angelmondragon/gpo-backend/pkg/config"
	"github.com/angelmondragon/gpo-backend/pkg/db"
	pkgerrors "github.com/angelmondragon/gpo-backend/pkg/errors"
	"github.com/angelmondragon/gpo-backend/pkg/logger"
	"github.com/angelmondragon/gpo-backend/pkg/redis"
)

const readyTimeout = 2 * time.Second

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-GPO-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings the database and redis concurrently and answers 503 when
// either is unreachable. A nil pinger is skipped.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP redis.Pinger) http.HandlerFunc {
	pingers := map[string]interface{ Ping(context.Context) error }{}
	if dbP != nil {
		pingers["db"] = dbP
	}
	if redisP != nil {
		pingers["redis"] = redisP
	}

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-GPO-Env", cfg.App.Env)
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		var mu sync.Mutex
		checks := make(map[string]string, len(pingers))
		var group errgroup.Group
		for name, p := range pingers {
			group.Go(func() error {
				err := p.Ping(ctx)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					checks[name] = "unavailable"
					return fmt.Errorf("%s: %w", name, err)
				}
				checks[name] = "ok"
				return nil
			})
		}

		if err := group.Wait(); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "dependencies unavailable").
				WithDetails(map[string]any{"checks": checks}))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
