package main

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/council-scraper/internal/catalogue"
	"github.com/sells-group/council-scraper/internal/config"
	"github.com/sells-group/council-scraper/internal/queue"
	"github.com/sells-group/council-scraper/internal/store"
)

// env holds the collaborators a command needs. Fields are nil when the
// command did not ask for them.
type env struct {
	Catalogue *catalogue.Catalogue
	Store     store.Store
	Queue     *queue.RedisQueue

	rdb *redis.Client
}

type envNeeds struct {
	catalogue bool
	store     bool
	queue     bool
}

func openEnv(ctx context.Context, c *config.Config, needs envNeeds) (*env, error) {
	e := &env{}

	if needs.catalogue {
		cat, err := catalogue.Load(c.Catalogue.Path)
		if err != nil {
			return nil, err
		}
		e.Catalogue = cat
		zap.L().Debug("catalogue loaded", zap.String("path", c.Catalogue.Path), zap.Int("councils", cat.Len()))
	}

	if needs.store {
		st, err := store.Open(ctx, store.Options{
			Driver:      c.Store.Driver,
			DatabaseURL: c.Store.DatabaseURL,
			OutputDir:   c.Store.OutputDir,
			Pool:        &store.PoolConfig{MaxConns: c.Store.MaxConns, MinConns: c.Store.MinConns},
		})
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close() //nolint:errcheck
			return nil, err
		}
		e.Store = st
	}

	if needs.queue {
		e.rdb = redis.NewClient(&redis.Options{
			Addr:     c.Queue.Addr,
			Password: c.Queue.Password,
			DB:       c.Queue.DB,
		})
		q := queue.NewRedisQueue(e.rdb, queue.Options{
			Namespace:         c.Queue.Namespace,
			VisibilityTimeout: time.Duration(c.Queue.VisibilityTimeoutSecs) * time.Second,
			MaxDeliveries:     c.Queue.MaxDeliveries,
		})
		if err := q.Ping(ctx); err != nil {
			e.Close()
			return nil, eris.Wrapf(err, "connect to redis at %s", c.Queue.Addr)
		}
		e.Queue = q
	}

	return e, nil
}

// runLog returns the store as a RunLog, or nil when no store is open.
func (e *env) runLog() store.RunLog {
	if e.Store == nil {
		return nil
	}
	return e.Store
}

func (e *env) Close() {
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("close store", zap.Error(err))
		}
	}
	if e.rdb != nil {
		if err := e.rdb.Close(); err != nil {
			zap.L().Warn("close redis", zap.Error(err))
		}
	}
}
