package rest

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/sqlrest/sqlrest/pkg/config"
	"github.com/sqlrest/sqlrest/pkg/metrics"
	"github.com/sqlrest/sqlrest/pkg/mssql"
	"github.com/sqlrest/sqlrest/pkg/mssql/catalog"
)

// DefaultRetryInterval is the fixed delay between connect attempts.
const DefaultRetryInterval = 30 * time.Second

// DiscoverFunc connects to a target and runs a discovery pass, returning
// the executor that will serve the target's requests and its objects.
type DiscoverFunc func(ctx context.Context, target config.Target) (mssql.Executor, []catalog.Object, error)

// Supervisor drives one target from Disconnected to Connected: attempt a
// connect, and on success run discovery, merge the objects into the shared
// registry, and rebuild the document. Failures (connect or any catalog
// query) schedule another attempt after a fixed interval, forever. Each
// target gets its own supervisor goroutine, so one unreachable database
// never delays another target or the serving process.
type Supervisor struct {
	target   config.Target
	registry *Registry
	docs     *DocumentBuilder
	discover DiscoverFunc
	interval time.Duration
	logger   *zap.Logger
}

func NewSupervisor(target config.Target, registry *Registry, docs *DocumentBuilder, logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{
		target:   target,
		registry: registry,
		docs:     docs,
		discover: connectAndInspect,
		interval: DefaultRetryInterval,
		logger:   logger,
	}
}

// Run blocks until the target connects and registers, or ctx is canceled.
// Once connected the supervisor is done: there is no active health
// checking after a successful discovery pass.
func (s *Supervisor) Run(ctx context.Context) error {
	policy := backoff.WithContext(backoff.NewConstantBackOff(s.interval), ctx)

	return backoff.Retry(func() error {
		err := s.attempt(ctx)
		if err != nil {
			metrics.ConnectAttempts.WithLabelValues(s.target.Name, "failure").Inc()
			s.logger.Warn("connect attempt failed",
				zap.String("target", s.target.Name),
				zap.Duration("retry_in", s.interval),
				zap.Error(err))
		}
		return err
	}, policy)
}

func (s *Supervisor) attempt(ctx context.Context) error {
	exec, objects, err := s.discover(ctx, s.target)
	if err != nil {
		return err
	}

	registered := make([]RegisteredObject, 0, len(objects))
	for _, obj := range objects {
		registered = append(registered, RegisteredObject{
			Target: s.target.Name,
			Object: obj,
			Plan:   PlanMutations(&obj),
			Exec:   exec,
		})
	}

	s.registry.Merge(registered)
	s.docs.Rebuild()

	metrics.ConnectAttempts.WithLabelValues(s.target.Name, "success").Inc()
	metrics.DiscoveredObjects.WithLabelValues(s.target.Name).Set(float64(len(objects)))
	s.logger.Info("target connected",
		zap.String("target", s.target.Name),
		zap.Int("objects", len(objects)))
	return nil
}

// connectAndInspect is the production DiscoverFunc: connect-or-fail, then
// a full catalog pass. A discovery failure closes the connection and is
// treated exactly like a connect failure by the retry loop.
func connectAndInspect(ctx context.Context, target config.Target) (mssql.Executor, []catalog.Object, error) {
	db, err := mssql.Connect(ctx, target)
	if err != nil {
		return nil, nil, err
	}

	objects, err := catalog.Inspect(ctx, db.DB, target.Filter)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, objects, nil
}
