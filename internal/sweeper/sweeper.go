// Package sweeper periodically confirms pending cashback whose confirmation
// window has elapsed. A lease row keeps at most one instance sweeping.
package sweeper

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/farellandr/cashback/internal/metrics"
	"github.com/farellandr/cashback/internal/tracing"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const LeaseName = "cashback-sweeper"

type Confirmer interface {
	ConfirmDue(ctx context.Context, limit int) (int, error)
}

type Leases interface {
	Acquire(ctx context.Context, name, holder string, now time.Time, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name, holder string) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Result string

const (
	ResultOK          Result = "ok"
	ResultUnreachable Result = "unreachable"
	ResultLeaseHeld   Result = "lease_held"
	ResultFailed      Result = "failed"
)

// ExitCode maps a tick result to the sweep command's exit status.
func (r Result) ExitCode() int {
	switch r {
	case ResultOK:
		return 0
	case ResultLeaseHeld:
		return 2
	}
	return 1
}

type Report struct {
	Result    Result
	Confirmed int
	Err       error
}

type Config struct {
	BatchSize int
	LeaseTTL  time.Duration
	// Timeout bounds one tick; zero means LeaseTTL so a tick never outlives
	// its lease.
	Timeout time.Duration
}

type Sweeper struct {
	ledger Confirmer
	leases Leases
	store  Pinger
	cfg    Config
	holder string
	log    *zap.Logger
	now    func() time.Time
}

func New(ledger Confirmer, leases Leases, store Pinger, cfg Config, log *zap.Logger) *Sweeper {
	return &Sweeper{
		ledger: ledger,
		leases: leases,
		store:  store,
		cfg:    cfg,
		holder: HolderID(),
		log:    log,
		now:    time.Now,
	}
}

func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

func (s *Sweeper) WithHolder(holder string) *Sweeper {
	s.holder = holder
	return s
}

func (s *Sweeper) Holder() string {
	return s.holder
}

// HolderID identifies this process in the lease row.
func HolderID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()[:8])
}

// Tick confirms at most one batch of due transactions while holding the lease.
func (s *Sweeper) Tick(ctx context.Context) Report {
	timeout := s.cfg.Timeout
	if timeout <= 0 {
		timeout = s.cfg.LeaseTTL
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	ctx, span := tracing.Tracer().Start(ctx, "sweeper.Tick")
	defer span.End()

	rep := s.tick(ctx)
	span.SetAttributes(
		attribute.String("sweeper.result", string(rep.Result)),
		attribute.Int("sweeper.confirmed", rep.Confirmed),
	)
	metrics.SweeperTicks.WithLabelValues(string(rep.Result)).Inc()
	metrics.SweeperConfirmed.Add(float64(rep.Confirmed))

	switch rep.Result {
	case ResultOK:
		if rep.Confirmed > 0 {
			s.log.Info("sweep finished", zap.Int("confirmed", rep.Confirmed))
		}
	case ResultLeaseHeld:
		s.log.Debug("sweep skipped, lease held elsewhere")
	default:
		s.log.Error("sweep failed",
			zap.String("result", string(rep.Result)),
			zap.Int("confirmed", rep.Confirmed),
			zap.Error(rep.Err),
		)
	}
	return rep
}

func (s *Sweeper) tick(ctx context.Context) Report {
	if err := s.store.Ping(ctx); err != nil {
		return Report{Result: ResultUnreachable, Err: err}
	}
	ok, err := s.leases.Acquire(ctx, LeaseName, s.holder, s.now().UTC(), s.cfg.LeaseTTL)
	if err != nil {
		return Report{Result: ResultUnreachable, Err: err}
	}
	if !ok {
		return Report{Result: ResultLeaseHeld}
	}

	n, err := s.ledger.ConfirmDue(ctx, s.cfg.BatchSize)
	if err != nil {
		return Report{Result: ResultFailed, Confirmed: n, Err: err}
	}
	return Report{Result: ResultOK, Confirmed: n}
}

// Release gives up the lease so another instance can sweep immediately.
func (s *Sweeper) Release(ctx context.Context) error {
	return s.leases.Release(ctx, LeaseName, s.holder)
}

// Run ticks immediately and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	s.log.Info("sweeper started",
		zap.String("holder", s.holder),
		zap.Duration("interval", interval),
		zap.Int("batch_size", s.cfg.BatchSize),
	)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.Tick(ctx)
		select {
		case <-ctx.Done():
			release, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			if err := s.Release(release); err != nil {
				s.log.Warn("failed to release sweeper lease", zap.Error(err))
			}
			cancel()
			s.log.Info("sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}
