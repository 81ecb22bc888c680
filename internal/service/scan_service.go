// Package service runs one scan cycle end to end and keeps the shared status
// record that the API serves.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/notify"
)

// ErrCycleSkipped is returned when another replica holds the scan lock.
var ErrCycleSkipped = errors.New("service: scan cycle skipped")

// ChainReader is the chain data one cycle needs.
type ChainReader interface {
	BlockHeight(ctx context.Context) (uint64, error)
	GasPrice(ctx context.Context) (*big.Int, error)
}

// Scanner produces candidate opportunities.
type Scanner interface {
	Scan(ctx context.Context) []domain.Opportunity
}

// Evaluator moves a candidate through profitability and financing checks.
type Evaluator interface {
	Process(ctx context.Context, opp *domain.Opportunity, gasPriceWei *big.Int) domain.Verdict
}

// Dispatcher accepts fundable opportunities without blocking.
type Dispatcher interface {
	Submit(opp domain.Opportunity) bool
}

// Publisher fans opportunities and status out to stream consumers.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Notifier accepts outbound alerts without blocking.
type Notifier interface {
	Enqueue(kind, title, message string) bool
}

// ScanConfig configures a ScanService.
type ScanConfig struct {
	// LockTTL bounds how long a replica holds the scan lock.
	LockTTL time.Duration
	// ArchiveEvery archives every Nth report; 0 disables archiving.
	ArchiveEvery int
}

// ScanService runs scan cycles. Every dependency after the evaluator is
// optional and set with its setter.
type ScanService struct {
	cfg       ScanConfig
	chain     ChainReader
	scanner   Scanner
	evaluator Evaluator
	status    *StatusTracker
	logger    *slog.Logger

	dispatcher Dispatcher
	notifier   Notifier
	bus        Publisher
	locks      domain.LockManager
	archiver   domain.ReportArchiver

	cycles int
	now    func() time.Time
}

// NewScanService creates a ScanService.
func NewScanService(cfg ScanConfig, chain ChainReader, scanner Scanner, evaluator Evaluator, status *StatusTracker, logger *slog.Logger) *ScanService {
	return &ScanService{
		cfg:       cfg,
		chain:     chain,
		scanner:   scanner,
		evaluator: evaluator,
		status:    status,
		logger:    logger.With(slog.String("component", "scan_service")),
		now:       time.Now,
	}
}

// SetDispatcher enables dispatch of fundable opportunities.
func (s *ScanService) SetDispatcher(d Dispatcher) { s.dispatcher = d }

// SetNotifier enables opportunity and error alerts.
func (s *ScanService) SetNotifier(n Notifier) { s.notifier = n }

// SetBus enables publishing opportunities and status.
func (s *ScanService) SetBus(bus Publisher) { s.bus = bus }

// SetLocks enables the cross-replica scan lock.
func (s *ScanService) SetLocks(l domain.LockManager) { s.locks = l }

// SetArchiver enables periodic report archiving.
func (s *ScanService) SetArchiver(a domain.ReportArchiver) { s.archiver = a }

// RunCycle performs one full scan: chain snapshot, quotes, evaluation and
// hand-off. Cycles are never run concurrently by the scheduler, so the
// service keeps no locks of its own.
func (s *ScanService) RunCycle(ctx context.Context) (domain.ScanReport, error) {
	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, "scan", s.cfg.LockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			s.logger.DebugContext(ctx, "scan lock held elsewhere, skipping")
			return domain.ScanReport{}, ErrCycleSkipped
		}
		if err != nil {
			// A broken lock backend must not stop a single replica.
			s.logger.WarnContext(ctx, "scan lock unavailable, scanning anyway", slog.String("error", err.Error()))
		} else {
			defer unlock()
		}
	}

	start := s.now()
	block, gasWei, err := s.chainSnapshot(ctx)
	if err != nil {
		s.status.RecordFailure()
		s.logger.WarnContext(ctx, "scan cycle aborted", slog.String("error", err.Error()))
		if s.notifier != nil {
			title, body := notify.ErrorMessage("scan cycle", err, s.now())
			s.notifier.Enqueue(notify.EventError, title, body)
		}
		return domain.ScanReport{}, fmt.Errorf("service: scan cycle: %w", err)
	}

	opps := s.scanner.Scan(ctx)
	for i := range opps {
		s.handle(ctx, &opps[i], gasWei)
	}

	report := domain.ScanReport{
		StartedAt:     start.UTC(),
		Took:          s.now().Sub(start),
		Block:         block,
		GasPriceGwei:  decimal.NewFromBigInt(gasWei, -9),
		Opportunities: opps,
	}
	s.status.RecordCycle(report.StartedAt, report.Took, block)
	s.logger.InfoContext(ctx, "scan cycle complete",
		slog.Uint64("block", block),
		slog.String("gas_gwei", report.GasPriceGwei.StringFixed(2)),
		slog.Int("opportunities", len(opps)),
		slog.Duration("took", report.Took),
	)

	s.publish(ctx, domain.ChannelStatus, s.status.Snapshot())
	s.archive(ctx, report)
	return report, nil
}

// chainSnapshot fetches block height and gas price concurrently.
func (s *ScanService) chainSnapshot(ctx context.Context) (uint64, *big.Int, error) {
	var (
		block  uint64
		gasWei *big.Int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		block, err = s.chain.BlockHeight(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		gasWei, err = s.chain.GasPrice(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return 0, nil, err
	}
	return block, gasWei, nil
}

func (s *ScanService) handle(ctx context.Context, opp *domain.Opportunity, gasWei *big.Int) {
	verdict := s.evaluator.Process(ctx, opp, gasWei)
	s.status.RecordOpportunity(*opp)
	s.publish(ctx, domain.ChannelOpportunity, opp)

	if verdict != domain.VerdictFundable {
		return
	}
	if s.notifier != nil {
		title, body := notify.OpportunityMessage(*opp)
		s.notifier.Enqueue(notify.EventOpportunity, title, body)
	}
	if s.dispatcher != nil {
		s.dispatcher.Submit(*opp)
	}
}

func (s *ScanService) publish(ctx context.Context, channel string, v any) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		s.logger.WarnContext(ctx, "marshal bus payload failed", slog.String("error", err.Error()))
		return
	}
	if err := s.bus.Publish(ctx, channel, payload); err != nil {
		s.logger.WarnContext(ctx, "bus publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

func (s *ScanService) archive(ctx context.Context, report domain.ScanReport) {
	if s.archiver == nil || s.cfg.ArchiveEvery <= 0 {
		return
	}
	s.cycles++
	if s.cycles%s.cfg.ArchiveEvery != 0 {
		return
	}
	if err := s.archiver.Archive(ctx, report); err != nil {
		s.logger.WarnContext(ctx, "report archive failed", slog.String("error", err.Error()))
	}
}
