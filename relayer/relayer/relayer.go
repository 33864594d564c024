package relayer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Ethernal-Tech/token-bridge/common"
	"github.com/Ethernal-Tech/token-bridge/relayer/core"
	"github.com/Ethernal-Tech/token-bridge/telemetry"
	"github.com/hashicorp/go-hclog"
)

// terminal transfers are pruned every prunePeriodTicks requeue ticks
const prunePeriodTicks = 30

var errInsufficientQuorum = errors.New("approval quorum not reached before timeout")

// RelayerImpl wires the chain watchers to the transfer processor. All
// events funnel into one dispatcher which serializes work per request ID:
// a record is never processed by two goroutines at once, so replays from a
// stream reconnection cannot run the execution path twice.
type RelayerImpl struct {
	appConfig  *core.AppConfig
	db         core.Database
	processor  core.TransferProcessor
	failFunc   func(record *core.TransferRecord, cause error) error
	aggregator core.ApprovalAggregator
	watchers   []core.ChainWatcher
	eventsCh   *common.SafeCh[core.ChainEvent]
	paused     atomic.Bool

	inflight     map[common.Hash]struct{}
	inflightLock sync.Mutex

	logger hclog.Logger
}

var _ core.Relayer = (*RelayerImpl)(nil)

func NewRelayer(
	appConfig *core.AppConfig,
	db core.Database,
	processor core.TransferProcessor,
	failFunc func(record *core.TransferRecord, cause error) error,
	aggregator core.ApprovalAggregator,
	watchers []core.ChainWatcher,
	eventsCh *common.SafeCh[core.ChainEvent],
	logger hclog.Logger,
) *RelayerImpl {
	return &RelayerImpl{
		appConfig:  appConfig,
		db:         db,
		processor:  processor,
		failFunc:   failFunc,
		aggregator: aggregator,
		watchers:   watchers,
		eventsCh:   eventsCh,
		inflight:   map[common.Hash]struct{}{},
		logger:     logger,
	}
}

func (r *RelayerImpl) Start(ctx context.Context) error {
	r.logger.Debug("Relayer started", "chains", len(r.watchers))

	r.aggregator.Start()
	defer r.aggregator.Stop()

	if err := r.replayUnfinished(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup

	for _, watcher := range r.watchers {
		wg.Add(1)

		go func(watcher core.ChainWatcher) {
			defer wg.Done()

			watcher.Start(ctx)
		}(watcher)
	}

	wg.Add(1)

	go func() {
		defer wg.Done()

		r.requeueLoop(ctx)
	}()

	r.dispatchLoop(ctx)

	wg.Wait()

	return nil
}

// SubmitExternalApproval feeds an approval from another validator into the
// aggregator. Reaching quorum re-dispatches the transfer.
func (r *RelayerImpl) SubmitExternalApproval(
	requestID common.Hash, validatorID string, claim core.ApprovalClaim,
) (core.RequestState, error) {
	return r.aggregator.SubmitApproval(requestID, validatorID, claim)
}

func (r *RelayerImpl) SetPaused(paused bool) {
	r.paused.Store(paused)
	r.logger.Info("relayer pause state changed", "paused", paused)
}

func (r *RelayerImpl) IsPaused() bool {
	return r.paused.Load()
}

// OnApprovalReached is the aggregator callback: the transfer whose quorum
// was just reached gets re-dispatched immediately.
func (r *RelayerImpl) OnApprovalReached(ctx context.Context) func(requestID common.Hash) {
	return func(requestID common.Hash) {
		record, err := r.db.GetTransfer(requestID)
		if err != nil || record == nil {
			return
		}

		go r.dispatch(ctx, record)
	}
}

// OnApprovalExpired is the quorum-timeout callback: a transfer still
// authorizing when its approval request expired failed permanently. It
// takes the same per-request slot as dispatch, so the failure can never
// overwrite a transition raced in by the execution path. A busy slot means
// the record is being processed right now; re-processing recreates the
// aggregator entry, so a transfer that still cannot reach quorum expires
// again on a later round.
func (r *RelayerImpl) OnApprovalExpired(ctx context.Context) func(requestID common.Hash) {
	return func(requestID common.Hash) {
		if !r.markInflight(requestID) {
			return
		}

		defer r.unmarkInflight(requestID)

		record, err := r.db.GetTransfer(requestID)
		if err != nil || record == nil {
			return
		}

		if record.Status != core.TransferStatusAuthorizing {
			return
		}

		if err := r.failFunc(record, errInsufficientQuorum); err != nil {
			r.logger.Error("could not fail transfer on quorum timeout",
				"requestID", requestID, "err", err)
		}
	}
}

// replayUnfinished resumes every non-terminal transfer from its persisted
// status. Correctness does not depend on in-memory state surviving a crash.
func (r *RelayerImpl) replayUnfinished(ctx context.Context) error {
	records, err := r.db.GetNonTerminalTransfers()
	if err != nil {
		return err
	}

	for _, record := range records {
		r.logger.Info("replaying unfinished transfer",
			"requestID", record.RequestID, "status", record.Status)

		go r.dispatch(ctx, record)
	}

	return nil
}

func (r *RelayerImpl) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-r.eventsCh.ReadCh():
			if !ok {
				return
			}

			record, err := r.recordForEvent(event)
			if err != nil {
				r.logger.Error("could not create transfer record",
					"chainID", event.ChainID, "nonce", event.Nonce, "err", err)

				continue
			}

			if r.IsPaused() {
				// record is persisted as Detected, the requeue loop picks it
				// up once the relayer resumes
				r.logger.Debug("relayer paused, transfer parked",
					"chainID", event.ChainID, "nonce", event.Nonce)

				continue
			}

			go r.dispatch(ctx, record)
		}
	}
}

// recordForEvent persists the detected transfer, or loads the existing
// record when the same request ID was already seen (replay).
func (r *RelayerImpl) recordForEvent(event core.ChainEvent) (*core.TransferRecord, error) {
	record := core.NewTransferRecord(core.NewTransferIntent(event, time.Now().UTC()))

	if err := r.db.AddTransfer(record); err != nil {
		return nil, err
	}

	stored, err := r.db.GetTransfer(record.RequestID)
	if err != nil {
		return nil, err
	}

	return stored, nil
}

// requeueLoop periodically re-dispatches transfers parked in Authorizing or
// Retrying, covering quorum reached while a record was inflight and
// transient failures whose backoff round was exhausted.
func (r *RelayerImpl) requeueLoop(ctx context.Context) {
	ticker := time.NewTicker(r.appConfig.RequeueTime)
	defer ticker.Stop()

	pruneCounter := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if r.IsPaused() {
			continue
		}

		records, err := r.db.GetNonTerminalTransfers()
		if err != nil {
			r.logger.Error("requeue load failed", "err", err)

			continue
		}

		for _, record := range records {
			go r.dispatch(ctx, record)
		}

		pruneCounter++
		if pruneCounter >= prunePeriodTicks {
			pruneCounter = 0

			r.pruneRetained()
		}
	}
}

func (r *RelayerImpl) pruneRetained() {
	pruned, err := r.db.PruneTerminalTransfers(time.Now().UTC().Add(-r.appConfig.RetentionPeriod))
	if err != nil {
		r.logger.Error("prune failed", "err", err)

		return
	}

	if pruned > 0 {
		r.logger.Debug("pruned terminal transfers past retention", "count", pruned)
	}
}

func (r *RelayerImpl) dispatch(ctx context.Context, record *core.TransferRecord) {
	if !r.markInflight(record.RequestID) {
		return
	}

	defer r.unmarkInflight(record.RequestID)

	// the snapshot that won the slot may predate a transition made by
	// another path, the persisted row is the authority
	stored, err := r.db.GetTransfer(record.RequestID)
	if err != nil {
		r.logger.Error("could not load transfer for processing",
			"requestID", record.RequestID, "err", err)

		return
	}

	if stored == nil {
		return
	}

	if err := r.processor.Process(ctx, stored); err != nil {
		if !common.IsContextDoneErr(err) {
			r.logger.Error("transfer processing failed",
				"requestID", stored.RequestID, "status", stored.Status, "err", err)
		}
	}
}

func (r *RelayerImpl) markInflight(requestID common.Hash) bool {
	r.inflightLock.Lock()
	defer r.inflightLock.Unlock()

	if _, exists := r.inflight[requestID]; exists {
		return false
	}

	r.inflight[requestID] = struct{}{}
	telemetry.UpdateRelayerInflightTransfersGauge(len(r.inflight))

	return true
}

func (r *RelayerImpl) unmarkInflight(requestID common.Hash) {
	r.inflightLock.Lock()
	defer r.inflightLock.Unlock()

	delete(r.inflight, requestID)
	telemetry.UpdateRelayerInflightTransfersGauge(len(r.inflight))
}
