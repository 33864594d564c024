package chain

import (
	"context"
	"time"

	"github.com/Ethernal-Tech/token-bridge/common"
	"github.com/Ethernal-Tech/token-bridge/relayer/core"
	"github.com/Ethernal-Tech/token-bridge/telemetry"
	"github.com/hashicorp/go-hclog"
	"github.com/sethvargo/go-retry"
)

const (
	headBlockRetryCount    = 5
	headBlockRetryWaitTime = time.Second
)

// ChainWatcherImpl polls one chain for transfer events. An event is handed
// off only after it is at least FinalityDepth blocks deep. Every transfer
// record in a finalized range is persisted before the first hand-off and the
// cursor advances only after the whole range was handed off, so a crash at
// any point either re-delivers from the last acknowledged cursor or replays
// the already persisted records. Downstream dedups by request ID and nonce,
// so both forms of re-delivery are safe.
type ChainWatcherImpl struct {
	config   *core.ChainConfig
	client   core.ChainClient
	db       core.Database
	eventsCh *common.SafeCh[core.ChainEvent]
	logger   hclog.Logger
}

var _ core.ChainWatcher = (*ChainWatcherImpl)(nil)

func NewChainWatcher(
	config *core.ChainConfig, client core.ChainClient, db core.Database,
	eventsCh *common.SafeCh[core.ChainEvent], logger hclog.Logger,
) *ChainWatcherImpl {
	return &ChainWatcherImpl{
		config:   config,
		client:   client,
		db:       db,
		eventsCh: eventsCh,
		logger:   logger,
	}
}

func (w *ChainWatcherImpl) ChainID() string {
	return w.config.ChainID
}

func (w *ChainWatcherImpl) Start(ctx context.Context) {
	w.logger.Debug("Chain watcher started", "chainID", w.config.ChainID)

	ticker := time.NewTicker(time.Millisecond * time.Duration(w.config.PollTimeMillis))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := w.poll(ctx); err != nil {
			if common.IsContextDoneErr(err) {
				return
			}

			w.logger.Error("poll failed", "chainID", w.config.ChainID, "err", err)
		}
	}
}

func (w *ChainWatcherImpl) poll(ctx context.Context) error {
	var head uint64

	err := retry.Do(ctx,
		retry.WithMaxRetries(headBlockRetryCount, retry.NewConstant(headBlockRetryWaitTime)),
		func(ctx context.Context) error {
			value, err := w.client.HeadBlock(ctx)
			if err != nil {
				return retry.RetryableError(err)
			}

			head = value

			return nil
		})
	if err != nil {
		return err
	}

	if head < w.config.FinalityDepth {
		return nil
	}

	finalizedHead := head - w.config.FinalityDepth

	cursor, err := w.db.GetWatcherCursor(w.config.ChainID)
	if err != nil {
		return err
	}

	if cursor == 0 && w.config.StartBlock > 0 {
		cursor = w.config.StartBlock
	}

	if finalizedHead <= cursor {
		return nil
	}

	events, err := w.client.EventsInRange(ctx, cursor+1, finalizedHead)
	if err != nil {
		return err
	}

	// every record in the range is durable before anything is handed off:
	// a crash with events still queued in memory replays them from the db,
	// never from a cursor position that was already skipped
	for _, event := range events {
		record := core.NewTransferRecord(core.NewTransferIntent(event, time.Now().UTC()))

		if err := w.db.AddTransfer(record); err != nil {
			return err
		}
	}

	for _, event := range events {
		if err := w.eventsCh.Write(ctx, event); err != nil {
			return err
		}
	}

	if len(events) > 0 {
		w.logger.Debug("events handed off",
			"chainID", w.config.ChainID, "count", len(events),
			"fromBlock", cursor+1, "toBlock", finalizedHead)
		telemetry.UpdateWatcherEventsReceivedCounter(w.config.ChainID, len(events))
	}

	// the cursor moves only after a full hand-off of the range
	if err := w.db.SetWatcherCursor(w.config.ChainID, finalizedHead); err != nil {
		return err
	}

	telemetry.UpdateWatcherCursorGauge(w.config.ChainID, finalizedHead)

	return nil
}
