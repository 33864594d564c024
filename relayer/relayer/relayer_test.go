package relayer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Ethernal-Tech/token-bridge/common"
	"github.com/Ethernal-Tech/token-bridge/relayer/aggregator"
	"github.com/Ethernal-Tech/token-bridge/relayer/chain"
	"github.com/Ethernal-Tech/token-bridge/relayer/core"
	databaseaccess "github.com/Ethernal-Tech/token-bridge/relayer/database_access"
	"github.com/Ethernal-Tech/token-bridge/relayer/executor"
	"github.com/Ethernal-Tech/token-bridge/relayer/processor"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
)

const (
	testRecipientAlpha = "0x00000000000000000000000000000000000000aa"
	testRecipientBeta  = "0x00000000000000000000000000000000000000bb"
)

// fakeChainClient is an in-memory ledger with the same idempotency guard a
// bridge contract enforces on-chain.
type fakeChainClient struct {
	lock      sync.Mutex
	head      uint64
	events    []core.ChainEvent
	processed map[common.Hash]bool
	actions   []core.ChainAction
}

var _ core.ChainClient = (*fakeChainClient)(nil)

func newFakeChainClient(head uint64, events []core.ChainEvent) *fakeChainClient {
	return &fakeChainClient{
		head:      head,
		events:    events,
		processed: map[common.Hash]bool{},
	}
}

func (f *fakeChainClient) HeadBlock(ctx context.Context) (uint64, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	return f.head, nil
}

func (f *fakeChainClient) EventsInRange(
	ctx context.Context, fromBlock, toBlock uint64,
) ([]core.ChainEvent, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	var result []core.ChainEvent

	for _, event := range f.events {
		if event.BlockNumber >= fromBlock && event.BlockNumber <= toBlock {
			result = append(result, event)
		}
	}

	return result, nil
}

func (f *fakeChainClient) SubmitAction(
	ctx context.Context, action core.ChainAction, idempotencyKey common.Hash,
) (common.Hash, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.processed[idempotencyKey] {
		return common.Hash{}, common.ErrAlreadyProcessed
	}

	f.processed[idempotencyKey] = true
	f.actions = append(f.actions, action)

	return common.NewRequestID(idempotencyKey, action.Recipient, action.Amount), nil
}

func (f *fakeChainClient) ActionStatus(
	ctx context.Context, idempotencyKey common.Hash,
) (core.ActionStatus, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.processed[idempotencyKey] {
		return core.ActionStatusConfirmed, nil
	}

	return core.ActionStatusUnknown, nil
}

func (f *fakeChainClient) actionTotals() (mintTotal, unlockTotal uint64, count int) {
	f.lock.Lock()
	defer f.lock.Unlock()

	for _, action := range f.actions {
		switch action.Kind {
		case core.ActionKindMint:
			mintTotal += action.Amount
		case core.ActionKindUnlock:
			unlockTotal += action.Amount
		}
	}

	return mintTotal, unlockTotal, len(f.actions)
}

func newE2EAppConfig() *core.AppConfig {
	config := &core.AppConfig{
		ValidatorID: "validator-1",
		Chains: map[string]*core.ChainConfig{
			common.ChainIDStrAlpha: {
				ChainType:      common.ChainTypeEVMStr,
				FinalityDepth:  2,
				PollTimeMillis: 10,
			},
			common.ChainIDStrBeta: {
				ChainType:      common.ChainTypeEVMStr,
				FinalityDepth:  2,
				PollTimeMillis: 10,
			},
		},
		ApprovalThreshold: 1,
		RetryBaseDelay:    time.Millisecond,
		RequeueTime:       50 * time.Millisecond,
	}
	config.FillOut()

	return config
}

type relayerFixture struct {
	relayer *RelayerImpl
	db      core.Database
	alpha   *fakeChainClient
	beta    *fakeChainClient
}

func newRelayerFixture(
	t *testing.T, config *core.AppConfig, alpha, beta *fakeChainClient,
) *relayerFixture {
	t.Helper()

	const filePath = "temp_relayer_test.db"

	common.RemoveDirOrFilePathIfExists(filePath)
	t.Cleanup(func() { common.RemoveDirOrFilePathIfExists(filePath) })

	db, err := databaseaccess.NewDatabase(filePath)
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	logger := hclog.NewNullLogger()
	approvalAggregator := aggregator.NewApprovalAggregator(
		config.ApprovalThreshold, config.ApprovalTTL, logger)
	eventsCh := common.MakeSafeCh[core.ChainEvent](16)

	executors := map[string]core.TxExecutor{
		common.ChainIDStrAlpha: executor.NewTxExecutor(
			alpha, config.RetryBaseDelay, config.RetryMaxAttempts, logger),
		common.ChainIDStrBeta: executor.NewTxExecutor(
			beta, config.RetryBaseDelay, config.RetryMaxAttempts, logger),
	}

	transferProcessor := processor.NewTransferProcessor(
		config, db, approvalAggregator, executors, logger)

	watchers := []core.ChainWatcher{
		chain.NewChainWatcher(config.Chains[common.ChainIDStrAlpha], alpha, db, eventsCh, logger),
		chain.NewChainWatcher(config.Chains[common.ChainIDStrBeta], beta, db, eventsCh, logger),
	}

	relayerImpl := NewRelayer(config, db, transferProcessor, transferProcessor.Fail,
		approvalAggregator, watchers, eventsCh, logger)

	approvalAggregator.OnApproved(relayerImpl.OnApprovalReached(context.Background()))

	return &relayerFixture{relayer: relayerImpl, db: db, alpha: alpha, beta: beta}
}

func startRelayer(t *testing.T, fixture *relayerFixture) {
	t.Helper()

	ctx, cancelCtx := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancelCtx()
		// give dispatch goroutines a moment to drain before db close
		time.Sleep(100 * time.Millisecond)
	})

	go func() {
		_ = fixture.relayer.Start(ctx)
	}()
}

func requireSettledCount(t *testing.T, db core.Database, expected int) {
	t.Helper()

	require.Eventually(t, func() bool {
		records, err := db.GetTransfersByStatus(core.TransferStatusSettled)

		return err == nil && len(records) == expected
	}, 10*time.Second, 20*time.Millisecond)
}

func TestRelayerEndToEnd(t *testing.T) {
	lockEvent := core.ChainEvent{
		Kind:               core.EventKindLocked,
		ChainID:            common.ChainIDStrAlpha,
		Nonce:              7,
		TxRef:              common.NewHashFromBytes([]byte{0x07}),
		Sender:             testRecipientAlpha,
		Recipient:          testRecipientBeta,
		DestinationChainID: common.ChainIDStrBeta,
		Amount:             150,
		BlockNumber:        5,
	}

	burnEvent := core.ChainEvent{
		Kind:               core.EventKindBurned,
		ChainID:            common.ChainIDStrBeta,
		Nonce:              3,
		TxRef:              common.NewHashFromBytes([]byte{0x03}),
		Sender:             testRecipientBeta,
		Recipient:          testRecipientAlpha,
		DestinationChainID: common.ChainIDStrAlpha,
		Amount:             100,
		BlockNumber:        6,
	}

	t.Run("lock mints and burn unlocks", func(t *testing.T) {
		alpha := newFakeChainClient(10, []core.ChainEvent{lockEvent})
		beta := newFakeChainClient(10, []core.ChainEvent{burnEvent})

		fixture := newRelayerFixture(t, newE2EAppConfig(), alpha, beta)
		startRelayer(t, fixture)

		requireSettledCount(t, fixture.db, 2)

		mintTotal, unlockTotal, actionCount := beta.actionTotals()
		require.Equal(t, uint64(150), mintTotal)
		require.Equal(t, uint64(0), unlockTotal)
		require.Equal(t, 1, actionCount)

		mintTotal, unlockTotal, actionCount = alpha.actionTotals()
		require.Equal(t, uint64(0), mintTotal)
		require.Equal(t, uint64(100), unlockTotal)
		require.Equal(t, 1, actionCount)

		// origin nonces are marked processed
		processed, err := fixture.db.IsNonceProcessed(common.ChainIDStrAlpha, 7)
		require.NoError(t, err)
		require.True(t, processed)

		processed, err = fixture.db.IsNonceProcessed(common.ChainIDStrBeta, 3)
		require.NoError(t, err)
		require.True(t, processed)
	})

	t.Run("duplicate event delivery mints once", func(t *testing.T) {
		// the same lock event delivered twice, as after a stream replay
		alpha := newFakeChainClient(10, []core.ChainEvent{lockEvent, lockEvent})
		beta := newFakeChainClient(10, nil)

		fixture := newRelayerFixture(t, newE2EAppConfig(), alpha, beta)
		startRelayer(t, fixture)

		requireSettledCount(t, fixture.db, 1)

		mintTotal, _, actionCount := beta.actionTotals()
		require.Equal(t, uint64(150), mintTotal)
		require.Equal(t, 1, actionCount)
	})

	t.Run("events below finality depth wait", func(t *testing.T) {
		unfinalized := lockEvent
		unfinalized.BlockNumber = 10

		// head 10, depth 2: block 10 is not finalized yet
		alpha := newFakeChainClient(10, []core.ChainEvent{unfinalized})
		beta := newFakeChainClient(10, nil)

		fixture := newRelayerFixture(t, newE2EAppConfig(), alpha, beta)
		startRelayer(t, fixture)

		time.Sleep(200 * time.Millisecond)

		_, _, actionCount := beta.actionTotals()
		require.Equal(t, 0, actionCount)

		// chain advances, the event finalizes and settles
		alpha.lock.Lock()
		alpha.head = 15
		alpha.lock.Unlock()

		requireSettledCount(t, fixture.db, 1)
	})

	t.Run("paused relayer parks transfers until resume", func(t *testing.T) {
		alpha := newFakeChainClient(10, []core.ChainEvent{lockEvent})
		beta := newFakeChainClient(10, nil)

		fixture := newRelayerFixture(t, newE2EAppConfig(), alpha, beta)
		fixture.relayer.SetPaused(true)

		startRelayer(t, fixture)

		require.Eventually(t, func() bool {
			records, err := fixture.db.GetTransfersByStatus(core.TransferStatusDetected)

			return err == nil && len(records) == 1
		}, 10*time.Second, 20*time.Millisecond)

		_, _, actionCount := beta.actionTotals()
		require.Equal(t, 0, actionCount)

		fixture.relayer.SetPaused(false)

		requireSettledCount(t, fixture.db, 1)
	})

	t.Run("stale snapshot cannot resurrect a terminal transfer", func(t *testing.T) {
		alpha := newFakeChainClient(10, nil)
		beta := newFakeChainClient(10, nil)

		fixture := newRelayerFixture(t, newE2EAppConfig(), alpha, beta)

		record := core.NewTransferRecord(core.NewTransferIntent(lockEvent, time.Now().UTC()))
		require.NoError(t, record.ToFailed(errInsufficientQuorum))
		require.NoError(t, fixture.db.AddTransfer(record))

		// a copy loaded before the failure, as the requeue loop would hold
		stale := core.NewTransferRecord(core.NewTransferIntent(lockEvent, time.Now().UTC()))
		require.Equal(t, core.TransferStatusDetected, stale.Status)

		fixture.relayer.dispatch(context.Background(), stale)

		stored, err := fixture.db.GetTransfer(record.RequestID)
		require.NoError(t, err)
		require.Equal(t, core.TransferStatusFailed, stored.Status)

		_, _, actionCount := beta.actionTotals()
		require.Equal(t, 0, actionCount)
	})

	t.Run("quorum expiry serialized with processing", func(t *testing.T) {
		alpha := newFakeChainClient(10, nil)
		beta := newFakeChainClient(10, nil)

		fixture := newRelayerFixture(t, newE2EAppConfig(), alpha, beta)

		record := core.NewTransferRecord(core.NewTransferIntent(lockEvent, time.Now().UTC()))
		require.NoError(t, record.ToAuthorizing())
		require.NoError(t, fixture.db.AddTransfer(record))

		expire := fixture.relayer.OnApprovalExpired(context.Background())

		// the record is being processed, the expiry round backs off
		require.True(t, fixture.relayer.markInflight(record.RequestID))
		expire(record.RequestID)
		fixture.relayer.unmarkInflight(record.RequestID)

		stored, err := fixture.db.GetTransfer(record.RequestID)
		require.NoError(t, err)
		require.Equal(t, core.TransferStatusAuthorizing, stored.Status)

		// with the slot free the timeout fails the transfer
		expire(record.RequestID)

		stored, err = fixture.db.GetTransfer(record.RequestID)
		require.NoError(t, err)
		require.Equal(t, core.TransferStatusFailed, stored.Status)
		require.Contains(t, stored.LastError, "quorum")
	})

	t.Run("quorum expiry ignores settled transfers", func(t *testing.T) {
		alpha := newFakeChainClient(10, nil)
		beta := newFakeChainClient(10, nil)

		fixture := newRelayerFixture(t, newE2EAppConfig(), alpha, beta)

		record := core.NewTransferRecord(core.NewTransferIntent(lockEvent, time.Now().UTC()))
		require.NoError(t, record.ToAuthorizing())
		require.NoError(t, record.ToExecuting())
		require.NoError(t, record.ToSettled(common.NewHashFromBytes([]byte{0xdd})))
		require.NoError(t, fixture.db.AddTransfer(record))

		fixture.relayer.OnApprovalExpired(context.Background())(record.RequestID)

		stored, err := fixture.db.GetTransfer(record.RequestID)
		require.NoError(t, err)
		require.Equal(t, core.TransferStatusSettled, stored.Status)
	})

	t.Run("crash recovery replays persisted records", func(t *testing.T) {
		alpha := newFakeChainClient(10, nil)
		beta := newFakeChainClient(10, nil)

		fixture := newRelayerFixture(t, newE2EAppConfig(), alpha, beta)

		// a transfer persisted at Executing from a previous run
		record := core.NewTransferRecord(core.NewTransferIntent(lockEvent, time.Now().UTC()))
		require.NoError(t, record.ToAuthorizing())
		require.NoError(t, record.ToExecuting())
		require.NoError(t, fixture.db.AddTransfer(record))
		require.NoError(t, fixture.db.UpdateTransfer(record))

		startRelayer(t, fixture)

		requireSettledCount(t, fixture.db, 1)

		mintTotal, _, actionCount := beta.actionTotals()
		require.Equal(t, uint64(150), mintTotal)
		require.Equal(t, 1, actionCount)
	})
}
