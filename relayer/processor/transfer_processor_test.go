package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Ethernal-Tech/token-bridge/common"
	"github.com/Ethernal-Tech/token-bridge/relayer/aggregator"
	"github.com/Ethernal-Tech/token-bridge/relayer/core"
	databaseaccess "github.com/Ethernal-Tech/token-bridge/relayer/database_access"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testValidatorID = "validator-1"
	testRecipient   = "0x00000000000000000000000000000000000000bb"
)

func newTestAppConfig() *core.AppConfig {
	config := &core.AppConfig{
		ValidatorID: testValidatorID,
		Chains: map[string]*core.ChainConfig{
			common.ChainIDStrAlpha: {
				ChainType:         common.ChainTypeEVMStr,
				MinTransferAmount: 10,
				MaxTransferAmount: 1000,
			},
			common.ChainIDStrBeta: {
				ChainType: common.ChainTypeEVMStr,
			},
		},
		ApprovalThreshold: 1,
	}
	config.FillOut()

	return config
}

func newTestEvent(nonce, amount uint64) core.ChainEvent {
	return core.ChainEvent{
		Kind:               core.EventKindLocked,
		ChainID:            common.ChainIDStrAlpha,
		Nonce:              nonce,
		TxRef:              common.NewHashFromBytes([]byte{byte(nonce)}),
		Sender:             "0x00000000000000000000000000000000000000aa",
		Recipient:          testRecipient,
		DestinationChainID: common.ChainIDStrBeta,
		Amount:             amount,
	}
}

func newRecord(nonce, amount uint64) *core.TransferRecord {
	return core.NewTransferRecord(core.NewTransferIntent(newTestEvent(nonce, amount), time.Now().UTC()))
}

type processorFixture struct {
	processor  *TransferProcessorImpl
	db         core.Database
	aggregator *aggregator.ApprovalAggregatorImpl
	executor   *core.TxExecutorMock
}

func newFixture(t *testing.T, config *core.AppConfig) *processorFixture {
	t.Helper()

	const filePath = "temp_processor_test.db"

	common.RemoveDirOrFilePathIfExists(filePath)
	t.Cleanup(func() { common.RemoveDirOrFilePathIfExists(filePath) })

	db, err := databaseaccess.NewDatabase(filePath)
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	approvalAggregator := aggregator.NewApprovalAggregator(
		config.ApprovalThreshold, config.ApprovalTTL, hclog.NewNullLogger())
	executorMock := &core.TxExecutorMock{}

	return &processorFixture{
		processor: NewTransferProcessor(config, db, approvalAggregator,
			map[string]core.TxExecutor{common.ChainIDStrBeta: executorMock}, hclog.NewNullLogger()),
		db:         db,
		aggregator: approvalAggregator,
		executor:   executorMock,
	}
}

func TestTransferProcessor(t *testing.T) {
	ctx := context.Background()
	destinationTxRef := common.NewHashFromBytes([]byte{0xdd})

	t.Run("settles transfer with single approval threshold", func(t *testing.T) {
		fixture := newFixture(t, newTestAppConfig())

		record := newRecord(7, 150)
		fixture.executor.On("Submit", mock.Anything, mock.Anything, record.RequestID).
			Return(core.SubmitResult{Status: core.SubmitStatusConfirmed, TxRef: destinationTxRef}, nil).Once()

		require.NoError(t, fixture.processor.Process(ctx, record))
		require.Equal(t, core.TransferStatusSettled, record.Status)
		require.Equal(t, destinationTxRef, record.DestinationTxRef)

		processed, err := fixture.db.IsNonceProcessed(common.ChainIDStrAlpha, 7)
		require.NoError(t, err)
		require.True(t, processed)

		fixture.executor.AssertExpectations(t)
	})

	t.Run("mint action built for locked event", func(t *testing.T) {
		fixture := newFixture(t, newTestAppConfig())

		record := newRecord(8, 150)
		fixture.executor.On("Submit", mock.Anything, mock.MatchedBy(func(action core.ChainAction) bool {
			return action.Kind == core.ActionKindMint &&
				action.ChainID == common.ChainIDStrBeta &&
				action.Recipient == testRecipient &&
				action.Amount == 150 &&
				action.OriginChainID == common.ChainIDStrAlpha &&
				action.OriginNonce == 8 &&
				len(action.Proof) > 0
		}), record.RequestID).
			Return(core.SubmitResult{Status: core.SubmitStatusConfirmed, TxRef: destinationTxRef}, nil).Once()

		require.NoError(t, fixture.processor.Process(ctx, record))
		fixture.executor.AssertExpectations(t)
	})

	t.Run("waits in authorizing below threshold", func(t *testing.T) {
		config := newTestAppConfig()
		config.ApprovalThreshold = 2

		fixture := newFixture(t, newTestAppConfig())
		fixture.processor = NewTransferProcessor(config, fixture.db,
			aggregator.NewApprovalAggregator(2, time.Hour, hclog.NewNullLogger()),
			map[string]core.TxExecutor{common.ChainIDStrBeta: fixture.executor}, hclog.NewNullLogger())

		record := newRecord(9, 150)
		require.NoError(t, fixture.processor.Process(ctx, record))
		require.Equal(t, core.TransferStatusAuthorizing, record.Status)

		// the executor is untouched until quorum
		fixture.executor.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything)

		// re-processing after the own approval is a no-op, still one short
		require.NoError(t, fixture.processor.Process(ctx, record))
		require.Equal(t, core.TransferStatusAuthorizing, record.Status)
	})

	t.Run("executes once quorum is reached", func(t *testing.T) {
		config := newTestAppConfig()
		config.ApprovalThreshold = 2

		fixture := newFixture(t, config)
		fixture.aggregator = aggregator.NewApprovalAggregator(2, time.Hour, hclog.NewNullLogger())
		fixture.processor = NewTransferProcessor(config, fixture.db, fixture.aggregator,
			map[string]core.TxExecutor{common.ChainIDStrBeta: fixture.executor}, hclog.NewNullLogger())

		record := newRecord(10, 150)
		require.NoError(t, fixture.processor.Process(ctx, record))
		require.Equal(t, core.TransferStatusAuthorizing, record.Status)

		_, err := fixture.aggregator.SubmitApproval(
			record.RequestID, "validator-2", core.NewApprovalClaim(record.Intent))
		require.NoError(t, err)

		fixture.executor.On("Submit", mock.Anything, mock.Anything, record.RequestID).
			Return(core.SubmitResult{Status: core.SubmitStatusConfirmed, TxRef: destinationTxRef}, nil).Once()

		require.NoError(t, fixture.processor.Process(ctx, record))
		require.Equal(t, core.TransferStatusSettled, record.Status)

		fixture.executor.AssertExpectations(t)
	})

	t.Run("validation failures fail the transfer", func(t *testing.T) {
		testCases := []struct {
			name   string
			record *core.TransferRecord
		}{
			{"amount below minimum", newRecord(11, 5)},
			{"amount above maximum", newRecord(12, 5000)},
		}

		event := newTestEvent(13, 150)
		event.Recipient = "not-an-address"
		testCases = append(testCases, struct {
			name   string
			record *core.TransferRecord
		}{"malformed recipient", core.NewTransferRecord(core.NewTransferIntent(event, time.Now().UTC()))})

		event = newTestEvent(14, 150)
		event.DestinationChainID = "gamma"
		testCases = append(testCases, struct {
			name   string
			record *core.TransferRecord
		}{"unknown target chain", core.NewTransferRecord(core.NewTransferIntent(event, time.Now().UTC()))})

		for _, testCase := range testCases {
			t.Run(testCase.name, func(t *testing.T) {
				fixture := newFixture(t, newTestAppConfig())

				require.NoError(t, fixture.processor.Process(ctx, testCase.record))
				require.Equal(t, core.TransferStatusFailed, testCase.record.Status)

				// failed transfers never mark the nonce processed
				processed, err := fixture.db.IsNonceProcessed(
					testCase.record.Intent.OriginChainID, testCase.record.Intent.OriginNonce)
				require.NoError(t, err)
				require.False(t, processed)

				fixture.executor.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything)
			})
		}
	})

	t.Run("processed nonce short-circuits to settled", func(t *testing.T) {
		fixture := newFixture(t, newTestAppConfig())

		require.NoError(t, fixture.db.MarkNonceProcessed(common.ChainIDStrAlpha, 15))

		record := newRecord(15, 150)
		require.NoError(t, fixture.processor.Process(ctx, record))
		require.Equal(t, core.TransferStatusSettled, record.Status)

		fixture.executor.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("rejected submission fails permanently", func(t *testing.T) {
		fixture := newFixture(t, newTestAppConfig())

		record := newRecord(16, 150)
		fixture.executor.On("Submit", mock.Anything, mock.Anything, record.RequestID).
			Return(core.SubmitResult{Status: core.SubmitStatusRejected, Reason: "guard reverted"}, nil).Once()

		require.NoError(t, fixture.processor.Process(ctx, record))
		require.Equal(t, core.TransferStatusFailed, record.Status)
		require.Contains(t, record.LastError, "guard reverted")
	})

	t.Run("transient submission failure goes to retrying", func(t *testing.T) {
		fixture := newFixture(t, newTestAppConfig())

		record := newRecord(17, 150)
		fixture.executor.On("Submit", mock.Anything, mock.Anything, record.RequestID).
			Return(core.SubmitResult{}, errors.New("connection refused")).Once()

		require.NoError(t, fixture.processor.Process(ctx, record))
		require.Equal(t, core.TransferStatusRetrying, record.Status)
		require.Equal(t, uint64(1), record.Attempts)

		// the retry succeeds without consulting the aggregator again
		fixture.executor.On("Submit", mock.Anything, mock.Anything, record.RequestID).
			Return(core.SubmitResult{Status: core.SubmitStatusConfirmed, TxRef: destinationTxRef}, nil).Once()

		require.NoError(t, fixture.processor.Process(ctx, record))
		require.Equal(t, core.TransferStatusSettled, record.Status)

		fixture.executor.AssertExpectations(t)
	})

	t.Run("replay at executing skips the aggregator", func(t *testing.T) {
		fixture := newFixture(t, newTestAppConfig())

		// simulate a crash after the Executing transition was persisted,
		// with the in-memory aggregator state lost
		record := newRecord(18, 150)
		require.NoError(t, record.ToAuthorizing())
		require.NoError(t, record.ToExecuting())
		require.NoError(t, fixture.db.UpdateTransfer(record))

		fixture.executor.On("Submit", mock.Anything, mock.Anything, record.RequestID).
			Return(core.SubmitResult{Status: core.SubmitStatusConfirmed, TxRef: destinationTxRef}, nil).Once()

		require.NoError(t, fixture.processor.Process(ctx, record))
		require.Equal(t, core.TransferStatusSettled, record.Status)

		fixture.executor.AssertExpectations(t)
	})

	t.Run("terminal records are no-ops", func(t *testing.T) {
		fixture := newFixture(t, newTestAppConfig())

		record := newRecord(19, 150)
		require.NoError(t, record.ToFailed(errors.New("done")))

		require.NoError(t, fixture.processor.Process(ctx, record))
		require.Equal(t, core.TransferStatusFailed, record.Status)
	})
}
