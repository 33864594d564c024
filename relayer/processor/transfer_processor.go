package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/Ethernal-Tech/token-bridge/common"
	"github.com/Ethernal-Tech/token-bridge/relayer/core"
	"github.com/Ethernal-Tech/token-bridge/telemetry"
	"github.com/fxamacker/cbor/v2"
	"github.com/hashicorp/go-hclog"
)

// TransferProcessorImpl owns the lifecycle of individual transfers:
// Detected -> Authorizing -> Executing -> Settled, with Failed on permanent
// errors and Retrying as the transient sub-state of Executing. Process is
// re-entrant: it picks up a record at its persisted status, so crash
// recovery replays a record instead of re-deriving it from raw events.
type TransferProcessorImpl struct {
	appConfig  *core.AppConfig
	db         core.Database
	aggregator core.ApprovalAggregator
	executors  map[string]core.TxExecutor
	logger     hclog.Logger
}

var _ core.TransferProcessor = (*TransferProcessorImpl)(nil)

func NewTransferProcessor(
	appConfig *core.AppConfig,
	db core.Database,
	aggregator core.ApprovalAggregator,
	executors map[string]core.TxExecutor,
	logger hclog.Logger,
) *TransferProcessorImpl {
	return &TransferProcessorImpl{
		appConfig:  appConfig,
		db:         db,
		aggregator: aggregator,
		executors:  executors,
		logger:     logger,
	}
}

func (p *TransferProcessorImpl) Process(ctx context.Context, record *core.TransferRecord) error {
	switch record.Status {
	case core.TransferStatusDetected:
		return p.handleDetected(ctx, record)
	case core.TransferStatusAuthorizing:
		return p.handleAuthorizing(ctx, record)
	case core.TransferStatusExecuting, core.TransferStatusRetrying:
		// quorum was already reached before the last persisted transition,
		// the aggregator is not consulted again on replay
		return p.handleExecuting(ctx, record)
	case core.TransferStatusSettled, core.TransferStatusFailed:
		return nil
	default:
		return fmt.Errorf("transfer %s in unknown status %s", record.RequestID, record.Status)
	}
}

// Fail moves a non-terminal record to Failed. Used by the relayer for
// quorum timeouts. Failed transfers never auto-retry and never mark the
// nonce processed.
func (p *TransferProcessorImpl) Fail(record *core.TransferRecord, cause error) error {
	if err := record.ToFailed(cause); err != nil {
		return err
	}

	if err := p.db.UpdateTransfer(record); err != nil {
		return err
	}

	p.logger.Error("transfer failed", "requestID", record.RequestID,
		"originChainID", record.Intent.OriginChainID, "originNonce", record.Intent.OriginNonce,
		"err", cause)
	telemetry.UpdateRelayerTransfersFailedCounter(record.Intent.OriginChainID, 1)

	return nil
}

func (p *TransferProcessorImpl) handleDetected(
	ctx context.Context, record *core.TransferRecord,
) error {
	if err := p.validateIntent(record.Intent); err != nil {
		return p.Fail(record, err)
	}

	processed, err := p.db.IsNonceProcessed(record.Intent.OriginChainID, record.Intent.OriginNonce)
	if err != nil {
		return err
	}

	if processed {
		// settled by an earlier run, approvals are not consulted
		if err := record.ToSettled(common.Hash{}); err != nil {
			return err
		}

		if err := p.db.UpdateTransfer(record); err != nil {
			return err
		}

		p.logger.Debug("nonce already processed, transfer settled without action",
			"requestID", record.RequestID)

		return nil
	}

	if err := record.ToAuthorizing(); err != nil {
		return err
	}

	if err := p.db.UpdateTransfer(record); err != nil {
		return err
	}

	return p.handleAuthorizing(ctx, record)
}

func (p *TransferProcessorImpl) handleAuthorizing(
	ctx context.Context, record *core.TransferRecord,
) error {
	// re-submitting our own approval is safe: a duplicate is rejected
	// without affecting the count, and a replay after crash restores the
	// aggregator entry lost with process memory. A request already past the
	// execution test-and-set rejects the approval, another path owns it.
	_, err := p.aggregator.SubmitApproval(
		record.RequestID, p.appConfig.ValidatorID, core.NewApprovalClaim(record.Intent))
	if err != nil &&
		!errors.Is(err, common.ErrDuplicateApproval) &&
		!errors.Is(err, common.ErrRequestExecuted) {
		if errors.Is(err, common.ErrClaimConflict) {
			return p.Fail(record, fmt.Errorf("own claim conflicts with stored claim: %w", err))
		}

		return err
	}

	if p.aggregator.State(record.RequestID) != core.RequestStateApproved {
		// waiting for quorum, the approval callback re-dispatches this record
		return nil
	}

	if !p.aggregator.TryBeginExecution(record.RequestID) {
		return nil
	}

	if err := record.ToExecuting(); err != nil {
		return err
	}

	if err := p.db.UpdateTransfer(record); err != nil {
		return err
	}

	return p.handleExecuting(ctx, record)
}

func (p *TransferProcessorImpl) handleExecuting(
	ctx context.Context, record *core.TransferRecord,
) error {
	if record.Status == core.TransferStatusRetrying {
		if err := record.ToExecuting(); err != nil {
			return err
		}
	}

	executor, exists := p.executors[record.Intent.TargetChainID]
	if !exists {
		return p.Fail(record, fmt.Errorf("no executor for target chain: %s", record.Intent.TargetChainID))
	}

	action, err := p.buildAction(record.Intent)
	if err != nil {
		return p.Fail(record, err)
	}

	result, err := executor.Submit(ctx, action, record.RequestID)
	if err != nil {
		if common.IsContextDoneErr(err) {
			return err
		}

		return p.retryLater(record, err)
	}

	switch result.Status {
	case core.SubmitStatusConfirmed:
		return p.settle(record, result.TxRef)
	case core.SubmitStatusRejected:
		return p.Fail(record, &common.RejectionError{Reason: result.Reason})
	default:
		return p.retryLater(record, common.ErrSubmitIndeterminate)
	}
}

func (p *TransferProcessorImpl) settle(record *core.TransferRecord, txRef common.Hash) error {
	err := p.db.MarkNonceProcessed(record.Intent.OriginChainID, record.Intent.OriginNonce)
	if err != nil && !errors.Is(err, common.ErrAlreadyProcessed) {
		return err
	}

	if errors.Is(err, common.ErrAlreadyProcessed) {
		p.logger.Debug("nonce marked by another path", "requestID", record.RequestID)
	}

	if err := record.ToSettled(txRef); err != nil {
		return err
	}

	if err := p.db.UpdateTransfer(record); err != nil {
		return err
	}

	p.logger.Info("transfer settled", "requestID", record.RequestID,
		"originChainID", record.Intent.OriginChainID, "originNonce", record.Intent.OriginNonce,
		"destinationTxRef", txRef)
	telemetry.UpdateRelayerTransfersSettledCounter(record.Intent.OriginChainID, 1)

	return nil
}

func (p *TransferProcessorImpl) retryLater(record *core.TransferRecord, cause error) error {
	if err := record.ToRetrying(cause); err != nil {
		return err
	}

	if err := p.db.UpdateTransfer(record); err != nil {
		return err
	}

	if record.Attempts >= p.appConfig.RetryWarningAttempts {
		p.logger.Warn("transfer retrying beyond warning threshold",
			"requestID", record.RequestID, "attempts", record.Attempts, "err", cause)
		telemetry.UpdateRelayerRetryWarning(record.Intent.OriginChainID, 1)
	}

	return nil
}

func (p *TransferProcessorImpl) validateIntent(intent core.TransferIntent) error {
	targetConfig, exists := p.appConfig.Chains[intent.TargetChainID]
	if !exists {
		return fmt.Errorf("unknown target chain: %s", intent.TargetChainID)
	}

	originConfig, exists := p.appConfig.Chains[intent.OriginChainID]
	if !exists {
		return fmt.Errorf("unknown origin chain: %s", intent.OriginChainID)
	}

	if intent.Amount < originConfig.MinTransferAmount {
		return fmt.Errorf("amount %d below configured minimum %d",
			intent.Amount, originConfig.MinTransferAmount)
	}

	if originConfig.MaxTransferAmount != 0 && intent.Amount > originConfig.MaxTransferAmount {
		return fmt.Errorf("amount %d above configured maximum %d",
			intent.Amount, originConfig.MaxTransferAmount)
	}

	if targetConfig.ChainType == common.ChainTypeEVMStr && !common.IsValidEVMAddress(intent.Recipient) {
		return fmt.Errorf("malformed recipient address: %s", intent.Recipient)
	}

	if intent.Recipient == "" {
		return errors.New("empty recipient address")
	}

	return nil
}

func (p *TransferProcessorImpl) buildAction(intent core.TransferIntent) (core.ChainAction, error) {
	proof, err := cbor.Marshal(core.NewApprovalClaim(intent))
	if err != nil {
		return core.ChainAction{}, fmt.Errorf("could not encode proof: %w", err)
	}

	actionKind := core.ActionKindMint
	if intent.Kind == core.EventKindBurned {
		actionKind = core.ActionKindUnlock
	}

	return core.ChainAction{
		Kind:          actionKind,
		ChainID:       intent.TargetChainID,
		Recipient:     intent.Recipient,
		Amount:        intent.Amount,
		OriginChainID: intent.OriginChainID,
		OriginNonce:   intent.OriginNonce,
		Proof:         proof,
	}, nil
}
