package executor

import (
	"context"
	"errors"
	"time"

	"github.com/Ethernal-Tech/token-bridge/common"
	"github.com/Ethernal-Tech/token-bridge/relayer/core"
	"github.com/Ethernal-Tech/token-bridge/telemetry"
	"github.com/hashicorp/go-hclog"
	"github.com/sethvargo/go-retry"
)

const backoffCap = time.Minute

// TxExecutorImpl submits destination-chain actions with bounded exponential
// backoff. Every attempt reuses the same idempotency key, so the on-chain
// guard is the final backstop against duplication. An indeterminate outcome
// (broadcast succeeded, confirmation unknown) is resolved by a status
// re-check before anything is re-sent.
type TxExecutorImpl struct {
	client           core.ChainClient
	retryBaseDelay   time.Duration
	retryMaxAttempts uint64
	logger           hclog.Logger
}

var _ core.TxExecutor = (*TxExecutorImpl)(nil)

func NewTxExecutor(
	client core.ChainClient, retryBaseDelay time.Duration, retryMaxAttempts uint64,
	logger hclog.Logger,
) *TxExecutorImpl {
	return &TxExecutorImpl{
		client:           client,
		retryBaseDelay:   retryBaseDelay,
		retryMaxAttempts: retryMaxAttempts,
		logger:           logger,
	}
}

func (e *TxExecutorImpl) Submit(
	ctx context.Context, action core.ChainAction, idempotencyKey common.Hash,
) (core.SubmitResult, error) {
	var (
		result        core.SubmitResult
		indeterminate bool
		attempt       uint64
	)

	backoff := retry.WithMaxRetries(e.retryMaxAttempts,
		retry.WithCappedDuration(backoffCap, retry.NewExponential(e.retryBaseDelay)))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if attempt > 0 {
			telemetry.UpdateExecutorRetriesCounter(action.ChainID, 1)
		}

		attempt++

		if indeterminate {
			done, err := e.resolveIndeterminate(ctx, idempotencyKey, &result)
			if err != nil {
				return retry.RetryableError(err)
			}

			if done {
				return nil
			}

			indeterminate = false
		}

		txRef, err := e.client.SubmitAction(ctx, action, idempotencyKey)

		switch {
		case err == nil:
			result = core.SubmitResult{Status: core.SubmitStatusConfirmed, TxRef: txRef}

			return nil

		case errors.Is(err, common.ErrAlreadyProcessed):
			// another path already settled this key
			result = core.SubmitResult{Status: core.SubmitStatusConfirmed, TxRef: txRef}

			return nil

		case errors.Is(err, common.ErrSubmitIndeterminate):
			e.logger.Warn("submission outcome indeterminate, will re-check status",
				"chainID", action.ChainID, "idempotencyKey", idempotencyKey)
			telemetry.UpdateExecutorIndeterminateCounter(action.ChainID, 1)

			indeterminate = true

			return retry.RetryableError(err)

		case common.IsTransientError(err):
			e.logger.Debug("transient submission failure",
				"chainID", action.ChainID, "idempotencyKey", idempotencyKey, "err", err)

			return retry.RetryableError(err)

		default:
			var rejection *common.RejectionError
			if errors.As(err, &rejection) {
				result = core.SubmitResult{Status: core.SubmitStatusRejected, Reason: rejection.Reason}

				return nil
			}

			return err
		}
	})
	if err != nil {
		if common.IsContextDoneErr(err) {
			return core.SubmitResult{}, err
		}

		// retries exhausted without a resolved outcome
		if indeterminate {
			return core.SubmitResult{Status: core.SubmitStatusIndeterminate}, err
		}

		return core.SubmitResult{}, err
	}

	return result, nil
}

// resolveIndeterminate asks the destination what happened to the key before
// any blind retry. Returns done = true when the fate is known.
func (e *TxExecutorImpl) resolveIndeterminate(
	ctx context.Context, idempotencyKey common.Hash, result *core.SubmitResult,
) (bool, error) {
	status, err := e.client.ActionStatus(ctx, idempotencyKey)
	if err != nil {
		return false, err
	}

	switch status {
	case core.ActionStatusConfirmed:
		*result = core.SubmitResult{Status: core.SubmitStatusConfirmed}

		return true, nil
	case core.ActionStatusRejected:
		*result = core.SubmitResult{Status: core.SubmitStatusRejected, Reason: "rejected on status re-check"}

		return true, nil
	case core.ActionStatusPending:
		return false, errors.New("action still pending on destination")
	default:
		// never landed, safe to re-submit with the same key
		return false, nil
	}
}
