package aggregator

import (
	"context"
	"sync"
	"time"

	"github.com/Ethernal-Tech/token-bridge/common"
	"github.com/Ethernal-Tech/token-bridge/relayer/core"
	"github.com/Ethernal-Tech/token-bridge/telemetry"
	"github.com/hashicorp/go-hclog"
	"github.com/jellydator/ttlcache/v3"
)

type approvalRequest struct {
	claim      core.ApprovalClaim
	validators map[string]struct{}
	state      core.RequestState
	executed   bool
}

// ApprovalAggregatorImpl collects per-validator approvals per request ID
// until the M-of-N threshold is met. It never blocks: all operations are
// short critical sections over an in-memory TTL-bounded store. A request
// still pending when its TTL expires failed to reach quorum and is reported
// through the onExpired callback.
type ApprovalAggregatorImpl struct {
	threshold int
	requests  *ttlcache.Cache[string, *approvalRequest]
	lock      sync.Mutex

	onApproved func(requestID common.Hash)
	onExpired  func(requestID common.Hash)

	logger hclog.Logger
}

var _ core.ApprovalAggregator = (*ApprovalAggregatorImpl)(nil)

func NewApprovalAggregator(
	threshold int, approvalTTL time.Duration, logger hclog.Logger,
) *ApprovalAggregatorImpl {
	aggregator := &ApprovalAggregatorImpl{
		threshold: threshold,
		requests: ttlcache.New(
			ttlcache.WithTTL[string, *approvalRequest](approvalTTL),
			ttlcache.WithDisableTouchOnHit[string, *approvalRequest](),
		),
		logger: logger,
	}

	aggregator.requests.OnEviction(func(
		_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *approvalRequest],
	) {
		if reason != ttlcache.EvictionReasonExpired {
			return
		}

		// the cache holds its own lock during eviction, so the pending check
		// is moved off the eviction goroutine to keep lock ordering one way
		key := item.Key()
		value := item.Value()

		go func() {
			aggregator.lock.Lock()
			stillPending := value.state == core.RequestStatePending
			aggregator.lock.Unlock()

			if stillPending {
				aggregator.logger.Warn("approval request expired without quorum", "requestID", key)

				if aggregator.onExpired != nil {
					aggregator.onExpired(common.NewHashFromHexString(key))
				}
			}
		}()
	})

	return aggregator
}

// OnApproved registers the callback fired exactly once per request when the
// threshold is reached. Must be set before Start.
func (a *ApprovalAggregatorImpl) OnApproved(callback func(requestID common.Hash)) {
	a.onApproved = callback
}

// OnExpired registers the quorum-timeout callback. Must be set before Start.
func (a *ApprovalAggregatorImpl) OnExpired(callback func(requestID common.Hash)) {
	a.onExpired = callback
}

func (a *ApprovalAggregatorImpl) Start() {
	go a.requests.Start()
}

func (a *ApprovalAggregatorImpl) Stop() {
	a.requests.Stop()
}

// SubmitApproval records one validator approval. The first claim received
// for a request ID is authoritative: later conflicting claims are rejected
// and never overwrite it or count toward quorum. Once execution began the
// request is immutable and further approvals are rejected.
func (a *ApprovalAggregatorImpl) SubmitApproval(
	requestID common.Hash, validatorID string, claim core.ApprovalClaim,
) (core.RequestState, error) {
	approvedNow := false

	a.lock.Lock()

	request := a.getOrCreate(requestID, claim)

	if request.claim != claim {
		state := request.state
		a.lock.Unlock()
		a.logger.Warn("conflicting claim rejected",
			"requestID", requestID, "validatorID", validatorID,
			"storedRecipient", request.claim.Recipient, "storedAmount", request.claim.Amount,
			"recipient", claim.Recipient, "amount", claim.Amount)
		telemetry.UpdateRelayerClaimConflictsCounter(1)

		return state, common.ErrClaimConflict
	}

	if request.executed {
		state := request.state
		a.lock.Unlock()

		return state, common.ErrRequestExecuted
	}

	if _, exists := request.validators[validatorID]; exists {
		state := request.state
		a.lock.Unlock()

		return state, common.ErrDuplicateApproval
	}

	request.validators[validatorID] = struct{}{}

	if request.state == core.RequestStatePending && len(request.validators) >= a.threshold {
		request.state = core.RequestStateApproved
		approvedNow = true
	}

	state := request.state

	a.lock.Unlock()

	telemetry.UpdateRelayerApprovalsCounter(1)

	if approvedNow {
		a.logger.Debug("approval threshold reached", "requestID", requestID,
			"approvals", a.threshold)

		if a.onApproved != nil {
			a.onApproved(requestID)
		}
	}

	return state, nil
}

func (a *ApprovalAggregatorImpl) State(requestID common.Hash) core.RequestState {
	a.lock.Lock()
	defer a.lock.Unlock()

	item := a.requests.Get(requestID.String())
	if item == nil {
		return core.RequestStatePending
	}

	return item.Value().state
}

// TryBeginExecution is the test-and-set guard on the executed flag: it
// returns true exactly once per approved request.
func (a *ApprovalAggregatorImpl) TryBeginExecution(requestID common.Hash) bool {
	a.lock.Lock()
	defer a.lock.Unlock()

	item := a.requests.Get(requestID.String())
	if item == nil {
		return false
	}

	request := item.Value()
	if request.state != core.RequestStateApproved || request.executed {
		return false
	}

	request.executed = true
	request.state = core.RequestStateExecuted

	return true
}

// getOrCreate must be called with the lock held.
func (a *ApprovalAggregatorImpl) getOrCreate(
	requestID common.Hash, claim core.ApprovalClaim,
) *approvalRequest {
	key := requestID.String()

	if item := a.requests.Get(key); item != nil {
		return item.Value()
	}

	request := &approvalRequest{
		claim:      claim,
		validators: map[string]struct{}{},
		state:      core.RequestStatePending,
	}

	a.requests.Set(key, request, ttlcache.DefaultTTL)

	return request
}
