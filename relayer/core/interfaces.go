package core

import (
	"context"
	"time"

	"github.com/Ethernal-Tech/token-bridge/common"
)

// ChainClient is the collaborator boundary towards one ledger. Implementations
// wrap the chain-specific RPC stack.
type ChainClient interface {
	// HeadBlock returns the current best block/slot number.
	HeadBlock(ctx context.Context) (uint64, error)
	// EventsInRange returns transfer events with fromBlock <= BlockNumber <= toBlock,
	// ordered by (BlockNumber, Nonce).
	EventsInRange(ctx context.Context, fromBlock, toBlock uint64) ([]ChainEvent, error)
	// SubmitAction broadcasts a state-changing call guarded on-chain by the
	// idempotency key. Returns common.ErrAlreadyProcessed when the contract
	// guard already settled the key.
	SubmitAction(ctx context.Context, action ChainAction, idempotencyKey common.Hash) (common.Hash, error)
	// ActionStatus resolves the fate of a previously submitted idempotency key.
	ActionStatus(ctx context.Context, idempotencyKey common.Hash) (ActionStatus, error)
}

type ChainWatcher interface {
	Start(ctx context.Context)
	ChainID() string
}

type TxExecutor interface {
	Submit(ctx context.Context, action ChainAction, idempotencyKey common.Hash) (SubmitResult, error)
}

type ApprovalAggregator interface {
	SubmitApproval(requestID common.Hash, validatorID string, claim ApprovalClaim) (RequestState, error)
	State(requestID common.Hash) RequestState
	TryBeginExecution(requestID common.Hash) bool
	Start()
	Stop()
}

type TransferProcessor interface {
	Process(ctx context.Context, record *TransferRecord) error
}

type Relayer interface {
	Start(ctx context.Context) error
	SubmitExternalApproval(requestID common.Hash, validatorID string, claim ApprovalClaim) (RequestState, error)
	SetPaused(paused bool)
	IsPaused() bool
}

type RelayerManager interface {
	Start() error
	Stop() error
}

// Database is the durable state of the relayer: the nonce ledger, transfer
// records and per-chain watcher cursors.
type Database interface {
	IsNonceProcessed(chainID string, nonce uint64) (bool, error)
	// MarkNonceProcessed is atomic for concurrent callers of the same key:
	// the first caller succeeds, every other gets common.ErrAlreadyProcessed.
	MarkNonceProcessed(chainID string, nonce uint64) error

	AddTransfer(record *TransferRecord) error
	UpdateTransfer(record *TransferRecord) error
	GetTransfer(requestID common.Hash) (*TransferRecord, error)
	GetTransfersByStatus(status TransferStatus) ([]*TransferRecord, error)
	GetNonTerminalTransfers() ([]*TransferRecord, error)
	PruneTerminalTransfers(olderThan time.Time) (int, error)

	GetWatcherCursor(chainID string) (uint64, error)
	SetWatcherCursor(chainID string, blockNumber uint64) error

	Close() error
}
