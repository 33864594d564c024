package core

import (
	"fmt"
	"time"

	"github.com/Ethernal-Tech/token-bridge/common"
)

type EventKind uint8

const (
	EventKindLocked EventKind = iota
	EventKindBurned
)

func (k EventKind) String() string {
	switch k {
	case EventKindLocked:
		return "Locked"
	case EventKindBurned:
		return "Burned"
	default:
		return fmt.Sprintf("EventKind(%d)", uint8(k))
	}
}

// ChainEvent is one raw transfer event read from a chain. The kind set is
// closed: Locked opens a mint leg, Burned opens an unlock leg.
type ChainEvent struct {
	Kind               EventKind   `json:"kind"`
	ChainID            string      `json:"chainId"`
	Nonce              uint64      `json:"nonce"`
	TxRef              common.Hash `json:"txRef"`
	Sender             string      `json:"sender"`
	Recipient          string      `json:"recipient"`
	DestinationChainID string      `json:"destinationChainId"`
	Amount             uint64      `json:"amount"`
	BlockNumber        uint64      `json:"blockNumber"`
	Timestamp          int64       `json:"timestamp"`
}

// TransferIntent is the immutable fact extracted from a finalized chain
// event, uniquely keyed by (OriginChainID, OriginNonce).
type TransferIntent struct {
	OriginChainID string      `json:"originChainId"`
	OriginNonce   uint64      `json:"originNonce"`
	Kind          EventKind   `json:"kind"`
	Sender        string      `json:"sender"`
	Recipient     string      `json:"recipient"`
	Amount        uint64      `json:"amount"`
	TargetChainID string      `json:"targetChainId"`
	SourceTxRef   common.Hash `json:"sourceTxRef"`
	ObservedAt    time.Time   `json:"observedAt"`
}

func NewTransferIntent(event ChainEvent, observedAt time.Time) TransferIntent {
	return TransferIntent{
		OriginChainID: event.ChainID,
		OriginNonce:   event.Nonce,
		Kind:          event.Kind,
		Sender:        event.Sender,
		Recipient:     event.Recipient,
		Amount:        event.Amount,
		TargetChainID: event.DestinationChainID,
		SourceTxRef:   event.TxRef,
		ObservedAt:    observedAt,
	}
}

func (ti TransferIntent) RequestID() common.Hash {
	return common.NewRequestID(ti.SourceTxRef, ti.Recipient, ti.Amount)
}

type TransferStatus string

const (
	TransferStatusDetected    TransferStatus = "Detected"
	TransferStatusAuthorizing TransferStatus = "Authorizing"
	TransferStatusExecuting   TransferStatus = "Executing"
	TransferStatusRetrying    TransferStatus = "Retrying"
	TransferStatusSettled     TransferStatus = "Settled"
	TransferStatusFailed      TransferStatus = "Failed"
)

// TransferRecord tracks one transfer through its lifecycle. It is owned by
// the transfer processor; shared stores are only read through their own
// atomic operations.
type TransferRecord struct {
	Intent           TransferIntent `json:"intent"`
	RequestID        common.Hash    `json:"requestId"`
	Status           TransferStatus `json:"status"`
	Attempts         uint64         `json:"attempts"`
	LastError        string         `json:"lastError,omitempty"`
	DestinationTxRef common.Hash    `json:"destinationTxRef,omitempty"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

func NewTransferRecord(intent TransferIntent) *TransferRecord {
	return &TransferRecord{
		Intent:    intent,
		RequestID: intent.RequestID(),
		Status:    TransferStatusDetected,
		UpdatedAt: time.Now().UTC(),
	}
}

func (r *TransferRecord) DBKey() []byte {
	return r.RequestID[:]
}

func (r *TransferRecord) IsTerminal() bool {
	return r.Status == TransferStatusSettled || r.Status == TransferStatusFailed
}

func (r *TransferRecord) IsTransitionPossible(newStatus TransferStatus) error {
	isInvalidTransition := false

	switch r.Status {
	case TransferStatusDetected:

	case TransferStatusAuthorizing:
		isInvalidTransition = newStatus == TransferStatusDetected
	case TransferStatusExecuting, TransferStatusRetrying:
		isInvalidTransition = newStatus == TransferStatusDetected ||
			newStatus == TransferStatusAuthorizing
	case TransferStatusSettled, TransferStatusFailed:
		isInvalidTransition = true
	}

	if isInvalidTransition {
		return fmt.Errorf("transfer (%s, %d) invalid transition %s -> %s",
			r.Intent.OriginChainID, r.Intent.OriginNonce, r.Status, newStatus)
	}

	return nil
}

func (r *TransferRecord) setStatus(newStatus TransferStatus) error {
	if err := r.IsTransitionPossible(newStatus); err != nil {
		return err
	}

	r.Status = newStatus
	r.UpdatedAt = time.Now().UTC()

	return nil
}

func (r *TransferRecord) ToAuthorizing() error {
	return r.setStatus(TransferStatusAuthorizing)
}

func (r *TransferRecord) ToExecuting() error {
	return r.setStatus(TransferStatusExecuting)
}

func (r *TransferRecord) ToRetrying(cause error) error {
	if err := r.setStatus(TransferStatusRetrying); err != nil {
		return err
	}

	r.Attempts++
	r.LastError = cause.Error()

	return nil
}

func (r *TransferRecord) ToSettled(destinationTxRef common.Hash) error {
	if err := r.setStatus(TransferStatusSettled); err != nil {
		return err
	}

	r.DestinationTxRef = destinationTxRef
	r.LastError = ""

	return nil
}

func (r *TransferRecord) ToFailed(cause error) error {
	if err := r.setStatus(TransferStatusFailed); err != nil {
		return err
	}

	r.LastError = cause.Error()

	return nil
}

// ApprovalClaim is the validator-asserted content of a transfer request.
// The first claim stored for a request ID is authoritative.
type ApprovalClaim struct {
	Recipient   string      `json:"recipient"`
	Amount      uint64      `json:"amount"`
	SourceTxRef common.Hash `json:"sourceTxRef"`
}

func NewApprovalClaim(intent TransferIntent) ApprovalClaim {
	return ApprovalClaim{
		Recipient:   intent.Recipient,
		Amount:      intent.Amount,
		SourceTxRef: intent.SourceTxRef,
	}
}

type RequestState uint8

const (
	RequestStatePending RequestState = iota
	RequestStateApproved
	RequestStateExecuted
)

func (s RequestState) String() string {
	switch s {
	case RequestStatePending:
		return "Pending"
	case RequestStateApproved:
		return "Approved"
	case RequestStateExecuted:
		return "Executed"
	default:
		return fmt.Sprintf("RequestState(%d)", uint8(s))
	}
}

type ActionKind uint8

const (
	ActionKindMint ActionKind = iota
	ActionKindUnlock
)

func (k ActionKind) String() string {
	switch k {
	case ActionKindMint:
		return "mint"
	case ActionKindUnlock:
		return "unlock"
	default:
		return fmt.Sprintf("ActionKind(%d)", uint8(k))
	}
}

// ChainAction is a state-changing call on the destination chain. Proof
// carries the CBOR-encoded authoritative claim.
type ChainAction struct {
	Kind          ActionKind  `json:"kind"`
	ChainID       string      `json:"chainId"`
	Recipient     string      `json:"recipient"`
	Amount        uint64      `json:"amount"`
	OriginChainID string      `json:"originChainId"`
	OriginNonce   uint64      `json:"originNonce"`
	Proof         []byte      `json:"proof"`
}

type SubmitStatus uint8

const (
	SubmitStatusConfirmed SubmitStatus = iota
	SubmitStatusRejected
	SubmitStatusIndeterminate
)

type SubmitResult struct {
	Status SubmitStatus
	TxRef  common.Hash
	Reason string
}

type ActionStatus uint8

const (
	ActionStatusUnknown ActionStatus = iota
	ActionStatusPending
	ActionStatusConfirmed
	ActionStatusRejected
)
