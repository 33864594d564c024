package chainclient

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/Ethernal-Tech/token-bridge/common"
	"github.com/Ethernal-Tech/token-bridge/relayer/core"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/hashicorp/go-hclog"
)

const (
	eventTokensLocked = "TokensLocked"
	eventTokensBurned = "TokensBurned"

	methodMint         = "mint"
	methodUnlock       = "unlock"
	methodRequestState = "requestState"

	receiptWaitTime   = 500 * time.Millisecond
	receiptNumRetries = 120

	alreadyProcessedRevert = "already processed"
)

const bridgeABIJSON = `[
	{"type":"event","name":"TokensLocked","anonymous":false,"inputs":[
		{"name":"nonce","type":"uint64","indexed":false},
		{"name":"sender","type":"address","indexed":false},
		{"name":"recipient","type":"string","indexed":false},
		{"name":"destinationChainId","type":"string","indexed":false},
		{"name":"amount","type":"uint64","indexed":false}]},
	{"type":"event","name":"TokensBurned","anonymous":false,"inputs":[
		{"name":"nonce","type":"uint64","indexed":false},
		{"name":"sender","type":"address","indexed":false},
		{"name":"recipient","type":"string","indexed":false},
		{"name":"destinationChainId","type":"string","indexed":false},
		{"name":"amount","type":"uint64","indexed":false}]},
	{"type":"function","name":"mint","stateMutability":"nonpayable","outputs":[],"inputs":[
		{"name":"requestId","type":"bytes32"},
		{"name":"recipient","type":"address"},
		{"name":"amount","type":"uint64"},
		{"name":"originChainId","type":"string"},
		{"name":"originNonce","type":"uint64"},
		{"name":"proof","type":"bytes"}]},
	{"type":"function","name":"unlock","stateMutability":"nonpayable","outputs":[],"inputs":[
		{"name":"requestId","type":"bytes32"},
		{"name":"recipient","type":"address"},
		{"name":"amount","type":"uint64"},
		{"name":"originChainId","type":"string"},
		{"name":"originNonce","type":"uint64"},
		{"name":"proof","type":"bytes"}]},
	{"type":"function","name":"requestState","stateMutability":"view",
		"inputs":[{"name":"requestId","type":"bytes32"}],
		"outputs":[{"name":"","type":"uint8"}]}
]`

type EVMChainConfig struct {
	NodeURL        string `json:"nodeUrl"`
	BridgeAddress  string `json:"bridgeAddress"`
	SigningKeyPath string `json:"signingKeyPath"`
	DynamicTx      bool   `json:"dynamicTx"`
}

// EVMChainClientImpl talks to one EVM chain through a bridge contract. Lock
// and burn events carry no indexed params, so every field is read from the
// log data. Submissions are serialized per client to keep the account nonce
// sequence straight.
type EVMChainClientImpl struct {
	config     *core.ChainConfig
	evmConfig  *EVMChainConfig
	client     *ethclient.Client
	bridgeABI  abi.ABI
	bridgeAddr ethcommon.Address
	signingKey *ecdsa.PrivateKey
	walletAddr ethcommon.Address
	chainID    *big.Int
	lock       sync.Mutex
	logger     hclog.Logger
}

var _ core.ChainClient = (*EVMChainClientImpl)(nil)

func NewEVMChainClient(config *core.ChainConfig, logger hclog.Logger) (*EVMChainClientImpl, error) {
	evmConfig := &EVMChainConfig{}
	if err := json.Unmarshal(config.ChainSpecific, evmConfig); err != nil {
		return nil, fmt.Errorf("invalid evm config for chain %s: %w", config.ChainID, err)
	}

	bridgeABI, err := abi.JSON(strings.NewReader(bridgeABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse bridge abi: %w", err)
	}

	client, err := ethclient.Dial(evmConfig.NodeURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial node for chain %s: %w", config.ChainID, err)
	}

	c := &EVMChainClientImpl{
		config:     config,
		evmConfig:  evmConfig,
		client:     client,
		bridgeABI:  bridgeABI,
		bridgeAddr: ethcommon.HexToAddress(evmConfig.BridgeAddress),
		logger:     logger,
	}

	if evmConfig.SigningKeyPath != "" {
		signingKey, err := crypto.LoadECDSA(evmConfig.SigningKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load signing key for chain %s: %w", config.ChainID, err)
		}

		c.signingKey = signingKey
		c.walletAddr = crypto.PubkeyToAddress(signingKey.PublicKey)
	}

	return c, nil
}

func (c *EVMChainClientImpl) HeadBlock(ctx context.Context) (uint64, error) {
	return c.client.BlockNumber(ctx)
}

func (c *EVMChainClientImpl) EventsInRange(
	ctx context.Context, fromBlock, toBlock uint64,
) ([]core.ChainEvent, error) {
	lockedTopic := c.bridgeABI.Events[eventTokensLocked].ID
	burnedTopic := c.bridgeABI.Events[eventTokensBurned].ID

	logs, err := c.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []ethcommon.Address{c.bridgeAddr},
		Topics:    [][]ethcommon.Hash{{lockedTopic, burnedTopic}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to filter logs for chain %s: %w", c.config.ChainID, err)
	}

	events := make([]core.ChainEvent, 0, len(logs))

	for _, log := range logs {
		event, err := c.parseLog(log)
		if err != nil {
			c.logger.Error("skipping unparsable bridge log",
				"chainID", c.config.ChainID, "txHash", log.TxHash, "err", err)

			continue
		}

		events = append(events, event)
	}

	return events, nil
}

func (c *EVMChainClientImpl) SubmitAction(
	ctx context.Context, action core.ChainAction, idempotencyKey common.Hash,
) (common.Hash, error) {
	if c.signingKey == nil {
		return common.Hash{}, fmt.Errorf("no signing key configured for chain %s", c.config.ChainID)
	}

	method := methodMint
	if action.Kind == core.ActionKindUnlock {
		method = methodUnlock
	}

	data, err := c.bridgeABI.Pack(method,
		[32]byte(idempotencyKey), ethcommon.HexToAddress(action.Recipient), action.Amount,
		action.OriginChainID, action.OriginNonce, action.Proof)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	chainID, err := c.getChainID(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	nonce, err := c.client.PendingNonceAt(ctx, c.walletAddr)
	if err != nil {
		return common.Hash{}, err
	}

	fees, err := c.suggestFees(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	gasLimit, err := c.client.EstimateGas(ctx, ethereum.CallMsg{
		From: c.walletAddr,
		To:   &c.bridgeAddr,
		Data: data,
	})
	if err != nil {
		// estimation executes the call, so the on-chain replay guard and
		// validation reverts surface here before anything is broadcast
		return common.Hash{}, mapRevertError(err)
	}

	tx := newBridgeTx(chainID, nonce, gasLimit, c.bridgeAddr, data, fees)

	signedTx, err := types.SignTx(tx, types.NewLondonSigner(chainID), c.signingKey)
	if err != nil {
		return common.Hash{}, err
	}

	if err := c.client.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, err
	}

	txRef := common.NewHashFromBytes(signedTx.Hash().Bytes())

	receipt, err := c.waitForReceipt(ctx, signedTx.Hash())
	if err != nil {
		if common.IsContextDoneErr(err) {
			return txRef, err
		}

		// broadcast succeeded but the fate is unknown
		return txRef, common.ErrSubmitIndeterminate
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return txRef, &common.RejectionError{
			Reason: fmt.Sprintf("transaction %s reverted", signedTx.Hash()),
		}
	}

	return txRef, nil
}

func (c *EVMChainClientImpl) ActionStatus(
	ctx context.Context, idempotencyKey common.Hash,
) (core.ActionStatus, error) {
	data, err := c.bridgeABI.Pack(methodRequestState, [32]byte(idempotencyKey))
	if err != nil {
		return core.ActionStatusUnknown, err
	}

	out, err := c.client.CallContract(ctx, ethereum.CallMsg{
		To:   &c.bridgeAddr,
		Data: data,
	}, nil)
	if err != nil {
		return core.ActionStatusUnknown, err
	}

	values, err := c.bridgeABI.Unpack(methodRequestState, out)
	if err != nil || len(values) != 1 {
		return core.ActionStatusUnknown, fmt.Errorf("failed to unpack request state: %w", err)
	}

	state, ok := values[0].(uint8)
	if !ok {
		return core.ActionStatusUnknown, errors.New("unexpected request state type")
	}

	switch state {
	case 1:
		return core.ActionStatusConfirmed, nil
	case 2:
		return core.ActionStatusRejected, nil
	default:
		return core.ActionStatusUnknown, nil
	}
}

func (c *EVMChainClientImpl) parseLog(log types.Log) (core.ChainEvent, error) {
	if len(log.Topics) == 0 {
		return core.ChainEvent{}, errors.New("log without topics")
	}

	var (
		eventName string
		kind      core.EventKind
	)

	switch log.Topics[0] {
	case c.bridgeABI.Events[eventTokensLocked].ID:
		eventName, kind = eventTokensLocked, core.EventKindLocked
	case c.bridgeABI.Events[eventTokensBurned].ID:
		eventName, kind = eventTokensBurned, core.EventKindBurned
	default:
		return core.ChainEvent{}, fmt.Errorf("unknown event topic: %s", log.Topics[0])
	}

	values, err := c.bridgeABI.Unpack(eventName, log.Data)
	if err != nil {
		return core.ChainEvent{}, fmt.Errorf("failed to unpack %s: %w", eventName, err)
	}

	if len(values) != 5 {
		return core.ChainEvent{}, fmt.Errorf("unexpected %s arity: %d", eventName, len(values))
	}

	nonce, okNonce := values[0].(uint64)
	sender, okSender := values[1].(ethcommon.Address)
	recipient, okRecipient := values[2].(string)
	destinationChainID, okDestination := values[3].(string)
	amount, okAmount := values[4].(uint64)

	if !okNonce || !okSender || !okRecipient || !okDestination || !okAmount {
		return core.ChainEvent{}, fmt.Errorf("unexpected %s field types", eventName)
	}

	return core.ChainEvent{
		Kind:               kind,
		ChainID:            c.config.ChainID,
		Nonce:              nonce,
		TxRef:              common.NewHashFromBytes(log.TxHash.Bytes()),
		Sender:             sender.String(),
		Recipient:          recipient,
		DestinationChainID: destinationChainID,
		Amount:             amount,
		BlockNumber:        log.BlockNumber,
		Timestamp:          time.Now().UTC().Unix(),
	}, nil
}

// txFees holds either a legacy gas price or the dynamic-fee pair, never both.
type txFees struct {
	gasPrice  *big.Int
	gasTipCap *big.Int
	baseFee   *big.Int
}

func (c *EVMChainClientImpl) suggestFees(ctx context.Context) (txFees, error) {
	if !c.evmConfig.DynamicTx {
		gasPrice, err := c.client.SuggestGasPrice(ctx)
		if err != nil {
			return txFees{}, err
		}

		return txFees{gasPrice: gasPrice}, nil
	}

	gasTipCap, err := c.client.SuggestGasTipCap(ctx)
	if err != nil {
		return txFees{}, err
	}

	header, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return txFees{}, err
	}

	return txFees{gasTipCap: gasTipCap, baseFee: header.BaseFee}, nil
}

// newBridgeTx builds a dynamic-fee transaction when a tip cap is set and a
// legacy one otherwise. The fee cap covers the tip plus twice the current
// base fee, so the transaction survives base fee growth while queued.
func newBridgeTx(
	chainID *big.Int, nonce, gasLimit uint64,
	to ethcommon.Address, data []byte, fees txFees,
) *types.Transaction {
	if fees.gasTipCap == nil {
		return types.NewTransaction(nonce, to, big.NewInt(0), gasLimit, fees.gasPrice, data)
	}

	gasFeeCap := new(big.Int).Set(fees.gasTipCap)
	if fees.baseFee != nil {
		gasFeeCap.Add(gasFeeCap, new(big.Int).Mul(fees.baseFee, big.NewInt(2)))
	}

	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: fees.gasTipCap,
		GasFeeCap: gasFeeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     big.NewInt(0),
		Data:      data,
	})
}

func (c *EVMChainClientImpl) getChainID(ctx context.Context) (*big.Int, error) {
	if c.chainID != nil {
		return c.chainID, nil
	}

	chainID, err := c.client.ChainID(ctx)
	if err != nil {
		return nil, err
	}

	c.chainID = chainID

	return chainID, nil
}

func (c *EVMChainClientImpl) waitForReceipt(
	ctx context.Context, hash ethcommon.Hash,
) (*types.Receipt, error) {
	for count := 0; count < receiptNumRetries; count++ {
		receipt, err := c.client.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}

		if err != nil && !errors.Is(err, ethereum.NotFound) {
			c.logger.Debug("receipt lookup failed", "txHash", hash, "err", err)
		}

		select {
		case <-time.After(receiptWaitTime):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("timeout while waiting for transaction %s to be processed", hash)
}

func mapRevertError(err error) error {
	msg := strings.ToLower(err.Error())

	if strings.Contains(msg, alreadyProcessedRevert) {
		return common.ErrAlreadyProcessed
	}

	if strings.Contains(msg, "execution reverted") {
		return &common.RejectionError{Reason: err.Error()}
	}

	return err
}
