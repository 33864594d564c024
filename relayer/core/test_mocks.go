package core

import (
	"context"

	"github.com/Ethernal-Tech/token-bridge/common"
	"github.com/stretchr/testify/mock"
)

type ChainClientMock struct {
	mock.Mock
}

var _ ChainClient = (*ChainClientMock)(nil)

func (m *ChainClientMock) HeadBlock(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)

	return args.Get(0).(uint64), args.Error(1) //nolint:forcetypeassert
}

func (m *ChainClientMock) EventsInRange(
	ctx context.Context, fromBlock, toBlock uint64,
) ([]ChainEvent, error) {
	args := m.Called(ctx, fromBlock, toBlock)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]ChainEvent), args.Error(1) //nolint:forcetypeassert
}

func (m *ChainClientMock) SubmitAction(
	ctx context.Context, action ChainAction, idempotencyKey common.Hash,
) (common.Hash, error) {
	args := m.Called(ctx, action, idempotencyKey)

	return args.Get(0).(common.Hash), args.Error(1) //nolint:forcetypeassert
}

func (m *ChainClientMock) ActionStatus(
	ctx context.Context, idempotencyKey common.Hash,
) (ActionStatus, error) {
	args := m.Called(ctx, idempotencyKey)

	return args.Get(0).(ActionStatus), args.Error(1) //nolint:forcetypeassert
}

type TxExecutorMock struct {
	mock.Mock
}

var _ TxExecutor = (*TxExecutorMock)(nil)

func (m *TxExecutorMock) Submit(
	ctx context.Context, action ChainAction, idempotencyKey common.Hash,
) (SubmitResult, error) {
	args := m.Called(ctx, action, idempotencyKey)

	return args.Get(0).(SubmitResult), args.Error(1) //nolint:forcetypeassert
}

type TransferProcessorMock struct {
	mock.Mock
}

var _ TransferProcessor = (*TransferProcessorMock)(nil)

func (m *TransferProcessorMock) Process(ctx context.Context, record *TransferRecord) error {
	args := m.Called(ctx, record)

	return args.Error(0)
}
