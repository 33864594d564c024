package chainclient

import (
	"errors"
	"math/big"
	"testing"

	"github.com/Ethernal-Tech/token-bridge/common"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

func TestNewBridgeTx(t *testing.T) {
	chainID := big.NewInt(1337)
	to := ethcommon.HexToAddress("0x00000000000000000000000000000000000000cc")
	data := []byte{0x01, 0x02}

	t.Run("legacy transaction without tip cap", func(t *testing.T) {
		tx := newBridgeTx(chainID, 7, 21000, to, data, txFees{gasPrice: big.NewInt(50)})

		require.Equal(t, uint8(types.LegacyTxType), tx.Type())
		require.Equal(t, uint64(7), tx.Nonce())
		require.Equal(t, big.NewInt(50), tx.GasPrice())
		require.Equal(t, to, *tx.To())
	})

	t.Run("dynamic fee transaction caps tip plus twice base fee", func(t *testing.T) {
		tx := newBridgeTx(chainID, 7, 21000, to, data, txFees{
			gasTipCap: big.NewInt(2),
			baseFee:   big.NewInt(100),
		})

		require.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
		require.Equal(t, big.NewInt(2), tx.GasTipCap())
		require.Equal(t, big.NewInt(202), tx.GasFeeCap())
		require.Equal(t, chainID, tx.ChainId())
	})

	t.Run("dynamic fee transaction without base fee", func(t *testing.T) {
		tx := newBridgeTx(chainID, 7, 21000, to, data, txFees{gasTipCap: big.NewInt(2)})

		require.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
		require.Equal(t, big.NewInt(2), tx.GasFeeCap())
	})
}

func TestMapRevertError(t *testing.T) {
	t.Run("replay guard maps to already processed", func(t *testing.T) {
		err := mapRevertError(errors.New("execution reverted: Already Processed"))
		require.ErrorIs(t, err, common.ErrAlreadyProcessed)
	})

	t.Run("other reverts map to rejection", func(t *testing.T) {
		err := mapRevertError(errors.New("execution reverted: amount out of bounds"))

		var rejection *common.RejectionError

		require.ErrorAs(t, err, &rejection)
		require.Contains(t, rejection.Reason, "amount out of bounds")
	})

	t.Run("transport errors pass through", func(t *testing.T) {
		cause := errors.New("connection refused")
		require.Equal(t, cause, mapRevertError(cause))
	})
}
