package common

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsValidEVMAddress(t *testing.T) {
	require.True(t, IsValidEVMAddress("0x00112233445566778899aabbccddeeff00112233"))
	require.False(t, IsValidEVMAddress("00112233445566778899aabbccddeeff00112233"))
	require.False(t, IsValidEVMAddress("0x0011"))
	require.False(t, IsValidEVMAddress("0x00112233445566778899aabbccddeeff0011223g"))
	require.False(t, IsValidEVMAddress(""))
}

func TestHashMarshaling(t *testing.T) {
	hash := NewHashFromHexString("0xff01")

	data, err := json.Marshal(hash)
	require.NoError(t, err)

	var decoded Hash

	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, hash, decoded)
}

func TestNewRequestID(t *testing.T) {
	txRef := NewHashFromHexString("0xAA51")

	first := NewRequestID(txRef, "0x00112233445566778899aabbccddeeff00112233", 150)
	second := NewRequestID(txRef, "0x00112233445566778899aabbccddeeff00112233", 150)
	require.Equal(t, first, second)

	otherAmount := NewRequestID(txRef, "0x00112233445566778899aabbccddeeff00112233", 151)
	require.NotEqual(t, first, otherAmount)

	otherRecipient := NewRequestID(txRef, "0x00112233445566778899aabbccddeeff00112234", 150)
	require.NotEqual(t, first, otherRecipient)
}

func TestUint64Bytes(t *testing.T) {
	for _, v := range []uint64{0, 1, 150, 1<<63 + 17} {
		require.Equal(t, v, BytesToUint64(Uint64ToBytes(v)))
	}

	require.Equal(t, uint64(0), BytesToUint64([]byte{0x01}))
}
