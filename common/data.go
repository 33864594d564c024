package common

import (
	"encoding/binary"
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

const HashSize = 32

type Hash [HashSize]byte

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(h[:])), nil
}

func (h *Hash) UnmarshalText(data []byte) error {
	v, err := hex.DecodeString(strings.TrimPrefix(string(data), "0x"))
	if err != nil {
		return err
	}

	*h = NewHashFromBytes(v)

	return nil
}

func NewHashFromHexString(hash string) Hash {
	v, _ := hex.DecodeString(strings.TrimPrefix(hash, "0x"))

	return NewHashFromBytes(v)
}

func NewHashFromBytes(bytes []byte) Hash {
	if len(bytes) != HashSize {
		result := Hash{}
		size := min(HashSize, len(bytes))

		copy(result[HashSize-size:], bytes[:size])

		return result
	}

	return Hash(bytes)
}

// NewRequestID computes the deterministic idempotency key for one logical
// transfer. Two observations of the same (source tx, recipient, amount)
// triple always map to the same request ID, so a replayed event collapses
// into the already tracked transfer.
func NewRequestID(sourceTxRef Hash, recipient string, amount uint64) Hash {
	amountBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(amountBytes, amount)

	return Hash(crypto.Keccak256Hash(sourceTxRef[:], []byte(recipient), amountBytes))
}
