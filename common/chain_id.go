package common

const (
	ChainTypeEVMStr     = "evm"
	ChainTypeCardanoStr = "cardano"
	ChainTypeSolanaStr  = "solana"

	// Used for tests only
	ChainIDStrAlpha = "alpha"
	ChainIDStrBeta  = "beta"
)

// ToNonceKey builds the db key for a (chain, nonce) pair.
func ToNonceKey(chainID string, nonce uint64) []byte {
	return append(append([]byte(chainID), '_'), Uint64ToBytes(nonce)...)
}
