package common

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

func DecodeHex(s string) ([]byte, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
	}

	return hex.DecodeString(s)
}

// IsValidEVMAddress checks the 0x-prefixed 42 character form expected by
// EVM destinations. Anything else is treated as malformed.
func IsValidEVMAddress(addr string) bool {
	if !strings.HasPrefix(addr, "0x") || len(addr) != 42 {
		return false
	}

	_, err := hex.DecodeString(addr[2:])

	return err == nil
}

func Uint64ToBytes(v uint64) []byte {
	result := make([]byte, 8)
	binary.BigEndian.PutUint64(result, v)

	return result
}

func BytesToUint64(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}

	return binary.BigEndian.Uint64(b)
}

func IsContextDoneErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// RetryForever repeats handler until it succeeds or ctx is done.
func RetryForever(ctx context.Context, interval time.Duration, handler func(context.Context) error) error {
	for {
		err := handler(ctx)
		if err == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
