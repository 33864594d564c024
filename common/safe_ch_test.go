package common

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSafeCh(t *testing.T) {
	ctx := context.Background()

	t.Run("TestMakeSafeCh", func(t *testing.T) {
		safeCh := MakeSafeCh[int](1)
		require.NotNil(t, safeCh)
	})

	t.Run("TestCloseCloseSafeCh", func(t *testing.T) {
		safeCh := MakeSafeCh[int](1)

		require.NoError(t, safeCh.Close())

		err := safeCh.Close()
		require.Error(t, err)
		require.ErrorContains(t, err, "channel already closed")
	})

	t.Run("TestWriteCloseWriteSafeCh", func(t *testing.T) {
		safeCh := MakeSafeCh[int](1)

		require.NoError(t, safeCh.Write(ctx, 1))
		require.NoError(t, safeCh.Close())

		err := safeCh.Write(ctx, 2)
		require.Error(t, err)
		require.ErrorContains(t, err, "channel already closed")
	})

	t.Run("TestWriteCanceledContext", func(t *testing.T) {
		safeCh := MakeSafeCh[int](0)

		cancelledCtx, cancel := context.WithCancel(context.Background())
		cancel()

		err := safeCh.Write(cancelledCtx, 1)
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("TestReadCloseSafeCh", func(t *testing.T) {
		safeCh := MakeSafeCh[int](1)

		go func() {
			_ = safeCh.Write(ctx, 1)
		}()

		value, ok := <-safeCh.ReadCh()
		require.True(t, ok)
		require.Equal(t, 1, value)

		require.NoError(t, safeCh.Close())

		_, ok = <-safeCh.ReadCh()
		require.False(t, ok)
	})

	t.Run("TestComplexSafeCh", func(t *testing.T) {
		safeCh := MakeSafeCh[int](1)

		go func() {
			<-time.After(time.Millisecond * 100)

			_ = safeCh.Write(ctx, 1)

			<-time.After(time.Millisecond * 100)

			_ = safeCh.Close()
		}()

		firstIteration := true

		for {
			select {
			case value, ok := <-safeCh.ReadCh():
				if firstIteration {
					require.True(t, ok)
					require.Equal(t, 1, value)

					firstIteration = false
				} else {
					require.False(t, ok)

					return
				}
			case <-time.After(time.Millisecond * 500):
				t.Fatalf("timeout")
			}
		}
	})
}
