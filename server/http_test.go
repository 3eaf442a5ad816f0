package server

import (
	"testing"

	"github.com/aferreira/novemail/storage"
	"github.com/stretchr/testify/require"
)

func TestRetryBusyRecovers(t *testing.T) {
	calls := 0
	err := retryBusy(func() error {
		calls++
		if calls < 3 {
			return storage.ErrBusy
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestRetryBusyGivesUp(t *testing.T) {
	calls := 0
	err := retryBusy(func() error {
		calls++
		return storage.ErrBusy
	})
	require.ErrorIs(t, err, storage.ErrBusy)
	require.Equal(t, 3, calls)
}

func TestRetryBusyOtherErrorsPassThrough(t *testing.T) {
	calls := 0
	err := retryBusy(func() error {
		calls++
		return storage.ErrMailboxNotFound
	})
	require.ErrorIs(t, err, storage.ErrMailboxNotFound)
	require.Equal(t, 1, calls)
}
