package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidMailboxName(t *testing.T) {
	require.True(t, validMailboxName("Projetos"))
	require.True(t, validMailboxName("A_"))
	require.True(t, validMailboxName("100%"))

	require.False(t, validMailboxName(""))
	require.False(t, validMailboxName("Ghost.Child"))
	require.False(t, validMailboxName("."))
}

func TestEscapeLike(t *testing.T) {
	require.Equal(t, "INBOX", escapeLike("INBOX"))
	require.Equal(t, `A\_`, escapeLike("A_"))
	require.Equal(t, `100\%`, escapeLike("100%"))
	require.Equal(t, `a\\b`, escapeLike(`a\b`))
	require.Equal(t, `A\_.100\%`, escapeLike("A_.100%"))
}

func TestDedupeRecipients(t *testing.T) {
	require.Equal(t,
		[]string{"Ana@example.com", "ana@example.com"},
		dedupeRecipients([]string{" Ana@example.com ", "ana@example.com", "", "Ana@example.com"}))
	require.Nil(t, dedupeRecipients(nil))
}
