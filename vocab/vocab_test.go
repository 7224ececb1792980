package vocab

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	v, err := New([]string{"a", "b", "c"})
	require.NoError(t, err)
	require.Equal(t, 3, v.Size())

	id, err := v.ID("b")
	require.NoError(t, err)
	require.Equal(t, 1, id)

	tok, err := v.Token(2)
	require.NoError(t, err)
	require.Equal(t, "c", tok)

	ids, err := v.IDs([]string{"c", "a", "a"})
	require.NoError(t, err)
	require.Equal(t, []int{2, 0, 0}, ids)

	toks, err := v.Tokens(ids)
	require.NoError(t, err)
	require.Equal(t, []string{"c", "a", "a"}, toks)
}

func TestNewRejectsBadTokenLists(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)

	_, err = New([]string{"a", ""})
	require.Error(t, err)

	_, err = New([]string{"a", "b", "a"})
	require.Error(t, err)
}

func TestLookupErrorsAreTyped(t *testing.T) {
	v, err := New([]string{"a", "b"})
	require.NoError(t, err)

	_, err = v.ID("z")
	var verr *Error
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "z", verr.Token)

	_, err = v.Token(5)
	require.ErrorAs(t, err, &verr)
	require.Equal(t, 5, verr.ID)
	require.Equal(t, 2, verr.Size)

	_, err = v.Tokens([]int{0, -1})
	require.Error(t, err)
}
