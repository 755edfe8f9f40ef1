package failure

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMatchesKindSentinel(t *testing.T) {
	cause := errors.New("disk full")
	err := Storage("storage.insert", cause)

	assert.ErrorIs(t, err, ErrStorage)
	assert.NotErrorIs(t, err, ErrEncryption)
	assert.NotErrorIs(t, err, ErrSerialization)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "storage.insert: storage failure: disk full", err.Error())
}

func TestKindOfFindsWrappedFailure(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", Encryption("crypto.decrypt", nil))

	kind, ok := KindOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, KindEncryption, kind)

	_, ok = KindOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestEnsureKeepsExistingKind(t *testing.T) {
	original := Serialization("transfer.read", errors.New("bad json"))

	assert.Same(t, original, Ensure(KindStorage, "repo", original))
	assert.Nil(t, Ensure(KindStorage, "repo", nil))

	wrapped := Ensure(KindStorage, "repo", errors.New("io"))
	assert.ErrorIs(t, wrapped, ErrStorage)
}

func TestResultHoldsExactlyOneState(t *testing.T) {
	ok := Ok([]int{1, 2})
	value, isOk := ok.Value()
	assert.True(t, isOk)
	assert.Equal(t, []int{1, 2}, value)
	assert.NoError(t, ok.Err())

	failed := Fail[[]int](Encryption("op", nil))
	_, isOk = failed.Value()
	assert.False(t, isOk)
	assert.ErrorIs(t, failed.Err(), ErrEncryption)

	empty := Fail[int](nil)
	assert.False(t, empty.IsOk())
	assert.ErrorIs(t, empty.Err(), ErrStorage)
}
