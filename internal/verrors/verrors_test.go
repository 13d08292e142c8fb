package verrors

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesSentinelIdentity(t *testing.T) {
	err := Wrap(ErrMalformedClass, "truncated constant pool")
	require.True(t, errors.Is(err, ErrMalformedClass))
	require.False(t, errors.Is(err, ErrIO))
	require.Contains(t, err.Error(), "truncated constant pool")
}

func TestWrapfPreservesSentinelIdentity(t *testing.T) {
	err := Wrapf(ErrStackMapDisagreement, "offset %d: declared %d, got %d", 10, 2, 3)
	require.True(t, errors.Is(err, ErrStackMapDisagreement))
	require.Contains(t, err.Error(), "offset 10")
}
