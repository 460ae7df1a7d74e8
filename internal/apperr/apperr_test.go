package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidationError(t *testing.T) {
	err := Validation{Msg: "chatId is required"}
	require.EqualError(t, err, "chatId is required")
}

func TestNotFoundError(t *testing.T) {
	err := NotFound{Entity: "banker", ID: "abc-123"}
	require.EqualError(t, err, `banker "abc-123" not found`)
}

func TestRateLimitedError(t *testing.T) {
	err := RateLimited{Reason: "hourly cap reached"}
	require.EqualError(t, err, "rate limited: hourly cap reached")
}

func TestTransientClientUnwraps(t *testing.T) {
	cause := errors.New("detached frame")
	err := TransientClient{Cause: cause}
	require.ErrorIs(t, err, cause)

	var target TransientClient
	require.True(t, errors.As(err, &target))
	require.Equal(t, cause, target.Cause)
}

func TestTerminalClientUnwraps(t *testing.T) {
	cause := errors.New("invalid chat id")
	err := TerminalClient{Cause: cause}
	require.ErrorIs(t, err, cause)
}

func TestStoreErrorUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := Store{Cause: cause}
	require.ErrorIs(t, err, cause)
}

func TestShutdownError(t *testing.T) {
	err := Shutdown{Reason: "http server draining"}
	require.EqualError(t, err, "shutdown: http server draining")
}

func TestErrorsAsDiscriminatesKinds(t *testing.T) {
	var err error = NotFound{Entity: "template", ID: "t1"}

	var nf NotFound
	require.True(t, errors.As(err, &nf))

	var val Validation
	require.False(t, errors.As(err, &val))
}
