package apperror

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIs_MatchesWrappedKind(t *testing.T) {
	err := Transport("dial failed", errors.New("boom"))
	assert.True(t, Is(err, KindTransport))
	assert.False(t, Is(err, KindDecode))
}

func TestIs_FalseForPlainError(t *testing.T) {
	assert.False(t, Is(errors.New("plain"), KindTransport))
}

func TestValidation_AppendsMissingFields(t *testing.T) {
	err := Validation("invalid payload", []string{"solar_system_id", "name"})
	assert.Contains(t, err.Error(), "solar_system_id")
	assert.Contains(t, err.Error(), "name")
}

func TestUnwrap_ExposesCause(t *testing.T) {
	cause := errors.New("root cause")
	err := Dispatch("send failed", cause)
	assert.ErrorIs(t, err, cause)
}

func TestErrNotFound_IsStableSentinel(t *testing.T) {
	assert.ErrorIs(t, ErrNotFound, ErrNotFound)
	assert.False(t, Is(ErrNotFound, KindTransport), "ErrNotFound is not part of the Kind taxonomy")
}
