package relaymq

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewErrorAndCode(t *testing.T) {
	err := NewError(CodeTimeoutError, "timed out").WithDetails("cmd")
	assert.Equal(t, CodeTimeoutError, CodeOf(err))
	assert.Equal(t, "cmd", DetailsOf(err))
	assert.Contains(t, err.Error(), "timed out")
}

func TestWrapErrorPreservesCause(t *testing.T) {
	cause := stderrors.New("dial tcp: refused")
	wrapped := WrapError(CodeConnectionError, cause)
	assert.Equal(t, CodeConnectionError, CodeOf(wrapped))
	assert.ErrorIs(t, wrapped, cause)
}

func TestWrapErrorNilCause(t *testing.T) {
	assert.Nil(t, WrapError(CodeConnectionError, nil))
}

func TestCodeOfDefaultsPlainErrors(t *testing.T) {
	assert.Equal(t, CodeHandlerError, CodeOf(stderrors.New("plain")))
	assert.Equal(t, "", CodeOf(nil))
}

func TestDetailsOfPlainErrors(t *testing.T) {
	assert.Nil(t, DetailsOf(stderrors.New("plain")))
	assert.Nil(t, DetailsOf(nil))
}
