package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvalError_Message(t *testing.T) {
	cause := errors.New("connection refused")

	assert.Equal(t, "bad", newError(ErrCodeSemantic, "bad").Error())
	assert.Equal(t, "cannot read x: connection refused", wrapError(ErrCodeTransport, cause, "cannot read %s", "x").Error())
	assert.Equal(t, "connection refused", transport(cause).Error())
}

func TestCodeOf(t *testing.T) {
	err := fmt.Errorf("outer: %w", newError(ErrCodeAssertion, "assertion failed"))
	assert.Equal(t, ErrCodeAssertion, CodeOf(err))
	assert.True(t, IsAssertion(err))
	assert.Equal(t, EvalErrorCode(""), CodeOf(errors.New("plain")))
}

func TestTransport_KeepsExistingCode(t *testing.T) {
	orig := newError(ErrCodeSemantic, "bad")
	assert.Same(t, orig, transport(orig))
	assert.Nil(t, transport(nil))

	cause := errors.New("eof")
	wrapped := transport(cause)
	assert.Equal(t, ErrCodeTransport, CodeOf(wrapped))
	assert.ErrorIs(t, wrapped, cause)
}
