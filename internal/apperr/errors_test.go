package apperr

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Message(t *testing.T) {
	err := Validation("invalid signature", "signer name is required", "signer email must contain @")
	assert.Equal(t, "VALIDATION: invalid signature (signer name is required; signer email must contain @)", err.Error())

	cause := errors.New("disk full")
	terr := Transient("save invoice", cause)
	assert.Equal(t, "TRANSIENT: save invoice: disk full", terr.Error())
	assert.ErrorIs(t, terr, cause)
}

func TestIsHelpers_ThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("convert lead: %w", Precondition("lead already converted"))

	assert.True(t, IsPrecondition(wrapped))
	assert.False(t, IsValidation(wrapped))
	assert.False(t, IsNotFound(wrapped))
	assert.False(t, IsTransient(wrapped))
	assert.Equal(t, CodePrecondition, CodeOf(wrapped))
}

func TestCodeOf_PlainErrorIsTransient(t *testing.T) {
	assert.Equal(t, CodeTransient, CodeOf(errors.New("boom")))
	assert.True(t, IsTransient(errors.New("boom")))
	assert.Equal(t, Code(""), CodeOf(nil))
	assert.False(t, IsTransient(nil))
}

func TestDenied_IsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(Denied("document not accessible")))
	assert.True(t, IsNotFound(NotFound("lead", "l-1")))
	assert.Equal(t, "NOT_FOUND: lead l-1 not found", NotFound("lead", "l-1").Error())
}

func TestAttempt(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ok := Attempt(logger, "notify", func() error { return nil })
	assert.False(t, ok.Failed())
	assert.True(t, ok.NonFatal)

	failed := Attempt(logger, "ledger", func() error { return errors.New("503") }, "invoice_id", "inv-1")
	assert.True(t, failed.Failed())
	assert.True(t, failed.NonFatal)
	assert.Equal(t, "ledger", failed.Name)

	assert.Equal(t, []string{"ledger"}, FailedSideEffects([]SideEffect{ok, failed}))
}

func TestFromError(t *testing.T) {
	out := FromError(Validation("invalid signature", "a", "b"))
	assert.False(t, out.Success)
	assert.Equal(t, CodeValidation, out.Code)
	assert.Equal(t, []string{"a", "b"}, out.Reasons)

	out = FromError(Transient("store unavailable", errors.New("secret dsn")))
	assert.Equal(t, "store unavailable", out.Message)
	assert.NotContains(t, out.Message, "secret")

	out = FromError(errors.New("raw"))
	assert.Equal(t, CodeTransient, out.Code)
	assert.Equal(t, "internal error, please retry", out.Message)

	assert.Equal(t, Outcome{Success: true, Message: "done"}, OK("done"))
}
