package connector

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindFromStatus(t *testing.T) {
	tests := []struct {
		code int
		want Kind
	}{
		{401, KindAuth},
		{403, KindAuth},
		{429, KindRateLimited},
		{500, KindTransient},
		{503, KindTransient},
		{400, KindPermanent},
		{404, KindPermanent},
		{422, KindPermanent},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindFromStatus(tt.code), "status %d", tt.code)
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, Kind(""), Classify(nil))
	assert.Equal(t, KindAuth, Classify(NewError(KindAuth, "mercury", "bad token", nil)))
	assert.Equal(t, KindTransient, Classify(context.DeadlineExceeded))
	assert.Equal(t, KindTransient, Classify(context.Canceled))
	assert.Equal(t, KindTransient, Classify(errors.New("something unexpected")))
}

func TestClassifySeesWrappedErrors(t *testing.T) {
	inner := NewError(KindRateLimited, "wave", "slow down", nil)
	wrapped := fmt.Errorf("fetch page failed: %w", inner)

	assert.True(t, IsRateLimited(wrapped))
	assert.False(t, IsPermanent(wrapped))

	var ce *Error
	assert.True(t, errors.As(wrapped, &ce))
	assert.Equal(t, "wave", ce.Source)
}

func TestErrorString(t *testing.T) {
	bare := NewError(KindAuth, "doorloop", "key revoked", nil)
	assert.Equal(t, "doorloop connector (auth): key revoked", bare.Error())

	cause := errors.New("decode failed")
	withCause := NewError(KindPermanent, "mercury", "bad payload", cause)
	assert.Contains(t, withCause.Error(), "decode failed")
	assert.Equal(t, cause, errors.Unwrap(withCause))
}
