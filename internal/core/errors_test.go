package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFetchErrorIs(t *testing.T) {
	err := fmt.Errorf("fetch rates: %w", NewAPIError(403, CodeInvalidKey))

	assert.ErrorIs(t, err, ErrAPI)
	assert.ErrorIs(t, err, &FetchError{Kind: KindAPI, Code: CodeInvalidKey})
	assert.NotErrorIs(t, err, &FetchError{Kind: KindAPI, Code: CodeQuotaReached})
	assert.NotErrorIs(t, err, ErrTransport)
}

func TestFetchErrorUnwrap(t *testing.T) {
	err := NewTimeoutError(context.DeadlineExceeded)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.Equal(t, KindTransport, KindOf(errors.New("boom")))
}

func TestDescribe(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{NewConfigurationError("missing key"), "The exchange API key is not configured."},
		{NewAPIError(200, CodeInvalidKey), "The exchange API key is invalid."},
		{NewAPIError(200, CodeInactiveAccount), "The exchange API account is inactive."},
		{NewAPIError(404, CodeUnsupportedCode), "This currency is not supported by the rate provider."},
		{NewAPIError(400, "something-new"), "The rate provider returned an error (something-new)."},
		{NewDecodeError(errors.New("bad json")), "The rate provider sent an unexpected response."},
		{NewTransportError(502, nil), "Could not reach the rate provider."},
		{NewTimeoutError(nil), "The rate provider took too long to respond."},
		{errors.New("disk full"), "Failed to load data: disk full"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Describe(tc.err))
	}
}

func TestFetchErrorMessage(t *testing.T) {
	err := NewAPIError(403, CodeInvalidKey)
	assert.Equal(t, "api error (invalid-key) status 403", err.Error())
}

func TestClassify(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, Classify(ctx, nil))
	assert.ErrorIs(t, Classify(ctx, errors.New("reset by peer")), ErrTransport)
	assert.ErrorIs(t, Classify(ctx, fmt.Errorf("wrapped: %w", context.DeadlineExceeded)), ErrTimeout)
	assert.ErrorIs(t, Classify(ctx, NewDecodeError(nil)), ErrDecode)

	expired, cancel := context.WithTimeout(ctx, 0)
	defer cancel()
	<-expired.Done()
	assert.ErrorIs(t, Classify(expired, errors.New("read failed")), ErrTimeout)
}
