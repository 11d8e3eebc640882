package domain

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{NewValidationError("text", "must not be empty"), "validation failed for text: must not be empty"},
		{NewValidationError("", "theme or quote required"), "validation failed: theme or quote required"},
		{NewStorageError("load", "/data/quotes.json", fs.ErrPermission), "load quotes from /data/quotes.json: permission denied"},
		{NewStorageError("save", "quotes.db", nil), "save quotes from quotes.db: storage unavailable"},
		{NewMalformedDataError(-1, "", "invalid JSON"), "malformed quote data: invalid JSON"},
		{NewMalformedDataError(-1, "quotes", "missing"), "malformed quote data: quotes: missing"},
		{NewMalformedDataError(0, "", "must be an object"), "malformed quote data: quotes[0]: must be an object"},
		{NewMalformedDataError(2, "theme", "must be a string"), "malformed quote data: quotes[2].theme: must be a string"},
		{NewNoQuotesError("stoic"), `no quotes available for theme "stoic"`},
		{NewNoQuotesError(""), "no quotes available"},
		{NewPublishError(PublishNetwork, 0, errors.New("connection reset")), "publish failed: network: connection reset"},
		{NewPublishError(PublishRateLimited, 429, nil), "publish failed: rate_limited (HTTP 429)"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.Error())
	}
}

func TestClassification(t *testing.T) {
	checks := map[string]func(error) bool{
		"validation": IsValidation,
		"storage":    IsStorageUnavailable,
		"malformed":  IsMalformedData,
		"no quotes":  IsNoQuotes,
		"publish":    IsPublishFailed,
	}

	tests := []struct {
		kind string
		err  error
	}{
		{"validation", NewValidationError("text", "empty")},
		{"storage", fmt.Errorf("loading: %w", NewStorageError("load", "p", nil))},
		{"malformed", NewMalformedDataError(-1, "", "bad")},
		{"no quotes", fmt.Errorf("post: %w", NewNoQuotesError("zen"))},
		{"publish", NewPublishError(PublishAuthentication, 401, nil)},
		{"", errors.New("something else")},
		{"", nil},
	}

	for _, tt := range tests {
		for kind, is := range checks {
			assert.Equal(t, kind == tt.kind, is(tt.err), "%s vs %v", kind, tt.err)
		}
	}
}

func TestErrorCauses(t *testing.T) {
	t.Run("storage keeps cause", func(t *testing.T) {
		err := NewStorageError("load", "/data/quotes.json", fs.ErrPermission)
		require.ErrorIs(t, err, fs.ErrPermission)

		var storage *StorageError
		require.ErrorAs(t, err, &storage)
		assert.Equal(t, "load", storage.Op)
	})

	t.Run("publish keeps cause", func(t *testing.T) {
		cause := errors.New("connection reset")
		err := fmt.Errorf("post: %w", NewPublishError(PublishRateLimited, 429, cause))
		require.ErrorIs(t, err, cause)

		var publish *PublishError
		require.ErrorAs(t, err, &publish)
		assert.Equal(t, PublishRateLimited, publish.Reason)
		assert.Equal(t, 429, publish.StatusCode)
	})

	t.Run("validation exposes field", func(t *testing.T) {
		var v *ValidationError
		require.ErrorAs(t, NewValidationError("limit", "must be at most 100"), &v)
		assert.Equal(t, "limit", v.Field)
	})
}
