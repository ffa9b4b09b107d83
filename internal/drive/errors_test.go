package drive

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func apiError(code int, reason string) error {
	gerr := &googleapi.Error{Code: code}
	if reason != "" {
		gerr.Errors = []googleapi.ErrorItem{{Reason: reason}}
	}
	return fmt.Errorf("call failed: %w", gerr)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind Kind
	}{
		{"not found", apiError(404, ""), KindNotFound},
		{"server error", apiError(500, ""), KindRetryable},
		{"bad gateway", apiError(502, ""), KindRetryable},
		{"too many requests", apiError(429, ""), KindRetryable},
		{"rate limited", apiError(403, "rateLimitExceeded"), KindRetryable},
		{"user rate limited", apiError(403, "userRateLimitExceeded"), KindRetryable},
		{"storage quota", apiError(403, "storageQuotaExceeded"), KindQuotaExceeded},
		{"daily limit", apiError(403, "dailyLimitExceeded"), KindQuotaExceeded},
		{"plain forbidden", apiError(403, "insufficientPermissions"), KindValidation},
		{"bad request", apiError(400, ""), KindValidation},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			classified := classify("copy", tc.err)

			var de *Error
			require.ErrorAs(t, classified, &de)
			assert.Equal(t, tc.kind, de.Kind)
			assert.Equal(t, "copy", de.Op)
		})
	}
}

func TestClassifyContextErrorsPassThrough(t *testing.T) {
	assert.ErrorIs(t, classify("copy", context.Canceled), context.Canceled)
	assert.ErrorIs(t, classify("copy", context.DeadlineExceeded), context.DeadlineExceeded)

	assert.False(t, IsRetryable(classify("copy", context.Canceled)))
}

func TestClassifyUnknownErrorUnclassified(t *testing.T) {
	classified := classify("list", errors.New("something odd"))
	require.Error(t, classified)

	assert.False(t, IsRetryable(classified))
	assert.False(t, IsQuotaExceeded(classified))
	assert.False(t, IsNotFound(classified))
}

func TestKindPredicates(t *testing.T) {
	assert.True(t, IsRetryable(NewError(KindRetryable, "copy", nil)))
	assert.True(t, IsQuotaExceeded(NewError(KindQuotaExceeded, "copy", nil)))
	assert.True(t, IsNotFound(NewError(KindNotFound, "get", nil)))
	assert.False(t, IsRetryable(NewError(KindValidation, "copy", nil)))
	assert.False(t, IsRetryable(nil))
}

func TestEscapeQuery(t *testing.T) {
	assert.Equal(t, `plain name`, escapeQuery(`plain name`))
	assert.Equal(t, `it\'s`, escapeQuery(`it's`))
	assert.Equal(t, `back\\slash`, escapeQuery(`back\slash`))
	assert.Equal(t, `both\\\'s`, escapeQuery(`both\'s`))
}
