package cache

import (
	"context"
	"log/slog"
)

// SafeDelete deletes keys and only logs failures.
func SafeDelete(ctx context.Context, helper *CacheHelper, keys ...string) {
	if err := helper.Delete(ctx, keys...); err != nil {
		slog.ErrorContext(ctx, "Failed to delete cache keys",
			"error", err,
			"keys", keys)
	}
}

// InvalidateTestCache drops the cached test and its summary after an authoring change.
func InvalidateTestCache(ctx context.Context, cm *CacheManager, testID string) {
	SafeDelete(ctx, cm.Test, TestKey(testID))
	SafeDelete(ctx, cm.Summary, SummaryKey(testID))
}

// InvalidateSummaryCache drops the teacher summary of a test.
func InvalidateSummaryCache(ctx context.Context, cm *CacheManager, testID string) {
	SafeDelete(ctx, cm.Summary, SummaryKey(testID))
}

func TestKey(testID string) string { return "id:" + testID }

func ResultKey(attemptID string) string { return "attempt:" + attemptID }

func SummaryKey(testID string) string { return "test:" + testID }
