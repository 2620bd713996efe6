package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestWrapRoundTrip(t *testing.T) {
	base := stderrors.New("boom")
	err := Wrap(base, CategoryIOFailure, "archive_write_failed", "check directory permissions", true)
	if err == nil {
		t.Fatal("expected wrapped error")
	}
	if CategoryOf(err) != CategoryIOFailure {
		t.Fatalf("unexpected category: %s", CategoryOf(err))
	}
	if CodeOf(err) != "archive_write_failed" {
		t.Fatalf("unexpected code: %s", CodeOf(err))
	}
	if HintOf(err) != "check directory permissions" {
		t.Fatalf("unexpected hint: %s", HintOf(err))
	}
	if !RetryableOf(err) {
		t.Fatal("expected retryable true")
	}
	if !stderrors.Is(err, base) {
		t.Fatal("expected wrapped error to preserve cause")
	}
}

func TestUnknownErrorDefaults(t *testing.T) {
	err := stderrors.New("plain")
	if CategoryOf(err) != "" {
		t.Fatalf("unexpected category: %s", CategoryOf(err))
	}
	if CodeOf(err) != "" {
		t.Fatalf("unexpected code: %s", CodeOf(err))
	}
	if HintOf(err) != "" {
		t.Fatalf("unexpected hint: %s", HintOf(err))
	}
	if RetryableOf(err) {
		t.Fatal("unexpected retryable true")
	}
	if Is(err, CategoryNotFound) {
		t.Fatal("plain error must not match a category")
	}
}

func TestWrapNilCauseReturnsNil(t *testing.T) {
	if got := Wrap(nil, CategoryInternalFailure, "internal_failure", "retry later", false); got != nil {
		t.Fatalf("expected nil wrapped error, got=%v", got)
	}
	if got := NotFound(nil, "archive_not_found"); got != nil {
		t.Fatalf("expected nil from helper, got=%v", got)
	}
}

func TestClassifiedErrorNilCauseDefaults(t *testing.T) {
	err := &classifiedError{
		category: CategoryStateContention,
		code:     "archive_locked",
		hint:     "wait for the other writer",
	}
	if err.Error() != "unknown error" {
		t.Fatalf("unexpected nil-cause error text: %s", err.Error())
	}
	if err.Unwrap() != nil {
		t.Fatalf("expected unwrap nil for nil cause")
	}
	if err.Category() != CategoryStateContention {
		t.Fatalf("unexpected category: %s", err.Category())
	}
	if err.Code() != "archive_locked" {
		t.Fatalf("unexpected code: %s", err.Code())
	}
	if err.Hint() != "wait for the other writer" {
		t.Fatalf("unexpected hint: %s", err.Hint())
	}
	if err.Retryable() {
		t.Fatalf("expected retryable=false")
	}
}

func TestHelpersClassify(t *testing.T) {
	base := stderrors.New("cause")
	cases := []struct {
		err      error
		category Category
		code     string
	}{
		{NotFound(base, "a"), CategoryNotFound, "a"},
		{CorruptArchive(base, "b"), CategoryCorruptArchive, "b"},
		{VersionResolution(base, "c"), CategoryVersionResolution, "c"},
		{IO(base, "d"), CategoryIOFailure, "d"},
		{DuplicateEntry(base, "e"), CategoryDuplicateEntry, "e"},
		{InvalidInput(base, "f"), CategoryInvalidInput, "f"},
		{VerificationFailed(base, "g"), CategoryVerification, "g"},
	}
	for _, tc := range cases {
		if !Is(tc.err, tc.category) {
			t.Fatalf("expected category %s, got %s", tc.category, CategoryOf(tc.err))
		}
		if CodeOf(tc.err) != tc.code {
			t.Fatalf("unexpected code for %s: %s", tc.category, CodeOf(tc.err))
		}
		if HintOf(tc.err) == "" {
			t.Fatalf("expected hint for %s", tc.category)
		}
		if RetryableOf(tc.err) {
			t.Fatalf("pipeline errors must not be retryable: %s", tc.category)
		}
	}
}

func TestCategorySurvivesFmtWrap(t *testing.T) {
	err := fmt.Errorf("stage inject: %w", NotFound(stderrors.New("missing"), "archive_not_found"))
	if !Is(err, CategoryNotFound) {
		t.Fatalf("expected not_found through fmt wrap, got %q", CategoryOf(err))
	}
}

func TestCategorySetIsStableAndUnique(t *testing.T) {
	categories := []Category{
		CategoryInvalidInput,
		CategoryNotFound,
		CategoryCorruptArchive,
		CategoryVersionResolution,
		CategoryDuplicateEntry,
		CategoryVerification,
		CategoryDependencyMissing,
		CategoryIOFailure,
		CategoryStateContention,
		CategoryInternalFailure,
	}
	seen := map[Category]struct{}{}
	for _, category := range categories {
		if category == "" {
			t.Fatalf("category must not be empty")
		}
		if _, exists := seen[category]; exists {
			t.Fatalf("duplicate category: %s", category)
		}
		seen[category] = struct{}{}
	}
	if len(seen) != 10 {
		t.Fatalf("expected 10 categories, got %d", len(seen))
	}
}
