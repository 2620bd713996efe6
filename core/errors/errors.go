package errors

import "errors"

type Category string

const (
	CategoryInvalidInput      Category = "invalid_input"
	CategoryNotFound          Category = "not_found"
	CategoryCorruptArchive    Category = "corrupt_archive"
	CategoryVersionResolution Category = "version_resolution"
	CategoryDuplicateEntry    Category = "duplicate_entry"
	CategoryVerification      Category = "verification_failed"
	CategoryDependencyMissing Category = "dependency_missing"
	CategoryIOFailure         Category = "io_failure"
	CategoryStateContention   Category = "state_contention"
	CategoryInternalFailure   Category = "internal_failure"
)

type classifiedError struct {
	category  Category
	code      string
	hint      string
	retryable bool
	cause     error
}

func (e *classifiedError) Error() string {
	if e.cause == nil {
		return "unknown error"
	}
	return e.cause.Error()
}

func (e *classifiedError) Unwrap() error {
	return e.cause
}

func (e *classifiedError) Category() Category {
	return e.category
}

func (e *classifiedError) Code() string {
	return e.code
}

func (e *classifiedError) Hint() string {
	return e.hint
}

func (e *classifiedError) Retryable() bool {
	return e.retryable
}

// Wrap attaches a category, a stable machine code and an operator hint to cause.
// A nil cause stays nil so callers can wrap unconditionally.
func Wrap(cause error, category Category, code, hint string, retryable bool) error {
	if cause == nil {
		return nil
	}
	return &classifiedError{
		category:  category,
		code:      code,
		hint:      hint,
		retryable: retryable,
		cause:     cause,
	}
}

// The helpers below cover the build pipeline taxonomy. None of them are retryable:
// every failure is fixed by correcting the input and running again.

func NotFound(cause error, code string) error {
	return Wrap(cause, CategoryNotFound, code, "check that the path exists and re-run", false)
}

func CorruptArchive(cause error, code string) error {
	return Wrap(cause, CategoryCorruptArchive, code, "rebuild the archive and re-run", false)
}

func VersionResolution(cause error, code string) error {
	return Wrap(cause, CategoryVersionResolution, code, "tag the engine checkout with a v-prefixed version", false)
}

func IO(cause error, code string) error {
	return Wrap(cause, CategoryIOFailure, code, "check file permissions and free space", false)
}

func DuplicateEntry(cause error, code string) error {
	return Wrap(cause, CategoryDuplicateEntry, code, "start from a fresh archive or pass --replace", false)
}

func InvalidInput(cause error, code string) error {
	return Wrap(cause, CategoryInvalidInput, code, "check command usage and configuration", false)
}

func VerificationFailed(cause error, code string) error {
	return Wrap(cause, CategoryVerification, code, "re-run inject against the current client archive", false)
}

func CategoryOf(err error) Category {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.category
	}
	return ""
}

func CodeOf(err error) string {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.code
	}
	return ""
}

func HintOf(err error) string {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.hint
	}
	return ""
}

func RetryableOf(err error) bool {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.retryable
	}
	return false
}

// Is reports whether the outermost classification of err is category.
func Is(err error, category Category) bool {
	return err != nil && CategoryOf(err) == category
}
