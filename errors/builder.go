package errors

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrorBuilder attaches hints, explanations and safe context to a sentinel error.
type ErrorBuilder struct {
	err     error
	cause   error
	hints   []string
	details []string
	context map[string]interface{}
}

// Build starts from a sentinel so the result still matches it with errors.Is.
func Build(sentinel error) *ErrorBuilder {
	return &ErrorBuilder{err: sentinel}
}

// WithCause records the underlying error. The sentinel stays the primary message.
func (b *ErrorBuilder) WithCause(cause error) *ErrorBuilder {
	b.cause = cause
	return b
}

func (b *ErrorBuilder) WithHint(hint string) *ErrorBuilder {
	b.hints = append(b.hints, hint)
	return b
}

func (b *ErrorBuilder) WithHintf(format string, args ...interface{}) *ErrorBuilder {
	return b.WithHint(fmt.Sprintf(format, args...))
}

func (b *ErrorBuilder) WithExplanationf(format string, args ...interface{}) *ErrorBuilder {
	b.details = append(b.details, fmt.Sprintf(format, args...))
	return b
}

// WithContext adds key=value context rendered in the message in sorted key order.
func (b *ErrorBuilder) WithContext(key string, value interface{}) *ErrorBuilder {
	if b.context == nil {
		b.context = make(map[string]interface{})
	}
	b.context[key] = value
	return b
}

// Err finalizes the error.
func (b *ErrorBuilder) Err() error {
	if b.err == nil {
		return nil
	}

	var err error
	switch {
	case b.cause != nil:
		err = errors.Mark(errors.Wrap(b.cause, b.err.Error()), b.err)
	default:
		err = errors.WithStack(b.err)
	}

	for _, detail := range b.details {
		err = errors.Mark(errors.Wrap(err, detail), b.err)
		err = errors.WithDetail(err, detail)
	}

	if len(b.context) > 0 {
		keys := make([]string, 0, len(b.context))
		for k := range b.context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, b.context[k]))
		}
		err = errors.Mark(errors.Wrap(err, strings.Join(parts, " ")), b.err)
	}

	for _, hint := range b.hints {
		err = errors.WithHint(err, hint)
	}

	return err
}

// Hints returns every hint attached anywhere in the chain.
func Hints(err error) []string {
	return errors.GetAllHints(err)
}
