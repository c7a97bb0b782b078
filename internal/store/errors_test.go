package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		notFound  bool
		duplicate bool
	}{
		{name: "nil error"},
		{name: "generic error", err: errors.New("some error")},
		{name: "ErrNotFound", err: ErrNotFound, notFound: true},
		{name: "wrapped ErrUserNotFound", err: fmt.Errorf("lookup: %w", ErrUserNotFound), notFound: true},
		{name: "ErrReportNotFound", err: ErrReportNotFound, notFound: true},
		{name: "ErrEmailExists", err: ErrEmailExists, duplicate: true},
		{name: "wrapped ErrDuplicate", err: fmt.Errorf("insert: %w", ErrDuplicate), duplicate: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.notFound, IsNotFoundError(tt.err))
			assert.Equal(t, tt.duplicate, IsDuplicateError(tt.err))
		})
	}
}

func TestEntityErrorsWrapBase(t *testing.T) {
	assert.ErrorIs(t, ErrUserNotFound, ErrNotFound)
	assert.ErrorIs(t, ErrReportNotFound, ErrNotFound)
	assert.ErrorIs(t, ErrEmailExists, ErrDuplicate)
	assert.NotErrorIs(t, ErrUserNotFound, ErrReportNotFound)
	assert.Equal(t, "record not found: report", ErrReportNotFound.Error())
}
