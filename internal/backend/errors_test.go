package backend

import (
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"sqlstate", &Error{Status: http.StatusConflict, Code: CodeUniqueViolation, Message: "duplicate key value"}, true},
		{"wrapped", errors.Wrap(&Error{Code: CodeUniqueViolation}, "insert"), true},
		{"foreign key conflict", &Error{Status: http.StatusConflict, Code: "23503", Message: "violates foreign key constraint"}, false},
		{"bare conflict", &Error{Status: http.StatusConflict, Message: "conflict"}, false},
		{"message only", errors.New("ERROR: duplicate key value violates unique constraint"), true},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUniqueViolation(tt.err))
		})
	}
}

func TestIsPermissionDenied(t *testing.T) {
	assert.True(t, IsPermissionDenied(&Error{Status: http.StatusForbidden}))
	assert.True(t, IsPermissionDenied(&Error{Code: CodeInsufficientPrivilege}))
	assert.True(t, IsPermissionDenied(errors.New("new row violates row-level security policy")))
	assert.False(t, IsPermissionDenied(&Error{Status: http.StatusConflict, Code: "23503"}))
}
