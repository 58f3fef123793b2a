package error

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenericErrors(t *testing.T) {
	tests := []struct {
		err    GenericError
		code   string
		status int
	}{
		{NotFoundError("booking not found"), "NOT_FOUND_ERROR", http.StatusNotFound},
		{ValidationError("status: must be a valid value."), "VALIDATION_ERROR", http.StatusBadRequest},
		{InternalServerError("database is locked"), "INTERNAL_SERVER_ERROR", http.StatusInternalServerError},
		{ConflictError("batch already running"), "CONFLICT", http.StatusConflict},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.code, tt.err.ErrCode())
		assert.Equal(t, tt.status, tt.err.StatusCode())
		assert.NotEmpty(t, tt.err.Error())
	}
}
