package responses

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"menlo.ai/jan-feed-gateway/app/domain/common"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{common.ErrFetchFailed.Wrap(errors.New("db")), http.StatusBadGateway},
		{common.ErrMutationRejected, http.StatusConflict},
		{common.ErrValidationFailed.WithMessage("too long"), http.StatusBadRequest},
		{common.ErrDebounced, http.StatusTooManyRequests},
		{common.ErrAborted, http.StatusNoContent},
		{common.ErrUnauthorized, http.StatusUnauthorized},
		{common.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", common.ErrNotFound), http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusOf(tt.err), tt.err.Error())
	}
}

func TestNewErrorResponse(t *testing.T) {
	got := NewErrorResponse(common.ErrFetchFailed.Wrap(errors.New("connection refused")))
	assert.Equal(t, common.ErrFetchFailed.Code, got.Code)
	assert.Equal(t, common.ErrFetchFailed.Message, got.Error)
	assert.True(t, got.Retry)

	got = NewErrorResponse(errors.New("secret detail"))
	assert.NotContains(t, got.Error, "secret")
	assert.False(t, got.Retry)
}

func TestAbortWithError_AbortedIsEmpty(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	AbortWithError(c, common.ErrAborted)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Zero(t, w.Body.Len())
}
