package httputil

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	apperrors "github.com/jwalitptl/booking-feed/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRespondWithError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{
			name:   "retryable ack failure",
			err:    apperrors.AckFailed("e1", errors.New("timeout")),
			status: http.StatusBadGateway,
			body:   `{"success":false,"error":{"code":1006,"message":"acknowledging notification e1 failed","retryable":true}}`,
		},
		{
			name:   "not found",
			err:    apperrors.NotFound("notification e9", nil),
			status: http.StatusNotFound,
			body:   `{"success":false,"error":{"code":1000,"message":"notification e9 not found","retryable":false}}`,
		},
		{
			name:   "plain error is hidden",
			err:    errors.New("db password is hunter2"),
			status: http.StatusInternalServerError,
			body:   `{"success":false,"error":{"code":0,"message":"Internal server error","retryable":false}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			RespondWithError(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			assert.JSONEq(t, tt.body, w.Body.String())
			assert.True(t, c.IsAborted())
		})
	}
}
