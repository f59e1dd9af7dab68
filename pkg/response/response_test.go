package response

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"Raksha/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	t.Parallel()
	cases := []struct {
		err  error
		want int
	}{
		{errors.WithCode(http.StatusNotFound, "no alert"), http.StatusNotFound},
		{errors.New(errors.KindInvalid, "bad"), http.StatusBadRequest},
		{errors.Wrap(errors.New(errors.KindBusy, "busy"), "start"), http.StatusConflict},
		{errors.New(errors.KindTransient, "db"), http.StatusServiceUnavailable},
		{errors.New(errors.KindPermissionDenied, "no"), http.StatusForbidden},
		{context.Canceled, 499},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Status(tc.err), tc.err.Error())
	}
}

func TestErrorWritesEnvelope(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Error(c, errors.New(errors.KindBusy, "capture already running"))

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.True(t, c.IsAborted())
	var body Body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, http.StatusConflict, body.Code)
	assert.Equal(t, "capture already running", body.Msg)
}
