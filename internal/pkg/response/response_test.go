package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	apperrors "github.com/lk2023060901/auto-archiver/internal/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func perform(t *testing.T, h gin.HandlerFunc) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	h(c)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestSuccess(t *testing.T) {
	w, body := perform(t, func(c *gin.Context) { Success(c, gin.H{"archived": 3}) })
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), body["code"])
	assert.Equal(t, float64(3), body["data"].(map[string]interface{})["archived"])
}

func TestHandleErrorWithData(t *testing.T) {
	err := apperrors.New(apperrors.ErrArchiveQuotaExceeded, "restore needs 20 bytes").
		WithData(map[string]int64{"required": 20, "available": 10})

	w, body := perform(t, func(c *gin.Context) { HandleError(c, err) })
	assert.Equal(t, http.StatusInsufficientStorage, w.Code)
	assert.Equal(t, float64(apperrors.ErrArchiveQuotaExceeded), body["code"])
	assert.Equal(t, "storage_quota_exceeded: restore needs 20 bytes", body["message"])
	assert.Equal(t, float64(20), body["data"].(map[string]interface{})["required"])
}

func TestHandleErrorPlain(t *testing.T) {
	w, body := perform(t, func(c *gin.Context) { HandleError(c, errors.New("boom")) })
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error: boom", body["message"])
	assert.Empty(t, body["data"])
}
