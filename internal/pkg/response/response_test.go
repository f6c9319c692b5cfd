package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func record(fn func(c *gin.Context)) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	fn(c)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestSuccess(t *testing.T) {
	w := record(func(c *gin.Context) {
		Success(c, gin.H{"credits": 800})
	})

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, CodeSuccess, resp.Code)
	assert.Equal(t, "success", resp.Message)
}

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		fn     func(c *gin.Context)
		status int
		code   int
	}{
		{"param", func(c *gin.Context) { ParamError(c, "") }, http.StatusBadRequest, CodeParamError},
		{"auth", func(c *gin.Context) { AuthError(c, "") }, http.StatusUnauthorized, CodeAuthFailed},
		{"credits", func(c *gin.Context) { CreditsError(c, "") }, http.StatusPaymentRequired, CodeInsufficientCredits},
		{"notfound", func(c *gin.Context) { NotFoundError(c, "") }, http.StatusNotFound, CodeResourceNotFound},
		{"conflict", func(c *gin.Context) { ConflictError(c, "", nil) }, http.StatusConflict, CodeConflict},
		{"upstream", func(c *gin.Context) { UpstreamError(c, "") }, http.StatusBadGateway, CodeUpstreamError},
		{"server", func(c *gin.Context) { ServerError(c, "") }, http.StatusInternalServerError, CodeServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := record(tc.fn)
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.code, decode(t, w).Code)
		})
	}
}

func TestError_DefaultMessage(t *testing.T) {
	w := record(func(c *gin.Context) {
		Error(c, CodeInsufficientCredits, "")
	})

	resp := decode(t, w)
	assert.Equal(t, "积分不足", resp.Message)
}

func TestConflictError_CarriesData(t *testing.T) {
	w := record(func(c *gin.Context) {
		ConflictError(c, "已有生效中的订阅", gin.H{"plan": "creator"})
	})

	resp := decode(t, w)
	assert.Equal(t, CodeConflict, resp.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "creator", data["plan"])
}
