package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestApp 创建测试应用实例
func setupTestApp(t *testing.T, svc *PosterService) *httptest.Server {
	t.Helper()
	t.Cleanup(svc.StopJobs)

	appServer := NewAppServer(svc)

	gin.SetMode(gin.TestMode)
	router := setupRoutes(appServer)

	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return ts
}

func jsonBody(v any) io.Reader {
	b, _ := json.Marshal(v)
	return bytes.NewBuffer(b)
}

func decodeError(t *testing.T, resp *http.Response) ErrorResponse {
	t.Helper()
	defer resp.Body.Close()
	var out ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func decodeSuccess(t *testing.T, resp *http.Response) SuccessResponse {
	t.Helper()
	defer resp.Body.Close()
	var out SuccessResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.True(t, out.Success)
	return out
}

func TestHealthCheck(t *testing.T) {
	ts := setupTestApp(t, newTestPosterService())

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	out := decodeSuccess(t, resp)
	assert.Equal(t, "服务正常", out.Message)
}

func TestScheduleRejectsPastInstantHTTP(t *testing.T) {
	ts := setupTestApp(t, newTestPosterService())

	resp, err := http.Post(ts.URL+"/api/v1/schedule", "application/json", jsonBody(gin.H{
		"title":      "标题",
		"content":    "正文",
		"images":     []string{"/tmp/a.png"},
		"publish_at": "2020-01-01 00:00",
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "PAST_INSTANT", decodeError(t, resp).Code)
}

func TestScheduleValidationError(t *testing.T) {
	ts := setupTestApp(t, newTestPosterService())

	// 缺 images
	resp, err := http.Post(ts.URL+"/api/v1/schedule", "application/json", jsonBody(gin.H{
		"title":      "标题",
		"content":    "正文",
		"publish_at": "2030-01-01 00:00",
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_REQUEST", decodeError(t, resp).Code)
}

func TestScheduleThenListAndCancel(t *testing.T) {
	svc := newTestPosterService()
	ts := setupTestApp(t, svc)

	publishAt := time.Now().Add(time.Hour).Format("2006-01-02 15:04")
	resp, err := http.Post(ts.URL+"/api/v1/schedule", "application/json", jsonBody(gin.H{
		"title":      "标题",
		"content":    "正文",
		"images":     []string{"/tmp/a.png"},
		"publish_at": publishAt,
	}))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeSuccess(t, resp)

	resp, err = http.Get(ts.URL + "/api/v1/jobs")
	require.NoError(t, err)
	out := decodeSuccess(t, resp)
	data, _ := json.Marshal(out.Data)
	assert.Contains(t, string(data), "scheduled")

	resp, err = http.Post(ts.URL+"/api/v1/jobs/1/cancel", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	decodeSuccess(t, resp)

	// 再取消一次，状态不允许
	resp, err = http.Post(ts.URL+"/api/v1/jobs/1/cancel", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "JOB_NOT_CANCELLABLE", decodeError(t, resp).Code)
}

func TestCancelUnknownJob(t *testing.T) {
	ts := setupTestApp(t, newTestPosterService())

	resp, err := http.Post(ts.URL+"/api/v1/jobs/999/cancel", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "JOB_NOT_FOUND", decodeError(t, resp).Code)
}

func TestCancelInvalidJobID(t *testing.T) {
	ts := setupTestApp(t, newTestPosterService())

	resp, err := http.Post(ts.URL+"/api/v1/jobs/abc/cancel", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_JOB_ID", decodeError(t, resp).Code)
}

func TestGetJobNotFound(t *testing.T) {
	ts := setupTestApp(t, newTestPosterService())

	resp, err := http.Get(ts.URL + "/api/v1/jobs/42")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "JOB_NOT_FOUND", decodeError(t, resp).Code)
}

func TestPublishValidationError(t *testing.T) {
	ts := setupTestApp(t, newTestPosterService())

	resp, err := http.Post(ts.URL+"/api/v1/publish", "application/json", jsonBody(gin.H{
		"title": "标题",
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_REQUEST", decodeError(t, resp).Code)
}

func TestPublishNotLoggedIn(t *testing.T) {
	// 凭据存储为空，发布应拿到 401
	m, _ := newTestSessionManager(&fakeStore{})
	svc := NewPosterService(m)
	svc.processImages = func(images []string) ([]string, error) { return images, nil }
	ts := setupTestApp(t, svc)

	resp, err := http.Post(ts.URL+"/api/v1/publish", "application/json", jsonBody(gin.H{
		"title":   "标题",
		"content": "正文",
		"images":  []string{"/tmp/a.png"},
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "NOT_LOGGED_IN", decodeError(t, resp).Code)
}

func TestPublishSuccess(t *testing.T) {
	ts := setupTestApp(t, newTestPosterService())

	resp, err := http.Post(ts.URL+"/api/v1/publish", "application/json", jsonBody(gin.H{
		"title":   "今天的十字绣",
		"content": "成品图",
		"images":  []string{"/tmp/a.png"},
	}))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decodeSuccess(t, resp)
	data, _ := json.Marshal(out.Data)
	assert.Contains(t, string(data), "今天的十字绣")
}

func TestJobEndpointsRoundTrip(t *testing.T) {
	ts := setupTestApp(t, newTestPosterService())

	for i := 0; i < 3; i++ {
		resp, err := http.Post(ts.URL+"/api/v1/schedule", "application/json", jsonBody(gin.H{
			"title":      fmt.Sprintf("第 %d 条", i+1),
			"content":    "正文",
			"images":     []string{"/tmp/a.png"},
			"publish_at": time.Now().Add(time.Duration(i+1) * time.Hour).Format("2006-01-02 15:04"),
		}))
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}

	resp, err := http.Get(ts.URL + "/api/v1/jobs/2")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeSuccess(t, resp)
	data, _ := json.Marshal(out.Data)
	assert.Contains(t, string(data), "第 2 条")
}
