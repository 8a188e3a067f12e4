package downloader

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 最小合法 PNG 文件头
var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}

func newTestProcessor(t *testing.T) *ImageProcessor {
	p := NewImageProcessor()
	p.tempDir = t.TempDir()
	return p
}

func TestProcessImagesLocalPassThrough(t *testing.T) {
	local := filepath.Join(t.TempDir(), "a.png")
	require.NoError(t, os.WriteFile(local, pngHeader, 0644))

	paths, err := newTestProcessor(t).ProcessImages([]string{local})
	require.NoError(t, err)
	assert.Equal(t, []string{local}, paths)
}

func TestProcessImagesLocalMissing(t *testing.T) {
	_, err := newTestProcessor(t).ProcessImages([]string{"/no/such/file.png"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/no/such/file.png")
}

func TestProcessImagesDownload(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(pngHeader)
	}))
	defer ts.Close()

	p := newTestProcessor(t)
	paths, err := p.ProcessImages([]string{ts.URL + "/cover"})
	require.NoError(t, err)
	require.Len(t, paths, 1)

	// 扩展名由内容嗅探得出
	assert.True(t, strings.HasSuffix(paths[0], ".png"), paths[0])
	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)
}

func TestProcessImagesDownloadBadStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	_, err := newTestProcessor(t).ProcessImages([]string{ts.URL + "/gone"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestSniffExtFallback(t *testing.T) {
	assert.Equal(t, ".jpg", sniffExt([]byte("not an image")))
	assert.Equal(t, ".png", sniffExt(pngHeader))
}
