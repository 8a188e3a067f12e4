package xiaohongshu

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishMissingAssetBeforeNavigation(t *testing.T) {
	// page 为 nil：资产校验必须在任何页面操作之前失败，否则这里会 panic
	action := NewPublishImageAction(nil)

	err := action.Publish(context.Background(), PublishImageContent{
		Title:      "标题",
		Content:    "正文",
		ImagePaths: []string{"/no/such/image.png"},
	})

	var missing *MissingAssetError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "/no/such/image.png", missing.Path)
	assert.Contains(t, missing.Error(), "/no/such/image.png")
}

func TestPublishRejectsEmptyImageList(t *testing.T) {
	action := NewPublishImageAction(nil)

	err := action.Publish(context.Background(), PublishImageContent{
		Title:   "标题",
		Content: "正文",
	})
	require.Error(t, err)
}

func TestValidateAssetsFirstMissingWins(t *testing.T) {
	dir := t.TempDir()
	exists := filepath.Join(dir, "a.png")
	require.NoError(t, os.WriteFile(exists, []byte("png"), 0644))

	err := validateAssets([]string{exists, filepath.Join(dir, "b.png"), filepath.Join(dir, "c.png")})

	var missing *MissingAssetError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, filepath.Join(dir, "b.png"), missing.Path)
}

func TestValidateAssetsAllPresent(t *testing.T) {
	dir := t.TempDir()
	paths := make([]string, 0, 2)
	for _, name := range []string{"a.png", "b.jpg"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte("x"), 0644))
		paths = append(paths, p)
	}
	assert.NoError(t, validateAssets(paths))
}

func TestEscapeHTML(t *testing.T) {
	assert.Equal(t, "a &lt;b&gt; &amp;c", escapeHTML("a <b> &c"))
}
