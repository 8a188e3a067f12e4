// Package downloader 把图片输入统一成本地文件路径。
// http/https 的 URL 下载到临时目录，本地路径原样透传。
package downloader

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ImageProcessor 图片输入处理器。
type ImageProcessor struct {
	client  *http.Client
	tempDir string
}

func NewImageProcessor() *ImageProcessor {
	return &ImageProcessor{
		client:  &http.Client{Timeout: 60 * time.Second},
		tempDir: filepath.Join(os.TempDir(), "xhs-images"),
	}
}

// ProcessImages 逐个处理图片输入，任何一个失败整体失败。
// 返回的路径保证都指向本地已存在的文件。
func (p *ImageProcessor) ProcessImages(images []string) ([]string, error) {
	paths := make([]string, 0, len(images))
	for _, img := range images {
		path, err := p.processOne(img)
		if err != nil {
			return nil, errors.Wrapf(err, "处理图片 %s 失败", img)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (p *ImageProcessor) processOne(img string) (string, error) {
	if strings.HasPrefix(img, "http://") || strings.HasPrefix(img, "https://") {
		return p.download(img)
	}
	if _, err := os.Stat(img); err != nil {
		return "", errors.Wrap(err, "本地图片不存在")
	}
	return img, nil
}

// download 下载远程图片到临时目录，用内容嗅探补全扩展名。
func (p *ImageProcessor) download(url string) (string, error) {
	if err := os.MkdirAll(p.tempDir, 0755); err != nil {
		return "", errors.Wrap(err, "创建临时目录失败")
	}

	resp, err := p.client.Get(url)
	if err != nil {
		return "", errors.Wrap(err, "下载图片失败")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("下载图片失败，状态码 %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "读取图片内容失败")
	}
	if len(data) == 0 {
		return "", errors.New("图片内容为空")
	}

	ext := sniffExt(data)
	path := filepath.Join(p.tempDir, uuid.NewString()+ext)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", errors.Wrap(err, "保存图片失败")
	}

	logrus.Debugf("图片已下载到 %s", path)
	return path, nil
}

// sniffExt 按文件头识别图片格式，识别不出时默认 jpg。
func sniffExt(data []byte) string {
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown || kind.MIME.Type != "image" {
		return ".jpg"
	}
	return "." + kind.Extension
}
