package xiaohongshu

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	urlOfPublish = "https://creator.xiaohongshu.com/publish/publish"

	// MaxTitleRunes 标题最大字符数，超出部分在服务层截断。
	MaxTitleRunes = 20
	// MaxContentRunes 正文最大字符数。
	MaxContentRunes = 1000

	// uploadPollAttempts 图片上传完成的轮询次数与间隔。
	uploadPollAttempts = 10
	uploadPollDelay    = 2 * time.Second
)

// PublishImageContent 一次图文发布的全部输入。
type PublishImageContent struct {
	Title      string
	Content    string
	ImagePaths []string
}

// PublishAction 发布页操作。
type PublishAction struct {
	page *rod.Page
}

func NewPublishImageAction(page *rod.Page) *PublishAction {
	return &PublishAction{page: page}
}

// Publish 执行完整的图文发布流程。任何一步失败都带上下文返回，
// 调用方据此决定是否重试。资产校验在触碰页面之前完成。
func (a *PublishAction) Publish(ctx context.Context, content PublishImageContent) error {
	if err := validateAssets(content.ImagePaths); err != nil {
		return err
	}

	page := a.page.Context(ctx)

	if err := rod.Try(func() {
		page.MustNavigate(urlOfPublish).MustWaitLoad()
	}); err != nil {
		return errors.Wrap(err, "打开发布页失败")
	}
	time.Sleep(2 * time.Second)

	if err := a.switchToImageTab(page); err != nil {
		return err
	}
	if err := a.uploadImages(page, content.ImagePaths); err != nil {
		return err
	}
	a.waitUploadComplete(page)

	if err := a.fillTitle(page, content.Title); err != nil {
		return err
	}
	if err := a.fillContent(page, content.Content); err != nil {
		return err
	}
	if err := a.submit(page); err != nil {
		return err
	}

	a.clearForm(page)
	return nil
}

// validateAssets 确认所有图片在本地存在。首个缺失的路径立即返回，
// 不做任何页面操作。
func validateAssets(paths []string) error {
	if len(paths) == 0 {
		return errors.New("至少需要一张图片")
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return &MissingAssetError{Path: p}
		}
	}
	return nil
}

func (a *PublishAction) switchToImageTab(page *rod.Page) error {
	tab, err := Locate(page, RoleUploadTab, 10*time.Second)
	if err != nil {
		return err
	}
	if err := tab.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return errors.Wrap(err, "切换到图文发布失败")
	}
	time.Sleep(time.Second)
	return nil
}

func (a *PublishAction) uploadImages(page *rod.Page, paths []string) error {
	input, err := Locate(page, RoleFileInput, 10*time.Second)
	if err != nil {
		return err
	}
	if err := input.SetFiles(paths); err != nil {
		return errors.Wrap(err, "设置上传文件失败")
	}
	logrus.Infof("已提交 %d 张图片上传", len(paths))
	return nil
}

// waitUploadComplete 轮询等待上传完成的迹象：出现图片预览或标题输入框。
// 轮询耗尽不阻断流程，只记录告警，由后续步骤自行失败。
func (a *PublishAction) waitUploadComplete(page *rod.Page) {
	err := retry.Do(
		func() error {
			if Peek(page, RoleImagePreview) || Peek(page, RoleTitleInput) {
				return nil
			}
			return errors.New("上传尚未完成")
		},
		retry.Attempts(uploadPollAttempts),
		retry.Delay(uploadPollDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		logrus.Warn("等待图片上传完成超时，继续后续步骤")
	}
}

func (a *PublishAction) fillTitle(page *rod.Page, title string) error {
	el, err := Locate(page, RoleTitleInput, 10*time.Second)
	if err != nil {
		return err
	}
	if err := clearAndInput(el, title); err != nil {
		return errors.Wrap(err, "填写标题失败")
	}
	return nil
}

// fillContent 正文编辑器可能是 textarea 也可能是 contenteditable，
// 按标签名分别处理。
func (a *PublishAction) fillContent(page *rod.Page, content string) error {
	el, err := Locate(page, RoleContentEditor, 10*time.Second)
	if err != nil {
		return err
	}

	tag, err := el.Eval(`() => this.tagName.toLowerCase()`)
	if err != nil {
		return errors.Wrap(err, "读取编辑器类型失败")
	}

	if tag.Value.Str() == "textarea" {
		if err := clearAndInput(el, content); err != nil {
			return errors.Wrap(err, "填写正文失败")
		}
		return nil
	}

	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return errors.Wrap(err, "聚焦正文编辑器失败")
	}
	html := strings.ReplaceAll(escapeHTML(content), "\n", "<br>")
	if _, err := el.Eval(`(html) => {
		this.innerHTML = html;
		this.dispatchEvent(new Event('input', { bubbles: true }));
	}`, html); err != nil {
		return errors.Wrap(err, "填写正文失败")
	}
	return nil
}

func (a *PublishAction) submit(page *rod.Page) error {
	btn, err := Locate(page, RolePublishButton, 10*time.Second)
	if err != nil {
		return err
	}
	if err := btn.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return errors.Wrap(err, "点击发布按钮失败")
	}
	// 等待提交请求落地
	time.Sleep(3 * time.Second)
	logrus.Info("笔记发布完成")
	return nil
}

// clearForm 发布后尽力清空表单，失败只记录日志。
func (a *PublishAction) clearForm(page *rod.Page) {
	err := rod.Try(func() {
		page.MustNavigate(urlOfPublish).MustWaitLoad()
	})
	if err != nil {
		logrus.WithError(err).Debug("发布后重置表单失败")
	}
}

func escapeHTML(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
	)
	return r.Replace(s)
}
