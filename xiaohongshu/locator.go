package xiaohongshu

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/go-rod/rod"
	"github.com/pkg/errors"
)

// Role 语义化的页面元素角色，与具体 selector 解耦。
type Role string

const (
	RoleUploadTab      Role = "upload-tab"       // 发布页"上传图文"入口
	RoleFileInput      Role = "file-input"       // 图片上传 input
	RoleImagePreview   Role = "image-preview"    // 上传完成后的图片预览
	RoleTitleInput     Role = "title-input"      // 标题输入框
	RoleContentEditor  Role = "content-editor"   // 正文编辑器（富文本或 textarea）
	RolePublishButton  Role = "publish-button"   // 发布/提交按钮
	RolePhoneInput     Role = "phone-input"      // 登录页手机号
	RoleSendCodeButton Role = "send-code-button" // 发送验证码按钮
	RoleCodeInput      Role = "code-input"       // 验证码输入框
	RoleLoginButton    Role = "login-button"     // 登录按钮
	RoleLoggedInMarker Role = "logged-in-marker" // 仅登录态可见的页面标记
)

// strategy 单个角色的定位策略：结构化选择器按声明顺序尝试，
// 全部失败后用文本内容兜底，最后在预算内轮询等待。
type strategy struct {
	selectors    []string
	textSelector string
	textPattern  string
}

// 选择器沿用创作者平台当前的页面结构，顺序即优先级。
var strategies = map[Role]strategy{
	RoleUploadTab: {
		selectors: []string{
			".upload-btn",
			"div[class*=\"upload\"]",
			"button[class*=\"upload\"]",
			"[aria-label*=\"上传\"]",
		},
		textSelector: "div, span, button",
		textPattern:  "上传图文",
	},
	RoleFileInput: {
		selectors: []string{
			".upload-input",
			"input[type=\"file\"]",
			"input[accept*=\"image\"]",
		},
	},
	RoleImagePreview: {
		selectors: []string{
			"img[src*=\"blob:\"]",
			".image-preview",
			".uploaded-image",
		},
	},
	RoleTitleInput: {
		selectors: []string{
			"div.d-input input",
			"input[placeholder*=\"标题\"]",
			".title-input input",
			"input[class*=\"title\"]",
		},
	},
	RoleContentEditor: {
		selectors: []string{
			"#quillEditor div[contenteditable=\"true\"]",
			".ql-editor",
			"div[class*=\"editor\"]",
			"textarea[placeholder*=\"内容\"]",
			"div[contenteditable=\"true\"]",
		},
	},
	RolePublishButton: {
		selectors: []string{
			"button.publishBtn",
			"button[class*=\"publish\"]",
			".publish-btn",
			"button[type=\"submit\"]",
		},
		textSelector: "button",
		textPattern:  "发布|提交",
	},
	RolePhoneInput: {
		selectors: []string{
			"input[placeholder*=\"手机号\"]",
			"input[type=\"tel\"]",
		},
	},
	RoleSendCodeButton: {
		selectors: []string{
			"button[class*=\"code\"]",
		},
		textSelector: "button, div",
		textPattern:  "发送验证码|获取验证码",
	},
	RoleCodeInput: {
		selectors: []string{
			"input[placeholder*=\"验证码\"]",
		},
	},
	RoleLoginButton: {
		selectors: []string{
			"button[class*=\"login\"]",
		},
		textSelector: "button",
		textPattern:  "登录",
	},
	RoleLoggedInMarker: {
		selectors: []string{
			".creator-header",
			"[class*=\"avatar\"]",
		},
	},
}

// locatePollInterval 第三层轮询的固定间隔。
const locatePollInterval = 500 * time.Millisecond

// finder 抽掉 rod.Page，便于对定位顺序做单测。
type finder interface {
	Element(selector string) (*rod.Element, error)
	ElementR(selector, pattern string) (*rod.Element, error)
}

// pageFinder 非阻塞地探测页面元素：找不到立刻返回错误，由 locate 自己控制轮询。
type pageFinder struct {
	page *rod.Page
}

func (f pageFinder) Element(selector string) (*rod.Element, error) {
	return f.page.Sleeper(rod.NotFoundSleeper).Element(selector)
}

func (f pageFinder) ElementR(selector, pattern string) (*rod.Element, error) {
	return f.page.Sleeper(rod.NotFoundSleeper).ElementR(selector, pattern)
}

// Locate 按三层策略定位一个角色：结构化选择器 → 文本兜底 → 预算内轮询重试。
// 预算耗尽返回 *NotFoundError，带上角色名和尝试过的选择器便于排查。
func Locate(page *rod.Page, role Role, budget time.Duration) (*rod.Element, error) {
	return locate(pageFinder{page: page}, role, budget)
}

// Peek 只做一轮结构化探测，不等待。用于上传完成这类启发式检查。
func Peek(page *rod.Page, role Role) bool {
	desc, ok := strategies[role]
	if !ok {
		return false
	}
	return tryStructural(pageFinder{page: page}, desc) != nil
}

var errKeepWaiting = errors.New("element not present yet")

func locate(f finder, role Role, budget time.Duration) (*rod.Element, error) {
	desc, ok := strategies[role]
	if !ok {
		return nil, errors.Errorf("unknown ui role: %s", role)
	}

	// 预算从进入时起算，探测本身的耗时也计入
	ctx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	// 第一层：结构化选择器，严格按声明顺序
	if el := tryStructural(f, desc); el != nil {
		return el, nil
	}

	// 第二层：文本内容兜底
	if desc.textSelector != "" {
		if el, err := f.ElementR(desc.textSelector, desc.textPattern); err == nil && el != nil {
			return el, nil
		}
	}

	// 第三层：页面可能还在异步渲染，在剩余预算内轮询等结构化选择器出现
	if budget > 0 && ctx.Err() == nil {
		var found *rod.Element
		err := retry.Do(
			func() error {
				if el := tryStructural(f, desc); el != nil {
					found = el
					return nil
				}
				return errKeepWaiting
			},
			retry.Context(ctx),
			retry.Attempts(0),
			retry.Delay(locatePollInterval),
			retry.DelayType(retry.FixedDelay),
			retry.LastErrorOnly(true),
		)
		if err == nil {
			return found, nil
		}
	}

	return nil, &NotFoundError{Role: role, Selectors: desc.selectors}
}

func tryStructural(f finder, desc strategy) *rod.Element {
	for _, sel := range desc.selectors {
		if el, err := f.Element(sel); err == nil && el != nil {
			return el
		}
	}
	return nil
}
