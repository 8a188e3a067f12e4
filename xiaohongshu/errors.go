package xiaohongshu

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrLoginFlow 登录流程中必要的页面元素找不到。
	ErrLoginFlow = errors.New("登录流程中未找到必要的页面元素")

	// ErrLoginTimeout 提交验证码后页面未在限定时间内离开登录页。
	// 人工可能仍在带外完成验证，调用方应按"验证未完成"处理而非致命错误。
	ErrLoginTimeout = errors.New("验证未在限定时间内完成")
)

// NotFoundError 某个 UI 角色在预算内用尽所有定位策略仍未命中。
type NotFoundError struct {
	Role      Role
	Selectors []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("未找到页面元素 %q，已尝试选择器: [%s]", e.Role, strings.Join(e.Selectors, ", "))
}

// MissingAssetError 发布请求声明的本地图片文件不存在。
type MissingAssetError struct {
	Path string
}

func (e *MissingAssetError) Error() string {
	return fmt.Sprintf("图片文件不存在: %s", e.Path)
}
