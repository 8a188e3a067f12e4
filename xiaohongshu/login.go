package xiaohongshu

import (
	"context"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	urlOfCreator = "https://creator.xiaohongshu.com"
	urlOfLogin   = "https://creator.xiaohongshu.com/login"

	// loginNavTimeout 提交验证码后等待跳离登录页的上限。
	loginNavTimeout = 30 * time.Second

	// probeBudget 登录态标记的探测预算，cookie 复用失败属于正常路径，不必等太久。
	probeBudget = 5 * time.Second
)

// LoginAction 登录页操作。
type LoginAction struct {
	page *rod.Page
}

func NewLogin(page *rod.Page) *LoginAction {
	return &LoginAction{page: page}
}

// CheckLoginStatus 探测仅登录态可见的页面标记。找不到不算错误，只是未登录。
func (a *LoginAction) CheckLoginStatus(ctx context.Context) (bool, error) {
	page := a.page.Context(ctx)

	if _, err := Locate(page, RoleLoggedInMarker, probeBudget); err != nil {
		var notFound *NotFoundError
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// NavigateToLogin 确保当前处于登录页。
func (a *LoginAction) NavigateToLogin(ctx context.Context) error {
	page := a.page.Context(ctx)

	if onLoginPage(page) {
		return nil
	}
	if err := rod.Try(func() {
		page.MustNavigate(urlOfLogin).MustWaitLoad()
	}); err != nil {
		return errors.Wrap(ErrLoginFlow, "无法导航到登录页")
	}

	if _, err := Locate(page, RolePhoneInput, 10*time.Second); err != nil {
		return errors.Wrap(ErrLoginFlow, err.Error())
	}
	return nil
}

// SendCode 输入手机号并点击发送验证码。
func (a *LoginAction) SendCode(ctx context.Context, phone string) error {
	if err := a.NavigateToLogin(ctx); err != nil {
		return err
	}

	page := a.page.Context(ctx)

	phoneInput, err := Locate(page, RolePhoneInput, 10*time.Second)
	if err != nil {
		return errors.Wrap(ErrLoginFlow, err.Error())
	}
	if err := clearAndInput(phoneInput, phone); err != nil {
		return errors.Wrap(err, "输入手机号失败")
	}

	sendBtn, err := Locate(page, RoleSendCodeButton, 10*time.Second)
	if err != nil {
		return errors.Wrap(ErrLoginFlow, err.Error())
	}
	if err := sendBtn.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return errors.Wrap(err, "点击发送验证码失败")
	}

	logrus.Infof("已向手机号 %s 发送验证码", maskPhone(phone))
	return nil
}

// LoginWithCode 输入验证码并提交，等待页面跳离登录页后视为登录成功。
// 超时返回 ErrLoginTimeout —— 人工可能仍在完成验证，调用方不应视为致命错误。
func (a *LoginAction) LoginWithCode(ctx context.Context, code string) error {
	page := a.page.Context(ctx)

	codeInput, err := Locate(page, RoleCodeInput, 10*time.Second)
	if err != nil {
		return errors.Wrap(ErrLoginFlow, err.Error())
	}
	if err := clearAndInput(codeInput, code); err != nil {
		return errors.Wrap(err, "输入验证码失败")
	}

	loginBtn, err := Locate(page, RoleLoginButton, 10*time.Second)
	if err != nil {
		return errors.Wrap(ErrLoginFlow, err.Error())
	}
	if err := loginBtn.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return errors.Wrap(err, "点击登录按钮失败")
	}

	// 等待跳离登录页，固定间隔轮询，有界
	deadline := time.Now().Add(loginNavTimeout)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !onLoginPage(page) {
			logrus.Info("登录成功")
			return nil
		}
		time.Sleep(time.Second)
	}
	return ErrLoginTimeout
}

func onLoginPage(page *rod.Page) bool {
	info, err := page.Info()
	if err != nil {
		return false
	}
	return strings.Contains(info.URL, "login")
}

func clearAndInput(el *rod.Element, text string) error {
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return err
	}
	if _, err := el.Eval(`() => {
		this.value = '';
		this.dispatchEvent(new Event('input', { bubbles: true }));
	}`); err != nil {
		return err
	}
	return el.Input(text)
}

func maskPhone(phone string) string {
	if len(phone) < 7 {
		return "****"
	}
	return phone[:3] + "****" + phone[len(phone)-4:]
}
