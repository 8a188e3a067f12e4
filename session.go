package main

import (
	"context"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/xhs-tools/autopost/browser"
	"github.com/xhs-tools/autopost/cookies"
	"github.com/xhs-tools/autopost/xiaohongshu"
)

// 会话状态单向推进，只有 Teardown 能回到 stateNoSession。
type sessionState int

const (
	stateNoSession sessionState = iota
	stateBrowserReady
	stateLoggedIn
)

// creatorEntryURL 创作者平台入口，新会话与 cookie 注入后都导航到这里。
const creatorEntryURL = "https://creator.xiaohongshu.com"

var (
	ErrSessionInit = errors.New("浏览器会话初始化失败")
	ErrNotLoggedIn = errors.New("当前未登录，请先完成登录")
	ErrSessionBusy = errors.New("已有操作持有浏览器会话")
)

// browserHandle 抽掉 browser.Browser，便于对会话管理做单测。
type browserHandle interface {
	NewPage() *rod.Page
	Close()
	SetCookies(creds *cookies.Credentials) error
	GetCookies() ([]*proto.NetworkCookie, error)
}

type browserFactory func(headless bool) (browserHandle, error)

// SessionManager 管理唯一的浏览器会话。整个进程同一时刻至多一个
// 活动会话，所有浏览器操作先 Acquire 再执行，结束后 Teardown。
type SessionManager struct {
	sem *semaphore.Weighted

	factory  browserFactory
	store    cookies.Store
	headless bool

	// 以下字段仅在持有 sem 时访问
	state   sessionState
	browser browserHandle
	page    *rod.Page

	// 测试替换点
	validate func(ctx context.Context, page *rod.Page) (bool, error)
	alive    func(page *rod.Page) bool
	navigate func(page *rod.Page, url string) error
}

func NewSessionManager(factory browserFactory, store cookies.Store, headless bool) *SessionManager {
	return &SessionManager{
		sem:      semaphore.NewWeighted(1),
		factory:  factory,
		store:    store,
		headless: headless,
		validate: func(ctx context.Context, page *rod.Page) (bool, error) {
			return xiaohongshu.NewLogin(page).CheckLoginStatus(ctx)
		},
		alive: func(page *rod.Page) bool {
			_, err := page.Info()
			return err == nil
		},
		navigate: func(page *rod.Page, url string) error {
			return rod.Try(func() {
				page.MustNavigate(url).MustWaitLoad()
			})
		},
	}
}

// Acquire 独占会话。同一时刻只允许一个持有者，其余调用在 ctx 内等待。
func (m *SessionManager) Acquire(ctx context.Context) error {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return errors.Wrap(ErrSessionBusy, err.Error())
	}
	return nil
}

// Release 释放会话但保留浏览器，下一个持有者接着用。
func (m *SessionManager) Release() {
	m.sem.Release(1)
}

// ensureSession 确保有一个活着的浏览器和页面。页面失活时整体重建。
// 调用方必须已持有会话。
func (m *SessionManager) ensureSession() error {
	if m.state != stateNoSession && m.page != nil && m.alive(m.page) {
		return nil
	}
	if m.state != stateNoSession {
		logrus.Warn("浏览器会话已失活，重建")
		m.teardownLocked()
	}

	b, err := m.factory(m.headless)
	if err != nil {
		return errors.Wrap(ErrSessionInit, err.Error())
	}
	m.browser = b
	m.page = b.NewPage()

	if err := m.navigate(m.page, creatorEntryURL); err != nil {
		m.teardownLocked()
		return errors.Wrap(ErrSessionInit, err.Error())
	}
	m.state = stateBrowserReady
	return nil
}

// TryResumeFromCookies 尝试用持久化的 cookies 恢复登录态。
// 凭据缺失、过期或校验未通过都不是错误，只是恢复失败。
func (m *SessionManager) TryResumeFromCookies(ctx context.Context) (bool, error) {
	if err := m.ensureSession(); err != nil {
		return false, err
	}

	creds, ok := m.store.Load()
	if !ok {
		return false, nil
	}
	if err := m.browser.SetCookies(creds); err != nil {
		logrus.WithError(err).Warn("注入 cookies 失败")
		return false, nil
	}

	// 重新加载入口页让注入的 cookies 生效
	if err := m.navigate(m.page, creatorEntryURL); err != nil {
		return false, errors.Wrap(ErrSessionInit, err.Error())
	}

	loggedIn, err := m.validate(ctx, m.page)
	if err != nil {
		return false, err
	}
	if loggedIn {
		m.state = stateLoggedIn
		logrus.Info("已通过 cookies 恢复登录态")
	}
	return loggedIn, nil
}

// RequireLoggedIn 返回登录态的页面。未登录时先尝试 cookies 恢复，
// 仍未登录则返回 ErrNotLoggedIn。调用方必须已持有会话。
func (m *SessionManager) RequireLoggedIn(ctx context.Context) (*rod.Page, error) {
	if err := m.ensureSession(); err != nil {
		return nil, err
	}
	if m.state == stateLoggedIn && m.alive(m.page) {
		return m.page, nil
	}

	loggedIn, err := m.TryResumeFromCookies(ctx)
	if err != nil {
		return nil, err
	}
	if !loggedIn {
		return nil, ErrNotLoggedIn
	}
	return m.page, nil
}

// BeginInteractiveLogin 进入登录流程，返回登录页。调用方必须已持有会话。
func (m *SessionManager) BeginInteractiveLogin(ctx context.Context) (*rod.Page, error) {
	if err := m.ensureSession(); err != nil {
		return nil, err
	}
	if err := xiaohongshu.NewLogin(m.page).NavigateToLogin(ctx); err != nil {
		return nil, err
	}
	return m.page, nil
}

// CompleteInteractiveLogin 登录成功后固化会话：抓取 cookies 持久化，
// 状态推进到已登录。持久化失败会返回错误，否则重启后登录态就丢了。
func (m *SessionManager) CompleteInteractiveLogin() error {
	if m.state == stateNoSession || m.browser == nil {
		return ErrSessionInit
	}

	cks, err := m.browser.GetCookies()
	if err != nil {
		return errors.Wrap(err, "读取浏览器 cookies 失败")
	}
	if err := m.store.Save(cookies.NewCredentials(cks)); err != nil {
		return err
	}
	m.state = stateLoggedIn
	logrus.Info("登录凭据已持久化")
	return nil
}

// DeleteCredentials 删除持久化凭据。调用方必须已持有会话。
func (m *SessionManager) DeleteCredentials() error {
	return m.store.Delete()
}

// Teardown 关闭浏览器并重置状态。调用方必须已持有会话。
func (m *SessionManager) Teardown() {
	m.teardownLocked()
}

func (m *SessionManager) teardownLocked() {
	if m.browser != nil {
		m.browser.Close()
	}
	m.browser = nil
	m.page = nil
	m.state = stateNoSession
}

// realBrowserFactory 生产环境的浏览器工厂。
func realBrowserFactory(binPath string) browserFactory {
	return func(headless bool) (browserHandle, error) {
		return browser.New(browser.Config{
			Headless:    headless,
			BinPath:     binPath,
			Fingerprint: browser.RandomDesktopFingerprint(),
		})
	}
}
