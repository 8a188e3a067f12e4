package browser

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/sirupsen/logrus"

	"github.com/xhs-tools/autopost/cookies"
)

// Config describes how to launch a browser instance.
type Config struct {
	Headless    bool
	BinPath     string
	UserAgent   string
	UserDataDir string
	Credentials *cookies.Credentials
	Fingerprint *Fingerprint
	Trace       bool
	Context     context.Context
}

// Browser wraps a rod browser and its launcher lifecycle.
type Browser struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	fp       *Fingerprint
	cleanup  bool
}

// New launches a new rod browser with the provided configuration.
func New(cfg Config) (*Browser, error) {
	baseCtx := cfg.Context
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	// 启动与连接加超时，防止 Chrome 因环境问题无限期阻塞。
	// 超时只约束启动阶段，连上之后浏览器换绑回长生命周期 ctx。
	launchCtx, cancel := context.WithTimeout(baseCtx, 30*time.Second)
	defer cancel()

	if cfg.UserDataDir != "" {
		if err := os.MkdirAll(cfg.UserDataDir, 0o755); err != nil {
			logrus.Warnf("failed to create user data dir: %s %v", cfg.UserDataDir, err)
		}
		cleanupUserDataLocks(cfg.UserDataDir)
	}

	l := launcher.New().Context(launchCtx).
		Headless(cfg.Headless).
		Leakless(true).
		Set(flags.NoSandbox).
		Set(flags.Flag("no-first-run")).
		Set(flags.Flag("no-default-browser-check")).
		Logger(os.Stdout)

	if cfg.UserDataDir != "" {
		l = l.UserDataDir(cfg.UserDataDir)
	}
	if cfg.BinPath != "" {
		l = l.Bin(cfg.BinPath)
	}
	if cfg.UserAgent != "" {
		l = l.Set(flags.Flag("user-agent"), cfg.UserAgent)
	}
	if cfg.Fingerprint != nil && cfg.Fingerprint.AcceptLanguage != "" {
		l = l.Set(flags.Flag("lang"), strings.Split(cfg.Fingerprint.AcceptLanguage, ",")[0])
	}

	logrus.Infof("browser launch: headless=%t bin=%q userData=%q", cfg.Headless, cfg.BinPath, cfg.UserDataDir)

	controlURL, err := l.Launch()
	if err != nil {
		logrus.Errorf("browser launch failed: %v", err)
		if cfg.UserDataDir == "" {
			l.Cleanup()
		} else {
			l.Kill()
		}
		return nil, err
	}

	rb := rod.New().
		ControlURL(controlURL).
		Trace(cfg.Trace).
		Context(launchCtx)

	if err := rb.Connect(); err != nil {
		logrus.Errorf("browser connect failed: %v", err)
		l.Kill()
		return nil, err
	}

	// 启动超时一到，挂在 launchCtx 上的 CDP 调用全部失效，
	// 连接成功后必须换绑到长生命周期 ctx
	rb = detachLaunchContext(rb, baseCtx)

	if cfg.Credentials != nil && len(cfg.Credentials.Cookies) > 0 {
		rb.MustSetCookies(cfg.Credentials.Cookies...)
		logrus.Debugf("loaded %d cookies into browser", len(cfg.Credentials.Cookies))
	}

	return &Browser{
		browser:  rb,
		launcher: l,
		fp:       cfg.Fingerprint,
		cleanup:  cfg.UserDataDir == "",
	}, nil
}

// detachLaunchContext 把浏览器从启动用的限时 ctx 换绑到长生命周期 ctx。
func detachLaunchContext(rb *rod.Browser, base context.Context) *rod.Browser {
	return rb.Context(base)
}

func cleanupUserDataLocks(dir string) {
	lockFiles := []string{"SingletonLock", "SingletonCookie", "SingletonSocket", "DevToolsActivePort"}
	for _, name := range lockFiles {
		path := filepath.Join(dir, name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logrus.Debugf("cleanupUserDataLocks: failed to remove %s: %v", path, err)
		}
	}
}

// SetCookies replaces the browser cookie set.
func (b *Browser) SetCookies(creds *cookies.Credentials) error {
	if creds == nil || len(creds.Cookies) == 0 {
		return nil
	}
	return rod.Try(func() {
		b.browser.MustSetCookies(creds.Cookies...)
	})
}

// GetCookies dumps the current cookie set.
func (b *Browser) GetCookies() ([]*proto.NetworkCookie, error) {
	return b.browser.GetCookies()
}

// Close closes the browser and cleans up the launcher.
func (b *Browser) Close() {
	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			logrus.Debugf("browser close failed: %v", err)
		}
	}
	if b.launcher != nil {
		if b.cleanup {
			b.launcher.Cleanup()
		} else {
			b.launcher.Kill()
		}
	}
}

// NewPage opens a new stealth page.
func (b *Browser) NewPage() *rod.Page {
	page := stealth.MustPage(b.browser)
	if b.fp != nil {
		if err := applyFingerprint(page, b.fp); err != nil {
			logrus.Warnf("apply fingerprint failed: %v", err)
		}
	}
	return page
}
