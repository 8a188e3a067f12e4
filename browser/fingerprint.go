package browser

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/go-rod/rod"
)

// Fingerprint represents a deterministic browser fingerprint.
type Fingerprint struct {
	UserAgent      string  `json:"user_agent"`
	AcceptLanguage string  `json:"accept_language"`
	Platform       string  `json:"platform"`
	Timezone       string  `json:"timezone"`
	ScreenWidth    int     `json:"screen_width"`
	ScreenHeight   int     `json:"screen_height"`
	DeviceScale    float64 `json:"device_scale"`
}

var (
	fpRng         = rand.New(rand.NewSource(time.Now().UnixNano()))
	winUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s Safari/537.36"
	macUserAgent  = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s Safari/537.36"
	screenOptions = []struct {
		W, H int
		D    float64
	}{{1920, 1080, 1.25}, {1536, 864, 1.0}, {1366, 768, 1.0}}
)

// RandomDesktopFingerprint generates a China-desktop-like fingerprint (Win/Mac).
func RandomDesktopFingerprint() *Fingerprint {
	chromeVersion := randomChromeVersion()

	uaTemplate := winUserAgent
	platform := "Win32"
	if fpRng.Intn(2) == 1 {
		uaTemplate = macUserAgent
		platform = "MacIntel"
	}

	screen := screenOptions[fpRng.Intn(len(screenOptions))]

	return &Fingerprint{
		UserAgent:      fmt.Sprintf(uaTemplate, chromeVersion),
		AcceptLanguage: "zh-CN,zh;q=0.9,en;q=0.6",
		Platform:       platform,
		Timezone:       "Asia/Shanghai",
		ScreenWidth:    screen.W,
		ScreenHeight:   screen.H,
		DeviceScale:    screen.D,
	}
}

func randomChromeVersion() string {
	major := 124 + fpRng.Intn(3) // 124-126
	return fmt.Sprintf("%d.0.0.%d", major, fpRng.Intn(200))
}

func applyFingerprint(page *rod.Page, fp *Fingerprint) error {
	if fp == nil {
		return nil
	}

	if restore, err := page.SetExtraHeaders([]string{"Accept-Language", fp.AcceptLanguage}); err == nil && restore != nil {
		defer restore()
	}

	// Keep script small; just core anti-bot bits used by project.
	script := fmt.Sprintf(`(() => {
try {
  const lang = %q;
  const platform = %q;
  const tz = %q;
  const sw = %d, sh = %d, dpr = %f;
  if (typeof navigator !== 'undefined') {
    Object.defineProperty(navigator, 'webdriver', { get: () => false });
    if (lang) Object.defineProperty(navigator, 'language', { get: () => lang });
    Object.defineProperty(navigator, 'platform', { get: () => platform });
  }
  if (typeof Intl !== 'undefined' && Intl.DateTimeFormat && Intl.DateTimeFormat.prototype) {
    const orig = Intl.DateTimeFormat.prototype.resolvedOptions;
    Intl.DateTimeFormat.prototype.resolvedOptions = function(...args) {
      const o = orig ? orig.apply(this, args) || {} : {};
      return Object.assign({}, o, { timeZone: tz });
    };
  }
  if (typeof window !== 'undefined') {
    Object.defineProperty(window, 'devicePixelRatio', { get: () => dpr });
  }
  if (typeof screen !== 'undefined') {
    Object.defineProperty(screen, 'width', { get: () => sw });
    Object.defineProperty(screen, 'height', { get: () => sh });
  }
} catch (e) {}
})();`,
		fp.AcceptLanguage,
		fp.Platform,
		fp.Timezone,
		fp.ScreenWidth,
		fp.ScreenHeight,
		fp.DeviceScale,
	)

	_, err := page.Eval(script)
	return err
}
