package cookies

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultTTL 登录成功后 cookies 的默认有效期。
const DefaultTTL = 30 * 24 * time.Hour

// Credentials 持久化的会话凭证：cookies 全量 + 签发/过期时间（毫秒时间戳）。
type Credentials struct {
	Cookies   []*proto.NetworkCookie `json:"cookies"`
	IssuedAt  int64                  `json:"issued_at"`
	ExpiresAt int64                  `json:"expires_at"`
}

// Expired 判断凭证是否已过期。
func (c *Credentials) Expired(now time.Time) bool {
	return c.ExpiresAt <= now.UnixMilli()
}

type Store interface {
	// Load 读取凭证。文件不存在、JSON 损坏、已过期都视为"无凭证"，不返回错误。
	Load() (*Credentials, bool)
	// Save 全量覆盖写入。写失败必须让调用方感知，否则下次启动会误以为没有 cookies。
	Save(creds *Credentials) error
	Delete() error
}

type localStore struct {
	path string
	now  func() time.Time
}

func NewStore(path string) Store {
	if path == "" {
		panic("path is required")
	}
	return &localStore{path: path, now: time.Now}
}

func (s *localStore) Load() (*Credentials, bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, false
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		logrus.Warnf("cookies file %s is malformed, treating as absent: %v", s.path, err)
		return nil, false
	}
	if creds.Expired(s.now()) {
		logrus.Infof("cookies in %s expired at %d, treating as absent", s.path, creds.ExpiresAt)
		return nil, false
	}
	if len(creds.Cookies) == 0 {
		return nil, false
	}
	return &creds, true
}

func (s *localStore) Save(creds *Credentials) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create cookies directory")
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal credentials")
	}
	return errors.Wrap(os.WriteFile(s.path, data, 0o644), "failed to write cookies file")
}

// Delete 删除 cookies 文件。文件不存在视为已删除。
func (s *localStore) Delete() error {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return nil
	}
	return os.Remove(s.path)
}

// NewCredentials 用当前时间签发一份带默认有效期的凭证。
func NewCredentials(cks []*proto.NetworkCookie) *Credentials {
	now := time.Now()
	return &Credentials{
		Cookies:   cks,
		IssuedAt:  now.UnixMilli(),
		ExpiresAt: now.Add(DefaultTTL).UnixMilli(),
	}
}

// GetCookiesFilePath 获取 cookies 文件路径。
func GetCookiesFilePath() string {
	path := os.Getenv("COOKIES_PATH") // 判断环境变量
	if path == "" {
		path = "cookies.json" // fallback，本地调试时用当前目录
	}
	return path
}
