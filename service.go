package main

import (
	"context"
	"time"

	"github.com/go-rod/rod"
	"github.com/mattn/go-runewidth"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/xhs-tools/autopost/pkg/downloader"
	"github.com/xhs-tools/autopost/scheduler"
	"github.com/xhs-tools/autopost/xiaohongshu"
)

// maxTitleDisplayWidth 标题的显示宽度上限。中文算 2，纯英文标题
// 可以比 20 个汉字更长，所以在字符数截断之后还要按宽度再截一次。
const maxTitleDisplayWidth = 40

// PosterService 发布业务服务：立即发布、定时发布与登录流程。
type PosterService struct {
	session *SessionManager
	jobs    *scheduler.Scheduler

	// 测试替换点
	runPipeline   func(ctx context.Context, page *rod.Page, content xiaohongshu.PublishImageContent) error
	processImages func(images []string) ([]string, error)
}

// PublishRequest 发布请求
type PublishRequest struct {
	Title   string   `json:"title" binding:"required"`
	Content string   `json:"content" binding:"required"`
	Images  []string `json:"images" binding:"required,min=1"`
}

// PublishResult 发布结果
type PublishResult struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Images  int    `json:"images"`
	Status  string `json:"status"`
}

// ScheduleRequest 定时发布请求
type ScheduleRequest struct {
	Title     string   `json:"title" binding:"required"`
	Content   string   `json:"content" binding:"required"`
	Images    []string `json:"images" binding:"required,min=1"`
	PublishAt string   `json:"publish_at" binding:"required"`
}

func NewPosterService(session *SessionManager) *PosterService {
	s := &PosterService{session: session}
	s.jobs = scheduler.New(publisherFunc(s.publishNow))
	s.runPipeline = func(ctx context.Context, page *rod.Page, content xiaohongshu.PublishImageContent) error {
		return xiaohongshu.NewPublishImageAction(page).Publish(ctx, content)
	}
	s.processImages = func(images []string) ([]string, error) {
		return downloader.NewImageProcessor().ProcessImages(images)
	}
	return s
}

// publisherFunc 适配 scheduler.Publisher。
type publisherFunc func(ctx context.Context, title, content string, images []string) error

func (f publisherFunc) Publish(ctx context.Context, title, content string, images []string) error {
	return f(ctx, title, content, images)
}

// Publish 立即发布一篇图文笔记。
func (s *PosterService) Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error) {
	title, content := normalizeContent(req.Title, req.Content)

	if err := s.publishNow(ctx, title, content, req.Images); err != nil {
		return nil, err
	}
	return &PublishResult{
		Title:   title,
		Content: content,
		Images:  len(req.Images),
		Status:  "发布成功",
	}, nil
}

// publishNow 完整的一次发布：独占会话，要求登录态，跑发布流水线，
// 结束后释放浏览器。定时任务到点也走这里。
func (s *PosterService) publishNow(ctx context.Context, title, content string, images []string) error {
	imagePaths, err := s.processImages(images)
	if err != nil {
		return errors.Wrap(err, "图片处理失败")
	}

	if err := s.session.Acquire(ctx); err != nil {
		return err
	}
	defer s.session.Release()

	page, err := s.session.RequireLoggedIn(ctx)
	if err != nil {
		return err
	}
	defer s.session.Teardown()

	return s.runPipeline(ctx, page, xiaohongshu.PublishImageContent{
		Title:      title,
		Content:    content,
		ImagePaths: imagePaths,
	})
}

// Schedule 登记一条定时发布任务。标题与正文在入表前就截断，
// 任务表里的内容即最终发布的内容。
func (s *PosterService) Schedule(req *ScheduleRequest) (*scheduler.Job, error) {
	publishAt, err := parseScheduleTime(req.PublishAt)
	if err != nil {
		return nil, err
	}

	title, content := normalizeContent(req.Title, req.Content)
	return s.jobs.Schedule(title, content, req.Images, publishAt)
}

func (s *PosterService) ListJobs() []*scheduler.Job {
	return s.jobs.List()
}

func (s *PosterService) GetJob(id int64) (*scheduler.Job, error) {
	return s.jobs.Get(id)
}

func (s *PosterService) CancelJob(id int64) error {
	return s.jobs.Cancel(id)
}

// StopJobs 停掉所有未触发的定时任务，进程退出前调用。
func (s *PosterService) StopJobs() {
	s.jobs.Stop()
}

// SendCode 发起登录：打开登录页并发送短信验证码。
// 会话保持打开等待 VerifyCode，不在这里释放浏览器。
func (s *PosterService) SendCode(ctx context.Context, phone string) error {
	if err := s.session.Acquire(ctx); err != nil {
		return err
	}
	defer s.session.Release()

	page, err := s.session.BeginInteractiveLogin(ctx)
	if err != nil {
		return err
	}
	return xiaohongshu.NewLogin(page).SendCode(ctx, phone)
}

// VerifyCode 提交验证码完成登录并持久化凭据。
func (s *PosterService) VerifyCode(ctx context.Context, code string) error {
	if err := s.session.Acquire(ctx); err != nil {
		return err
	}
	defer s.session.Release()

	page, err := s.session.BeginInteractiveLogin(ctx)
	if err != nil {
		return err
	}
	if err := xiaohongshu.NewLogin(page).LoginWithCode(ctx, code); err != nil {
		return err
	}
	return s.session.CompleteInteractiveLogin()
}

// LoginStatus 检查当前登录态。
func (s *PosterService) LoginStatus(ctx context.Context) (bool, error) {
	if err := s.session.Acquire(ctx); err != nil {
		return false, err
	}
	defer s.session.Release()

	loggedIn, err := s.session.TryResumeFromCookies(ctx)
	if err != nil {
		return false, err
	}
	return loggedIn, nil
}

// DeleteCookies 删除持久化凭据并关闭当前会话。
func (s *PosterService) DeleteCookies(ctx context.Context) error {
	if err := s.session.Acquire(ctx); err != nil {
		return err
	}
	defer s.session.Release()

	s.session.Teardown()
	return s.session.DeleteCredentials()
}

// normalizeContent 在进入任何发布路径前收口标题与正文长度。
// 标题先按字符数截到 20，再按显示宽度截到 40；正文只按字符数截到 1000。
func normalizeContent(title, content string) (string, string) {
	t := truncateRunes(title, xiaohongshu.MaxTitleRunes)
	if runewidth.StringWidth(t) > maxTitleDisplayWidth {
		t = runewidth.Truncate(t, maxTitleDisplayWidth, "")
	}
	if t != title {
		logrus.Warnf("标题超长，已截断为 %q", t)
	}

	c := truncateRunes(content, xiaohongshu.MaxContentRunes)
	if c != content {
		logrus.Warn("正文超长，已截断")
	}
	return t, c
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// parseScheduleTime 接受 "2006-01-02 15:04" 或带 T 分隔的同格式，按本地时区解析。
func parseScheduleTime(raw string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02T15:04", time.RFC3339} {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("无法解析发布时间: %s，期望格式 2006-01-02 15:04", raw)
}
