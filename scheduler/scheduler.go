// Package scheduler 维护内存中的定时发布任务表。
// 任务状态单向流转：scheduled → publishing → published/failed，
// 或 scheduled → cancelled。进程重启后任务不保留。
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Status 任务状态。
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusPublishing Status = "publishing"
	StatusPublished  Status = "published"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

var (
	ErrPastInstant  = errors.New("发布时间必须晚于当前时间")
	ErrNotFound     = errors.New("任务不存在")
	ErrInvalidState = errors.New("任务当前状态不允许此操作")
)

// Job 一条定时发布任务。
type Job struct {
	ID           int64      `json:"id"`
	Title        string     `json:"title"`
	Content      string     `json:"content"`
	Images       []string   `json:"images"`
	PublishAt    time.Time  `json:"publish_at"`
	Status       Status     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// Publisher 到点后执行实际发布的回调。
type Publisher interface {
	Publish(ctx context.Context, title, content string, images []string) error
}

// Scheduler 内存任务表。所有导出方法并发安全。
type Scheduler struct {
	mu        sync.Mutex
	jobs      map[int64]*Job
	timers    map[int64]*time.Timer
	nextID    int64
	publisher Publisher

	now func() time.Time // 仅测试时替换
}

func New(publisher Publisher) *Scheduler {
	return &Scheduler{
		jobs:      make(map[int64]*Job),
		timers:    make(map[int64]*time.Timer),
		publisher: publisher,
		now:       time.Now,
	}
}

// Schedule 登记一条任务并启动定时器。过去或当前时刻直接拒绝。
func (s *Scheduler) Schedule(title, content string, images []string, publishAt time.Time) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if !publishAt.After(now) {
		return nil, ErrPastInstant
	}

	s.nextID++
	job := &Job{
		ID:        s.nextID,
		Title:     title,
		Content:   content,
		Images:    append([]string(nil), images...),
		PublishAt: publishAt,
		Status:    StatusScheduled,
		CreatedAt: now,
	}
	s.jobs[job.ID] = job
	s.timers[job.ID] = time.AfterFunc(publishAt.Sub(now), func() {
		s.fire(job.ID)
	})

	logrus.Infof("已登记定时任务 #%d，发布时间 %s", job.ID, publishAt.Format("2006-01-02 15:04:05"))
	return snapshot(job), nil
}

// fire 到点执行。任务若已被取消则不做任何事。
func (s *Scheduler) fire(id int64) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok || job.Status != StatusScheduled {
		s.mu.Unlock()
		return
	}
	job.Status = StatusPublishing
	delete(s.timers, id)
	title, content, images := job.Title, job.Content, job.Images
	s.mu.Unlock()

	err := s.runPublish(title, content, images)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		job.Status = StatusFailed
		job.ErrorMessage = err.Error()
		logrus.WithError(err).Errorf("定时任务 #%d 发布失败", id)
		return
	}
	done := s.now()
	job.Status = StatusPublished
	job.PublishedAt = &done
	logrus.Infof("定时任务 #%d 发布成功", id)
}

// runPublish 包一层 panic 恢复，发布器崩溃按失败处理而不是拖垮整个进程。
func (s *Scheduler) runPublish(title, content string, images []string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("发布过程崩溃: %v", r)
		}
	}()
	return s.publisher.Publish(context.Background(), title, content, images)
}

// Cancel 取消一条尚未开始执行的任务。publishing 及之后的状态不可取消。
func (s *Scheduler) Cancel(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status != StatusScheduled {
		return errors.Wrapf(ErrInvalidState, "任务 #%d 状态为 %s", id, job.Status)
	}

	if timer, ok := s.timers[id]; ok {
		timer.Stop()
		delete(s.timers, id)
	}
	job.Status = StatusCancelled
	logrus.Infof("已取消定时任务 #%d", id)
	return nil
}

// Get 返回任务快照。
func (s *Scheduler) Get(id int64) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return snapshot(job), nil
}

// List 返回全部任务的快照，按 ID 升序。
func (s *Scheduler) List() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Job, 0, len(s.jobs))
	for id := int64(1); id <= s.nextID; id++ {
		if job, ok := s.jobs[id]; ok {
			out = append(out, snapshot(job))
		}
	}
	return out
}

// PruneTerminal 清掉结束已久的终态任务，防止任务表无限增长。
// 返回清理数量。
func (s *Scheduler) PruneTerminal(olderThan time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-olderThan)
	pruned := 0
	for id, job := range s.jobs {
		if !terminal(job.Status) {
			continue
		}
		ref := job.CreatedAt
		if job.PublishedAt != nil {
			ref = *job.PublishedAt
		}
		if ref.Before(cutoff) {
			delete(s.jobs, id)
			pruned++
		}
	}
	if pruned > 0 {
		logrus.Infof("已清理 %d 条历史任务", pruned)
	}
	return pruned
}

// Stop 停掉所有未触发的定时器。已在执行中的发布不中断。
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}

func terminal(st Status) bool {
	return st == StatusPublished || st == StatusFailed || st == StatusCancelled
}

func snapshot(job *Job) *Job {
	cp := *job
	cp.Images = append([]string(nil), job.Images...)
	if job.PublishedAt != nil {
		t := *job.PublishedAt
		cp.PublishedAt = &t
	}
	return &cp
}
