package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// retainTerminal 终态任务的保留时长，过期后由巡检清走。
const retainTerminal = 24 * time.Hour

// Janitor 周期性清理终态任务。
type Janitor struct {
	cron *cron.Cron
}

// StartJanitor 启动巡检，每 10 分钟跑一轮。
func StartJanitor(s *Scheduler) *Janitor {
	c := cron.New()
	if _, err := c.AddFunc("@every 10m", func() {
		s.PruneTerminal(retainTerminal)
	}); err != nil {
		logrus.WithError(err).Error("注册任务清理巡检失败")
		return &Janitor{cron: c}
	}
	c.Start()
	return &Janitor{cron: c}
}

// Stop 停止巡检，等待进行中的一轮跑完。
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}
