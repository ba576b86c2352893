package scheduler

import (
	"sync"

	"github.com/robfig/cron/v3"
)

// ScheduledTask runs taskFunc on a cron schedule until cancelled.
type ScheduledTask struct {
	cronID cron.EntryID
	cron   *cron.Cron
	cancel chan struct{}
	once   sync.Once
}

// NewScheduledTask accepts standard cron specs and descriptors such as "@every 15m".
func NewScheduledTask(cronSpec string, taskFunc func()) (*ScheduledTask, error) {
	c := cron.New()
	cancel := make(chan struct{})
	task := &ScheduledTask{
		cron:   c,
		cancel: cancel,
	}

	id, err := c.AddFunc(cronSpec, func() {
		select {
		case <-cancel:
			return
		default:
			taskFunc()
		}
	})
	if err != nil {
		return nil, err
	}

	task.cronID = id
	c.Start()
	return task, nil
}

// Cancel can be called more than once.
func (s *ScheduledTask) Cancel() {
	s.once.Do(func() {
		close(s.cancel)
		s.cron.Remove(s.cronID)
		s.cron.Stop()
	})
}
