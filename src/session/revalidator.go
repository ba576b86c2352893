package session

import (
	"context"
	"time"

	"stockdesk/src/clients/market"
	"stockdesk/src/scheduler"

	"github.com/sirupsen/logrus"
)

// IdentityClient is the part of the market client the revalidator needs.
type IdentityClient interface {
	Me(ctx context.Context) (*market.LoginResponse, error)
}

// Revalidator asks the backend who the current cookies belong to and makes the
// store agree. Only the server's answer decides the role.
type Revalidator struct {
	store     *Store
	client    IdentityClient
	logger    *logrus.Logger
	timeout   time.Duration
	onExpired func()
	task      *scheduler.ScheduledTask
}

func NewRevalidator(store *Store, client IdentityClient, logger *logrus.Logger) *Revalidator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Revalidator{
		store:   store,
		client:  client,
		logger:  logger,
		timeout: 10 * time.Second,
	}
}

// OnExpired sets the hook run after a 401 cleared the session.
func (r *Revalidator) OnExpired(fn func()) {
	r.onExpired = fn
}

// Revalidate runs one check. A logged-out store is left alone.
func (r *Revalidator) Revalidate(ctx context.Context) error {
	current := r.store.Snapshot()
	if !current.Authenticated {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	me, err := r.client.Me(ctx)
	if err != nil {
		if market.IsSessionExpired(err) {
			return r.expire(current, err)
		}
		r.logger.WithError(err).Warn("could not revalidate session")
		return err
	}

	next := Session{Authenticated: true, Role: ParseRole(me.Role), UserID: me.UserID.String()}
	if next == current {
		return nil
	}
	if _, ok := r.store.Replace(current, next); !ok {
		r.logger.Debug("session changed during revalidation, keeping the newer one")
	}
	return nil
}

// expire logs out the user the check was made for. A logout or a different
// login that landed while the request was in flight is left in place.
func (r *Revalidator) expire(checked Session, err error) error {
	latest := r.store.Snapshot()
	if !latest.Authenticated || latest.UserID != checked.UserID {
		return err
	}
	if _, ok := r.store.Replace(latest, Session{}); !ok {
		return err
	}
	r.logger.WithField("user_id", checked.UserID).Info("session no longer valid, logging out")
	if r.onExpired != nil {
		r.onExpired()
	}
	return err
}

// Start checks once now and then on every cron tick.
func (r *Revalidator) Start(ctx context.Context, cronSpec string) error {
	_ = r.Revalidate(ctx)

	task, err := scheduler.NewScheduledTask(cronSpec, func() {
		_ = r.Revalidate(ctx)
	})
	if err != nil {
		return err
	}
	r.task = task
	return nil
}

func (r *Revalidator) Stop() {
	if r.task != nil {
		r.task.Cancel()
		r.task = nil
	}
}
