package views

import (
	"context"
	"errors"

	"stockdesk/src/storage"
	redis_utils "stockdesk/src/utils/redis"
)

// Read-through hints: the last good copy of a list, shown while the first
// fetch of a mount is in flight. They are never treated as authoritative.

func hintKey(namespace string, inputs ...string) string {
	return redis_utils.CacheKey("hint:"+namespace, inputs...)
}

func (d *Deps) readHint(ctx context.Context, key string, out interface{}) bool {
	if d.Storage == nil {
		return false
	}
	err := storage.GetJSON(ctx, d.Storage, key, out)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		d.Logger.WithError(err).WithField("key", key).Debug("could not read hint")
	}
	return err == nil
}

func (d *Deps) writeHint(ctx context.Context, key string, value interface{}) {
	if d.Storage == nil || d.HintTTL <= 0 {
		return
	}
	if err := storage.SetJSON(ctx, d.Storage, key, value, d.HintTTL); err != nil {
		d.Logger.WithError(err).WithField("key", key).Debug("could not write hint")
	}
}

func (d *Deps) dropHints(ctx context.Context, keys ...string) {
	if d.Storage == nil {
		return
	}
	if err := d.Storage.Delete(ctx, keys...); err != nil {
		d.Logger.WithError(err).Debug("could not drop hints")
	}
}
