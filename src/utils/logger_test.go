package utils_test

import (
	"context"
	"testing"

	"stockdesk/src/utils"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerFromContext(t *testing.T) {
	logger, hook := test.NewNullLogger()

	t.Run("uses the attached entry", func(t *testing.T) {
		hook.Reset()
		ctx := utils.WithLogger(context.Background(), logger.WithField("req_id", "abc"))
		utils.LoggerFromContext(ctx, utils.NewDiscardLogger()).Info("handled")

		entry := hook.LastEntry()
		require.NotNil(t, entry)
		assert.Equal(t, "abc", entry.Data["req_id"])
		assert.Equal(t, "handled", entry.Message)
	})

	t.Run("falls back to the given logger", func(t *testing.T) {
		hook.Reset()
		utils.LoggerFromContext(context.Background(), logger).Warn("no request")

		entry := hook.LastEntry()
		require.NotNil(t, entry)
		assert.Equal(t, logrus.WarnLevel, entry.Level)
		assert.NotContains(t, entry.Data, "req_id")
	})

	t.Run("nil fallback still logs", func(t *testing.T) {
		assert.NotNil(t, utils.LoggerFromContext(context.Background(), nil))
	})
}
