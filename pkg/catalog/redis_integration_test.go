//go:build integration

package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-gateway/pkg/testhelpers"
)

func TestRedisListener_RefreshesOnPublish(t *testing.T) {
	redisDB := testhelpers.GetTestRedis(t)
	channel := "catalog-refresh-" + t.Name()

	target := &signalRefresher{calls: make(chan struct{}, 4)}
	listener := NewRedisListener(redisDB.Client(t), channel, target, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- listener.Run(ctx) }()

	broadcaster := NewRedisBroadcaster(redisDB.Client(t), channel)

	// Publishing before the subscription is confirmed is lost, so retry
	// until the listener has seen one.
	require.Eventually(t, func() bool {
		if err := broadcaster.RequestRefresh(context.Background()); err != nil {
			return false
		}
		select {
		case <-target.calls:
			return true
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 10*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not stop")
	}
}
