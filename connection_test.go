package relaymq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionConfigDefaults(t *testing.T) {
	cfg := ConnectionConfig{}
	cfg.applyDefaults()
	assert.Greater(t, cfg.ReconnectInterval.Seconds(), 0.0)
	assert.Greater(t, cfg.Heartbeat.Seconds(), 0.0)
	require.NotNil(t, cfg.Logger)
}

func TestGetConnectionManagerSingleton(t *testing.T) {
	resetConnectionManagers()
	defer resetConnectionManagers()

	a := GetConnectionManager(ConnectionConfig{URL: "amqp://singleton-test"})
	b := GetConnectionManager(ConnectionConfig{URL: "amqp://singleton-test"})
	assert.Same(t, a, b)

	c := GetConnectionManager(ConnectionConfig{URL: "amqp://singleton-test-2"})
	assert.NotSame(t, a, c)
}

func TestConnectionManagerCloseWithoutConnectIsIdempotent(t *testing.T) {
	resetConnectionManagers()
	defer resetConnectionManagers()

	cm := GetConnectionManager(ConnectionConfig{URL: "amqp://close-test"})
	require.NoError(t, cm.Close())
	require.NoError(t, cm.Close())
	assert.False(t, cm.IsConnected())
}

func TestConnectionManagerChannelCounting(t *testing.T) {
	resetConnectionManagers()
	defer resetConnectionManagers()

	cm := GetConnectionManager(ConnectionConfig{URL: "amqp://channel-count-test"})
	cm.NotifyChannelOpened()
	cm.NotifyChannelOpened()
	cm.NotifyChannelClosed()
	assert.Equal(t, 1, cm.GetChannelCount())
}

func TestConnectionManagerGetConnectionAfterCloseFails(t *testing.T) {
	resetConnectionManagers()
	defer resetConnectionManagers()

	cm := GetConnectionManager(ConnectionConfig{URL: "amqp://get-after-close"})
	require.NoError(t, cm.Close())
	_, err := cm.GetConnection()
	require.Error(t, err)
	assert.Equal(t, CodeConnectionError, CodeOf(err))
}
