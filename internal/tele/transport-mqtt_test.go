package tele

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// broker refuses connections, Init must not block and Close must stop retries.
func TestMqttOfflineBroker(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	trans := &transportMqtt{}
	config := Config{MqttBroker: "tcp://" + addr, ClientID: "robot1", TopicPrefix: "robot"}
	start := time.Now()
	require.NoError(t, trans.Init(context.Background(), nil, config, []byte{0x00}))
	assert.Less(t, int64(time.Since(start)), int64(time.Second))
	assert.False(t, trans.SendState([]byte(`{}`)))

	done := make(chan struct{})
	go func() {
		trans.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}
	select {
	case <-trans.connected:
	default:
		t.Fatal("connect loop still running")
	}
}

func TestMqttConfigInvalid(t *testing.T) {
	trans := &transportMqtt{}
	err := trans.Init(context.Background(), nil, Config{ClientID: "robot1"}, nil)
	assert.Error(t, err)
}
