package tele

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/temoto/robot-util/helpers"
	"github.com/temoto/robot-util/log2"
)

const (
	defaultKeepalive     = 60 * time.Second
	defaultRetryInterval = 30 * time.Second
	connectRetryMin      = time.Second
	publishTimeout       = 10 * time.Second
)

type transportMqtt struct {
	log *log2.Log
	m   mqtt.Client

	stop      chan struct{}
	stopOnce  sync.Once
	connected chan struct{} // closed when connect loop exits

	topicConnect   string
	topicState     string
	topicDevices   string
	topicTelemetry string
}

func (self *transportMqtt) Init(ctx context.Context, log *log2.Log, config Config, willPayload []byte) error {
	self.log = log
	mqtt.ERROR = log
	mqtt.CRITICAL = log
	mqtt.WARN = log
	if config.LogDebug {
		mqtt.DEBUG = log
	}
	if config.MqttBroker == "" {
		return errors.NotValidf("tele.mqtt_broker empty")
	}

	prefix := config.TopicPrefix
	self.topicConnect = fmt.Sprintf("%s/c", prefix)
	self.topicState = fmt.Sprintf("%s/state", prefix)
	self.topicDevices = fmt.Sprintf("%s/devices", prefix)
	self.topicTelemetry = fmt.Sprintf("%s/telemetry", prefix)
	keepAlive := helpers.IntSecondDefault(config.KeepaliveSec, defaultKeepalive)
	retryInterval := helpers.IntSecondDefault(config.KeepaliveSec/2, defaultRetryInterval)

	opt := mqtt.NewClientOptions().
		AddBroker(config.MqttBroker).
		SetBinaryWill(self.topicConnect, willPayload, 1, true).
		SetCleanSession(false).
		SetClientID(config.ClientID).
		SetKeepAlive(keepAlive).
		SetOrderMatters(false).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(retryInterval).
		SetOnConnectHandler(self.onConnectHandler).
		SetConnectionLostHandler(self.connectLostHandler)
	if config.MqttPassword != "" {
		opt.SetUsername(config.ClientID).SetPassword(config.MqttPassword)
	}
	self.m = mqtt.NewClient(opt)
	self.stop = make(chan struct{})
	self.connected = make(chan struct{})
	go self.connectLoop(retryInterval)
	return nil
}

// connectLoop repeats first connect until success or Close.
// After that, client auto reconnect takes over.
func (self *transportMqtt) connectLoop(retryMax time.Duration) {
	defer close(self.connected)
	b := helpers.Backoff{Min: connectRetryMin, Max: retryMax, K: 2}
	for {
		token := self.m.Connect()
		token.Wait()
		err := token.Error()
		if err == nil {
			return
		}
		delay := b.Failure()
		self.log.Errorf("tele mqtt connect err=%v retry in %v", err, delay)
		tmr := time.NewTimer(delay)
		select {
		case <-tmr.C:
		case <-self.stop:
			tmr.Stop()
			return
		}
	}
}

func (self *transportMqtt) Close() {
	self.stopOnce.Do(func() { close(self.stop) })
	select {
	case <-self.connected:
	case <-time.After(publishTimeout):
		self.log.Errorf("tele mqtt connect did not finish in %v", publishTimeout)
	}
	if self.m.IsConnected() {
		self.m.Publish(self.topicConnect, 1, true, []byte{0x00}).WaitTimeout(publishTimeout)
	}
	self.m.Disconnect(250)
}

func (self *transportMqtt) publish(topic string, retained bool, payload []byte) bool {
	if !self.m.IsConnected() {
		return false
	}
	token := self.m.Publish(topic, 1, retained, payload)
	return token.WaitTimeout(publishTimeout) && token.Error() == nil
}

func (self *transportMqtt) SendState(payload []byte) bool {
	self.log.Debugf("tele mqtt state payload=%s", payload)
	return self.publish(self.topicState, true, payload)
}

func (self *transportMqtt) SendDevices(payload []byte) bool {
	return self.publish(self.topicDevices, true, payload)
}

func (self *transportMqtt) SendTelemetry(payload []byte) bool {
	return self.publish(self.topicTelemetry, false, payload)
}

func (self *transportMqtt) connectLostHandler(c mqtt.Client, err error) {
	self.log.Infof("tele mqtt disconnect err=%v", err)
}

func (self *transportMqtt) onConnectHandler(c mqtt.Client) {
	self.log.Infof("tele mqtt connect")
	c.Publish(self.topicConnect, 1, true, []byte{0x01})
}
