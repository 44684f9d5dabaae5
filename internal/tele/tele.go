// Package tele reports panel state, visible devices and errors to MQTT broker.
package tele

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/robot-util/helpers"
	"github.com/temoto/robot-util/log2"
	"github.com/temoto/spq"
)

const (
	retryMin = 1 * time.Second
	retryMax = 2 * time.Minute
)

type stateMessage struct {
	State   State  `json:"state"`
	Status  int    `json:"status"`
	Build   string `json:"build,omitempty"`
	Time    int64  `json:"time"`
	Version int    `json:"v"`
}

type errorMessage struct {
	Error string `json:"error"`
	Build string `json:"build,omitempty"`
	Time  int64  `json:"time"`
}

type tele struct {
	config    Config
	log       *log2.Log
	transport Transporter
	q         *spq.Queue
	retry     helpers.Backoff
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func New() Teler { return &tele{} }

// NewWithTransporter is for tests.
func NewWithTransporter(trans Transporter) Teler { return &tele{transport: trans} }

func (self *tele) Init(ctx context.Context, log *log2.Log, config Config) error {
	self.config = config
	self.log = log
	if self.config.LogDebug {
		self.log.SetLevel(log2.LDebug)
	}
	if !self.config.Enable {
		return nil
	}
	if self.config.PersistPath == "" {
		return errors.NotValidf("tele.persist_path empty")
	}
	if self.config.ClientID == "" {
		host, _ := os.Hostname()
		self.config.ClientID = "robot-util-" + host
	}
	if self.config.TopicPrefix == "" {
		self.config.TopicPrefix = self.config.ClientID
	}
	if self.transport == nil {
		self.transport = &transportMqtt{}
	}

	var err error
	self.q, err = spq.Open(self.config.PersistPath)
	if err != nil {
		return errors.Annotate(err, "tele queue")
	}
	if err = self.transport.Init(ctx, log, self.config, self.marshalState(StateInvalid, 0)); err != nil {
		_ = self.q.Close()
		return errors.Annotate(err, "tele transport")
	}
	self.retry = helpers.Backoff{Min: retryMin, Max: retryMax, K: 2}
	self.stopCh = make(chan struct{})
	self.wg.Add(1)
	go self.qworker()
	self.State(StateBoot, 0)
	return nil
}

func (self *tele) Close() {
	if !self.config.Enable || self.q == nil {
		return
	}
	self.closeOnce.Do(func() {
		close(self.stopCh)
		_ = self.q.Close()
		self.wg.Wait()
		self.transport.Close()
	})
}

func (self *tele) State(s State, status int) {
	if !self.config.Enable {
		return
	}
	self.transport.SendState(self.marshalState(s, status))
}

func (self *tele) Devices(ds []DeviceInfo) {
	if !self.config.Enable {
		return
	}
	if ds == nil {
		ds = []DeviceInfo{}
	}
	b, err := json.Marshal(ds)
	if err != nil {
		self.log.Errorf("CRITICAL tele devices marshal err=%v", err)
		return
	}
	self.transport.SendDevices(b)
}

// Error must not log with Error level, log2 error hook points here.
func (self *tele) Error(e error) {
	if !self.config.Enable || e == nil {
		return
	}
	self.log.Debugf("tele.Error: " + errors.ErrorStack(e))
	b, err := json.Marshal(errorMessage{Error: e.Error(), Build: self.config.BuildVersion, Time: time.Now().UnixNano()})
	if err == nil {
		err = self.q.Push(b)
	}
	if err != nil {
		self.log.Infof("CRITICAL tele error push err=%v", err)
	}
}

func (self *tele) marshalState(s State, status int) []byte {
	b, err := json.Marshal(stateMessage{
		State:   s,
		Status:  status,
		Build:   self.config.BuildVersion,
		Time:    time.Now().UnixNano(),
		Version: 1,
	})
	if err != nil {
		panic("code error tele state marshal err=" + err.Error())
	}
	return b
}

func (self *tele) qworker() {
	defer self.wg.Done()
	for {
		box, err := self.q.Peek()
		switch err {
		case nil:
			if self.transport.SendTelemetry(box.Bytes()) {
				err = self.q.Delete(box)
				self.retry.Reset()
			} else {
				err = self.q.DeletePush(box)
				delay := self.retry.Failure()
				self.log.Debugf("tele send failed, retry in %v", delay)
				select {
				case <-self.stopCh:
					return
				case <-time.After(delay):
				}
			}
			if err != nil && err != spq.ErrClosed {
				self.log.Infof("tele queue err=%v", err)
			}

		case spq.ErrClosed:
			select {
			case <-self.stopCh:
			default:
				self.log.Infof("CRITICAL tele queue closed unexpectedly")
			}
			return

		default:
			self.log.Infof("CRITICAL tele queue err=%v", err)
			select {
			case <-self.stopCh:
				return
			case <-time.After(self.retry.Failure()):
			}
		}
	}
}
