// Package update asks remote deployment service to update robot software.
package update

import (
	"context"
	"io"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/robot-util/log2"
)

const DefaultTimeout = 30 * time.Second

type Config struct {
	URL        string `hcl:"url"`
	Token      string `hcl:"token"`
	TimeoutSec int    `hcl:"timeout_sec"`
}

type Updater struct {
	client *http.Client
	config Config
	log    *log2.Log
}

// New returns nil when URL is not configured.
// transport=nil uses http.DefaultTransport.
func New(config Config, transport http.RoundTripper, log *log2.Log) *Updater {
	if config.URL == "" {
		return nil
	}
	timeout := DefaultTimeout
	if config.TimeoutSec > 0 {
		timeout = time.Duration(config.TimeoutSec) * time.Second
	}
	return &Updater{
		client: &http.Client{Transport: transport, Timeout: timeout},
		config: config,
		log:    log,
	}
}

func (self *Updater) Enabled() bool { return self != nil }

// Trigger sends GET request, optionally with bearer token.
// Response body is ignored, non 2xx status is error.
func (self *Updater) Trigger(ctx context.Context) error {
	if self == nil {
		return errors.NotValidf("update url empty")
	}
	self.log.Infof("update requested url=%s", self.config.URL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, self.config.URL, nil)
	if err != nil {
		return errors.Annotate(err, "update request")
	}
	if self.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+self.config.Token)
	} else {
		self.log.Infof("update request without authorization, server may reject it")
	}
	response, err := self.client.Do(req)
	if err != nil {
		return errors.Annotate(err, "update request")
	}
	_, _ = io.Copy(ioutil.Discard, response.Body)
	response.Body.Close()
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return errors.Errorf("update request url=%s status=%s", self.config.URL, response.Status)
	}
	self.log.Infof("update request accepted")
	return nil
}
