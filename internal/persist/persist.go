// Package persist binds small in-memory state to crash safe file storage.
package persist

import (
	"encoding"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/extremofile"
	"github.com/temoto/robot-util/helpers"
	"github.com/temoto/robot-util/log2"
)

type Stater interface {
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

type storage interface {
	Read() ([]byte, error)
	io.Writer
}

// Persist loads and stores target in root/tag directory.
// Zero root disables storage, Load and Store become no-op.
type Persist struct {
	sync.Mutex
	log     *log2.Log
	tag     string
	target  Stater
	storage storage
}

func (self *Persist) Init(tag string, target Stater, root string, log *log2.Log) error {
	if tag == "" || target == nil {
		panic("code error persist Init tag or target empty")
	}
	self.tag = tag
	self.log = log
	self.target = target
	if root == "" {
		self.log.Debugf("persist %s disabled", self.tag)
		return nil
	}
	self.storage = extremofile.New(extremofile.Config{
		Dir:      filepath.Join(root, tag),
		DirPerm:  0755,
		FilePerm: 0644,
	})
	return nil
}

func (self *Persist) Load() error {
	if self.tag == "" {
		panic("code error persist must call .Init() first")
	}
	if self.storage == nil {
		return nil
	}
	self.Lock()
	defer self.Unlock()
	tbegin := time.Now()
	b, err := self.storage.Read()
	self.log.Debugf("persist %s storage.read duration=%v", self.tag, time.Since(tbegin))
	if b != nil {
		if err != nil {
			self.log.Infof("persist %s ignore non-critical storage err=%v", self.tag, err)
		}
		err = self.target.UnmarshalBinary(b)
	}
	return errors.Annotatef(err, "persist %s Load", self.tag)
}

func (self *Persist) Store() error {
	if self.tag == "" {
		panic("code error persist must call .Init() first")
	}
	if self.storage == nil {
		return nil
	}
	err := helpers.WithLockError(self, func() error {
		b, err := self.target.MarshalBinary()
		if err != nil {
			return err
		}
		tbegin := time.Now()
		_, err = self.storage.Write(b)
		self.log.Debugf("persist %s storage.write duration=%v", self.tag, time.Since(tbegin))
		return err
	})
	return errors.Annotatef(err, "persist %s Store", self.tag)
}
