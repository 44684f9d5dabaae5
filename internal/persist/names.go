package persist

import (
	"encoding/json"
	"sync"

	"github.com/juju/errors"
	"github.com/temoto/robot-util/log2"
)

const NamesTag = "bluetooth-names"

// NameCache remembers last known device name by address.
// Devices often drop Name property while not connected.
type NameCache struct {
	mu      sync.RWMutex
	names   map[string]string
	persist Persist
}

var _ Stater = (*NameCache)(nil)

// NewNameCache loads stored names from root, empty root keeps cache in memory only.
// Unreadable storage is an error, cache is not returned.
func NewNameCache(root string, log *log2.Log) (*NameCache, error) {
	self := &NameCache{names: make(map[string]string)}
	if err := self.persist.Init(NamesTag, self, root, log); err != nil {
		return nil, errors.Annotate(err, "name cache")
	}
	if err := self.persist.Load(); err != nil {
		return nil, errors.Annotate(err, "name cache")
	}
	return self, nil
}

func (self *NameCache) Get(address string) (string, bool) {
	if self == nil {
		return "", false
	}
	self.mu.RLock()
	name, ok := self.names[address]
	self.mu.RUnlock()
	return name, ok
}

// Remember stores name and reports whether cache changed.
// Storage is written only on change.
func (self *NameCache) Remember(address, name string) (bool, error) {
	if self == nil || address == "" || name == "" {
		return false, nil
	}
	self.mu.Lock()
	changed := self.names[address] != name
	if changed {
		self.names[address] = name
	}
	self.mu.Unlock()
	if !changed {
		return false, nil
	}
	return true, self.persist.Store()
}

func (self *NameCache) Len() int {
	self.mu.RLock()
	defer self.mu.RUnlock()
	return len(self.names)
}

func (self *NameCache) MarshalBinary() ([]byte, error) {
	self.mu.RLock()
	defer self.mu.RUnlock()
	return json.Marshal(self.names)
}

func (self *NameCache) UnmarshalBinary(b []byte) error {
	m := make(map[string]string)
	if err := json.Unmarshal(b, &m); err != nil {
		return errors.Annotate(err, "name cache decode")
	}
	self.mu.Lock()
	self.names = m
	self.mu.Unlock()
	return nil
}
