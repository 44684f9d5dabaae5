package state

import (
	"path/filepath"
	"sync"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	"github.com/temoto/robot-util/helpers"
	"github.com/temoto/robot-util/internal/backend"
	"github.com/temoto/robot-util/internal/tele"
	"github.com/temoto/robot-util/internal/update"
	"github.com/temoto/robot-util/log2"
)

const DefaultConfigPath = "robot-util.hcl"

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []ConfigSource `hcl:"include"`

	Backend   string         `hcl:"backend"`
	Hardware  backend.Config `hcl:"hardware"`
	Bluetooth struct {
		Enable        bool   `hcl:"enable"`
		LogDebug      bool   `hcl:"log_debug"`
		Service       string `hcl:"service"`
		CallTimeoutMs int    `hcl:"call_timeout_ms"`
		Discovery     bool   `hcl:"discovery"`
		Agent         struct {
			Enable     bool   `hcl:"enable"`
			Path       string `hcl:"path"`
			Capability string `hcl:"capability"`
		} `hcl:"agent"`
	} `hcl:"bluetooth"`
	UI struct {
		TickMs           int    `hcl:"tick_ms"`
		IdleBacklightSec int    `hcl:"idle_backlight_sec"`
		Cursor           string `hcl:"cursor"`
	} `hcl:"ui"`
	Update  update.Config `hcl:"update"`
	Persist struct {
		Root string `hcl:"root"`
	} `hcl:"persist"`
	Tele tele.Config `hcl:"tele"`

	_copy_guard sync.Mutex //nolint:unused
}

type ConfigSource struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

// newConfig presets options which are enabled unless config says otherwise.
func newConfig() *Config {
	c := &Config{includeSeen: make(map[string]struct{})}
	c.Bluetooth.Enable = true
	c.Bluetooth.Discovery = true
	c.Bluetooth.Agent.Enable = true
	c.Hardware.Encoder.Enable = true
	return c
}

func (c *Config) read(log *log2.Log, fs FullReader, source ConfigSource, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, errors.Errorf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[source.Name] = struct{}{}
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			err = errors.NotFoundf("config required name=%s path=%s", source.Name, norm)
			*errs = append(*errs, err)
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	err = hcl.Unmarshal(bs, c)
	if err != nil {
		err = errors.Annotatef(err, "config unmarshal source=%s content='%s'", source.Name, string(bs))
		*errs = append(*errs, err)
		return
	}

	var includes []ConfigSource
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		includeNorm := fs.Normalize(include.Name)
		if _, ok := c.includeSeen[includeNorm]; ok {
			err = errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name)
			*errs = append(*errs, err)
			continue
		}
		c.read(log, fs, include, errs)
	}
}

func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		return nil, errors.Errorf("code error ReadConfig() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		if err := osfs.SetBase(dir); err != nil {
			return nil, err
		}
		names[0] = name
	}
	c := newConfig()
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, ConfigSource{Name: name}, &errs)
	}
	return c, helpers.FoldErrors(errs)
}

func MustReadConfig(log *log2.Log, fs FullReader, names ...string) *Config {
	c, err := ReadConfig(log, fs, names...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}
