package config

// Watcher is the source of configuration the server reads from and
// subscribes to for reloads.
type Watcher interface {
	GetCurrentConfig() *Config
	Subscribe() <-chan *Config
	Close() error
}

// StaticWatcher serves a fixed configuration and never reloads. It backs
// runs without a config file on disk.
type StaticWatcher struct {
	cfg *Config
}

var _ Watcher = (*StaticWatcher)(nil)

// NewStaticWatcher wraps cfg.
func NewStaticWatcher(cfg *Config) *StaticWatcher {
	return &StaticWatcher{cfg: cfg}
}

func (s *StaticWatcher) GetCurrentConfig() *Config { return s.cfg }

// Subscribe returns a channel that never delivers.
func (s *StaticWatcher) Subscribe() <-chan *Config { return make(chan *Config) }

func (s *StaticWatcher) Close() error { return nil }
