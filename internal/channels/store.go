package channels

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/neurana/undoable-sub002/pkg/models"
)

// ConfigStore is the single-JSON-file, write-through channel config store
// spec.md 4.7/6 implies (`GET /channels/:id`, `PUT /channels/:id`, each
// channel's config persisted under the workspace): every mutation is
// flushed to disk under the same mutex that guards the in-memory map, using
// a write-to-temp-then-rename, mirroring internal/scheduler.Store's
// discipline for job persistence.
type ConfigStore struct {
	path string
	mu   sync.Mutex
	cfgs map[models.ChannelType]*models.ChannelConfig
}

// NewConfigStore loads path if it exists, or starts empty.
func NewConfigStore(path string) (*ConfigStore, error) {
	s := &ConfigStore{path: path, cfgs: make(map[models.ChannelType]*models.ChannelConfig)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	var list []*models.ChannelConfig
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	for _, c := range list {
		s.cfgs[c.ChannelID] = c
	}
	return s, nil
}

// SeedDefault writes cfg into the store only if no entry exists yet for the
// channel, so env-seeded defaults never clobber a value a user has since
// edited via PUT /channels/:id.
func (s *ConfigStore) SeedDefault(cfg models.ChannelConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cfgs[cfg.ChannelID]; ok {
		return nil
	}
	cp := cfg
	s.cfgs[cfg.ChannelID] = &cp
	return s.persistLocked()
}

// Upsert writes cfg into the store and persists immediately, always
// overwriting any prior value for the channel.
func (s *ConfigStore) Upsert(cfg models.ChannelConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := cfg
	s.cfgs[cfg.ChannelID] = &cp
	return s.persistLocked()
}

// Get returns a copy of a channel's config, matching the bridge.ConfigLookup
// signature.
func (s *ConfigStore) Get(channelID models.ChannelType) (models.ChannelConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cfgs[channelID]
	if !ok {
		return models.ChannelConfig{}, false
	}
	return *c, true
}

// List returns a snapshot of every configured channel.
func (s *ConfigStore) List() []models.ChannelConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ChannelConfig, 0, len(s.cfgs))
	for _, c := range s.cfgs {
		out = append(out, *c)
	}
	return out
}

func (s *ConfigStore) persistLocked() error {
	list := make([]*models.ChannelConfig, 0, len(s.cfgs))
	for _, c := range s.cfgs {
		list = append(list, c)
	}

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".channels-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, s.path)
}
