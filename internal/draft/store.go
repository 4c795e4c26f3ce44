package draft

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/foxzi/emailflow/internal/jsonx"
	"github.com/foxzi/emailflow/internal/metrics"
)

// DefaultKey is the slot key holding the draft
const DefaultKey = "emailflow-draft"

// Store loads and saves the draft in a Slot. It holds no draft state itself.
type Store struct {
	slot   Slot
	key    string
	logger *slog.Logger
}

// NewStore creates a store writing to key in slot. An empty key means DefaultKey.
func NewStore(slot Slot, key string, logger *slog.Logger) *Store {
	if key == "" {
		key = DefaultKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{slot: slot, key: key, logger: logger}
}

// Load returns the stored draft. A missing, unreadable or malformed value
// yields Default(); a broken draft never blocks composition.
func (s *Store) Load() Draft {
	data, err := s.slot.Get(s.key)
	if err != nil {
		s.logger.Warn("failed to read draft, using defaults", "key", s.key, "error", err)
		metrics.IncDraftLoads("default")
		return Default()
	}

	rec, ok := jsonx.ParseOrDefault[record](data, record{})
	if !ok {
		if data != nil {
			s.logger.Debug("stored draft is not valid JSON, using defaults", "key", s.key)
		}
		metrics.IncDraftLoads("default")
		return Default()
	}

	metrics.IncDraftLoads("stored")
	return rec.draft()
}

// Save writes the whole draft, replacing any previous value
func (s *Store) Save(d Draft) error {
	data, err := json.Marshal(d)
	if err != nil {
		metrics.IncDraftSaves("error")
		return fmt.Errorf("failed to marshal draft: %w", err)
	}

	if err := s.slot.Put(s.key, data); err != nil {
		metrics.IncDraftSaves("error")
		return fmt.Errorf("failed to save draft: %w", err)
	}

	metrics.IncDraftSaves("ok")
	s.logger.Debug("draft saved", "key", s.key, "bytes", len(data))
	return nil
}
