package storage

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.etcd.io/bbolt"
)

const (
	// pluginsBucket stores plugin enabled flags
	pluginsBucket = "_plugins"

	// settingsBucket holds one nested bucket per namespace
	settingsBucket = "_settings"

	// runsBucket stores archived run reports keyed by stop time
	runsBucket = "_runs"
)

// BoltStorage is a bbolt implementation of the Storage interface
type BoltStorage struct {
	db *bbolt.DB
}

// NewBoltStorage creates a new BoltStorage instance
// The database file will be created if it doesn't exist
func NewBoltStorage(path string) (*BoltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{pluginsBucket, settingsBucket, runsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStorage{db: db}, nil
}

// Plugin state

// EnablePlugin enables a plugin by name
func (s *BoltStorage) EnablePlugin(name string) error {
	return s.setPluginEnabled(name, true)
}

// DisablePlugin disables a plugin by name
func (s *BoltStorage) DisablePlugin(name string) error {
	return s.setPluginEnabled(name, false)
}

func (s *BoltStorage) setPluginEnabled(name string, enabled bool) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(pluginsBucket))

		cfg := PluginConfig{Name: name}
		if data := bucket.Get([]byte(name)); data != nil {
			if err := json.Unmarshal(data, &cfg); err != nil {
				return fmt.Errorf("failed to unmarshal plugin config: %w", err)
			}
		}
		cfg.Enabled = enabled
		cfg.UpdatedAt = time.Now()

		data, err := json.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal plugin config: %w", err)
		}
		return bucket.Put([]byte(name), data)
	})
}

// IsPluginEnabled returns the stored enabled flag
func (s *BoltStorage) IsPluginEnabled(name string) (bool, error) {
	var enabled bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(pluginsBucket)).Get([]byte(name))
		if data == nil {
			return ErrPluginNotFound
		}

		var cfg PluginConfig
		if err := json.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("failed to unmarshal plugin config: %w", err)
		}
		enabled = cfg.Enabled
		return nil
	})
	return enabled, err
}

// ListPlugins returns all stored plugin states
func (s *BoltStorage) ListPlugins() (map[string]*PluginConfig, error) {
	configs := make(map[string]*PluginConfig)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(pluginsBucket)).ForEach(func(k, v []byte) error {
			var cfg PluginConfig
			if err := json.Unmarshal(v, &cfg); err != nil {
				return fmt.Errorf("failed to unmarshal plugin config: %w", err)
			}
			configs[string(k)] = &cfg
			return nil
		})
	})
	return configs, err
}

// Settings

// Get retrieves a raw value
func (s *BoltStorage) Get(namespace, key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		ns := tx.Bucket([]byte(settingsBucket)).Bucket([]byte(namespace))
		if ns == nil {
			return ErrNotFound
		}

		data := ns.Get([]byte(key))
		if data == nil {
			return ErrNotFound
		}

		// bbolt memory is only valid inside the transaction
		value = make([]byte, len(data))
		copy(value, data)
		return nil
	})
	return value, err
}

// Set stores a raw value
func (s *BoltStorage) Set(namespace, key string, value []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		ns, err := tx.Bucket([]byte(settingsBucket)).CreateBucketIfNotExists([]byte(namespace))
		if err != nil {
			return fmt.Errorf("failed to create %s bucket: %w", namespace, err)
		}
		return ns.Put([]byte(key), value)
	})
}

// GetBool retrieves a bool value
func (s *BoltStorage) GetBool(namespace, key string) (bool, error) {
	data, err := s.Get(namespace, key)
	if err != nil {
		return false, err
	}

	value, err := strconv.ParseBool(string(data))
	if err != nil {
		return false, fmt.Errorf("failed to parse bool: %w", err)
	}
	return value, nil
}

// SetBool stores a bool value
func (s *BoltStorage) SetBool(namespace, key string, value bool) error {
	return s.Set(namespace, key, []byte(strconv.FormatBool(value)))
}

// GetJSON retrieves and unmarshals a JSON value
func (s *BoltStorage) GetJSON(namespace, key string, v interface{}) error {
	data, err := s.Get(namespace, key)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return nil
}

// SetJSON marshals and stores a JSON value
func (s *BoltStorage) SetJSON(namespace, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return s.Set(namespace, key, data)
}

// Delete removes a value. Deleting a missing key is not an error.
func (s *BoltStorage) Delete(namespace, key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		ns := tx.Bucket([]byte(settingsBucket)).Bucket([]byte(namespace))
		if ns == nil {
			return nil
		}
		return ns.Delete([]byte(key))
	})
}

// Run archive

type storedRun struct {
	SavedAt time.Time       `json:"savedAt"`
	Report  json.RawMessage `json:"report"`
}

// SaveRun stores a run report under its stop time
func (s *BoltStorage) SaveRun(savedAt time.Time, report interface{}) error {
	raw, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal run report: %w", err)
	}
	data, err := json.Marshal(storedRun{SavedAt: savedAt, Report: raw})
	if err != nil {
		return fmt.Errorf("failed to marshal run entry: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(runsBucket))

		// Zero-padded UnixNano keeps keys in time order
		ns := savedAt.UnixNano()
		key := runKey(ns)
		for bucket.Get(key) != nil {
			ns++
			key = runKey(ns)
		}
		return bucket.Put(key, data)
	})
}

func runKey(unixNano int64) []byte {
	return []byte(fmt.Sprintf("%020d", unixNano))
}

// ListRuns returns up to limit runs, newest first
func (s *BoltStorage) ListRuns(limit int) ([]RunEntry, error) {
	entries := make([]RunEntry, 0)

	err := s.db.View(func(tx *bbolt.Tx) error {
		cursor := tx.Bucket([]byte(runsBucket)).Cursor()
		for k, v := cursor.Last(); k != nil; k, v = cursor.Prev() {
			if limit > 0 && len(entries) >= limit {
				break
			}

			var stored storedRun
			if err := json.Unmarshal(v, &stored); err != nil {
				continue // Skip corrupted entries
			}
			entries = append(entries, RunEntry{
				Key:     string(k),
				SavedAt: stored.SavedAt,
				Report:  append(json.RawMessage(nil), stored.Report...),
			})
		}
		return nil
	})

	return entries, err
}

// TrimRuns keeps only the newest maxRuns entries
func (s *BoltStorage) TrimRuns(maxRuns int) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(runsBucket))

		count := 0
		cursor := bucket.Cursor()
		for k, _ := cursor.First(); k != nil; k, _ = cursor.Next() {
			count++
		}
		if count <= maxRuns {
			return nil
		}

		// Collect first: deleting while iterating skips keys
		toDelete := make([][]byte, 0, count-maxRuns)
		for k, _ := cursor.First(); k != nil && len(toDelete) < count-maxRuns; k, _ = cursor.Next() {
			toDelete = append(toDelete, append([]byte(nil), k...))
		}
		for _, k := range toDelete {
			if err := bucket.Delete(k); err != nil {
				return fmt.Errorf("failed to delete old run: %w", err)
			}
		}
		return nil
	})
}

// Close closes the storage
func (s *BoltStorage) Close() error {
	return s.db.Close()
}
