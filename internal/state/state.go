package state

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

const (
	// stateDirPerm is the permission mode for the state directory.
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the state database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database
	// lock. A second process holding the database fails instead of hanging.
	stateOpenTimeout = 5 * time.Second

	// DefaultHistoryLimit is how many runs RecordRun keeps before pruning
	// the oldest.
	DefaultHistoryLimit = 500

	dbFileName = "state.db"
)

var (
	appBucket     = []byte("app")
	runsBucket    = []byte("runs")
	lastRunBucket = []byte("last_run")
	lastSerialKey = []byte("last_serial")
)

// Run is the persisted outcome of one pipeline run.
type Run struct {
	ID         string    `json:"id"`
	Pipeline   string    `json:"pipeline"`
	Serial     string    `json:"serial"`
	Direction  string    `json:"direction"`
	Trigger    string    `json:"trigger"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Uploaded   int       `json:"uploaded"`
	Downloaded int       `json:"downloaded"`
	Skipped    int       `json:"skipped"`
	Errored    int       `json:"errored"`
	Operations int       `json:"operations"`
	Degraded   bool      `json:"degraded"`
	Cancelled  bool      `json:"cancelled"`
	// Error is the run-level failure cause. Empty for runs that reached
	// the executor, even if individual copies failed.
	Error string `json:"error,omitempty"`
}

// Duration returns how long the run took.
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Failed reports whether the run aborted with a run-level error.
func (r Run) Failed() bool {
	return r.Error != ""
}

// State wraps a bbolt database holding run history and the remembered
// device selection.
type State struct {
	db    *bolt.DB
	limit int
}

// Load opens the state database inside dir, creating both if needed.
func Load(dir string) (*State, error) {
	return LoadAt(filepath.Join(dir, dbFileName))
}

// LoadAt opens a state database at the given path, creating it if it
// does not exist. Useful for tests that need an isolated database.
func LoadAt(path string) (*State, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{appBucket, runsBucket, lastRunBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}

	return &State{db: db, limit: DefaultHistoryLimit}, nil
}

// SetHistoryLimit changes how many runs are retained. Values below one
// are ignored.
func (s *State) SetHistoryLimit(n int) {
	if n > 0 {
		s.limit = n
	}
}

// Close closes the database.
func (s *State) Close() error {
	return s.db.Close()
}

// LastSerial returns the most recently selected device serial, or "".
func (s *State) LastSerial() string {
	var serial string

	_ = s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(appBucket).Get(lastSerialKey); v != nil {
			serial = string(v)
		}

		return nil
	})

	return serial
}

// SetLastSerial remembers the selected device serial.
func (s *State) SetLastSerial(serial string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(appBucket).Put(lastSerialKey, []byte(serial))
	})
}

// RecordRun appends a run to the history, assigning an ID when empty,
// and prunes the oldest entries beyond the history limit. It returns the
// stored run.
func (s *State) RecordRun(r Run) (Run, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	data, err := json.Marshal(r)
	if err != nil {
		return Run{}, fmt.Errorf("encoding run: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		runs := tx.Bucket(runsBucket)

		seq, err := runs.NextSequence()
		if err != nil {
			return err
		}

		if err := runs.Put(seqKey(seq), data); err != nil {
			return err
		}

		if err := tx.Bucket(lastRunBucket).Put([]byte(r.Pipeline), data); err != nil {
			return err
		}

		return prune(runs, s.limit)
	})
	if err != nil {
		return Run{}, fmt.Errorf("recording run: %w", err)
	}

	return r, nil
}

// prune deletes the oldest runs until at most keep remain. Bucket stats
// do not see uncommitted writes, so the count comes from the cursor.
func prune(b *bolt.Bucket, keep int) error {
	c := b.Cursor()

	n := 0
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		n++
	}

	var stale [][]byte

	for k, _ := c.First(); k != nil && len(stale) < n-keep; k, _ = c.Next() {
		stale = append(stale, append([]byte(nil), k...))
	}

	for _, k := range stale {
		if err := b.Delete(k); err != nil {
			return err
		}
	}

	return nil
}

// Runs returns up to limit runs, newest first. An empty pipeline name
// matches every pipeline; limit <= 0 means no limit.
func (s *State) Runs(pipeline string, limit int) ([]Run, error) {
	var result []Run

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(runsBucket).Cursor()

		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var r Run
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}

			if pipeline != "" && r.Pipeline != pipeline {
				continue
			}

			result = append(result, r)

			if limit > 0 && len(result) >= limit {
				break
			}
		}

		return nil
	})

	return result, err
}

// LastRun returns the most recent run of pipeline, or nil if it never ran.
func (s *State) LastRun(pipeline string) (*Run, error) {
	var result *Run

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(lastRunBucket).Get([]byte(pipeline))
		if v == nil {
			return nil
		}

		var r Run
		if err := json.Unmarshal(v, &r); err != nil {
			return err
		}

		result = &r

		return nil
	})

	return result, err
}

// RunCount returns the number of retained runs.
func (s *State) RunCount() int {
	count := 0
	_ = s.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(runsBucket).Stats().KeyN
		return nil
	})

	return count
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)

	return k
}
