package container

import (
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// ErrNoAttempt is returned by Ledger.Get when no replication attempt has
// been recorded for a container.
var ErrNoAttempt = errors.New("container: no replication attempt recorded")

// AttemptState classifies how a replication attempt ended.
type AttemptState string

const (
	// AttemptComplete marks an attempt whose full replica reached the sink.
	AttemptComplete AttemptState = "complete"
	// AttemptFailed marks an attempt that ended on an error, possibly
	// after a partial write.
	AttemptFailed AttemptState = "failed"
)

// AttemptRecord is the durable trace of one download attempt.
type AttemptRecord struct {
	AttemptID     string       `json:"attempt_id"`
	ContainerID   uint64       `json:"container_id"`
	Peer          string       `json:"peer"`
	Path          string       `json:"path,omitempty"`
	BytesReceived int64        `json:"bytes_received"`
	State         AttemptState `json:"state"`
	StartedAt     time.Time    `json:"started_at"`
	FinishedAt    time.Time    `json:"finished_at"`
	Error         string       `json:"error,omitempty"`
}

// NewAttempt starts a record for a download from peer. The attempt gets a
// fresh ID and a start timestamp; the caller fills in the outcome fields
// before handing it to Ledger.Record.
func NewAttempt(containerID uint64, peer string) AttemptRecord {
	return AttemptRecord{
		AttemptID:   uuid.NewString(),
		ContainerID: containerID,
		Peer:        peer,
		StartedAt:   time.Now().UTC(),
	}
}

// Ledger persists the most recent replication attempt per container. It is
// a thin layer over a badger database and is safe for concurrent use.
type Ledger struct {
	db *badger.DB
}

// OpenLedger opens (or creates) the ledger database under dir.
func OpenLedger(dir string) (*Ledger, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("container: open ledger: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close releases the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

var attemptPrefix = []byte("attempt:")

func attemptKey(containerID uint64) []byte {
	return fmt.Appendf(nil, "attempt:%020d", containerID)
}

// Record stores rec as the latest attempt for its container, replacing any
// earlier record.
func (l *Ledger) Record(rec AttemptRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("container: encode attempt: %w", err)
	}
	err = l.db.Update(func(txn *badger.Txn) error {
		return txn.Set(attemptKey(rec.ContainerID), raw)
	})
	if err != nil {
		return fmt.Errorf("container: record attempt: %w", err)
	}
	return nil
}

// Get returns the latest recorded attempt for containerID.
func (l *Ledger) Get(containerID uint64) (AttemptRecord, error) {
	var rec AttemptRecord
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(attemptKey(containerID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNoAttempt
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		if errors.Is(err, ErrNoAttempt) {
			return AttemptRecord{}, ErrNoAttempt
		}
		return AttemptRecord{}, fmt.Errorf("container: load attempt: %w", err)
	}
	return rec, nil
}

// List returns the latest attempt of every container, ordered by container
// ID.
func (l *Ledger) List() ([]AttemptRecord, error) {
	var recs []AttemptRecord
	err := l.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(attemptPrefix); it.ValidForPrefix(attemptPrefix); it.Next() {
			var rec AttemptRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			recs = append(recs, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("container: list attempts: %w", err)
	}
	return recs, nil
}
