package report

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"lockfree/infra/sequence"
)

// -------------------- State --------------------

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

func ParseState(s string) (State, error) {
	for st := StateNew; st <= StateFailed; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, errors.Newf("unknown report state %q", s)
}

var ErrNotFound = errors.New("report not found")

// -------------------- Entry --------------------

// Entry is a stored report with its delivery state.
type Entry struct {
	ID          uint64
	State       State
	Retries     uint32
	LastAttempt int64
	Report      Report
}

const headerLen = 1 + 4 + 8

// binary encoding: [state:1][retries:4][lastAttempt:8][report...]
func encodeEntry(e Entry) ([]byte, error) {
	payload, err := e.Report.Marshal()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, headerLen+len(payload))
	buf[0] = byte(e.State)
	binary.BigEndian.PutUint32(buf[1:5], e.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(e.LastAttempt))
	copy(buf[headerLen:], payload)
	return buf, nil
}

func decodeEntry(id uint64, b []byte) (Entry, error) {
	if len(b) < headerLen {
		return Entry{}, errors.Newf("report %d: short entry (%d bytes)", id, len(b))
	}
	r, err := Unmarshal(b[headerLen:])
	if err != nil {
		return Entry{}, errors.Wrapf(err, "report %d", id)
	}
	return Entry{
		ID:          id,
		State:       State(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Report:      r,
	}, nil
}

// -------------------- Store --------------------

type Options struct {
	// InMemory keeps the store on an in-memory filesystem.
	InMemory bool
}

type Store struct {
	db  *pebble.DB
	ids *sequence.Sequencer
}

func Open(dir string, opts Options) (*Store, error) {
	po := &pebble.Options{}
	if opts.InMemory {
		po.FS = vfs.NewMem()
	}
	db, err := pebble.Open(dir, po)
	if err != nil {
		return nil, errors.Wrapf(err, "open report store %s", dir)
	}

	s := &Store{db: db}
	last, err := s.lastID()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.ids = sequence.New(0)
	s.ids.Observe(last)
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) lastID() (uint64, error) {
	iter, err := s.db.NewIter(iterBounds())
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, iter.Error()
	}
	return parseKey(iter.Key())
}

// -------------------- API --------------------

// Put stores r as a NEW entry under a fresh id and returns the id.
func (s *Store) Put(r Report) (uint64, error) {
	id := s.ids.Next()
	r.ID = id
	if err := s.write(Entry{ID: id, State: StateNew, Report: r}); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) Get(id uint64) (Entry, error) {
	val, closer, err := s.db.Get(keyFor(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return Entry{}, errors.Wrapf(ErrNotFound, "id %d", id)
	}
	if err != nil {
		return Entry{}, err
	}
	defer closer.Close()

	return decodeEntry(id, val)
}

func (s *Store) MarkSent(id uint64) error {
	return s.update(id, func(e *Entry) {
		e.State = StateSent
		e.LastAttempt = time.Now().UnixNano()
	})
}

func (s *Store) MarkAcked(id uint64) error {
	return s.update(id, func(e *Entry) {
		e.State = StateAcked
	})
}

// MarkFailed records a failed delivery attempt.
func (s *Store) MarkFailed(id uint64) error {
	return s.update(id, func(e *Entry) {
		e.State = StateFailed
		e.Retries++
	})
}

// Delete removes an entry (cleanup of ACKED reports).
func (s *Store) Delete(id uint64) error {
	return s.db.Delete(keyFor(id), pebble.Sync)
}

func (s *Store) update(id uint64, fn func(*Entry)) error {
	e, err := s.Get(id)
	if err != nil {
		return err
	}
	fn(&e)
	return s.write(e)
}

func (s *Store) write(e Entry) error {
	val, err := encodeEntry(e)
	if err != nil {
		return err
	}
	return s.db.Set(keyFor(e.ID), val, pebble.Sync)
}

// -------------------- Scan --------------------

// List iterates every entry in id order.
func (s *Store) List(fn func(Entry) error) error {
	iter, err := s.db.NewIter(iterBounds())
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		id, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		e, err := decodeEntry(id, iter.Value())
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return iter.Error()
}

// ScanByState iterates all entries in the given state.
// This is used by the broadcaster.
func (s *Store) ScanByState(state State, fn func(Entry) error) error {
	return s.List(func(e Entry) error {
		if e.State != state {
			return nil
		}
		return fn(e)
	})
}

// -------------------- Helpers --------------------

const keyPrefix = "report/"

func iterBounds() *pebble.IterOptions {
	return &pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "~"),
	}
}

func keyFor(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", keyPrefix, id))
}

func parseKey(b []byte) (uint64, error) {
	var id uint64
	if _, err := fmt.Sscanf(string(b[len(keyPrefix):]), "%d", &id); err != nil {
		return 0, errors.Wrapf(err, "parse key %q", b)
	}
	return id, nil
}
