package receipt

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

const (
	bucketName  = "spendscan"
	receiptsKey = "receipts"
	versionKey  = "version"
)

// Store errors. Handlers dispatch on these with errors.Is.
var (
	// ErrStorageRead means the persisted collection could not be read or
	// deserialized (corrupt blob).
	ErrStorageRead = errors.New("storage read failed")
	// ErrStorageWrite means the underlying storage write failed; the
	// previously persisted collection is unchanged.
	ErrStorageWrite = errors.New("storage write failed")
)

// IDGenerator generates unique receipt IDs.
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time.
type TimeSource interface {
	Now() time.Time
}

// uuidGenerator assigns random UUIDs. Wall-clock IDs collide under rapid
// successive saves, so the default is collision-resistant.
type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Store is the single source of truth for the receipt collection. The whole
// collection is one JSON array under a single key; every mutation is a
// load-modify-rewrite of that blob. A store-level mutex serializes mutations
// so overlapping save/delete cycles cannot lose updates. Reads take no lock;
// a bbolt View transaction is already a consistent snapshot.
type Store struct {
	db          *bbolt.DB
	mu          sync.Mutex
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewStore opens (or creates) the database at path.
func NewStore(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	return &Store{
		db:          db,
		idGenerator: &uuidGenerator{},
		timeSource:  &defaultTimeSource{},
	}, nil
}

// NewStoreWithDeps creates a Store with custom ID generator and time source
// for testing.
func NewStoreWithDeps(path string, idGen IDGenerator, timeSrc TimeSource) (*Store, error) {
	s, err := NewStore(path)
	if err != nil {
		return nil, err
	}
	s.idGenerator = idGen
	s.timeSource = timeSrc
	return s, nil
}

// Save assigns an ID and creation timestamp to draft, prepends the new
// receipt to the collection (display order is newest first) and rewrites the
// persisted blob. Negative amounts are clamped to zero so a hand-built draft
// cannot corrupt aggregates.
func (s *Store) Save(draft Draft) (*Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	receipts, err := s.load()
	if err != nil {
		return nil, err
	}

	if draft.TotalAmount < 0 {
		draft.TotalAmount = 0
	}
	if draft.Tax < 0 {
		draft.Tax = 0
	}

	rec := Receipt{
		ID:          s.idGenerator.Generate(),
		VendorName:  draft.VendorName,
		TotalAmount: draft.TotalAmount,
		Tax:         draft.Tax,
		Date:        draft.Date,
		Category:    CanonicalCategory(draft.Category),
		CreatedAt:   s.timeSource.Now(),
	}

	next := make([]Receipt, 0, len(receipts)+1)
	next = append(next, rec)
	next = append(next, receipts...)

	if err := s.persist(next); err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns the full collection, newest first. A collection that has never
// been written is an empty list, not an error.
func (s *Store) List() ([]Receipt, error) {
	var raw []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		if data := tx.Bucket([]byte(bucketName)).Get([]byte(receiptsKey)); data != nil {
			raw = make([]byte, len(data))
			copy(raw, data)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: reading collection: %v", ErrStorageRead, err)
	}
	if raw == nil {
		return []Receipt{}, nil
	}

	var receipts []Receipt
	if err := json.Unmarshal(raw, &receipts); err != nil {
		return nil, fmt.Errorf("%w: unmarshaling collection: %v", ErrStorageRead, err)
	}
	return receipts, nil
}

// Delete removes the receipt with the given ID and rewrites the collection.
// A missing ID is a no-op, not an error.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	receipts, err := s.load()
	if err != nil {
		return err
	}

	filtered := receipts[:0]
	for _, r := range receipts {
		if r.ID != id {
			filtered = append(filtered, r)
		}
	}
	if len(filtered) == len(receipts) {
		return nil
	}
	return s.persist(filtered)
}

// Version returns a counter bumped on every successful mutation. Callers use
// it as a freshness token for derived caches.
func (s *Store) Version() (uint64, error) {
	var version uint64
	err := s.db.View(func(tx *bbolt.Tx) error {
		if data := tx.Bucket([]byte(bucketName)).Get([]byte(versionKey)); len(data) == 8 {
			version = binary.BigEndian.Uint64(data)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: reading version: %v", ErrStorageRead, err)
	}
	return version, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.db.Path()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// load must be called with the mutex held when part of a mutation.
func (s *Store) load() ([]Receipt, error) {
	return s.List()
}

// persist rewrites the whole collection and bumps the version counter in one
// transaction, so the stored blob is replaced atomically or not at all.
func (s *Store) persist(receipts []Receipt) error {
	data, err := json.Marshal(receipts)
	if err != nil {
		return fmt.Errorf("%w: marshaling collection: %v", ErrStorageWrite, err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		if err := bucket.Put([]byte(receiptsKey), data); err != nil {
			return err
		}
		var version uint64
		if v := bucket.Get([]byte(versionKey)); len(v) == 8 {
			version = binary.BigEndian.Uint64(v)
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, version+1)
		return bucket.Put([]byte(versionKey), buf)
	})
	if err != nil {
		return fmt.Errorf("%w: writing collection: %v", ErrStorageWrite, err)
	}
	return nil
}
