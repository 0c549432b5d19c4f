package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"stele/core/events"
	"stele/core/types"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// MaxQueryLimit bounds a single Query page.
const MaxQueryLimit = 500

var ErrUnsupportedDriver = errors.New("indexer: unsupported driver")

// Open connects to the configured database and migrates the schema.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Store persists engine events for off-process queries. It satisfies
// events.Emitter.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
	nowFn  func() time.Time

	mu     sync.Mutex
	seq    uint64
	subs   map[*subscriber]struct{}
	buffer int
}

// NewStore wraps a migrated database handle.
func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("indexer: database required")
	}
	var last EventRecord
	res := db.Order("sequence desc").Limit(1).Find(&last)
	if res.Error != nil {
		return nil, fmt.Errorf("indexer: load sequence: %w", res.Error)
	}
	return &Store{
		db:     db,
		logger: slog.Default(),
		nowFn:  time.Now,
		seq:    last.Sequence,
		subs:   make(map[*subscriber]struct{}),
		buffer: DefaultSubscriberBuffer,
	}, nil
}

// SetLogger overrides the logger used for failed writes from Emit.
func (s *Store) SetLogger(logger *slog.Logger) {
	if s != nil && logger != nil {
		s.logger = logger
	}
}

// SetNowFunc overrides the record timestamp clock.
func (s *Store) SetNowFunc(now func() time.Time) {
	if s != nil && now != nil {
		s.nowFn = now
	}
}

// Emit implements events.Emitter. Write failures are logged.
func (s *Store) Emit(evt events.Event) {
	if s == nil || evt == nil {
		return
	}
	if err := s.Record(context.Background(), evt); err != nil {
		s.logger.Warn("index event failed", slog.String("type", evt.EventType()), slog.Any("error", err))
	}
}

// Record inserts a single event.
func (s *Store) Record(ctx context.Context, evt events.Event) error {
	payload := evt.Event()
	if payload == nil {
		return fmt.Errorf("indexer: empty event %s", evt.EventType())
	}
	attrs, err := json.Marshal(payload.Attributes)
	if err != nil {
		return err
	}
	var challengeID uint64
	if raw := payload.Attr("challengeId"); raw != "" {
		challengeID, err = strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("indexer: challengeId %q: %w", raw, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	record := EventRecord{
		ID:          uuid.New(),
		Sequence:    s.seq + 1,
		Type:        payload.Type,
		ChallengeID: challengeID,
		Participant: strings.ToLower(payload.Attr("participant")),
		Attributes:  string(attrs),
		CreatedAt:   s.nowFn().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return err
	}
	s.seq = record.Sequence
	s.publishLocked(record)
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Filter narrows Query. Zero values match everything.
type Filter struct {
	Type        string
	ChallengeID uint64
	Participant string
	AfterSeq    uint64
	Limit       int
}

// Query returns matching records in emission order.
func (s *Store) Query(ctx context.Context, filter Filter) ([]EventRecord, error) {
	q := s.db.WithContext(ctx).Model(&EventRecord{})
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}
	if filter.ChallengeID != 0 {
		q = q.Where("challenge_id = ?", filter.ChallengeID)
	}
	if p := strings.TrimSpace(filter.Participant); p != "" {
		q = q.Where("participant = ?", strings.ToLower(p))
	}
	if filter.AfterSeq != 0 {
		q = q.Where("sequence > ?", filter.AfterSeq)
	}
	limit := filter.Limit
	if limit <= 0 || limit > MaxQueryLimit {
		limit = MaxQueryLimit
	}
	var out []EventRecord
	if err := q.Order("sequence asc").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// DefaultSubscriberBuffer is the number of live records a subscriber may lag
// behind before it is dropped.
const DefaultSubscriberBuffer = 256

type subscriber struct {
	filter Filter
	ch     chan EventRecord
}

// Subscribe returns the records matching filter after filter.AfterSeq and a
// channel carrying every matching record indexed afterwards. The backlog and
// the live channel never overlap or leave a gap. The channel is closed when
// cancel is called or when the subscriber falls too far behind.
func (s *Store) Subscribe(ctx context.Context, filter Filter) ([]EventRecord, <-chan EventRecord, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var backlog []EventRecord
	page := filter
	page.Limit = MaxQueryLimit
	for {
		records, err := s.Query(ctx, page)
		if err != nil {
			return nil, nil, nil, err
		}
		backlog = append(backlog, records...)
		if len(records) < MaxQueryLimit {
			break
		}
		page.AfterSeq = records[len(records)-1].Sequence
	}

	sub := &subscriber{filter: filter, ch: make(chan EventRecord, s.buffer)}
	s.subs[sub] = struct{}{}
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.dropLocked(sub)
		})
	}
	return backlog, sub.ch, cancel, nil
}

func (s *Store) publishLocked(record EventRecord) {
	for sub := range s.subs {
		if !sub.filter.matches(record) {
			continue
		}
		select {
		case sub.ch <- record:
		default:
			s.logger.Warn("event subscriber lagging, dropped", slog.Uint64("sequence", record.Sequence))
			s.dropLocked(sub)
		}
	}
}

func (s *Store) dropLocked(sub *subscriber) {
	if _, ok := s.subs[sub]; !ok {
		return
	}
	delete(s.subs, sub)
	close(sub.ch)
}

func (f Filter) matches(r EventRecord) bool {
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	if f.ChallengeID != 0 && r.ChallengeID != f.ChallengeID {
		return false
	}
	if p := strings.TrimSpace(f.Participant); p != "" && r.Participant != strings.ToLower(p) {
		return false
	}
	return r.Sequence > f.AfterSeq
}

// Decode rebuilds the event payload stored in a record.
func (r EventRecord) Decode() (*types.Event, error) {
	attrs := map[string]string{}
	if r.Attributes != "" {
		if err := json.Unmarshal([]byte(r.Attributes), &attrs); err != nil {
			return nil, err
		}
	}
	return &types.Event{Type: r.Type, Attributes: attrs}, nil
}
