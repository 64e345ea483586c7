package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/eleven-am/specter/internal/domain"
	"github.com/eleven-am/specter/internal/xjson"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

const (
	executionPrefix  = "exec:"
	executionIndex   = "execidx:"
	auditPrefix      = "audit:"
	skillPrefix      = "skill:"
	defaultListLimit = 20
)

// Store persists execution records, the audit log and forged skills in a
// single badger database.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
	now    func() time.Time
}

func Open(cfg domain.StorageConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("%w: storage path is required", domain.ErrInvalidConfig)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithLoggingLevel(badger.ERROR)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return NewStore(db, logger), nil
}

func NewStore(db *badger.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:     db,
		logger: logger.With("component", "execution-store"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func executionKey(id string) []byte {
	return []byte(executionPrefix + id)
}

func indexKey(startedAt time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", executionIndex, startedAt.UnixNano(), id))
}

func (s *Store) CreateExecution(ctx context.Context, userID, intent string, graph *domain.ExecutionGraph) (string, error) {
	rec := domain.ExecutionRecord{
		ID:        "exec_" + uuid.New().String(),
		UserID:    userID,
		Intent:    intent,
		Graph:     graph,
		Status:    domain.ExecutionRunning,
		StartedAt: s.now(),
	}

	data, err := xjson.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode execution: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(executionKey(rec.ID), data); err != nil {
			return err
		}
		return txn.Set(indexKey(rec.StartedAt, rec.ID), []byte(rec.ID))
	})
	if err != nil {
		return "", fmt.Errorf("create execution: %w", err)
	}

	s.logger.Debug("execution created", "execution_id", rec.ID, "nodes", len(graph.Nodes))
	return rec.ID, nil
}

func (s *Store) CompleteExecution(ctx context.Context, id string, result *domain.RunResult) error {
	return s.update(id, func(rec *domain.ExecutionRecord) {
		now := s.now()
		rec.Status = domain.ExecutionCompleted
		rec.Result = result
		rec.Error = ""
		rec.CompletedAt = &now
	})
}

func (s *Store) FailExecution(ctx context.Context, id string, reason string) error {
	return s.update(id, func(rec *domain.ExecutionRecord) {
		now := s.now()
		rec.Status = domain.ExecutionFailed
		rec.Error = reason
		rec.CompletedAt = &now
	})
}

func (s *Store) SetStatus(ctx context.Context, id string, status domain.ExecutionStatus) error {
	return s.update(id, func(rec *domain.ExecutionRecord) {
		rec.Status = status
	})
}

func (s *Store) update(id string, mutate func(*domain.ExecutionRecord)) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		rec, err := getExecution(txn, id)
		if err != nil {
			return err
		}
		mutate(rec)
		data, err := xjson.Marshal(rec)
		if err != nil {
			return err
		}
		return txn.Set(executionKey(id), data)
	})
	if err != nil {
		return fmt.Errorf("update execution %s: %w", id, err)
	}
	return nil
}

func getExecution(txn *badger.Txn, id string) (*domain.ExecutionRecord, error) {
	item, err := txn.Get(executionKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	var rec domain.ExecutionRecord
	err = item.Value(func(val []byte) error {
		return xjson.Unmarshal(val, &rec)
	})
	if err != nil {
		return nil, fmt.Errorf("decode execution: %w", err)
	}
	return &rec, nil
}

func (s *Store) GetExecution(ctx context.Context, id string) (*domain.ExecutionRecord, error) {
	var rec *domain.ExecutionRecord
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = getExecution(txn, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get execution %s: %w", id, err)
	}
	return rec, nil
}

// ListExecutions returns summaries, most recently started first.
func (s *Store) ListExecutions(ctx context.Context, limit int) ([]domain.ExecutionSummary, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	summaries := make([]domain.ExecutionSummary, 0, limit)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(executionIndex)
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append([]byte(executionIndex), 0xFF)
		for it.Seek(seek); it.Valid() && len(summaries) < limit; it.Next() {
			id, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			rec, err := getExecution(txn, string(id))
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					continue
				}
				return err
			}
			summaries = append(summaries, rec.Summary())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	return summaries, nil
}

func (s *Store) AddAudit(ctx context.Context, executionID, action string, details map[string]interface{}) error {
	event := domain.AuditEvent{
		ID:          ulid.Make().String(),
		ExecutionID: executionID,
		Action:      action,
		Details:     details,
		Timestamp:   s.now(),
	}

	data, err := xjson.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}

	key := []byte(auditPrefix + executionID + ":" + event.ID)
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	}); err != nil {
		return fmt.Errorf("add audit: %w", err)
	}
	return nil
}

// ListAudit returns the audit trail of one execution in insertion order.
func (s *Store) ListAudit(ctx context.Context, executionID string) ([]domain.AuditEvent, error) {
	var events []domain.AuditEvent
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(auditPrefix + executionID + ":")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var event domain.AuditEvent
			if err := it.Item().Value(func(val []byte) error {
				return xjson.Unmarshal(val, &event)
			}); err != nil {
				return err
			}
			events = append(events, event)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	return events, nil
}

func (s *Store) SaveSkill(ctx context.Context, record domain.SkillRecord) error {
	if record.Name == "" {
		return fmt.Errorf("%w: skill name is required", domain.ErrInvalidInput)
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now()
	}

	data, err := xjson.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode skill: %w", err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(skillPrefix+record.Name), data)
	}); err != nil {
		return fmt.Errorf("save skill %s: %w", record.Name, err)
	}

	s.logger.Debug("skill saved", "skill", record.Name, "kind", record.Kind)
	return nil
}

func (s *Store) LoadSkills(ctx context.Context) ([]domain.SkillRecord, error) {
	var records []domain.SkillRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(skillPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec domain.SkillRecord
			if err := it.Item().Value(func(val []byte) error {
				return xjson.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load skills: %w", err)
	}
	return records, nil
}
