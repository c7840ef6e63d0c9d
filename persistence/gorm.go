package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/labelmint/mintflow/engine"
	"github.com/labelmint/mintflow/types"
)

// DatabaseOptions configures the relational store.
type DatabaseOptions struct {
	// Driver is postgres, mysql or sqlite.
	Driver string
	DSN    string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// executionRecord is the table row behind GormStore. Indexed columns
// carry the query dimensions; the full trace lives in the payload.
type executionRecord struct {
	ID           string    `gorm:"primaryKey;size:64"`
	DefinitionID string    `gorm:"index;size:64"`
	State        string    `gorm:"index;size:16"`
	StartedAt    time.Time `gorm:"index"`
	Payload      []byte
	UpdatedAt    time.Time
}

func (executionRecord) TableName() string { return "workflow_executions" }

// GormStore persists executions in a relational database through GORM.
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

var _ Store = (*GormStore)(nil)

// OpenGormStore opens a database per options and migrates the schema.
func OpenGormStore(opts DatabaseOptions, logger *zap.Logger) (*GormStore, error) {
	var dialector gorm.Dialector
	switch opts.Driver {
	case "postgres":
		dialector = postgres.Open(opts.DSN)
	case "mysql":
		dialector = mysql.Open(opts.DSN)
	case "sqlite":
		dialector = sqlite.Open(opts.DSN)
	default:
		return nil, types.NewError(types.ErrStorage, "unsupported database driver "+opts.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, types.NewError(types.ErrStorage, "failed to connect to database").WithCause(err)
	}

	if sqlDB, err := db.DB(); err == nil {
		if opts.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
		}
		if opts.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
		}
		if opts.ConnMaxLifetime > 0 {
			sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
		}
	}

	return NewGormStore(db, logger)
}

// NewGormStore wraps an existing connection, migrating the executions
// table.
func NewGormStore(db *gorm.DB, logger *zap.Logger) (*GormStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&executionRecord{}); err != nil {
		return nil, types.NewError(types.ErrStorage, "failed to migrate executions table").WithCause(err)
	}
	return &GormStore{
		db:     db,
		logger: logger.With(zap.String("component", "gorm_store")),
	}, nil
}

// RecordExecution upserts the execution row.
func (s *GormStore) RecordExecution(ctx context.Context, exec *engine.Execution) error {
	if exec == nil || exec.ID == "" {
		return types.NewError(types.ErrStorage, "execution has no id")
	}
	payload, err := json.Marshal(exec)
	if err != nil {
		return types.NewError(types.ErrStorage, "failed to marshal execution").WithCause(err)
	}
	row := executionRecord{
		ID:           exec.ID,
		DefinitionID: exec.DefinitionID,
		State:        string(exec.State),
		StartedAt:    exec.StartedAt,
		Payload:      payload,
		UpdatedAt:    time.Now(),
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
	if err != nil {
		return types.NewError(types.ErrStorage, "failed to record execution").WithCause(err)
	}
	return nil
}

// Execution retrieves one execution by id.
func (s *GormStore) Execution(ctx context.Context, id string) (*engine.Execution, error) {
	var row executionRecord
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, types.NewError(types.ErrStorage, "failed to read execution").WithCause(err)
	}
	return decodeRecord(row)
}

// Executions lists stored executions newest first.
func (s *GormStore) Executions(ctx context.Context, q Query) ([]*engine.Execution, error) {
	tx := s.db.WithContext(ctx).Model(&executionRecord{}).Order("started_at DESC")
	if q.DefinitionID != "" {
		tx = tx.Where("definition_id = ?", q.DefinitionID)
	}
	if q.State != "" {
		tx = tx.Where("state = ?", string(q.State))
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var rows []executionRecord
	if err := tx.Find(&rows).Error; err != nil {
		return nil, types.NewError(types.ErrStorage, "failed to list executions").WithCause(err)
	}
	out := make([]*engine.Execution, 0, len(rows))
	for _, row := range rows {
		exec, err := decodeRecord(row)
		if err != nil {
			s.logger.Warn("skipping undecodable execution row",
				zap.String("execution_id", row.ID),
				zap.Error(err),
			)
			continue
		}
		out = append(out, exec)
	}
	return out, nil
}

// Delete removes the execution row.
func (s *GormStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&executionRecord{}, "id = ?", id)
	if res.Error != nil {
		return types.NewError(types.ErrStorage, "failed to delete execution").WithCause(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Cleanup deletes terminal executions that started before the cutoff.
func (s *GormStore) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	terminal := []string{
		string(engine.StateCompleted), string(engine.StateFailed),
		string(engine.StateCancelled), string(engine.StateTimedOut),
	}
	res := s.db.WithContext(ctx).
		Where("state IN ? AND started_at < ?", terminal, time.Now().Add(-olderThan)).
		Delete(&executionRecord{})
	if res.Error != nil {
		return 0, types.NewError(types.ErrStorage, "failed to clean up executions").WithCause(res.Error)
	}
	return int(res.RowsAffected), nil
}

// SQLDB exposes the underlying connection so other components, like
// the database-node collaborator, can share it.
func (s *GormStore) SQLDB() (*sql.DB, error) {
	return s.db.DB()
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func decodeRecord(row executionRecord) (*engine.Execution, error) {
	var exec engine.Execution
	if err := json.Unmarshal(row.Payload, &exec); err != nil {
		return nil, types.NewError(types.ErrStorage, "failed to unmarshal execution").WithCause(err)
	}
	return &exec, nil
}
