package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Adda-Baaj/newsroom-bridge/pkg/content"
)

// recordRow is the table layout of a Record.
type recordRow struct {
	Kind      string         `gorm:"primaryKey;size:128"`
	ItemID    string         `gorm:"primaryKey;size:128"`
	Headline  string         `gorm:"size:512"`
	Entity    datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time
	UpdatedAt time.Time `gorm:"index"`
}

func (recordRow) TableName() string { return "content_records" }

type cursorRow struct {
	Name      string `gorm:"primaryKey;size:128"`
	Value     string `gorm:"size:2048"`
	UpdatedAt time.Time
}

func (cursorRow) TableName() string { return "feed_cursors" }

// PostgresStore keeps records in PostgreSQL through gorm.
type PostgresStore struct {
	db *gorm.DB
}

// OpenPostgres connects to dsn and migrates the tables.
func OpenPostgres(dsn string) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return NewPostgresStore(db)
}

// NewPostgresStore wraps an open gorm handle.
func NewPostgresStore(db *gorm.DB) (*PostgresStore, error) {
	if err := db.AutoMigrate(&recordRow{}, &cursorRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, rec Record) (bool, error) {
	if err := validate(rec); err != nil {
		return false, err
	}
	entity, err := json.Marshal(rec.Entity)
	if err != nil {
		return false, fmt.Errorf("encode entity: %w", err)
	}

	created := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&recordRow{}).
			Where("kind = ? AND item_id = ?", rec.Kind, rec.ItemID).
			Count(&count).Error; err != nil {
			return err
		}
		created = count == 0

		row := recordRow{
			Kind:     rec.Kind,
			ItemID:   rec.ItemID,
			Headline: rec.Headline,
			Entity:   datatypes.JSON(entity),
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "kind"}, {Name: "item_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"headline", "entity", "updated_at"}),
		}).Create(&row).Error
	})
	if err != nil {
		return false, fmt.Errorf("upsert record %s: %w", rec.Key(), err)
	}
	return created, nil
}

func (s *PostgresStore) Get(ctx context.Context, kind, itemID string) (Record, error) {
	var row recordRow
	err := s.db.WithContext(ctx).Where("kind = ? AND item_id = ?", kind, itemID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return row.record()
}

func (s *PostgresStore) List(ctx context.Context, kind string, limit int) ([]Record, error) {
	var rows []recordRow
	err := s.db.WithContext(ctx).
		Where("kind = ?", kind).
		Order("updated_at DESC").
		Limit(normalizeLimit(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *PostgresStore) Cursor(ctx context.Context, name string) (string, error) {
	var row cursorRow
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	return row.Value, err
}

func (s *PostgresStore) SetCursor(ctx context.Context, name, value string) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&cursorRow{Name: name, Value: value}).Error
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r recordRow) record() (Record, error) {
	var entity content.Entity
	if len(r.Entity) > 0 {
		if err := json.Unmarshal(r.Entity, &entity); err != nil {
			return Record{}, fmt.Errorf("decode entity %s:%s: %w", r.Kind, r.ItemID, err)
		}
	}
	return Record{
		Kind:      r.Kind,
		ItemID:    r.ItemID,
		Headline:  r.Headline,
		Entity:    entity,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}
