package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// recordRow 所有集合共用一张表，(collection, record_key) 唯一
type recordRow struct {
	ID         int64          `gorm:"primaryKey;autoIncrement"`
	Collection string         `gorm:"size:64;not null;uniqueIndex:idx_collection_key,priority:1"`
	Key        string         `gorm:"column:record_key;size:191;not null;uniqueIndex:idx_collection_key,priority:2"`
	Data       datatypes.JSON `gorm:"not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (recordRow) TableName() string {
	return "records"
}

func (r *recordRow) toRecord() *Record {
	return &Record{
		Collection: r.Collection,
		Key:        r.Key,
		Data:       []byte(r.Data),
		Seq:        r.ID,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

// GormStore 将文档存入 records 表，自增 id 即插入顺序
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 迁移 records 表并封装 db
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&recordRow{}); err != nil {
		return nil, fmt.Errorf("迁移 records 表失败: %w", err)
	}
	return &GormStore{db: db}, nil
}

// InitPostgres 初始化 PostgreSQL 连接
func InitPostgres(dsn string, maxIdleConns, maxOpenConns int) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取 sql.DB 失败: %w", err)
	}
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	return db, nil
}

// BuildDSN 构建 PostgreSQL DSN
func BuildDSN(host, port, user, password, dbname string) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable", host, port, user, password, dbname)
}

func (s *GormStore) Get(ctx context.Context, collection, key string) (*Record, error) {
	var row recordRow
	err := s.db.WithContext(ctx).
		Where("collection = ? AND record_key = ?", collection, key).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toRecord(), nil
}

func (s *GormStore) Put(ctx context.Context, collection, key string, data []byte) error {
	return upsertRow(s.db.WithContext(ctx), collection, key, data)
}

func (s *GormStore) Create(ctx context.Context, collection, key string, data []byte) error {
	return insertRow(s.db.WithContext(ctx), collection, key, data)
}

// Batch 在同一事务中写入，任一失败整体回滚
func (s *GormStore) Batch(ctx context.Context, writes []Write) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, w := range writes {
			write := upsertRow
			if w.CreateOnly {
				write = insertRow
			}
			if err := write(tx, w.Collection, w.Key, w.Data); err != nil {
				return err
			}
		}
		return nil
	})
}

func upsertRow(db *gorm.DB, collection, key string, data []byte) error {
	row := recordRow{Collection: collection, Key: key, Data: datatypes.JSON(data)}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "record_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&row).Error
}

func insertRow(db *gorm.DB, collection, key string, data []byte) error {
	row := recordRow{Collection: collection, Key: key, Data: datatypes.JSON(data)}
	result := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordExists
	}
	return nil
}

func (s *GormStore) List(ctx context.Context, collection string) ([]*Record, error) {
	return s.find(ctx, s.db.WithContext(ctx).Where("collection = ?", collection))
}

func (s *GormStore) ListPrefix(ctx context.Context, collection, prefix string) ([]*Record, error) {
	if prefix == "" {
		return s.List(ctx, collection)
	}
	q := s.db.WithContext(ctx).
		Where("collection = ? AND record_key LIKE ? ESCAPE '\\'", collection, escapeLike(prefix)+"%")
	return s.find(ctx, q)
}

func (s *GormStore) find(ctx context.Context, q *gorm.DB) ([]*Record, error) {
	var rows []recordRow
	if err := q.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*Record, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toRecord())
	}
	return out, nil
}

func (s *GormStore) Delete(ctx context.Context, collection, key string) error {
	return s.db.WithContext(ctx).
		Where("collection = ? AND record_key = ?", collection, key).
		Delete(&recordRow{}).Error
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
