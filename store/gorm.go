package store

import (
	"context"
	"errors"
	"time"

	"github.com/ipfs/go-cid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StoredValue is one record in a relational store.
type StoredValue struct {
	Cid       string `gorm:"primaryKey"`
	Value     []byte
	UpdatedAt time.Time
}

type StoredProvider struct {
	Cid        string `gorm:"primaryKey"`
	Node       string `gorm:"primaryKey"`
	ProvidedAt time.Time
}

// GormStore keeps records in sqlite or postgres. CompareAndSwap is a conditional insert or update, decided by the affected row count.
type GormStore struct {
	db     *gorm.DB
	NodeID string
}

var _ Store = (*GormStore)(nil)
var _ Swapper = (*GormStore)(nil)

func NewGormStore(db *gorm.DB, nodeID string) (*GormStore, error) {
	if err := db.AutoMigrate(&StoredValue{}, &StoredProvider{}); err != nil {
		return nil, err
	}
	return &GormStore{
		db:     db,
		NodeID: nodeID,
	}, nil
}

func (s *GormStore) Close() error {
	sqldb, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqldb.Close()
}

func (s *GormStore) Get(ctx context.Context, key cid.Cid) ([]byte, error) {
	var row StoredValue
	if err := s.db.WithContext(ctx).Where("cid = ?", key.String()).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.Value, nil
}

func (s *GormStore) Put(ctx context.Context, key cid.Cid, val []byte) error {
	row := StoredValue{
		Cid:       key.String(),
		Value:     val,
		UpdatedAt: time.Now(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cid"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
}

func (s *GormStore) Provide(ctx context.Context, key cid.Cid) error {
	row := StoredProvider{
		Cid:        key.String(),
		Node:       s.NodeID,
		ProvidedAt: time.Now(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cid"}, {Name: "node"}},
		DoUpdates: clause.AssignmentColumns([]string{"provided_at"}),
	}).Create(&row).Error
}

func (s *GormStore) CompareAndSwap(ctx context.Context, key cid.Cid, old, val []byte) error {
	db := s.db.WithContext(ctx)
	var res *gorm.DB
	if old == nil {
		res = db.Clauses(clause.OnConflict{DoNothing: true}).Create(&StoredValue{
			Cid:       key.String(),
			Value:     val,
			UpdatedAt: time.Now(),
		})
	} else {
		res = db.Model(&StoredValue{}).
			Where("cid = ? AND value = ?", key.String(), old).
			Updates(map[string]any{"value": val, "updated_at": time.Now()})
	}
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}
