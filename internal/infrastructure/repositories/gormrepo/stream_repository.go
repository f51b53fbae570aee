package gormrepo

import (
	"context"
	"errors"
	"fmt"

	"camwatch/internal/core/domain"

	"gorm.io/gorm"
)

type StreamRepository struct {
	db *gorm.DB
}

func NewStreamRepository(db *gorm.DB) *StreamRepository {
	return &StreamRepository{db: db}
}

func (r *StreamRepository) Create(ctx context.Context, stream *domain.Stream) error {
	if err := r.db.WithContext(ctx).Create(toStreamModel(stream)).Error; err != nil {
		return fmt.Errorf("insert stream: %w", err)
	}
	return nil
}

func (r *StreamRepository) GetByID(ctx context.Context, id domain.StreamID) (*domain.Stream, error) {
	var m streamModel
	err := r.db.WithContext(ctx).First(&m, "id = ?", string(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrStreamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select stream: %w", err)
	}
	return m.toDomain(), nil
}

func (r *StreamRepository) Update(ctx context.Context, stream *domain.Stream) error {
	res := r.db.WithContext(ctx).
		Model(&streamModel{}).
		Where("id = ?", string(stream.ID)).
		Select("*").
		Omit("id", "created_at").
		Updates(toStreamModel(stream))
	if res.Error != nil {
		return fmt.Errorf("update stream: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrStreamNotFound
	}
	return nil
}

// Delete removes the stream together with its detections and their alerts.
func (r *StreamRepository) Delete(ctx context.Context, id domain.StreamID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		detectionIDs := tx.Model(&detectionModel{}).Select("id").Where("stream_id = ?", string(id))
		if err := tx.Where("detection_id IN (?)", detectionIDs).Delete(&alertModel{}).Error; err != nil {
			return fmt.Errorf("delete alerts: %w", err)
		}
		if err := tx.Where("stream_id = ?", string(id)).Delete(&detectionModel{}).Error; err != nil {
			return fmt.Errorf("delete detections: %w", err)
		}
		res := tx.Where("id = ?", string(id)).Delete(&streamModel{})
		if res.Error != nil {
			return fmt.Errorf("delete stream: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return domain.ErrStreamNotFound
		}
		return nil
	})
}

func (r *StreamRepository) List(ctx context.Context) ([]*domain.Stream, error) {
	var models []streamModel
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list streams: %w", err)
	}
	streams := make([]*domain.Stream, 0, len(models))
	for i := range models {
		streams = append(streams, models[i].toDomain())
	}
	return streams, nil
}
