package gormrepo

import (
	"context"
	"errors"
	"fmt"

	"camwatch/internal/core/domain"
	"camwatch/internal/core/ports"

	"gorm.io/gorm"
)

type DetectionRepository struct {
	db *gorm.DB
}

func NewDetectionRepository(db *gorm.DB) *DetectionRepository {
	return &DetectionRepository{db: db}
}

func (r *DetectionRepository) Create(ctx context.Context, detection *domain.Detection) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireStream(tx, detection.StreamID); err != nil {
			return err
		}
		if err := tx.Create(toDetectionModel(detection)).Error; err != nil {
			return fmt.Errorf("insert detection: %w", err)
		}
		return nil
	})
}

func (r *DetectionRepository) GetByID(ctx context.Context, id domain.DetectionID) (*domain.Detection, error) {
	var m detectionModel
	err := r.db.WithContext(ctx).First(&m, "id = ?", string(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrDetectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select detection: %w", err)
	}
	return m.toDomain(), nil
}

func (r *DetectionRepository) Update(ctx context.Context, detection *domain.Detection) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireStream(tx, detection.StreamID); err != nil {
			return err
		}
		res := tx.Model(&detectionModel{}).
			Where("id = ?", string(detection.ID)).
			Select("stream_id", "confidence_score", "image_path").
			Updates(toDetectionModel(detection))
		if res.Error != nil {
			return fmt.Errorf("update detection: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return domain.ErrDetectionNotFound
		}
		return nil
	})
}

func (r *DetectionRepository) Delete(ctx context.Context, id domain.DetectionID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("detection_id = ?", string(id)).Delete(&alertModel{}).Error; err != nil {
			return fmt.Errorf("delete alert: %w", err)
		}
		res := tx.Where("id = ?", string(id)).Delete(&detectionModel{})
		if res.Error != nil {
			return fmt.Errorf("delete detection: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return domain.ErrDetectionNotFound
		}
		return nil
	})
}

func (r *DetectionRepository) List(ctx context.Context, filter ports.DetectionFilter) ([]*domain.Detection, error) {
	q := r.db.WithContext(ctx).Order("timestamp DESC")
	if filter.StreamID != "" {
		q = q.Where("stream_id = ?", string(filter.StreamID))
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var models []detectionModel
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list detections: %w", err)
	}
	detections := make([]*domain.Detection, 0, len(models))
	for i := range models {
		detections = append(detections, models[i].toDomain())
	}
	return detections, nil
}

func requireStream(tx *gorm.DB, id domain.StreamID) error {
	var count int64
	if err := tx.Model(&streamModel{}).Where("id = ?", string(id)).Count(&count).Error; err != nil {
		return fmt.Errorf("check stream: %w", err)
	}
	if count == 0 {
		return domain.ErrStreamNotFound
	}
	return nil
}
