package gormrepo

import (
	"context"
	"errors"
	"fmt"

	"camwatch/internal/core/domain"

	"gorm.io/gorm"
)

type AlertRepository struct {
	db *gorm.DB
}

func NewAlertRepository(db *gorm.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

func (r *AlertRepository) Create(ctx context.Context, alert *domain.Alert) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var detections, alerts int64
		if err := tx.Model(&detectionModel{}).Where("id = ?", string(alert.DetectionID)).Count(&detections).Error; err != nil {
			return fmt.Errorf("check detection: %w", err)
		}
		if detections == 0 {
			return domain.ErrDetectionNotFound
		}
		if err := tx.Model(&alertModel{}).Where("detection_id = ?", string(alert.DetectionID)).Count(&alerts).Error; err != nil {
			return fmt.Errorf("check alert: %w", err)
		}
		if alerts > 0 {
			return domain.ErrAlertExists
		}

		err := tx.Create(toAlertModel(alert)).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrAlertExists
		}
		if err != nil {
			return fmt.Errorf("insert alert: %w", err)
		}
		return nil
	})
}

func (r *AlertRepository) GetByID(ctx context.Context, id domain.AlertID) (*domain.Alert, error) {
	var m alertModel
	err := r.db.WithContext(ctx).First(&m, "id = ?", string(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select alert: %w", err)
	}
	return m.toDomain(), nil
}

// Update only changes mutable fields; the detection link is fixed at creation.
func (r *AlertRepository) Update(ctx context.Context, alert *domain.Alert) error {
	res := r.db.WithContext(ctx).
		Model(&alertModel{}).
		Where("id = ?", string(alert.ID)).
		Update("viewed", alert.Viewed)
	if res.Error != nil {
		return fmt.Errorf("update alert: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrAlertNotFound
	}
	return nil
}

func (r *AlertRepository) Delete(ctx context.Context, id domain.AlertID) error {
	res := r.db.WithContext(ctx).Where("id = ?", string(id)).Delete(&alertModel{})
	if res.Error != nil {
		return fmt.Errorf("delete alert: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrAlertNotFound
	}
	return nil
}

func (r *AlertRepository) List(ctx context.Context) ([]*domain.Alert, error) {
	var models []alertModel
	if err := r.db.WithContext(ctx).Order("timestamp DESC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	alerts := make([]*domain.Alert, 0, len(models))
	for i := range models {
		alerts = append(alerts, models[i].toDomain())
	}
	return alerts, nil
}
