package gormrepo

import (
	"time"

	"camwatch/internal/core/domain"
)

type streamModel struct {
	ID                  string `gorm:"primaryKey;size:64"`
	Name                string `gorm:"size:100;not null"`
	Description         string
	RTSPURL             string  `gorm:"column:rtsp_url;not null"`
	DetectionEnabled    bool    `gorm:"not null"`
	ConfidenceThreshold float64 `gorm:"not null"`
	Status              string  `gorm:"size:50;not null"`
	LastConnected       *time.Time
	CreatedAt           time.Time `gorm:"index"`
}

func (streamModel) TableName() string { return "streams" }

type detectionModel struct {
	ID              string    `gorm:"primaryKey;size:64"`
	StreamID        string    `gorm:"size:64;index;not null"`
	ConfidenceScore float64   `gorm:"not null"`
	ImagePath       string    `gorm:"size:512"`
	Timestamp       time.Time `gorm:"index"`
}

func (detectionModel) TableName() string { return "detections" }

type alertModel struct {
	ID          string    `gorm:"primaryKey;size:64"`
	DetectionID string    `gorm:"size:64;uniqueIndex;not null"`
	Viewed      bool      `gorm:"not null"`
	Timestamp   time.Time `gorm:"index"`
}

func (alertModel) TableName() string { return "alerts" }

type userModel struct {
	ID           string `gorm:"primaryKey;size:64"`
	Username     string `gorm:"size:150;uniqueIndex;not null"`
	Email        string `gorm:"size:254"`
	PasswordHash string `gorm:"not null"`
	IsAdmin      bool   `gorm:"not null"`
	LastLogin    *time.Time
	CreatedAt    time.Time
}

func (userModel) TableName() string { return "users" }

func toStreamModel(s *domain.Stream) *streamModel {
	return &streamModel{
		ID:                  string(s.ID),
		Name:                s.Name,
		Description:         s.Description,
		RTSPURL:             s.RTSPURL,
		DetectionEnabled:    s.DetectionEnabled,
		ConfidenceThreshold: s.ConfidenceThreshold,
		Status:              string(s.Status),
		LastConnected:       s.LastConnected,
		CreatedAt:           s.CreatedAt,
	}
}

func (m *streamModel) toDomain() *domain.Stream {
	return &domain.Stream{
		ID:                  domain.StreamID(m.ID),
		Name:                m.Name,
		Description:         m.Description,
		RTSPURL:             m.RTSPURL,
		DetectionEnabled:    m.DetectionEnabled,
		ConfidenceThreshold: m.ConfidenceThreshold,
		Status:              domain.StreamStatus(m.Status),
		LastConnected:       m.LastConnected,
		CreatedAt:           m.CreatedAt,
	}
}

func toDetectionModel(d *domain.Detection) *detectionModel {
	return &detectionModel{
		ID:              string(d.ID),
		StreamID:        string(d.StreamID),
		ConfidenceScore: d.Confidence,
		ImagePath:       d.ImagePath,
		Timestamp:       d.CreatedAt,
	}
}

func (m *detectionModel) toDomain() *domain.Detection {
	return &domain.Detection{
		ID:         domain.DetectionID(m.ID),
		StreamID:   domain.StreamID(m.StreamID),
		Confidence: m.ConfidenceScore,
		ImagePath:  m.ImagePath,
		CreatedAt:  m.Timestamp,
	}
}

func toAlertModel(a *domain.Alert) *alertModel {
	return &alertModel{
		ID:          string(a.ID),
		DetectionID: string(a.DetectionID),
		Viewed:      a.Viewed,
		Timestamp:   a.CreatedAt,
	}
}

func (m *alertModel) toDomain() *domain.Alert {
	return &domain.Alert{
		ID:          domain.AlertID(m.ID),
		DetectionID: domain.DetectionID(m.DetectionID),
		Viewed:      m.Viewed,
		CreatedAt:   m.Timestamp,
	}
}

func toUserModel(u *domain.User) *userModel {
	return &userModel{
		ID:           string(u.ID),
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		IsAdmin:      u.IsAdmin,
		LastLogin:    u.LastLogin,
		CreatedAt:    u.CreatedAt,
	}
}

func (m *userModel) toDomain() *domain.User {
	return &domain.User{
		ID:           domain.UserID(m.ID),
		Username:     m.Username,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		IsAdmin:      m.IsAdmin,
		LastLogin:    m.LastLogin,
		CreatedAt:    m.CreatedAt,
	}
}
