// Package models defines the gorm models persisted in the local cab store.
package models

import (
	"strconv"
	"time"
)

// Session is the single active authenticated session. The access token is
// only usable against the endpoint that issued it, so the endpoint fields
// travel with the tokens: switching tenants replaces the whole row.
type Session struct {
	ID           uint   `gorm:"primaryKey"`
	TenantID     string `gorm:"size:32;not null"`
	Host         string `gorm:"size:256;not null"`
	Port         int    `gorm:"not null"`
	SSL          bool   `gorm:"not null;default:false"`
	BasePath     string `gorm:"size:256;not null"`
	Login        string `gorm:"size:128"`
	AccessToken  string `gorm:"type:text;not null"`
	RefreshToken string `gorm:"type:text"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// BaseURL builds the root URL all API paths are appended to.
func (s *Session) BaseURL() string {
	scheme := "http"
	if s.SSL {
		scheme = "https"
	}
	base := scheme + "://" + s.Host
	if s.Port > 0 {
		base += ":" + strconv.Itoa(s.Port)
	}
	if s.BasePath != "" {
		base += "/" + s.BasePath
	}
	return base
}
