package models

import (
	"time"

	"gorm.io/gorm"
)

// AchievementType classifies what a code or claim awards
type AchievementType string

const (
	AchievementTypeActivity AchievementType = "activity" // QR-scanned venue/activity codes
	AchievementTypeSocial   AchievementType = "social"   // peer-to-peer connect scans
	AchievementTypeCTFFlag  AchievementType = "ctf-flag" // CTF flag submissions
)

// ParseAchievementType maps a stored string onto the closed type set.
// Unrecognized values are reported to the caller, never defaulted.
func ParseAchievementType(s string) (AchievementType, bool) {
	switch t := AchievementType(s); t {
	case AchievementTypeActivity, AchievementTypeSocial, AchievementTypeCTFFlag:
		return t, true
	}
	return "", false
}

// CodeDefinition is an achievement trigger: a scannable QR code or a CTF
// flag handle. The content team creates and edits these rows; the claim
// engine only reads them (short-TTL cached), so edits become visible
// within the cache TTL.
type CodeDefinition struct {
	ID             string          `gorm:"primaryKey" json:"id"` // slug handle, e.g. "summit-keynote"
	Type           AchievementType `gorm:"type:varchar(16);not null" json:"type"`
	Name           string          `gorm:"not null" json:"name"`
	Description    string          `gorm:"type:text" json:"description"`
	SuccessMessage string          `gorm:"type:text" json:"success_message"`
	Location       *string         `json:"location,omitempty"`
	Points         int             `gorm:"default:0" json:"points"`
	ExpiryDate     time.Time       `gorm:"not null" json:"expiry_date"`
	Disabled       bool            `gorm:"default:false" json:"disabled"`

	// Optional caps. Nil means uncapped on that dimension; "exhausted"
	// is derived from record counts at claim time, never stored here.
	MaxTotalUses   *int `json:"max_total_uses,omitempty"`
	MaxUsesPerUser *int `json:"max_uses_per_user,omitempty"`

	// Proof configuration. ProofSecretURI is an otpauth:// TOTP URI;
	// LiteralFlag is a plain flag string. Never serialized to clients.
	ProofSecretURI *string `gorm:"type:text" json:"-"`
	LiteralFlag    *string `gorm:"type:text" json:"-"`

	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Expired reports whether the code's expiry date has passed.
func (cd *CodeDefinition) Expired(now time.Time) bool {
	return cd.ExpiryDate.Before(now)
}
