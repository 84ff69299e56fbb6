package db

import (
	"time"
)

// Preference is one entry of the local key-value store.
//
// Composite PK: (Namespace, Key)
//   - A namespace groups entries per user ("session:<id>") or globally ("app").
//   - Writes overwrite, last write wins.
type Preference struct {
	Namespace string    `gorm:"primaryKey;size:128"`
	Key       string    `gorm:"primaryKey;size:128"`
	Value     string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}
