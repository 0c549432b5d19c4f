package indexer

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventRecord is one committed engine event.
type EventRecord struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Sequence    uint64    `gorm:"uniqueIndex"`
	Type        string    `gorm:"size:64;index"`
	ChallengeID uint64    `gorm:"index"`
	Participant string    `gorm:"size:42;index"`
	Attributes  string    `gorm:"type:text"`
	CreatedAt   time.Time
}

// TableName pins the table name across drivers.
func (EventRecord) TableName() string { return "challenge_events" }

// AutoMigrate ensures the schema exists.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&EventRecord{})
}
