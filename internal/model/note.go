package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// DefaultUploader labels notes uploaded without an uploader name.
	DefaultUploader = "Anonymous"
	// MinRating and MaxRating bound Note.Rating.
	MinRating = 0
	MaxRating = 5
)

// Note is the metadata of a PDF pinned on the content store. CID never
// changes after creation; Rating is the only mutable field.
type Note struct {
	ID        string    `json:"id" bson:"_id" gorm:"type:char(36);primaryKey"`
	Title     string    `json:"title" bson:"title" gorm:"size:255;not null"`
	Subject   string    `json:"subject" bson:"subject" gorm:"size:255;not null;index"`
	Branch    string    `json:"branch" bson:"branch" gorm:"size:255;not null;index"`
	Sem       string    `json:"sem" bson:"sem" gorm:"size:64;not null;index"`
	Uploader  string    `json:"uploader" bson:"uploader" gorm:"size:255;not null;default:'Anonymous'"`
	CID       string    `json:"cid" bson:"cid" gorm:"column:cid;size:128;not null;index"`
	Filename  string    `json:"filename,omitempty" bson:"filename" gorm:"size:255"`
	Size      int64     `json:"size,omitempty" bson:"size"`
	Rating    int       `json:"rating" bson:"rating" gorm:"not null;default:0"`
	CreatedAt time.Time `json:"created_at" bson:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// BeforeCreate sets the UUID before creating the record.
func (n *Note) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return nil
}

// NoteFilter selects notes by exact, case-insensitive field values. Empty
// fields match everything.
type NoteFilter struct {
	Branch  string `query:"branch"`
	Sem     string `query:"sem"`
	Subject string `query:"subject"`
}
