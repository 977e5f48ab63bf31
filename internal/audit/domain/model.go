package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidSubject      = errors.New("invalid_subject")
	ErrInvalidNote         = errors.New("invalid_note")
)

const SubjectMembership = "membership"

type Category string

const (
	CategoryGeneral      Category = "general"
	CategoryDates        Category = "dates"
	CategoryLimits       Category = "limits"
	CategoryHold         Category = "hold"
	CategoryCancellation Category = "cancellation"
	CategoryUpgrade      Category = "upgrade"
	CategoryTransfer     Category = "transfer"
	CategoryReinstate    Category = "reinstate"
	CategoryPayment      Category = "payment"
)

// Note is an append-only history entry attached to a subject row.
type Note struct {
	ID          snowflake.ID  `json:"id" gorm:"primaryKey;autoIncrement:false"`
	OrgID       snowflake.ID  `json:"org_id" gorm:"not null;index:idx_notes_subject,priority:1"`
	SubjectType string        `json:"subject_type" gorm:"type:varchar(50);not null;index:idx_notes_subject,priority:2"`
	SubjectID   snowflake.ID  `json:"subject_id" gorm:"not null;index:idx_notes_subject,priority:3"`
	Title       string        `json:"title" gorm:"type:varchar(191);not null"`
	Body        string        `json:"body" gorm:"type:text"`
	Category    Category      `json:"category" gorm:"type:varchar(32);not null"`
	AuthorID    *snowflake.ID `json:"author_id"`
	CreatedAt   time.Time     `json:"created_at" gorm:"not null;index"`
}

func (Note) TableName() string { return "notes" }

type AppendNoteRequest struct {
	OrgID       snowflake.ID
	SubjectType string
	SubjectID   snowflake.ID
	Title       string
	Body        string
	Category    Category
	AuthorID    *snowflake.ID
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, note *Note) error
	ListBySubject(ctx context.Context, db *gorm.DB, orgID snowflake.ID, subjectType string, subjectID snowflake.ID) ([]Note, error)
	ListRange(ctx context.Context, db *gorm.DB, orgID snowflake.ID, from, to time.Time, categories []Category) ([]Note, error)
}

type Service interface {
	// AppendNote writes through tx so the note commits or rolls back with
	// the caller's transaction. A nil tx writes on its own.
	AppendNote(ctx context.Context, tx *gorm.DB, req AppendNoteRequest) (*Note, error)
	ListNotes(ctx context.Context, subjectType string, subjectID snowflake.ID) ([]Note, error)
}
