package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/gymstack/gymstack/internal/audit/domain"
	"github.com/gymstack/gymstack/internal/clock"
	"github.com/gymstack/gymstack/internal/orgcontext"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  auditdomain.Repository
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  auditdomain.Repository
}

func NewService(p ServiceParam) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) AppendNote(ctx context.Context, tx *gorm.DB, req auditdomain.AppendNoteRequest) (*auditdomain.Note, error) {
	if req.OrgID == 0 {
		return nil, auditdomain.ErrInvalidOrganization
	}
	subjectType := strings.TrimSpace(req.SubjectType)
	if subjectType == "" || req.SubjectID == 0 {
		return nil, auditdomain.ErrInvalidSubject
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, auditdomain.ErrInvalidNote
	}
	category := req.Category
	if category == "" {
		category = auditdomain.CategoryGeneral
	}

	authorID := req.AuthorID
	if authorID == nil {
		authorID = orgcontext.ActorID(ctx)
	}

	note := &auditdomain.Note{
		ID:          s.genID.Generate(),
		OrgID:       req.OrgID,
		SubjectType: subjectType,
		SubjectID:   req.SubjectID,
		Title:       title,
		Body:        strings.TrimSpace(req.Body),
		Category:    category,
		AuthorID:    authorID,
		CreatedAt:   s.clock.Now(ctx),
	}

	db := tx
	if db == nil {
		db = s.db
	}
	if err := s.repo.Insert(ctx, db, note); err != nil {
		return nil, err
	}
	return note, nil
}

func (s *Service) ListNotes(ctx context.Context, subjectType string, subjectID snowflake.ID) ([]auditdomain.Note, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, auditdomain.ErrInvalidOrganization
	}
	if strings.TrimSpace(subjectType) == "" || subjectID == 0 {
		return nil, auditdomain.ErrInvalidSubject
	}
	return s.repo.ListBySubject(ctx, s.db, orgID, subjectType, subjectID)
}
