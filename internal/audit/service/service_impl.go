package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/minghua-center/minghua/internal/audit/domain"
	"github.com/minghua-center/minghua/internal/clock"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultListLimit = 100

type Service struct {
	log   *zap.Logger
	db    *gorm.DB
	genID *snowflake.Node
	clock clock.Clock
}

func New(log *zap.Logger, db *gorm.DB, genID *snowflake.Node, clk clock.Clock) domain.Service {
	return &Service{
		log:   log.Named("audit.service"),
		db:    db,
		genID: genID,
		clock: clk,
	}
}

func (s *Service) Record(ctx context.Context, actorID *string, action, targetType string, targetID *string, metadata map[string]any) error {
	entry := domain.AuditLog{
		ID:         s.genID.Generate(),
		ActorID:    actorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Metadata:   metadata,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		// Auditing must never break the calling flow.
		s.log.Warn("audit record failed", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.AuditLog, error) {
	limit := req.Limit
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}

	query := s.db.WithContext(ctx).Model(&domain.AuditLog{}).Order("created_at DESC").Limit(limit)
	if req.Action != "" {
		query = query.Where("action = ?", req.Action)
	}
	if req.ActorID != "" {
		query = query.Where("actor_id = ?", req.ActorID)
	}

	var entries []domain.AuditLog
	err := query.Find(&entries).Error
	return entries, err
}
