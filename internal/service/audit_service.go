package service

import (
	"context"

	"procurement/internal/repository"

	"gorm.io/datatypes"
)

type AuditLogResponse struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	UserName   string         `json:"user_name"`
	Action     string         `json:"action"`
	EntityID   string         `json:"entity_id"`
	EntityName string         `json:"entity_name"`
	Details    datatypes.JSON `json:"details"`
	CreatedAt  string         `json:"created_at"`
}

type AuditListFilter struct {
	Action   string
	EntityID string
	Page     int
	Limit    int
}

type AuditService interface {
	GetAuditLogs(ctx context.Context, filter AuditListFilter) ([]AuditLogResponse, int64, error)
}

type auditService struct {
	repo repository.AuditRepository
}

// NewAuditService creates a new AuditService instance
func NewAuditService(repo repository.AuditRepository) AuditService {
	return &auditService{repo: repo}
}

// GetAuditLogs returns audit entries newest first, with the acting user resolved.
func (s *auditService) GetAuditLogs(ctx context.Context, f AuditListFilter) ([]AuditLogResponse, int64, error) {
	page, limit := normalizePage(f.Page, f.Limit)
	logs, total, err := s.repo.List(ctx, repository.AuditFilter{
		Action:   f.Action,
		EntityID: f.EntityID,
		Page:     page,
		Limit:    limit,
	})
	if err != nil {
		return nil, 0, err
	}

	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		userName := "System"
		userID := ""
		if l.User != nil {
			userName = l.User.Name
		}
		if l.UserID != nil {
			userID = l.UserID.String()
		}

		res = append(res, AuditLogResponse{
			ID:         l.ID.String(),
			UserID:     userID,
			UserName:   userName,
			Action:     l.Action,
			EntityID:   l.EntityID,
			EntityName: l.EntityName,
			Details:    l.Details,
			CreatedAt:  l.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}

	return res, total, nil
}
