package service

import (
	"context"
	"encoding/json"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/parc-api/internal/authz"
	"github.com/noah-isme/parc-api/internal/models"
)

type auditWriter interface {
	Create(ctx context.Context, exec sqlx.ExtContext, log *models.AuditLog) error
}

func newAuditLog(actorID, action, resource, resourceID string, values interface{}) *models.AuditLog {
	entry := &models.AuditLog{Action: action, Resource: resource}
	if actorID != "" {
		entry.UserID = &actorID
	}
	if resourceID != "" {
		entry.ResourceID = &resourceID
	}
	if values != nil {
		if body, err := json.Marshal(values); err == nil {
			entry.NewValues = body
		}
	}
	return entry
}

func actorID(actor *authz.Actor) string {
	if actor == nil {
		return ""
	}
	return actor.ID
}
