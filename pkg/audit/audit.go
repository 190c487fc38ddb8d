// Package audit writes the side-effect records of state-changing operations:
// activity log rows and user notifications. Both are best-effort by design —
// a failed write is logged and swallowed, never aborting the primary change.
package audit

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/HostingCuenca/lexconnect-sub001/pkg/models"
)

type Recorder struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewRecorder(db *gorm.DB, log *zap.Logger) *Recorder {
	return &Recorder{db: db, log: log}
}

// Log appends one activity_logs row. Old/new snapshots are marshaled to
// JSON; nil snapshots produce empty columns.
func (r *Recorder) Log(ctx context.Context, userID *uuid.UUID, action, resourceType string, resourceID *uuid.UUID, oldVal, newVal any) {
	entry := models.ActivityLog{
		UserID:       userID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		OldValue:     marshal(oldVal),
		NewValue:     marshal(newVal),
	}
	if err := r.db.WithContext(ctx).Create(&entry).Error; err != nil {
		r.log.Warn("activity log write failed",
			zap.String("action", action),
			zap.String("resource_type", resourceType),
			zap.Error(err),
		)
	}
}

// Notify creates one notification row for the given user.
func (r *Recorder) Notify(ctx context.Context, userID uuid.UUID, title, message, ntype string, relatedID *uuid.UUID) {
	n := models.Notification{
		UserID:    userID,
		Title:     title,
		Message:   message,
		Type:      ntype,
		RelatedID: relatedID,
	}
	if err := r.db.WithContext(ctx).Create(&n).Error; err != nil {
		r.log.Warn("notification write failed",
			zap.String("type", ntype),
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
	}
}

func marshal(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
