// Package scope holds the row-level visibility predicates applied to every
// list and stats query: clients see their own rows, lawyers see rows tied to
// their profile, administrators see everything. Keeping the predicates here
// stops each handler from hand-rolling its own WHERE clause.
package scope

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/HostingCuenca/lexconnect-sub001/pkg/models"
)

// LawyerProfileID resolves the profile ID for a lawyer user, nil when the
// user has no profile.
func LawyerProfileID(db *gorm.DB, userID uuid.UUID) (*uuid.UUID, error) {
	var ids []uuid.UUID
	err := db.Model(&models.LawyerProfile{}).
		Where("user_id = ?", userID).
		Limit(1).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return &ids[0], nil
}

// Consultations narrows q to consultations visible to the caller.
// profileID may be nil for lawyers without a profile (matches nothing).
func Consultations(q *gorm.DB, role models.Role, userID uuid.UUID, profileID *uuid.UUID) *gorm.DB {
	switch role {
	case models.RoleAdmin:
		return q
	case models.RoleLawyer:
		if profileID == nil {
			return q.Where("1 = 0")
		}
		return q.Where("consultations.lawyer_id = ?", *profileID)
	default:
		return q.Where("consultations.client_id = ?", userID)
	}
}

// Payments narrows q to payments visible to the caller. Callers must query
// the payments table; the consultation join is added here.
func Payments(q *gorm.DB, role models.Role, userID uuid.UUID, profileID *uuid.UUID) *gorm.DB {
	if role == models.RoleAdmin {
		return q
	}
	q = q.Joins("JOIN consultations ON consultations.id = payments.consultation_id")
	if role == models.RoleLawyer {
		if profileID == nil {
			return q.Where("1 = 0")
		}
		return q.Where("consultations.lawyer_id = ?", *profileID)
	}
	return q.Where("consultations.client_id = ?", userID)
}
