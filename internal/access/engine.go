// Package access computes a user's tier and gates every mutation in the
// service. All capability checks live here; nothing else re-derives
// permissions from raw status fields.
package access

import (
	"context"
	"errors"
	"strings"

	"doable/internal/models"
	"doable/internal/store"
	"doable/internal/utils/logger"

	"gorm.io/gorm"
)

// Tier is the access-control state of one session.
type Tier string

const (
	TierSignedOut Tier = "signedOut"
	TierNew       Tier = "new"     // signed in, no permission record yet
	TierPending   Tier = "pending" // request submitted, awaiting review
	TierApproved  Tier = "approved"
	TierDenied    Tier = "denied"
	TierAdmin     Tier = "admin"
)

// Actor is an identity with its computed tier, threaded through handlers to
// the stores. The zero value is a signed-out visitor.
type Actor struct {
	ID          string
	Email       string
	DisplayName string
	Tier        Tier
}

// Anonymous is the signed-out visitor.
func Anonymous() Actor {
	return Actor{Tier: TierSignedOut}
}

func (a Actor) IsAuthenticated() bool { return a.Tier != TierSignedOut && a.Tier != "" }
func (a Actor) IsAdmin() bool         { return a.Tier == TierAdmin }
func (a Actor) IsApproved() bool      { return a.Tier == TierAdmin || a.Tier == TierApproved }
func (a Actor) CanMutateItems() bool  { return a.IsApproved() }
func (a Actor) CanAccessSummary() bool { return a.IsApproved() }

// CanDeleteItem: an item is deleted by its owner or by an admin, nobody else.
func (a Actor) CanDeleteItem(item *models.Item) bool {
	return a.IsAdmin() || (a.IsApproved() && item.CreatedByID == a.ID)
}

// TierFor computes the tier from an identity and its permission record.
// lookupErr is the outcome of fetching the record: a backend failure grants
// nothing beyond TierNew — the engine fails closed, never open.
func TierFor(user *models.User, record *models.PermissionRecord, lookupErr error, adminEmail string) Tier {
	if user == nil {
		return TierSignedOut
	}
	if adminEmail != "" && strings.EqualFold(user.Email, adminEmail) {
		return TierAdmin
	}
	if lookupErr != nil && !errors.Is(lookupErr, gorm.ErrRecordNotFound) {
		return TierNew
	}
	if record == nil {
		return TierNew
	}
	switch record.Status {
	case models.StatusApproved:
		return TierApproved
	case models.StatusDenied:
		return TierDenied
	default:
		return TierPending
	}
}

// Engine resolves actors from identities. It is re-consulted on every
// request, so an admin decision takes effect on the affected user's next
// call without any session invalidation.
type Engine struct {
	records    *store.Gateway[models.PermissionRecord]
	adminEmail string
	log        *logger.Logger
}

func NewEngine(records *store.Gateway[models.PermissionRecord], adminEmail string) *Engine {
	return &Engine{
		records:    records,
		adminEmail: adminEmail,
		log:        logger.New("AccessEngine"),
	}
}

// ActorFor looks up the permission record for user and returns the actor
// with its computed tier.
func (e *Engine) ActorFor(ctx context.Context, user *models.User) Actor {
	if user == nil {
		return Anonymous()
	}

	record, err := e.records.GetBy(ctx, map[string]interface{}{"owner_id": user.ID})
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		e.log.Warn("Permission lookup failed for %s, treating as unapproved: %v", user.ID, err)
	}

	return Actor{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Tier:        TierFor(user, record, err, e.adminEmail),
	}
}
