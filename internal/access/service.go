package access

import (
	"context"
	"errors"
	"strings"
	"time"

	"doable/internal/apperr"
	"doable/internal/models"
	"doable/internal/store"
	"doable/internal/utils/logger"

	"gorm.io/gorm"
)

// Service runs the access-request workflow: submit, admin decision, and the
// reconciliation that keeps the request and its permission record in step.
type Service struct {
	requests *store.Gateway[models.AccessRequest]
	records  *store.Gateway[models.PermissionRecord]
	log      *logger.Logger
}

func NewService(requests *store.Gateway[models.AccessRequest], records *store.Gateway[models.PermissionRecord]) *Service {
	return &Service{
		requests: requests,
		records:  records,
		log:      logger.New("AccessService"),
	}
}

// Submit files an access request for actor. Only the "new" tier may submit;
// everyone else either already has a record or is not signed in. Two writes
// go out (AccessRequest, then PermissionRecord) with no cross-write
// atomicity; a crash between them is repaired by Reconcile.
func (s *Service) Submit(ctx context.Context, actor Actor, reason string) (*models.AccessRequest, error) {
	if !actor.IsAuthenticated() {
		return nil, apperr.Capability("sign in before requesting access")
	}
	if actor.Tier != TierNew {
		return nil, apperr.Capability("access already requested or granted")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, apperr.Validation("a reason is required")
	}

	request := &models.AccessRequest{
		OwnerID:     actor.ID,
		Email:       actor.Email,
		DisplayName: actor.DisplayName,
		Reason:      strings.TrimSpace(reason),
		Status:      models.StatusPending,
	}
	if err := s.requests.Create(ctx, request); err != nil {
		return nil, err
	}

	record := &models.PermissionRecord{
		OwnerID: actor.ID,
		Email:   actor.Email,
		Status:  models.StatusPending,
	}
	if err := s.records.Create(ctx, record); err != nil {
		// The request exists without its record; Reconcile creates the
		// missing half on its next pass. Surface the failure anyway.
		return nil, err
	}

	s.log.Success("Access request filed by %s", actor.Email)
	return request, nil
}

// Decide approves or denies one request. Admin only. Both the request and
// the permission record matched by owner id move to the new status.
func (s *Service) Decide(ctx context.Context, reviewer Actor, requestID string, approve bool) (*models.AccessRequest, error) {
	if !reviewer.IsAdmin() {
		return nil, apperr.Capability("only an admin can review access requests")
	}

	request, err := s.requests.Get(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Validation("access request not found")
		}
		return nil, err
	}

	status := models.StatusDenied
	if approve {
		status = models.StatusApproved
	}
	now := time.Now().UTC()

	if err := s.requests.Updates(ctx, request.ID, map[string]interface{}{
		"status":      status,
		"reviewed_at": now,
		"reviewed_by": reviewer.ID,
	}); err != nil {
		return nil, err
	}

	if err := s.syncRecord(ctx, request.OwnerID, request.Email, status); err != nil {
		return nil, err
	}

	request.Status = status
	request.ReviewedAt = &now
	request.ReviewedBy = reviewer.ID
	s.log.Success("Access request %s for %s: %s", request.ID, request.Email, status)
	return request, nil
}

// ListPending returns undecided requests, oldest first. Admin only.
func (s *Service) ListPending(ctx context.Context, reviewer Actor) ([]models.AccessRequest, error) {
	if !reviewer.IsAdmin() {
		return nil, apperr.Capability("only an admin can list access requests")
	}
	return s.requests.Query(ctx, store.QueryOptions{
		Where:   map[string]interface{}{"status": models.StatusPending},
		OrderBy: "requested_at",
	})
}

// Reconcile restores the request/record status invariant after a crash
// between the two writes. The request is authoritative: a record is created
// where one is missing and realigned where the statuses diverge.
func (s *Service) Reconcile(ctx context.Context) error {
	requests, err := s.requests.Query(ctx, store.QueryOptions{OrderBy: "requested_at"})
	if err != nil {
		return err
	}

	var repaired int
	for i := range requests {
		request := &requests[i]
		record, err := s.records.GetBy(ctx, map[string]interface{}{"owner_id": request.OwnerID})
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			record = nil
		}

		switch {
		case record == nil:
			if err := s.syncRecord(ctx, request.OwnerID, request.Email, request.Status); err != nil {
				return err
			}
			repaired++
		case record.Status != request.Status:
			if err := s.syncRecord(ctx, request.OwnerID, request.Email, request.Status); err != nil {
				return err
			}
			repaired++
		}
	}

	if repaired > 0 {
		s.log.Warn("Reconciled %d permission record(s)", repaired)
	}
	return nil
}

// syncRecord upserts the permission record for ownerID to status.
func (s *Service) syncRecord(ctx context.Context, ownerID, email string, status models.RequestStatus) error {
	record, err := s.records.GetBy(ctx, map[string]interface{}{"owner_id": ownerID})
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return s.records.Create(ctx, &models.PermissionRecord{
			OwnerID: ownerID,
			Email:   email,
			Status:  status,
		})
	}
	if record.Status == status {
		return nil
	}
	return s.records.Updates(ctx, record.ID, map[string]interface{}{"status": status})
}
