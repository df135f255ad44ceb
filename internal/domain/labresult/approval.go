package labresult

import (
	"context"

	"github.com/labflow/labflow/internal/platform/apperror"
)

type ApprovalRequest struct {
	ApprovedBy string `json:"approved_by"`
	Comment    string `json:"comment"`
	Status     Status `json:"status"`
}

// CreateApproval approves the booking once. A repeated call returns the
// existing approval unchanged with created set to false.
func (s *Service) CreateApproval(ctx context.Context, bookingID int64, req ApprovalRequest) (*Approval, bool, error) {
	status, err := parseStatus("status", string(req.Status), StatusApproved)
	if err != nil {
		return nil, false, err
	}
	if req.ApprovedBy == "" {
		return nil, false, apperror.Validation("approved_by", "is required")
	}
	if _, err := s.ledger.Get(ctx, bookingID); err != nil {
		return nil, false, err
	}
	a, created, err := s.repo.CreateApproval(ctx, &Approval{
		BookingID:  bookingID,
		ApprovedBy: req.ApprovedBy,
		Comment:    req.Comment,
		Status:     status,
	})
	s.metrics.Operation("approval.create", err)
	if err != nil {
		return nil, false, err
	}
	if created {
		s.logger.Info().Int64("booking_id", bookingID).Str("approved_by", req.ApprovedBy).Msg("booking approved")
	}
	return a, created, nil
}

func (s *Service) GetApproval(ctx context.Context, bookingID int64) (*Approval, error) {
	return s.repo.GetApproval(ctx, bookingID)
}

func (s *Service) UpdateApproval(ctx context.Context, bookingID int64, p ApprovalPatch) (*Approval, error) {
	if p.Status != nil {
		if _, err := parseStatus("status", string(*p.Status), ""); err != nil {
			return nil, err
		}
		if *p.Status == "" {
			return nil, apperror.Validation("status", "must not be empty")
		}
	}
	return s.repo.UpdateApproval(ctx, bookingID, p)
}

func (s *Service) DeleteApproval(ctx context.Context, bookingID int64) error {
	err := s.repo.DeleteApproval(ctx, bookingID)
	s.metrics.Operation("approval.delete", err)
	return err
}
