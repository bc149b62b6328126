package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"labreserve/internal/database"
	"labreserve/internal/events"
	"labreserve/internal/metrics"
	"labreserve/internal/model"
	"labreserve/internal/svcclient"
)

// LoanRequest asks to borrow a resource.
type LoanRequest struct {
	ResourceID int64
	UserID     int64
	Quantity   int
	Start      time.Time
	End        time.Time
	Comment    string
}

// MyLoans lists the caller's loans, newest first.
func (s *Service) MyLoans(ctx context.Context, userID int64) ([]model.Loan, error) {
	return s.store.ListLoans(ctx, database.LoanFilter{UserID: userID})
}

// ListLoans lists all loans, optionally narrowed to one status.
func (s *Service) ListLoans(ctx context.Context, status model.LoanStatus) ([]model.Loan, error) {
	return s.store.ListLoans(ctx, database.LoanFilter{Status: status})
}

// RequestLoan records a pending loan. Only admins may request on behalf of
// another user. The requester name is taken from the users service.
func (s *Service) RequestLoan(ctx context.Context, req LoanRequest, callerID int64, callerRole model.Role) (*model.Loan, error) {
	if _, err := s.GetResource(ctx, req.ResourceID); err != nil {
		return nil, err
	}
	if req.UserID != callerID && callerRole != model.RoleAdmin {
		return nil, ErrForbidden
	}

	user, err := s.identity.GetUser(ctx, req.UserID)
	switch {
	case errors.Is(err, svcclient.ErrNotFound):
		return nil, ErrUserNotFound
	case err != nil:
		s.logger.Warn().Err(err).Int64("user_id", req.UserID).Msg("identity lookup failed")
		return nil, fmt.Errorf("%w: %v", ErrPeerUnavailable, err)
	}

	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if req.Quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	if !req.Start.Before(req.End) {
		return nil, ErrInvalidLoanWindow
	}

	loan := &model.Loan{
		ResourceID:    req.ResourceID,
		UserID:        req.UserID,
		RequesterName: user.Name,
		Quantity:      req.Quantity,
		Start:         req.Start.UTC(),
		End:           req.End.UTC(),
		Status:        model.LoanPending,
		Comment:       strings.TrimSpace(req.Comment),
	}
	if err := s.store.CreateLoan(ctx, loan); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("loan_id", loan.ID).Int64("resource_id", loan.ResourceID).Msg("loan requested")
	return s.getLoan(ctx, loan.ID)
}

// DecideLoan moves a loan to status. Allowed moves are pending to approved
// or rejected and approved to returned.
func (s *Service) DecideLoan(ctx context.Context, id int64, status model.LoanStatus, comment string) (*model.Loan, error) {
	loan, err := s.getLoan(ctx, id)
	if err != nil {
		return nil, err
	}
	if !loan.Status.CanTransition(status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, loan.Status, status)
	}

	if err := s.store.UpdateLoanStatus(ctx, id, loan.Status, status, strings.TrimSpace(comment)); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			// Decided concurrently.
			return nil, fmt.Errorf("%w: status changed", ErrInvalidTransition)
		}
		return nil, fmt.Errorf("update status: %w", err)
	}

	metrics.IncLoanDecision(string(status))
	s.logger.Info().Int64("loan_id", id).Str("status", string(status)).Msg("loan decided")
	s.publish(ctx, events.Event{Type: events.LoanDecided, LoanID: id, Status: string(status)})
	return s.getLoan(ctx, id)
}

func (s *Service) getLoan(ctx context.Context, id int64) (*model.Loan, error) {
	loan, err := s.store.GetLoan(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrLoanNotFound
	}
	return loan, err
}
