package orders

import (
	"context"
	"strings"
)

type AdminService struct {
	repo *Repo
}

func NewAdminService(repo *Repo) *AdminService { return &AdminService{repo: repo} }

type TransitionInput struct {
	OrderID string
	Actor   string // admin subject
	Action  string // cancel
	Note    string
}

// Transition applies an admin action. Only pending orders can be canceled;
// payment outcomes are owned by the reconciler.
func (s *AdminService) Transition(ctx context.Context, in TransitionInput) (Order, error) {
	if strings.TrimSpace(in.OrderID) == "" || strings.TrimSpace(in.Actor) == "" || in.Action == "" {
		return Order{}, ErrNotActionable
	}

	to, err := nextStatus(in.Action)
	if err != nil {
		return Order{}, err
	}
	return s.repo.transition(ctx, in.OrderID, to, in.Actor, in.Action, in.Note)
}

func (s *AdminService) Cancel(ctx context.Context, orderID, actor, note string) (Order, error) {
	return s.Transition(ctx, TransitionInput{OrderID: orderID, Actor: actor, Action: "cancel", Note: note})
}

func nextStatus(action string) (Status, error) {
	switch action {
	case "cancel":
		return StatusCanceled, nil
	default:
		return "", ErrNotActionable
	}
}
