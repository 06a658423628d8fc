package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"casa/internal/cache"
	"casa/internal/core"
	"casa/internal/storage"
)

// HouseholdService owns households, their members, and the user -> household resolution.
type HouseholdService struct {
	repo     *storage.SQLiteRepository
	resolved cache.Cache[int64]
}

// NewHouseholdService uses resolved to remember user -> household lookups; it may be nil.
func NewHouseholdService(repo *storage.SQLiteRepository, resolved cache.Cache[int64]) *HouseholdService {
	return &HouseholdService{repo: repo, resolved: resolved}
}

// EnsureUser records the identity supplied by the proxy.
func (s *HouseholdService) EnsureUser(ctx context.Context, u core.User) error {
	if strings.TrimSpace(u.ID) == "" {
		return core.ErrUnauthenticated
	}
	return s.repo.Queries().UpsertUser(ctx, u)
}

// Resolve returns the household of userID, or ErrNotFound when the user has none yet.
func (s *HouseholdService) Resolve(ctx context.Context, userID string) (int64, error) {
	if s.resolved != nil {
		if id, ok := s.resolved.Get(userID); ok {
			return id, nil
		}
	}
	id, err := s.repo.Queries().HouseholdIDForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if s.resolved != nil {
		s.resolved.Set(userID, id)
	}
	return id, nil
}

func (s *HouseholdService) forget(userID string) {
	if s.resolved != nil {
		s.resolved.Delete(userID)
	}
}

// Create makes owner the owner of a new household and seeds its default categories, atomically.
func (s *HouseholdService) Create(ctx context.Context, owner core.User, in core.CreateHouseholdInput) (core.Household, error) {
	if err := in.Validate(); err != nil {
		return core.Household{}, err
	}
	var hid int64
	err := s.repo.Tx(ctx, func(q *storage.Queries) error {
		if _, err := q.HouseholdIDForUser(ctx, owner.ID); err == nil {
			return core.NewUserError("you already belong to a household", core.ErrConflict)
		} else if !errors.Is(err, core.ErrNotFound) {
			return err
		}
		h, err := q.CreateHousehold(ctx, strings.TrimSpace(in.Name))
		if err != nil {
			return err
		}
		if _, err := q.AddMember(ctx, h.ID, owner.ID, core.RoleOwner); err != nil {
			return err
		}
		hid = h.ID
		return seedDefaultCategories(ctx, q.ForHousehold(h.ID))
	})
	if err != nil {
		return core.Household{}, fmt.Errorf("create household: %w", err)
	}
	s.forget(owner.ID)
	slog.InfoContext(ctx, "Household created", "household_id", hid, "owner", owner.ID)
	return s.Get(ctx, hid)
}

// Get returns the household with its members, owner first.
func (s *HouseholdService) Get(ctx context.Context, householdID int64) (core.Household, error) {
	q := s.repo.Queries()
	h, err := q.GetHousehold(ctx, householdID)
	if err != nil {
		return core.Household{}, err
	}
	if h.Members, err = q.ListMembers(ctx, householdID); err != nil {
		return core.Household{}, err
	}
	return h, nil
}

// AddMember invites an existing user by email. Only the owner may invite.
func (s *HouseholdService) AddMember(ctx context.Context, householdID int64, actorID string, in core.InviteMemberInput) (core.Member, error) {
	if err := in.Validate(); err != nil {
		return core.Member{}, err
	}
	var m core.Member
	err := s.repo.Tx(ctx, func(q *storage.Queries) error {
		if err := requireOwner(ctx, q, householdID, actorID); err != nil {
			return err
		}
		user, err := q.GetUserByEmail(ctx, strings.TrimSpace(in.Email))
		if errors.Is(err, core.ErrNotFound) {
			return core.NewUserError("no user with this email has signed in yet", core.ErrNotFound)
		}
		if err != nil {
			return err
		}
		id, err := q.AddMember(ctx, householdID, user.ID, core.RoleMember)
		if err != nil {
			if errors.Is(err, core.ErrConflict) {
				return core.NewUserError("user already belongs to a household", err)
			}
			return err
		}
		m, err = q.GetMember(ctx, householdID, id)
		return err
	})
	if err != nil {
		return core.Member{}, fmt.Errorf("add member to household %d: %w", householdID, err)
	}
	s.forget(m.UserID)
	slog.InfoContext(ctx, "Household member added", "household_id", householdID, "user_id", m.UserID)
	return m, nil
}

// RemoveMember removes a non-owner member. Only the owner may remove.
func (s *HouseholdService) RemoveMember(ctx context.Context, householdID int64, actorID string, memberID int64) error {
	var removed core.Member
	err := s.repo.Tx(ctx, func(q *storage.Queries) error {
		if err := requireOwner(ctx, q, householdID, actorID); err != nil {
			return err
		}
		m, err := q.GetMember(ctx, householdID, memberID)
		if err != nil {
			return err
		}
		if m.Role == core.RoleOwner {
			return core.NewUserError("the owner cannot be removed", core.ErrInvalidState)
		}
		removed = m
		return q.RemoveMember(ctx, householdID, memberID)
	})
	if err != nil {
		return fmt.Errorf("remove member %d: %w", memberID, err)
	}
	s.forget(removed.UserID)
	slog.InfoContext(ctx, "Household member removed", "household_id", householdID, "user_id", removed.UserID)
	return nil
}

func requireOwner(ctx context.Context, q *storage.Queries, householdID int64, userID string) error {
	m, err := q.GetMemberByUser(ctx, householdID, userID)
	if err != nil {
		return err
	}
	if m.Role != core.RoleOwner {
		return core.NewUserError("only the household owner can manage members", core.ErrForbidden)
	}
	return nil
}
