package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"casa/internal/core"
)

const upsertUser = `
INSERT INTO users (id, email, name, created_at) VALUES (?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET email = excluded.email, name = excluded.name`

// UpsertUser records the identity supplied by the proxy. An email already used by another id is a conflict.
func (q *Queries) UpsertUser(ctx context.Context, u core.User) error {
	_, err := q.db.ExecContext(ctx, upsertUser, u.ID, u.Email, u.Name, formatTime(nowFunc()))
	if isUniqueViolation(err) {
		return fmt.Errorf("email %s: %w", u.Email, core.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

const getUserByEmail = `SELECT id, email, name FROM users WHERE email = ? COLLATE NOCASE`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	var u core.User
	err := q.db.QueryRowContext(ctx, getUserByEmail, email).Scan(&u.ID, &u.Email, &u.Name)
	if err != nil {
		return core.User{}, notFound("get user by email", err)
	}
	return u, nil
}

const householdIDForUser = `SELECT household_id FROM household_members WHERE user_id = ?`

func (q *Queries) HouseholdIDForUser(ctx context.Context, userID string) (int64, error) {
	var id int64
	if err := q.db.QueryRowContext(ctx, householdIDForUser, userID).Scan(&id); err != nil {
		return 0, notFound("household for user", err)
	}
	return id, nil
}

const createHousehold = `INSERT INTO households (name, created_at) VALUES (?, ?) RETURNING id, name, created_at`

func (q *Queries) CreateHousehold(ctx context.Context, name string) (core.Household, error) {
	var (
		h       core.Household
		created string
	)
	err := q.db.QueryRowContext(ctx, createHousehold, name, formatTime(nowFunc())).Scan(&h.ID, &h.Name, &created)
	if err != nil {
		return core.Household{}, fmt.Errorf("create household: %w", err)
	}
	if h.CreatedAt, err = parseTime(created); err != nil {
		return core.Household{}, err
	}
	return h, nil
}

const getHousehold = `SELECT id, name, created_at FROM households WHERE id = ?`

func (q *Queries) GetHousehold(ctx context.Context, id int64) (core.Household, error) {
	var (
		h       core.Household
		created string
	)
	if err := q.db.QueryRowContext(ctx, getHousehold, id).Scan(&h.ID, &h.Name, &created); err != nil {
		return core.Household{}, notFound("get household", err)
	}
	var err error
	if h.CreatedAt, err = parseTime(created); err != nil {
		return core.Household{}, err
	}
	return h, nil
}

const listHouseholdIDs = `SELECT id FROM households ORDER BY id`

func (q *Queries) ListHouseholdIDs(ctx context.Context) ([]int64, error) {
	rows, err := q.db.QueryContext(ctx, listHouseholdIDs)
	if err != nil {
		return nil, fmt.Errorf("list households: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan household id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const memberColumns = `m.id, m.household_id, m.user_id, m.role, u.email, u.name`

const listMembers = `
SELECT ` + memberColumns + `
FROM household_members m JOIN users u ON u.id = m.user_id
WHERE m.household_id = ?
ORDER BY m.role = 'owner' DESC, m.created_at, m.id`

func (q *Queries) ListMembers(ctx context.Context, householdID int64) ([]core.Member, error) {
	rows, err := q.db.QueryContext(ctx, listMembers, householdID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()
	var members []core.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

const getMember = `
SELECT ` + memberColumns + `
FROM household_members m JOIN users u ON u.id = m.user_id
WHERE m.id = ? AND m.household_id = ?`

func (q *Queries) GetMember(ctx context.Context, householdID, memberID int64) (core.Member, error) {
	m, err := scanMember(q.db.QueryRowContext(ctx, getMember, memberID, householdID))
	if err != nil {
		return core.Member{}, notFound("get member", err)
	}
	return m, nil
}

const getMemberByUser = `
SELECT ` + memberColumns + `
FROM household_members m JOIN users u ON u.id = m.user_id
WHERE m.household_id = ? AND m.user_id = ?`

func (q *Queries) GetMemberByUser(ctx context.Context, householdID int64, userID string) (core.Member, error) {
	m, err := scanMember(q.db.QueryRowContext(ctx, getMemberByUser, householdID, userID))
	if err != nil {
		return core.Member{}, notFound("get member by user", err)
	}
	return m, nil
}

const addMember = `
INSERT INTO household_members (household_id, user_id, role, created_at) VALUES (?, ?, ?, ?)
RETURNING id`

// AddMember fails with ErrConflict when the user already belongs to a household.
func (q *Queries) AddMember(ctx context.Context, householdID int64, userID string, role core.MemberRole) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, addMember, householdID, userID, string(role), formatTime(nowFunc())).Scan(&id)
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("user %s: %w", userID, core.ErrConflict)
	}
	if err != nil {
		return 0, fmt.Errorf("add member: %w", err)
	}
	return id, nil
}

const removeMember = `DELETE FROM household_members WHERE id = ? AND household_id = ? AND role <> 'owner'`

func (q *Queries) RemoveMember(ctx context.Context, householdID, memberID int64) error {
	res, err := q.db.ExecContext(ctx, removeMember, memberID, householdID)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return mustAffect(res, "remove member")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(row rowScanner) (core.Member, error) {
	var (
		m    core.Member
		role string
	)
	if err := row.Scan(&m.ID, &m.HouseholdID, &m.UserID, &role, &m.Email, &m.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Member{}, err
		}
		return core.Member{}, fmt.Errorf("scan member: %w", err)
	}
	m.Role = core.MemberRole(role)
	return m, nil
}
