package team

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for teams, members,
// groups and org units.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetTeam fetches a team by id.
func (r *Repository) GetTeam(ctx context.Context, id int64) (Team, error) {
	var t Team
	err := r.pool.QueryRow(ctx, `SELECT id, name, owner_member_id, created_at FROM teams WHERE id = $1`, id).
		Scan(&t.ID, &t.Name, &t.OwnerMemberID, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Team{}, fmt.Errorf("team: team %d: %w", id, pgx.ErrNoRows)
	}
	if err != nil {
		return Team{}, fmt.Errorf("team: get team %d: %w", id, err)
	}
	return t, nil
}

// MemberExists reports whether the member belongs to the team.
func (r *Repository) MemberExists(ctx context.Context, teamID, memberID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM team_members WHERE id = $1 AND team_id = $2)`,
		memberID, teamID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("team: member exists: %w", err)
	}
	return exists, nil
}

// MemberGroups returns the ids of every group in the team containing the member.
func (r *Repository) MemberGroups(ctx context.Context, teamID, memberID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT g.id
		FROM member_groups g
		JOIN member_group_members gm ON gm.group_id = g.id
		WHERE g.team_id = $1 AND gm.member_id = $2`, teamID, memberID)
	if err != nil {
		return nil, fmt.Errorf("team: member groups: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// MemberOrgUnitsWithAncestors returns the ids of every org unit containing
// the member plus each unit's ancestor chain up to the root. The walk goes
// upward so that a grant placed on an ancestor unit matches.
func (r *Repository) MemberOrgUnitsWithAncestors(ctx context.Context, teamID, memberID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `WITH RECURSIVE units AS (
			SELECT o.id, o.parent_id
			FROM org_units o
			JOIN org_unit_members om ON om.org_id = o.id
			WHERE o.team_id = $1 AND om.member_id = $2
		UNION
			SELECT p.id, p.parent_id
			FROM org_units p
			JOIN units u ON u.parent_id = p.id
		)
		SELECT id FROM units`, teamID, memberID)
	if err != nil {
		return nil, fmt.Errorf("team: member org units: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// PrincipalNames resolves display names for the given principal id sets.
func (r *Repository) PrincipalNames(ctx context.Context, teamID int64, memberIDs, groupIDs, orgIDs []int64) (PrincipalNames, error) {
	names := PrincipalNames{
		Members: make(map[int64]string, len(memberIDs)),
		Groups:  make(map[int64]string, len(groupIDs)),
		Orgs:    make(map[int64]string, len(orgIDs)),
	}
	if err := r.scanNames(ctx, `SELECT id, name FROM team_members WHERE team_id = $1 AND id = ANY($2)`, teamID, memberIDs, names.Members); err != nil {
		return PrincipalNames{}, err
	}
	if err := r.scanNames(ctx, `SELECT id, name FROM member_groups WHERE team_id = $1 AND id = ANY($2)`, teamID, groupIDs, names.Groups); err != nil {
		return PrincipalNames{}, err
	}
	if err := r.scanNames(ctx, `SELECT id, name FROM org_units WHERE team_id = $1 AND id = ANY($2)`, teamID, orgIDs, names.Orgs); err != nil {
		return PrincipalNames{}, err
	}
	return names, nil
}

func (r *Repository) scanNames(ctx context.Context, sql string, teamID int64, ids []int64, into map[int64]string) error {
	if len(ids) == 0 {
		return nil
	}
	rows, err := r.pool.Query(ctx, sql, teamID, ids)
	if err != nil {
		return fmt.Errorf("team: principal names: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return fmt.Errorf("team: scan principal name: %w", err)
		}
		into[id] = name
	}
	return rows.Err()
}

func scanIDs(rows pgx.Rows) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("team: scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("team: iterate ids: %w", err)
	}
	return ids, nil
}
