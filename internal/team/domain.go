package team

import "time"

// Team is the tenant boundary. Every resource, group and org unit hangs off
// exactly one team.
type Team struct {
	ID            int64
	Name          string
	OwnerMemberID int64
	CreatedAt     time.Time
}

// Member is a user's membership in one team.
type Member struct {
	ID        int64
	TeamID    int64
	Name      string
	Email     string
	CreatedAt time.Time
}

// Group is a named set of members used as a grant principal.
type Group struct {
	ID     int64
	TeamID int64
	Name   string
	Avatar string
}

// OrgUnit is a node in the team's organizational tree. ParentID nil means
// top level. A grant on a unit reaches the members of every descendant unit.
type OrgUnit struct {
	ID       int64
	TeamID   int64
	ParentID *int64
	Name     string
	Avatar   string
}

// PrincipalNames carries display info for collaborator management UIs.
type PrincipalNames struct {
	Members map[int64]string
	Groups  map[int64]string
	Orgs    map[int64]string
}
