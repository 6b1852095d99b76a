package shared

import "fmt"

// ACLSyncLockKey builds redis keys for collaborator-sync critical sections.
// Syncs are serialized per team: overlapping subtrees always share a team.
func ACLSyncLockKey(teamID int64) string {
	return fmt.Sprintf("acl:team:%d:sync:lock", teamID)
}
