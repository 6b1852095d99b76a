package jobs

import (
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskACLIntegrityScan walks the collaborator table looking for rows
	// that violate the exactly-one-principal invariant or reference deleted
	// resources.
	TaskACLIntegrityScan = "acl:integrity_scan"
)

// NewACLIntegrityScanTask constructs an Asynq task. The scan takes no
// payload; it always covers the whole collaborator table.
func NewACLIntegrityScanTask() *asynq.Task {
	return asynq.NewTask(TaskACLIntegrityScan, nil)
}
