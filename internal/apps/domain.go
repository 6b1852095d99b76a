// Package apps declares the agent-app resource collection. Apps come in
// leaf variants (simple agents, workflows, plugins) and two folder variants
// that participate in ACL materialization.
package apps

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atelier-ai/atelier/internal/permission"
	"github.com/atelier-ai/atelier/internal/resource"
)

// Kind variants of the app collection.
const (
	KindSimple     = "simple"
	KindWorkflow   = "workflow"
	KindPlugin     = "plugin"
	KindHTTPPlugin = "httpPlugin"
	KindFolder     = "folder"
	KindToolFolder = "toolFolder"
)

// Domain returns the collection descriptor.
func Domain() resource.Domain {
	return resource.Domain{
		Type:        permission.ResourceTypeApp,
		Kinds:       []string{KindSimple, KindWorkflow, KindPlugin, KindHTTPPlugin, KindFolder, KindToolFolder},
		FolderKinds: []string{KindFolder, KindToolFolder},
	}
}

// NewRepository constructs the app tree repository.
func NewRepository(pool *pgxpool.Pool) *resource.Repository {
	return resource.NewRepository(pool, Domain())
}
