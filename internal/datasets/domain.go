// Package datasets declares the knowledge-dataset resource collection.
// Only plain folders contain children; the dataset variants are leaves.
package datasets

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atelier-ai/atelier/internal/permission"
	"github.com/atelier-ai/atelier/internal/resource"
)

// Kind variants of the dataset collection.
const (
	KindDataset      = "dataset"
	KindWebsite      = "websiteDataset"
	KindExternalFile = "externalFile"
	KindAPI          = "apiDataset"
	KindFolder       = "folder"
)

// Domain returns the collection descriptor.
func Domain() resource.Domain {
	return resource.Domain{
		Type:        permission.ResourceTypeDataset,
		Kinds:       []string{KindDataset, KindWebsite, KindExternalFile, KindAPI, KindFolder},
		FolderKinds: []string{KindFolder},
	}
}

// NewRepository constructs the dataset tree repository.
func NewRepository(pool *pgxpool.Pool) *resource.Repository {
	return resource.NewRepository(pool, Domain())
}
