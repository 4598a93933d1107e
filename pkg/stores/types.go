package stores

import (
	"context"
	"time"
)

// DeploymentStatus represents the status of a deployment record.
type DeploymentStatus string

const (
	DeploymentStatusSynthesized DeploymentStatus = "synthesized"
	DeploymentStatusApplied     DeploymentStatus = "applied"
	DeploymentStatusFailed      DeploymentStatus = "failed"
)

// Deployment is one synthesized build: the identifiers a deploy produced
// and enough metadata to audit what was built when.
type Deployment struct {
	// BuildID is the unique build identifier.
	BuildID string `json:"build_id"`

	// ManifestVersion is the manifest's declared version, if any.
	ManifestVersion string `json:"manifest_version"`

	// Status is the deployment status.
	Status DeploymentStatus `json:"status"`

	// NodeCount is the number of resource nodes in the graph.
	NodeCount int `json:"node_count"`

	// Outputs is the JSON-encoded build outputs.
	Outputs string `json:"outputs"`

	// Warnings is the JSON-encoded warning list, empty for none.
	Warnings string `json:"warnings,omitempty"`

	// Error holds the failure message for failed deployments.
	Error *string `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists deployment records.
type Store interface {
	// Init opens the underlying database.
	Init(ctx context.Context) error

	// Migrate brings the schema up to date.
	Migrate(ctx context.Context) error

	// Close releases the underlying database.
	Close() error

	// CreateDeployment persists a new deployment record.
	CreateDeployment(ctx context.Context, d *Deployment) error

	// GetDeployment retrieves a deployment by build ID.
	GetDeployment(ctx context.Context, buildID string) (*Deployment, error)

	// UpdateDeploymentStatus updates the status of a deployment.
	UpdateDeploymentStatus(ctx context.Context, buildID string, status DeploymentStatus, errMsg *string) error

	// ListDeployments lists deployments newest first with pagination.
	ListDeployments(ctx context.Context, limit, offset int) ([]*Deployment, error)

	// DeleteDeployment deletes a deployment by build ID.
	DeleteDeployment(ctx context.Context, buildID string) error
}
