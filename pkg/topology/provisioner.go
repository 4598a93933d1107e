package topology

import "context"

// TableHandle is the physical identity of a provisioned key-value table.
type TableHandle struct {
	Name   string `json:"name"`
	Region string `json:"region"`
}

// BucketHandle is the physical identity of a provisioned storage bucket.
type BucketHandle struct {
	Name   string `json:"name"`
	Region string `json:"region"`
}

// QueueHandle is the physical identity of a provisioned message queue. The
// URL is generated by the provisioner and is not known before provisioning.
type QueueHandle struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Region string `json:"region"`
}

// FunctionHandle is the physical identity of a provisioned function.
type FunctionHandle struct {
	Name string `json:"name"`

	// EndpointURL is the function's routing-target endpoint.
	EndpointURL string `json:"endpointUrl"`
}

// DistributionHandle is the physical identity of the routing/distribution
// layer.
type DistributionHandle struct {
	ID     string `json:"id"`
	Domain string `json:"domain"`
}

// Provisioner allocates physical identities for resource nodes. The actual
// cloud-provider calls live behind this boundary; the compiler only depends
// on the identifiers they produce. Implementations must be deterministic
// per logical ID within one build so the graph can be re-serialized.
type Provisioner interface {
	// Region returns the deployment region.
	Region() string

	// ProvisionTable allocates the tag-cache table.
	ProvisionTable(ctx context.Context, id LogicalID, spec *TableSpec) (TableHandle, error)

	// ProvisionBucket allocates the storage bucket.
	ProvisionBucket(ctx context.Context, id LogicalID, spec *BucketSpec) (BucketHandle, error)

	// ProvisionQueue allocates the revalidation queue.
	ProvisionQueue(ctx context.Context, id LogicalID, spec *QueueSpec) (QueueHandle, error)

	// ProvisionFunction allocates a function and its routing endpoint.
	ProvisionFunction(ctx context.Context, id LogicalID, spec *FunctionSpec) (FunctionHandle, error)

	// ProvisionDistribution allocates the routing/distribution layer.
	ProvisionDistribution(ctx context.Context, id LogicalID, spec *DistributionSpec) (DistributionHandle, error)
}
