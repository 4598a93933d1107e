// Package provision contains the deterministic in-memory provisioner used
// for synthesis and tests. It allocates stable physical identifiers without
// touching a cloud provider; real provider integrations implement the same
// interface behind their own packages.
package provision

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/rs/zerolog"

	"github.com/openlift/openlift/pkg/topology"
)

// Namer is a deterministic provisioner: every physical identifier derives
// from the resource prefix and the logical ID, so rebuilding the same
// manifest yields byte-identical graphs. It implements
// topology.Provisioner.
type Namer struct {
	prefix string
	region string
	logger zerolog.Logger
}

// NewNamer creates a deterministic provisioner. prefix namespaces every
// physical name, typically the app name plus stage.
func NewNamer(prefix, region string, logger zerolog.Logger) *Namer {
	return &Namer{
		prefix: prefix,
		region: region,
		logger: logger.With().Str("component", "provisioner").Logger(),
	}
}

// Region returns the deployment region.
func (n *Namer) Region() string {
	return n.region
}

// ProvisionTable allocates the tag-cache table.
func (n *Namer) ProvisionTable(ctx context.Context, id topology.LogicalID, spec *topology.TableSpec) (topology.TableHandle, error) {
	if err := ctx.Err(); err != nil {
		return topology.TableHandle{}, err
	}
	handle := topology.TableHandle{
		Name:   n.physicalName(id),
		Region: n.region,
	}
	n.logger.Debug().Str("resource", string(id)).Str("table", handle.Name).Msg("Provisioned table")
	return handle, nil
}

// ProvisionBucket allocates the storage bucket. Bucket names carry a short
// stable suffix because bucket namespaces are global.
func (n *Namer) ProvisionBucket(ctx context.Context, id topology.LogicalID, spec *topology.BucketSpec) (topology.BucketHandle, error) {
	if err := ctx.Err(); err != nil {
		return topology.BucketHandle{}, err
	}
	handle := topology.BucketHandle{
		Name:   fmt.Sprintf("%s-%s", n.physicalName(id), n.suffix(id)),
		Region: n.region,
	}
	n.logger.Debug().Str("resource", string(id)).Str("bucket", handle.Name).Msg("Provisioned bucket")
	return handle, nil
}

// ProvisionQueue allocates the revalidation queue and its generated URL.
func (n *Namer) ProvisionQueue(ctx context.Context, id topology.LogicalID, spec *topology.QueueSpec) (topology.QueueHandle, error) {
	if err := ctx.Err(); err != nil {
		return topology.QueueHandle{}, err
	}
	name := n.physicalName(id)
	if spec != nil && spec.FIFO {
		name += ".fifo"
	}
	handle := topology.QueueHandle{
		Name:   name,
		URL:    fmt.Sprintf("https://queue.%s.openlift.internal/%s", n.region, name),
		Region: n.region,
	}
	n.logger.Debug().Str("resource", string(id)).Str("queue", handle.URL).Msg("Provisioned queue")
	return handle, nil
}

// ProvisionFunction allocates a function and its routing endpoint. An
// existing handle in the spec is adopted instead of minting a new identity.
func (n *Namer) ProvisionFunction(ctx context.Context, id topology.LogicalID, spec *topology.FunctionSpec) (topology.FunctionHandle, error) {
	if err := ctx.Err(); err != nil {
		return topology.FunctionHandle{}, err
	}
	if spec != nil && spec.ExistingHandle != "" {
		return topology.FunctionHandle{
			Name:        spec.ExistingHandle,
			EndpointURL: fmt.Sprintf("https://%s.fn.%s.openlift.internal", spec.ExistingHandle, n.region),
		}, nil
	}
	name := n.physicalName(id)
	handle := topology.FunctionHandle{
		Name:        name,
		EndpointURL: fmt.Sprintf("https://%s.fn.%s.openlift.internal", name, n.region),
	}
	n.logger.Debug().Str("resource", string(id)).Str("endpoint", handle.EndpointURL).Msg("Provisioned function")
	return handle, nil
}

// ProvisionDistribution allocates the routing/distribution layer.
func (n *Namer) ProvisionDistribution(ctx context.Context, id topology.LogicalID, spec *topology.DistributionSpec) (topology.DistributionHandle, error) {
	if err := ctx.Err(); err != nil {
		return topology.DistributionHandle{}, err
	}
	suffix := n.suffix(id)
	handle := topology.DistributionHandle{
		ID:     fmt.Sprintf("D%s", suffix),
		Domain: fmt.Sprintf("%s.dist.openlift.net", suffix),
	}
	n.logger.Debug().Str("resource", string(id)).Str("domain", handle.Domain).Msg("Provisioned distribution")
	return handle, nil
}

// physicalName is prefix-qualified and stable per logical ID.
func (n *Namer) physicalName(id topology.LogicalID) string {
	return fmt.Sprintf("%s-%s", n.prefix, id)
}

// suffix is a short stable hash of the prefixed logical ID.
func (n *Namer) suffix(id topology.LogicalID) string {
	h := fnv.New32a()
	h.Write([]byte(n.physicalName(id)))
	return fmt.Sprintf("%08x", h.Sum32())
}
