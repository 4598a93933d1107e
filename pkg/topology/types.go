package topology

import (
	"fmt"
	"time"
)

// LogicalID is the stable identifier of a resource node in the build graph.
// Logical IDs derive deterministically from role and resource prefix, never
// from construction nesting.
type LogicalID string

// ResourceKind identifies what a resource node provisions.
type ResourceKind string

const (
	KindFunction      ResourceKind = "function"
	KindQueue         ResourceKind = "queue"
	KindTable         ResourceKind = "table"
	KindBucket        ResourceKind = "bucket"
	KindAccessControl ResourceKind = "access-control"
	KindDistribution  ResourceKind = "distribution"
	KindAssetUpload   ResourceKind = "asset-upload"
	KindLogPipeline   ResourceKind = "log-pipeline"
	KindAlarm         ResourceKind = "alarm"
	KindDNSRecord     ResourceKind = "dns-record"
)

// AccessMode is the access level of a permission grant.
type AccessMode string

const (
	AccessRead        AccessMode = "read"
	AccessReadWrite   AccessMode = "readwrite"
	AccessSendMessage AccessMode = "send-message"
)

// Grant is an explicit permission descriptor: the grantee function may
// access the named resource at the given level. Grants are computed by the
// environment composer, never as a provisioning side effect.
type Grant struct {
	// Resource is the logical ID of the resource being granted.
	Resource LogicalID `json:"resource"`

	// Access is the access level.
	Access AccessMode `json:"access"`
}

// FunctionSpec describes a function resource.
type FunctionSpec struct {
	// Role is the origin role this function serves.
	Role OriginRole `json:"role"`

	// Handler is the function entrypoint.
	Handler string `json:"handler"`

	// Bundle is the deployable bundle directory, relative to the
	// build-output directory.
	Bundle string `json:"bundle"`

	// Streaming enables response streaming.
	Streaming bool `json:"streaming,omitempty"`

	// MemoryMB is the memory allocation.
	MemoryMB int `json:"memoryMb"`

	// TimeoutSeconds is the execution timeout.
	TimeoutSeconds int `json:"timeoutSeconds"`

	// Architecture is the instruction set architecture.
	Architecture string `json:"architecture"`

	// Runtime is the language runtime.
	Runtime string `json:"runtime"`

	// Env is the environment variable set. Values may be deferred until
	// graph resolution.
	Env EnvMap `json:"env"`

	// Grants are the permission descriptors for this function.
	Grants []Grant `json:"grants,omitempty"`

	// ExistingHandle, when set, reuses an existing function instead of
	// provisioning a new one.
	ExistingHandle string `json:"existingHandle,omitempty"`
}

// QueueSpec describes the revalidation message queue.
type QueueSpec struct {
	// FIFO preserves per-key revalidation ordering.
	FIFO bool `json:"fifo"`
}

// TableSpec describes the tag-cache key-value table.
type TableSpec struct {
	// HashKey is the partition key attribute.
	HashKey string `json:"hashKey"`

	// RangeKey is the sort key attribute.
	RangeKey string `json:"rangeKey"`
}

// BucketSpec describes the storage bucket shared by static assets and the
// incremental cache.
type BucketSpec struct {
	// AccessControl is the logical ID of the access-control layer guarding
	// the bucket, if one exists.
	AccessControl LogicalID `json:"accessControl,omitempty"`
}

// DistributionSpec describes the routing/distribution layer.
type DistributionSpec struct {
	// Rules is the synthesized routing rule set.
	Rules *RuleSet `json:"rules"`

	// CustomDomains are caller-supplied domains served by the
	// distribution.
	CustomDomains []string `json:"customDomains,omitempty"`

	// LogPipeline is the logical ID of the access-log pipeline, if
	// enabled.
	LogPipeline LogicalID `json:"logPipeline,omitempty"`
}

// AssetUploadSpec describes the static asset upload tied to the
// distribution for cache invalidation.
type AssetUploadSpec struct {
	// Entries are the normalized copy instructions.
	Entries []AssetEntry `json:"entries"`

	// Distribution is the distribution invalidated after upload.
	Distribution LogicalID `json:"distribution"`
}

// AssetEntry is one upload instruction, already normalized to the
// build-output directory.
type AssetEntry struct {
	From            string `json:"from"`
	To              string `json:"to"`
	Cached          bool   `json:"cached"`
	VersionedSubDir string `json:"versionedSubDir,omitempty"`
}

// AlarmSpec describes a health alarm on a provisioned resource.
type AlarmSpec struct {
	// Target is the logical ID of the resource being monitored.
	Target LogicalID `json:"target"`
}

// DNSRecordSpec describes a DNS record pointing a custom domain at the
// distribution.
type DNSRecordSpec struct {
	// Domain is the custom domain name.
	Domain string `json:"domain"`

	// Distribution is the logical ID of the distribution.
	Distribution LogicalID `json:"distribution"`
}

// ResourceNode is one entry in the build graph. Each node is owned
// exclusively by the orchestrator, created once, and referenced read-only by
// later nodes.
type ResourceNode struct {
	// ID is the stable logical identifier.
	ID LogicalID `json:"id"`

	// Kind identifies the resource kind.
	Kind ResourceKind `json:"kind"`

	// PhysicalName is the provisioner-assigned physical identifier.
	PhysicalName string `json:"physicalName,omitempty"`

	// DependsOn lists logical IDs this node consumes identifiers from.
	DependsOn []LogicalID `json:"dependsOn,omitempty"`

	// At most one of the following is set, matching Kind. Access-control
	// and log-pipeline nodes carry no payload.
	Function     *FunctionSpec     `json:"function,omitempty"`
	Queue        *QueueSpec        `json:"queue,omitempty"`
	Table        *TableSpec        `json:"table,omitempty"`
	Bucket       *BucketSpec       `json:"bucket,omitempty"`
	Distribution *DistributionSpec `json:"distribution,omitempty"`
	AssetUpload  *AssetUploadSpec  `json:"assetUpload,omitempty"`
	Alarm        *AlarmSpec        `json:"alarm,omitempty"`
	DNSRecord    *DNSRecordSpec    `json:"dnsRecord,omitempty"`
}

// Outputs are the outward-facing identifiers of a finished build.
type Outputs struct {
	// DistributionDomain is the routing-layer domain name.
	DistributionDomain string `json:"distributionDomain"`

	// DistributionID is the routing-layer identifier.
	DistributionID string `json:"distributionId"`

	// BucketName is the storage bucket name.
	BucketName string `json:"bucketName"`
}

// ResourceGraph is the finished build graph: every resource node in
// creation order, the external outputs, and any non-fatal warnings raised
// during compilation.
type ResourceGraph struct {
	// BuildID uniquely identifies this build invocation.
	BuildID string `json:"buildId"`

	// ManifestVersion is the manifest's declared schema version, empty
	// for legacy manifests.
	ManifestVersion string `json:"manifestVersion,omitempty"`

	// CreatedAt is when the build ran.
	CreatedAt time.Time `json:"createdAt"`

	// Nodes are the resource nodes in construction order.
	Nodes []*ResourceNode `json:"nodes"`

	// Outputs are the outward-facing identifiers.
	Outputs Outputs `json:"outputs"`

	// Warnings are non-fatal diagnostics raised during the build.
	Warnings []string `json:"warnings,omitempty"`
}

// Resolve evaluates every deferred value in the graph. It must run before
// serialization; each thunk is evaluated exactly once.
func (g *ResourceGraph) Resolve() error {
	for _, node := range g.Nodes {
		if node.Function == nil {
			continue
		}
		for key, value := range node.Function.Env {
			if _, err := value.Resolve(); err != nil {
				return NewBuildError(ErrCodeUnresolved,
					fmt.Sprintf("failed to resolve env %s", key), err).
					WithResource(node.ID)
			}
		}
	}
	return nil
}

// Validate checks graph integrity: every DependsOn edge must reference a
// node that appears earlier in construction order. A forward or dangling
// edge means the construction sequence was reordered.
func (g *ResourceGraph) Validate() error {
	seen := make(map[LogicalID]bool, len(g.Nodes))
	for _, node := range g.Nodes {
		for _, dep := range node.DependsOn {
			if !seen[dep] {
				return NewBuildError(ErrCodeInternal,
					fmt.Sprintf("node %s depends on %s, which does not precede it", node.ID, dep), nil).
					WithResource(node.ID)
			}
		}
		seen[node.ID] = true
	}
	return nil
}

// Node returns the node with the given logical ID, or nil.
func (g *ResourceGraph) Node(id LogicalID) *ResourceNode {
	for _, node := range g.Nodes {
		if node.ID == id {
			return node
		}
	}
	return nil
}

// Functions returns every function node in construction order.
func (g *ResourceGraph) Functions() []*ResourceNode {
	var out []*ResourceNode
	for _, node := range g.Nodes {
		if node.Kind == KindFunction {
			out = append(out, node)
		}
	}
	return out
}

// arena owns the resource nodes, keyed by stable logical ID with insertion
// order preserved.
type arena struct {
	nodes map[LogicalID]*ResourceNode
	order []LogicalID
}

func newArena() *arena {
	return &arena{nodes: make(map[LogicalID]*ResourceNode)}
}

// add registers a node. Logical IDs are unique; a duplicate is an internal
// error in the orchestrator.
func (a *arena) add(node *ResourceNode) error {
	if node.ID == "" {
		return NewBuildError(ErrCodeInternal, "resource node has empty logical ID", nil)
	}
	if _, exists := a.nodes[node.ID]; exists {
		return NewBuildError(ErrCodeDuplicate,
			fmt.Sprintf("duplicate logical ID %s", node.ID), nil).WithResource(node.ID)
	}
	a.nodes[node.ID] = node
	a.order = append(a.order, node.ID)
	return nil
}

// get returns the node with the given ID, or nil.
func (a *arena) get(id LogicalID) *ResourceNode {
	return a.nodes[id]
}

// list returns every node in insertion order.
func (a *arena) list() []*ResourceNode {
	out := make([]*ResourceNode, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.nodes[id])
	}
	return out
}
