package topology

import "github.com/openlift/openlift/pkg/manifest"

// RoleKind identifies the function role an origin was classified into.
type RoleKind string

const (
	// RoleStaticAssets is the bucket-served asset origin.
	RoleStaticAssets RoleKind = "static-assets"

	// RoleImageOptimizer is the image optimization function.
	RoleImageOptimizer RoleKind = "image-optimizer"

	// RoleDefaultCompute is the catch-all server function.
	RoleDefaultCompute RoleKind = "default-compute"

	// RoleSplitCompute is a non-default server function handling a
	// distinct subset of routes.
	RoleSplitCompute RoleKind = "split-compute"
)

// Support-function roles. These never derive from manifest origins and
// never receive routing rules.
const (
	// RoleRevalidation is the queue consumer regenerating cached content.
	RoleRevalidation RoleKind = "revalidation"

	// RoleSeeder is the deploy-time task populating the tag-cache table.
	RoleSeeder RoleKind = "seeder"

	// RoleWarmer is the scheduled task keeping compute functions warm.
	RoleWarmer RoleKind = "warmer"
)

// OriginRole is the derived role of a manifest origin. SplitKey is set only
// for split-compute roles.
type OriginRole struct {
	Kind     RoleKind `json:"kind"`
	SplitKey string   `json:"splitKey,omitempty"`
}

// SplitRole constructs the role for a split-compute origin key.
func SplitRole(key string) OriginRole {
	return OriginRole{Kind: RoleSplitCompute, SplitKey: key}
}

// ClassifyOrigin assigns an origin key its role. The reserved keys map to
// the three fixed roles; any other key classifies as split compute only when
// its origin is compute-typed. Non-compute non-reserved keys are ignored and
// never produce a function resource.
func ClassifyOrigin(key string, origins map[string]manifest.Origin) (OriginRole, bool) {
	switch key {
	case manifest.KeyDefault:
		return OriginRole{Kind: RoleDefaultCompute}, true
	case manifest.KeyAssets:
		return OriginRole{Kind: RoleStaticAssets}, true
	case manifest.KeyImageOptimizer:
		return OriginRole{Kind: RoleImageOptimizer}, true
	}

	origin, ok := origins[key]
	if !ok {
		return OriginRole{}, false
	}
	if origin.Type != manifest.OriginTypeCompute {
		return OriginRole{}, false
	}
	return SplitRole(key), true
}
