// Package manifest loads, validates, and normalizes the application-build
// manifest produced by the build step. The manifest is the single input of
// the topology compiler: it declares request origins, routing patterns, and
// the optional backend features the deployed application needs.
package manifest

import (
	"encoding/json"
	"sort"
)

// FileName is the fixed manifest file name inside the build-output directory.
const FileName = "app.manifest.json"

// BuildRootPrefix is the historical path prefix some build pipelines emit on
// copy and bundle paths. Normalization strips it so every path is relative
// to the build-output directory.
const BuildRootPrefix = ".openlift/"

// Origin types as they appear in the manifest.
const (
	// OriginTypeStaticAssets marks an origin whose content is uploaded to
	// the asset bucket and served without compute.
	OriginTypeStaticAssets = "static-assets"

	// OriginTypeCompute marks an origin backed by a deployable function.
	OriginTypeCompute = "compute"
)

// Reserved origin keys. Any other compute-typed key declares a split origin.
const (
	// KeyDefault is the catch-all compute origin. Required.
	KeyDefault = "default"

	// KeyAssets is the static-asset origin.
	KeyAssets = "assets"

	// KeyImageOptimizer is the image optimization origin.
	KeyImageOptimizer = "imageOptimizer"
)

// Manifest is the normalized in-memory shape of the build manifest. Two
// historical file shapes exist (with and without version/routes, with and
// without the build-root path prefix); Reader.Read normalizes both to this
// one shape.
type Manifest struct {
	// Version is the manifest schema version. Absent in legacy manifests.
	Version string `json:"version,omitempty"`

	// Routes lists the application routes discovered at build time.
	// Informational; absent in legacy manifests.
	Routes []Route `json:"routes,omitempty"`

	// Origins maps origin keys to their declarations. The "default" key
	// must exist and be compute-typed.
	Origins map[string]Origin `json:"origins" validate:"required"`

	// Behaviors is the ordered list of routing-pattern bindings, in the
	// order declared by the build. May be empty; presence and list shape
	// are enforced before decoding.
	Behaviors []Behavior `json:"behaviors"`

	// AdditionalProps carries optional backend feature declarations.
	AdditionalProps *AdditionalProps `json:"additionalProps,omitempty"`

	// EdgeFunctions maps edge-function keys to their opaque declarations.
	// The compiler does not materialize these; their presence raises a
	// single warning per build.
	EdgeFunctions map[string]json.RawMessage `json:"edgeFunctions,omitempty"`
}

// Route describes a single application route. The compiler carries routes
// through unchanged; only the routing layer downstream consumes them.
type Route struct {
	// Route is the route pattern (e.g. "/api/users/[id]").
	Route string `json:"route"`

	// Regex is the compiled matching expression, if the build emitted one.
	Regex string `json:"regex,omitempty"`
}

// Origin declares a backend target: either a static-asset store or a
// compute function.
type Origin struct {
	// Type is the origin type: "static-assets" or "compute".
	Type string `json:"type" validate:"required,oneof=static-assets compute"`

	// Copy lists asset copy instructions for static-asset origins.
	Copy []CopyEntry `json:"copy,omitempty"`

	// Handler is the function entrypoint for compute origins
	// (e.g. "index.handler").
	Handler string `json:"handler,omitempty"`

	// Bundle is the deployable bundle directory, relative to the
	// build-output directory after normalization.
	Bundle string `json:"bundle,omitempty"`

	// Streaming enables response streaming for compute origins.
	Streaming bool `json:"streaming,omitempty"`

	// OriginPath is a path prefix the routing layer must prepend when
	// forwarding requests to this origin.
	OriginPath string `json:"originPath,omitempty"`
}

// CopyEntry is one asset copy instruction.
type CopyEntry struct {
	// From is the source path, relative to the build-output directory
	// after normalization.
	From string `json:"from" validate:"required"`

	// To is the destination key prefix in the asset bucket.
	To string `json:"to"`

	// Cached marks content eligible for long-lived caching.
	Cached bool `json:"cached"`

	// VersionedSubDir, when set, nests the content under a
	// build-versioned subdirectory.
	VersionedSubDir string `json:"versionedSubDir,omitempty"`
}

// Behavior binds a routing pattern to an origin or edge function. Order in
// the manifest is preserved.
type Behavior struct {
	// Pattern is the request path pattern (e.g. "api/*", "*").
	Pattern string `json:"pattern" validate:"required"`

	// Origin is the origin key this pattern routes to.
	Origin string `json:"origin,omitempty"`

	// EdgeFunction is the edge-function key this pattern routes to.
	// Behaviors referencing edge functions are dropped from the synthesized
	// rule set.
	EdgeFunction string `json:"edgeFunction,omitempty"`
}

// AdditionalProps declares optional backend features discovered at build
// time.
type AdditionalProps struct {
	// DisableTagCache disables the tag-cache table from the manifest side.
	DisableTagCache bool `json:"disableTagCache,omitempty"`

	// DisableIncrementalCache disables the bucket-backed incremental
	// cache. There is no caller-side override for this flag.
	DisableIncrementalCache bool `json:"disableIncrementalCache,omitempty"`

	// InitializationFunction is the seeder bundle that populates the
	// tag cache on deploy.
	InitializationFunction *BundleRef `json:"initializationFunction,omitempty"`

	// Warmer is the bundle that keeps compute functions warm.
	Warmer *BundleRef `json:"warmer,omitempty"`

	// RevalidationFunction is the bundle consuming the revalidation queue.
	RevalidationFunction *BundleRef `json:"revalidationFunction,omitempty"`
}

// BundleRef points at a deployable bundle directory with its entrypoint.
type BundleRef struct {
	// Handler is the function entrypoint.
	Handler string `json:"handler,omitempty"`

	// Bundle is the bundle directory, relative to the build-output
	// directory after normalization.
	Bundle string `json:"bundle,omitempty"`
}

// SplitKeys returns the non-reserved compute origin keys in lexical order.
// Lexical order is the canonical "manifest key order" for JSON objects,
// whose member order is not significant.
func (m *Manifest) SplitKeys() []string {
	keys := make([]string, 0)
	for key, origin := range m.Origins {
		if key == KeyDefault || key == KeyAssets || key == KeyImageOptimizer {
			continue
		}
		if origin.Type == OriginTypeCompute {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Props returns the additional props, never nil.
func (m *Manifest) Props() AdditionalProps {
	if m.AdditionalProps == nil {
		return AdditionalProps{}
	}
	return *m.AdditionalProps
}
