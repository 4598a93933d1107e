package topology

import "github.com/openlift/openlift/pkg/manifest"

// Flags is the resolved feature-flag set. It is computed exactly once per
// build and consumed read-only by the environment composer and the
// orchestrator.
type Flags struct {
	// TagCacheDisabled disables the tag-cache table. Either the manifest
	// or the caller can disable it; neither side alone can re-enable what
	// the other disabled.
	TagCacheDisabled bool `json:"tagCacheDisabled"`

	// IncrementalCacheDisabled disables the bucket-backed response cache.
	// Manifest-only; there is no caller-side override.
	IncrementalCacheDisabled bool `json:"incrementalCacheDisabled"`

	// SeederEligible is true when the tag cache is enabled and the build
	// produced an initialization function to populate it.
	SeederEligible bool `json:"seederEligible"`
}

// ResolveFlags merges the manifest-declared and caller-declared feature
// toggles. Precedence is asymmetric and must be preserved exactly:
// the tag cache is disabled by logical OR of the two sources, the
// incremental cache is controlled by the manifest alone.
func ResolveFlags(m *manifest.Manifest, o *Overrides) Flags {
	props := m.Props()

	tagCacheDisabled := props.DisableTagCache
	if o != nil && o.DisableTagCache {
		tagCacheDisabled = true
	}

	return Flags{
		TagCacheDisabled:         tagCacheDisabled,
		IncrementalCacheDisabled: props.DisableIncrementalCache,
		SeederEligible:           !tagCacheDisabled && props.InitializationFunction != nil,
	}
}
