package topology

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Overrides is the caller-supplied override object: per-role function
// overrides, routing-layer overrides, and feature toggles layered on top of
// what the manifest declares.
type Overrides struct {
	// Functions maps a role key to its function override. Valid keys are
	// "default", "imageOptimizer", "revalidation", "seeder", "warmer",
	// and any split origin key.
	Functions map[string]FunctionOverride `yaml:"functions" json:"functions,omitempty"`

	// Routing overrides the routing/distribution layer.
	Routing RoutingOverrides `yaml:"routing" json:"routing,omitempty"`

	// DisableTagCache disables the tag-cache table from the caller side.
	// It combines with the manifest flag by logical OR.
	DisableTagCache bool `yaml:"disableTagCache" json:"disableTagCache,omitempty"`

	// DisableAccessControl skips the bucket access-control layer.
	DisableAccessControl bool `yaml:"disableAccessControl" json:"disableAccessControl,omitempty"`

	// DisableAccessLogs skips the access-log pipeline.
	DisableAccessLogs bool `yaml:"disableAccessLogs" json:"disableAccessLogs,omitempty"`

	// DisableWarmer skips the warmer even when the manifest declares one.
	DisableWarmer bool `yaml:"disableWarmer" json:"disableWarmer,omitempty"`

	// EnableAlarms provisions health alarms on the queue, the compute
	// functions, and the distribution.
	EnableAlarms bool `yaml:"enableAlarms" json:"enableAlarms,omitempty"`

	// DisableDNS skips DNS records even when custom domains are set.
	DisableDNS bool `yaml:"disableDNS" json:"disableDNS,omitempty"`
}

// FunctionOverride tunes one function role.
type FunctionOverride struct {
	// MemoryMB overrides the memory allocation.
	MemoryMB int `yaml:"memoryMb" json:"memoryMb,omitempty"`

	// TimeoutSeconds overrides the execution timeout.
	TimeoutSeconds int `yaml:"timeoutSeconds" json:"timeoutSeconds,omitempty"`

	// Architecture overrides the instruction set architecture.
	Architecture string `yaml:"architecture" json:"architecture,omitempty"`

	// Runtime overrides the language runtime.
	Runtime string `yaml:"runtime" json:"runtime,omitempty"`

	// Environment adds or replaces environment variables. Composed
	// variables win on conflict.
	Environment map[string]string `yaml:"environment" json:"environment,omitempty"`

	// ExistingHandle reuses an existing function instead of provisioning
	// a new one.
	ExistingHandle string `yaml:"existingHandle" json:"existingHandle,omitempty"`
}

// RoutingOverrides tunes the routing/distribution layer.
type RoutingOverrides struct {
	// CustomDomains are domains the distribution serves. Each yields a
	// DNS record unless DNS is disabled.
	CustomDomains []string `yaml:"customDomains" json:"customDomains,omitempty"`

	// AdditionalRules are caller-supplied routing rules merged on top of
	// the synthesized set. A caller rule for a pattern fully replaces the
	// manifest-derived rule for that pattern.
	AdditionalRules []RuleOverride `yaml:"additionalRules" json:"additionalRules,omitempty"`
}

// RuleOverride is one caller-supplied routing rule.
type RuleOverride struct {
	// Pattern is the request path pattern.
	Pattern string `yaml:"pattern" json:"pattern"`

	// Origin is the origin key the pattern routes to. It resolves through
	// the same role classification as manifest behaviors.
	Origin string `yaml:"origin" json:"origin"`

	// AllowedMethods, when set, replaces the role template's method set.
	AllowedMethods []string `yaml:"allowedMethods" json:"allowedMethods,omitempty"`

	// CachePolicy, when set, replaces the role template's cache policy.
	CachePolicy string `yaml:"cachePolicy" json:"cachePolicy,omitempty"`
}

// LoadOverrides reads an override object from a YAML file. A missing path
// returns empty overrides rather than an error so deploys without an
// override file stay zero-config.
func LoadOverrides(path string) (*Overrides, error) {
	if path == "" {
		return &Overrides{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Overrides{}, nil
		}
		return nil, fmt.Errorf("failed to read overrides file: %w", err)
	}

	var o Overrides
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("failed to parse overrides file: %w", err)
	}

	return &o, nil
}

// ForRole returns the function override for a role key, or a zero override.
func (o *Overrides) ForRole(key string) FunctionOverride {
	if o == nil || o.Functions == nil {
		return FunctionOverride{}
	}
	return o.Functions[key]
}
