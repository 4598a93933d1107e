package topology

import (
	"github.com/rs/zerolog"

	"github.com/openlift/openlift/pkg/manifest"
)

// TargetID is an opaque routing-target handle: the endpoint identifier a
// rule forwards matching requests to.
type TargetID string

// HTTP method sets per role template.
var (
	methodsAll           = []string{"GET", "HEAD", "OPTIONS", "PUT", "POST", "PATCH", "DELETE"}
	methodsReadOnly      = []string{"GET", "HEAD"}
	methodsReadPreflight = []string{"GET", "HEAD", "OPTIONS"}
)

// Routing policy template names. The routing layer downstream binds these
// to concrete policy documents; the synthesizer only selects which template
// applies.
const (
	// CachePolicyStaticOptimized is the long-lived caching policy for
	// immutable static content. No dynamic header forwarding.
	CachePolicyStaticOptimized = "static-optimized"

	// CachePolicyDynamic is the cache-keying policy for server-rendered
	// responses.
	CachePolicyDynamic = "server-dynamic"

	// OriginRequestPolicyAllViewer forwards the full viewer request to
	// the origin.
	OriginRequestPolicyAllViewer = "all-viewer"

	// ResponseHeadersPolicyDefault is the standard response-header set.
	ResponseHeadersPolicyDefault = "default-headers"
)

// RuleSource records where a rule came from.
type RuleSource string

const (
	// RuleSourceDefault marks the catch-all default rule.
	RuleSourceDefault RuleSource = "default"

	// RuleSourceManifest marks a rule synthesized from a manifest
	// behavior.
	RuleSourceManifest RuleSource = "manifest"

	// RuleSourceOverride marks a caller-supplied rule.
	RuleSourceOverride RuleSource = "override"
)

// Rule is one routing rule: a pattern bound to a target with its method set
// and policy templates.
type Rule struct {
	// Pattern is the request path pattern.
	Pattern string `json:"pattern"`

	// Target is the opaque endpoint the rule forwards to.
	Target TargetID `json:"target"`

	// OriginPath is prepended to the forwarded request path when the
	// origin declares one.
	OriginPath string `json:"originPath,omitempty"`

	// AllowedMethods is the HTTP method set the rule accepts.
	AllowedMethods []string `json:"allowedMethods"`

	// CachePolicy is the cache-keying policy template.
	CachePolicy string `json:"cachePolicy"`

	// OriginRequestPolicy is the forwarded-request policy template.
	// Empty for static content.
	OriginRequestPolicy string `json:"originRequestPolicy,omitempty"`

	// ResponseHeadersPolicy is the response-header policy template.
	ResponseHeadersPolicy string `json:"responseHeadersPolicy,omitempty"`

	// ViewerHostRewrite enables the viewer-side host-rewrite hook. Set
	// only for image optimization rules.
	ViewerHostRewrite bool `json:"viewerHostRewrite,omitempty"`

	// Source records where the rule came from.
	Source RuleSource `json:"source"`
}

// RuleSet is the synthesized routing output: the catch-all default rule
// plus the ordered additional rules. Request-time precedence between
// sibling patterns is the routing layer's concern; the synthesizer only
// determines the set and content of rules.
type RuleSet struct {
	// Default is the catch-all rule. It always targets the default
	// compute function and allows all HTTP methods.
	Default Rule `json:"default"`

	// Additional are the non-catch-all rules in manifest order, with
	// caller-supplied rules appended (or replacing same-pattern manifest
	// rules).
	Additional []Rule `json:"additional"`
}

// Synthesizer converts the manifest's behavior list into a routing rule
// set using per-role policy templates.
type Synthesizer struct {
	manifest *manifest.Manifest
	targets  map[string]TargetID
	logger   zerolog.Logger

	// dropped counts behaviors dropped for unresolvable origins; it feeds
	// the build diagnostics.
	dropped int
}

// NewSynthesizer creates a rule synthesizer. targets maps origin keys
// (reserved keys and split keys) to their routing-target handles.
func NewSynthesizer(m *manifest.Manifest, targets map[string]TargetID, logger zerolog.Logger) *Synthesizer {
	return &Synthesizer{
		manifest: m,
		targets:  targets,
		logger:   logger.With().Str("component", "behavior-synthesizer").Logger(),
	}
}

// Synthesize produces the rule set for the manifest's behaviors, applying
// the caller's routing overrides. Behaviors whose origin is an edge
// function or does not resolve to a known role are dropped from the output
// with a diagnostic; dropping is not an error.
func (s *Synthesizer) Synthesize(overrides *RoutingOverrides) (*RuleSet, error) {
	defaultTarget, ok := s.targets[manifest.KeyDefault]
	if !ok {
		return nil, NewBuildError(ErrCodeInternal, "no routing target for default origin", nil)
	}

	set := &RuleSet{
		Default: Rule{
			Pattern:               "*",
			Target:                defaultTarget,
			OriginPath:            s.originPath(manifest.KeyDefault),
			AllowedMethods:        methodsAll,
			CachePolicy:           CachePolicyDynamic,
			OriginRequestPolicy:   OriginRequestPolicyAllViewer,
			ResponseHeadersPolicy: ResponseHeadersPolicyDefault,
			Source:                RuleSourceDefault,
		},
	}

	for _, behavior := range s.manifest.Behaviors {
		if isCatchAll(behavior.Pattern) {
			// The catch-all is always represented by the default rule.
			continue
		}

		rule, ok := s.synthesizeRule(behavior)
		if !ok {
			continue
		}
		set.Additional = append(set.Additional, rule)
	}

	if overrides != nil {
		s.applyOverrides(set, overrides.AdditionalRules)
	}

	return set, nil
}

// Dropped returns the number of behaviors dropped during synthesis.
func (s *Synthesizer) Dropped() int {
	return s.dropped
}

// synthesizeRule converts one behavior into a rule using its role's
// template. It returns false when the behavior must be dropped.
func (s *Synthesizer) synthesizeRule(behavior manifest.Behavior) (Rule, bool) {
	if behavior.EdgeFunction != "" {
		s.drop(behavior, "behavior routes to an edge function")
		return Rule{}, false
	}

	role, ok := ClassifyOrigin(behavior.Origin, s.manifest.Origins)
	if !ok {
		s.drop(behavior, "behavior origin resolves to no known role")
		return Rule{}, false
	}

	target, ok := s.targets[behavior.Origin]
	if !ok {
		s.drop(behavior, "behavior origin has no routing target")
		return Rule{}, false
	}

	rule := Rule{
		Pattern:    behavior.Pattern,
		Target:     target,
		OriginPath: s.originPath(behavior.Origin),
		Source:     RuleSourceManifest,
	}

	switch role.Kind {
	case RoleStaticAssets:
		rule.AllowedMethods = methodsReadOnly
		rule.CachePolicy = CachePolicyStaticOptimized
	case RoleImageOptimizer:
		rule.AllowedMethods = methodsReadPreflight
		rule.CachePolicy = CachePolicyDynamic
		rule.OriginRequestPolicy = OriginRequestPolicyAllViewer
		rule.ViewerHostRewrite = true
	case RoleDefaultCompute, RoleSplitCompute:
		rule.AllowedMethods = methodsAll
		rule.CachePolicy = CachePolicyDynamic
		rule.OriginRequestPolicy = OriginRequestPolicyAllViewer
		rule.ResponseHeadersPolicy = ResponseHeadersPolicyDefault
	default:
		s.drop(behavior, "behavior origin has an unknown role")
		return Rule{}, false
	}

	return rule, true
}

// applyOverrides merges caller-supplied rules into the set. A caller rule
// for an existing pattern fully replaces the manifest-derived rule.
func (s *Synthesizer) applyOverrides(set *RuleSet, overrides []RuleOverride) {
	for _, o := range overrides {
		if isCatchAll(o.Pattern) {
			// The default rule is not replaceable; it anchors the
			// routing set.
			s.logger.Warn().Str("pattern", o.Pattern).
				Msg("Ignoring caller rule for the catch-all pattern")
			continue
		}

		rule, ok := s.overrideRule(o)
		if !ok {
			continue
		}

		replaced := false
		for i := range set.Additional {
			if set.Additional[i].Pattern == rule.Pattern {
				set.Additional[i] = rule
				replaced = true
				break
			}
		}
		if !replaced {
			set.Additional = append(set.Additional, rule)
		}
	}
}

// overrideRule converts a caller rule override into a rule, starting from
// the origin role's template and applying the caller's replacements.
func (s *Synthesizer) overrideRule(o RuleOverride) (Rule, bool) {
	rule, ok := s.synthesizeRule(manifest.Behavior{Pattern: o.Pattern, Origin: o.Origin})
	if !ok {
		return Rule{}, false
	}

	rule.Source = RuleSourceOverride
	if len(o.AllowedMethods) > 0 {
		rule.AllowedMethods = o.AllowedMethods
	}
	if o.CachePolicy != "" {
		rule.CachePolicy = o.CachePolicy
	}
	return rule, true
}

// drop records a dropped behavior. Dropped behaviors are surfaced as
// structured warnings so an incomplete routing set never goes unnoticed.
func (s *Synthesizer) drop(behavior manifest.Behavior, reason string) {
	s.dropped++
	s.logger.Warn().
		Str("pattern", behavior.Pattern).
		Str("origin", behavior.Origin).
		Str("edge_function", behavior.EdgeFunction).
		Msg("Dropping behavior from routing output: " + reason)
}

// originPath returns the origin's routing path prefix, if any.
func (s *Synthesizer) originPath(key string) string {
	return s.manifest.Origins[key].OriginPath
}

// isCatchAll reports whether a pattern matches every request path.
func isCatchAll(pattern string) bool {
	return pattern == "*" || pattern == "/*"
}
