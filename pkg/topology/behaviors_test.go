package topology

import (
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openlift/openlift/pkg/manifest"
)

func testManifest() *manifest.Manifest {
	return &manifest.Manifest{
		Origins: map[string]manifest.Origin{
			"default":        {Type: manifest.OriginTypeCompute, Bundle: "server", Handler: "index.handler"},
			"assets":         {Type: manifest.OriginTypeStaticAssets, OriginPath: "/static"},
			"imageOptimizer": {Type: manifest.OriginTypeCompute, Bundle: "image", Handler: "index.handler"},
			"api":            {Type: manifest.OriginTypeCompute, Bundle: "api", Handler: "index.handler"},
		},
		Behaviors: []manifest.Behavior{
			{Pattern: "_assets/*", Origin: "assets"},
			{Pattern: "_image/*", Origin: "imageOptimizer"},
			{Pattern: "api/*", Origin: "api"},
			{Pattern: "*", Origin: "default"},
		},
	}
}

func testTargets() map[string]TargetID {
	return map[string]TargetID{
		"default":        "https://default.example",
		"assets":         "bucket://assets",
		"imageOptimizer": "https://image.example",
		"api":            "https://api.example",
	}
}

func TestSynthesize_DefaultRule(t *testing.T) {
	s := NewSynthesizer(testManifest(), testTargets(), zerolog.Nop())
	set, err := s.Synthesize(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if set.Default.Pattern != "*" {
		t.Errorf("default pattern = %q, want *", set.Default.Pattern)
	}
	if set.Default.Target != "https://default.example" {
		t.Errorf("default target = %q", set.Default.Target)
	}
	if !reflect.DeepEqual(set.Default.AllowedMethods, methodsAll) {
		t.Errorf("default rule must allow all methods, got %v", set.Default.AllowedMethods)
	}
	if set.Default.Source != RuleSourceDefault {
		t.Errorf("default source = %q", set.Default.Source)
	}
}

func TestSynthesize_CatchAllNeverAdditional(t *testing.T) {
	m := testManifest()
	m.Behaviors = append(m.Behaviors, manifest.Behavior{Pattern: "/*", Origin: "default"})

	s := NewSynthesizer(m, testTargets(), zerolog.Nop())
	set, err := s.Synthesize(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, rule := range set.Additional {
		if rule.Pattern == "*" || rule.Pattern == "/*" {
			t.Errorf("catch-all pattern %q must never appear as an additional rule", rule.Pattern)
		}
	}
}

func TestSynthesize_RoleTemplates(t *testing.T) {
	s := NewSynthesizer(testManifest(), testTargets(), zerolog.Nop())
	set, err := s.Synthesize(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(set.Additional) != 3 {
		t.Fatalf("expected 3 additional rules, got %d", len(set.Additional))
	}

	static := set.Additional[0]
	if !reflect.DeepEqual(static.AllowedMethods, []string{"GET", "HEAD"}) {
		t.Errorf("static rule methods = %v, want GET,HEAD", static.AllowedMethods)
	}
	if static.CachePolicy != CachePolicyStaticOptimized {
		t.Errorf("static cache policy = %q", static.CachePolicy)
	}
	if static.OriginRequestPolicy != "" {
		t.Error("static rule must not forward dynamic headers")
	}
	if static.OriginPath != "/static" {
		t.Errorf("static origin path = %q", static.OriginPath)
	}

	image := set.Additional[1]
	if !reflect.DeepEqual(image.AllowedMethods, []string{"GET", "HEAD", "OPTIONS"}) {
		t.Errorf("image rule methods = %v, want GET,HEAD,OPTIONS", image.AllowedMethods)
	}
	if !image.ViewerHostRewrite {
		t.Error("image rule must set the viewer host-rewrite hook")
	}

	split := set.Additional[2]
	if !reflect.DeepEqual(split.AllowedMethods, methodsAll) {
		t.Errorf("split rule methods = %v, want all methods", split.AllowedMethods)
	}
	if split.CachePolicy != CachePolicyDynamic {
		t.Errorf("split cache policy = %q", split.CachePolicy)
	}
}

func TestSynthesize_DropsEdgeFunctionAndUnknownOrigins(t *testing.T) {
	m := testManifest()
	m.Behaviors = []manifest.Behavior{
		{Pattern: "edge/*", EdgeFunction: "auth"},
		{Pattern: "ghost/*", Origin: "nonexistent"},
		{Pattern: "*", Origin: "default"},
	}

	s := NewSynthesizer(m, testTargets(), zerolog.Nop())
	set, err := s.Synthesize(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(set.Additional) != 0 {
		t.Errorf("expected all non-catch-all behaviors dropped, got %d rules", len(set.Additional))
	}
	if s.Dropped() != 2 {
		t.Errorf("dropped = %d, want 2", s.Dropped())
	}
}

// Spec'd two-origin scenario: only a static-assets behavior plus the
// catch-all yields exactly one additional read-only rule.
func TestSynthesize_TwoOriginScenario(t *testing.T) {
	m := &manifest.Manifest{
		Origins: map[string]manifest.Origin{
			"default": {Type: manifest.OriginTypeCompute, Bundle: "server", Handler: "index.handler"},
			"assets":  {Type: manifest.OriginTypeStaticAssets},
		},
		Behaviors: []manifest.Behavior{
			{Pattern: "assets/*", Origin: "assets"},
			{Pattern: "*", Origin: "default"},
		},
	}
	targets := map[string]TargetID{
		"default": "https://default.example",
		"assets":  "bucket://assets",
	}

	s := NewSynthesizer(m, targets, zerolog.Nop())
	set, err := s.Synthesize(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(set.Additional) != 1 {
		t.Fatalf("expected exactly 1 additional rule, got %d", len(set.Additional))
	}
	rule := set.Additional[0]
	if rule.Pattern != "assets/*" {
		t.Errorf("pattern = %q", rule.Pattern)
	}
	if !reflect.DeepEqual(rule.AllowedMethods, []string{"GET", "HEAD"}) {
		t.Errorf("methods = %v, want read-only", rule.AllowedMethods)
	}
}

func TestSynthesize_CallerRuleReplacesSamePattern(t *testing.T) {
	s := NewSynthesizer(testManifest(), testTargets(), zerolog.Nop())
	set, err := s.Synthesize(&RoutingOverrides{
		AdditionalRules: []RuleOverride{
			{Pattern: "api/*", Origin: "api", AllowedMethods: []string{"GET", "POST"}},
			{Pattern: "extra/*", Origin: "default"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var apiRules []Rule
	for _, rule := range set.Additional {
		if rule.Pattern == "api/*" {
			apiRules = append(apiRules, rule)
		}
	}
	if len(apiRules) != 1 {
		t.Fatalf("expected one rule for api/*, got %d", len(apiRules))
	}
	if apiRules[0].Source != RuleSourceOverride {
		t.Error("caller rule must fully replace the manifest rule")
	}
	if !reflect.DeepEqual(apiRules[0].AllowedMethods, []string{"GET", "POST"}) {
		t.Errorf("caller methods not applied: %v", apiRules[0].AllowedMethods)
	}

	last := set.Additional[len(set.Additional)-1]
	if last.Pattern != "extra/*" || last.Source != RuleSourceOverride {
		t.Errorf("new caller rule must be appended, got %+v", last)
	}
}

func TestSynthesize_CallerCatchAllIgnored(t *testing.T) {
	s := NewSynthesizer(testManifest(), testTargets(), zerolog.Nop())
	set, err := s.Synthesize(&RoutingOverrides{
		AdditionalRules: []RuleOverride{
			{Pattern: "*", Origin: "api"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if set.Default.Target != "https://default.example" {
		t.Error("caller rules must not replace the default rule")
	}
	for _, rule := range set.Additional {
		if rule.Pattern == "*" {
			t.Error("caller catch-all must not become an additional rule")
		}
	}
}
