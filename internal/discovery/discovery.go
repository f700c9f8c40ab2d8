// Package discovery infers the set of buildable product flavors from Gradle
// build configuration text.
//
// The text is not parsed with a grammar. A layered sieve of regular
// expressions approximates the declaration styles found in real projects:
//
//	free { ... }                                   block declaration
//	create("free") { ... } / register('free')      factory call
//	'free-tier' { ... }                            quoted block
//	missingDimensionStrategy 'tier', 'free'        dimension reference
//
// Comments are removed and string literals are emptied before matching, so
// names that only appear in comments or string values are never reported.
// The quoted-name rules recover literal contents only when the literal sits in
// a declaration position. Recall is best-effort: unusual declaration styles
// may be missed, and a block nested inside a flavor may be reported as a
// flavor itself.
package discovery

import (
	"fmt"
	"os"
	"regexp"
	"sort"
)

// minNameLength discards one-character matches produced by generic syntax.
const minNameLength = 2

// DefaultScopeBlock is the Gradle block that declares product flavors.
const DefaultScopeBlock = "productFlavors"

// Rule names reported on each Candidate.
const (
	RuleBlock     = "block"
	RuleFactory   = "factory"
	RuleQuoted    = "quoted-block"
	RuleDimension = "dimension"
)

var (
	blockRe     = regexp.MustCompile(`(?m)(?:^|\s)([\w-]+)\s*\{`)
	factoryRe   = regexp.MustCompile(`\b(?:create|register)\(\s*(?:([\w-]+)|(""|''))\s*\)`)
	quotedRe    = regexp.MustCompile(`(""|'')\s*\{`)
	dimensionRe = regexp.MustCompile(`missingDimensionStrategy[\s(]+.+,\s*(""|'')`)
	nameRe      = regexp.MustCompile(`^[\w-]+$`)
)

// defaultReserved lists Gradle DSL blocks and Groovy/Kotlin keywords that the
// block rule would otherwise report as flavors.
var defaultReserved = []string{
	"android", "defaultConfig", "buildTypes", "productFlavors", "flavorDimensions",
	"release", "debug", "signingConfigs", "sourceSets", "main", "test", "androidTest",
	"dependencies", "plugins", "repositories", "buildscript", "allprojects", "subprojects",
	"compileOptions", "kotlinOptions", "composeOptions", "buildFeatures", "dataBinding",
	"viewBinding", "packagingOptions", "packaging", "lintOptions", "lint", "testOptions",
	"unitTests", "externalNativeBuild", "cmake", "ndkBuild", "ndk", "splits", "abi",
	"density", "aaptOptions", "androidResources", "bundle", "language", "kotlin", "java",
	"toolchain", "resources", "jniLibs", "configurations", "manifestPlaceholders",
	"variantFilter", "applicationVariants", "libraryVariants", "outputs", "tasks",
	"afterEvaluate", "ext", "all", "each", "forEach", "it", "configureEach",
	"if", "else", "try", "catch", "finally", "for", "while", "do", "when", "switch",
	"apply", "with", "also", "let", "run",
}

// Candidate is one flavor name matched by one rule.
type Candidate struct {
	Name string
	Rule string
}

// Discoverer holds the sieve configuration.
type Discoverer struct {
	scopeBlock string
	scopeRe    *regexp.Regexp
	reserved   map[string]struct{}
}

// Option configures a Discoverer.
type Option func(*Discoverer)

// WithScopeBlock restricts the declaration rules to the bodies of the named
// block when the text contains one. An empty name scans the whole text.
func WithScopeBlock(name string) Option {
	return func(d *Discoverer) {
		d.scopeBlock = name
	}
}

// WithReservedNames replaces the reserved-name filter.
func WithReservedNames(names ...string) Option {
	return func(d *Discoverer) {
		d.reserved = make(map[string]struct{}, len(names))
		for _, n := range names {
			d.reserved[n] = struct{}{}
		}
	}
}

// New creates a Discoverer scoped to productFlavors with the default
// reserved-name filter.
func New(opts ...Option) *Discoverer {
	d := &Discoverer{scopeBlock: DefaultScopeBlock}
	WithReservedNames(defaultReserved...)(d)
	for _, opt := range opts {
		opt(d)
	}
	if d.scopeBlock != "" {
		d.scopeRe = regexp.MustCompile(`\b` + regexp.QuoteMeta(d.scopeBlock) + `\s*\{`)
	}
	return d
}

// Discover returns the deduplicated flavor names found in text, sorted
// ascending. Empty input or no matches yields an empty slice.
func Discover(text string) []string {
	return New().Discover(text)
}

// DiscoverFile reads path and runs Discover over its contents.
func DiscoverFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read build configuration: %w", err)
	}
	return Discover(string(data)), nil
}

// Discover returns the deduplicated, sorted flavor names found in text.
func (d *Discoverer) Discover(text string) []string {
	seen := make(map[string]struct{})
	names := []string{}
	for _, c := range d.Scan(text) {
		if _, dup := seen[c.Name]; dup {
			continue
		}
		seen[c.Name] = struct{}{}
		names = append(names, c.Name)
	}
	sort.Strings(names)
	return names
}

// Scan applies every rule and returns all accepted candidates in rule order.
// The same name may appear more than once when several rules match it.
func (d *Discoverer) Scan(text string) []Candidate {
	if text == "" {
		return nil
	}

	s := sanitize(text)
	var out []Candidate

	add := func(name, rule string) {
		if len(name) < minNameLength || !nameRe.MatchString(name) {
			return
		}
		if _, reserved := d.reserved[name]; reserved {
			return
		}
		out = append(out, Candidate{Name: name, Rule: rule})
	}

	for _, scope := range d.scopes(s.text) {
		body := s.text[scope[0]:scope[1]]

		for _, m := range blockRe.FindAllStringSubmatchIndex(body, -1) {
			add(body[m[2]:m[3]], RuleBlock)
		}

		for _, m := range factoryRe.FindAllStringSubmatchIndex(body, -1) {
			if m[2] >= 0 {
				add(body[m[2]:m[3]], RuleFactory)
				continue
			}
			if lit, ok := s.literalAt(scope[0] + m[4]); ok {
				add(lit, RuleFactory)
			}
		}

		for _, m := range quotedRe.FindAllStringSubmatchIndex(body, -1) {
			if lit, ok := s.literalAt(scope[0] + m[2]); ok {
				add(lit, RuleQuoted)
			}
		}
	}

	// Dimension references point at flavors declared elsewhere, so they are
	// never scoped.
	for _, m := range dimensionRe.FindAllStringSubmatchIndex(s.text, -1) {
		if lit, ok := s.literalAt(m[2]); ok {
			add(lit, RuleDimension)
		}
	}

	return out
}

// scopes returns the byte ranges the declaration rules should scan.
func (d *Discoverer) scopes(text string) [][2]int {
	if d.scopeRe != nil {
		if locs := d.scopeRe.FindAllStringIndex(text, -1); len(locs) > 0 {
			return blockBodies(text, locs)
		}
	}
	return [][2]int{{0, len(text)}}
}
