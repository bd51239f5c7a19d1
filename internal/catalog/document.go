package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed default_rules.yaml
var defaultRules []byte

type document struct {
	Policy       policyDoc        `yaml:"policy"`
	Products     []productDoc     `yaml:"products"`
	FamilyRules  []ruleDoc        `yaml:"family_rules"`
	ProductRules []ruleDoc        `yaml:"product_rules"`
	PricingRoles []pricingRoleDoc `yaml:"pricing_roles"`
}

type policyDoc struct {
	UnitGroupSize           float64            `yaml:"unit_group_size"`
	HoursPerUnitGroup       float64            `yaml:"hours_per_unit_group"`
	PMProductThreshold      int                `yaml:"pm_product_threshold"`
	PMUnitThreshold         float64            `yaml:"pm_unit_threshold"`
	PMSharePercent          float64            `yaml:"pm_share_percent"`
	FallbackRatePerHour     float64            `yaml:"fallback_rate_per_hour"`
	SegmentHours            map[string]float64 `yaml:"segment_hours"`
	RemovalEligibleSegments []string           `yaml:"removal_eligible_segments"`
	FamilyUnits             map[string]string  `yaml:"family_units"`
}

type productDoc struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	Category  string `yaml:"category"`
	SortOrder int    `yaml:"sort_order"`
	Active    *bool  `yaml:"active"`
}

type ruleDoc struct {
	Product      string  `yaml:"product"`
	Family       string  `yaml:"family"`
	Kind         string  `yaml:"kind"`
	Hours        float64 `yaml:"hours"`
	HoursPerUnit float64 `yaml:"hours_per_unit"`
	UnitField    string  `yaml:"unit_field"`
}

type pricingRoleDoc struct {
	ID                 string  `yaml:"id"`
	RoleName           string  `yaml:"role_name"`
	DefaultRatePerHour float64 `yaml:"default_rate_per_hour"`
	Active             *bool   `yaml:"active"`
}

// Default returns the rule book compiled into the binary.
func Default() (RuleBook, error) {
	return Parse(bytes.NewReader(defaultRules))
}

// LoadFile reads a rule book from a YAML file. An empty path yields Default.
func LoadFile(path string) (RuleBook, error) {
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return RuleBook{}, fmt.Errorf("open rule book: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes and validates a YAML rule book.
func Parse(r io.Reader) (RuleBook, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return RuleBook{}, fmt.Errorf("decode rule book: %w", err)
	}
	return doc.build()
}

func (d document) build() (RuleBook, error) {
	products := make([]Product, 0, len(d.Products))
	seen := make(map[string]bool, len(d.Products))
	for _, p := range d.Products {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return RuleBook{}, fmt.Errorf("product %q: id is required", p.Name)
		}
		if seen[id] {
			return RuleBook{}, fmt.Errorf("product %q: duplicate id", id)
		}
		seen[id] = true
		products = append(products, Product{
			ID:        id,
			Name:      p.Name,
			Category:  p.Category,
			IsActive:  p.Active == nil || *p.Active,
			SortOrder: p.SortOrder,
		})
	}

	productRules := make(map[string]HoursRule, len(d.ProductRules))
	for _, r := range d.ProductRules {
		if !seen[r.Product] {
			return RuleBook{}, fmt.Errorf("product rule references unknown product %q", r.Product)
		}
		if _, dup := productRules[r.Product]; dup {
			return RuleBook{}, fmt.Errorf("product %q has more than one rule", r.Product)
		}
		rule, err := r.toRule(ScopeProduct, r.Product)
		if err != nil {
			return RuleBook{}, err
		}
		productRules[r.Product] = rule
	}

	familyRules := make(map[string]HoursRule, len(d.FamilyRules))
	for _, r := range d.FamilyRules {
		if r.Family == "" {
			return RuleBook{}, fmt.Errorf("family rule: family is required")
		}
		if _, dup := familyRules[r.Family]; dup {
			return RuleBook{}, fmt.Errorf("family %q has more than one rule", r.Family)
		}
		rule, err := r.toRule(ScopeFamily, r.Family)
		if err != nil {
			return RuleBook{}, err
		}
		familyRules[r.Family] = rule
	}

	roles := make([]PricingRole, 0, len(d.PricingRoles))
	for _, r := range d.PricingRoles {
		if r.ID == "" || strings.TrimSpace(r.RoleName) == "" {
			return RuleBook{}, fmt.Errorf("pricing role: id and role_name are required")
		}
		if r.DefaultRatePerHour < 0 {
			return RuleBook{}, fmt.Errorf("pricing role %q: default rate must be >= 0", r.ID)
		}
		roles = append(roles, PricingRole{
			ID:                 r.ID,
			RoleName:           strings.TrimSpace(r.RoleName),
			DefaultRatePerHour: decimal.NewFromFloat(r.DefaultRatePerHour),
			IsActive:           r.Active == nil || *r.Active,
		})
	}

	return NewRuleBook(products, productRules, familyRules, roles, d.Policy.toPolicy()), nil
}

func (r ruleDoc) toRule(scope RuleScope, key string) (HoursRule, error) {
	kind := RuleKind(r.Kind)
	switch kind {
	case RuleFixed, RulePerUnit:
	case "":
		kind = RuleFixed
	default:
		return HoursRule{}, fmt.Errorf("%s rule %q: unknown kind %q", scope, key, r.Kind)
	}
	if r.Hours < 0 || r.HoursPerUnit < 0 {
		return HoursRule{}, fmt.Errorf("%s rule %q: hours must be >= 0", scope, key)
	}
	return HoursRule{
		Scope:        scope,
		Key:          key,
		Kind:         kind,
		Hours:        decimal.NewFromFloat(r.Hours),
		HoursPerUnit: decimal.NewFromFloat(r.HoursPerUnit),
		UnitField:    UnitField(r.UnitField),
	}, nil
}

func (p policyDoc) toPolicy() Policy {
	segments := make(map[string]decimal.Decimal, len(p.SegmentHours))
	for code, h := range p.SegmentHours {
		segments[NormalizeSegment(code)] = decimal.NewFromFloat(h)
	}
	families := make(map[string]UnitField, len(p.FamilyUnits))
	for family, field := range p.FamilyUnits {
		families[family] = UnitField(field)
	}
	return Policy{
		UnitGroupSize:           decimal.NewFromFloat(p.UnitGroupSize),
		HoursPerUnitGroup:       decimal.NewFromFloat(p.HoursPerUnitGroup),
		PMProductThreshold:      p.PMProductThreshold,
		PMUnitThreshold:         decimal.NewFromFloat(p.PMUnitThreshold),
		PMSharePercent:          decimal.NewFromFloat(p.PMSharePercent),
		FallbackRatePerHour:     decimal.NewFromFloat(p.FallbackRatePerHour),
		SegmentHours:            segments,
		RemovalEligibleSegments: p.RemovalEligibleSegments,
		FamilyUnits:             families,
	}
}
