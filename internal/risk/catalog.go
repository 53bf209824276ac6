package risk

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/stancewatch/internal/model"
)

// Tier identifies which trigger table matched. Tiers are evaluated in the
// order control, hard, soft, and evaluation stops at the first tier that
// produces a match.
type Tier string

const (
	TierNone    Tier = ""
	TierControl Tier = "control"
	TierHard    Tier = "hard"
	TierSoft    Tier = "soft"
	TierGeneral Tier = "general"
)

// Trigger is one compiled catalog entry.
type Trigger struct {
	ID       string
	Category string
	Stakes   model.Stakes
	Pattern  *regexp.Regexp
}

// Catalog holds the three ordered trigger tables. Within a table, the first
// matching trigger wins.
type Catalog struct {
	Control []Trigger
	Hard    []Trigger
	Soft    []Trigger
}

// PatternSpec is the YAML form of a trigger.
type PatternSpec struct {
	ID       string `yaml:"id"`
	Category string `yaml:"category"`
	Stakes   string `yaml:"stakes"`
	Pattern  string `yaml:"pattern"`
}

// CatalogFile is the YAML layout of a catalog extension file.
type CatalogFile struct {
	Control []PatternSpec `yaml:"control"`
	Hard    []PatternSpec `yaml:"hard"`
	Soft    []PatternSpec `yaml:"soft"`
}

// Pattern categories.
const (
	CategoryCrisis         = "crisis"
	CategorySelfHarm       = "self_harm"
	CategoryExternalThreat = "external_threat"
	CategoryWeapons        = "weapons"
	CategoryChildSafety    = "child_safety"
	CategoryIllegalAccess  = "illegal_access"
	CategoryViolence       = "violence"
	CategoryFinancialRisk  = "financial_risk"
	CategoryHealthDecision = "health_decision"
	CategoryLegalAction    = "legal_action_without_counsel"
	CategoryIrreversible   = "irreversible_decision"
)

// DefaultCatalog is the built-in trigger catalog.
var DefaultCatalog = CatalogFile{
	Control: []PatternSpec{
		{ID: "control.self_harm", Category: CategorySelfHarm, Stakes: "critical",
			Pattern: `\b(kill|hurt|harm|cut|killing|hurting|harming|cutting) myself\b`},
		{ID: "control.suicidal_ideation", Category: CategoryCrisis, Stakes: "critical",
			Pattern: `\b(suicid(e|al)|want to die|end my life|end it all|no reason to live|better off dead)\b`},
		{ID: "control.self_harm", Category: CategorySelfHarm, Stakes: "critical",
			Pattern: `\bself[- ]?harm(ing)?\b`},
		{ID: "control.external_threat", Category: CategoryExternalThreat, Stakes: "critical",
			Pattern: `\b(someone|he|she|they)('s| is| are)? (going|trying|threatening) to (kill|hurt|attack) me\b`},
		{ID: "control.external_threat", Category: CategoryExternalThreat, Stakes: "critical",
			Pattern: `\bi('m| am) (being|getting) (abused|stalked|threatened|followed)\b`},
	},
	Hard: []PatternSpec{
		{ID: "hard.weapons", Category: CategoryWeapons, Stakes: "critical",
			Pattern: `\b(make|build|create|assemble|synthesi[sz]e)\b.{0,30}\b(bomb|explosives?|pipe bomb|nerve agent|bioweapon|chemical weapon|ghost gun)\b`},
		{ID: "hard.child_safety", Category: CategoryChildSafety, Stakes: "critical",
			Pattern: `\b(child|children|minor|minors|underage|kid)\b.{0,40}\b(sexual|sexy|nude|naked|explicit)\b`},
		{ID: "hard.child_safety", Category: CategoryChildSafety, Stakes: "critical",
			Pattern: `\b(sexual|nude|naked|explicit)\b.{0,40}\b(child|children|minor|minors|underage|kid)\b`},
		{ID: "hard.illegal_access", Category: CategoryIllegalAccess, Stakes: "critical",
			Pattern: `\bhack(ing)? into\b.{0,40}\b(account|email|server|network|phone|database|computer)\b`},
		{ID: "hard.illegal_access", Category: CategoryIllegalAccess, Stakes: "critical",
			Pattern: `\b(steal|dump|crack)\b.{0,20}\b(passwords?|credentials|credit card numbers)\b`},
		{ID: "hard.violence", Category: CategoryViolence, Stakes: "critical",
			Pattern: `\bhow (do|can|should) i (kill|hurt|attack|poison)\b.{0,20}\b(him|her|them|someone|somebody|people|my (wife|husband|partner|neighbou?r|boss|family|ex))\b`},
		{ID: "hard.violence", Category: CategoryViolence, Stakes: "critical",
			Pattern: `\b(incite|organi[sz]e|start|plan)\b.{0,20}\b(riot|massacre|shooting|attack on)\b`},
	},
	Soft: []PatternSpec{
		{ID: "soft.financial_concentration", Category: CategoryFinancialRisk, Stakes: "high",
			Pattern: `\b(all|entire|whole)\b.{0,15}\b(savings|retirement|401k|pension|net worth|inheritance)\b.{0,30}\b(into|on|in)\b`},
		{ID: "soft.financial_concentration", Category: CategoryFinancialRisk, Stakes: "high",
			Pattern: `\b(put|invest|bet|move|dump)\b.{0,20}\b(all|everything)\b.{0,20}\b(into|on|in)\b.{0,20}\b(stocks?|crypto|bitcoin|coins?|options|shares)\b`},
		{ID: "soft.financial_concentration", Category: CategoryFinancialRisk, Stakes: "high",
			Pattern: `\b(mortgage|remortgage|sell) (my|the) (house|home)\b.{0,30}\b(invest|crypto|stocks?|bitcoin)\b`},
		{ID: "soft.abandon_treatment", Category: CategoryHealthDecision, Stakes: "high",
			Pattern: `\b(stop|stopping|quit|quitting|skip|skipping|ditch)\b.{0,20}\b(my )?(medications?|meds|treatment|therapy|chemo(therapy)?|insulin|antidepressants?|dialysis)\b`},
		{ID: "soft.legal_without_counsel", Category: CategoryLegalAction, Stakes: "medium",
			Pattern: `\b(sue|suing|file (a )?lawsuit|take (him|her|them) to court)\b.{0,40}\b(without|no)\b.{0,10}\b(a )?(lawyer|attorney|counsel)\b`},
		{ID: "soft.legal_without_counsel", Category: CategoryLegalAction, Stakes: "medium",
			Pattern: `\brepresent myself in (court|my (case|trial|divorce))\b`},
		{ID: "soft.irreversible_today", Category: CategoryIrreversible, Stakes: "high",
			Pattern: `\b(quit my job|resign|file for divorce|divorce|sell my house|drop out|move abroad|cut off my family)\b.{0,30}\b(today|tonight|immediately|right now|right away)\b`},
		{ID: "soft.irreversible_today", Category: CategoryIrreversible, Stakes: "high",
			Pattern: `\b(today|tonight|immediately|right now)\b.{0,20}\b(quit my job|resign|divorce|sell my house|drop out)\b`},
	},
}

// Compile turns a CatalogFile into a Catalog. Patterns are matched
// case-insensitively. Any invalid pattern or stakes value is an error;
// a catalog is never silently weakened.
func Compile(f CatalogFile) (*Catalog, error) {
	control, err := compileTable("control", f.Control)
	if err != nil {
		return nil, err
	}
	hard, err := compileTable("hard", f.Hard)
	if err != nil {
		return nil, err
	}
	soft, err := compileTable("soft", f.Soft)
	if err != nil {
		return nil, err
	}
	return &Catalog{Control: control, Hard: hard, Soft: soft}, nil
}

// NewDefaultCatalog compiles the built-in catalog.
func NewDefaultCatalog() *Catalog {
	c, err := Compile(DefaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("risk: built-in catalog invalid: %v", err))
	}
	return c
}

// LoadCatalog compiles the built-in catalog plus the extension file at path.
// Extension entries are appended after the built-ins of the same tier, so
// built-ins keep precedence. Empty path or missing file returns the built-ins.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return NewDefaultCatalog(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewDefaultCatalog(), nil
		}
		return nil, fmt.Errorf("failed to read risk catalog: %w", err)
	}

	var ext CatalogFile
	if err := yaml.Unmarshal(data, &ext); err != nil {
		return nil, fmt.Errorf("failed to parse risk catalog: %w", err)
	}

	merged := CatalogFile{
		Control: append(append([]PatternSpec{}, DefaultCatalog.Control...), ext.Control...),
		Hard:    append(append([]PatternSpec{}, DefaultCatalog.Hard...), ext.Hard...),
		Soft:    append(append([]PatternSpec{}, DefaultCatalog.Soft...), ext.Soft...),
	}
	return Compile(merged)
}

func compileTable(tier string, specs []PatternSpec) ([]Trigger, error) {
	triggers := make([]Trigger, 0, len(specs))
	for i, s := range specs {
		if s.ID == "" {
			return nil, fmt.Errorf("%s trigger %d: id is required", tier, i)
		}
		stakes, ok := model.ParseStakes(s.Stakes)
		if !ok {
			return nil, fmt.Errorf("%s trigger %q: invalid stakes %q", tier, s.ID, s.Stakes)
		}
		re, err := regexp.Compile("(?i)" + s.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%s trigger %q: %w", tier, s.ID, err)
		}
		triggers = append(triggers, Trigger{
			ID:       s.ID,
			Category: s.Category,
			Stakes:   stakes,
			Pattern:  re,
		})
	}
	return triggers, nil
}
