package models

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Report section names. Each is both a column on Analysis and a key in RawOutput.
const (
	SectionSummary              = "summary"
	SectionMarketSize           = "market_size"
	SectionTargetAudience       = "target_audience"
	SectionCompetitors          = "competitors"
	SectionSWOT                 = "swot"
	SectionTechnicalFeasibility = "technical_feasibility"
	SectionCostEstimate         = "cost_estimate"
	SectionPricing              = "pricing"
	SectionRoadmap              = "roadmap"
	SectionPitch                = "pitch"
	SectionRiskAssessment       = "risk_assessment"
	SectionGoToMarket           = "go_to_market"
)

// Sections lists every named report section in display order.
var Sections = []string{
	SectionSummary,
	SectionMarketSize,
	SectionTargetAudience,
	SectionCompetitors,
	SectionSWOT,
	SectionTechnicalFeasibility,
	SectionCostEstimate,
	SectionPricing,
	SectionRoadmap,
	SectionPitch,
	SectionRiskAssessment,
	SectionGoToMarket,
}

// Analysis is one generated report for an Idea.
//
// RawOutput holds every section the provider returned, keyed by section name.
// Named section columns mirror their RawOutput entry and must only be written
// through SetSection so the two never drift apart.
type Analysis struct {
	gorm.Model
	IdeaID       uint   `gorm:"not null;index"`
	UserID       uint   `gorm:"not null;index"`
	GenerationID string `gorm:"column:generation_id;uniqueIndex;not null"`

	Summary              datatypes.JSON `gorm:"type:jsonb"`
	MarketSize           datatypes.JSON `gorm:"column:market_size;type:jsonb"`
	TargetAudience       datatypes.JSON `gorm:"column:target_audience;type:jsonb"`
	Competitors          datatypes.JSON `gorm:"type:jsonb"`
	SWOT                 datatypes.JSON `gorm:"column:swot;type:jsonb"`
	TechnicalFeasibility datatypes.JSON `gorm:"column:technical_feasibility;type:jsonb"`
	CostEstimate         datatypes.JSON `gorm:"column:cost_estimate;type:jsonb"`
	Pricing              datatypes.JSON `gorm:"type:jsonb"`
	Roadmap              datatypes.JSON `gorm:"type:jsonb"`
	Pitch                datatypes.JSON `gorm:"type:jsonb"`
	RiskAssessment       datatypes.JSON `gorm:"column:risk_assessment;type:jsonb"`
	GoToMarket           datatypes.JSON `gorm:"column:go_to_market;type:jsonb"`

	RawOutput datatypes.JSON `gorm:"column:raw_output;type:jsonb;not null"`
}

// IsSection reports whether name is a known report section.
func IsSection(name string) bool {
	for _, s := range Sections {
		if s == name {
			return true
		}
	}
	return false
}

// NewAnalysis builds an Analysis from a full provider result.
func NewAnalysis(ideaID, userID uint, generationID string, result map[string]any) (*Analysis, error) {
	a := &Analysis{
		IdeaID:       ideaID,
		UserID:       userID,
		GenerationID: generationID,
	}

	raw := make(map[string]json.RawMessage, len(result))
	for name, value := range result {
		b, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal section %s: %w", name, err)
		}
		raw[name] = b
		if field := a.sectionField(name); field != nil {
			*field = datatypes.JSON(b)
		}
	}

	out, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal raw output: %w", err)
	}
	a.RawOutput = datatypes.JSON(out)
	return a, nil
}

// SetSection replaces one section in both its named column and RawOutput.
func (a *Analysis) SetSection(name string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal section %s: %w", name, err)
	}

	raw, err := a.RawSections()
	if err != nil {
		return err
	}
	raw[name] = b

	out, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to marshal raw output: %w", err)
	}
	a.RawOutput = datatypes.JSON(out)

	if field := a.sectionField(name); field != nil {
		*field = datatypes.JSON(b)
	}
	return nil
}

// Section returns the named column value for a section, if it has one.
func (a *Analysis) Section(name string) (datatypes.JSON, bool) {
	field := a.sectionField(name)
	if field == nil || len(*field) == 0 {
		return nil, false
	}
	return *field, true
}

// RawSections decodes RawOutput into its per-section values.
func (a *Analysis) RawSections() (map[string]json.RawMessage, error) {
	raw := make(map[string]json.RawMessage)
	if len(a.RawOutput) == 0 {
		return raw, nil
	}
	if err := json.Unmarshal(a.RawOutput, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode raw output: %w", err)
	}
	if raw == nil {
		raw = make(map[string]json.RawMessage)
	}
	return raw, nil
}

func (a *Analysis) sectionField(name string) *datatypes.JSON {
	switch name {
	case SectionSummary:
		return &a.Summary
	case SectionMarketSize:
		return &a.MarketSize
	case SectionTargetAudience:
		return &a.TargetAudience
	case SectionCompetitors:
		return &a.Competitors
	case SectionSWOT:
		return &a.SWOT
	case SectionTechnicalFeasibility:
		return &a.TechnicalFeasibility
	case SectionCostEstimate:
		return &a.CostEstimate
	case SectionPricing:
		return &a.Pricing
	case SectionRoadmap:
		return &a.Roadmap
	case SectionPitch:
		return &a.Pitch
	case SectionRiskAssessment:
		return &a.RiskAssessment
	case SectionGoToMarket:
		return &a.GoToMarket
	}
	return nil
}
