package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jimdaga/ideaforge/internal/models"
)

// sectionMarker prefixes the line naming the section in a regeneration prompt.
const sectionMarker = "REGENERATE SECTION: "

var sectionGuidance = map[string]string{
	models.SectionSummary:              `"summary": "2-3 sentence verdict on the idea"`,
	models.SectionMarketSize:           `"market_size": {"tam": "...", "sam": "...", "som": "...", "methodology": "..."}`,
	models.SectionTargetAudience:       `"target_audience": [{"segment": "...", "pain": "..."}]`,
	models.SectionCompetitors:          `"competitors": [{"name": "...", "strength": "...", "weakness": "..."}]`,
	models.SectionSWOT:                 `"swot": {"strengths": [], "weaknesses": [], "opportunities": [], "threats": []}`,
	models.SectionTechnicalFeasibility: `"technical_feasibility": {"complexity": "low|medium|high", "stack": [], "risks": []}`,
	models.SectionCostEstimate:         `"cost_estimate": {"mvp": "...", "monthly_burn": "..."}`,
	models.SectionPricing:              `"pricing": {"model": "...", "tiers": [{"name": "...", "price": "..."}]}`,
	models.SectionRoadmap:              `"roadmap": [{"phase": "...", "duration": "...", "goals": []}]`,
	models.SectionPitch:                `"pitch": "one-paragraph investor pitch"`,
	models.SectionRiskAssessment:       `"risk_assessment": [{"risk": "...", "likelihood": "low|medium|high", "mitigation": "..."}]`,
	models.SectionGoToMarket:           `"go_to_market": {"channels": [], "first_100_customers": "..."}`,
}

// BuildAnalysisPrompt asks for a full report on the idea.
func BuildAnalysisPrompt(idea *models.Idea) string {
	var b strings.Builder

	b.WriteString("Analyze the following startup idea and produce a complete business analysis.\n\n")
	writeIdea(&b, idea)

	b.WriteString("\nRespond with a single JSON object with exactly these top-level keys:\n{\n")
	for i, section := range models.Sections {
		b.WriteString("  ")
		b.WriteString(sectionGuidance[section])
		if i < len(models.Sections)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("}\n\n")
	b.WriteString("Guidelines:\n")
	b.WriteString("- Use concrete numbers, named competitors and realistic timelines\n")
	b.WriteString("- Base market sizing on a stated methodology\n")
	b.WriteString("- Respond ONLY with valid JSON. Do not include any markdown formatting or explanations.\n")

	return b.String()
}

// BuildSectionPrompt asks for a fresh version of one section, given the
// current value for context.
func BuildSectionPrompt(idea *models.Idea, section string, current json.RawMessage) string {
	var b strings.Builder

	b.WriteString(sectionMarker)
	b.WriteString(section)
	b.WriteString("\n\nRewrite one section of an existing business analysis for this startup idea.\n\n")
	writeIdea(&b, idea)

	if len(current) > 0 {
		fmt.Fprintf(&b, "\nCurrent %s section (improve on it, do not repeat it verbatim):\n%s\n", section, current)
	}

	guidance, ok := sectionGuidance[section]
	if !ok {
		guidance = fmt.Sprintf("%q: ...", section)
	}
	fmt.Fprintf(&b, "\nRespond with a JSON object of the form:\n{%s}\n", guidance)
	b.WriteString("Respond ONLY with valid JSON. Do not include any markdown formatting or explanations.\n")

	return b.String()
}

func writeIdea(b *strings.Builder, idea *models.Idea) {
	fmt.Fprintf(b, "Title: %s\n", idea.Title)
	if idea.OneLiner != "" {
		fmt.Fprintf(b, "One-liner: %s\n", idea.OneLiner)
	}
	if idea.Description != "" {
		fmt.Fprintf(b, "Description:\n%s\n", idea.Description)
	}
	if len(idea.Attachments) > 0 {
		b.WriteString("Attachments:\n")
		for _, a := range idea.Attachments {
			fmt.Fprintf(b, "- %s\n", summarizeAttachment(a))
		}
	}
}

func summarizeAttachment(a models.Attachment) string {
	name := a.FileName
	if name == "" {
		name = a.URL
	}
	if a.URL != "" && a.URL != name {
		return fmt.Sprintf("[%s] %s (%s)", a.Type, name, a.URL)
	}
	return fmt.Sprintf("[%s] %s", a.Type, name)
}

func sectionFromPrompt(prompt string) (string, bool) {
	if !strings.HasPrefix(prompt, sectionMarker) {
		return "", false
	}
	line := strings.TrimPrefix(prompt, sectionMarker)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	return line, line != ""
}
