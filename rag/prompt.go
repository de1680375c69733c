package rag

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"case-explainer/prompts"
)

// RequiredDocuments are listed by the degraded template.
var RequiredDocuments = []string{
	"Emirates ID",
	"Bank Statements",
	"Resume",
	"Assets/Liabilities statement",
	"Credit Report",
}

// currencyFields are rendered with the currency marker appended.
var currencyFields = map[string]bool{
	"monthly_income":    true,
	"monthly_expenses":  true,
	"monthly_salary":    true,
	"total_assets":      true,
	"total_liabilities": true,
	"support_amount":    true,
	"total_outstanding": true,
}

// PromptAssembler renders ranked context into a bounded prompt.
type PromptAssembler struct {
	maxChars int
	currency string
}

// NewPromptAssembler returns an assembler. maxChars <= 0 disables the size bound.
func NewPromptAssembler(maxChars int, currency string) *PromptAssembler {
	return &PromptAssembler{maxChars: maxChars, currency: currency}
}

// IsDegraded reports whether cc must be answered with the guardrail template.
func IsDegraded(cc *CaseContext) bool {
	return cc == nil || !cc.HasRealData || !cc.IsFullyProcessed
}

// Build returns the prompt and whether the guardrail template was used. The state is
// decided once from the context flags; fragments are ignored in degraded mode.
func (p *PromptAssembler) Build(question string, qt QueryType, cc *CaseContext, frags []RankedFragment) (string, bool, error) {
	if IsDegraded(cc) {
		prompt, err := p.degraded(question, cc)
		return prompt, true, err
	}
	prompt, err := p.normal(question, qt, frags)
	return prompt, false, err
}

func (p *PromptAssembler) degraded(question string, cc *CaseContext) (string, error) {
	data := prompts.DegradedCaseData{
		Question:          question,
		ApplicantName:     "the applicant",
		Status:            "PENDING",
		RequiredDocuments: strings.Join(RequiredDocuments, ", "),
	}
	if cc != nil {
		data.CaseID = cc.CaseID
		if app := cc.Application; app != nil {
			if app.ApplicantName != "" {
				data.ApplicantName = app.ApplicantName
			}
			if s := strings.TrimSpace(app.Status); s != "" {
				data.Status = strings.ToUpper(s)
			}
		}
	}
	var buf bytes.Buffer
	if err := prompts.DegradedCase().Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render degraded prompt: %w", err)
	}
	return buf.String(), nil
}

func (p *PromptAssembler) normal(question string, qt QueryType, frags []RankedFragment) (string, error) {
	var head bytes.Buffer
	err := prompts.AnswerPreamble().Execute(&head, prompts.AnswerPreambleData{
		SystemInstruction: systemInstruction(qt),
		CurrencyMarker:    p.currency,
	})
	if err != nil {
		return "", fmt.Errorf("render answer preamble: %w", err)
	}

	tail := "\nUSER QUESTION: " + question + "\n\n" + prompts.AnswerInstructions()

	var body strings.Builder
	used := head.Len() + len(tail)
	for _, f := range frags {
		section := p.renderSection(f)
		if !f.AlwaysIncluded && !f.Comparison && p.maxChars > 0 && used+len(section) > p.maxChars {
			continue
		}
		body.WriteString(section)
		used += len(section)
	}

	return head.String() + "\n" + body.String() + tail, nil
}

func (p *PromptAssembler) renderSection(f RankedFragment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### %s\n", strings.ToUpper(strings.ReplaceAll(f.Source, "_", " ")))
	for _, k := range sortedKeys(f.Fields) {
		v := f.Fields[k]
		if isEmptyValue(v) {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", k, p.formatValue(k, v))
	}
	for _, item := range f.Items {
		fmt.Fprintf(&b, "- %s\n", item)
	}
	b.WriteByte('\n')
	return b.String()
}

func (p *PromptAssembler) formatValue(key string, v any) string {
	var s string
	switch x := v.(type) {
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		s = strconv.FormatFloat(float64(x), 'f', -1, 32)
	case []string:
		s = strings.Join(x, "; ")
	default:
		s = fmt.Sprint(v)
	}
	if currencyFields[key] && p.currency != "" {
		s += " " + p.currency
	}
	return s
}

func systemInstruction(qt QueryType) string {
	switch qt {
	case QueryExplanation:
		return prompts.ExplanationInstruction
	case QuerySimulation:
		return prompts.SimulationInstruction
	default:
		return prompts.GeneralInstruction
	}
}
