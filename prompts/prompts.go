package prompts

import (
	_ "embed"
	"text/template"
)

// Embedded prompt files

//go:embed degraded_case.txt
var degradedCase string

//go:embed answer_preamble.txt
var answerPreamble string

//go:embed answer_instructions.txt
var answerInstructions string

var (
	degradedCaseTmpl   = template.Must(template.New("degraded_case").Parse(degradedCase))
	answerPreambleTmpl = template.Must(template.New("answer_preamble").Parse(answerPreamble))
)

// DegradedCaseData fills the no-data guardrail template.
type DegradedCaseData struct {
	Question          string
	CaseID            string
	ApplicantName     string
	Status            string
	RequiredDocuments string
}

// AnswerPreambleData fills the header of a normal answer prompt.
type AnswerPreambleData struct {
	SystemInstruction string
	CurrencyMarker    string
}

func DegradedCase() *template.Template   { return degradedCaseTmpl }
func AnswerPreamble() *template.Template { return answerPreambleTmpl }
func AnswerInstructions() string         { return answerInstructions }

// System instructions by question type.
const (
	GeneralInstruction     = "You are a helpful social support assistant. Answer questions accurately using the case data provided."
	ExplanationInstruction = "You are an expert social support advisor. Explain decisions clearly using specific data from the case."
	SimulationInstruction  = "You are a social support analyst. Analyze hypothetical scenarios based on the case data and comparable cases."
)
