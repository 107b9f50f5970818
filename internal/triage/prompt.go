package triage

import (
	"fmt"
	"strings"
)

// SystemPrompt instructs a model to answer with the diagnosis JSON only.
const SystemPrompt = `You are a cardiology triage assistant for a medical education simulator.
Given a patient's clinical presentation, respond ONLY with a valid JSON object containing exactly these keys:
{
  "diagnosis": "<full diagnosis name>",
  "affected_region": "<anatomical region of the heart>",
  "artery_id": "<one of: LAD, RCA, LCX>",
  "urgency": "<Immediate | Urgent | Elective>",
  "recommended_intervention": "<specific intervention>",
  "reasoning": "<2-3 sentence clinical reasoning>",
  "confidence": <float between 0 and 1>
}
Do not include any text outside the JSON object.`

// BuildPrompt renders the clinical input as the user turn.
func BuildPrompt(in ClinicalInput) string {
	risk := "None"
	if len(in.RiskFactors) > 0 {
		risk = strings.Join(in.RiskFactors, ", ")
	}
	var b strings.Builder
	b.WriteString("Patient presentation:\n")
	fmt.Fprintf(&b, "- Age: %d years\n", in.Age)
	fmt.Fprintf(&b, "- Symptoms: %s\n", in.Symptoms)
	fmt.Fprintf(&b, "- Chest pain duration: %d minutes\n", in.ChestPainDuration)
	fmt.Fprintf(&b, "- ECG findings: %s\n", in.ECGFindings)
	fmt.Fprintf(&b, "- Troponin level: %g ng/mL (normal < 0.04)\n", in.TroponinLevel)
	fmt.Fprintf(&b, "- Risk factors: %s\n\n", risk)
	b.WriteString("Provide your structured diagnosis as JSON.")
	return b.String()
}
