package api

import (
	"fmt"
	"strings"
)

var mentorStepNames = map[string]string{
	"blocked": "initial assessment of STEMI occlusion",
	"guide":   "guidewire navigation across the coronary lesion",
	"balloon": "balloon pre-dilation (PTCA)",
	"stent":   "drug-eluting stent deployment",
	"flow":    "post-PCI care and flow restoration",
}

func mentorPrompt(req MentorRequest) string {
	step := mentorStepNames[req.CurrentStep]
	if step == "" {
		step = req.CurrentStep
	}
	var b strings.Builder
	b.WriteString("You are an expert interventional cardiologist mentoring a junior medical student ")
	b.WriteString("who is alone at a hospital with a patient in cardiac emergency.\n\n")
	fmt.Fprintf(&b, "Patient: %s with %s occlusion (%s). Urgency: %s. Planned intervention: %s.\n\n",
		req.Diagnosis, req.ArteryID, req.AffectedRegion, req.Urgency, req.RecommendedIntervention)
	fmt.Fprintf(&b, "Current simulation step: %s.\n\n", step)
	if q := strings.TrimSpace(req.Question); q != "" {
		fmt.Fprintf(&b, "The student asks: '%s'\n\n", q)
		b.WriteString("Provide a clear, practical 3-4 sentence answer. Include one safety warning. ")
		b.WriteString("Use simple language the student can act on immediately. Format as plain text.")
		return b.String()
	}
	b.WriteString("Provide step-by-step instructions for this step. ")
	b.WriteString("Format as numbered steps. Include what to watch for, what to avoid, and one emergency fallback. ")
	b.WriteString("Keep it under 200 words. Plain text, no markdown headers.")
	return b.String()
}

func explainPrompt(req ExplainRequest) string {
	audience := "for a junior doctor"
	if req.Audience == "patient" {
		audience = "for a patient with no medical background"
	}
	return fmt.Sprintf("Explain the following cardiac diagnosis %s in 3-4 sentences:\n"+
		"Diagnosis: %s\nAffected region: %s\nIntervention: %s\nClinical reasoning: %s",
		audience, req.Diagnosis, req.AffectedRegion, req.RecommendedIntervention, req.Reasoning)
}

func emergencyPrompt(req EmergencyRequest) string {
	return fmt.Sprintf(`You are an emergency medicine AI guiding a cardiac emergency.

Patient condition:
- Diagnosis: %s
- Urgency: %s
- Affected artery: %s
- Description: %s

Current step: %s

Provide IMMEDIATE visual guidance for a student who is ALONE with this patient and no specialist is available.

Include:
1. Exact hand and equipment positioning
2. Landmarks and anatomical points to identify
3. Step-by-step sequence of actions
4. Real-time warning signs to watch for
5. Critical safety checks

Format as numbered steps with visual descriptions. Be specific about locations and procedures.`,
		req.Diagnosis, req.Urgency, req.ArteryID, req.AffectedRegion, req.CurrentStep)
}

func imageAnalysisPrompt(diagnosis, urgency string) string {
	return fmt.Sprintf(`You are analysing a medical emergency from an image.

Patient information:
- Preliminary diagnosis: %s
- Urgency level: %s

For the provided image of the patient or procedure area:

1. IDENTIFY the current situation: patient positioning, visible equipment, signs of distress or complications.
2. PROVIDE IMMEDIATE GUIDANCE: what to do next, positioning or technique adjustments, visible warning signs.
3. SAFETY CHECKS: what could go wrong from the current positioning and corrections needed now.

Keep the response brief, actionable and visual, referencing what you see.`, diagnosis, urgency)
}

func storyboardPrompt(req VideoGenerationRequest) string {
	var steps strings.Builder
	for i, step := range req.Steps {
		fmt.Fprintf(&steps, "  %d. %s\n", i+1, step)
	}
	return fmt.Sprintf(`Generate a detailed visual description for an instructional medical video.

Procedure: %s
Urgency: %s
Duration: %d seconds
Language: %s

Steps to visualize:
%s
For each step, provide:
1. Visual scene description (what the viewer sees)
2. Anatomical landmarks highlighted
3. Hand positioning or equipment placement
4. Critical safety points
5. Visual cues indicating success

Format as frame-by-frame video storyboard.`, req.Procedure, req.Urgency, req.Duration, req.Language, steps.String())
}

func keyframePrompt(req VideoGenerationRequest, frames []string) string {
	first := req.Procedure
	if len(frames) > 0 {
		first = frames[0]
	}
	return fmt.Sprintf("Photorealistic medical training illustration, clinical lighting, no text overlays. "+
		"Procedure: %s. Scene: %s.", req.Procedure, first)
}

func videoPrompt(req VideoGenerationRequest, description string) string {
	if r := []rune(description); len(r) > 1500 {
		description = string(r[:1500])
	}
	return fmt.Sprintf("Instructional medical training video, %s procedure, urgency %s. %s",
		req.Procedure, req.Urgency, description)
}

func narrationPrompt(frame, procedure, urgency string) string {
	return fmt.Sprintf(`For this medical procedure frame, provide:
1. Visual narration (what to look for)
2. Anatomical landmarks (point to on screen)
3. Hand positioning guidance
4. Success indicators
5. Common errors to avoid

Frame: %s
Procedure: %s
Urgency: %s

Keep response concise for real-time educational use.`, frame, procedure, urgency)
}

func techniquePrompt(procedure, description string) string {
	if strings.TrimSpace(description) == "" {
		description = "Student performing technique"
	}
	return fmt.Sprintf(`Analyze this %s technique performance:

Procedure: %s
Description: %s

Evaluate and provide:
1. What's being done correctly
2. Specific corrections needed
3. Safety concerns
4. Overall technique score (0-100%%)

Format as actionable feedback for immediate improvement.`, procedure, procedure, description)
}
