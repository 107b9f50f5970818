package triage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	validator "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Ariya-rithvik/cardiosim-ai/internal/ai"
)

// Diagnosis is the structured assessment returned by the analyze endpoint.
type Diagnosis struct {
	Diagnosis               string  `json:"diagnosis"`
	AffectedRegion          string  `json:"affected_region"`
	ArteryID                string  `json:"artery_id"`
	Urgency                 string  `json:"urgency"`
	RecommendedIntervention string  `json:"recommended_intervention"`
	Reasoning               string  `json:"reasoning"`
	Confidence              float64 `json:"confidence"`
}

// DefaultConfidence is used when a model omits or garbles its confidence.
const DefaultConfidence = 0.9

var validArteries = map[string]struct{}{"LAD": {}, "RCA": {}, "LCX": {}}

// Normalize upper-cases the artery, maps unknown arteries to LAD and keeps
// confidence within [0, 1].
func (d *Diagnosis) Normalize() {
	d.Diagnosis = strings.TrimSpace(d.Diagnosis)
	d.AffectedRegion = strings.TrimSpace(d.AffectedRegion)
	d.Urgency = strings.TrimSpace(d.Urgency)
	d.RecommendedIntervention = strings.TrimSpace(d.RecommendedIntervention)
	d.Reasoning = strings.TrimSpace(d.Reasoning)
	d.ArteryID = strings.ToUpper(strings.TrimSpace(d.ArteryID))
	if _, ok := validArteries[d.ArteryID]; !ok {
		d.ArteryID = "LAD"
	}
	if math.IsNaN(d.Confidence) || d.Confidence <= 0 || d.Confidence > 1 {
		d.Confidence = DefaultConfidence
	}
}

// modelDiagnosis is the shape a model must produce. Confidence is optional.
type modelDiagnosis struct {
	Diagnosis               string   `json:"diagnosis" jsonschema:"minLength=1"`
	AffectedRegion          string   `json:"affected_region" jsonschema:"minLength=1"`
	ArteryID                string   `json:"artery_id"`
	Urgency                 string   `json:"urgency" jsonschema:"minLength=1"`
	RecommendedIntervention string   `json:"recommended_intervention" jsonschema:"minLength=1"`
	Reasoning               string   `json:"reasoning" jsonschema:"minLength=1"`
	Confidence              *float64 `json:"confidence,omitempty"`
}

const diagnosisSchemaURL = "mem://cardiosim/diagnosis.json"

var (
	schemaOnce sync.Once
	schema     *validator.Schema
	schemaErr  error
)

func diagnosisSchema() (*validator.Schema, error) {
	schemaOnce.Do(func() {
		reflector := &jsonschema.Reflector{
			DoNotReference:            true,
			ExpandedStruct:            true,
			AllowAdditionalProperties: true,
		}
		raw, err := json.Marshal(reflector.Reflect(&modelDiagnosis{}))
		if err != nil {
			schemaErr = fmt.Errorf("marshal diagnosis schema: %w", err)
			return
		}
		compiler := validator.NewCompiler()
		if err := compiler.AddResource(diagnosisSchemaURL, bytes.NewReader(raw)); err != nil {
			schemaErr = fmt.Errorf("add diagnosis schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile(diagnosisSchemaURL)
	})
	return schema, schemaErr
}

// ParseDiagnosis extracts the first JSON object from raw model output,
// validates it and normalizes the result.
func ParseDiagnosis(raw string) (Diagnosis, error) {
	block := ai.ExtractJSONObject(raw)
	if block == "" {
		return Diagnosis{}, fmt.Errorf("%w: no JSON object in completion", ai.ErrMalformed)
	}

	var generic any
	if err := json.Unmarshal([]byte(block), &generic); err != nil {
		return Diagnosis{}, fmt.Errorf("%w: %v", ai.ErrMalformed, err)
	}
	sch, err := diagnosisSchema()
	if err != nil {
		return Diagnosis{}, err
	}
	if err := sch.Validate(generic); err != nil {
		return Diagnosis{}, fmt.Errorf("%w: %v", ai.ErrMalformed, err)
	}

	var parsed modelDiagnosis
	if err := json.Unmarshal([]byte(block), &parsed); err != nil {
		return Diagnosis{}, fmt.Errorf("%w: %v", ai.ErrMalformed, err)
	}
	d := Diagnosis{
		Diagnosis:               parsed.Diagnosis,
		AffectedRegion:          parsed.AffectedRegion,
		ArteryID:                parsed.ArteryID,
		Urgency:                 parsed.Urgency,
		RecommendedIntervention: parsed.RecommendedIntervention,
		Reasoning:               parsed.Reasoning,
	}
	if parsed.Confidence != nil {
		d.Confidence = *parsed.Confidence
	}
	d.Normalize()
	return d, nil
}

// Decoder is the ai.Decoder for diagnosis completions. The artifact text is
// the normalized diagnosis JSON.
var Decoder ai.Decoder = ai.DecoderFunc(func(raw string) (ai.Artifact, error) {
	d, err := ParseDiagnosis(raw)
	if err != nil {
		return ai.Artifact{}, err
	}
	payload, err := json.Marshal(d)
	if err != nil {
		return ai.Artifact{}, err
	}
	return ai.Artifact{Capability: ai.CapabilityText, Text: string(payload), MIMEType: "application/json"}, nil
})

// FromArtifact reads a diagnosis back out of an artifact produced by Decoder
// or by the fallback store.
func FromArtifact(artifact ai.Artifact) (Diagnosis, error) {
	var d Diagnosis
	if err := json.Unmarshal([]byte(artifact.Text), &d); err != nil {
		return Diagnosis{}, fmt.Errorf("decode diagnosis artifact: %w", err)
	}
	d.Normalize()
	return d, nil
}
