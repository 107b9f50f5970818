package content

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Ariya-rithvik/cardiosim-ai/internal/ai"
	"github.com/Ariya-rithvik/cardiosim-ai/internal/triage"
)

//go:embed fallback.yaml
var embedded []byte

type diagnosisEntry struct {
	Diagnosis               string  `yaml:"diagnosis"`
	AffectedRegion          string  `yaml:"affected_region"`
	ArteryID                string  `yaml:"artery_id"`
	Urgency                 string  `yaml:"urgency"`
	RecommendedIntervention string  `yaml:"recommended_intervention"`
	Reasoning               string  `yaml:"reasoning"`
	Confidence              float64 `yaml:"confidence"`
}

// MentorGuidance is the canned guidance for one simulation step.
type MentorGuidance struct {
	Step         string   `yaml:"-" json:"step"`
	Title        string   `yaml:"title" json:"title"`
	Guidance     string   `yaml:"guidance" json:"guidance"`
	SafetyChecks []string `yaml:"safety_checks" json:"safety_checks"`
}

// Protocol is an emergency protocol with its visual action items.
type Protocol struct {
	Key         string   `yaml:"-" json:"key"`
	Protocol    string   `yaml:"protocol" json:"protocol"`
	VisualSteps []string `yaml:"visual_steps" json:"visual_steps"`
}

// VideoTemplate is a procedure storyboard.
type VideoTemplate struct {
	Procedure   string   `yaml:"-" json:"procedure"`
	Title       string   `yaml:"title" json:"title"`
	Description string   `yaml:"description" json:"description"`
	Frames      []string `yaml:"frames" json:"frames"`
}

// ImageAnalysisOffline is returned when uploaded images cannot be analysed.
type ImageAnalysisOffline struct {
	Guidance string `yaml:"guidance"`
	NextStep string `yaml:"next_step"`
}

// TechniqueOffline is returned when technique feedback cannot be generated.
type TechniqueOffline struct {
	Feedback    string   `yaml:"feedback"`
	Corrections []string `yaml:"corrections"`
}

// Narration is the per-frame teaching text for the frame stream.
type Narration struct {
	Text            string   `json:"narration"`
	VisualCues      []string `json:"visual_cues"`
	SuccessCriteria []string `json:"success_criteria"`
}

type narrationEntry struct {
	Prefix          string   `yaml:"prefix"`
	VisualCues      []string `yaml:"visual_cues"`
	SuccessCriteria []string `yaml:"success_criteria"`
}

type document struct {
	Diagnoses    map[string]diagnosisEntry `yaml:"diagnoses"`
	Explanations map[string]string         `yaml:"explanations"`
	Mentor       struct {
		DefaultStep string                    `yaml:"default_step"`
		Steps       map[string]MentorGuidance `yaml:"steps"`
	} `yaml:"mentor"`
	Emergency struct {
		DefaultProtocol string              `yaml:"default_protocol"`
		Protocols       map[string]Protocol `yaml:"protocols"`
	} `yaml:"emergency"`
	Video struct {
		DefaultProcedure string                   `yaml:"default_procedure"`
		Order            []string                 `yaml:"order"`
		Templates        map[string]VideoTemplate `yaml:"templates"`
	} `yaml:"video"`
	Offline struct {
		ImageAnalysis ImageAnalysisOffline `yaml:"image_analysis"`
		Technique     TechniqueOffline     `yaml:"technique"`
		Narration     narrationEntry       `yaml:"narration"`
		Generic       string               `yaml:"generic"`
	} `yaml:"offline"`
}

// Store is the read-only fallback content. It is safe for concurrent use
// because nothing mutates it after Parse returns.
type Store struct {
	doc document
}

// Load parses the embedded document.
func Load() (*Store, error) {
	return Parse(embedded)
}

// Parse decodes and checks a fallback document.
func Parse(raw []byte) (*Store, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode fallback content: %w", err)
	}
	for _, bucket := range []triage.Bucket{triage.BucketSTEMI, triage.BucketNSTEMI, triage.BucketAngina} {
		if _, ok := doc.Diagnoses[string(bucket)]; !ok {
			return nil, fmt.Errorf("fallback content: missing diagnosis %q", bucket)
		}
	}
	for _, audience := range []string{"patient", "clinician"} {
		if strings.TrimSpace(doc.Explanations[audience]) == "" {
			return nil, fmt.Errorf("fallback content: missing %s explanation", audience)
		}
	}
	if _, ok := doc.Mentor.Steps[doc.Mentor.DefaultStep]; !ok {
		return nil, fmt.Errorf("fallback content: default mentor step %q not defined", doc.Mentor.DefaultStep)
	}
	if _, ok := doc.Emergency.Protocols[doc.Emergency.DefaultProtocol]; !ok {
		return nil, fmt.Errorf("fallback content: default protocol %q not defined", doc.Emergency.DefaultProtocol)
	}
	if _, ok := doc.Video.Templates[doc.Video.DefaultProcedure]; !ok {
		return nil, fmt.Errorf("fallback content: default procedure %q not defined", doc.Video.DefaultProcedure)
	}
	for _, name := range doc.Video.Order {
		if _, ok := doc.Video.Templates[name]; !ok {
			return nil, fmt.Errorf("fallback content: ordered procedure %q not defined", name)
		}
	}
	if strings.TrimSpace(doc.Offline.Generic) == "" {
		return nil, fmt.Errorf("fallback content: missing generic offline text")
	}
	return &Store{doc: doc}, nil
}

// Diagnosis returns the canned diagnosis for a bucket. Unknown buckets get
// the angina entry, the least severe class.
func (s *Store) Diagnosis(bucket triage.Bucket) triage.Diagnosis {
	entry, ok := s.doc.Diagnoses[string(bucket)]
	if !ok {
		entry = s.doc.Diagnoses[string(triage.BucketAngina)]
	}
	return triage.Diagnosis{
		Diagnosis:               entry.Diagnosis,
		AffectedRegion:          entry.AffectedRegion,
		ArteryID:                entry.ArteryID,
		Urgency:                 entry.Urgency,
		RecommendedIntervention: entry.RecommendedIntervention,
		Reasoning:               entry.Reasoning,
		Confidence:              entry.Confidence,
	}
}

// ExplainFields are the diagnosis parts an explanation is rendered from.
type ExplainFields struct {
	Diagnosis    string
	Region       string
	Intervention string
	Reasoning    string
}

// Explanation renders the template for an audience. Anything other than
// "patient" gets the clinician text.
func (s *Store) Explanation(audience string, f ExplainFields) string {
	tmpl := s.doc.Explanations["clinician"]
	if strings.EqualFold(strings.TrimSpace(audience), "patient") {
		tmpl = s.doc.Explanations["patient"]
	}
	r := strings.NewReplacer(
		"{diagnosis}", f.Diagnosis,
		"{artery}", f.Region,
		"{intervention}", f.Intervention,
		"{reasoning}", f.Reasoning,
	)
	return strings.TrimSpace(r.Replace(tmpl))
}

// Mentor returns guidance for a step, defaulting to the first step.
func (s *Store) Mentor(step string) MentorGuidance {
	key := strings.ToLower(strings.TrimSpace(step))
	g, ok := s.doc.Mentor.Steps[key]
	if !ok {
		key = s.doc.Mentor.DefaultStep
		g = s.doc.Mentor.Steps[key]
	}
	g.Step = key
	g.SafetyChecks = append([]string(nil), g.SafetyChecks...)
	return g
}

// MentorSteps lists the known step keys.
func (s *Store) MentorSteps() []string {
	return []string{"blocked", "guide", "balloon", "stent", "flow"}
}

// EmergencyKey builds the protocol key from urgency and diagnosis.
func EmergencyKey(urgency, diagnosis string) string {
	norm := strings.NewReplacer(" ", "_", "-", "_")
	return strings.ToLower(strings.TrimSpace(urgency)) + "_" + norm.Replace(strings.ToLower(strings.TrimSpace(diagnosis)))
}

// Emergency returns the protocol for a key, defaulting to the STEMI protocol.
func (s *Store) Emergency(key string) Protocol {
	p, ok := s.doc.Emergency.Protocols[key]
	if !ok {
		key = s.doc.Emergency.DefaultProtocol
		p = s.doc.Emergency.Protocols[key]
	}
	p.Key = key
	p.VisualSteps = append([]string(nil), p.VisualSteps...)
	return p
}

// Video returns the template for a procedure, defaulting to STEMI.
func (s *Store) Video(procedure string) VideoTemplate {
	key := strings.ToUpper(strings.TrimSpace(procedure))
	t, ok := s.doc.Video.Templates[key]
	if !ok {
		key = s.doc.Video.DefaultProcedure
		t = s.doc.Video.Templates[key]
	}
	t.Procedure = key
	t.Frames = append([]string(nil), t.Frames...)
	return t
}

// HasVideo reports whether a procedure has its own template.
func (s *Store) HasVideo(procedure string) bool {
	_, ok := s.doc.Video.Templates[strings.ToUpper(strings.TrimSpace(procedure))]
	return ok
}

// VideoProcedures lists the templates in display order.
func (s *Store) VideoProcedures() []VideoTemplate {
	out := make([]VideoTemplate, 0, len(s.doc.Video.Order))
	for _, name := range s.doc.Video.Order {
		out = append(out, s.Video(name))
	}
	return out
}

func (s *Store) ImageAnalysis() ImageAnalysisOffline { return s.doc.Offline.ImageAnalysis }

func (s *Store) Technique() TechniqueOffline {
	t := s.doc.Offline.Technique
	t.Corrections = append([]string(nil), t.Corrections...)
	return t
}

// Narration returns the offline teaching text for a frame label.
func (s *Store) Narration(frame string) Narration {
	n := s.doc.Offline.Narration
	return Narration{
		Text:            n.Prefix + frame,
		VisualCues:      append([]string(nil), n.VisualCues...),
		SuccessCriteria: append([]string(nil), n.SuccessCriteria...),
	}
}

// Fallback produces the canned artifact for a request. It never returns an
// empty artifact: unknown domains get the generic offline text.
func (s *Store) Fallback(req ai.Request) ai.Artifact {
	text := func(body string) ai.Artifact {
		return ai.Artifact{Capability: req.Capability(), Text: body, MIMEType: "text/plain"}
	}
	switch req.Domain() {
	case ai.DomainDiagnosis:
		d := s.Diagnosis(triage.Bucket(req.FallbackKey()))
		raw, err := json.Marshal(d)
		if err != nil {
			return text(s.doc.Offline.Generic)
		}
		return ai.Artifact{Capability: req.Capability(), Text: string(raw), MIMEType: "application/json"}
	case ai.DomainExplain:
		return text(s.Explanation(req.FallbackKey(), ExplainFields{
			Diagnosis:    req.Field("diagnosis"),
			Region:       req.Field("affected_region"),
			Intervention: req.Field("recommended_intervention"),
			Reasoning:    req.Field("reasoning"),
		}))
	case ai.DomainMentor:
		return text(s.Mentor(req.FallbackKey()).Guidance)
	case ai.DomainEmergency:
		return text(s.Emergency(req.FallbackKey()).Protocol)
	case ai.DomainImageAnalysis:
		return text(s.doc.Offline.ImageAnalysis.Guidance)
	case ai.DomainTechnique:
		return text(s.doc.Offline.Technique.Feedback)
	case ai.DomainVideoDescription:
		return text(s.Video(req.FallbackKey()).Description)
	case ai.DomainVideoNarration:
		return text(s.Narration(req.FallbackKey()).Text)
	case ai.DomainKeyframe, ai.DomainVideo:
		t := s.Video(req.FallbackKey())
		return ai.Artifact{
			Capability: req.Capability(),
			Text:       t.Description,
			MIMEType:   "text/plain",
			Frames:     t.Frames,
		}
	default:
		return text(s.doc.Offline.Generic)
	}
}
