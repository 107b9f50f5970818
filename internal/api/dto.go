package api

import (
	"time"

	"github.com/Ariya-rithvik/cardiosim-ai/internal/store"
	"github.com/Ariya-rithvik/cardiosim-ai/internal/triage"
)

// Meta is attached to every AI-backed response as "_meta".
type Meta struct {
	RequestID      string            `json:"request_id"`
	Provenance     string            `json:"provenance"`
	Mock           bool              `json:"mock"`
	Cached         bool              `json:"cached,omitempty"`
	InferenceTimeS float64           `json:"inference_time_s"`
	Timestamp      string            `json:"timestamp"`
	Bucket         string            `json:"bucket,omitempty"`
	ModelID        *string           `json:"model_id,omitempty"`
	Quantization   *string           `json:"quantization,omitempty"`
	Stages         map[string]string `json:"stages,omitempty"`
}

// AnalyzeRequest is the clinical presentation of a simulated patient.
type AnalyzeRequest struct {
	ChestPainDuration int      `json:"chest_pain_duration" binding:"gte=0"`
	ECGFindings       string   `json:"ecg_findings" binding:"max=2000"`
	TroponinLevel     float64  `json:"troponin_level" binding:"gte=0"`
	Age               int      `json:"age" binding:"gte=0,lte=130"`
	RiskFactors       []string `json:"risk_factors" binding:"max=20"`
	Symptoms          string   `json:"symptoms"`
}

func (r AnalyzeRequest) clinicalInput() triage.ClinicalInput {
	return triage.ClinicalInput{
		ChestPainDuration: r.ChestPainDuration,
		ECGFindings:       r.ECGFindings,
		TroponinLevel:     r.TroponinLevel,
		Age:               r.Age,
		RiskFactors:       r.RiskFactors,
		Symptoms:          r.Symptoms,
	}
}

// AnalyzeResponse is a diagnosis plus resolution metadata.
type AnalyzeResponse struct {
	triage.Diagnosis
	Meta Meta `json:"_meta"`
}

type ExplainRequest struct {
	Diagnosis               string `json:"diagnosis" binding:"required"`
	AffectedRegion          string `json:"affected_region" binding:"required"`
	RecommendedIntervention string `json:"recommended_intervention" binding:"required"`
	Reasoning               string `json:"reasoning" binding:"required"`
	Audience                string `json:"audience" binding:"omitempty,oneof=patient clinician"`
}

type ExplainResponse struct {
	Explanation string `json:"explanation"`
	Meta        Meta   `json:"_meta"`
}

// MentorRequest asks for guidance on one simulation step. Unknown steps get
// the initial assessment guidance.
type MentorRequest struct {
	Diagnosis               string `json:"diagnosis" binding:"required"`
	AffectedRegion          string `json:"affected_region" binding:"required"`
	ArteryID                string `json:"artery_id" binding:"required"`
	Urgency                 string `json:"urgency" binding:"required"`
	RecommendedIntervention string `json:"recommended_intervention" binding:"required"`
	CurrentStep             string `json:"current_step" binding:"required"`
	Question                string `json:"question" binding:"max=1000"`
}

type MentorResponse struct {
	Guidance     string   `json:"guidance"`
	SafetyChecks []string `json:"safety_checks"`
	AskAI        bool     `json:"ask_ai"`
	Meta         Meta     `json:"_meta"`
}

type EmergencyRequest struct {
	Diagnosis               string `json:"diagnosis" binding:"required"`
	AffectedRegion          string `json:"affected_region" binding:"required"`
	ArteryID                string `json:"artery_id" binding:"required"`
	Urgency                 string `json:"urgency" binding:"required"`
	RecommendedIntervention string `json:"recommended_intervention" binding:"required"`
	CurrentStep             string `json:"current_step" binding:"omitempty,oneof=assessment preparation procedure monitoring"`
}

type EmergencyResponse struct {
	Protocol           string   `json:"protocol"`
	VisualSteps        []string `json:"visual_steps"`
	AIProvider         string   `json:"ai_provider"`
	EmergencyActivated bool     `json:"emergency_activated"`
	Meta               Meta     `json:"_meta"`
}

// ImageAnalysisQuery carries the context of an uploaded emergency image.
type ImageAnalysisQuery struct {
	Diagnosis string `form:"diagnosis" binding:"required"`
	Urgency   string `form:"urgency" binding:"required"`
}

type ImageAnalysisResponse struct {
	Guidance   string  `json:"guidance"`
	NextStep   string  `json:"next_step"`
	Confidence float64 `json:"confidence"`
	AIProvider string  `json:"ai_provider"`
	Meta       Meta    `json:"_meta"`
}

type ImageGenerationRequest struct {
	Procedure string `json:"procedure" binding:"required"`
	Prompt    string `json:"prompt" binding:"max=2000"`
	Size      string `json:"size" binding:"omitempty,oneof=1024x576 576x1024 1024x1024 1280x720"`
}

// ImageGenerationResponse carries a generated keyframe, or the storyboard
// frames when no image could be produced.
type ImageGenerationResponse struct {
	Status     string   `json:"status"`
	Image      string   `json:"image,omitempty"`
	MIMEType   string   `json:"mime_type,omitempty"`
	ImageURL   string   `json:"image_url,omitempty"`
	Storyboard []string `json:"storyboard,omitempty"`
	Caption    string   `json:"caption"`
	Meta       Meta     `json:"_meta"`
}

type VideoGenerationRequest struct {
	Procedure string   `json:"procedure" binding:"required"`
	Urgency   string   `json:"urgency" binding:"required"`
	Steps     []string `json:"steps" binding:"max=50"`
	Duration  int      `json:"duration" binding:"gte=0,lte=600"`
	Language  string   `json:"language"`
	Keyframe  bool     `json:"keyframe"`
}

type VideoGenerationResponse struct {
	Status            string   `json:"status"`
	VideoURL          *string  `json:"video_url"`
	PreviewImage      *string  `json:"preview_image"`
	Description       string   `json:"description"`
	Frames            []string `json:"frames"`
	EstimatedDuration int      `json:"estimated_duration"`
	Meta              Meta     `json:"_meta"`
}

// FrameQuery selects one storyboard frame (1-based). Frames outside the
// template are reported as not found rather than as validation errors.
type FrameQuery struct {
	Procedure   string `form:"procedure" binding:"required"`
	FrameNumber int    `form:"frame_number"`
	Urgency     string `form:"urgency"`
}

type FrameResponse struct {
	FrameNumber     int      `json:"frame_number"`
	Description     string   `json:"description"`
	Narration       string   `json:"narration"`
	VisualCues      []string `json:"visual_cues"`
	SuccessCriteria []string `json:"success_criteria"`
	Meta            Meta     `json:"_meta"`
}

type TemplateSummary struct {
	Title       string `json:"title"`
	FramesCount int    `json:"frames_count"`
	Description string `json:"description"`
}

type TemplatesResponse struct {
	AvailableProcedures []string                   `json:"available_procedures"`
	Templates           map[string]TemplateSummary `json:"templates"`
}

type TechniqueQuery struct {
	Procedure   string `form:"procedure" binding:"required"`
	Description string `form:"description" binding:"max=2000"`
}

type TechniqueResponse struct {
	Feedback    string   `json:"feedback"`
	Corrections []string `json:"corrections"`
	Score       float64  `json:"score"`
	AIProvider  string   `json:"ai_provider,omitempty"`
	Meta        Meta     `json:"_meta"`
}

// ResolutionDTO is the API representation of an audited resolution.
type ResolutionDTO struct {
	ID         uint                   `json:"id"`
	RequestID  string                 `json:"request_id"`
	Domain     string                 `json:"domain"`
	Capability string                 `json:"capability"`
	Provenance string                 `json:"provenance"`
	Cached     bool                   `json:"cached"`
	ElapsedMs  int64                  `json:"elapsed_ms"`
	Attempts   []store.AttemptSummary `json:"attempts"`
	CreatedAt  time.Time              `json:"created_at"`
}

type ResolutionsResponse struct {
	Items        []ResolutionDTO         `json:"items"`
	Total        int64                   `json:"total"`
	Summary      []store.ProvenanceCount `json:"summary"`
	FallbackRate float64                 `json:"fallback_rate"`
}

// ResolutionFromModel converts a store.Resolution into the DTO representation.
func ResolutionFromModel(r store.Resolution) ResolutionDTO {
	attempts := r.Attempts()
	if attempts == nil {
		attempts = []store.AttemptSummary{}
	}
	return ResolutionDTO{
		ID:         r.ID,
		RequestID:  r.RequestID,
		Domain:     r.Domain,
		Capability: r.Capability,
		Provenance: r.Provenance,
		Cached:     r.Cached,
		ElapsedMs:  r.ElapsedMs,
		Attempts:   attempts,
		CreatedAt:  r.CreatedAt,
	}
}

type HealthResponse struct {
	Status                 string   `json:"status"`
	Service                string   `json:"service"`
	Version                string   `json:"version"`
	MockMode               bool     `json:"mock_mode"`
	ModelID                *string  `json:"model_id"`
	GeminiEnabled          bool     `json:"gemini_enabled"`
	VideoGenerationEnabled bool     `json:"video_generation_enabled"`
	ImageGenerationEnabled bool     `json:"image_generation_enabled"`
	Providers              []string `json:"providers"`
}
