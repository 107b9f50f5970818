package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Ariya-rithvik/cardiosim-ai/internal/ai"
	"github.com/Ariya-rithvik/cardiosim-ai/internal/content"
	"github.com/Ariya-rithvik/cardiosim-ai/internal/triage"
	"github.com/Ariya-rithvik/cardiosim-ai/internal/util"
)

const (
	maxUploadBytes   = 10 << 20
	aiProviderName   = "Genie"
	protocolProvider = "Protocol Engine"
	defaultAudience  = "patient"
	defaultEmergency = "assessment"
)

var errNotImage = errors.New("upload must be an image")

func (s *Server) handleAnalyze(c *gin.Context) {
	var req AnalyzeRequest
	if !s.bind(c, &req, false) {
		return
	}
	timer := util.StartTimer()
	in := req.clinicalInput()
	bucket := triage.Classify(in)

	res := s.resolve(c, ai.NewRequest(ai.CapabilityText, ai.DomainDiagnosis,
		ai.WithID(requestID(c)),
		ai.WithSystem(triage.SystemPrompt),
		ai.WithPrompt(triage.BuildPrompt(in)),
		ai.WithFallbackKey(string(bucket)),
		ai.WithDecoder(triage.Decoder),
	))
	diagnosis, err := triage.FromArtifact(res.Artifact)
	if err != nil {
		logrus.WithError(err).WithField("provenance", res.Provenance).Warn("decode diagnosis artifact")
		diagnosis = s.content.Diagnosis(bucket)
	}

	meta := s.meta(c, res, timer)
	meta.Bucket = string(bucket)
	switch res.Provenance {
	case "medgemma":
		id, quant := s.cfg.MedGemma.ModelID, s.cfg.MedGemma.Quantization
		meta.ModelID, meta.Quantization = &id, &quant
	case "gemini":
		id := s.cfg.Gemini.Model
		meta.ModelID = &id
	}
	c.JSON(http.StatusOK, AnalyzeResponse{Diagnosis: diagnosis, Meta: meta})
}

func (s *Server) handleExplain(c *gin.Context) {
	var req ExplainRequest
	if !s.bind(c, &req, false) {
		return
	}
	if req.Audience == "" {
		req.Audience = defaultAudience
	}
	timer := util.StartTimer()
	res := s.resolve(c, ai.NewRequest(ai.CapabilityText, ai.DomainExplain,
		ai.WithID(requestID(c)),
		ai.WithPrompt(explainPrompt(req)),
		ai.WithFallbackKey(req.Audience),
		ai.WithFields(map[string]string{
			"diagnosis":                req.Diagnosis,
			"affected_region":          req.AffectedRegion,
			"recommended_intervention": req.RecommendedIntervention,
			"reasoning":                req.Reasoning,
		}),
	))
	c.JSON(http.StatusOK, ExplainResponse{Explanation: res.Artifact.Text, Meta: s.meta(c, res, timer)})
}

func (s *Server) handleMentor(c *gin.Context) {
	var req MentorRequest
	if !s.bind(c, &req, false) {
		return
	}
	req.CurrentStep = strings.ToLower(strings.TrimSpace(req.CurrentStep))
	timer := util.StartTimer()
	guidance := s.content.Mentor(req.CurrentStep)

	res := s.resolve(c, ai.NewRequest(ai.CapabilityText, ai.DomainMentor,
		ai.WithID(requestID(c)),
		ai.WithPrompt(mentorPrompt(req)),
		ai.WithFallbackKey(guidance.Step),
	))
	c.JSON(http.StatusOK, MentorResponse{
		Guidance:     res.Artifact.Text,
		SafetyChecks: guidance.SafetyChecks,
		AskAI:        !res.Fallback(),
		Meta:         s.meta(c, res, timer),
	})
}

func (s *Server) handleEmergency(c *gin.Context) {
	var req EmergencyRequest
	if !s.bind(c, &req, false) {
		return
	}
	if req.CurrentStep == "" {
		req.CurrentStep = defaultEmergency
	}
	timer := util.StartTimer()
	protocol := s.content.Emergency(content.EmergencyKey(req.Urgency, req.Diagnosis))

	res := s.resolve(c, ai.NewRequest(ai.CapabilityText, ai.DomainEmergency,
		ai.WithID(requestID(c)),
		ai.WithPrompt(emergencyPrompt(req)),
		ai.WithFallbackKey(protocol.Key),
	))
	provider := aiProviderName
	if res.Fallback() {
		provider = protocolProvider
	}
	c.JSON(http.StatusOK, EmergencyResponse{
		Protocol:           res.Artifact.Text,
		VisualSteps:        protocol.VisualSteps,
		AIProvider:         provider,
		EmergencyActivated: true,
		Meta:               s.meta(c, res, timer),
	})
}

func (s *Server) handleAnalyzeImage(c *gin.Context) {
	var query ImageAnalysisQuery
	if !s.bind(c, &query, true) {
		return
	}
	header, err := c.FormFile("image")
	if err != nil {
		s.renderError(c, http.StatusBadRequest, fmt.Errorf("image file required: %w", err))
		return
	}
	ref, err := readImage(header)
	if err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}

	timer := util.StartTimer()
	res := s.resolve(c, ai.NewRequest(ai.CapabilityText, ai.DomainImageAnalysis,
		ai.WithID(requestID(c)),
		ai.WithPrompt(imageAnalysisPrompt(query.Diagnosis, query.Urgency)),
		ai.WithReference(ref),
	))

	resp := ImageAnalysisResponse{
		Guidance:   res.Artifact.Text,
		NextStep:   "Follow the AI guidance immediately",
		Confidence: 0.85,
		AIProvider: aiProviderName,
		Meta:       s.meta(c, res, timer),
	}
	if res.Fallback() {
		offline := s.content.ImageAnalysis()
		resp.NextStep = offline.NextStep
		resp.Confidence = 0
		resp.AIProvider = protocolProvider
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleAnalyzeTechnique(c *gin.Context) {
	var query TechniqueQuery
	if !s.bind(c, &query, true) {
		return
	}
	opts := []ai.Option{
		ai.WithID(requestID(c)),
		ai.WithPrompt(techniquePrompt(query.Procedure, query.Description)),
		ai.WithProcedure(query.Procedure),
	}
	if header, err := c.FormFile("video_frame"); err == nil {
		ref, err := readImage(header)
		if err != nil {
			s.renderError(c, http.StatusBadRequest, err)
			return
		}
		opts = append(opts, ai.WithReference(ref))
	}

	timer := util.StartTimer()
	res := s.resolve(c, ai.NewRequest(ai.CapabilityText, ai.DomainTechnique, opts...))
	resp := TechniqueResponse{
		Feedback: res.Artifact.Text,
		Corrections: []string{
			"Identified from instruction",
			"Real-time feedback provided",
			"See detailed feedback above",
		},
		Score:      0.85,
		AIProvider: aiProviderName,
		Meta:       s.meta(c, res, timer),
	}
	if res.Fallback() {
		offline := s.content.Technique()
		resp.Corrections = offline.Corrections
		resp.Score = 0
		resp.AIProvider = ""
	}
	c.JSON(http.StatusOK, resp)
}

// readImage loads an uploaded file and rejects anything that does not sniff
// as an image.
func readImage(header *multipart.FileHeader) (ai.Reference, error) {
	if header == nil {
		return ai.Reference{}, errors.New("file header is nil")
	}
	if header.Size > maxUploadBytes {
		return ai.Reference{}, fmt.Errorf("upload exceeds %d bytes", maxUploadBytes)
	}
	src, err := header.Open()
	if err != nil {
		return ai.Reference{}, err
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, maxUploadBytes+1))
	if err != nil {
		return ai.Reference{}, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return ai.Reference{}, fmt.Errorf("%w: empty file", errNotImage)
	}
	if len(data) > maxUploadBytes {
		return ai.Reference{}, fmt.Errorf("upload exceeds %d bytes", maxUploadBytes)
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return ai.Reference{}, fmt.Errorf("%w: detected %s", errNotImage, mt.String())
	}
	return ai.Reference{MIMEType: mt.String(), Data: data}, nil
}
