package api

import (
	"bytes"
	"encoding/base64"
	"errors"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Ariya-rithvik/cardiosim-ai/internal/ai"
	"github.com/Ariya-rithvik/cardiosim-ai/internal/artifact"
	"github.com/Ariya-rithvik/cardiosim-ai/internal/cascade"
	"github.com/Ariya-rithvik/cardiosim-ai/internal/util"
)

const (
	defaultVideoDuration = 60
	defaultLanguage      = "english"
	defaultFrameUrgency  = "Urgent"
	keyframeSize         = "1280x720"
)

func (s *Server) handleImageGeneration(c *gin.Context) {
	var req ImageGenerationRequest
	if !s.bind(c, &req, false) {
		return
	}
	if req.Size == "" {
		req.Size = keyframeSize
	}
	template := s.content.Video(req.Procedure)
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		prompt = keyframePrompt(VideoGenerationRequest{Procedure: req.Procedure}, template.Frames)
	}

	timer := util.StartTimer()
	res := s.resolve(c, ai.NewRequest(ai.CapabilityImage, ai.DomainKeyframe,
		ai.WithID(requestID(c)),
		ai.WithPrompt(prompt),
		ai.WithProcedure(req.Procedure),
		ai.WithFallbackKey(req.Procedure),
		ai.WithSize(req.Size),
	))

	resp := ImageGenerationResponse{Status: "ready", Caption: template.Title, Meta: s.meta(c, res, timer)}
	switch {
	case res.Fallback():
		resp.Status = "storyboard"
		resp.Storyboard = res.Artifact.Frames
		resp.Caption = res.Artifact.Text
	case len(res.Artifact.Data) > 0:
		resp.Image = base64.StdEncoding.EncodeToString(res.Artifact.Data)
		resp.MIMEType = res.Artifact.MIMEType
	default:
		resp.ImageURL = res.Artifact.Location
		resp.MIMEType = res.Artifact.MIMEType
	}
	c.JSON(http.StatusOK, resp)
}

// handleVideoGeneration resolves the storyboard description, an optional
// keyframe and the video itself. Each stage degrades on its own.
func (s *Server) handleVideoGeneration(c *gin.Context) {
	var req VideoGenerationRequest
	if !s.bind(c, &req, false) {
		return
	}
	if req.Duration == 0 {
		req.Duration = defaultVideoDuration
	}
	if strings.TrimSpace(req.Language) == "" {
		req.Language = defaultLanguage
	}
	template := s.content.Video(req.Procedure)
	if len(req.Steps) == 0 {
		req.Steps = template.Frames
	}

	timer := util.StartTimer()
	id := requestID(c)
	stages := make(map[string]string, 3)

	// The storyboard and the keyframe are independent, so they resolve
	// concurrently. Resolutions never fail; the group only joins them.
	var desc, key cascade.Resolution
	var g errgroup.Group
	g.Go(func() error {
		desc = s.resolve(c, ai.NewRequest(ai.CapabilityText, ai.DomainVideoDescription,
			ai.WithID(id),
			ai.WithPrompt(storyboardPrompt(req)),
			ai.WithProcedure(req.Procedure),
			ai.WithFallbackKey(req.Procedure),
		))
		return nil
	})
	if req.Keyframe {
		g.Go(func() error {
			key = s.resolve(c, ai.NewRequest(ai.CapabilityImage, ai.DomainKeyframe,
				ai.WithID(id),
				ai.WithPrompt(keyframePrompt(req, template.Frames)),
				ai.WithProcedure(req.Procedure),
				ai.WithFallbackKey(req.Procedure),
				ai.WithSize(keyframeSize),
			))
			return nil
		})
	}
	_ = g.Wait()
	stages["description"] = desc.Provenance

	videoOpts := []ai.Option{
		ai.WithID(id),
		ai.WithPrompt(videoPrompt(req, desc.Artifact.Text)),
		ai.WithProcedure(req.Procedure),
		ai.WithFallbackKey(req.Procedure),
		ai.WithDuration(time.Duration(req.Duration) * time.Second),
	}

	var preview *string
	if req.Keyframe {
		stages["keyframe"] = key.Provenance
		if !key.Fallback() && len(key.Artifact.Data) > 0 {
			videoOpts = append(videoOpts, ai.WithReference(ai.Reference{
				MIMEType: key.Artifact.MIMEType,
				Data:     key.Artifact.Data,
			}))
			if location, err := s.storeImage(c, req.Procedure, key.Artifact); err != nil {
				logrus.WithError(err).WithField("procedure", req.Procedure).Warn("store keyframe preview")
			} else {
				preview = &location
			}
		}
	}

	video := s.resolve(c, ai.NewRequest(ai.CapabilityVideo, ai.DomainVideo, videoOpts...))
	stages["video"] = video.Provenance

	resp := VideoGenerationResponse{
		Status:            "ready",
		PreviewImage:      preview,
		Description:       desc.Artifact.Text,
		Frames:            template.Frames,
		EstimatedDuration: req.Duration,
	}
	if !video.Fallback() && video.Artifact.Location != "" {
		location := video.Artifact.Location
		resp.VideoURL = &location
	}
	meta := s.meta(c, video, timer)
	meta.Mock = desc.Fallback() && video.Fallback()
	meta.Stages = stages
	resp.Meta = meta
	c.JSON(http.StatusOK, resp)
}

func (s *Server) storeImage(c *gin.Context, procedure string, image ai.Artifact) (string, error) {
	if s.artifacts == nil {
		return "", errors.New("no artifact store configured")
	}
	contentType := image.MIMEType
	ext := ".png"
	if mt := mimetype.Lookup(contentType); mt != nil && mt.Extension() != "" {
		ext = mt.Extension()
	}
	return s.artifacts.Put(c.Request.Context(), procedure, ext, contentType, bytes.NewReader(image.Data))
}

func (s *Server) handleVideoFrame(c *gin.Context) {
	var query FrameQuery
	if !s.bind(c, &query, true) {
		return
	}
	if query.Urgency == "" {
		query.Urgency = defaultFrameUrgency
	}
	template := s.content.Video(query.Procedure)
	if query.FrameNumber < 1 || query.FrameNumber > len(template.Frames) {
		s.renderError(c, http.StatusNotFound, errors.New("frame not found"))
		return
	}
	frame := template.Frames[query.FrameNumber-1]

	timer := util.StartTimer()
	res := s.resolve(c, ai.NewRequest(ai.CapabilityText, ai.DomainVideoNarration,
		ai.WithID(requestID(c)),
		ai.WithPrompt(narrationPrompt(frame, query.Procedure, query.Urgency)),
		ai.WithProcedure(query.Procedure),
		ai.WithFallbackKey(frame),
	))

	offline := s.content.Narration(frame)
	resp := FrameResponse{
		FrameNumber:     query.FrameNumber,
		Description:     frame,
		Narration:       res.Artifact.Text,
		VisualCues:      offline.VisualCues,
		SuccessCriteria: offline.SuccessCriteria,
		Meta:            s.meta(c, res, timer),
	}
	if !res.Fallback() {
		resp.VisualCues = []string{
			"Landmark highlight: sternum center",
			"Hand position guide: visible overlay",
			"Depth indicator: compression gauge",
		}
		resp.SuccessCriteria = []string{
			"Depth: 5-6cm achieved",
			"Rate: 100-120 BPM",
			"Recoil: Full chest spring-back",
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleTemplates(c *gin.Context) {
	templates := s.content.VideoProcedures()
	resp := TemplatesResponse{
		AvailableProcedures: make([]string, 0, len(templates)),
		Templates:           make(map[string]TemplateSummary, len(templates)),
	}
	for _, t := range templates {
		resp.AvailableProcedures = append(resp.AvailableProcedures, t.Procedure)
		resp.Templates[t.Procedure] = TemplateSummary{
			Title:       t.Title,
			FramesCount: len(t.Frames),
			Description: t.Description,
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleFile(c *gin.Context) {
	if s.local == nil {
		s.renderError(c, http.StatusNotFound, errors.New("artifacts are not served by this backend"))
		return
	}
	target, err := s.local.Path(c.Param("name"))
	if err != nil {
		switch {
		case errors.Is(err, artifact.ErrInvalidName):
			s.renderError(c, http.StatusBadRequest, err)
		case errors.Is(err, fs.ErrNotExist):
			s.renderError(c, http.StatusNotFound, errors.New("file not found"))
		default:
			s.renderError(c, http.StatusInternalServerError, err)
		}
		return
	}
	c.File(target)
}
