package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sentra-sec/sentra/pkg/models"
	"github.com/sentra-sec/sentra/pkg/orchestrator"
)

// analyzeRequest is the accepted wire shape: any of the chat-platform body
// variants plus the optional envelope metadata.
type analyzeRequest struct {
	models.ChatBody
	ClientID  string `json:"clientId"`
	Lang      string `json:"lang"`
	RequestID string `json:"request_id"`
}

// analyzeResponse is the wire response. SanitizedBody is null unless the
// action is sanitize.
type analyzeResponse struct {
	Action        string           `json:"action"`
	Reason        string           `json:"reason"`
	SanitizedBody *models.ChatBody `json:"sanitizedBody"`
	RequestID     string           `json:"request_id"`
	Degraded      bool             `json:"degraded"`
	TimingMs      int              `json:"timing_ms"`
}

// analyzeHandler handles POST /analyze. Only input problems produce a 400;
// every internal failure mode resolves to a 200 allow via the pipeline's
// fail-open path, so the extension never has to interpret server errors.
func (s *Server) analyzeHandler(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "invalid request body",
			"reason": orchestrator.ReasonExtractionFailed,
		})
		return
	}

	extraction := req.ChatBody.ExtractText()
	switch extraction.Kind {
	case models.ExtractedInvalid:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "could not extract prompt text",
			"reason": orchestrator.ReasonExtractionFailed,
		})
		return
	case models.ExtractedEmpty:
		c.JSON(http.StatusBadRequest, gin.H{"error": "text required"})
		return
	}

	env := models.InputEnvelope{
		Text:      extraction.Text,
		ClientID:  req.ClientID,
		Lang:      req.Lang,
		RequestID: req.RequestID,
	}
	if env.RequestID == "" {
		env.RequestID = c.GetString(ctxRequestID)
	}
	if problem := env.Validate(); problem != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": problem})
		return
	}

	out := s.orch.Analyze(c.Request.Context(), env)

	resp := analyzeResponse{
		Action:    out.Action,
		Reason:    out.Reason,
		RequestID: out.RequestID,
		Degraded:  out.Degraded,
		TimingMs:  out.TimingMs,
	}
	if out.Verdict.FinalStatus == models.StatusSanitized {
		resp.SanitizedBody = sanitizedBody(out.Sanitized)
	}
	c.JSON(http.StatusOK, resp)
}

// sanitizedBody wraps the redacted prompt back into the chat-platform shape
// so the extension can substitute it for the original request body.
func sanitizedBody(text string) *models.ChatBody {
	return &models.ChatBody{
		Messages: []models.ChatMessage{{Content: models.ChatContent{Parts: []string{text}}}},
	}
}
