package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/textcat/internal/inference"
	"github.com/samcharles93/textcat/internal/store"
	"github.com/samcharles93/textcat/internal/textnorm"
)

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:       "healthy",
		ModelVersion: s.predictor.Version(),
	})
}

func (s *Server) handleCategories(c *echo.Context) error {
	labels := s.predictor.Labels()
	return c.JSON(http.StatusOK, CategoriesResponse{
		Categories:   labels,
		Total:        len(labels),
		ModelVersion: s.predictor.Version(),
	})
}

func (s *Server) handlePredict(c *echo.Context) error {
	req, err := decodeJSON[PredictRequest](c, s.bodyLimit)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if req.Text == nil {
		return writeBadRequest(c, "text is required")
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	pred, err := s.predictor.Predict(ctx, *req.Text)
	if err != nil {
		return s.writePredictError(c, err)
	}
	resp := s.record(ctx, *req.Text, pred)
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleBatchPredict(c *echo.Context) error {
	req, err := decodeJSON[BatchPredictRequest](c, s.bodyLimit)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if req.Texts == nil {
		return writeBadRequest(c, "texts is required")
	}
	if s.maxBatch > 0 && len(req.Texts) > s.maxBatch {
		return writeBadRequest(c, fmt.Sprintf("batch of %d texts exceeds the limit of %d", len(req.Texts), s.maxBatch))
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	if s.metrics != nil {
		s.metrics.RecordBatch(len(req.Texts))
	}
	items := s.predictor.PredictBatch(ctx, req.Texts)
	results := make([]BatchResult, len(items))
	for i, it := range items {
		results[i].Index = i
		if it.Err != nil {
			stage := stageOf(it.Err)
			if s.metrics != nil {
				s.metrics.RecordError(stage)
			}
			results[i].Error = &ItemError{Stage: stage, Message: it.Err.Error()}
			continue
		}
		resp := s.record(ctx, req.Texts[i], *it.Prediction)
		results[i].Prediction = &resp
	}
	return c.JSON(http.StatusOK, BatchPredictResponse{
		Results:      results,
		ModelVersion: s.predictor.Version(),
	})
}

func (s *Server) handleFeedback(c *echo.Context) error {
	req, err := decodeJSON[FeedbackRequest](c, s.bodyLimit)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if err := s.validateFeedback(req); err != nil {
		return writeBadRequest(c, err.Error())
	}

	ctx := c.Request().Context()
	fb := store.Feedback{
		ID:           uuid.NewString(),
		PredictionID: req.PredictionID,
		Subject:      subjectFromContext(ctx),
		Text:         req.Text,
		Predicted:    req.Predicted,
		Expected:     req.Expected,
		CreatedAt:    s.clock(),
	}
	if s.feedback != nil {
		if err := s.feedback.SaveFeedback(ctx, fb); err != nil {
			s.log.Error("save feedback", "request_id", requestIDFromContext(ctx), "error", err)
			return writeError(c, http.StatusInternalServerError, "server_error", "feedback could not be stored", "")
		}
	}
	s.log.Info("feedback",
		"request_id", requestIDFromContext(ctx),
		"subject", fb.Subject,
		"prediction_id", fb.PredictionID,
		"predicted", fb.Predicted,
		"expected", fb.Expected,
	)
	return c.JSON(http.StatusCreated, FeedbackResponse{ID: fb.ID, Status: "recorded"})
}

func (s *Server) validateFeedback(req FeedbackRequest) error {
	if strings.TrimSpace(req.PredictionID) == "" && strings.TrimSpace(req.Text) == "" {
		return newInvalidRequest("prediction_id or text is required")
	}
	if !s.labels[req.Expected] {
		return newInvalidRequest(fmt.Sprintf("expected %q is not a known category", req.Expected))
	}
	if req.Predicted != "" && !s.labels[req.Predicted] {
		return newInvalidRequest(fmt.Sprintf("predicted %q is not a known category", req.Predicted))
	}
	return nil
}

// record logs, counts and queues one successful prediction and returns its
// response form.
func (s *Server) record(ctx context.Context, text string, p inference.Prediction) PredictResponse {
	resp := PredictResponse{
		ID:            uuid.NewString(),
		Category:      p.Category,
		Label:         p.Label,
		Confidence:    p.Confidence,
		Probabilities: p.Probabilities,
		ModelVersion:  s.predictor.Version(),
	}
	subject := subjectFromContext(ctx)
	if s.metrics != nil {
		s.metrics.RecordPrediction(p.Label, p.Confidence)
	}
	s.log.Info("prediction",
		"request_id", requestIDFromContext(ctx),
		"id", resp.ID,
		"subject", subject,
		"category", p.Label,
		"confidence", p.Confidence,
	)
	if s.predictions != nil {
		if !s.predictions.Log(store.Prediction{
			ID:            resp.ID,
			Subject:       subject,
			Text:          text,
			Category:      p.Category,
			Label:         p.Label,
			Confidence:    p.Confidence,
			Probabilities: p.Probabilities,
			ModelVersion:  resp.ModelVersion,
			CreatedAt:     s.clock(),
		}) {
			s.log.Warn("prediction log queue full", "id", resp.ID)
		}
	}
	return resp
}

func (s *Server) writePredictError(c *echo.Context, err error) error {
	stage := stageOf(err)
	if s.metrics != nil {
		s.metrics.RecordError(stage)
	}
	ctx := c.Request().Context()
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return writeError(c, http.StatusGatewayTimeout, "timeout_error", "prediction timed out", "timeout")
	case errors.Is(err, context.Canceled):
		return writeError(c, http.StatusServiceUnavailable, "server_error", "request canceled", "canceled")
	case errors.Is(err, textnorm.ErrNormalizationFailed):
		return writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error(), "normalization_failed")
	}
	s.log.Error("prediction failed", "request_id", requestIDFromContext(ctx), "stage", stage, "error", err)
	return writeError(c, http.StatusInternalServerError, "server_error", "prediction failed", stage+"_failed")
}

func stageOf(err error) string {
	var se *inference.StageError
	if errors.As(err, &se) {
		return string(se.Stage)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "unknown"
}

func (s *Server) requestContext(c *echo.Context) (context.Context, context.CancelFunc) {
	ctx := c.Request().Context()
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}

func decodeJSON[T any](c *echo.Context, limit int64) (T, error) {
	var out T
	body := http.MaxBytesReader(c.Response(), c.Request().Body, limit)
	dec := json.NewDecoder(body)
	if err := dec.Decode(&out); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return out, newInvalidRequest(fmt.Sprintf("request body exceeds %d bytes", limit))
		case errors.Is(err, io.EOF):
			return out, newInvalidRequest("request body is empty")
		}
		return out, newInvalidRequest(fmt.Sprintf("invalid JSON: %v", err))
	}
	return out, nil
}
