package oracle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/surfer/api/schemas"
	"github.com/xkilldash9x/surfer/internal/config"
)

// contentGenerator is the slice of *genai.Models the client uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClient implements Decider, Evaluator and Estimator with Gemini models.
type GeminiClient struct {
	models   contentGenerator
	cfg      config.GeminiConfig
	timeout  time.Duration
	throttle throttle
	logger   *zap.Logger
}

var (
	_ Decider   = (*GeminiClient)(nil)
	_ Evaluator = (*GeminiClient)(nil)
	_ Estimator = (*GeminiClient)(nil)
)

// NewGeminiClient initializes the client.
func NewGeminiClient(ctx context.Context, cfg config.OracleConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.Gemini.APIKey == "" {
		return nil, fmt.Errorf("Gemini API Key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.Gemini.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return newGeminiClient(client.Models, cfg, logger), nil
}

func newGeminiClient(models contentGenerator, cfg config.OracleConfig, logger *zap.Logger) *GeminiClient {
	return &GeminiClient{
		models:   models,
		cfg:      cfg.Gemini,
		timeout:  cfg.Timeout,
		throttle: newThrottle(cfg),
		logger:   logger.Named("oracle.gemini"),
	}
}

// Decide asks the decide model for the next batch of actions.
func (c *GeminiClient) Decide(ctx context.Context, req Request) (Response, error) {
	var host string
	if u, err := url.Parse(req.URL); err == nil {
		host = u.Hostname()
	}

	contents := []*genai.Content{
		genai.NewContentFromText("Here is the sequence of previously attempted actions:\n"+RenderHistory(req.History), genai.RoleUser),
		genai.NewContentFromText(req.Intent, genai.RoleUser),
		genai.NewContentFromText("Here is a list of DOM elements to choose from:\n"+RenderCandidates(req.Candidates), genai.RoleUser),
	}
	text, err := c.generate(ctx, c.cfg.DecideModel, PromptFor(host), contents)
	if err != nil {
		return Response{}, err
	}
	resp, err := parseJSONResponse[Response](text)
	if err != nil {
		return Response{}, err
	}
	return *resp, nil
}

// Evaluate asks the evaluate model whether each prior action took effect.
func (c *GeminiClient) Evaluate(ctx context.Context, prior []schemas.ActionRecord, candidates []schemas.CandidateElement) ([]bool, error) {
	actions, err := json.MarshalToString(prior)
	if err != nil {
		return nil, fmt.Errorf("failed to encode actions: %w", err)
	}
	model := c.cfg.EvaluateModel
	if model == "" {
		model = c.cfg.DecideModel
	}

	contents := []*genai.Content{
		genai.NewContentFromText("Here is the sequence of previously attempted actions:\n"+actions, genai.RoleUser),
		genai.NewContentFromText("Here are the page elements now:\n"+RenderCandidates(candidates), genai.RoleUser),
	}
	text, err := c.generate(ctx, model, evaluatePrompt, contents)
	if err != nil {
		return nil, err
	}
	resp, err := parseJSONResponse[evaluateResponse](text)
	if err != nil {
		return nil, err
	}
	return resp.Evaluation, nil
}

// Estimate sends the screenshot inline and asks for the element's position.
func (c *GeminiClient) Estimate(ctx context.Context, description string, visual schemas.Visual) (schemas.CursorCoordinate, bool, error) {
	if !visual.OK || len(visual.Data) == 0 {
		return schemas.CursorCoordinate{}, false, nil
	}
	width, height, err := imageDimensions(visual.Data)
	if err != nil {
		return schemas.CursorCoordinate{}, false, err
	}

	input := fmt.Sprintf("Element: %s\nThe image dimensions are: [%dx%d]", description, width, height)
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(input),
			genai.NewPartFromBytes(visual.Data, "image/png"),
		}, genai.RoleUser),
	}
	text, err := c.generate(ctx, c.cfg.DecideModel, estimatePrompt, contents)
	if err != nil {
		return schemas.CursorCoordinate{}, false, err
	}
	resp, err := parseJSONResponse[estimateResponse](text)
	if err != nil {
		return schemas.CursorCoordinate{}, false, err
	}
	return schemas.CursorCoordinate{X: resp.XEstimate, Y: resp.YEstimate}, resp.OK, nil
}

func (c *GeminiClient) generate(ctx context.Context, model, system string, contents []*genai.Content) (string, error) {
	genConfig := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr(c.cfg.Temperature),
		MaxOutputTokens:   c.cfg.MaxOutputTokens,
	}

	var text string
	operation := func() error {
		callCtx := ctx
		if c.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}

		start := time.Now()
		resp, err := c.models.GenerateContent(callCtx, model, contents, genConfig)
		if err != nil {
			return c.classify(err)
		}
		if len(resp.Candidates) == 0 {
			return backoff.Permanent(fmt.Errorf("gemini API returned no candidates"))
		}
		if reason := resp.Candidates[0].FinishReason; reason == genai.FinishReasonSafety || reason == genai.FinishReasonBlocklist {
			return backoff.Permanent(fmt.Errorf("gemini API blocked the request (Reason: %s)", reason))
		}
		out := resp.Text()
		if out == "" {
			return fmt.Errorf("gemini API returned empty content (Reason: %s)", resp.Candidates[0].FinishReason)
		}

		fields := []zap.Field{zap.String("model", model), zap.Duration("duration", time.Since(start))}
		if u := resp.UsageMetadata; u != nil {
			fields = append(fields,
				zap.Int32("prompt_tokens", u.PromptTokenCount),
				zap.Int32("completion_tokens", u.CandidatesTokenCount),
				zap.Int32("total_tokens", u.TotalTokenCount))
		}
		c.logger.Info("Generation complete.", fields...)
		text = out
		return nil
	}

	if err := c.throttle.do(ctx, operation); err != nil {
		return "", fmt.Errorf("gemini %s: %w", model, err)
	}
	return text, nil
}

// classify marks client errors as permanent so only throttling and server
// faults are retried.
func (c *GeminiClient) classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		c.logger.Error("Gemini API returned error status", zap.Int("status", apiErr.Code), zap.String("message", apiErr.Message))
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return err
		default:
			return backoff.Permanent(err)
		}
	}
	if errors.Is(err, context.Canceled) {
		return backoff.Permanent(err)
	}
	c.logger.Warn("Network error during Gemini request, retrying...", zap.Error(err))
	return err
}
