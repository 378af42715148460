package oracle

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/png" // screenshot decoder
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/xkilldash9x/surfer/api/schemas"
	"github.com/xkilldash9x/surfer/internal/config"
)

const (
	decidePath   = "/api/choose-action-and-query-selector"
	evaluatePath = "/api/evaluate-actions"
	estimatePath = "/api/estimate-element-location"
)

// HTTPClient implements Decider, Evaluator and Estimator against the oracle
// web service. Requests are multipart forms whose fields carry JSON.
type HTTPClient struct {
	endpoint   string
	httpClient *http.Client
	throttle   throttle
	logger     *zap.Logger
}

var (
	_ Decider   = (*HTTPClient)(nil)
	_ Evaluator = (*HTTPClient)(nil)
	_ Estimator = (*HTTPClient)(nil)
)

// NewHTTPClient initializes the client from the oracle configuration.
func NewHTTPClient(cfg config.OracleConfig, logger *zap.Logger) (*HTTPClient, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid oracle endpoint %q", cfg.Endpoint)
	}

	return &HTTPClient{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		throttle:   newThrottle(cfg),
		logger:     logger.Named("oracle.http"),
	}, nil
}

// Decide posts the intent, candidates and history and returns the chosen batch.
func (c *HTTPClient) Decide(ctx context.Context, req Request) (Response, error) {
	htmlDom, err := json.MarshalToString(candidatesOrEmpty(req.Candidates))
	if err != nil {
		return Response{}, fmt.Errorf("failed to encode candidates: %w", err)
	}
	history, err := json.MarshalToString(historyOrEmpty(req.History))
	if err != nil {
		return Response{}, fmt.Errorf("failed to encode history: %w", err)
	}

	var resp Response
	err = c.post(ctx, decidePath, []formField{
		{"userIntent", req.Intent},
		{"htmlDom", htmlDom},
		{"history", history},
		{"url", req.URL},
	}, &resp)
	if err != nil {
		return Response{}, err
	}
	return resp, nil
}

// Evaluate posts the latest step's records and the current candidates.
func (c *HTTPClient) Evaluate(ctx context.Context, prior []schemas.ActionRecord, candidates []schemas.CandidateElement) ([]bool, error) {
	actions, err := json.MarshalToString(prior)
	if err != nil {
		return nil, fmt.Errorf("failed to encode actions: %w", err)
	}
	htmlDom, err := json.MarshalToString(candidatesOrEmpty(candidates))
	if err != nil {
		return nil, fmt.Errorf("failed to encode candidates: %w", err)
	}

	var resp evaluateResponse
	if err := c.post(ctx, evaluatePath, []formField{{"actions", actions}, {"htmlDom", htmlDom}}, &resp); err != nil {
		return nil, err
	}
	return resp.Evaluation, nil
}

// Estimate posts the screenshot as a data URL together with its dimensions.
func (c *HTTPClient) Estimate(ctx context.Context, description string, visual schemas.Visual) (schemas.CursorCoordinate, bool, error) {
	if !visual.OK || len(visual.Data) == 0 {
		return schemas.CursorCoordinate{}, false, nil
	}
	width, height, err := imageDimensions(visual.Data)
	if err != nil {
		return schemas.CursorCoordinate{}, false, err
	}
	dims, _ := json.MarshalToString(map[string]int{"width": width, "height": height})

	var resp estimateResponse
	err = c.post(ctx, estimatePath, []formField{
		{"userIntent", description},
		{"screenshot", "data:image/png;base64," + base64.StdEncoding.EncodeToString(visual.Data)},
		{"dimensions", dims},
	}, &resp)
	if err != nil {
		return schemas.CursorCoordinate{}, false, err
	}
	return schemas.CursorCoordinate{X: resp.XEstimate, Y: resp.YEstimate}, resp.OK, nil
}

type formField struct {
	name, value string
}

// post sends a multipart form and decodes the JSON reply into out, retrying
// transient failures with exponential backoff.
func (c *HTTPClient) post(ctx context.Context, path string, fields []formField, out any) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range fields {
		if err := mw.WriteField(f.name, f.value); err != nil {
			return fmt.Errorf("failed to write form field %q: %w", f.name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("failed to finalize form: %w", err)
	}
	payload := body.Bytes()
	contentType := mw.FormDataContentType()
	target := c.endpoint + path
	logger := c.logger.With(zap.String("path", path))

	operation := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}
		httpReq.Header.Set("Content-Type", contentType)
		httpReq.Header.Set("Accept", "application/json")

		start := time.Now()
		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			logger.Warn("Network error during oracle request, retrying...", zap.Error(err))
			return fmt.Errorf("failed to execute HTTP request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return c.handleAPIError(path, resp.StatusCode, respBody)
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response payload: %w", err))
		}

		logger.Debug("Oracle request complete.", zap.Duration("duration", time.Since(start)))
		return nil
	}

	if err := c.throttle.do(ctx, operation); err != nil {
		return fmt.Errorf("oracle %s: %w", path, err)
	}
	return nil
}

func (c *HTTPClient) handleAPIError(path string, statusCode int, body []byte) error {
	c.logger.Error("Oracle returned error status",
		zap.String("path", path),
		zap.Int("status", statusCode),
		zap.String("response", truncateString(string(body), 1000)))
	err := fmt.Errorf("oracle API error: status %d, body: %s", statusCode, truncateString(string(body), 200))

	switch statusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusInternalServerError, http.StatusBadGateway, http.StatusGatewayTimeout:
		return err
	default:
		return backoff.Permanent(err)
	}
}

func candidatesOrEmpty(c []schemas.CandidateElement) []schemas.CandidateElement {
	if c == nil {
		return []schemas.CandidateElement{}
	}
	return c
}

func historyOrEmpty(h [][]schemas.ActionRecord) [][]schemas.ActionRecord {
	if h == nil {
		return [][]schemas.ActionRecord{}
	}
	return h
}

func imageDimensions(data []byte) (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read screenshot dimensions: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}
