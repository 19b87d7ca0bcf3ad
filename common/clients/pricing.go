package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// PricingClient talks to the crop price prediction service. The service is
// optional; deployments without it leave the base URL empty and callers
// check Enabled before use.
type PricingClient struct {
	baseURL string
	http    *HTTPClient
	logger  Logger
}

// NewPricingClient creates a new pricing client
func NewPricingClient(baseURL string, timeout time.Duration, logger Logger) *PricingClient {
	httpClient := &http.Client{
		Timeout: timeout,
	}

	return &PricingClient{
		baseURL: baseURL,
		http:    NewHTTPClient(httpClient, logger),
		logger:  logger,
	}
}

// Enabled reports whether a prediction service is configured.
func (c *PricingClient) Enabled() bool {
	return c.baseURL != ""
}

// PredictionInput is the feature set the model scores.
type PredictionInput struct {
	Crop        string  `json:"crop"`
	State       string  `json:"state"`
	Month       int     `json:"month"`
	Year        int     `json:"year"`
	Area        float64 `json:"area"`        // hectares
	Rainfall    float64 `json:"rainfall"`    // mm
	Temperature float64 `json:"temperature"` // celsius
	Humidity    float64 `json:"humidity"`    // percent
}

// Prediction is the model's price estimate with its confidence band.
type Prediction struct {
	PredictedPrice     float64   `json:"predicted_price"`
	ConfidenceInterval []float64 `json:"confidence_interval"`
	Currency           string    `json:"currency"`
}

// CropCatalog lists the crops and states the model was trained on.
type CropCatalog struct {
	Crops  []string `json:"crops"`
	States []string `json:"states"`
}

// Predict scores one crop/season combination
// POST /api/predict
func (c *PricingClient) Predict(ctx context.Context, input PredictionInput) (*Prediction, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode prediction input: %w", err)
	}

	url := fmt.Sprintf("%s/api/predict", c.baseURL)
	resp, err := c.http.DoRequest(ctx, "POST", url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prediction: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("prediction request failed: status=%d, body=%s", resp.StatusCode, string(body))
	}

	var prediction Prediction
	if err := json.NewDecoder(resp.Body).Decode(&prediction); err != nil {
		return nil, fmt.Errorf("failed to decode prediction response: %w", err)
	}

	c.logger.Debug("fetched price prediction",
		"crop", input.Crop,
		"state", input.State,
		"predicted_price", prediction.PredictedPrice,
	)

	return &prediction, nil
}

// AvailableCrops fetches the crops and states the model can score
// GET /api/crops
func (c *PricingClient) AvailableCrops(ctx context.Context) (*CropCatalog, error) {
	url := fmt.Sprintf("%s/api/crops", c.baseURL)
	resp, err := c.http.DoRequest(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch crop catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("crop catalog request failed: status=%d, body=%s", resp.StatusCode, string(body))
	}

	var catalog CropCatalog
	if err := json.NewDecoder(resp.Body).Decode(&catalog); err != nil {
		return nil, fmt.Errorf("failed to decode crop catalog: %w", err)
	}

	return &catalog, nil
}
