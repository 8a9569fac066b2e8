// Package classify predicts the owning team of a ticket through a model
// service.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/Sourjya261-BB/Jira-Router/config"
	"github.com/Sourjya261-BB/Jira-Router/internal/clean"
	"github.com/Sourjya261-BB/Jira-Router/internal/log"
)

// ErrMissingInput is returned when the summary or description is blank.
var ErrMissingInput = errors.New("both summary and description are required")

// Classifier maps a ticket to a team label.
type Classifier interface {
	Classify(ctx context.Context, summary, description string) (string, error)
}

// FormatQuery builds the model input from a summary and a raw description.
func FormatQuery(summary, description string) string {
	return "Summary: " + summary + "\nDescription: " + clean.Description(description)
}

// Predict validates the input and classifies it.
func Predict(ctx context.Context, c Classifier, summary, description string) (string, error) {
	if strings.TrimSpace(summary) == "" || strings.TrimSpace(description) == "" {
		return "", ErrMissingInput
	}
	return c.Classify(ctx, summary, description)
}

type predictRequest struct {
	Text string `json:"text"`
}

type predictResponse struct {
	Label   string `json:"label"`
	LabelID *int   `json:"label_id"`
}

// Client calls a model service exposing POST /predict.
type Client struct {
	url        string
	httpClient *http.Client
	labels     map[string]string
}

// NewClient creates a Client for the configured service.
func NewClient(cfg config.ModelConfig) *Client {
	return &Client{
		url:        strings.TrimRight(cfg.URL, "/") + "/predict",
		httpClient: &http.Client{Timeout: cfg.Timeout},
		labels:     cfg.Labels,
	}
}

// Classify sends the formatted query and resolves the returned label. A
// service that answers with an id only is resolved through the configured
// labels, falling back to LABEL_<id>.
func (c *Client) Classify(ctx context.Context, summary, description string) (string, error) {
	body, err := json.Marshal(predictRequest{Text: FormatQuery(summary, description)})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	log.Debug("classifying", "url", c.url, "bytes", len(body))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling model service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("model service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	return c.resolve(out)
}

func (c *Client) resolve(out predictResponse) (string, error) {
	if out.Label != "" {
		return out.Label, nil
	}
	if out.LabelID == nil {
		return "", errors.New("model service returned neither label nor label_id")
	}
	id := strconv.Itoa(*out.LabelID)
	if name, ok := c.labels[id]; ok && name != "" {
		return name, nil
	}
	return "LABEL_" + id, nil
}
