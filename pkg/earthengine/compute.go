package earthengine

import (
	"context"
	"encoding/json"
	"fmt"
)

// FeatureCollection is the GeoJSON-shaped result of sampling an image.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Feature is one sampled pixel. Band values arrive as properties.
type Feature struct {
	Type       string          `json:"type"`
	Geometry   json.RawMessage `json:"geometry,omitempty"`
	Properties map[string]any  `json:"properties"`
}

// Values extracts named numeric properties in order. Missing or
// non-numeric properties are skipped.
func (f Feature) Values(names []string) []float64 {
	out := make([]float64, 0, len(names))
	for _, name := range names {
		if v, ok := f.Properties[name].(float64); ok {
			out = append(out, v)
		}
	}
	return out
}

type computeRequest struct {
	Expression *Expression `json:"expression"`
}

type computeResponse struct {
	Result json.RawMessage `json:"result"`
}

// ComputeValue evaluates an expression server-side and returns the raw
// result value.
func (c *Client) ComputeValue(ctx context.Context, expr *Expression) (json.RawMessage, error) {
	var resp computeResponse
	endpoint := fmt.Sprintf("/projects/%s/value:compute", c.project)
	if err := c.post(ctx, endpoint, computeRequest{Expression: expr}, &resp); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// CollectionSize evaluates an expression expected to produce a count.
func (c *Client) CollectionSize(ctx context.Context, expr *Expression) (int, error) {
	raw, err := c.ComputeValue(ctx, expr)
	if err != nil {
		return 0, err
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("failed to parse collection size: %v", err)
	}
	return n, nil
}

// SampleEmbeddings evaluates a sampling expression and returns the
// resulting feature collection.
func (c *Client) SampleEmbeddings(ctx context.Context, expr *Expression) (*FeatureCollection, error) {
	raw, err := c.ComputeValue(ctx, expr)
	if err != nil {
		return nil, err
	}
	var fc FeatureCollection
	if err := json.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse feature collection: %v", err)
	}
	return &fc, nil
}
