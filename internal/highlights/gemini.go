// Package highlights wraps the Gemini collaborator used to propose
// highlight scenes for a newly submitted video. It satisfies
// pipeline.HighlightClient.
package highlights

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/vclip/vclip/internal/pipeline"
	"github.com/vclip/vclip/internal/types"
)

const promptTemplate = `You are selecting short highlight clips from a video.
Return a JSON array of scenes, each with fields:
id (integer), title (string), start ("HH:MM:SS"), end ("HH:MM:SS"),
pad_before (seconds, float), pad_after (seconds, float), category (string).
Return only the JSON array, nothing else.

Additional instructions from the uploader: %s`

// sceneResponse mirrors the JSON shape asked of the model; decoded
// separately from types.Highlight so a model-side field rename doesn't
// silently zero out our domain type.
type sceneResponse struct {
	ID        uint32  `json:"id"`
	Title     string  `json:"title"`
	Start     string  `json:"start"`
	End       string  `json:"end"`
	PadBefore float64 `json:"pad_before"`
	PadAfter  float64 `json:"pad_after"`
	Category  string  `json:"category"`
}

// Client calls Gemini to extract highlight scenes from a source video URL.
type Client struct {
	genai   *genai.Client
	model   string
	timeout time.Duration
}

func NewClient(ctx context.Context, apiKey, model string, timeout time.Duration) (*Client, error) {
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("highlights: create genai client: %w", err)
	}
	return &Client{genai: c, model: model, timeout: timeout}, nil
}

// ExtractHighlights asks Gemini to propose highlight scenes for videoURL,
// satisfying pipeline.HighlightClient. A 429/5xx/timeout from the API
// surfaces as a *pipeline.RetriableError so the caller's retry policy
// applies.
func (c *Client) ExtractHighlights(ctx context.Context, videoURL string, promptInstructions *string) ([]types.Highlight, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	instructions := ""
	if promptInstructions != nil {
		instructions = *promptInstructions
	}
	prompt := fmt.Sprintf(promptTemplate, instructions)

	parts := []*genai.Part{
		genai.NewPartFromURI(videoURL, "video/mp4"),
		genai.NewPartFromText(prompt),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := c.genai.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		if isRetriable(err) {
			return nil, &pipeline.RetriableError{Err: err}
		}
		return nil, fmt.Errorf("highlights: generate content: %w", err)
	}

	text := resp.Text()
	scenes, err := parseScenes(text)
	if err != nil {
		return nil, fmt.Errorf("highlights: parse model response: %w", err)
	}

	out := make([]types.Highlight, len(scenes))
	for i, s := range scenes {
		out[i] = types.Highlight{
			ID: s.ID, Title: s.Title, Start: s.Start, End: s.End,
			PadBefore: s.PadBefore, PadAfter: s.PadAfter, Category: s.Category,
		}
	}
	return out, nil
}

func parseScenes(text string) ([]sceneResponse, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	var scenes []sceneResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &scenes); err != nil {
		return nil, err
	}
	return scenes, nil
}

// isRetriable treats rate-limit and server-side failures as transient.
// The genai client surfaces HTTP-layer failures as plain errors whose
// text carries the status, so this matches on substrings rather than a
// typed error to stay resilient to client-library version drift.
func isRetriable(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "500", "502", "503", "504", "rate limit", "deadline exceeded", "unavailable"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
