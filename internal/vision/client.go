// Package vision escalates a frame to a multimodal model for the
// assessments local analysis cannot make: crowd level, surf quality, rip
// currents and an overall beach score. Calls go through a rate limiter
// because every one costs money.
package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/lox/coastwatch/internal/detect"
	"github.com/lox/coastwatch/internal/imaging"
	"github.com/lox/coastwatch/internal/ratelimit"
	"github.com/lox/coastwatch/internal/weather"
)

const defaultModel = "gpt-4o-mini"

// ContextInputs carries earlier pipeline results into the prompt so the
// model grounds its assessment instead of guessing.
type ContextInputs struct {
	Local     *imaging.LocalResult
	Detection *detect.Result
	Weather   *weather.Snapshot
}

// Client sends frames to the vision model.
type Client struct {
	client      openai.Client
	model       string
	maxTokens   int64
	temperature float64
	limiter     *ratelimit.Limiter
}

// NewClient builds a vision client. The limiter is shared across beaches;
// AnalyzeFrame blocks on it before spending a request.
func NewClient(apiKey, model string, limiter *ratelimit.Limiter) *Client {
	if model == "" {
		model = defaultModel
	}
	return &Client{
		client:      openai.NewClient(option.WithAPIKey(apiKey)),
		model:       model,
		maxTokens:   1024,
		temperature: 0.2,
		limiter:     limiter,
	}
}

// Model returns the configured model name, recorded with each observation.
func (c *Client) Model() string { return c.model }

// AnalyzeFrame sends one frame plus pipeline context to the model and
// returns the validated analysis. Budget exhaustion surfaces as
// ratelimit.ErrDailyBudgetExhausted via errors.Is; transport and API
// failures come back as *ServiceError, malformed replies as *ParseError.
func (c *Client) AnalyzeFrame(ctx context.Context, beachID string, imageBytes []byte, inputs ContextInputs) (*Analysis, error) {
	if c.limiter != nil {
		if err := c.limiter.Acquire(ctx); err != nil {
			return nil, err
		}
	}

	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(imageBytes)

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(c.model),
		MaxCompletionTokens: openai.Int(c.maxTokens),
		Temperature:         openai.Float(c.temperature),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL:    dataURL,
					Detail: "low",
				}),
				openai.TextContentPart(buildContext(beachID, inputs)),
			}),
		},
	})
	if err != nil {
		return nil, &ServiceError{BeachID: beachID, Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &ServiceError{BeachID: beachID, Err: fmt.Errorf("empty response")}
	}

	return parseAnalysis(resp.Choices[0].Message.Content)
}

// buildContext summarizes what the earlier stages saw so the model can
// reconcile its reading of the image against measured conditions.
func buildContext(beachID string, inputs ContextInputs) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Beach: %s\n", beachID)

	if l := inputs.Local; l != nil {
		fmt.Fprintf(&b, "Local wave estimate: %s (whitecap ratio %.3f, confidence %.2f)\n",
			l.Waves.Level, l.Waves.WhitecapRatio, l.Waves.Confidence)
		fmt.Fprintf(&b, "Image quality score: %.2f\n", l.Quality.Score)
	}
	if d := inputs.Detection; d != nil {
		fmt.Fprintf(&b, "Person detector counted %d people (avg confidence %.2f, %s)\n",
			d.Count, d.AvgConfidence, d.Method)
	}
	if w := inputs.Weather; w != nil {
		if w.TemperatureC != nil {
			fmt.Fprintf(&b, "Air temperature: %.1f C\n", *w.TemperatureC)
		}
		if w.WindSpeedKmh != nil {
			if w.WindDirection != nil {
				fmt.Fprintf(&b, "Wind: %.0f km/h from %s\n", *w.WindSpeedKmh, *w.WindDirection)
			} else {
				fmt.Fprintf(&b, "Wind: %.0f km/h\n", *w.WindSpeedKmh)
			}
		}
		if w.Condition != nil {
			fmt.Fprintf(&b, "Reported conditions: %s\n", *w.Condition)
		}
	}

	b.WriteString("Analyze the webcam frame and respond with the JSON object described in your instructions.")
	return b.String()
}

const systemPrompt = `You are a coastal conditions analyst reviewing a single beach webcam frame.

Assess the frame and respond with ONLY a JSON object, no markdown, matching exactly this shape:

{
  "crowd": {
    "count": <estimated number of people visible>,
    "level": "<empty|quiet|moderate|busy|packed>",
    "distribution": "<where people are concentrated>",
    "notes": "<anything notable about beach usage>"
  },
  "waves": {
    "size": "<flat|small|medium|large|huge>",
    "quality": "<poor|fair|good|clean|excellent>",
    "type": "<beach break description, e.g. closeouts, peeling lefts>",
    "period": "<short|medium|long>",
    "notes": "<anything notable about the surf>"
  },
  "weather": {
    "condition": "<sunny|partly_cloudy|overcast|rain|fog|storm>",
    "wind_estimate": "<calm|light|moderate|strong>",
    "wind_direction": "<onshore|offshore|cross-shore|unknown>",
    "visibility": "<excellent|good|fair|poor>",
    "notes": "<anything notable about the weather>"
  },
  "currents": {
    "rip_detected": <true|false>,
    "danger_level": "<safe|low|moderate|high|extreme>",
    "indicators": ["<visible rip indicators: darker channels, gaps in breaking waves, sediment plumes, debris moving seaward>"],
    "notes": "<anything notable about water safety>"
  },
  "overall": {
    "beach_score": <1-10, overall attractiveness for a beach visit right now>,
    "surf_score": <1-10, overall attractiveness for surfing right now, or null if this is not a surf spot>,
    "summary": "<one sentence describing current conditions>",
    "best_for": ["<activities this moment suits: swimming, surfing, walking, sunbathing, photography>"]
  }
}

Ground your assessment in what is actually visible. If people are too small
to count precisely, give your best estimate. Only report a rip current when
you can point at a concrete indicator in the frame. The measured context
provided with the image may correct your reading of scale and weather;
prefer it when it conflicts with your visual impression.`
