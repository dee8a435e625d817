package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// GenerationProgress is one progress event from an on-demand tour
// generation job.
type GenerationProgress struct {
	Stage   string `json:"stage"`
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

// generationEvent is the wire shape of one stream message. Type is
// "progress", "complete", or "error".
type generationEvent struct {
	Type string `json:"type"`
	GenerationProgress
	Tour  *Tour  `json:"tour,omitempty"`
	Error string `json:"error,omitempty"`
}

// GenerateTour requests on-demand generation of a narration and streams
// progress until the job settles. onProgress may be nil. Concurrent
// generation requests for the same place and type share one job.
func (c *Client) GenerateTour(ctx context.Context, placeID, tourType string, onProgress func(GenerationProgress)) (*Tour, error) {
	sig := placeSignature("generate", placeID, tourType)

	body, err := c.dispatcher.Dispatch(ctx, sig, true,
		c.jsonPost("/tours/generate", map[string]any{
			"place_id":  placeID,
			"tour_type": tourType,
		}),
	)
	if err != nil {
		return nil, err
	}

	var job struct {
		JobID     string `json:"job_id"`
		StreamURL string `json:"stream_url"`
	}

	if err := json.Unmarshal(body, &job); err != nil || job.StreamURL == "" {
		return nil, fmt.Errorf("%w: generation job response", ErrBadPayload)
	}

	return c.streamGeneration(ctx, job.StreamURL, onProgress)
}

// streamGeneration consumes the job's websocket until a terminal event.
func (c *Client) streamGeneration(ctx context.Context, streamURL string, onProgress func(GenerationProgress)) (*Tour, error) {
	token, err := c.dispatcher.tokens.GetToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("api: obtaining token for generation stream: %w", err)
	}

	header := http.Header{}
	header.Set("Authorization", token)
	header.Set("User-Agent", userAgent)

	conn, _, err := websocket.Dial(ctx, streamURL, &websocket.DialOptions{
		HTTPClient: c.httpClient,
		HTTPHeader: header,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: generation stream: %w", ErrUnreachable, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	for {
		var event generationEvent

		if err := wsjson.Read(ctx, conn, &event); err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("api: generation canceled: %w", ctx.Err())
			}

			var closeErr websocket.CloseError
			if errors.As(err, &closeErr) {
				return nil, fmt.Errorf("api: generation stream closed early (%s)", closeErr.Reason)
			}

			return nil, fmt.Errorf("%w: generation stream: %w", ErrUnreachable, err)
		}

		switch event.Type {
		case "progress":
			if onProgress != nil {
				onProgress(event.GenerationProgress)
			}

		case "complete":
			if event.Tour == nil {
				return nil, fmt.Errorf("%w: complete event missing tour", ErrBadPayload)
			}

			return event.Tour, nil

		case "error":
			return nil, &APIError{
				StatusCode: http.StatusUnprocessableEntity,
				Message:    event.Error,
				Err:        ErrServerError,
			}

		default:
			c.logger.Debug("ignoring unknown generation event", "type", event.Type)
		}
	}
}
