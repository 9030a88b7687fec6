// Package inference talks to the model sidecar that runs plate detection and
// text recognition.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"gate-service/internal/domain/anpr"
)

const jpegQuality = 90

// HTTPError is returned for non-2xx sidecar responses.
type HTTPError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("inference %s: http %d: %s", e.Path, e.StatusCode, strings.TrimSpace(e.Body))
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type detectionDTO struct {
	Box   [4]float64 `json:"box"`
	Score float64    `json:"score"`
	Class string     `json:"class"`
}

type fragmentDTO struct {
	Box   [4]float64 `json:"box"`
	Text  string     `json:"text"`
	Score float64    `json:"score"`
}

// Detect returns plate detections for frame in the order the model emits
// them. A missing class is treated as a plate.
func (c *Client) Detect(ctx context.Context, frame image.Image) ([]anpr.Detection, error) {
	var dtos []detectionDTO
	if err := c.post(ctx, "/detect", frame, &dtos); err != nil {
		return nil, err
	}
	out := make([]anpr.Detection, 0, len(dtos))
	for _, d := range dtos {
		class := d.Class
		if class == "" {
			class = anpr.ClassPlate
		}
		out = append(out, anpr.Detection{Box: toBox(d.Box), Score: d.Score, Class: class})
	}
	return out, nil
}

// Recognize returns the text fragments read from a plate crop.
func (c *Client) Recognize(ctx context.Context, crop image.Image) ([]anpr.Fragment, error) {
	var dtos []fragmentDTO
	if err := c.post(ctx, "/recognize", crop, &dtos); err != nil {
		return nil, err
	}
	out := make([]anpr.Fragment, 0, len(dtos))
	for _, f := range dtos {
		out = append(out, anpr.Fragment{Box: toBox(f.Box), Text: f.Text, Score: f.Score})
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, path string, img image.Image, out any) error {
	var body bytes.Buffer
	if err := imaging.Encode(&body, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("inference %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &HTTPError{Path: path, StatusCode: resp.StatusCode, Body: string(msg)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("inference %s: malformed response: %w", path, err)
	}
	return nil
}

func toBox(b [4]float64) anpr.Box {
	return anpr.Box{X1: b[0], Y1: b[1], X2: b[2], Y2: b[3]}
}
