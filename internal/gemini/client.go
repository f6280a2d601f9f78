package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/marketvision/cardgenbot/internal/config"
)

// Client talks to a Gemini-compatible generateContent endpoint. One POST per
// request, fixed timeout, no retries; every failure surfaces to the caller.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

// ImageOptions describes a single image generation call.
type ImageOptions struct {
	Model       string
	Prompt      string
	Images      [][]byte // reference images, JPEG-encoded
	AspectRatio string
	ImageSize   string
}

// TextOptions describes a single text generation call.
type TextOptions struct {
	Model           string
	Prompt          string
	Images          [][]byte
	Temperature     *float64
	MaxOutputTokens int
}

func NewClient(cfg config.Config, log *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	return &Client{
		apiKey:  cfg.GeminiAPIKey,
		baseURL: strings.TrimRight(cfg.GeminiBaseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generationConfig struct {
	ResponseModalities []string     `json:"responseModalities"`
	ImageConfig        *imageConfig `json:"imageConfig,omitempty"`
	Temperature        *float64     `json:"temperature,omitempty"`
	MaxOutputTokens    int          `json:"maxOutputTokens,omitempty"`
}

type imageConfig struct {
	AspectRatio string `json:"aspectRatio"`
	ImageSize   string `json:"imageSize"`
}

type request struct {
	Contents []struct {
		Parts []part `json:"parts"`
	} `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type response struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text       string `json:"text"`
				InlineData *struct {
					MimeType string `json:"mimeType"`
					Data     string `json:"data"`
				} `json:"inlineData"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// GenerateImage issues one generateContent call and returns the decoded image
// bytes from the first inline-data part of the response.
func (c *Client) GenerateImage(ctx context.Context, opts ImageOptions) ([]byte, error) {
	req := buildRequest(opts.Prompt, opts.Images)
	req.GenerationConfig = generationConfig{
		ResponseModalities: []string{"IMAGE"},
		ImageConfig: &imageConfig{
			AspectRatio: opts.AspectRatio,
			ImageSize:   opts.ImageSize,
		},
	}

	resp, err := c.post(ctx, opts.Model, req)
	if err != nil {
		return nil, err
	}

	for _, candidate := range resp.Candidates {
		for _, p := range candidate.Content.Parts {
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("decode image data: %w", err)
			}
			return data, nil
		}
	}
	return nil, fmt.Errorf("no image in response")
}

// GenerateText issues one generateContent call and returns the concatenated
// text parts of the first candidate.
func (c *Client) GenerateText(ctx context.Context, opts TextOptions) (string, error) {
	req := buildRequest(opts.Prompt, opts.Images)
	req.GenerationConfig = generationConfig{
		ResponseModalities: []string{"TEXT"},
		Temperature:        opts.Temperature,
		MaxOutputTokens:    opts.MaxOutputTokens,
	}

	resp, err := c.post(ctx, opts.Model, req)
	if err != nil {
		return "", err
	}

	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	text := sb.String()
	if text == "" {
		return "", fmt.Errorf("no text in response")
	}
	return text, nil
}

func buildRequest(prompt string, images [][]byte) request {
	parts := []part{{Text: prompt}}
	for _, img := range images {
		parts = append(parts, part{
			InlineData: &inlineData{
				MimeType: "image/jpeg",
				Data:     base64.StdEncoding.EncodeToString(img),
			},
		})
	}
	var req request
	req.Contents = make([]struct {
		Parts []part `json:"parts"`
	}, 1)
	req.Contents[0].Parts = parts
	return req
}

func (c *Client) post(ctx context.Context, model string, payload request) (*response, error) {
	fullURL := fmt.Sprintf("%s/%s:generateContent", c.baseURL, model)

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("post gemini: %w", err)
	}
	defer httpResp.Body.Close()

	rawBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		if c.log != nil {
			c.log.Error("gemini request failed", "status", httpResp.StatusCode, "model", model, "body", truncateBody(rawBody))
		}
		return nil, fmt.Errorf("gemini error: status=%d model=%s body=%s", httpResp.StatusCode, model, truncateBody(rawBody))
	}

	var resp response
	if err := json.Unmarshal(rawBody, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w (body=%s)", err, truncateBody(rawBody))
	}
	return &resp, nil
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
