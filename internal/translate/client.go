package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/snaplate/backend/internal/imaging"
	"github.com/snaplate/backend/internal/logging"
)

const translatePath = "/translate"

// Client calls the remote image translation endpoint.
type Client struct {
	baseURL        string
	targetLanguage string
	image          imaging.Options
	http           *resty.Client
	logger         *zap.SugaredLogger
}

type ClientOptions struct {
	BaseURL        string
	TargetLanguage string
	Timeout        time.Duration
	Image          imaging.Options
	Logger         *zap.SugaredLogger
}

func NewClient(opts ClientOptions) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Client{
		baseURL:        opts.BaseURL,
		targetLanguage: opts.TargetLanguage,
		image:          opts.Image,
		http:           resty.New().SetTimeout(timeout).SetRetryCount(0),
		logger:         logging.OrNop(opts.Logger),
	}
}

type translateRequest struct {
	Base64Image    string `json:"base64_image"`
	TargetLanguage string `json:"target_language"`
}

// Pointers distinguish a missing field from an empty string.
type translateResponse struct {
	DetectedLanguage *string `json:"detected_language"`
	TranslatedText   *string `json:"translated_text"`
	OriginalText     *string `json:"original_text"`
}

func (c *Client) Translate(ctx context.Context, image []byte, targetLanguage string) (Result, error) {
	if targetLanguage == "" {
		targetLanguage = c.targetLanguage
	}

	data, err := imaging.Compress(image, c.image)
	if err != nil {
		return Result{}, &Error{Kind: KindInvalidImage, Err: err}
	}

	endpoint, err := c.endpoint()
	if err != nil {
		return Result{}, &Error{Kind: KindInvalidEndpoint, Err: err}
	}

	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(translateRequest{
			Base64Image:    imaging.UploadURI(data),
			TargetLanguage: targetLanguage,
		}).
		Post(endpoint)
	if err != nil {
		return Result{}, &Error{Kind: KindNetwork, Err: err}
	}

	status := resp.StatusCode()
	c.logger.Debugw("translate request finished",
		"status", status, "target_language", targetLanguage,
		"image_bytes", len(data), "elapsed", time.Since(start))

	if status < 200 || status > 299 {
		return Result{}, &Error{Kind: KindNetwork, Status: status, Err: fmt.Errorf("unexpected status %s", resp.Status())}
	}

	return decodeResult(resp.Body())
}

func decodeResult(body []byte) (Result, error) {
	var payload translateResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return Result{}, &Error{Kind: KindDecode, Err: err}
	}

	var missing []string
	if payload.DetectedLanguage == nil {
		missing = append(missing, "detected_language")
	}
	if payload.TranslatedText == nil {
		missing = append(missing, "translated_text")
	}
	if payload.OriginalText == nil {
		missing = append(missing, "original_text")
	}
	if len(missing) > 0 {
		return Result{}, &Error{Kind: KindDecode, Err: fmt.Errorf("missing fields: %s", strings.Join(missing, ", "))}
	}

	return Result{
		DetectedLanguage: *payload.DetectedLanguage,
		TranslatedText:   *payload.TranslatedText,
		OriginalText:     *payload.OriginalText,
	}, nil
}

func (c *Client) endpoint() (string, error) {
	if c.baseURL == "" {
		return "", errors.New("base url not configured")
	}
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host in %q", c.baseURL)
	}
	return strings.TrimRight(u.String(), "/") + translatePath, nil
}
