package embed

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
)

// InputSize is the longest edge of the image sent to the service.
const InputSize = 224

type embeddingRequest struct {
	Model string `json:"model,omitempty"`
	Image string `json:"image"`
}

type embeddingData struct {
	Embedding []float32 `json:"embedding"`
}

type embeddingResponse struct {
	Embedding []float32       `json:"embedding"`
	Data      []embeddingData `json:"data"`
}

// HTTP calls an image embedding service. The request body is
// {"model": ..., "image": <base64 JPEG>}; the response is either
// {"embedding": [...]} or {"data": [{"embedding": [...]}]}.
type HTTP struct {
	Endpoint string
	APIKey   string
	Model    string
	Client   *http.Client
}

func NewHTTP(endpoint, apiKey, model string) *HTTP {
	return &HTTP{
		Endpoint: endpoint,
		APIKey:   apiKey,
		Model:    model,
		Client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (h *HTTP) Embed(ctx context.Context, img image.Image) ([]float32, error) {
	var buf bytes.Buffer
	small := imaging.Fit(img, InputSize, InputSize, imaging.Lanczos)
	if err := imaging.Encode(&buf, small, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	reqBody, err := json.Marshal(embeddingRequest{
		Model: h.Model,
		Image: base64.StdEncoding.EncodeToString(buf.Bytes()),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.APIKey)
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024*1024))

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding API %d: %s", resp.StatusCode, string(body))
	}

	var result embeddingResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	if len(result.Embedding) > 0 {
		return result.Embedding, nil
	}
	if len(result.Data) > 0 && len(result.Data[0].Embedding) > 0 {
		return result.Data[0].Embedding, nil
	}
	return nil, fmt.Errorf("embedding API returned no vector")
}
