package embed

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.Color) image.Image {
	return imaging.New(w, h, c)
}

func TestHTTPEmbedSendsResizedJPEG(t *testing.T) {
	var got embeddingRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"embedding": [0.1, 0.2, 0.3]}`))
	}))
	defer srv.Close()

	vec, err := NewHTTP(srv.URL, "key", "clip").Embed(context.Background(), solid(640, 480, color.White))
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, "Bearer key", auth)
	assert.Equal(t, "clip", got.Model)

	raw, err := base64.StdEncoding.DecodeString(got.Image)
	require.NoError(t, err)
	sent, err := imaging.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, InputSize, sent.Bounds().Dx())
	assert.Equal(t, 168, sent.Bounds().Dy())
}

func TestHTTPEmbedAcceptsDataEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": [{"embedding": [1, 2]}]}`))
	}))
	defer srv.Close()

	vec, err := NewHTTP(srv.URL, "", "").Embed(context.Background(), solid(10, 10, color.Black))
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, vec)
}

func TestHTTPEmbedErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/empty" {
			_, _ = w.Write([]byte(`{"data": []}`))
			return
		}
		http.Error(w, "model offline", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTP(srv.URL, "", "").Embed(context.Background(), solid(10, 10, color.Black))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")

	_, err = NewHTTP(srv.URL+"/empty", "", "").Embed(context.Background(), solid(10, 10, color.Black))
	assert.Error(t, err)
}

func TestPixelEmbedIsMeanCentred(t *testing.T) {
	vec, err := NewPixel().Embed(context.Background(), solid(50, 50, color.RGBA{R: 255, A: 255}))
	require.NoError(t, err)
	require.Len(t, vec, 8*8*3)

	var sum float32
	for _, v := range vec {
		sum += v
	}
	assert.InDelta(t, 0, sum, 1e-3)
}

func TestPixelEmbedFlatGreyIsZero(t *testing.T) {
	vec, err := NewPixel().Embed(context.Background(), solid(20, 20, color.Gray{Y: 128}))
	require.NoError(t, err)
	for _, v := range vec {
		assert.InDelta(t, 0, v, 1e-6)
	}
}

func TestFuncAdapter(t *testing.T) {
	var e Embedder = Func(func(context.Context, image.Image) ([]float32, error) {
		return []float32{7}, nil
	})
	vec, err := e.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []float32{7}, vec)
}
