// Package embed turns images into feature vectors.
package embed

import (
	"context"
	"image"
)

// Embedder maps an image to a feature vector. Vectors from one Embedder
// share a dimension.
type Embedder interface {
	Embed(ctx context.Context, img image.Image) ([]float32, error)
}

// Func adapts a function to Embedder.
type Func func(ctx context.Context, img image.Image) ([]float32, error)

func (f Func) Embed(ctx context.Context, img image.Image) ([]float32, error) {
	return f(ctx, img)
}
