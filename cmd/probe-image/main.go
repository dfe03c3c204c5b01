// cmd/probe-image reports how the quality filter judges one image, without
// running a collection.
//
// Usage:
//
//	./probe-image -input photo.jpg
//	./probe-image -input https://example.com/a.webp -blur 80
//	./probe-image -input photo.jpg -embed http://localhost:8000/embed -v
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/tendant/simple-curator/internal/download"
	"github.com/tendant/simple-curator/internal/embed"
	"github.com/tendant/simple-curator/internal/img"
)

func main() {
	input := flag.String("input", "", "Image file path or http(s) URL (required)")
	minSize := flag.Int("min-size", 300, "Minimum width and height in pixels")
	blur := flag.Float64("blur", 50, "Minimum Laplacian variance")
	endpoint := flag.String("embed", "", "Embedding endpoint to query (optional)")
	timeout := flag.Int("timeout", 30, "Timeout in seconds")
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Parse()

	if *input == "" {
		fmt.Println("Error: -input flag is required")
		flag.Usage()
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(*timeout)*time.Second)
	defer cancel()

	start := time.Now()
	data, err := load(ctx, *input)
	if err != nil {
		log.Fatalf("❌ Failed to read input: %v", err)
	}

	decoded, err := img.DecodeBytes(data)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	filter := img.QualityFilter{MinWidth: *minSize, MinHeight: *minSize, BlurThreshold: *blur}
	b := decoded.Bounds()
	sharpness := img.Sharpness(decoded)

	fmt.Println("\n📊 Image:")
	fmt.Println(strings.Repeat("-", 40))
	fmt.Printf("MIME Type: %s\n", http.DetectContentType(data))
	fmt.Printf("Dimensions: %dx%d pixels\n", b.Dx(), b.Dy())
	fmt.Printf("File Size: %s\n", formatBytes(int64(len(data))))
	fmt.Printf("Sharpness: %.2f (threshold %.2f)\n", sharpness, *blur)

	if filter.Accept(decoded) {
		fmt.Println("\n✅ Accepted")
	} else {
		fmt.Printf("\n🚫 Rejected: %s\n", rejection(filter, b.Dx(), b.Dy(), sharpness))
	}

	if *endpoint != "" {
		vec, err := embed.NewHTTP(*endpoint, os.Getenv("EMBED_API_KEY"), os.Getenv("EMBED_MODEL")).Embed(ctx, decoded)
		if err != nil {
			log.Fatalf("❌ Embedding failed: %v", err)
		}
		fmt.Printf("🧭 Embedding: %d dims, norm %.4f\n", len(vec), norm(vec))
	}

	if *verbose {
		fmt.Printf("⏱️  Time: %v\n", time.Since(start).Round(time.Millisecond))
	}
	fmt.Println()
}

func load(ctx context.Context, input string) ([]byte, error) {
	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		res, err := download.NewClient().Fetch(ctx, input)
		if err != nil {
			return nil, err
		}
		return res.Data, nil
	}
	return os.ReadFile(input)
}

func rejection(f img.QualityFilter, w, h int, sharpness float64) string {
	if w < f.MinWidth || h < f.MinHeight {
		return fmt.Sprintf("smaller than %dx%d", f.MinWidth, f.MinHeight)
	}
	if sharpness < f.BlurThreshold {
		return "too blurry"
	}
	return "unknown"
}

func norm(v []float32) float64 {
	var sq float64
	for _, x := range v {
		sq += float64(x) * float64(x)
	}
	return math.Sqrt(sq)
}

// formatBytes formats bytes into human-readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
