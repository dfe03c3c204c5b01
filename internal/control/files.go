package control

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/tendant/simple-curator/internal/engine"
)

// ImageResolver maps a job file name to a path on disk.
type ImageResolver interface {
	ImagePath(id, name string) (string, error)
}

// ImageHandler serves GET /jobs/{id}/images/{name}.
func ImageHandler(r ImageResolver, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /jobs/{id}/images/{name}", func(w http.ResponseWriter, req *http.Request) {
		id, name := req.PathValue("id"), req.PathValue("name")
		path, err := r.ImagePath(id, name)
		switch {
		case errors.Is(err, engine.ErrInvalidFilename):
			http.Error(w, "invalid filename", http.StatusBadRequest)
			return
		case errors.Is(err, engine.ErrNotFound):
			http.Error(w, "job or file not found", http.StatusNotFound)
			return
		case err != nil:
			logger.Error("resolve job image", "job_id", id, "name", name, "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		http.ServeFile(w, req, path)
	})
	return mux
}
