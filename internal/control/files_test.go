package control

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-curator/internal/engine"
)

type resolverFunc func(id, name string) (string, error)

func (f resolverFunc) ImagePath(id, name string) (string, error) { return f(id, name) }

func TestImageHandler(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "img_0001.jpg")
	require.NoError(t, os.WriteFile(img, []byte("jpeg bytes"), 0o644))

	h := ImageHandler(resolverFunc(func(id, name string) (string, error) {
		switch {
		case id != "ab12cd34":
			return "", engine.ErrNotFound
		case name == "img_0001.jpg":
			return img, nil
		case name == "evil..jpg":
			return "", engine.ErrInvalidFilename
		}
		return "", engine.ErrNotFound
	}), nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	get := func(path string) (int, string) {
		resp, err := srv.Client().Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(body)
	}

	code, body := get("/jobs/ab12cd34/images/img_0001.jpg")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "jpeg bytes", body)

	code, _ = get("/jobs/ab12cd34/images/evil..jpg")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = get("/jobs/ab12cd34/images/missing.jpg")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = get("/jobs/unknown/images/img_0001.jpg")
	assert.Equal(t, http.StatusNotFound, code)
}
