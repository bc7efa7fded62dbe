package internal

import (
	"context"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDevServerHistoryFallback(t *testing.T) {
	static := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(static, "index.html"), []byte("<html>app</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(static, "app.js"), []byte("console.log(1)"), 0o644))

	app := newDevServer(&DevServer{Static: static, HistoryAPIFallback: true})
	for path, want := range map[string]string{
		"/app.js":        "console.log(1)",
		"/users/42/edit": "<html>app</html>",
	} {
		resp, err := app.Test(httptest.NewRequest("GET", path, nil))
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode, path)
		assert.Equal(t, want, string(body), path)
	}

	app = newDevServer(&DevServer{Static: static})
	resp, err := app.Test(httptest.NewRequest("GET", "/users/42", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestServeNeedsDevServer(t *testing.T) {
	err := Serve(context.Background(), &Configuration{Target: TargetNode})
	assert.ErrorContains(t, err, "dev server")
}
