package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/registrydash/internal/config"
	"git.home.luguber.info/inful/registrydash/internal/dashboard"
	"git.home.luguber.info/inful/registrydash/internal/foundation/errors"
)

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/model_registry/v1alpha3/registered_models":
			w.Header().Set("Content-Type", "application/json")
			_, _ = fmt.Fprint(w, `{"items":[{"id":"1","name":"fraud"}],"size":1,"pageSize":100}`)
		case "/api/model_catalog/v1alpha1/sources":
			http.Error(w, "upstream down", http.StatusBadGateway)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, hostPath string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "registrydash.yaml")
	content := fmt.Sprintf(`api:
  host_path: %q
  timeout: 2s
storage:
  path: %q
`, hostPath, filepath.Join(dir, "events.db"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func testGlobal(out *bytes.Buffer) *Global {
	return &Global{Logger: slog.New(slog.DiscardHandler), Out: out}
}

func TestFetchPrintsLoadedResource(t *testing.T) {
	backend := newBackend(t)
	var out bytes.Buffer
	cmd := &FetchCmd{Resource: dashboard.ResourceModels, Timeout: 5 * time.Second}

	require.NoError(t, cmd.Run(testGlobal(&out), &CLI{Config: writeConfig(t, backend.URL)}))

	var v struct {
		Name   string `json:"name"`
		Loaded bool   `json:"loaded"`
		Data   struct {
			Items []struct {
				Name string `json:"name"`
			} `json:"items"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &v))
	assert.Equal(t, dashboard.ResourceModels, v.Name)
	assert.True(t, v.Loaded)
	require.Len(t, v.Data.Items, 1)
	assert.Equal(t, "fraud", v.Data.Items[0].Name)
}

func TestFetchRawBody(t *testing.T) {
	backend := newBackend(t)
	var out bytes.Buffer
	cmd := &FetchCmd{Resource: dashboard.ResourceModels, Timeout: 5 * time.Second, Raw: true}

	require.NoError(t, cmd.Run(testGlobal(&out), &CLI{Config: writeConfig(t, backend.URL)}))
	assert.Contains(t, out.String(), `"data":{"items":[{"id":"1","name":"fraud"}],"size":1,"pageSize":100}`)
}

func TestFetchReportsTerminalError(t *testing.T) {
	backend := newBackend(t)
	var out bytes.Buffer
	cmd := &FetchCmd{Resource: dashboard.ResourceCatalogSources, Timeout: 5 * time.Second}

	err := cmd.Run(testGlobal(&out), &CLI{Config: writeConfig(t, backend.URL)})
	require.Error(t, err)
	assert.Equal(t, errors.CategoryFetch, errors.GetCategory(err))
	assert.Equal(t, 8, errors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))
	assert.Contains(t, out.String(), `"error"`)
}

func TestFetchNotReadyWithoutHostPath(t *testing.T) {
	var out bytes.Buffer
	cmd := &FetchCmd{Resource: dashboard.ResourceModels, Timeout: 5 * time.Second}

	err := cmd.Run(testGlobal(&out), &CLI{Config: writeConfig(t, "")})
	require.Error(t, err)
	assert.True(t, errors.IsNotReady(err))
	assert.Equal(t, 3, errors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))
}

func TestFetchUnknownResource(t *testing.T) {
	var out bytes.Buffer
	cmd := &FetchCmd{Resource: "nope", Timeout: time.Second}
	err := cmd.Run(testGlobal(&out), &CLI{Config: writeConfig(t, "")})
	assert.Equal(t, errors.CategoryNotFound, errors.GetCategory(err))
	assert.Empty(t, out.String())
}

func TestFetchMissingConfig(t *testing.T) {
	var out bytes.Buffer
	cmd := &FetchCmd{Resource: dashboard.ResourceModels, Timeout: time.Second}
	err := cmd.Run(testGlobal(&out), &CLI{Config: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Equal(t, errors.CategoryConfig, errors.GetCategory(err))
}

func TestInit(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer

	require.NoError(t, (&InitCmd{Output: dir}).Run(testGlobal(&out), &CLI{}))
	assert.Contains(t, out.String(), "initialized successfully")
	assert.FileExists(t, filepath.Join(dir, "registrydash.yaml"))

	require.Error(t, (&InitCmd{Output: dir}).Run(testGlobal(&out), &CLI{}))
	require.NoError(t, (&InitCmd{Output: dir, Force: true}).Run(testGlobal(&out), &CLI{}))
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, (&VersionCmd{}).Run(testGlobal(&out)))
	assert.Contains(t, out.String(), "registrydash ")

	out.Reset()
	require.NoError(t, (&VersionCmd{JSON: true}).Run(testGlobal(&out)))
	var info map[string]string
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.Contains(t, info, "go_version")
}

func TestResources(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, ResourcesCmd{}.Run(testGlobal(&out)))
	assert.Contains(t, out.String(), dashboard.ResourceK8sRegistries+"\n")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, config.LogLevelWarn, config.LogFormatJSON, false).Info("hidden")
	assert.Empty(t, buf.String())

	newLogger(&buf, config.LogLevelWarn, config.LogFormatJSON, true).Debug("shown")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	buf.Reset()
	newLogger(&buf, config.LogLevelInfo, config.LogFormatText, false).Info("text")
	assert.Contains(t, buf.String(), "msg=text")
}

func TestServeUntilCancelled(t *testing.T) {
	backend := newBackend(t)
	path := writeConfig(t, backend.URL)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	addrCh := make(chan string, 1)
	errCh := make(chan error, 1)
	cmd := &ServeCmd{Address: "127.0.0.1:0"}
	go func() {
		errCh <- cmd.serve(ctx, cfg, path, slog.New(slog.DiscardHandler), func(addr string) { addrCh <- addr })
	}()

	var addr string
	select {
	case addr = <-addrCh:
	case err := <-errCh:
		require.FailNow(t, "serve returned early", "%v", err)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "server did not start")
	}

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/api/v1/resources/models")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var v dashboard.View
		return json.NewDecoder(resp.Body).Decode(&v) == nil && v.Loaded
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "serve did not stop")
	}
}
