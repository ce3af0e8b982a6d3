package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"model-repository-service/internal/adapters/secondary/archive"
	"model-repository-service/internal/adapters/secondary/backends"
	"model-repository-service/internal/adapters/secondary/filesystem"
	"model-repository-service/internal/adapters/secondary/sdfile"
	"model-repository-service/internal/core/domain"
	ports "model-repository-service/internal/core/ports/output"
	"model-repository-service/internal/core/services"
	"model-repository-service/internal/testutil"
)

const apiPrefix = "/api/v1/model-repository"

type testEnv struct {
	store     ports.EndpointStore
	exportDir string
	router    *gin.Engine
}

func setupRouter(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := filesystem.NewEndpointStore(t.TempDir())
	require.NoError(t, err)
	exportDir := t.TempDir()

	reader := sdfile.NewReader()
	pipeline := services.NewFeaturePipeline(reader, sdfile.NewWorkflow(), t.TempDir(), nil)
	learn := services.NewLearnService(store, backends.NewRegistry(), nil)

	h := New(
		services.NewEndpointService(store, nil, nil),
		services.NewArchiveService(store, archive.NewTarball(), exportDir, nil, nil),
		services.NewBuildService(store, reader, pipeline, learn, 2, nil, nil),
	)
	r := gin.New()
	h.RegisterRoutes(r.Group(apiPrefix))

	return &testEnv{store: store, exportDir: exportDir, router: r}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, apiPrefix+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestCreateEndpoint(t *testing.T) {
	env := setupRouter(t)

	w := env.do(t, "POST", "/endpoints", map[string]string{"name": "E1"})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, true, decode(t, w)["success"])

	w = env.do(t, "POST", "/endpoints", map[string]string{"name": "E1"})
	assert.Equal(t, http.StatusConflict, w.Code)
	resp := decode(t, w)
	assert.Equal(t, false, resp["success"])
	assert.Contains(t, resp["message"], "already exists")
}

func TestCreateEndpoint_BadRequest(t *testing.T) {
	env := setupRouter(t)

	w := env.do(t, "POST", "/endpoints", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, "POST", "/endpoints", map[string]string{"name": "../escape"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPublishAndListVersions(t *testing.T) {
	env := setupRouter(t)
	require.Equal(t, http.StatusCreated, env.do(t, "POST", "/endpoints", map[string]string{"name": "E1"}).Code)

	w := env.do(t, "POST", "/endpoints/E1/versions", nil)
	assert.Equal(t, http.StatusCreated, w.Code)
	version := decode(t, w)["version"].(map[string]interface{})
	assert.Equal(t, float64(1), version["id"])
	assert.Equal(t, "ver000001", version["label"])

	w = env.do(t, "GET", "/endpoints/E1/versions", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var tree struct {
		Endpoint string `json:"endpoint"`
		Versions []struct {
			Label string `json:"label"`
		} `json:"versions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tree))
	assert.Equal(t, "E1", tree.Endpoint)
	require.Len(t, tree.Versions, 2)
	assert.Equal(t, "dev", tree.Versions[0].Label)
	assert.Equal(t, "ver000001", tree.Versions[1].Label)

	w = env.do(t, "GET", "/endpoints", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["total"])
}

func TestPublish_MissingEndpoint(t *testing.T) {
	env := setupRouter(t)

	w := env.do(t, "POST", "/endpoints/ghost/versions", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, false, decode(t, w)["success"])
}

func TestDeleteVersion(t *testing.T) {
	env := setupRouter(t)
	require.Equal(t, http.StatusCreated, env.do(t, "POST", "/endpoints", map[string]string{"name": "E1"}).Code)
	require.Equal(t, http.StatusCreated, env.do(t, "POST", "/endpoints/E1/versions", nil).Code)

	tests := []struct {
		name string
		ver  string
		want int
	}{
		{"dev is immutable", "0", http.StatusBadRequest},
		{"not a number", "latest", http.StatusBadRequest},
		{"unknown version", "7", http.StatusNotFound},
		{"by label", "ver000001", http.StatusOK},
		{"already removed", "1", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "DELETE", "/endpoints/E1/versions/"+tt.ver, nil)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestDeleteEndpoint(t *testing.T) {
	env := setupRouter(t)
	require.Equal(t, http.StatusCreated, env.do(t, "POST", "/endpoints", map[string]string{"name": "E1"}).Code)

	assert.Equal(t, http.StatusOK, env.do(t, "DELETE", "/endpoints/E1", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, "DELETE", "/endpoints/E1", nil).Code)
}

func TestGetVersionInfo(t *testing.T) {
	env := setupRouter(t)
	require.Equal(t, http.StatusCreated, env.do(t, "POST", "/endpoints", map[string]string{"name": "E1"}).Code)

	w := env.do(t, "GET", "/endpoints/E1/versions/dev/info", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	info := domain.ModelInfo{
		SchemaVersion: domain.ArtifactSchemaVersion,
		Backend:       "RIDGE",
		Build:         domain.Stats{{Name: "nobj", Unit: "objects", Value: 10}},
		Validation:    domain.Stats{{Name: "Q2", Value: 0.8}},
	}
	data, err := json.Marshal(info)
	require.NoError(t, err)
	_, err = env.store.WriteFile(t.Context(), "E1", domain.DevVersion, domain.InfoFileName, data)
	require.NoError(t, err)

	w = env.do(t, "GET", "/endpoints/E1/versions/dev/info?output=text", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nobj (objects) : 10\nQ2 () : 0.8\n", w.Body.String())

	w = env.do(t, "GET", "/endpoints/E1/versions/0/info", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "RIDGE", resp["backend"])
	assert.Len(t, resp["items"], 2)

	w = env.do(t, "GET", "/endpoints/E1/versions/dev/info?output=xml", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetVersionModel(t *testing.T) {
	env := setupRouter(t)
	require.Equal(t, http.StatusCreated, env.do(t, "POST", "/endpoints", map[string]string{"name": "E1"}).Code)

	assert.Equal(t, http.StatusNotFound, env.do(t, "GET", "/endpoints/E1/versions/dev/model", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, "GET", "/endpoints/E1/versions/3/model", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, "GET", "/endpoints/E1/versions/latest/model", nil).Code)

	_, err := env.store.WriteFile(t.Context(), "E1", domain.DevVersion, domain.ModelFileName,
		[]byte(`{"schema_version":1,"backend":"RIDGE","model":{"intercept":1}}`))
	require.NoError(t, err)

	w := env.do(t, "GET", "/endpoints/E1/versions/dev/model", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "RIDGE", resp["backend"])
	assert.Equal(t, map[string]any{"intercept": 1.0}, resp["model"])

	_, err = env.store.WriteFile(t.Context(), "E1", domain.DevVersion, domain.ModelFileName,
		[]byte(`{"schema_version":7,"model":{}}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, env.do(t, "GET", "/endpoints/E1/versions/dev/model", nil).Code)
}

func TestGetHistory_WithoutCatalog(t *testing.T) {
	env := setupRouter(t)
	require.Equal(t, http.StatusCreated, env.do(t, "POST", "/endpoints", map[string]string{"name": "E1"}).Code)

	w := env.do(t, "GET", "/endpoints/E1/history", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["items"])
}

func TestExportImport(t *testing.T) {
	env := setupRouter(t)
	require.Equal(t, http.StatusCreated, env.do(t, "POST", "/endpoints", map[string]string{"name": "E1"}).Code)
	require.Equal(t, http.StatusCreated, env.do(t, "POST", "/endpoints/E1/versions", nil).Code)

	w := env.do(t, "POST", "/endpoints/E1/export", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	path := decode(t, w)["path"].(string)
	assert.Equal(t, filepath.Join(env.exportDir, "E1.tgz"), path)

	w = env.do(t, "POST", "/imports", map[string]string{"path": path})
	assert.Equal(t, http.StatusConflict, w.Code)

	require.Equal(t, http.StatusOK, env.do(t, "DELETE", "/endpoints/E1", nil).Code)
	w = env.do(t, "POST", "/imports", map[string]string{"path": path})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "E1", decode(t, w)["endpoint"])

	w = env.do(t, "POST", "/endpoints/E1/versions", nil)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, float64(2), decode(t, w)["version"].(map[string]interface{})["id"])
}

func TestImport_MissingArchive(t *testing.T) {
	env := setupRouter(t)

	w := env.do(t, "POST", "/imports", map[string]string{"path": filepath.Join(t.TempDir(), "nope")})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, decode(t, w)["message"], "archive file not found")
}

func TestBuildModel(t *testing.T) {
	env := setupRouter(t)
	require.Equal(t, http.StatusCreated, env.do(t, "POST", "/endpoints", map[string]string{"name": "E1"}).Code)
	dataset := testutil.WriteSDF(t, t.TempDir(), "train.sdf", testutil.Molecules(9))

	w := env.do(t, "POST", "/endpoints/E1/builds", map[string]interface{}{"dataset_path": dataset, "workers": 3})
	assert.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, float64(9), resp["records"])
	assert.Equal(t, float64(3), resp["chunks"])
	assert.Equal(t, "DONE", resp["outcome"].(map[string]interface{})["state"])
}

func TestBuildModel_Failures(t *testing.T) {
	env := setupRouter(t)
	require.Equal(t, http.StatusCreated, env.do(t, "POST", "/endpoints", map[string]string{"name": "E1"}).Code)
	dataset := testutil.WriteSDF(t, t.TempDir(), "train.sdf", testutil.Molecules(4))

	w := env.do(t, "POST", "/endpoints/E1/builds", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, "POST", "/endpoints/E1/builds", map[string]interface{}{"dataset_path": dataset, "algorithm": "svm"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp := decode(t, w)
	assert.Equal(t, false, resp["success"])
	assert.Equal(t, "FAILED", resp["outcome"].(map[string]interface{})["state"])

	w = env.do(t, "POST", "/endpoints/ghost/builds", map[string]interface{}{"dataset_path": dataset})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
