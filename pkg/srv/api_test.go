/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package srv

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c1728p9/usbtrace/pkg/config"
	"github.com/c1728p9/usbtrace/pkg/scsi"
	"github.com/c1728p9/usbtrace/pkg/store"
)

func newServer(t *testing.T) (*ApiServer, *store.State) {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), config.DBFile)
	state, err := store.NewState(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(state.Close)
	s, err := NewApiServer(context.Background(), cfg, state)
	require.NoError(t, err)
	return s, state
}

func serve(s *ApiServer, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestListCaptures(t *testing.T) {
	s, state := newServer(t)

	rec := serve(s, http.MethodGet, "/api/captures")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	require.NoError(t, state.SaveCapture("disk", nil))
	rec = serve(s, http.MethodGet, "/api/captures")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["disk"]`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestGetCapture(t *testing.T) {
	s, state := newServer(t)
	require.NoError(t, state.SaveCapture("disk", []*scsi.Record{
		{ID: 1, Tag: 7, Name: "TestUnitReady", StatusName: "Pass"},
		{ID: 4, Tag: 8, Name: "Read10", Data: []byte("data")},
	}))

	rec := serve(s, http.MethodGet, "/api/captures/disk")
	require.Equal(t, http.StatusOK, rec.Code)
	var records []*scsi.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 2)
	assert.Equal(t, uint32(7), records[0].Tag)
	assert.Nil(t, records[1].Data)

	rec = serve(s, http.MethodGet, "/api/captures/disk?data=true")
	require.Equal(t, http.StatusOK, rec.Code)
	records = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	assert.Equal(t, []byte("data"), records[1].Data)

	rec = serve(s, http.MethodGet, "/api/captures/other")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteCapture(t *testing.T) {
	s, state := newServer(t)
	require.NoError(t, state.SaveCapture("disk", nil))

	rec := serve(s, http.MethodDelete, "/api/captures/disk")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = serve(s, http.MethodDelete, "/api/captures/disk")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newServer(t)
	rec := serve(s, http.MethodPost, "/api/captures/disk")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRunStopsWithContext(t *testing.T) {
	s, _ := newServer(t)
	s.Config.Api = &config.ApiConfig{Address: "127.0.0.1", Port: 0}
	ctx, cancel := context.WithCancel(context.Background())
	s.Context = ctx
	done := make(chan error)
	go func() {
		done <- s.Run()
	}()
	cancel()
	assert.NoError(t, <-done)
}

func TestDocs(t *testing.T) {
	s, _ := newServer(t)

	rec := serve(s, http.MethodGet, "/api/swagger.json")
	require.Equal(t, http.StatusOK, rec.Code)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	paths, ok := doc["paths"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, paths, "/captures")
	assert.Contains(t, paths, "/captures/{name}")

	rec = serve(s, http.MethodGet, "/api/docs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "usbtrace API")
}

func TestSpecMatchesRoutes(t *testing.T) {
	doc, err := LoadSpec()
	require.NoError(t, err)
	assert.Equal(t, ApiPrefix, doc.BasePath())
	for _, path := range []string{"/captures", "/captures/{name}"} {
		_, ok := doc.Spec().Paths.Paths[path]
		assert.True(t, ok, path)
	}
}
