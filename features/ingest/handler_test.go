package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"semcode/internal/engine"
	"semcode/internal/pipeline"
)

type mockEngine struct {
	submitJob engine.Job
	submitErr error
	waitJob   engine.Job
	waitErr   error
	lastReq   pipeline.Request
}

func (m *mockEngine) Submit(req pipeline.Request) (engine.Job, error) {
	m.lastReq = req
	return m.submitJob, m.submitErr
}

func (m *mockEngine) Wait(ctx context.Context, id string) (engine.Job, error) {
	return m.waitJob, m.waitErr
}

func TestCreateAccepted(t *testing.T) {
	eng := &mockEngine{submitJob: engine.Job{ID: "job-1", Repo: "demo", Status: engine.StatusPending}}
	h := NewHandler(eng)

	body := `{"name":"demo","sources":["/src/demo"],"force":true,"ignore":["*.min.js"]}`
	req := httptest.NewRequest(http.MethodPost, "/repositories", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.Create(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "demo", eng.lastReq.Name)
	assert.True(t, eng.lastReq.Force)
	assert.Equal(t, []string{"*.min.js"}, eng.lastReq.Ignore)

	var resp struct {
		Data engine.Job `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "job-1", resp.Data.ID)
	assert.Equal(t, engine.StatusPending, resp.Data.Status)
}

func TestCreateWaitReturnsTerminalJob(t *testing.T) {
	eng := &mockEngine{
		submitJob: engine.Job{ID: "job-1", Status: engine.StatusPending},
		waitJob:   engine.Job{ID: "job-1", Status: engine.StatusSucceeded},
	}
	h := NewHandler(eng)

	body := `{"name":"demo","sources":["/src/demo"]}`
	req := httptest.NewRequest(http.MethodPost, "/repositories?wait=true", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.Create(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data engine.Job `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, engine.StatusSucceeded, resp.Data.Status)
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"MissingName", `{"sources":["/src/demo"]}`},
		{"MissingSources", `{"name":"demo"}`},
		{"BadJSON", `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(&mockEngine{})
			req := httptest.NewRequest(http.MethodPost, "/repositories", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			h.Create(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
			assert.Contains(t, w.Body.String(), "correlationId")
		})
	}
}

func TestCreateQueueFull(t *testing.T) {
	h := NewHandler(&mockEngine{submitErr: engine.ErrQueueFull})

	body := `{"name":"demo","sources":["/src/demo"]}`
	req := httptest.NewRequest(http.MethodPost, "/repositories", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.Create(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "QUEUE_FULL")
}
