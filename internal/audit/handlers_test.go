package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentos/agentos/internal/agentauth"
	"github.com/agentos/agentos/internal/agents"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const signer = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"

func setup(t *testing.T) (*gin.Engine, *Log, *agents.Agent) {
	t.Helper()
	svc := agents.NewService(agents.NewMemoryStore())
	agent, err := svc.Create(context.Background(), "Lexa", signer)
	require.NoError(t, err)

	l := NewLog(NewMemoryStore())
	h := NewHandler(l, svc)

	r := gin.New()
	h.RegisterAgentRoutes(r.Group("/api/agent", func(c *gin.Context) {
		c.Set(agentauth.ContextKeyAddress, "0x70997970c51812dc3a010c7d01b50e0d17dc79c8")
		c.Next()
	}))
	h.RegisterAdminRoutes(r.Group("/api"))
	return r, l, agent
}

func post(r http.Handler, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var out map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func errorCode(out map[string]interface{}) string {
	e, _ := out["error"].(map[string]interface{})
	code, _ := e["code"].(string)
	return code
}

func TestAgentAppend(t *testing.T) {
	r, l, agent := setup(t)

	w, out := post(r, "/api/agent/audit", `{"event_type":"TOOL_CALL","message":"checked balance","metadata":{"tool":"balance"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	id := out["data"].(map[string]interface{})["id"].(string)

	list, err := l.List(context.Background(), agent.ID, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)
	assert.Equal(t, "TOOL_CALL", list[0].Type)
	assert.Equal(t, "checked balance", list[0].Payload["message"])
	assert.Equal(t, map[string]interface{}{"tool": "balance"}, list[0].Payload["metadata"])
}

func TestAgentAppend_NoMetadataKeyWhenAbsent(t *testing.T) {
	r, l, agent := setup(t)

	w, _ := post(r, "/api/agent/audit", `{"event_type":"DECISION","message":""}`)
	require.Equal(t, http.StatusOK, w.Code)

	list, _ := l.List(context.Background(), agent.ID, 1)
	_, has := list[0].Payload["metadata"]
	assert.False(t, has)
}

func TestAgentAppend_Validation(t *testing.T) {
	r, _, _ := setup(t)

	tests := []struct {
		name string
		body string
		msg  string
	}{
		{"invalid json", `{"event_type":`, "invalid JSON body"},
		{"empty body", ``, "invalid body"},
		{"empty event type", `{"event_type":"","message":"x"}`, "invalid body"},
		{"missing message", `{"event_type":"X"}`, "invalid body"},
		{"metadata not object", `{"event_type":"X","message":"m","metadata":[1]}`, "invalid body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, out := post(r, "/api/agent/audit", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "VALIDATION_ERROR", errorCode(out))
			assert.Equal(t, tt.msg, out["error"].(map[string]interface{})["message"])
		})
	}
}

func TestAgentAppend_UnknownAgent(t *testing.T) {
	svc := agents.NewService(agents.NewMemoryStore())
	h := NewHandler(NewLog(NewMemoryStore()), svc)
	r := gin.New()
	h.RegisterAgentRoutes(r.Group("/api/agent", func(c *gin.Context) {
		c.Set(agentauth.ContextKeyAddress, signer)
	}))

	w, out := post(r, "/api/agent/audit", `{"event_type":"X","message":"m"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "AGENT_NOT_FOUND", errorCode(out))
}

func TestAdminAppendAndList(t *testing.T) {
	r, _, agent := setup(t)

	w, _ := post(r, "/api/audit", `{"agent_id":"`+agent.ID+`","type":"WALLET_DEPLOYED","payload":{"address":"0x1"}}`)
	require.Equal(t, http.StatusCreated, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/agents/"+agent.ID+"/audit", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Data Page `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Data.Events, 1)
	assert.Equal(t, "WALLET_DEPLOYED", out.Data.Events[0].Type)
	assert.False(t, out.Data.HasMore)
}

func TestAgentList_Paginates(t *testing.T) {
	r, _, _ := setup(t)
	for _, msg := range []string{"one", "two", "three"} {
		w, _ := post(r, "/api/agent/audit", `{"event_type":"NOTE","message":"`+msg+`"}`)
		require.Equal(t, http.StatusOK, w.Code)
	}

	get := func(query string) (int, Page) {
		req := httptest.NewRequest(http.MethodGet, "/api/agent/audit"+query, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		var out struct {
			Data Page `json:"data"`
		}
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
		return rec.Code, out.Data
	}

	code, page := get("?limit=2")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, page.Events, 2)
	assert.Equal(t, "three", page.Events[0].Payload["message"])
	require.True(t, page.HasMore)

	code, page = get("?limit=2&cursor=" + page.NextCursor)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, page.Events, 1)
	assert.Equal(t, "one", page.Events[0].Payload["message"])

	code, _ = get("?cursor=%25%25")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAdminAppend_UnknownAgent(t *testing.T) {
	r, _, _ := setup(t)
	w, out := post(r, "/api/audit", `{"agent_id":"6f1c1b4e-1f2a-4d6b-9c1e-2a3b4c5d6e7f","type":"X"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "AGENT_NOT_FOUND", errorCode(out))
}
