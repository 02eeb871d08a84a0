package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/salesflow/internal/database"
	"github.com/BaSui01/salesflow/internal/models"
)

// =============================================================================
// 🧪 测试辅助
// =============================================================================

type leadsFixture struct {
	pool   *database.Pool
	router chi.Router
}

func newLeadsFixture(t *testing.T) *leadsFixture {
	t.Helper()

	path := filepath.Join(t.TempDir(), "leads.db")
	pool, err := database.Open("sqlite://"+path, database.PoolConfig{MaxOpenConns: 4, MaxIdleConns: 2}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	require.NoError(t, models.AutoMigrate(context.Background(), pool.DB()))

	r := chi.NewRouter()
	r.Route("/api/v1/leads", func(r chi.Router) {
		LeadRoutes(zap.NewNop())(r, database.NewScope(pool, zap.NewNop()))
	})
	return &leadsFixture{pool: pool, router: r}
}

func (f *leadsFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeLead(t *testing.T, w *httptest.ResponseRecorder) models.Lead {
	t.Helper()

	var resp struct {
		Success bool        `json:"success"`
		Data    models.Lead `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.True(t, resp.Success)
	return resp.Data
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotNil(t, resp.Error)
	return resp.Error.Code
}

// =============================================================================
// 🧪 CRUD
// =============================================================================

func TestLeadHandler_CreateAndGet(t *testing.T) {
	f := newLeadsFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/leads", map[string]any{
		"first_name": " Ada ",
		"last_name":  "Lovelace",
		"email":      "Ada@Example.com",
		"company":    "Analytical Engines",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	created := decodeLead(t, w)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Ada", created.FirstName)
	assert.Equal(t, "ada@example.com", created.Email)
	assert.Equal(t, models.LeadStatusNew, created.Status)

	w = f.do(t, http.MethodGet, "/api/v1/leads/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decodeLead(t, w)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "Analytical Engines", got.Company)
}

func TestLeadHandler_CreateValidation(t *testing.T) {
	f := newLeadsFixture(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing first name", map[string]any{"email": "a@b.co"}},
		{"bad email", map[string]any{"first_name": "A", "email": "not-an-email"}},
		{"unknown status", map[string]any{"first_name": "A", "email": "a@b.co", "status": "zombie"}},
		{"bad linkedin url", map[string]any{"first_name": "A", "email": "a@b.co", "linkedin_url": "::"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, "/api/v1/leads", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "INVALID_REQUEST", errorCode(t, w))
		})
	}

	// 校验失败的请求不应写入任何数据
	var count int64
	require.NoError(t, f.pool.DB().Model(&models.Lead{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestLeadHandler_DuplicateEmailRollsBack(t *testing.T) {
	f := newLeadsFixture(t)

	body := map[string]any{"first_name": "Grace", "email": "grace@navy.mil"}
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/v1/leads", body).Code)

	w := f.do(t, http.MethodPost, "/api/v1/leads", body)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CONFLICT", errorCode(t, w))

	var count int64
	require.NoError(t, f.pool.DB().Model(&models.Lead{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestLeadHandler_List(t *testing.T) {
	f := newLeadsFixture(t)

	seed := []map[string]any{
		{"first_name": "A", "email": "a@acme.io", "company": "Acme"},
		{"first_name": "B", "email": "b@acme.io", "company": "Acme", "status": "replied"},
		{"first_name": "C", "email": "c@initech.io", "company": "Initech"},
	}
	for _, body := range seed {
		require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/v1/leads", body).Code)
	}

	decodeList := func(w *httptest.ResponseRecorder) LeadList {
		var resp struct {
			Data LeadList `json:"data"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		return resp.Data
	}

	w := f.do(t, http.MethodGet, "/api/v1/leads", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decodeList(w)
	assert.EqualValues(t, 3, list.Total)
	assert.Len(t, list.Items, 3)
	assert.Equal(t, defaultPageSize, list.Limit)

	w = f.do(t, http.MethodGet, "/api/v1/leads?company=Acme&limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list = decodeList(w)
	assert.EqualValues(t, 2, list.Total)
	assert.Len(t, list.Items, 1)

	w = f.do(t, http.MethodGet, "/api/v1/leads?status=replied", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list = decodeList(w)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "b@acme.io", list.Items[0].Email)

	for _, query := range []string{"limit=0", "limit=500", "limit=abc", "offset=-1", "status=zombie"} {
		w = f.do(t, http.MethodGet, "/api/v1/leads?"+query, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, query)
	}
}

func TestLeadHandler_Update(t *testing.T) {
	f := newLeadsFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/leads", map[string]any{"first_name": "Linus", "email": "linus@kernel.org"})
	require.Equal(t, http.StatusCreated, w.Code)
	created := decodeLead(t, w)

	w = f.do(t, http.MethodPatch, "/api/v1/leads/"+created.ID, map[string]any{
		"status":  "in_sequence",
		"company": "Linux Foundation",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decodeLead(t, w)
	assert.Equal(t, models.LeadStatusInSequence, updated.Status)
	assert.Equal(t, "Linux Foundation", updated.Company)
	assert.Equal(t, "Linus", updated.FirstName)

	w = f.do(t, http.MethodPatch, "/api/v1/leads/"+created.ID, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPatch, "/api/v1/leads/"+created.ID, map[string]any{"status": "zombie"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPatch, "/api/v1/leads/does-not-exist", map[string]any{"notes": "hi"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLeadHandler_Delete(t *testing.T) {
	f := newLeadsFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/leads", map[string]any{"first_name": "Ken", "email": "ken@bell-labs.com"})
	require.Equal(t, http.StatusCreated, w.Code)
	created := decodeLead(t, w)

	w = f.do(t, http.MethodDelete, "/api/v1/leads/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/leads/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, w))

	w = f.do(t, http.MethodDelete, "/api/v1/leads/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLeadHandler_ClosedPool(t *testing.T) {
	f := newLeadsFixture(t)
	require.NoError(t, f.pool.Close())

	w := f.do(t, http.MethodGet, "/api/v1/leads", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
