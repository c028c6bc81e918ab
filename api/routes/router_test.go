package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/gpo-backend/internal/demand"
	"github.com/angelmondragon/gpo-backend/internal/grouporders"
	"github.com/angelmondragon/gpo-backend/internal/groups"
	"github.com/angelmondragon/gpo-backend/internal/intents"
	"github.com/angelmondragon/gpo-backend/internal/keylock"
	"github.com/angelmondragon/gpo-backend/internal/savings"
	"github.com/angelmondragon/gpo-backend/pkg/auth"
	"github.com/angelmondragon/gpo-backend/pkg/config"
	"github.com/angelmondragon/gpo-backend/pkg/db"
	"github.com/angelmondragon/gpo-backend/pkg/db/dbtest"
	"github.com/angelmondragon/gpo-backend/pkg/db/models"
	"github.com/angelmondragon/gpo-backend/pkg/logger"
	"github.com/angelmondragon/gpo-backend/pkg/metrics"
	"github.com/angelmondragon/gpo-backend/pkg/outbox"
	"github.com/angelmondragon/gpo-backend/pkg/types"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]string{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	return nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "idem:" + scope + ":" + id
}

func (m *memoryStore) Ping(context.Context) error { return nil }

type testServer struct {
	handler http.Handler
	conn    *gorm.DB
	cfg     *config.Config
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "router-test", Level: logger.ParseLevel("error"), Output: io.Discard})
	cfg := &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{Secret: "router-secret", Issuer: "gpo-test", ExpirationMinutes: 15},
		GPO: config.GPOConfig{DefaultThreshold: 100, DefaultFeeRate: "0.02"},
	}
	reg := prometheus.NewRegistry()
	gpoMetrics := metrics.NewGPOMetrics(reg)
	locker := keylock.NewLocalLocker()
	tx := db.Wrap(conn)

	groupSvc, err := groups.NewService(groups.NewRepository(conn), cfg.GPO)
	require.NoError(t, err)
	intentSvc, err := intents.NewService(intents.ServiceParams{Repo: intents.NewRepository(conn), Tx: tx, Locker: locker, Logger: logg, Metrics: gpoMetrics})
	require.NoError(t, err)
	demandSvc, err := demand.NewService(demand.NewRepository(conn), groupSvc)
	require.NoError(t, err)
	savingsSvc, err := savings.NewService(savings.NewRepository(conn), gpoMetrics)
	require.NoError(t, err)
	orderSvc, err := grouporders.NewService(grouporders.ServiceParams{
		Repo:    grouporders.NewRepository(conn),
		Tx:      tx,
		Groups:  groupSvc,
		Demand:  demandSvc,
		Savings: savingsSvc,
		Outbox:  outbox.NewService(outbox.NewRepository(conn), logg),
		Locker:  locker,
		Logger:  logg,
		Metrics: gpoMetrics,
	})
	require.NoError(t, err)

	handler := NewRouter(cfg, logg, tx, newMemoryStore(), reg, groupSvc, intentSvc, demandSvc, orderSvc, savingsSvc)
	return &testServer{handler: handler, conn: conn, cfg: cfg}
}

func (s *testServer) token(t *testing.T, userID uuid.UUID, role auth.Role) string {
	t.Helper()
	token, err := auth.MintAccessToken(s.cfg.JWT, time.Now(), auth.AccessTokenPayload{UserID: userID, Role: role})
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope), rec.Body.String())
	require.NoError(t, json.Unmarshal(envelope.Data, dest))
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope types.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope), rec.Body.String())
	return envelope.Error.Code
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGPORoutesRequireAuth(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/api/v1/gpo/groups", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/v1/gpo/groups", srv.token(t, uuid.New(), auth.RoleUser), map[string]any{"slug": "sur", "name": "Sur"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCollectiveOrderLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	month := types.MonthOf(time.Now().UTC()).AddMonths(1).String()

	platform := srv.token(t, uuid.New(), auth.RoleAdmin)
	userA, userB, outsider := uuid.New(), uuid.New(), uuid.New()
	tokenA := srv.token(t, userA, auth.RoleUser)
	tokenB := srv.token(t, userB, auth.RoleUser)

	rec := srv.do(t, http.MethodPost, "/api/v1/gpo/groups", platform, map[string]any{
		"slug":                      "sur",
		"name":                      "Red Sur",
		"facilitation_fee_rate":     "0.03",
		"min_aggregation_threshold": 500,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = srv.do(t, http.MethodPost, "/api/v1/gpo/groups/sur/members", platform, map[string]any{
		"user_id": userA, "institution_name": "Farmacia A", "institution_type": "pharmacy", "role": "admin",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var memberB map[string]any
	rec = srv.do(t, http.MethodPost, "/api/v1/gpo/groups/sur/members", tokenA, map[string]any{
		"user_id": userB, "institution_name": "Clinica B", "institution_type": "clinic",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	decodeData(t, rec, &memberB)

	rec = srv.do(t, http.MethodGet, "/api/v1/gpo/groups/sur", srv.token(t, outsider, auth.RoleUser), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	var listed []map[string]any
	rec = srv.do(t, http.MethodGet, "/api/v1/gpo/groups", tokenB, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &listed)
	assert.Len(t, listed, 1)

	intentA := map[string]any{"product_name": "Insulina NPH", "quantity_units": 300, "target_month": month}
	first := srv.do(t, http.MethodPost, "/api/v1/gpo/groups/sur/intents", tokenA, intentA, "Idempotency-Key", "intent-a")
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	replay := srv.do(t, http.MethodPost, "/api/v1/gpo/groups/sur/intents", tokenA, intentA, "Idempotency-Key", "intent-a")
	assert.Equal(t, http.StatusCreated, replay.Code)
	assert.JSONEq(t, first.Body.String(), replay.Body.String())

	rec = srv.do(t, http.MethodPost, "/api/v1/gpo/groups/sur/intents", tokenA, intentA)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/v1/gpo/groups/sur/intents", tokenB, map[string]any{
		"product_name": "Insulina NPH", "quantity_units": 250, "target_month": month,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var projected []demand.AggregatedDemand
	rec = srv.do(t, http.MethodGet, "/api/v1/gpo/groups/sur/demand?month="+month, tokenB, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &projected)
	require.Len(t, projected, 1)
	assert.Equal(t, int64(550), projected[0].TotalQuantity)
	assert.True(t, projected[0].ThresholdMet)

	orderBody := map[string]any{"product_name": "Insulina NPH", "target_month": month, "unit_price_group": 1200}
	rec = srv.do(t, http.MethodPost, "/api/v1/gpo/groups/sur/orders", tokenB, orderBody)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	var order map[string]any
	rec = srv.do(t, http.MethodPost, "/api/v1/gpo/groups/sur/orders", tokenA, orderBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	decodeData(t, rec, &order)
	assert.Equal(t, "aggregated", order["status"])
	assert.EqualValues(t, 550, order["total_quantity"])
	orderID := order["id"].(string)

	rec = srv.do(t, http.MethodPost, "/api/v1/gpo/groups/sur/orders", tokenA, orderBody)
	assert.Equal(t, http.StatusOK, rec.Code)

	var allocations []map[string]any
	rec = srv.do(t, http.MethodGet, "/api/v1/gpo/groups/sur/orders/"+orderID+"/allocations", tokenB, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &allocations)
	assert.Len(t, allocations, 2)

	rec = srv.do(t, http.MethodPost, "/api/v1/gpo/groups/sur/intents", tokenB, map[string]any{
		"product_name": "Insulina NPH", "quantity_units": 50, "target_month": month,
	})
	assert.Equal(t, http.StatusConflict, rec.Code, "key already pooled")

	rec = srv.do(t, http.MethodDelete, "/api/v1/gpo/groups/sur/members/"+memberB["id"].(string), tokenA, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CONFLICT", errorCode(t, rec))

	rec = srv.do(t, http.MethodPut, "/api/v1/gpo/groups/sur/orders/"+orderID+"/status", tokenA, map[string]any{"status": "fulfilled"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "INVALID_TRANSITION", errorCode(t, rec))

	rec = srv.do(t, http.MethodPut, "/api/v1/gpo/groups/sur/orders/"+orderID+"/pricing", tokenA, map[string]any{
		"unit_price_group": 1200, "unit_price_market": 1500,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = srv.do(t, http.MethodGet, "/api/v1/gpo/groups/sur/facilitation-fees", tokenB, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	var fees []map[string]any
	rec = srv.do(t, http.MethodGet, "/api/v1/gpo/groups/sur/facilitation-fees", tokenA, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decodeData(t, rec, &fees)
	require.Len(t, fees, 1)
	assert.Equal(t, orderID, fees[0]["group_order_id"])
	assert.EqualValues(t, 660000, fees[0]["order_total"])
	assert.EqualValues(t, 19800, fees[0]["fee_amount"])
	assert.Equal(t, "pending", fees[0]["status"])

	for _, status := range []string{"submitted_to_cenabast", "confirmed", "fulfilled", "distributed"} {
		rec = srv.do(t, http.MethodPut, "/api/v1/gpo/groups/sur/orders/"+orderID+"/status", tokenA, map[string]any{"status": status})
		require.Equal(t, http.StatusOK, rec.Code, "%s: %s", status, rec.Body.String())
	}

	var mine map[string]any
	rec = srv.do(t, http.MethodGet, "/api/v1/gpo/groups/sur/savings/me", tokenB, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &mine)
	assert.EqualValues(t, 75000, mine["total_savings"])

	var summary []savings.MemberSavings
	rec = srv.do(t, http.MethodGet, "/api/v1/gpo/groups/sur/savings", tokenB, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &summary)
	require.Len(t, summary, 2)
	assert.Equal(t, int64(90000), summary[0].TotalSavings)

	var events int64
	require.NoError(t, srv.conn.Model(&models.OutboxEvent{}).Count(&events).Error)
	assert.Positive(t, events)
}

func TestCancelIntentAndOrderFilters(t *testing.T) {
	srv := newTestServer(t)
	month := types.MonthOf(time.Now().UTC()).String()
	platform := srv.token(t, uuid.New(), auth.RoleAdmin)
	userA := uuid.New()
	tokenA := srv.token(t, userA, auth.RoleUser)

	rec := srv.do(t, http.MethodPost, "/api/v1/gpo/groups", platform, map[string]any{"slug": "norte", "name": "Norte"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = srv.do(t, http.MethodPost, "/api/v1/gpo/groups/norte/members", platform, map[string]any{
		"user_id": userA, "institution_name": "Hospital A", "institution_type": "hospital",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var intent map[string]any
	rec = srv.do(t, http.MethodPost, "/api/v1/gpo/groups/norte/intents", tokenA, map[string]any{
		"product_name": "Losartan", "quantity_units": 40, "target_month": month,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	decodeData(t, rec, &intent)

	rec = srv.do(t, http.MethodDelete, "/api/v1/gpo/groups/norte/intents/"+intent["id"].(string), tokenA, nil)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	assert.Empty(t, rec.Body.Bytes())

	var listed []map[string]any
	rec = srv.do(t, http.MethodGet, "/api/v1/gpo/groups/norte/intents?month="+month, tokenA, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &listed)
	require.Len(t, listed, 1)
	assert.Equal(t, "cancelled", listed[0]["status"])

	rec = srv.do(t, http.MethodPost, "/api/v1/gpo/groups/norte/intents", tokenA, map[string]any{
		"product_name": "Losartan", "quantity_units": 1_000_000_000, "target_month": month,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "quantity above the accepted range")

	rec = srv.do(t, http.MethodDelete, "/api/v1/gpo/groups/norte/intents/not-a-uuid", tokenA, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/v1/gpo/groups/norte/intents?month=2026-13", tokenA, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/v1/gpo/groups/norte/orders?status=shipped", tokenA, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var page struct {
		Items  []map[string]any `json:"items"`
		Cursor string           `json:"cursor"`
	}
	rec = srv.do(t, http.MethodGet, "/api/v1/gpo/groups/norte/orders?status=aggregated&limit=5&month="+month, tokenA, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &page)
	assert.Empty(t, page.Items)
	assert.Empty(t, page.Cursor)
}

func TestRemoveMemberOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	month := types.MonthOf(time.Now().UTC()).String()
	platform := srv.token(t, uuid.New(), auth.RoleAdmin)
	userA, userB := uuid.New(), uuid.New()
	tokenA := srv.token(t, userA, auth.RoleUser)
	tokenB := srv.token(t, userB, auth.RoleUser)

	rec := srv.do(t, http.MethodPost, "/api/v1/gpo/groups", platform, map[string]any{"slug": "centro", "name": "Centro"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = srv.do(t, http.MethodPost, "/api/v1/gpo/groups/centro/members", platform, map[string]any{
		"user_id": userA, "institution_name": "Hospital A", "institution_type": "hospital", "role": "admin",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var memberB map[string]any
	rec = srv.do(t, http.MethodPost, "/api/v1/gpo/groups/centro/members", platform, map[string]any{
		"user_id": userB, "institution_name": "Clinica B", "institution_type": "clinic",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	decodeData(t, rec, &memberB)
	path := "/api/v1/gpo/groups/centro/members/" + memberB["id"].(string)

	rec = srv.do(t, http.MethodPost, "/api/v1/gpo/groups/centro/intents", tokenB, map[string]any{
		"product_name": "Losartan", "quantity_units": 40, "target_month": month,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = srv.do(t, http.MethodDelete, path, tokenB, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = srv.do(t, http.MethodDelete, path, tokenA, nil)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	assert.Empty(t, rec.Body.Bytes())

	rec = srv.do(t, http.MethodGet, "/api/v1/gpo/groups/centro/intents", tokenB, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "removed members lose access")

	var members []map[string]any
	rec = srv.do(t, http.MethodGet, "/api/v1/gpo/groups/centro/members", tokenA, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &members)
	assert.Len(t, members, 1)

	rec = srv.do(t, http.MethodDelete, path, tokenA, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var demandRows []demand.AggregatedDemand
	rec = srv.do(t, http.MethodGet, "/api/v1/gpo/groups/centro/demand?month="+month, tokenA, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &demandRows)
	assert.Empty(t, demandRows, "the removed member's intent was withdrawn")
}
