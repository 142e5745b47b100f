package dashboard

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/zulandar/hearth/internal/analysis"
	"github.com/zulandar/hearth/internal/commstate"
	"github.com/zulandar/hearth/internal/config"
	"github.com/zulandar/hearth/internal/db"
	"github.com/zulandar/hearth/internal/localstore"
	"github.com/zulandar/hearth/internal/metrics"
	"github.com/zulandar/hearth/internal/notify"
	"github.com/zulandar/hearth/internal/store"
	"gorm.io/gorm"
)

const testWS = "ws-home"

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	gdb     *gorm.DB
	store   *store.Store
	machine *commstate.Machine
	queue   *commstate.Queue
	hub     *notify.Hub
	server  *Server
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gdb, err := db.ConnectSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(gdb))
	require.NoError(t, db.SeedMembers(gdb, config.WorkspaceConfig{ID: testWS, Members: []config.MemberConfig{
		{ID: "alice"}, {ID: "bob"},
	}}))

	st, err := store.New(store.Opts{DB: gdb})
	require.NoError(t, err)
	hub := notify.NewHub()
	m := metrics.New()
	machine, err := commstate.New(commstate.Opts{
		Modes: st, Audit: st, Members: st, Events: st,
		Notifier: hub,
		Metrics:  m,
	})
	require.NoError(t, err)
	t.Cleanup(machine.Close)
	q, err := commstate.NewQueue(commstate.QueueOpts{Machine: machine, KV: localstore.NewMemory(), Metrics: m})
	require.NoError(t, err)
	a, err := analysis.New(analysis.Opts{Store: st, Metrics: m})
	require.NoError(t, err)

	srv, err := New(Opts{
		WorkspaceID: testWS,
		Machine:     machine,
		Queue:       q,
		Analyzer:    a,
		Store:       st,
		Hub:         hub,
		Metrics:     m,
		Heartbeat:   time.Hour,
	})
	require.NoError(t, err)
	return &testEnv{gdb: gdb, store: st, machine: machine, queue: q, hub: hub, server: srv, handler: srv.Handler()}
}

// do performs a request against the router. actor may be empty.
func (e *testEnv) do(t *testing.T, method, path, actor string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != "" {
		req.Header.Set(ActorHeader, actor)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// breakStore closes the underlying connection so every store call fails.
func (e *testEnv) breakStore(t *testing.T) {
	t.Helper()
	sqlDB, err := e.gdb.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func ginTestContext(w http.ResponseWriter) (*gin.Context, *gin.Engine) {
	return gin.CreateTestContext(w)
}
