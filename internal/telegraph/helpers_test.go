package telegraph

import (
	"context"
	"testing"

	"github.com/zulandar/hearth/internal/analysis"
	"github.com/zulandar/hearth/internal/commstate"
	"github.com/zulandar/hearth/internal/config"
	"github.com/zulandar/hearth/internal/db"
	"github.com/zulandar/hearth/internal/localstore"
	"github.com/zulandar/hearth/internal/models"
	"github.com/zulandar/hearth/internal/store"
)

const testWS = "ws-home"

var chatMembers = map[string]string{"U-ALICE": "alice", "U-BOB": "bob"}

func lookupMember(chatID string) (string, bool) {
	id, ok := chatMembers[chatID]
	return id, ok
}

type testEnv struct {
	store   *store.Store
	machine *commstate.Machine
	queue   *commstate.Queue
	handler *CommandHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gdb, err := db.ConnectSQLite(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
	ws := config.WorkspaceConfig{ID: testWS, Members: []config.MemberConfig{
		{ID: "alice", ChatIDs: []string{"U-ALICE"}},
		{ID: "bob", ChatIDs: []string{"U-BOB"}},
	}}
	if err := db.SeedMembers(gdb, ws); err != nil {
		t.Fatal(err)
	}
	st, err := store.New(store.Opts{DB: gdb})
	if err != nil {
		t.Fatal(err)
	}
	m, err := commstate.New(commstate.Opts{Modes: st, Audit: st, Members: st, Events: st})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(m.Close)
	q, err := commstate.NewQueue(commstate.QueueOpts{Machine: m, KV: localstore.NewMemory()})
	if err != nil {
		t.Fatal(err)
	}
	a, err := analysis.New(analysis.Opts{Store: st})
	if err != nil {
		t.Fatal(err)
	}
	h, err := NewCommandHandler(CommandHandlerOpts{
		WorkspaceID: testWS,
		Machine:     m,
		Queue:       q,
		Risk:        a,
		Events:      st,
		Members:     lookupMember,
	})
	if err != nil {
		t.Fatal(err)
	}
	return &testEnv{store: st, machine: m, queue: q, handler: h}
}

func (e *testEnv) mode(t *testing.T) *models.CommunicationMode {
	t.Helper()
	m, err := e.machine.GetMode(context.Background(), testWS)
	if err != nil {
		t.Fatalf("GetMode: %v", err)
	}
	return m
}
