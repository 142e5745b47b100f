package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/zulandar/hearth/internal/analysis"
	"github.com/zulandar/hearth/internal/commstate"
	"github.com/zulandar/hearth/internal/config"
	"github.com/zulandar/hearth/internal/db"
	"github.com/zulandar/hearth/internal/localstore"
	"github.com/zulandar/hearth/internal/metrics"
	"github.com/zulandar/hearth/internal/notify"
	"github.com/zulandar/hearth/internal/store"
	"github.com/zulandar/hearth/internal/telegraph"
	discordadapter "github.com/zulandar/hearth/internal/telegraph/discord"
	slackadapter "github.com/zulandar/hearth/internal/telegraph/slack"
	"gorm.io/gorm"
)

// cliQueueKey holds emergency actions queued by one-shot commands. The
// server drains it alongside its own queue.
const cliQueueKey = commstate.QueueKey + ".cli"

// app is the set of components every command builds from the config.
type app struct {
	cfg      *config.Config
	gdb      *gorm.DB
	store    *store.Store
	kv       *localstore.SQLite
	machine  *commstate.Machine
	queue    *commstate.Queue
	analyzer *analysis.Analyzer
}

type appOpts struct {
	Notifier commstate.Notifier
	Metrics  *metrics.Metrics
	QueueKey string // defaults to cliQueueKey
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// openApp connects to the store and the local side-store and builds the
// state machine, queue and analyzer. The queue is restored from disk.
func openApp(ctx context.Context, cfg *config.Config, opts appOpts) (*app, error) {
	gdb, err := db.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	st, err := store.New(store.Opts{DB: gdb})
	if err != nil {
		closeDB(gdb)
		return nil, err
	}
	kv, err := localstore.OpenSQLite(cfg.Emergency.LocalStore)
	if err != nil {
		closeDB(gdb)
		return nil, err
	}
	machine, err := commstate.New(commstate.Opts{
		Modes:           st,
		Audit:           st,
		Members:         st,
		Events:          st,
		Notifier:        opts.Notifier,
		Metrics:         opts.Metrics,
		DefaultDuration: time.Duration(cfg.Emergency.DefaultDurationMinutes) * time.Minute,
	})
	if err != nil {
		kv.Close()
		closeDB(gdb)
		return nil, err
	}
	key := opts.QueueKey
	if key == "" {
		key = cliQueueKey
	}
	queue, err := commstate.NewQueue(commstate.QueueOpts{Machine: machine, KV: kv, Key: key, Metrics: opts.Metrics})
	if err != nil {
		machine.Close()
		kv.Close()
		closeDB(gdb)
		return nil, err
	}
	if err := queue.Initialize(ctx); err != nil {
		machine.Close()
		kv.Close()
		closeDB(gdb)
		return nil, err
	}
	analyzer, err := analysis.New(analysis.Opts{
		Store:         st,
		Metrics:       opts.Metrics,
		LoopWindow:    time.Duration(cfg.Analysis.LoopWindowMinutes) * time.Minute,
		LoopThreshold: cfg.Analysis.LoopThreshold,
	})
	if err != nil {
		machine.Close()
		kv.Close()
		closeDB(gdb)
		return nil, err
	}
	return &app{
		cfg:      cfg,
		gdb:      gdb,
		store:    st,
		kv:       kv,
		machine:  machine,
		queue:    queue,
		analyzer: analyzer,
	}, nil
}

// close stops timers, waits for pending notifications and closes the
// side-store.
func (a *app) close() {
	a.machine.Close()
	if err := a.kv.Close(); err != nil {
		log.Printf("close local store: %v", err)
	}
	closeDB(a.gdb)
}

func closeDB(gdb *gorm.DB) {
	sqlDB, err := gdb.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Printf("close database: %v", err)
	}
}

// lookupMember maps a chat user id to a workspace member id.
func lookupMember(cfg *config.Config) telegraph.MemberLookup {
	return func(chatID string) (string, bool) {
		m, ok := cfg.Member(chatID)
		return m.ID, ok
	}
}

// createAdapter builds a platform adapter from the config.
func createAdapter(cfg *config.Config) (telegraph.Adapter, error) {
	switch cfg.Telegraph.Platform {
	case "slack":
		return slackadapter.New(slackadapter.AdapterOpts{
			AppToken:  cfg.Telegraph.Slack.AppToken,
			BotToken:  cfg.Telegraph.Slack.BotToken,
			ChannelID: cfg.Telegraph.Channel,
		})
	case "discord":
		return discordadapter.New(discordadapter.AdapterOpts{
			BotToken:  cfg.Telegraph.Discord.BotToken,
			ChannelID: cfg.Telegraph.Channel,
		})
	default:
		return nil, fmt.Errorf("telegraph: unsupported platform %q", cfg.Telegraph.Platform)
	}
}

// oneShotNotifier tells the partner about changes made from the command
// line: over chat when a platform is configured, and through the local
// command hook. The returned func closes the chat connection.
func oneShotNotifier(ctx context.Context, cfg *config.Config) (commstate.Notifier, func()) {
	notifiers := notify.Multi{}
	if c := notify.NewCommand(cfg.Notify.Command); c != nil {
		notifiers = append(notifiers, c)
	}
	if cfg.Telegraph.Platform == "" {
		return notifiers, func() {}
	}
	adapter, err := createAdapter(cfg)
	if err == nil {
		err = adapter.Connect(ctx)
	}
	if err != nil {
		log.Printf("chat unavailable, partner will not be notified over chat: %v", err)
		return notifiers, func() {}
	}
	chat, _ := notify.NewChat(notify.ChatOpts{Sender: adapter, Channel: cfg.Telegraph.Channel})
	return append(notifiers, chat), func() { adapter.Close() }
}
