// Package daemon runs Hearth's scheduled background work: replaying the
// emergency queue, resetting daily break counters, re-arming recovery
// timers, evaluating risk, and posting the partnership digest.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/hearth/internal/analysis"
	"github.com/zulandar/hearth/internal/commstate"
	"github.com/zulandar/hearth/internal/telegraph"
)

const (
	// ResetSchedule runs the break-counter reset just after midnight.
	ResetSchedule = "0 0 * * *"
	// RearmSchedule sweeps for paused workspaces whose timer was lost.
	RearmSchedule = "@every 5m"

	jobTimeout = time.Minute
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// BreakResetter zeroes stale daily break counters.
type BreakResetter interface {
	ResetDailyBreakCounts(ctx context.Context, dayStart time.Time) (int64, error)
}

// Evaluator produces risk advice for a workspace.
type Evaluator interface {
	Evaluate(ctx context.Context, workspaceID string) (analysis.Advice, error)
}

// Sender posts a message to chat.
type Sender interface {
	Send(ctx context.Context, msg telegraph.OutboundMessage) error
}

// Opts holds parameters for creating a Daemon.
type Opts struct {
	WorkspaceID string
	Machine     *commstate.Machine
	Queue       *commstate.Queue
	Breaks      BreakResetter
	// Handoff is a second queue drained alongside Queue, holding actions
	// queued by one-shot CLI invocations.
	Handoff *commstate.Queue

	DrainSchedule string // defaults to "@every 30s"

	// Advisor runs every EvaluateInterval when both are set.
	Advisor          Evaluator
	EvaluateInterval time.Duration

	// The digest is posted on DigestSchedule when Digest and Sender are set.
	Digest         telegraph.MetricsSource
	Sender         Sender
	DigestChannel  string
	DigestSchedule string
	DigestRange    analysis.TimeRange

	Location *time.Location // defaults to time.Local
	Now      func() time.Time
	Out      io.Writer
}

// Daemon owns the cron scheduler and the jobs registered on it.
type Daemon struct {
	workspaceID string
	machine     *commstate.Machine
	queues      []*commstate.Queue
	breaks      BreakResetter
	advisor     Evaluator
	digest      telegraph.MetricsSource
	sender      Sender
	channel     string
	digestRange analysis.TimeRange
	location    *time.Location
	now         func() time.Time
	out         io.Writer

	cron *cron.Cron
	jobs map[string]cron.EntryID

	mu      sync.Mutex
	baseCtx context.Context
}

// New validates opts and registers every job. Nothing runs until Run.
func New(opts Opts) (*Daemon, error) {
	switch {
	case opts.WorkspaceID == "":
		return nil, fmt.Errorf("daemon: workspace id is required")
	case opts.Machine == nil:
		return nil, fmt.Errorf("daemon: machine is required")
	case opts.Queue == nil:
		return nil, fmt.Errorf("daemon: queue is required")
	case opts.Breaks == nil:
		return nil, fmt.Errorf("daemon: break resetter is required")
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	dr := opts.DigestRange
	if dr == 0 {
		dr = analysis.Range7d
	}

	queues := []*commstate.Queue{opts.Queue}
	if opts.Handoff != nil {
		queues = append(queues, opts.Handoff)
	}

	logger := cron.PrintfLogger(log.Default())
	d := &Daemon{
		workspaceID: opts.WorkspaceID,
		machine:     opts.Machine,
		queues:      queues,
		breaks:      opts.Breaks,
		advisor:     opts.Advisor,
		digest:      opts.Digest,
		sender:      opts.Sender,
		channel:     opts.DigestChannel,
		digestRange: dr,
		location:    loc,
		now:         now,
		out:         out,
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		jobs:    make(map[string]cron.EntryID),
		baseCtx: context.Background(),
	}

	drain := opts.DrainSchedule
	if drain == "" {
		drain = "@every 30s"
	}
	if err := d.add("drain", drain, d.drainQueue); err != nil {
		return nil, err
	}
	if err := d.add("reset", ResetSchedule, d.resetBreaks); err != nil {
		return nil, err
	}
	if err := d.add("rearm", RearmSchedule, d.rearm); err != nil {
		return nil, err
	}
	if opts.Advisor != nil && opts.EvaluateInterval > 0 {
		if err := d.add("evaluate", "@every "+opts.EvaluateInterval.String(), d.evaluate); err != nil {
			return nil, err
		}
	}
	if opts.Digest != nil && opts.Sender != nil && opts.DigestSchedule != "" {
		if err := d.add("digest", opts.DigestSchedule, d.postDigest); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Daemon) add(name, spec string, job func(ctx context.Context) error) error {
	id, err := d.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(d.context(), jobTimeout)
		defer cancel()
		if err := job(ctx); err != nil {
			log.Printf("daemon: %s: %v", name, err)
		}
	})
	if err != nil {
		return fmt.Errorf("daemon: schedule %s %q: %w", name, spec, err)
	}
	d.jobs[name] = id
	return nil
}

func (d *Daemon) context() context.Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.baseCtx
}

// Jobs returns the names of the registered jobs.
func (d *Daemon) Jobs() []string {
	names := make([]string, 0, len(d.jobs))
	for name := range d.jobs {
		names = append(names, name)
	}
	return names
}

// Next returns when a job runs next; zero before Run or for unknown names.
func (d *Daemon) Next(name string) time.Time {
	id, ok := d.jobs[name]
	if !ok {
		return time.Time{}
	}
	return d.cron.Entry(id).Next
}

// Run restores the queue, re-arms recovery timers, replays anything queued,
// then runs the scheduler until ctx is cancelled. It waits for running jobs
// before returning.
func (d *Daemon) Run(ctx context.Context) error {
	d.mu.Lock()
	d.baseCtx = ctx
	d.mu.Unlock()

	restored := 0
	for _, q := range d.queues {
		if err := q.Initialize(ctx); err != nil {
			return fmt.Errorf("daemon: %w", err)
		}
		restored += q.Len()
	}
	if restored > 0 {
		fmt.Fprintf(d.out, "Restored %d queued emergency action(s)\n", restored)
	}
	if err := d.rearm(ctx); err != nil {
		log.Printf("daemon: rearm: %v", err)
	}
	if err := d.drainQueue(ctx); err != nil {
		log.Printf("daemon: drain: %v", err)
	}

	d.cron.Start()
	fmt.Fprintf(d.out, "Scheduler running %d job(s)\n", len(d.jobs))
	<-ctx.Done()

	stopped := d.cron.Stop()
	<-stopped.Done()
	for _, q := range d.queues {
		if err := q.Flush(context.Background()); err != nil {
			log.Printf("daemon: flush queue: %v", err)
		}
	}
	fmt.Fprintf(d.out, "Scheduler stopped.\n")
	return nil
}

// drainQueue replays queued emergency actions, oldest queue first. A queue
// that fails to drain does not hold up the next one.
func (d *Daemon) drainQueue(ctx context.Context) error {
	var errs []error
	for _, q := range d.queues {
		if q.Len() == 0 {
			continue
		}
		res, err := q.Process(ctx)
		if res.Drained > 0 || res.Dropped > 0 {
			fmt.Fprintf(d.out, "Emergency queue: %d replayed, %d dropped, %d remaining\n",
				res.Drained, res.Dropped, res.Remaining)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// resetBreaks zeroes break counters whose last break was before today.
func (d *Daemon) resetBreaks(ctx context.Context) error {
	t := d.now().In(d.location)
	dayStart := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, d.location)
	n, err := d.breaks.ResetDailyBreakCounts(ctx, dayStart)
	if err != nil {
		return err
	}
	if n > 0 {
		fmt.Fprintf(d.out, "Reset break counters on %d workspace(s)\n", n)
	}
	return nil
}

func (d *Daemon) rearm(ctx context.Context) error {
	_, err := d.machine.Rearm(ctx)
	return err
}

func (d *Daemon) evaluate(ctx context.Context) error {
	advice, err := d.advisor.Evaluate(ctx, d.workspaceID)
	if err != nil {
		return err
	}
	if advice.Applied {
		fmt.Fprintf(d.out, "Risk %s: moved %s to %s\n",
			advice.Assessment.Level, d.workspaceID, advice.SuggestedState)
	}
	return nil
}

func (d *Daemon) postDigest(ctx context.Context) error {
	msg, err := telegraph.BuildDigest(ctx, d.digest, d.workspaceID, d.digestRange)
	if err != nil {
		return err
	}
	msg.ChannelID = d.channel
	if err := d.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send digest: %w", err)
	}
	return nil
}
