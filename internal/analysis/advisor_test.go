package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/zulandar/hearth/internal/commstate"
	"github.com/zulandar/hearth/internal/models"
)

type fakeApplier struct {
	mode    models.CommunicationMode
	changes []commstate.StateChange
	err     error
}

func (f *fakeApplier) GetMode(_ context.Context, _ string) (*models.CommunicationMode, error) {
	m := f.mode
	return &m, nil
}

func (f *fakeApplier) UpdateState(_ context.Context, _ string, change commstate.StateChange, _ string) (*models.CommunicationMode, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.changes = append(f.changes, change)
	f.mode.StateDisplay = change.State
	m := f.mode
	return &m, nil
}

func TestStrainMapping(t *testing.T) {
	tests := []struct {
		risk, strain, state string
	}{
		{RiskLow, StrainMild, models.StateCalm},
		{RiskMedium, StrainTense, models.StateTense},
		{RiskHigh, StrainCritical, models.StatePaused},
		{"unknown", StrainMild, models.StateCalm},
	}
	for _, tt := range tests {
		if got := StrainFor(tt.risk); got != tt.strain {
			t.Errorf("StrainFor(%s) = %s, want %s", tt.risk, got, tt.strain)
		}
		if got := StateForStrain(tt.strain); got != tt.state {
			t.Errorf("StateForStrain(%s) = %s, want %s", tt.strain, got, tt.state)
		}
	}
	if !MoreSevere(models.StatePaused, models.StateTense) || MoreSevere(models.StateCalm, models.StateTense) {
		t.Error("MoreSevere ordering wrong")
	}
}

func TestNewAdvisor_Validation(t *testing.T) {
	if _, err := NewAdvisor(AdvisorOpts{}); err == nil {
		t.Error("expected error for missing analyzer")
	}
	st, clock := openTestStore(t)
	if _, err := NewAdvisor(AdvisorOpts{Analyzer: newTestAnalyzer(t, st, clock)}); err == nil {
		t.Error("expected error for missing machine")
	}
}

func TestAdvisor_Evaluate(t *testing.T) {
	tests := []struct {
		name      string
		autoApply bool
		current   string
		applied   bool
	}{
		{"suggest only", false, models.StateCalm, false},
		{"escalates calm to paused", true, models.StateCalm, true},
		{"escalates tense to paused", true, models.StateTense, true},
		{"already paused", true, models.StatePaused, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			st, clock := openTestStore(t)
			clarify(t, st, clock, "alice", "bob")
			applier := &fakeApplier{mode: models.CommunicationMode{WorkspaceID: testWS, StateDisplay: tt.current, ActiveTopic: "budget"}}
			adv, err := NewAdvisor(AdvisorOpts{Analyzer: newTestAnalyzer(t, st, clock), Machine: applier, AutoApply: tt.autoApply})
			if err != nil {
				t.Fatal(err)
			}

			got, err := adv.Evaluate(ctx, testWS)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if got.Strain != StrainCritical || got.SuggestedState != models.StatePaused {
				t.Errorf("strain/state = %s/%s", got.Strain, got.SuggestedState)
			}
			if got.Applied != tt.applied {
				t.Errorf("Applied = %v, want %v", got.Applied, tt.applied)
			}
			if !tt.applied {
				if len(applier.changes) != 0 {
					t.Errorf("unexpected changes %+v", applier.changes)
				}
				return
			}
			ch := applier.changes[0]
			if ch.State != models.StatePaused || ch.Trigger != models.TriggerAutoPattern || ch.Topic != "budget" {
				t.Errorf("change = %+v", ch)
			}
			if ch.Confidence == nil || *ch.Confidence != got.Assessment.Confidence {
				t.Errorf("Confidence = %v, want %v", ch.Confidence, got.Assessment.Confidence)
			}
		})
	}
}

func TestAdvisor_NeverDeescalates(t *testing.T) {
	st, clock := openTestStore(t)
	applier := &fakeApplier{mode: models.CommunicationMode{WorkspaceID: testWS, StateDisplay: models.StateTense}}
	adv, err := NewAdvisor(AdvisorOpts{Analyzer: newTestAnalyzer(t, st, clock), Machine: applier, AutoApply: true})
	if err != nil {
		t.Fatal(err)
	}
	got, err := adv.Evaluate(context.Background(), testWS)
	if err != nil {
		t.Fatal(err)
	}
	if got.SuggestedState != models.StateCalm || got.Applied || len(applier.changes) != 0 {
		t.Errorf("advice = %+v, changes = %+v", got, applier.changes)
	}
}

func TestAdvisor_HoldsAfterMemberEases(t *testing.T) {
	type step struct{ from, to, trigger string }
	tests := []struct {
		name    string
		history []step
		gap     time.Duration
		held    bool
	}{
		{"manual resume", []step{{models.StateCalm, models.StatePaused, models.TriggerManual}, {models.StatePaused, models.StateCalm, models.TriggerManual}}, 0, true},
		{"timer recovery", []step{{models.StatePaused, models.StateCalm, models.TriggerTimeout}}, 0, true},
		{"eased then escalated", []step{{models.StatePaused, models.StateCalm, models.TriggerTimeout}, {models.StateCalm, models.StateTense, models.TriggerManual}}, 0, false},
		{"easing outside window", []step{{models.StatePaused, models.StateCalm, models.TriggerManual}}, DefaultLoopWindow + time.Minute, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			st, clock := openTestStore(t)
			for _, s := range tt.history {
				if err := st.AppendTransition(ctx, &models.CommunicationStateTransition{
					WorkspaceID: testWS, FromState: s.from, ToState: s.to,
					TriggerType: s.trigger, ConfidenceScore: 1,
				}); err != nil {
					t.Fatal(err)
				}
				clock.Advance(time.Second)
			}
			clock.Advance(tt.gap)
			clarify(t, st, clock, "alice", "bob")

			current := tt.history[len(tt.history)-1].to
			applier := &fakeApplier{mode: models.CommunicationMode{WorkspaceID: testWS, StateDisplay: current}}
			adv, err := NewAdvisor(AdvisorOpts{Analyzer: newTestAnalyzer(t, st, clock), Machine: applier, AutoApply: true})
			if err != nil {
				t.Fatal(err)
			}
			got, err := adv.Evaluate(ctx, testWS)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if got.SuggestedState != models.StatePaused {
				t.Fatalf("SuggestedState = %s", got.SuggestedState)
			}
			if got.Held != tt.held || got.Applied == tt.held {
				t.Errorf("Held = %v, Applied = %v, want held %v", got.Held, got.Applied, tt.held)
			}
			if tt.held && len(applier.changes) != 0 {
				t.Errorf("unexpected changes %+v", applier.changes)
			}
		})
	}
}

func TestAdvisor_RecordsLoop(t *testing.T) {
	st, clock := openTestStore(t)
	clarify(t, st, clock, "alice", "bob", "alice")
	applier := &fakeApplier{mode: models.CommunicationMode{WorkspaceID: testWS, StateDisplay: models.StateCalm}}
	adv, err := NewAdvisor(AdvisorOpts{Analyzer: newTestAnalyzer(t, st, clock), Machine: applier})
	if err != nil {
		t.Fatal(err)
	}
	got, err := adv.Evaluate(context.Background(), testWS)
	if err != nil {
		t.Fatal(err)
	}
	if got.Loop == nil {
		t.Fatal("expected the loop to be recorded")
	}
	if got.Assessment.Action != ActionTimeout {
		t.Errorf("Action = %s, want timeout once a loop is open", got.Assessment.Action)
	}
}
