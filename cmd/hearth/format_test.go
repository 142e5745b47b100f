package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/zulandar/hearth/internal/telegraph"
)

func TestRenderEvent(t *testing.T) {
	var buf bytes.Buffer
	renderEvent(&buf, telegraph.FormattedEvent{
		Title: "Hearth is paused",
		Body:  "Topic: dishes\n12 minutes remaining",
		Fields: []telegraph.Field{
			{Name: "State", Value: "paused"},
			{Name: "Breaks today", Value: "2"},
		},
	})

	want := "Hearth is paused\n" +
		"  Topic: dishes\n" +
		"  12 minutes remaining\n" +
		"  State:         paused\n" +
		"  Breaks today:  2\n"
	if buf.String() != want {
		t.Errorf("renderEvent =\n%q\nwant\n%q", buf.String(), want)
	}
}

func TestRenderEvent_TitleOnly(t *testing.T) {
	var buf bytes.Buffer
	renderEvent(&buf, telegraph.FormattedEvent{Title: "Risk: low"})
	if got := buf.String(); got != "Risk: low\n" {
		t.Errorf("renderEvent = %q", got)
	}
}

func TestFormatAge(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{-time.Second, "0s"},
		{45 * time.Second, "45s"},
		{12 * time.Minute, "12m"},
		{3*time.Hour + 5*time.Minute, "3h"},
		{50 * time.Hour, "2d"},
	}
	for _, tt := range tests {
		if got := formatAge(tt.d); got != tt.want {
			t.Errorf("formatAge(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("alice", 10); got != "alice" {
		t.Errorf("short string changed: %q", got)
	}
	if got := truncate("bartholomew", 6); got != "barth~" {
		t.Errorf("truncate = %q, want barth~", got)
	}
	if got := truncate("héllo", 1); !strings.HasPrefix(got, "h") || len([]rune(got)) != 1 {
		t.Errorf("truncate to 1 = %q", got)
	}
}
