package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"wifirtt/internal/model"
	"wifirtt/internal/probe"
)

func TestNormalizeBaseURL(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"localhost:3000":       "http://localhost:3000",
		"http://10.0.0.2:3000": "http://10.0.0.2:3000",
		"https://rtt.example":  "https://rtt.example",
	}
	for in, want := range cases {
		if got := normalizeBaseURL(in); got != want {
			t.Fatalf("normalizeBaseURL(%q)=%q want %q", in, got, want)
		}
	}
}

func TestSplitList(t *testing.T) {
	t.Parallel()

	got := splitList(" stun.l.google.com:19302, ,stun:stun.example.org ")
	if len(got) != 2 || got[0] != "stun.l.google.com:19302" || got[1] != "stun:stun.example.org" {
		t.Fatalf("splitList=%q", got)
	}
}

func TestPrintHostLatency(t *testing.T) {
	t.Parallel()

	jitter := 0.5
	var buf bytes.Buffer
	printHostLatency(&buf, model.HostLatency{
		Host: "192.168.1.1",
		ICMP: &model.LatencySummary{AvgMs: 2, MinMs: 1, MaxMs: 3, Samples: 10, JitterMs: &jitter},
	})
	out := buf.String()
	if !strings.Contains(out, "tcp-connect unreachable") {
		t.Fatalf("missing unreachable tcp line:\n%s", out)
	}
	if !strings.Contains(out, "samples=10 jitter=0.50ms") {
		t.Fatalf("missing icmp summary:\n%s", out)
	}
	if strings.Contains(out, "kernel-rtt") {
		t.Fatalf("unexpected kernel line:\n%s", out)
	}
}

func TestProbeTarget_RejectsOptionLikeHosts(t *testing.T) {
	t.Parallel()

	if host, err := probeTarget("192.168.1.1"); err != nil || host != "192.168.1.1" {
		t.Fatalf("host=%q err=%v", host, err)
	}
	if _, err := probeTarget(""); err == nil {
		t.Fatalf("expected error for empty host")
	}
	for _, arg := range []string{"-f", "-c100", "example.com", "300.1.1.1"} {
		if _, err := probeTarget(arg); !errors.Is(err, probe.ErrInvalidHost) {
			t.Fatalf("probeTarget(%q): err=%v", arg, err)
		}
	}
}
