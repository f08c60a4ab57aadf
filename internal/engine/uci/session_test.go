package uci

import (
	"strings"
	"testing"
	"time"
)

func TestParseScore(t *testing.T) {
	cases := []struct {
		line string
		cp   int
		mate bool
		ok   bool
	}{
		{"info depth 14 seldepth 20 score cp 35 nodes 120000 pv e2e4", 35, false, true},
		{"info depth 14 score cp -210 nodes 5", -210, false, true},
		{"info depth 30 score mate 3 pv d1h5", mateScoreCP, true, true},
		{"info depth 30 score mate -2", -mateScoreCP, true, true},
		{"info depth 10 nodes 1000", 0, false, false},
		{"bestmove e2e4", 0, false, false},
		{"info score cp notanumber", 0, false, false},
	}
	for _, tc := range cases {
		cp, mate, ok := parseScore(tc.line)
		if cp != tc.cp || mate != tc.mate || ok != tc.ok {
			t.Errorf("parseScore(%q) = (%d,%v,%v), want (%d,%v,%v)", tc.line, cp, mate, ok, tc.cp, tc.mate, tc.ok)
		}
	}
}

func TestBuildPositionCommand(t *testing.T) {
	if got := buildPositionCommand("", nil); got != "position startpos\n" {
		t.Fatalf("empty fen: %q", got)
	}
	if got := buildPositionCommand("startpos", []string{"e2e4", "e7e5"}); got != "position startpos moves e2e4 e7e5\n" {
		t.Fatalf("startpos with moves: %q", got)
	}
	fen := "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
	got := buildPositionCommand(fen, nil)
	if !strings.HasPrefix(got, "position fen "+fen) {
		t.Fatalf("fen command: %q", got)
	}
}

func TestBuildGoTokens(t *testing.T) {
	if _, err := buildGoTokens(Limits{}); err == nil {
		t.Fatal("expected error for empty limits")
	}
	tokens, err := buildGoTokens(Limits{Depth: 14, MoveTimeMillis: 800})
	if err != nil {
		t.Fatalf("buildGoTokens: %v", err)
	}
	if strings.Join(tokens, " ") != "go depth 14 movetime 800" {
		t.Fatalf("tokens: %v", tokens)
	}
}

func TestComputeSearchTimeout(t *testing.T) {
	if got := computeSearchTimeout(Limits{MoveTimeMillis: 800}); got != 2800*time.Millisecond {
		t.Fatalf("movetime timeout: %s", got)
	}
	if got := computeSearchTimeout(Limits{Depth: 10}); got != 5*time.Second {
		t.Fatalf("shallow depth should floor at 5s: %s", got)
	}
	if got := computeSearchTimeout(Limits{Depth: 99}); got != 20*time.Second {
		t.Fatalf("deep search should cap at 20s: %s", got)
	}
	if got := computeSearchTimeout(Limits{}); got != 5*time.Second {
		t.Fatalf("default timeout: %s", got)
	}
}

func TestValidateOptions(t *testing.T) {
	if err := validateOptions(Options{HashMB: 128, MultiPV: 1}); err != nil {
		t.Fatalf("valid options rejected: %v", err)
	}
	if err := validateOptions(Options{HashMB: 0, MultiPV: 1}); err == nil {
		t.Fatal("zero hash accepted")
	}
	if err := validateOptions(Options{HashMB: 64, MultiPV: 0}); err == nil {
		t.Fatal("zero multipv accepted")
	}
}
