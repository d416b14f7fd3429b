package app

import (
	"math"
	"testing"
)

func TestParseTargets(t *testing.T) {
	targets, err := parseTargets([]string{"btc=0.25", "ETH=0.5", "ltc=0.25"})
	if err != nil {
		t.Fatalf("parseTargets returned error: %v", err)
	}
	if len(targets) != 3 {
		t.Fatalf("expected 3 targets, got %v", targets)
	}
	if targets["BTC"] != 0.25 || targets["ETH"] != 0.5 || targets["LTC"] != 0.25 {
		t.Errorf("unexpected targets: %v", targets)
	}
}

func TestParseTargets_Errors(t *testing.T) {
	cases := map[string][]string{
		"missing separator": {"BTC0.5", "ETH=0.5"},
		"empty currency":    {"=0.5", "ETH=0.5"},
		"bad number":        {"BTC=half", "ETH=0.5"},
		"negative weight":   {"BTC=-0.5", "ETH=1.5"},
		"duplicate":         {"BTC=0.5", "btc=0.5"},
		"bad sum":           {"BTC=0.5", "ETH=0.6"},
	}
	for name, entries := range cases {
		if _, err := parseTargets(entries); err == nil {
			t.Errorf("%s: expected error for %v", name, entries)
		}
	}
}

func TestParseBalances(t *testing.T) {
	balances, err := parseBalances([]string{"btc=1.5", "ETH=10"})
	if err != nil {
		t.Fatalf("parseBalances returned error: %v", err)
	}
	if math.Abs(balances["BTC"]-1.5) > 1e-12 || balances["ETH"] != 10 {
		t.Errorf("unexpected balances: %v", balances)
	}

	empty, err := parseBalances(nil)
	if err != nil {
		t.Fatalf("parseBalances(nil) returned error: %v", err)
	}
	if empty != nil {
		t.Errorf("expected nil balances for empty input, got %v", empty)
	}

	if _, err := parseBalances([]string{"BTC=-1"}); err == nil {
		t.Errorf("expected error for negative balance")
	}
}
