package model

import (
	"encoding/json"
	"testing"
)

func TestParsePlan(t *testing.T) {
	tests := map[string]Plan{
		"monthly":   PlanMonthly,
		" YEARLY ":  PlanYearly,
		"Quarterly": PlanQuarterly,
		"FREE":      PlanFree,
		"trial":     PlanFree,
		"":          PlanFree,
	}
	for in, want := range tests {
		if got := ParsePlan(in); got != want {
			t.Errorf("ParsePlan(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestSnapshot_DecodesLooseCase(t *testing.T) {
	var s Snapshot
	if err := json.Unmarshal([]byte(`{"plan":"yearly","role":"admin"}`), &s); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if s.Plan != PlanYearly || s.Role != RoleAdmin {
		t.Errorf("plan/role = %s/%s", s.Plan, s.Role)
	}
}

func TestAngelLinked(t *testing.T) {
	tests := []struct {
		snap Snapshot
		want bool
	}{
		{Snapshot{}, false},
		{Snapshot{Angel: AngelState{BrokerConnected: true}}, true},
		{Snapshot{Broker: BrokerInfo{Connected: true, BrokerName: "Angel"}}, true},
		{Snapshot{Broker: BrokerInfo{Connected: false, BrokerName: "ANGEL"}}, false},
		{Snapshot{Broker: BrokerInfo{Connected: true, BrokerName: "UPSTOX"}}, false},
	}
	for _, tt := range tests {
		if got := tt.snap.AngelLinked(); got != tt.want {
			t.Errorf("AngelLinked(%+v) = %v, want %v", tt.snap, got, tt.want)
		}
	}
}

func TestTokens(t *testing.T) {
	var nilTokens *Tokens
	if nilTokens.HasDirect() || !nilTokens.Empty() {
		t.Error("nil bundle should be empty")
	}
	if !(&Tokens{RequestToken: "r"}).HasDirect() {
		t.Error("request token alone is a direct bundle")
	}
	if (&Tokens{FeedToken: "f"}).HasDirect() || !(&Tokens{FeedToken: "f"}).Empty() {
		t.Error("feed token alone is not usable")
	}
	if (&Tokens{TokenID: "t"}).Empty() || (&Tokens{Completed: true}).Empty() {
		t.Error("handle and completed flag are evidence")
	}
}

func TestLinkMessage_FromAngel(t *testing.T) {
	for _, p := range []string{"angel", "ANGEL", " Angel "} {
		if !(LinkMessage{Provider: p}).FromAngel() {
			t.Errorf("%q should be accepted", p)
		}
	}
	if (LinkMessage{Provider: "zerodha"}).FromAngel() {
		t.Error("foreign provider accepted")
	}
}
