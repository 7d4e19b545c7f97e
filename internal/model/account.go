package model

import (
	"strings"
	"time"
)

// Plan is the subscription plan of the account.
type Plan string

const (
	PlanFree      Plan = "FREE"
	PlanMonthly   Plan = "MONTHLY"
	PlanQuarterly Plan = "QUARTERLY"
	PlanYearly    Plan = "YEARLY"
)

// ParsePlan normalizes a backend plan string. Unknown values map to PlanFree.
func ParsePlan(s string) Plan {
	switch Plan(strings.ToUpper(strings.TrimSpace(s))) {
	case PlanMonthly:
		return PlanMonthly
	case PlanQuarterly:
		return PlanQuarterly
	case PlanYearly:
		return PlanYearly
	default:
		return PlanFree
	}
}

// UnmarshalText lets JSON decoding go through ParsePlan.
func (p *Plan) UnmarshalText(b []byte) error {
	*p = ParsePlan(string(b))
	return nil
}

// Paid reports whether the plan grants paid features.
func (p Plan) Paid() bool { return p != PlanFree && p != "" }

// Role is the account role.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// ParseRole normalizes a backend role string. Unknown values map to RoleUser.
func ParseRole(s string) Role {
	if Role(strings.ToUpper(strings.TrimSpace(s))) == RoleAdmin {
		return RoleAdmin
	}
	return RoleUser
}

func (r *Role) UnmarshalText(b []byte) error {
	*r = ParseRole(string(b))
	return nil
}

// BrokerInfo is the generic broker block of the profile.
type BrokerInfo struct {
	Connected         bool   `json:"connected"`
	BrokerName        string `json:"brokerName,omitempty"`
	ClientID          string `json:"clientId,omitempty"`
	AutomationEnabled bool   `json:"automationEnabled"`
}

// AngelState is the Angel-specific broker state returned by the backend.
type AngelState struct {
	BrokerConnected      bool `json:"brokerConnected"`
	LiveEnabled          bool `json:"liveEnabled"`
	AllowedMarginPercent int  `json:"allowedMarginPercent"`
}

// Snapshot is the local copy of server truth at the last profile fetch.
type Snapshot struct {
	Name   string     `json:"name"`
	Email  string     `json:"email"`
	Plan   Plan       `json:"plan"`
	Role   Role       `json:"role"`
	Broker BrokerInfo `json:"broker"`
	Angel  AngelState `json:"angel"`

	FetchedAt time.Time `json:"fetchedAt"`
	// Provisional is set after an optimistic apply and cleared by the next
	// authoritative fetch.
	Provisional bool `json:"provisional"`
}

// AngelLinked reports whether the profile shows a connected broker named ANGEL.
func (s Snapshot) AngelLinked() bool {
	if s.Angel.BrokerConnected {
		return true
	}
	return s.Broker.Connected && strings.EqualFold(strings.TrimSpace(s.Broker.BrokerName), "angel")
}

// BrokerConnected reports whether any broker connection is recorded.
func (s Snapshot) BrokerConnected() bool {
	return s.Broker.Connected || s.Angel.BrokerConnected
}

// PlanInfo is the response of the plan status endpoint.
type PlanInfo struct {
	Plan Plan `json:"plan"`
	Role Role `json:"role"`
}
