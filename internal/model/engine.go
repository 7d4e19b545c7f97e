package model

// EngineState is derived from a Snapshot and never stored.
type EngineState struct {
	HasAccess         bool `json:"hasAccess"`
	Connected         bool `json:"connected"`
	LiveEnabled       bool `json:"liveEnabled"`
	AutomationEnabled bool `json:"automationEnabled"`
	Enabled           bool `json:"enabled"`
	// Clickable is true when the toggle should react to clicks, even if only
	// to explain what is missing.
	Clickable bool `json:"clickable"`
}

// Guidance is the answer to a toggle attempt before any network call.
type Guidance string

const (
	GuidanceNeedAccessAndConnection Guidance = "NEED_ACCESS_AND_CONNECTION"
	GuidanceNeedAccess              Guidance = "NEED_ACCESS"
	GuidanceNeedConnection          Guidance = "NEED_CONNECTION"
	GuidanceEligible                Guidance = "ELIGIBLE"
)

// Display is the header/sidebar text derived from the snapshot.
type Display struct {
	BrokerStatus string `json:"brokerStatus"`
	ClientID     string `json:"clientId,omitempty"`
	PlanBadge    string `json:"planBadge"`
	Margin       string `json:"margin,omitempty"`
}
