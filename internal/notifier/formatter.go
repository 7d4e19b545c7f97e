package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"AngelLink/internal/model"

	"github.com/shopspring/decimal"
)

// FormatDisplay derives the header/sidebar text from a snapshot.
func FormatDisplay(s model.Snapshot) model.Display {
	d := model.Display{
		PlanBadge: planLabel(s.Plan),
		ClientID:  s.Broker.ClientID,
	}
	if s.Role == model.RoleAdmin {
		d.PlanBadge = "Admin · " + d.PlanBadge
	}

	switch {
	case s.AngelLinked():
		d.BrokerStatus = "Angel connected"
	case s.Broker.Connected && s.Broker.BrokerName != "":
		d.BrokerStatus = s.Broker.BrokerName + " connected"
	case s.Broker.Connected:
		d.BrokerStatus = "Broker connected"
	default:
		d.BrokerStatus = "Not connected"
	}
	if s.Provisional {
		d.BrokerStatus += " (syncing)"
	}
	if s.Angel.BrokerConnected {
		d.Margin = fmt.Sprintf("Margin %d%%", s.Angel.AllowedMarginPercent)
	}
	return d
}

func planLabel(p model.Plan) string {
	switch p {
	case model.PlanMonthly:
		return "Monthly"
	case model.PlanQuarterly:
		return "Quarterly"
	case model.PlanYearly:
		return "Yearly"
	default:
		return "Free"
	}
}

// FormatGuidance turns a toggle guidance into the message shown to the user.
func FormatGuidance(g model.Guidance) string {
	switch g {
	case model.GuidanceNeedAccessAndConnection:
		return "Upgrade your plan and connect your Angel account to use the trading engine."
	case model.GuidanceNeedAccess:
		return "The trading engine needs a paid plan. Upgrade to enable it."
	case model.GuidanceNeedConnection:
		return "Connect your Angel account to use the trading engine."
	default:
		return ""
	}
}

// FormatFunds formats the available margin.
func FormatFunds(available decimal.Decimal) string {
	return "₹" + available.StringFixed(2)
}

// FormatStatus formats the account and engine state for a chat reply.
func FormatStatus(s model.Snapshot, e model.EngineState) string {
	d := FormatDisplay(s)
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📋 <b>Desk status</b> | %s\n\n", time.Now().Format("2006-01-02 15:04")))
	if s.Name != "" {
		b.WriteString(fmt.Sprintf("Account: %s\n", html.EscapeString(s.Name)))
	}
	b.WriteString(fmt.Sprintf("Plan: %s\n", d.PlanBadge))
	b.WriteString(fmt.Sprintf("Broker: %s\n", d.BrokerStatus))
	if d.ClientID != "" {
		b.WriteString(fmt.Sprintf("Client ID: %s\n", html.EscapeString(d.ClientID)))
	}
	if d.Margin != "" {
		b.WriteString(d.Margin + "\n")
	}
	b.WriteString("\n⚙️ <b>Trading engine:</b> ")
	if e.Enabled {
		b.WriteString("ON\n")
	} else {
		b.WriteString("OFF\n")
	}
	b.WriteString(fmt.Sprintf("  access %s | connected %s | live %s | automation %s\n",
		mark(e.HasAccess), mark(e.Connected), mark(e.LiveEnabled), mark(e.AutomationEnabled)))
	if !s.FetchedAt.IsZero() {
		b.WriteString(fmt.Sprintf("\nUpdated: %s", s.FetchedAt.Format("2006-01-02 15:04:05")))
	}
	return b.String()
}

func mark(ok bool) string {
	if ok {
		return "✔"
	}
	return "✘"
}
