package models

// ChannelDMPolicy governs how a channel admits direct-message senders.
type ChannelDMPolicy string

const (
	DMPolicyPairing   ChannelDMPolicy = "pairing"
	DMPolicyAllowlist ChannelDMPolicy = "allowlist"
	DMPolicyOpen      ChannelDMPolicy = "open"
	DMPolicyDisabled  ChannelDMPolicy = "disabled"
)

// ChannelConnStatus is the derived connection state reported in a
// ChannelStatus snapshot.
type ChannelConnStatus string

const (
	ChannelStatusConnected     ChannelConnStatus = "connected"
	ChannelStatusAwaitingScan  ChannelConnStatus = "awaiting_scan"
	ChannelStatusError         ChannelConnStatus = "error"
	ChannelStatusOffline       ChannelConnStatus = "offline"
)

// DiagnosticSeverity classifies a Diagnostic entry.
type DiagnosticSeverity string

const (
	DiagnosticInfo    DiagnosticSeverity = "info"
	DiagnosticWarning DiagnosticSeverity = "warning"
	DiagnosticError   DiagnosticSeverity = "error"
)

// ChannelConfig is the persisted, user-editable configuration for one
// channel. Extra carries platform-specific fields (e.g. Slack's appToken)
// that don't warrant their own typed column.
type ChannelConfig struct {
	ChannelID     ChannelType    `json:"channel_id"`
	Enabled       bool           `json:"enabled"`
	Token         string         `json:"token,omitempty"`
	Extra         map[string]any `json:"extra,omitempty"`
	UserAllowlist []string       `json:"user_allowlist,omitempty"`
	UserBlocklist []string       `json:"user_blocklist,omitempty"`
	AllowDMs      bool           `json:"allow_dms"`
	AllowGroups   bool           `json:"allow_groups"`
	RateLimit     int            `json:"rate_limit,omitempty"` // messages/minute per user
	MaxMediaBytes int64          `json:"max_media_bytes,omitempty"`
}

// Diagnostic is a single actionable status note surfaced to the UI.
type Diagnostic struct {
	Code     string             `json:"code"`
	Severity DiagnosticSeverity `json:"severity"`
	Message  string             `json:"message"`
	Recovery string             `json:"recovery,omitempty"`
}

// ChannelStatus is a pure function of a ChannelConfig plus live runtime
// fields (connection state, last error); it holds nothing a caller needs to
// mutate directly.
type ChannelStatus struct {
	ChannelID       ChannelType       `json:"channel_id"`
	Configured      bool              `json:"configured"`
	Connected       bool              `json:"connected"`
	Status          ChannelConnStatus `json:"status"`
	DMPolicy        ChannelDMPolicy   `json:"dm_policy"`
	LastConnectedAt int64             `json:"last_connected_at,omitempty"` // unix ms
	LastError       string            `json:"last_error,omitempty"`
	Diagnostics     []Diagnostic      `json:"diagnostics,omitempty"`
}

// DeriveChannelStatus computes a ChannelStatus from config plus the minimal
// runtime facts an adapter tracks. It never mutates its inputs.
func DeriveChannelStatus(cfg ChannelConfig, connected bool, lastConnectedAtMs int64, lastErr string, awaitingScan bool) ChannelStatus {
	status := ChannelStatus{
		ChannelID:       cfg.ChannelID,
		Configured:      cfg.Token != "" || len(cfg.Extra) > 0,
		Connected:       connected,
		LastConnectedAt: lastConnectedAtMs,
		LastError:       lastErr,
		DMPolicy:        dmPolicyFor(cfg),
	}

	switch {
	case !cfg.Enabled:
		status.Status = ChannelStatusOffline
	case awaitingScan:
		status.Status = ChannelStatusAwaitingScan
	case connected:
		status.Status = ChannelStatusConnected
	case lastErr != "":
		status.Status = ChannelStatusError
	default:
		status.Status = ChannelStatusOffline
	}

	if lastErr != "" {
		status.Diagnostics = append(status.Diagnostics, Diagnostic{
			Code:     "channel.last_error",
			Severity: DiagnosticError,
			Message:  lastErr,
			Recovery: "check credentials and reconnect",
		})
	}
	if !status.Configured && cfg.Enabled {
		status.Diagnostics = append(status.Diagnostics, Diagnostic{
			Code:     "channel.unconfigured",
			Severity: DiagnosticWarning,
			Message:  "channel is enabled but has no token or extra configuration",
			Recovery: "provide a token via the channel config",
		})
	}

	return status
}

func dmPolicyFor(cfg ChannelConfig) ChannelDMPolicy {
	if !cfg.AllowDMs {
		return DMPolicyDisabled
	}
	if cfg.ChannelID == ChannelWhatsApp {
		return DMPolicyPairing
	}
	if len(cfg.UserAllowlist) > 0 {
		return DMPolicyAllowlist
	}
	return DMPolicyOpen
}
