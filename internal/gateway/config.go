package gateway

import (
	"encoding/json"
	"os"
	"strconv"
)

// SecurityPolicy is the inferred posture from (host, token), per spec.md
// section 4.8.
type SecurityPolicy string

const (
	PolicyStrict     SecurityPolicy = "strict"
	PolicyPermissive SecurityPolicy = "permissive"
	PolicyBalanced   SecurityPolicy = "balanced"
)

// LaunchConfig is the daemon's resolved boot-time configuration: env
// variables override a persisted settings file, which overrides built-in
// defaults. Field names track the env vars in spec.md section 6.
type LaunchConfig struct {
	Host                    string         `json:"host"`
	Port                    int            `json:"port"`
	Token                   string         `json:"token"`
	SecurityPolicy          SecurityPolicy `json:"security_policy"`
	RunMode                 string         `json:"run_mode"`
	MaxIterations           int            `json:"max_iterations"`
	DangerouslySkipApproval bool           `json:"dangerously_skip_permissions"`
	ExecStateFile           string         `json:"exec_state_file"`
	RunStateFile            string         `json:"run_state_file"`
	AllowInsecureBindOpen   bool           `json:"allow_insecure_bind_open"`

	// Channel credentials, seeded as each channel's default ChannelConfig on
	// first boot (internal/channels.ConfigStore.SeedDefault never overwrites
	// a value already persisted via PUT /channels/:id). Empty means the
	// channel starts disabled.
	DiscordToken        string `json:"-"`
	TelegramToken       string `json:"-"`
	SlackBotToken       string `json:"-"`
	SlackAppToken       string `json:"-"`
	WhatsAppSessionPath string `json:"-"`
}

// DefaultLaunchConfig is the config used when neither env nor a settings
// file supply a value.
func DefaultLaunchConfig() LaunchConfig {
	return LaunchConfig{
		Host:          "127.0.0.1",
		Port:          8787,
		RunMode:       "interactive",
		MaxIterations: 10,
		ExecStateFile: "exec-sessions.json",
		RunStateFile:  "runs",
	}
}

// Resolve computes the effective LaunchConfig: defaults, overlaid by the
// persisted settings file at settingsPath (if it exists and parses),
// overlaid by recognized environment variables. env is an os.Environ-style
// lookup function, injected for testability.
func Resolve(settingsPath string, env func(key string) (string, bool)) (LaunchConfig, error) {
	cfg := DefaultLaunchConfig()

	if settingsPath != "" {
		if data, err := os.ReadFile(settingsPath); err == nil {
			var stored LaunchConfig
			if jsonErr := json.Unmarshal(data, &stored); jsonErr == nil {
				overlay(&cfg, stored)
			}
		}
	}

	applyEnv(&cfg, env)

	if cfg.SecurityPolicy == "" {
		cfg.SecurityPolicy = InferSecurityPolicy(cfg.Host, cfg.Token)
	}

	return cfg, nil
}

// overlay copies every non-zero field of stored onto cfg.
func overlay(cfg *LaunchConfig, stored LaunchConfig) {
	if stored.Host != "" {
		cfg.Host = stored.Host
	}
	if stored.Port != 0 {
		cfg.Port = stored.Port
	}
	if stored.Token != "" {
		cfg.Token = stored.Token
	}
	if stored.SecurityPolicy != "" {
		cfg.SecurityPolicy = stored.SecurityPolicy
	}
	if stored.RunMode != "" {
		cfg.RunMode = stored.RunMode
	}
	if stored.MaxIterations != 0 {
		cfg.MaxIterations = stored.MaxIterations
	}
	if stored.DangerouslySkipApproval {
		cfg.DangerouslySkipApproval = true
	}
	if stored.ExecStateFile != "" {
		cfg.ExecStateFile = stored.ExecStateFile
	}
	if stored.RunStateFile != "" {
		cfg.RunStateFile = stored.RunStateFile
	}
	if stored.AllowInsecureBindOpen {
		cfg.AllowInsecureBindOpen = true
	}
}

func applyEnv(cfg *LaunchConfig, env func(key string) (string, bool)) {
	if env == nil {
		env = os.LookupEnv
	}
	if v, ok := env("NRN_HOST"); ok && v != "" {
		cfg.Host = v
	}
	if v, ok := env("UNDOABLE_DAEMON_HOST"); ok && v != "" {
		cfg.Host = v
	}
	if v, ok := env("NRN_PORT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v, ok := env("UNDOABLE_DAEMON_PORT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v, ok := env("UNDOABLE_TOKEN"); ok {
		cfg.Token = v
	}
	if v, ok := env("UNDOABLE_SECURITY_POLICY"); ok && v != "" {
		cfg.SecurityPolicy = SecurityPolicy(v)
	}
	if v, ok := env("UNDOABLE_RUN_MODE"); ok && v != "" {
		cfg.RunMode = v
	}
	if v, ok := env("UNDOABLE_MAX_ITERATIONS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxIterations = n
		}
	}
	if v, ok := env("UNDOABLE_DANGEROUSLY_SKIP_PERMISSIONS"); ok {
		cfg.DangerouslySkipApproval = isTruthy(v)
	}
	if v, ok := env("UNDOABLE_EXEC_STATE_FILE"); ok && v != "" {
		cfg.ExecStateFile = v
	}
	if v, ok := env("UNDOABLE_RUN_STATE_FILE"); ok && v != "" {
		cfg.RunStateFile = v
	}
	if v, ok := env("UNDOABLE_ALLOW_INSECURE_BIND_OPEN"); ok {
		cfg.AllowInsecureBindOpen = isTruthy(v)
	}
	if v, ok := env("UNDOABLE_DISCORD_TOKEN"); ok {
		cfg.DiscordToken = v
	}
	if v, ok := env("UNDOABLE_TELEGRAM_TOKEN"); ok {
		cfg.TelegramToken = v
	}
	if v, ok := env("UNDOABLE_SLACK_BOT_TOKEN"); ok {
		cfg.SlackBotToken = v
	}
	if v, ok := env("UNDOABLE_SLACK_APP_TOKEN"); ok {
		cfg.SlackAppToken = v
	}
	if v, ok := env("UNDOABLE_WHATSAPP_SESSION_PATH"); ok {
		cfg.WhatsAppSessionPath = v
	}
}

func isTruthy(v string) bool {
	switch v {
	case "1", "true", "TRUE", "True", "yes":
		return true
	default:
		return false
	}
}

// IsLoopback reports whether host refers to the local machine only.
func IsLoopback(host string) bool {
	switch host {
	case "127.0.0.1", "localhost", "::1", "":
		return true
	default:
		return false
	}
}

// InferSecurityPolicy derives the (host, token) -> policy mapping spec.md
// section 4.8 specifies: loopback+token is strict, non-loopback without a
// token is permissive (the caller is expected to refuse to start unless
// AllowInsecureBindOpen is set), anything else is balanced.
func InferSecurityPolicy(host, token string) SecurityPolicy {
	loopback := IsLoopback(host)
	switch {
	case loopback && token != "":
		return PolicyStrict
	case !loopback && token == "":
		return PolicyPermissive
	default:
		return PolicyBalanced
	}
}
