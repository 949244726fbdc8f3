// Command undoabled is the Undoable daemon: a local background process
// that runs AI-agent instructions to completion, scheduling recurring
// jobs, gating mutating tool calls behind approval, logging every action
// for undo, recovering exec sessions across restarts, and bridging chat
// channels into runs.
//
// Usage:
//
//	undoabled --workspace . --settings daemon-settings.json
//
// Configuration is resolved from environment variables, overlaid on a
// persisted settings file, overlaid on built-in defaults; see
// internal/gateway.Resolve.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/neurana/undoable-sub002/internal/actionlog"
	"github.com/neurana/undoable-sub002/internal/approval"
	"github.com/neurana/undoable-sub002/internal/bridge"
	"github.com/neurana/undoable-sub002/internal/channels"
	"github.com/neurana/undoable-sub002/internal/channels/discord"
	"github.com/neurana/undoable-sub002/internal/channels/slack"
	"github.com/neurana/undoable-sub002/internal/channels/telegram"
	"github.com/neurana/undoable-sub002/internal/channels/whatsapp"
	"github.com/neurana/undoable-sub002/internal/daemonlifecycle"
	"github.com/neurana/undoable-sub002/internal/eventbus"
	"github.com/neurana/undoable-sub002/internal/execsession"
	"github.com/neurana/undoable-sub002/internal/executor"
	"github.com/neurana/undoable-sub002/internal/gateway"
	"github.com/neurana/undoable-sub002/internal/observability"
	"github.com/neurana/undoable-sub002/internal/pairing"
	"github.com/neurana/undoable-sub002/internal/runs"
	"github.com/neurana/undoable-sub002/internal/scheduler"
	"github.com/neurana/undoable-sub002/internal/toolregistry"
	"github.com/neurana/undoable-sub002/internal/tools"
	"github.com/neurana/undoable-sub002/internal/undo"
	"github.com/neurana/undoable-sub002/pkg/models"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	workspace := flag.String("workspace", ".", "workspace root the file and exec tools operate in")
	settingsPath := flag.String("settings", "daemon-settings.json", "path to the persisted launch settings file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("undoabled %s (%s)\n", version, commit)
		return
	}

	cfg, err := gateway.Resolve(*settingsPath, os.LookupEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolve launch config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  "info",
		Format: "json",
	})
	metrics := observability.NewMetrics()
	slogger := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := eventbus.New()

	runStateDir := filepath.Join(*workspace, cfg.RunStateFile)
	runStore, err := runs.NewFileStore(runStateDir)
	if err != nil {
		logger.Error(ctx, "create run store", "error", err)
		os.Exit(1)
	}
	runManager := runs.New(bus, runStore)
	if err := runManager.Recover(); err != nil {
		logger.Error(ctx, "recover runs", "error", err)
		os.Exit(1)
	}

	execStatePath := filepath.Join(*workspace, cfg.ExecStateFile)
	execRegistry, err := execsession.Recover(execStatePath)
	if err != nil {
		slogger.Info("no prior exec session snapshot found, starting fresh", "error", err)
		execRegistry = execsession.NewRegistry()
	} else if running := execRegistry.ListRunning(); len(running) > 0 {
		slogger.Info("recovered exec sessions from prior run", "running", len(running))
	}
	persister := execsession.NewPersister(execStatePath, 500)
	persister.Attach(execRegistry)

	registry, _, err := tools.BuildRegistry(tools.Spec{Workspace: *workspace, Sessions: execRegistry})
	if err != nil {
		logger.Error(ctx, "build tool registry", "error", err)
		os.Exit(1)
	}

	gateMode := approval.ModeMutate
	if cfg.DangerouslySkipApproval {
		gateMode = approval.ModeOff
	}
	gate := approval.New(gateMode)

	actionLogFile, err := os.OpenFile(filepath.Join(*workspace, "actions.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		logger.Error(ctx, "open action log", "error", err)
		os.Exit(1)
	}
	defer actionLogFile.Close()
	actionLog := actionlog.New(actionLogFile)
	undoSvc := undo.New(actionLog)

	exec := executor.New(
		runManager, bus, registry, gate, actionLog, undoSvc,
		unconfiguredLLM{},
		nil, nil, nil,
		executor.Config{MaxIterations: cfg.MaxIterations},
	)

	runFn := func(ctx context.Context, input models.CreateRunInput) (string, error) {
		run, createErr := runManager.Create(input)
		if createErr != nil {
			return "", createErr
		}
		go func() {
			if err := exec.Run(context.Background(), run.ID, input.Instruction, input.SessionID); err != nil {
				slogger.Warn("run execution failed", "run_id", run.ID, "error", err)
			}
		}()
		return run.ID, nil
	}

	lifecycle := daemonlifecycle.New()

	schedStore, err := scheduler.NewStore(filepath.Join(*workspace, "jobs.json"))
	if err != nil {
		logger.Error(ctx, "create scheduler store", "error", err)
		os.Exit(1)
	}
	sched := scheduler.New(schedStore, func(ctx context.Context, job *models.Job) (string, models.JobLastStatus, error) {
		runID, err := runFn(ctx, models.CreateRunInput{
			AgentID: job.Payload.AgentID, Instruction: job.Payload.Instruction, JobID: job.ID,
		})
		if err != nil {
			return "", models.JobLastStatusError, err
		}
		return runID, models.JobLastStatusOK, nil
	}, func(event scheduler.Event) {
		slogger.Info("scheduler event", "job_id", event.JobID, "status", event.Status)
	})
	sched.Start(ctx)
	lifecycle.Register("scheduler", func(ctx context.Context) error {
		sched.Stop()
		return nil
	})

	lifecycle.Register("exec-sessions", func(ctx context.Context) error {
		return persister.WriteNow(execRegistry)
	})

	channelRegistry := channels.NewRegistry()
	pairingStore := pairing.NewStore(*workspace)

	channelStore, err := channels.NewConfigStore(filepath.Join(*workspace, "channels.json"))
	if err != nil {
		logger.Error(ctx, "load channel config store", "error", err)
		os.Exit(1)
	}
	seedChannelDefaults(channelStore, cfg)
	registerConfiguredChannels(channelRegistry, channelStore, slogger)

	chatBridge := bridge.New(runManager, runFn, channelStore.Get, 2000, 20,
		bridge.WithPairingStore(pairingStore),
		bridge.WithLogger(slogger),
	)
	go chatBridge.Run(ctx, channelRegistry)
	if err := channelRegistry.StartAll(ctx); err != nil {
		slogger.Error("channel start failed", "error", err)
	}
	lifecycle.Register("channels", func(ctx context.Context) error {
		return channelRegistry.StopAll(ctx)
	})

	auth := gateway.NewAuth(cfg.Token, slogger)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok", "version": version})
	})
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: auth.Middleware(mux),
	}
	lifecycle.Register("http", func(ctx context.Context) error {
		return server.Shutdown(ctx)
	})

	go func() {
		slogger.Info("undoabled listening", "addr", server.Addr, "security_policy", cfg.SecurityPolicy)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slogger.Error("http server error", "error", err)
		}
	}()

	metrics.ToolExecutionCounter.WithLabelValues("startup", "success").Inc()

	<-ctx.Done()
	slogger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	lifecycle.Shutdown(shutdownCtx, func(name string, err error) {
		slogger.Error("shutdown handler failed", "handler", name, "error", err)
	})
}

// seedChannelDefaults writes one default ChannelConfig per platform with
// credentials found in the launch config, the first time the daemon boots
// against a given workspace; a channel with no token/session path stays
// absent from the store (and so unconfigured/disabled) until a user PUTs a
// config for it.
func seedChannelDefaults(store *channels.ConfigStore, cfg gateway.LaunchConfig) {
	if cfg.DiscordToken != "" {
		_ = store.SeedDefault(models.ChannelConfig{
			ChannelID: models.ChannelDiscord, Enabled: true, Token: cfg.DiscordToken,
			AllowDMs: true, AllowGroups: true, RateLimit: 20,
		})
	}
	if cfg.TelegramToken != "" {
		_ = store.SeedDefault(models.ChannelConfig{
			ChannelID: models.ChannelTelegram, Enabled: true, Token: cfg.TelegramToken,
			AllowDMs: true, AllowGroups: true, RateLimit: 20,
		})
	}
	if cfg.SlackBotToken != "" && cfg.SlackAppToken != "" {
		_ = store.SeedDefault(models.ChannelConfig{
			ChannelID: models.ChannelSlack, Enabled: true, Token: cfg.SlackBotToken,
			Extra:     map[string]any{"app_token": cfg.SlackAppToken},
			AllowDMs:  true, AllowGroups: true, RateLimit: 20,
		})
	}
	if cfg.WhatsAppSessionPath != "" {
		_ = store.SeedDefault(models.ChannelConfig{
			ChannelID: models.ChannelWhatsApp, Enabled: true,
			Extra:     map[string]any{"session_path": cfg.WhatsAppSessionPath},
			AllowDMs:  true, AllowGroups: false, RateLimit: 20,
		})
	}
}

// registerConfiguredChannels constructs and registers an adapter for every
// enabled channel in store. A construction failure is logged and that
// channel is skipped; it never aborts the other channels or daemon boot
// (spec.md 4.7/4.9: channel errors surface as that channel's status and
// never propagate to other subsystems).
func registerConfiguredChannels(registry *channels.Registry, store *channels.ConfigStore, logger *slog.Logger) {
	for _, cfg := range store.List() {
		if !cfg.Enabled {
			continue
		}
		switch cfg.ChannelID {
		case models.ChannelDiscord:
			adapter, err := discord.NewAdapter(discord.Config{Token: cfg.Token, Logger: logger})
			if err != nil {
				logger.Error("construct discord adapter", "error", err)
				continue
			}
			registry.Register(adapter)
		case models.ChannelTelegram:
			adapter, err := telegram.NewAdapter(telegram.Config{Token: cfg.Token, Logger: logger})
			if err != nil {
				logger.Error("construct telegram adapter", "error", err)
				continue
			}
			registry.Register(adapter)
		case models.ChannelSlack:
			appToken, _ := cfg.Extra["app_token"].(string)
			registry.Register(slack.NewAdapter(slack.Config{BotToken: cfg.Token, AppToken: appToken}))
		case models.ChannelWhatsApp:
			sessionPath, _ := cfg.Extra["session_path"].(string)
			waCfg := whatsapp.DefaultConfig()
			waCfg.Enabled = true
			if sessionPath != "" {
				waCfg.SessionPath = sessionPath
			}
			adapter, err := whatsapp.New(waCfg, logger)
			if err != nil {
				logger.Error("construct whatsapp adapter", "error", err)
				continue
			}
			registry.Register(adapter)
		default:
			logger.Warn("unknown channel id in config store, skipping", "channel_id", cfg.ChannelID)
		}
	}
}

// unconfiguredLLM is the executor's LLM provider until a real backend is
// wired in by deployment configuration; it always fails, which surfaces as
// a RUN_FAILED event rather than silently hanging a run.
type unconfiguredLLM struct{}

func (unconfiguredLLM) CallLLM(ctx context.Context, messages []executor.Message, toolDefs []toolregistry.Definition) (<-chan executor.StreamChunk, error) {
	return nil, fmt.Errorf("no LLM provider configured")
}
