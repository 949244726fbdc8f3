package main

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/neurana/undoable-sub002/internal/channels"
	"github.com/neurana/undoable-sub002/internal/gateway"
	"github.com/neurana/undoable-sub002/pkg/models"
)

func TestSeedChannelDefaultsOnlySeedsConfiguredChannels(t *testing.T) {
	store, err := channels.NewConfigStore(filepath.Join(t.TempDir(), "channels.json"))
	if err != nil {
		t.Fatal(err)
	}

	seedChannelDefaults(store, gateway.LaunchConfig{
		DiscordToken:  "d-token",
		SlackBotToken: "b-token",
	})

	if _, ok := store.Get(models.ChannelDiscord); !ok {
		t.Fatal("expected discord to be seeded from DiscordToken")
	}
	if _, ok := store.Get(models.ChannelSlack); ok {
		t.Fatal("slack requires both bot and app token; should not be seeded with only one")
	}
	if _, ok := store.Get(models.ChannelTelegram); ok {
		t.Fatal("telegram has no token in this config; should not be seeded")
	}
}

func TestSeedChannelDefaultsNeverOverwritesUserEdits(t *testing.T) {
	store, err := channels.NewConfigStore(filepath.Join(t.TempDir(), "channels.json"))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Upsert(models.ChannelConfig{ChannelID: models.ChannelDiscord, Enabled: false, Token: "user-set"}); err != nil {
		t.Fatal(err)
	}

	seedChannelDefaults(store, gateway.LaunchConfig{DiscordToken: "env-token"})

	got, _ := store.Get(models.ChannelDiscord)
	if got.Token != "user-set" || got.Enabled {
		t.Fatalf("expected user edit preserved, got %+v", got)
	}
}

func TestRegisterConfiguredChannelsRegistersEnabledAdapters(t *testing.T) {
	store, err := channels.NewConfigStore(filepath.Join(t.TempDir(), "channels.json"))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Upsert(models.ChannelConfig{ChannelID: models.ChannelDiscord, Enabled: true, Token: "d-token"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Upsert(models.ChannelConfig{ChannelID: models.ChannelTelegram, Enabled: false, Token: "t-token"}); err != nil {
		t.Fatal(err)
	}

	registry := channels.NewRegistry()
	registerConfiguredChannels(registry, store, slog.Default())

	if _, ok := registry.Get(models.ChannelDiscord); !ok {
		t.Fatal("expected an adapter registered for the enabled discord config")
	}
	if _, ok := registry.Get(models.ChannelTelegram); ok {
		t.Fatal("did not expect an adapter for the disabled telegram config")
	}
}
