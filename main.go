package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"local/groupmebridge/bridge"
	"local/groupmebridge/config"
	"local/groupmebridge/discord"
	"local/groupmebridge/groupme"
	"local/groupmebridge/web"
)

func main() {
	envFile := ".env"
	for i, a := range os.Args {
		if a == "--env" && i+1 < len(os.Args) {
			envFile = os.Args[i+1]
		}
	}

	// Load configuration
	cfg, err := config.Load(envFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Parse --debug flag from CLI (overrides .env)
	for _, a := range os.Args {
		if a == "--debug" {
			cfg.Debug = true
		}
	}

	// ---- File logging (env-driven) ------------------------------------------
	// Use LOG_FILE or BRIDGE_LOG_FILE (first non-empty wins)
	logPath := os.Getenv("LOG_FILE")
	if logPath == "" {
		logPath = os.Getenv("BRIDGE_LOG_FILE")
	}
	if logPath != "" {
		if dir := filepath.Dir(logPath); dir != "" && dir != "." {
			_ = os.MkdirAll(dir, 0o755)
		}
		f, ferr := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if ferr != nil {
			log.Printf("⚠️ Failed to open log file '%s' (%v). Continuing with stdout only.", logPath, ferr)
		} else {
			// Tee logs to both stdout and file
			log.SetOutput(io.MultiWriter(os.Stdout, f))
			log.SetFlags(log.LstdFlags | log.Lmicroseconds)
			log.Printf("📝 File logging enabled: %s", logPath)
		}
	} else {
		log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	}
	// -------------------------------------------------------------------------

	features := cfg.Features()
	if cfg.Debug {
		log.Println("🐛 Debug logging enabled")
	}
	log.Printf("Using .env file: %s", envFile)
	log.Printf("📺 Discord channel ID: %s", cfg.DiscordChannelID)
	log.Printf("🖼️ Image support: %v", features.ImageSupport)
	log.Printf("😀 Reaction support: %v", features.Reactions)
	log.Printf("📊 Poll support: %v", features.Polls)
	if !features.ImageSupport {
		log.Println("⚠️ GROUPME_ACCESS_TOKEN not set - image uploads and reactions disabled")
	}
	if cfg.GroupMeGroupID == "" {
		log.Println("⚠️ GROUPME_GROUP_ID not set - poll and reaction features limited")
	}

	// GroupMe REST client
	groupmeClient := groupme.NewClient(cfg.GroupMeBotID, cfg.GroupMeAccessToken, cfg.GroupMeGroupID)

	// Discord adapter
	discordAdapter, err := discord.NewAdapter(cfg)
	if err != nil {
		log.Fatalf("Failed to create Discord adapter: %v", err)
	}

	// Orchestrator wires the core around the two ports
	orch := bridge.NewOrchestrator(cfg, discordAdapter, groupmeClient)
	discordAdapter.OnEvent(orch.Publish)
	discordAdapter.OnReady(func() { orch.SetReady(true) })
	orch.Start()

	// HTTP server: health + GroupMe webhook
	server := web.NewServer(cfg, orch.Snapshot, orch.Publish)
	server.Start()

	// Optional GroupMe push listener (second inbound path next to the webhook)
	var push *groupme.PushClient
	if cfg.GroupMePushEnabled && cfg.GroupMeAccessToken != "" && cfg.GroupMeGroupID != "" {
		push = groupme.NewPushClient(cfg.GroupMeAccessToken, cfg.GroupMeGroupID)
		push.OnMessage(func(m groupme.CallbackMessage) {
			if ev, ok := groupme.NormalizeCallback(m); ok {
				orch.Publish(ev)
			}
		})
		go func() {
			if err := push.Connect(); err != nil {
				log.Printf("Initial GroupMe push connect failed: %v", err)
			}
		}()
	}

	if err := discordAdapter.Start(); err != nil {
		log.Fatalf("Failed to start Discord adapter: %v", err)
	}
	log.Println("🌉 Discord-GroupMe Bridge started successfully")

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("Shutdown signal received, cleaning up...")
	discordAdapter.Stop()
	if push != nil {
		push.Disconnect()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		log.Printf("⚠️ HTTP server shutdown: %v", err)
	}
	orch.Stop()
	log.Println("Bridge stopped successfully")
}
