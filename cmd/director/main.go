// Command director serves the storyloom world director over MCP stdio.
//
// Configuration comes from the environment:
//
//	STORYLOOM_DB_PATH        path to the SQLite store (default storyloom.db)
//	STORYLOOM_JUDGE_SCRIPT   optional path to a Lua judge script
//	STORYLOOM_OTEL_ENDPOINT  optional OTLP endpoint for tracing
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/louisbranch/storyloom/internal/judge"
	"github.com/louisbranch/storyloom/internal/judge/luajudge"
	"github.com/louisbranch/storyloom/internal/mcp"
	"github.com/louisbranch/storyloom/internal/platform/config"
	"github.com/louisbranch/storyloom/internal/platform/otel"
	"github.com/louisbranch/storyloom/internal/storage/sqlite"
	"github.com/louisbranch/storyloom/internal/telemetry"
)

const otelShutdownTimeout = 5 * time.Second

type serviceConfig struct {
	DBPath      string `env:"STORYLOOM_DB_PATH" envDefault:"storyloom.db"`
	JudgeScript string `env:"STORYLOOM_JUDGE_SCRIPT"`
}

func main() {
	log.SetPrefix("[director] ")

	var cfg serviceConfig
	if err := config.ParseEnv(&cfg); err != nil {
		config.Exitf("parse config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := otel.Setup(ctx, "director")
	if err != nil {
		config.Exitf("setup tracing: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), otelShutdownTimeout)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown tracing: %v", err)
		}
	}()

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		config.Exitf("open store: %v", err)
	}
	defer store.Close()

	var nlJudge judge.Judge
	if cfg.JudgeScript != "" {
		script, err := os.ReadFile(cfg.JudgeScript)
		if err != nil {
			config.Exitf("read judge script: %v", err)
		}
		nlJudge, err = luajudge.New(string(script))
		if err != nil {
			config.Exitf("load judge script: %v", err)
		}
	}

	service := mcp.NewService(store, telemetry.NewEmitter(store), nlJudge)
	server := mcp.New(service)

	log.Printf("serving director MCP on stdio (db %s)", cfg.DBPath)
	if err := server.Run(ctx); err != nil {
		config.Exitf("serve MCP: %v", err)
	}
}
