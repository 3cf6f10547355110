package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/parleychat/parley/pkg/datastore"
	"github.com/parleychat/parley/pkg/filestore"
	"github.com/parleychat/parley/pkg/logging"
	"github.com/parleychat/parley/pkg/server"
	"github.com/parleychat/parley/pkg/version"
)

func main() {
	cfg := server.DefaultConfig()

	flag.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "TCP bind address")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database file path")
	flag.StringVar(&cfg.FileDir, "files", cfg.FileDir, "Directory for transferred files")
	flag.StringVar(&cfg.RoomsFile, "rooms-file", "", "YAML file defining rooms to create on startup")
	flag.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "HTTP bind address for Prometheus /metrics (empty to disable)")
	flag.BoolVar(&cfg.ExportUsers, "export-users", false, "Export all users as YAML and exit")
	flag.BoolVar(&cfg.ExportBans, "export-bans", false, "Export all room bans as YAML and exit")

	logLevel := flag.String("log-level", "info", "Log level: "+logging.LevelNames())
	logFormat := flag.String("log-format", "text", "Log format: text or json")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Full())
		return
	}

	// Configure structured logging
	if err := logging.Setup(logging.Options{
		Level:  *logLevel,
		Format: *logFormat,
		Output: os.Stdout,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	// Handle export commands (run and exit)
	if cfg.ExportUsers || cfg.ExportBans {
		st, err := datastore.NewProviderFactory(cfg.DBPath)
		if err != nil {
			slog.Error("open database", "err", err)
			os.Exit(1)
		}
		defer func() { _ = st.Close() }()

		if cfg.ExportUsers {
			data, err := server.ExportUsersYAML(st.NonTx())
			if err != nil {
				slog.Error("export users", "err", err)
				os.Exit(1)
			}
			fmt.Print(string(data))
		}
		if cfg.ExportBans {
			data, err := server.ExportBansYAML(st.NonTx())
			if err != nil {
				slog.Error("export bans", "err", err)
				os.Exit(1)
			}
			fmt.Print(string(data))
		}
		return
	}

	st, err := datastore.NewProviderFactory(cfg.DBPath)
	if err != nil {
		slog.Error("open database", "err", err)
		os.Exit(1)
	}

	files, err := filestore.New(cfg.FileDir)
	if err != nil {
		slog.Error("open file storage", "err", err)
		os.Exit(1)
	}

	slog.Info("starting Parley server", "version", version.String())

	srv := server.New(cfg, server.Dependencies{Store: st, Files: files})
	if err := srv.Run(); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}
