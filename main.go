package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/antibyte/picobasic/pkg/auth"
	"github.com/antibyte/picobasic/pkg/configuration"
	"github.com/antibyte/picobasic/pkg/console"
	"github.com/antibyte/picobasic/pkg/logger"
	"github.com/antibyte/picobasic/pkg/program"
	"github.com/antibyte/picobasic/pkg/runner"
	"github.com/antibyte/picobasic/pkg/shell"
	"github.com/antibyte/picobasic/pkg/storage"
	"github.com/antibyte/picobasic/pkg/terminal"
	"github.com/antibyte/picobasic/pkg/tinybasic"
	tlsmanager "github.com/antibyte/picobasic/pkg/tls"
	"github.com/antibyte/picobasic/pkg/virtualfs"
)

func main() {
	configPath := flag.String("config", "settings.cfg", "path of the configuration file")
	hashPassword := flag.String("hash-password", "", "print the bcrypt hash of a console password and exit")
	flag.Parse()

	if *hashPassword != "" {
		hash, err := auth.HashPassword(*hashPassword)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error hashing password: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	// Configuration comes first, the logger reads its settings from it.
	if err := configuration.Initialize(*configPath); err != nil {
		fmt.Printf("Error initializing configuration: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Initialize(); err != nil {
		fmt.Printf("Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()
	logger.ConfigInfo("System started - Configuration loaded from: %s", *configPath)

	fsys, closeStorage, err := openStorage()
	if err != nil {
		logger.Fatal(logger.AreaStorage, "Storage initialization failed: %v", err)
	}
	defer closeStorage()

	resolver := storage.NewResolver(fsys, storage.OptionsFromConfig())
	opts := runner.OptionsFromConfig()
	maxLines := configuration.GetInt("Program", "max_lines", program.DefaultCapacity)

	switch mode := configuration.GetString("Console", "mode", "local"); mode {
	case "local":
		runLocal(resolver, maxLines, opts)
	case "websocket":
		runServer(resolver, maxLines, opts)
	default:
		logger.Fatal(logger.AreaConfig, "Unknown console mode %q (use local or websocket)", mode)
	}
}

// openStorage returns the SD card selected by [Storage] backend and a func
// releasing it.
func openStorage() (storage.FileSystem, func(), error) {
	switch backend := configuration.GetString("Storage", "backend", "host"); backend {
	case "host":
		root := configuration.GetString("Storage", "root", "sdcard")
		fsys, err := storage.NewHostFS(root)
		if err != nil {
			return nil, nil, err
		}
		logger.StorageInfo("Host card mounted at %s", root)
		return fsys, func() {}, nil
	case "sqlite":
		db, err := virtualfs.InitDB(configuration.GetString("Storage", "database", "picobasic.db"))
		if err != nil {
			return nil, nil, err
		}
		if err := virtualfs.CreateTables(db); err != nil {
			db.Close()
			return nil, nil, err
		}
		volume, err := virtualfs.ResolveVolume(db, configuration.GetString("Storage", "volume", ""))
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		vfs, err := virtualfs.New(db, volume, configuration.GetInt("Storage", "max_file_size_kb", 256)*1024)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.StorageInfo("Virtual card %s mounted", vfs.Label())
		return vfs, func() { db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

func runLocal(resolver *storage.Resolver, maxLines int, opts runner.Options) {
	token := &runner.CancelToken{}
	poller := runner.NewSignalPoller(token)
	defer poller.Stop()

	supervisor := runner.NewSupervisor(tinybasic.New(os.Stdout), poller, token, opts)
	sh := shell.New(program.NewTable(maxLines), resolver, supervisor, os.Stdout)
	if err := console.New(sh, poller, os.Stdout).Run(); err != nil {
		logger.Error(logger.AreaConsole, "Console ended with error: %v", err)
	}
}

func runServer(resolver *storage.Resolver, maxLines int, opts runner.Options) {
	handler := terminal.NewHandler(terminal.NewSessionFactory(resolver, maxLines, opts))

	mux := http.NewServeMux()
	mux.HandleFunc("/api/login", auth.HandleLogin)
	mux.HandleFunc("/api/validate", auth.HandleTokenValidation)
	mux.HandleFunc("/api/logout", auth.HandleLogout)
	mux.HandleFunc("/ws", auth.RequireSession(handler.HandleWebSocket))
	if !auth.Enabled() {
		logger.Warn(logger.AreaAuth, "No console password set, remote consoles are open to everyone")
	}

	tlsManager, err := tlsmanager.NewManager(tlsmanager.ConfigFromSettings())
	if err != nil {
		logger.Fatal(logger.AreaGeneral, "TLS manager initialization failed: %v", err)
	}
	addr := configuration.GetString("Network", "listen", ":8080")
	srv := tlsManager.Server(addr, mux)
	side := tlsManager.HTTPServer(addr)

	errc := make(chan error, 2)
	go func() {
		logger.Info(logger.AreaGeneral, "Console server listening on %s (TLS: %v)", addr, tlsManager.Enabled())
		errc <- tlsManager.ListenAndServe(srv)
	}()
	if side != nil {
		go func() {
			logger.Info(logger.AreaGeneral, "HTTP helper server listening on %s", side.Addr)
			errc <- side.ListenAndServe()
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-stop:
		logger.Info(logger.AreaGeneral, "Received %v, shutting down", sig)
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error(logger.AreaGeneral, "Server failed: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	handler.Close()
	srv.Shutdown(ctx)
	if side != nil {
		side.Shutdown(ctx)
	}
}
