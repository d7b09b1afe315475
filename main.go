// Command drivesim starts the vehicle driving simulator server.
//
// It supports two modes:
//  1. "server" (default) – runs the HTTP server exposing REST API, WebSocket, and an /mcp HTTP endpoint
//  2. "stdio-mcp" – runs an MCP stdio server and spins up an internal HTTP API if none is available
//
// Flags control host/port, course and session directories, the telemetry
// database, log level and optional ngrok tunneling for easy external access
// during development. Every flag can also be set from the environment or a
// .env file.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"

	"github.com/wricardo/mcp-training/drivesim/api"
	"github.com/wricardo/mcp-training/drivesim/game/config"
	"github.com/wricardo/mcp-training/drivesim/game/recorder"
	"github.com/wricardo/mcp-training/drivesim/game/service"
	"github.com/wricardo/mcp-training/drivesim/game/session"
	"github.com/wricardo/mcp-training/drivesim/logging"
	"github.com/wricardo/mcp-training/drivesim/transport/mcp"
	"github.com/wricardo/mcp-training/drivesim/transport/websocket"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Drive Simulator Server"
)

// options holds the resolved command line settings
type options struct {
	Host        string
	Port        int
	ConfigDir   string
	SessionsDir string
	Telemetry   bool
	TelemetryDB string
	Retain      int
	LogLevel    string
	PrettyLogs  bool
	SessionTTL  time.Duration
	SaveEvery   time.Duration
	Ngrok       bool
	NgrokAuth   string
	NgrokDomain string
}

func (o options) addr() string {
	return fmt.Sprintf("%s:%d", o.Host, o.Port)
}

func flags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "port", Value: 8080, Usage: "HTTP server port", Sources: cli.EnvVars("PORT")},
		&cli.StringFlag{Name: "host", Value: "localhost", Usage: "HTTP server host", Sources: cli.EnvVars("HOST")},
		&cli.StringFlag{Name: "config-dir", Value: "configs", Usage: "Directory containing course profiles", Sources: cli.EnvVars("CONFIG_DIR")},
		&cli.StringFlag{Name: "sessions-dir", Value: "sessions", Usage: "Directory for persisted sessions", Sources: cli.EnvVars("SESSIONS_DIR")},
		&cli.BoolFlag{Name: "telemetry", Value: true, Usage: "Record every tick for the telemetry endpoint", Sources: cli.EnvVars("TELEMETRY")},
		&cli.StringFlag{Name: "telemetry-db", Usage: "SQLite file for telemetry (in memory when empty)", Sources: cli.EnvVars("TELEMETRY_DB")},
		&cli.IntFlag{Name: "telemetry-retain", Value: recorder.DefaultRetention, Usage: "Samples and tire marks kept per session (0 keeps all)", Sources: cli.EnvVars("TELEMETRY_RETAIN")},
		&cli.StringFlag{Name: "log-level", Value: "info", Usage: "trace, debug, info, warn, error or off", Sources: cli.EnvVars("LOG_LEVEL")},
		&cli.BoolFlag{Name: "pretty", Usage: "Human-readable console logs instead of JSON", Sources: cli.EnvVars("LOG_PRETTY")},
		&cli.DurationFlag{Name: "session-ttl", Value: 24 * time.Hour, Usage: "Drop sessions idle for longer than this", Sources: cli.EnvVars("SESSION_TTL")},
		&cli.DurationFlag{Name: "save-every", Value: 30 * time.Second, Usage: "How often sessions are written to disk", Sources: cli.EnvVars("SAVE_EVERY")},
		&cli.BoolFlag{Name: "ngrok", Usage: "Enable ngrok tunnel", Sources: cli.EnvVars("NGROK_ENABLED")},
		&cli.StringFlag{Name: "ngrok-auth", Usage: "Ngrok auth token", Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN")},
		&cli.StringFlag{Name: "ngrok-domain", Usage: "Custom ngrok domain (optional)", Sources: cli.EnvVars("NGROK_DOMAIN")},
	}
}

func optionsFrom(cmd *cli.Command) options {
	return options{
		Host:        cmd.String("host"),
		Port:        cmd.Int("port"),
		ConfigDir:   cmd.String("config-dir"),
		SessionsDir: cmd.String("sessions-dir"),
		Telemetry:   cmd.Bool("telemetry"),
		TelemetryDB: cmd.String("telemetry-db"),
		Retain:      cmd.Int("telemetry-retain"),
		LogLevel:    cmd.String("log-level"),
		PrettyLogs:  cmd.Bool("pretty"),
		SessionTTL:  cmd.Duration("session-ttl"),
		SaveEvery:   cmd.Duration("save-every"),
		Ngrok:       cmd.Bool("ngrok"),
		NgrokAuth:   cmd.String("ngrok-auth"),
		NgrokDomain: cmd.String("ngrok-domain"),
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:    "drivesim",
		Usage:   AppName,
		Version: Version,
		Flags:   flags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return run(ctx, cmd, runHTTPServer)
		},
		Commands: []*cli.Command{
			{
				Name:    "server",
				Aliases: []string{"http"},
				Usage:   "Run HTTP server with API, WebSocket, and MCP endpoint (default)",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return run(ctx, cmd, runHTTPServer)
				},
			},
			{
				Name:    "stdio-mcp",
				Aliases: []string{"mcp-stdio", "mcp"},
				Usage:   "Run MCP stdio server with internal HTTP server",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return run(ctx, cmd, runStdioMCPWithInternalServer)
				},
			},
		},
	}
}

// main loads .env, parses flags, initializes services, and starts the selected mode.
func main() {
	// Load .env file if it exists; flags read their env sources afterwards
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
	}

	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", AppName, err)
		os.Exit(1)
	}
}

type modeFunc func(ctx context.Context, opts options, svc *services, log zerolog.Logger) error

func run(ctx context.Context, cmd *cli.Command, mode modeFunc) error {
	opts := optionsFrom(cmd)

	// Logs always go to stderr so stdio MCP keeps stdout to itself
	log := logging.New(os.Stderr, opts.LogLevel, opts.PrettyLogs)
	log.Info().Str("version", Version).Str("mode", cmd.Name).Msgf("Starting %s", AppName)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := initializeServices(opts, log)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer svc.Close()

	go svc.background(ctx, opts)

	return mode(ctx, opts, svc, log)
}

// services bundles the drive service with the stores behind it
type services struct {
	drive    service.DriveService
	sessions *session.Manager
	persist  *session.FilePersistence
	recorder *recorder.Recorder
	log      zerolog.Logger
}

// initializeServices wires course/session managers, the telemetry recorder and
// the drive service.
func initializeServices(opts options, log zerolog.Logger) (*services, error) {
	// Create config manager first (needed for persistence)
	configManager, err := config.NewManager(opts.ConfigDir, config.WithLogger(log.With().Str("component", "config").Logger()))
	if err != nil {
		return nil, fmt.Errorf("failed to create config manager: %w", err)
	}

	persistence, err := session.NewFilePersistence(opts.SessionsDir, configManager)
	if err != nil {
		return nil, fmt.Errorf("failed to create session persistence: %w", err)
	}

	sessionManager := session.NewManagerWithPersistence(persistence, log.With().Str("component", "sessions").Logger())
	if err := sessionManager.LoadPersistedSessions(); err != nil {
		log.Warn().Err(err).Msg("Failed to load persisted sessions")
	}

	svc := &services{
		sessions: sessionManager,
		persist:  persistence,
		log:      log,
	}

	serviceOpts := []service.Option{service.WithLogger(log.With().Str("component", "drive").Logger())}
	if opts.Telemetry {
		rec, err := recorder.NewRecorder(opts.TelemetryDB, log.With().Str("component", "recorder").Logger())
		if err != nil {
			return nil, fmt.Errorf("failed to open telemetry store: %w", err)
		}
		rec.Retain = opts.Retain
		svc.recorder = rec
		serviceOpts = append(serviceOpts, service.WithRecorder(rec))
	}

	svc.drive = service.NewDriveService(sessionManager, configManager, serviceOpts...)
	return svc, nil
}

// Close saves every session and closes the telemetry store
func (s *services) Close() {
	if err := s.sessions.SaveAllSessions(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to save sessions on shutdown")
	}
	if s.recorder != nil {
		if err := s.recorder.Close(); err != nil {
			s.log.Warn().Err(err).Msg("Failed to close telemetry store")
		}
	}
}

// background runs the periodic session maintenance until ctx is done: expired
// sessions are dropped, sessions are saved, and sessions whose files were
// deleted are pruned from memory.
func (s *services) background(ctx context.Context, opts options) {
	saveEvery := opts.SaveEvery
	if saveEvery <= 0 {
		saveEvery = 30 * time.Second
	}

	cleanup := time.NewTicker(time.Hour)
	defer cleanup.Stop()
	save := time.NewTicker(saveEvery)
	defer save.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cleanup.C:
			if removed := s.sessions.CleanupExpiredSessions(opts.SessionTTL); removed > 0 {
				s.log.Info().Int("removed", removed).Msg("Cleaned up expired sessions")
			}
		case <-save.C:
			if err := s.sessions.SaveAllSessions(); err != nil {
				s.log.Warn().Err(err).Msg("Periodic session save failed")
			}
			s.syncFilesystem()
		}
	}
}

// syncFilesystem removes sessions from memory, along with their telemetry,
// when their files were deleted
func (s *services) syncFilesystem() {
	pruned := 0
	for _, sess := range s.sessions.List() {
		if s.persist.Exists(sess.ID) {
			continue
		}
		if err := s.sessions.DeleteFromMemory(sess.ID); err == nil {
			pruned++
			s.log.Info().Str("session", sess.ID).Msg("Pruned session from memory (file deleted)")
			if s.recorder != nil {
				if err := s.recorder.Forget(sess.ID); err != nil {
					s.log.Warn().Err(err).Str("session", sess.ID).Msg("Failed to drop telemetry")
				}
			}
		}
	}
	if pruned > 0 {
		s.log.Info().Int("pruned", pruned).Msg("Filesystem sync pruned orphaned sessions")
	}
}

// mcpHandler serves MCP JSON-RPC messages over plain HTTP POST
func mcpHandler(client *mcp.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := client.GetMCPServer().HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	}
}

// newRouter mounts the API at the root and the MCP proxy at /mcp
func newRouter(apiServer http.Handler, mcpClient *mcp.Client) *http.ServeMux {
	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", apiServer)
	mainRouter.HandleFunc("/mcp", mcpHandler(mcpClient))
	return mainRouter
}

// runHTTPServer starts the HTTP server with REST API, WebSocket hub, and an /mcp proxy endpoint.
// If ngrok is enabled, it also provisions a public tunnel.
func runHTTPServer(ctx context.Context, opts options, svc *services, log zerolog.Logger) error {
	hub := websocket.NewHub(log.With().Str("component", "websocket").Logger())
	go hub.Run(ctx)

	apiServer := api.NewServer(svc.drive, hub, log.With().Str("component", "api").Logger())

	addr := opts.addr()
	mcpClient := mcp.NewClient(fmt.Sprintf("http://%s", addr))
	mainRouter := newRouter(apiServer, mcpClient)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mainRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var wg sync.WaitGroup
	serveErr := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()

		log.Info().
			Str("addr", addr).
			Str("api", fmt.Sprintf("http://%s/api", addr)).
			Str("websocket", fmt.Sprintf("ws://%s/ws?session=<session_id>", addr)).
			Str("mcp", fmt.Sprintf("http://%s/mcp", addr)).
			Msg("HTTP server listening")

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	if opts.Ngrok {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveNgrok(ctx, opts, mainRouter, log)
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down...")
	case runErr = <-serveErr:
		log.Error().Err(runErr).Msg("HTTP server failed")
	}

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown error")
	}

	wg.Wait()
	log.Info().Msg("Server stopped")
	return runErr
}

// serveNgrok exposes handler through an ngrok tunnel until ctx is done
func serveNgrok(ctx context.Context, opts options, handler http.Handler, log zerolog.Logger) {
	if opts.NgrokAuth == "" {
		log.Warn().Msg("Ngrok enabled but no auth token provided (use --ngrok-auth, NGROK_AUTHTOKEN, or NGROK_AUTH_TOKEN env var)")
		return
	}

	log.Info().Msg("Starting ngrok tunnel...")

	var tunnel ngrokConfig.Tunnel
	if opts.NgrokDomain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(opts.NgrokDomain))
		log.Info().Str("domain", opts.NgrokDomain).Msg("Using custom ngrok domain")
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(opts.NgrokAuth))
	if err != nil {
		log.Error().Err(err).Msg("Failed to start ngrok tunnel")
		return
	}

	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close ngrok tunnel")
		}
	}()

	ngrokURL := tun.URL()
	log.Info().
		Str("url", ngrokURL).
		Str("api", ngrokURL+"/api").
		Str("websocket", ngrokURL+"/ws?session=<session_id>").
		Str("mcp", ngrokURL+"/mcp").
		Msg("Ngrok tunnel established")

	if err := http.Serve(tun, handler); err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
		log.Warn().Err(err).Msg("Ngrok server error")
	}
	log.Info().Msg("Ngrok tunnel closed")
}

// externalAPIAvailable reports whether a simulator API already answers at baseURL
func externalAPIAvailable(baseURL string) bool {
	testClient := &http.Client{Timeout: 2 * time.Second}
	resp, err := testClient.Get(baseURL + "/api/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}

// runStdioMCPWithInternalServer runs an MCP stdio server.
// It tries to reuse an external API at the configured address; if unavailable,
// it starts an internal HTTP API bound to a random loopback port and targets that.
func runStdioMCPWithInternalServer(ctx context.Context, opts options, svc *services, log zerolog.Logger) error {
	baseURL := fmt.Sprintf("http://%s", opts.addr())
	log.Info().Str("url", baseURL).Msg("Checking for external API server")

	if externalAPIAvailable(baseURL) {
		log.Info().Str("url", baseURL).Msg("External API server found, using it for MCP")
	} else {
		log.Info().Msg("No external API server found, starting internal HTTP server")

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to get available port: %w", err)
		}
		internalAddr := listener.Addr().String()

		hub := websocket.NewHub(log.With().Str("component", "websocket").Logger())
		go hub.Run(ctx)

		httpServer := &http.Server{
			Handler: api.NewServer(svc.drive, hub, log.With().Str("component", "api").Logger()),
		}
		go func() {
			if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Internal HTTP server error")
			}
		}()
		defer httpServer.Close()

		baseURL = fmt.Sprintf("http://%s", internalAddr)
		log.Info().Str("addr", internalAddr).Msg("Internal HTTP server started for MCP stdio")
	}

	mcpClient := mcp.NewClient(baseURL)
	log.Info().Str("api", baseURL).Msg("MCP stdio server ready")

	if err := server.ServeStdio(mcpClient.GetMCPServer()); err != nil {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}
