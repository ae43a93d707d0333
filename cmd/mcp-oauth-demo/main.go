// Command mcp-oauth-demo runs a standalone instance of the OAuth handler
// in front of a stub MCP endpoint. It exists for manual testing with real
// MCP clients; in production the handler is embedded into the host
// application instead.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	oauth "github.com/hauptsacheNet/typo3-mcp-server-sub004"
	"github.com/hauptsacheNet/typo3-mcp-server-sub004/host"
	"github.com/hauptsacheNet/typo3-mcp-server-sub004/security"
	"github.com/hauptsacheNet/typo3-mcp-server-sub004/storage"
	"github.com/hauptsacheNet/typo3-mcp-server-sub004/storage/valkey"
)

var (
	listenAddr     string
	issuer         string
	loginURL       string
	resource       string
	sealKey        string
	allowedOrigins []string
	scopes         []string
	userID         string
	valkeyAddr     string
	valkeyPassword string
	valkeyDB       int
	rps            float64
	burst          int
	enableOtel     bool
	verbose        bool
)

var rootCmd = &cobra.Command{
	Use:   "mcp-oauth-demo",
	Short: "Run a demo OAuth server gating a stub MCP endpoint",
	Long: `mcp-oauth-demo starts an HTTP server that mounts the OAuth
authorization endpoints in front of a stub MCP endpoint.

The demo simulates an always-logged-in host session, so the authorization
flow completes without a real login form. Point an MCP client at
<issuer>/mcp and it will discover the metadata, register itself, and run
the authorization code flow against this process.

With --valkey the demo uses a shared Valkey store instead of in-memory
storage, which is how multi-instance deployments run.`,
	RunE:          runServe,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.Flags().StringVar(&listenAddr, "listen", ":8080", "address to listen on")
	rootCmd.Flags().StringVar(&issuer, "issuer", "http://localhost:8080", "public base URL of this server")
	rootCmd.Flags().StringVar(&loginURL, "login-url", "", "host login form URL (defaults to <issuer>/login)")
	rootCmd.Flags().StringVar(&resource, "resource", "", "protected MCP endpoint URL (defaults to <issuer>/mcp)")
	rootCmd.Flags().StringVar(&sealKey, "seal-key", "", "base64 32-byte key for the continuation cookie (generated when empty)")
	rootCmd.Flags().StringSliceVar(&allowedOrigins, "origin", nil, "allowed CORS origin (repeatable)")
	rootCmd.Flags().StringSliceVar(&scopes, "scope", []string{"mcp"}, "supported scope (repeatable)")
	rootCmd.Flags().StringVar(&userID, "user", "demo-user", "user the simulated host session is logged in as")
	rootCmd.Flags().StringVar(&valkeyAddr, "valkey", "", "Valkey address for shared storage (in-memory when empty)")
	rootCmd.Flags().StringVar(&valkeyPassword, "valkey-password", "", "Valkey password")
	rootCmd.Flags().IntVar(&valkeyDB, "valkey-db", 0, "Valkey database number")
	rootCmd.Flags().Float64Var(&rps, "rps", 10, "per-IP rate limit for token and registration endpoints (0 disables)")
	rootCmd.Flags().IntVar(&burst, "burst", 20, "rate limit burst")
	rootCmd.Flags().BoolVar(&enableOtel, "otel", false, "enable OpenTelemetry instrumentation")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func runServe(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	key, err := resolveSealKey(logger)
	if err != nil {
		return err
	}

	var store storage.Store
	if valkeyAddr != "" {
		vs, err := valkey.New(valkey.Config{
			Address:  valkeyAddr,
			Password: valkeyPassword,
			DB:       valkeyDB,
			Logger:   logger,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to valkey: %w", err)
		}
		defer vs.Stop()
		store = vs
	}

	session := &host.StaticSession{UserID: userID, LoggedIn: true}

	handler, err := oauth.New(oauth.Config{
		Issuer:                issuer,
		Resource:              resource,
		LoginURL:              loginURL,
		SealKey:               key,
		Store:                 store,
		AllowedOrigins:        allowedOrigins,
		SupportedScopes:       scopes,
		RequestsPerSecond:     rps,
		Burst:                 burst,
		UserRequestsPerSecond: rps,
		UserBurst:             burst,
		EnableInstrumentation: enableOtel,
		Logger:                logger,
	}, session)
	if err != nil {
		return fmt.Errorf("failed to create oauth handler: %w", err)
	}
	defer handler.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "demo host login form; the demo session is always logged in")
	})
	mux.Handle("/mcp", handler.RequireToken(http.HandlerFunc(serveMCPStub)))

	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           handler.Middleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Demo OAuth server listening", "addr", listenAddr, "issuer", issuer)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
	}
	return nil
}

// serveMCPStub stands in for the real MCP endpoint behind the token gate.
func serveMCPStub(w http.ResponseWriter, r *http.Request) {
	token, ok := oauth.TokenFromContext(r.Context())
	if !ok {
		http.Error(w, "no token in context", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"jsonrpc":"2.0","result":{"user":%q,"scope":%q}}`+"\n", token.UserID, token.Scope)
}

func resolveSealKey(logger *slog.Logger) ([]byte, error) {
	if sealKey == "" {
		key, err := security.GenerateSealKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate seal key: %w", err)
		}
		logger.Info("Generated ephemeral seal key; pass --seal-key to persist continuations across restarts",
			"key", security.SealKeyToBase64(key))
		return key, nil
	}
	key, err := security.SealKeyFromBase64(sealKey)
	if err != nil {
		return nil, fmt.Errorf("invalid seal key: %w", err)
	}
	return key, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
