package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/stacklok/codegate/internal/api"
	"github.com/stacklok/codegate/internal/audit"
	"github.com/stacklok/codegate/internal/config"
	"github.com/stacklok/codegate/internal/gatewayhttp"
	"github.com/stacklok/codegate/internal/mux"
	"github.com/stacklok/codegate/internal/packageintel"
	"github.com/stacklok/codegate/internal/packageintel/vectorstore"
	"github.com/stacklok/codegate/internal/piidetect"
	"github.com/stacklok/codegate/internal/provider"
	"github.com/stacklok/codegate/internal/redaction"
	"github.com/stacklok/codegate/internal/signatures"
	"github.com/stacklok/codegate/internal/tlscert"
	"github.com/stacklok/codegate/internal/tlsproxy"
	"github.com/stacklok/codegate/internal/workspace"
	"github.com/stacklok/codegate/pkg/models"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway, interception proxy, and management API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// seedEndpoints creates one provider endpoint per configured provider
// URL, so a fresh install has something to route to before an
// operator adds anything of their own through the management API.
func seedEndpoints(endpoints *provider.Endpoints, cfg *config.Config) {
	kindByName := map[string]models.ProviderKind{
		"openai":     models.ProviderOpenAI,
		"anthropic":  models.ProviderAnthropic,
		"ollama":     models.ProviderOllama,
		"vllm":       models.ProviderVLLM,
		"llamacpp":   models.ProviderLlamaCpp,
		"openrouter": models.ProviderOpenRouter,
		"lm_studio":  models.ProviderLMStudio,
		"copilot":    models.ProviderCopilot,
	}
	for name, baseURL := range cfg.ProviderURLs {
		kind, ok := kindByName[name]
		if !ok {
			continue
		}
		_, _ = endpoints.Create(models.ProviderEndpoint{
			Name:    name,
			Kind:    kind,
			BaseURL: baseURL,
			Auth:    models.AuthNone,
		})
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	cfg, err := config.Load(flagConfigFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log := setupLogger(string(cfg.LogFormat), string(cfg.LogLevel))
	log.Info().Msg("codegate starting")

	if err := os.MkdirAll(cfg.CertsDir, 0o700); err != nil {
		return fmt.Errorf("create certs dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
		return fmt.Errorf("create db dir: %w", err)
	}

	ca, err := tlscert.LoadOrGenerate(filepath.Join(cfg.CertsDir, cfg.CACert), filepath.Join(cfg.CertsDir, cfg.CAKey))
	if err != nil {
		return fmt.Errorf("load or generate CA: %w", err)
	}
	var leafStore tlscert.RedisStore
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			return fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		defer redisClient.Close()
		leafStore = redisClient
		log.Info().Str("addr", cfg.RedisAddr).Msg("leaf certificate cache backed by redis")
	}
	certCache := tlscert.NewCache(ca, leafStore, log)

	auditStore, err := audit.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open audit store: %w", err)
	}
	defer auditStore.Close()

	catalog, err := signatures.LoadDefault()
	if err != nil {
		return fmt.Errorf("load signature catalog: %w", err)
	}
	pii := piidetect.New()
	store, err := redaction.NewSubstitutionStore()
	if err != nil {
		return fmt.Errorf("open substitution store: %w", err)
	}
	vs := vectorstore.New()
	pkgEngine := packageintel.New(vs, nil)

	endpoints := provider.NewEndpoints()
	seedEndpoints(endpoints, cfg)
	router := mux.New(endpoints)
	workspaces := workspace.NewRegistry()
	providers := provider.NewRegistry()
	transport := provider.NewTransport(log)

	gw := gatewayhttp.New(gatewayhttp.Deps{
		Catalog:    catalog,
		PII:        pii,
		Packages:   pkgEngine,
		Router:     router,
		Workspaces: workspaces,
		Providers:  providers,
		Store:      store,
		Audit:      auditStore,
		Transport:  transport,
		Log:        log,
	})

	proxy := &tlsproxy.Server{
		Addr:            fmt.Sprintf("%s:%d", cfg.Host, cfg.ProxyPort),
		Cache:           certCache,
		Dispatcher:      gw,
		Log:             log,
		ShouldIntercept: endpoints.HasHost,
	}

	adminHandlers := &api.Handlers{
		Workspaces: workspaces,
		Endpoints:  endpoints,
		Audit:      auditStore,
		CA:         ca,
		Log:        log,
	}
	adminRouter := api.NewRouter(adminHandlers)

	gatewayServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      gw,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	adminServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.AdminPort),
		Handler:      adminRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 3)

	go func() {
		log.Info().Str("addr", gatewayServer.Addr).Msg("clear-HTTP gateway listening")
		errCh <- ignoreServerClosed(gatewayServer.ListenAndServe())
	}()
	go func() {
		log.Info().Str("addr", proxy.Addr).Msg("HTTPS interception proxy listening")
		errCh <- proxy.ListenAndServe(ctx)
	}()
	go func() {
		log.Info().Str("addr", adminServer.Addr).Msg("management API listening")
		errCh <- ignoreServerClosed(adminServer.ListenAndServe())
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutting down gracefully")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("a listener exited unexpectedly, shutting down")
		}
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	_ = gatewayServer.Shutdown(shutdownCtx)
	_ = adminServer.Shutdown(shutdownCtx)
	_ = proxy.Close()
	return nil
}

func ignoreServerClosed(err error) error {
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
