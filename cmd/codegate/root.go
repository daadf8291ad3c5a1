package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	flagConfigFile string
	flagPort       int
	flagProxyPort  int
	flagAdminPort  int
	flagHost       string
	flagLogLevel   string
	flagLogFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "codegate",
	Short: "A local, privacy-preserving gateway for AI coding assistants",
	Long: `codegate sits between your AI coding assistant and its LLM
provider. It redacts secrets and PII from outgoing prompts, restores
them in the response, flags known-malicious packages before they're
recommended to you, and lets you point one client at many providers
through workspace-scoped routing rules.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigFile, "config", "", "path to a codegate.yaml config file")
	rootCmd.PersistentFlags().IntVar(&flagPort, "port", 0, "clear-HTTP gateway port (overrides config/env)")
	rootCmd.PersistentFlags().IntVar(&flagProxyPort, "proxy-port", 0, "HTTPS-CONNECT interception port (overrides config/env)")
	rootCmd.PersistentFlags().IntVar(&flagAdminPort, "admin-port", 0, "management API port (overrides config/env)")
	rootCmd.PersistentFlags().StringVar(&flagHost, "host", "", "bind host (overrides config/env)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "error|warning|info|debug")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "text|json")
}

func setupLogger(format, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	var out zerolog.Logger
	if format == "json" {
		out = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}
	switch level {
	case "debug":
		out = out.Level(zerolog.DebugLevel)
	case "warning":
		out = out.Level(zerolog.WarnLevel)
	case "error":
		out = out.Level(zerolog.ErrorLevel)
	default:
		out = out.Level(zerolog.InfoLevel)
	}
	return out
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("codegate exited with an error")
	}
}
