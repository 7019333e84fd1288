package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/laik/harvest/internal/config"
	"github.com/laik/harvest/pkg/agent"
	"github.com/laik/harvest/pkg/log"
	"github.com/laik/harvest/pkg/metrics"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "harvestd",
	Short: "harvestd - per-node container log harvester",
	Long: `harvestd watches a container runtime's log directory, tails every
container's log file, and forwards lines to an output broker, under
desired state received from a control plane.`,
	Version: Version,
	RunE:    run,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"harvestd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	// Free up "-h" from cobra's automatic --help shorthand so it can be used
	// for --host per the CLI surface below.
	rootCmd.Flags().BoolP("help", "", false, "help for harvestd")

	rootCmd.Flags().StringP("namespace", "n", config.EnvOrDefault("NAMESPACE", ""), "Namespace filter for the watcher")
	rootCmd.Flags().StringP("api-server", "s", config.EnvOrDefault("API_SERVER", ""), "Base URL of control plane")
	rootCmd.Flags().StringP("docker-dir", "d", "", "Root directory of container logs (required)")
	rootCmd.Flags().StringP("host", "h", config.EnvOrDefault("HOSTNAME", ""), "Node identity used by the control-plane client")
	rootCmd.Flags().IntP("buffer-size", "b", config.EnvOrDefaultInt("BUFFER_SIZE", config.DefaultBufferSize), "Broker producer batch capacity")
	_ = rootCmd.MarkFlagRequired("docker-dir")

	cobra.OnInitialize(initLogging)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
	metrics.SetVersion(Version)
}

func run(cmd *cobra.Command, args []string) error {
	namespace, _ := cmd.Flags().GetString("namespace")
	apiServer, _ := cmd.Flags().GetString("api-server")
	dockerDir, _ := cmd.Flags().GetString("docker-dir")
	host, _ := cmd.Flags().GetString("host")
	bufferSize, _ := cmd.Flags().GetInt("buffer-size")

	cfg := config.Config{
		Namespace:  namespace,
		APIServer:  apiServer,
		DockerDir:  dockerDir,
		Host:       host,
		BufferSize: bufferSize,
	}

	a := agent.New(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Logger.Info().Msg("received shutdown signal")
		cancel()
	}()

	return a.Run(ctx)
}
