package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/crewmind/crewmind/ai/embedding"
	"github.com/crewmind/crewmind/ai/llm"
	"github.com/crewmind/crewmind/ai/orchestrator"
	"github.com/crewmind/crewmind/ai/retrieval"
	"github.com/crewmind/crewmind/ai/skill"
	"github.com/crewmind/crewmind/index"
	"github.com/crewmind/crewmind/internal/profile"
	"github.com/crewmind/crewmind/internal/version"
	"github.com/crewmind/crewmind/plugin/teamchat"
	"github.com/crewmind/crewmind/plugin/teamchat/telegram"
	"github.com/crewmind/crewmind/server"
	"github.com/crewmind/crewmind/store"
	"github.com/crewmind/crewmind/store/db"
	"github.com/crewmind/crewmind/store/hotcache"
)

var rootCmd = &cobra.Command{
	Use:   "crewmind",
	Short: "A conversational assistant for team-messaging workspaces with retrieval-augmented answers.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		// .env is a convenience for direct binary execution; process
		// managers inject the environment themselves.
		if !isRunningAsSystemdService() {
			_ = godotenv.Load()
		}
		return nil
	},
	Run: func(_ *cobra.Command, _ []string) {
		instanceProfile := &profile.Profile{
			Mode:    viper.GetString("mode"),
			Addr:    viper.GetString("addr"),
			Port:    viper.GetInt("port"),
			Version: version.GetCurrentVersion(viper.GetString("mode")),
		}
		instanceProfile.FromEnv()
		if err := instanceProfile.Validate(); err != nil {
			slog.Error("invalid configuration", "error", err)
			os.Exit(1)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		dbDriver, err := db.NewDBDriver(ctx, instanceProfile)
		if err != nil {
			slog.Error("failed to create db driver", "error", err)
			os.Exit(1)
		}

		hot := newHotCache(ctx, instanceProfile)
		storeInstance := store.New(dbDriver, hot)

		registry := skill.NewRegistry(skill.DefaultSkillName)
		skill.RegisterBuiltins(registry)

		engine := newRetrievalEngine(instanceProfile, storeInstance)
		completer := llm.NewService(
			instanceProfile.CompletionEndpoint,
			instanceProfile.CompletionAPIKey,
			instanceProfile.CompletionDeployment,
			float32(instanceProfile.CompletionTemperature),
			instanceProfile.CompletionMaxTokens,
		)
		var sender teamchat.Sender = teamchat.NewClient(instanceProfile.PlatformAPIURL, instanceProfile.PlatformBotToken)
		if instanceProfile.PlatformBotToken == "" && instanceProfile.TelegramBotToken != "" {
			// Alternate delivery channel for deployments without a
			// platform bot token.
			tg, err := telegram.NewSender(instanceProfile.TelegramBotToken)
			if err != nil {
				slog.Warn("telegram channel unavailable", "error", err)
			} else {
				sender = tg
			}
		}

		orch := orchestrator.New(
			registry,
			storeInstance,
			engine,
			completer,
			sender,
			time.Duration(instanceProfile.RequestDeadlineMS)*time.Millisecond,
		)

		gateway := teamchat.NewGateway(instanceProfile.PlatformSigningSecret, instanceProfile.PlatformAppID)
		s := server.NewServer(ctx, instanceProfile, storeInstance, gateway, orch)

		c := make(chan os.Signal, 1)
		signal.Notify(c, terminationSignals...)
		go func() {
			<-c
			slog.Info("shutting down")
			cancel()
		}()

		printGreetings(instanceProfile)
		if err := s.Start(ctx); err != nil {
			slog.Error("server stopped", "error", err)
		}
		if err := storeInstance.Close(); err != nil {
			slog.Warn("failed to close store", "error", err)
		}
	},
}

// newHotCache connects the Redis hot tier when configured, otherwise
// the in-process one.
func newHotCache(ctx context.Context, instanceProfile *profile.Profile) store.HotCache {
	if instanceProfile.HotCacheConn == "" {
		return hotcache.NewMemory()
	}
	redisCache, err := hotcache.NewRedis(ctx, instanceProfile.HotCacheConn)
	if err != nil {
		slog.Error("hot cache unavailable, using in-process tier", "error", err)
		return hotcache.NewMemory()
	}
	return redisCache
}

// newRetrievalEngine picks the hosted index when one is configured and
// the store-backed local index otherwise.
func newRetrievalEngine(instanceProfile *profile.Profile, storeInstance *store.Store) *retrieval.Engine {
	var embedder embedding.Embedder
	if instanceProfile.EmbedAPIKey != "" {
		embedder = embedding.NewService(
			instanceProfile.EmbedEndpoint,
			instanceProfile.EmbedAPIKey,
			instanceProfile.EmbedDeployment,
		)
	}

	var searchIndex index.SearchIndex
	if instanceProfile.IndexEndpoint != "" {
		// The hosted index evaluates filters itself, before top-k.
		searchIndex = index.NewRemote(
			instanceProfile.IndexEndpoint,
			instanceProfile.IndexAPIKey,
			instanceProfile.IndexName,
			instanceProfile.IndexSemanticConfig,
		)
	} else {
		filter, err := index.NewFilter()
		if err != nil {
			slog.Warn("metadata filters disabled", "error", err)
			filter = nil
		}
		searchIndex = index.NewLocal(storeInstance, filter)
	}
	return retrieval.NewEngine(searchIndex, embedder)
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("port", 28090)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 28090, "port of server")

	for _, flag := range []string{"mode", "addr", "port"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("crewmind")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

func printGreetings(instanceProfile *profile.Profile) {
	fmt.Printf("CrewMind %s started successfully!\n", instanceProfile.Version)
	if instanceProfile.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
	}
	fmt.Printf("Mode: %s\n", instanceProfile.Mode)
	if instanceProfile.Addr == "" {
		fmt.Printf("Server running on port %d\n", instanceProfile.Port)
	} else {
		fmt.Printf("Server running on %s:%d\n", instanceProfile.Addr, instanceProfile.Port)
	}
}

// isRunningAsSystemdService detects if the process is running under systemd.
func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("failed to run command", "error", err)
		os.Exit(1)
	}
}
