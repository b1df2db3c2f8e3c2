package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/voxmate/voxmate/internal/profile"
	"github.com/voxmate/voxmate/plugin/llm"
	"github.com/voxmate/voxmate/server"
	"github.com/voxmate/voxmate/store"
	"github.com/voxmate/voxmate/store/db"
)

const (
	greetingBanner = `voxmate - practice real conversations out loud`
)

var rootCmd = &cobra.Command{
	Use:   "voxmate",
	Short: "A conversational session engine for spoken language practice",
	Run: func(_ *cobra.Command, _ []string) {
		instanceProfile := &profile.Profile{
			Mode:    viper.GetString("mode"),
			Addr:    viper.GetString("addr"),
			Port:    viper.GetInt("port"),
			Data:    viper.GetString("data"),
			Driver:  viper.GetString("driver"),
			DSN:     viper.GetString("dsn"),
			Version: "0.1.0",
		}
		instanceProfile.FromEnv()

		if instanceProfile.DSN == "" {
			instanceProfile.DSN = filepath.Join(instanceProfile.Data, fmt.Sprintf("voxmate_%s.db", instanceProfile.Mode))
		}
		if err := instanceProfile.Validate(); err != nil {
			slog.Error("invalid configuration", slog.Any("error", err))
			os.Exit(1)
		}

		setupLogger(instanceProfile)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		dbDriver, err := db.NewDBDriver(instanceProfile)
		if err != nil {
			slog.Error("failed to create db driver", slog.Any("error", err))
			os.Exit(1)
		}

		storeInstance := store.New(dbDriver, instanceProfile)
		if err := storeInstance.Migrate(ctx); err != nil {
			slog.Error("failed to migrate database", slog.Any("error", err))
			os.Exit(1)
		}
		if err := seedScenarios(ctx, storeInstance); err != nil {
			slog.Error("failed to seed scenarios", slog.Any("error", err))
			os.Exit(1)
		}

		var generator llm.Generator
		if instanceProfile.IsLLMEnabled() {
			generator, _, err = llm.NewGeneratorFromProfile(instanceProfile)
			if err != nil {
				slog.Error("failed to create generator", slog.Any("error", err))
				os.Exit(1)
			}
		} else {
			slog.Warn("no generation backend configured, sessions will run scripted only")
		}

		s := server.NewServer(instanceProfile, storeInstance, generator)

		errCh := make(chan error, 1)
		go func() {
			errCh <- s.Start()
		}()

		fmt.Println(greetingBanner)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case err := <-errCh:
			if err != nil {
				slog.Error("server failed", slog.Any("error", err))
				os.Exit(1)
			}
		case sig := <-quit:
			slog.Info("shutting down", slog.String("signal", sig.String()))
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		s.Shutdown(shutdownCtx)
	},
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("addr", "")
	viper.SetDefault("port", 8081)
	viper.SetDefault("data", ".")
	viper.SetDefault("driver", "sqlite")

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 8081, "port of server")
	rootCmd.PersistentFlags().String("data", ".", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver")
	rootCmd.PersistentFlags().String("dsn", "", "database source name")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		panic(err)
	}
	viper.SetEnvPrefix("voxmate")
	viper.AutomaticEnv()
}

func setupLogger(p *profile.Profile) {
	var handler slog.Handler
	if p.IsDev() {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	slog.SetDefault(slog.New(handler))
}

// seedScenarios installs the starter scenarios on first run.
func seedScenarios(ctx context.Context, st *store.Store) error {
	existing, err := st.ListScenarios(ctx, &store.FindScenario{})
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	type seed struct {
		uid          string
		title        string
		systemPrompt string
		steps        []store.ScriptStepPayload
	}
	seeds := []seed{
		{
			uid:          "cafe-order",
			title:        "Ordering at a cafe",
			systemPrompt: "You are a friendly waiter at a small cafe. Keep replies short and offer the learner simple choices. After your message, add a line starting with SUGGESTIONS: followed by a JSON array of two or three short replies the learner could say.",
			steps: []store.ScriptStepPayload{
				{NPCText: "Welcome! What can I get you today?", ExpectedReplies: []string{"I would like the pasta", "Can I have a coffee"}},
				{NPCText: "Good choice. Anything to drink?", ExpectedReplies: []string{"Just water please", "A glass of juice please"}},
				{NPCText: "Coming right up. Enjoy your meal!", ExpectedReplies: []string{"Thank you very much"}},
			},
		},
		{
			uid:          "hotel-checkin",
			title:        "Checking into a hotel",
			systemPrompt: "You are a polite hotel receptionist. Keep replies short and guide the learner through check-in. After your message, add a line starting with SUGGESTIONS: followed by a JSON array of two or three short replies the learner could say.",
			steps: []store.ScriptStepPayload{
				{NPCText: "Good evening! Do you have a reservation?", ExpectedReplies: []string{"Yes I have a reservation", "I booked a room online"}},
				{NPCText: "May I see your passport, please?", ExpectedReplies: []string{"Here is my passport", "Here you go"}},
				{NPCText: "You are all set. Your room is 304, enjoy your stay!", ExpectedReplies: []string{"Thank you very much"}},
			},
		},
	}

	for _, s := range seeds {
		script, err := store.MarshalScript(s.steps)
		if err != nil {
			return err
		}
		if _, err := st.CreateScenario(ctx, &store.Scenario{
			UID:          s.uid,
			Title:        s.title,
			SystemPrompt: s.systemPrompt,
			Script:       script,
		}); err != nil {
			return err
		}
	}
	slog.Info("seeded starter scenarios", slog.Int("count", len(seeds)))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
