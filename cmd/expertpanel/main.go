package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/expertpanel/internal/profile"
	"github.com/hrygo/expertpanel/server"
	"github.com/hrygo/expertpanel/server/eventlog"
	"github.com/hrygo/expertpanel/store"
	"github.com/hrygo/expertpanel/store/archive"
	"github.com/hrygo/expertpanel/store/db"
	redisdb "github.com/hrygo/expertpanel/store/db/redis"
)

const (
	version = "0.1.0"

	greetingBanner = `
expertpanel %s
multi-expert panel conversation server
`
)

var (
	instanceProfile *profile.Profile

	rootCmd = &cobra.Command{
		Use:   "expertpanel",
		Short: "A multi-expert panel conversation server",
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			driver, err := db.NewDriver(ctx, instanceProfile)
			if err != nil {
				return fmt.Errorf("failed to create session store driver: %w", err)
			}

			var archiver store.Archiver = archive.Noop{}
			if instanceProfile.ArchiveDSN != "" {
				sqliteArchiver, err := archive.NewSQLite(instanceProfile.ArchiveDSN)
				if err != nil {
					slog.Warn("archive sink unavailable; transcript tails will be dropped",
						"dsn", instanceProfile.ArchiveDSN, "error", err)
				} else {
					archiver = sqliteArchiver
				}
			}

			storeInstance := store.New(driver, archiver, instanceProfile)

			// Share the session backend's connection for the durable
			// boundary-event tail when redis is configured.
			var durable eventlog.DurableLog
			if redisDriver, ok := driver.(*redisdb.Driver); ok {
				durable = eventlog.NewRedisDurableLog(redisDriver.Client(), instanceProfile.ActiveTTL)
			}
			log := eventlog.New(durable)

			s, err := server.NewServer(ctx, instanceProfile, storeInstance, log)
			if err != nil {
				return fmt.Errorf("failed to create server: %w", err)
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			go func() {
				sig := <-sigCh
				slog.Info("received signal, shutting down", "signal", sig.String())
				s.Shutdown(ctx)
				cancel()
			}()

			printGreetings()
			if err := s.Start(ctx); err != nil {
				if ctx.Err() == nil {
					slog.Error("failed to start server", "error", err)
					cancel()
				}
			}

			<-ctx.Done()
			return nil
		},
	}
)

func init() {
	viper.SetDefault("mode", "demo")
	viper.SetDefault("addr", "")
	viper.SetDefault("port", 8081)

	rootCmd.PersistentFlags().String("mode", "demo", `mode of the server, can be "prod", "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of the server")
	rootCmd.PersistentFlags().Int("port", 8081, "port of the server")
	rootCmd.PersistentFlags().String("data", "", "data directory")

	if err := viper.BindPFlag("mode", rootCmd.PersistentFlags().Lookup("mode")); err != nil {
		panic(err)
	}
	if err := viper.BindPFlag("addr", rootCmd.PersistentFlags().Lookup("addr")); err != nil {
		panic(err)
	}
	if err := viper.BindPFlag("port", rootCmd.PersistentFlags().Lookup("port")); err != nil {
		panic(err)
	}
	if err := viper.BindPFlag("data", rootCmd.PersistentFlags().Lookup("data")); err != nil {
		panic(err)
	}

	viper.SetEnvPrefix("expertpanel")
	viper.AutomaticEnv()
}

func initConfig() error {
	instanceProfile = &profile.Profile{
		Mode:    viper.GetString("mode"),
		Addr:    viper.GetString("addr"),
		Port:    viper.GetInt("port"),
		Data:    viper.GetString("data"),
		Version: version,
	}
	instanceProfile.FromEnv()
	if err := instanceProfile.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level := slog.LevelInfo
	if instanceProfile.IsDev() {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

func printGreetings() {
	fmt.Printf(greetingBanner, instanceProfile.Version)
	storage := "memory"
	if instanceProfile.UseExternalStore() {
		storage = "redis"
	}
	slog.Info("server started",
		"mode", instanceProfile.Mode,
		"addr", instanceProfile.Addr,
		"port", instanceProfile.Port,
		"storage", storage,
		"mock_provider", instanceProfile.UseMockProvider,
	)
}

func main() {
	cobra.OnInitialize(func() {
		if err := initConfig(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
