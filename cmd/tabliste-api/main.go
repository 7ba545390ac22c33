package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/luthierworks/tabliste/backend/internal/auth"
	"github.com/luthierworks/tabliste/backend/internal/config"
	"github.com/luthierworks/tabliste/backend/internal/counter"
	"github.com/luthierworks/tabliste/backend/internal/database"
	"github.com/luthierworks/tabliste/backend/internal/logging"
	"github.com/luthierworks/tabliste/backend/internal/server"
	"github.com/luthierworks/tabliste/backend/internal/tabs"
	"github.com/luthierworks/tabliste/backend/internal/tokens"
	"github.com/luthierworks/tabliste/backend/internal/transcode"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tabliste-api",
		Short: "Tabliste tablature manager backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", viper.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("data-dir", viper.GetString("data.dir"), "Directory holding tab folders and the sqlite database")
	cmd.PersistentFlags().String("database-path", viper.GetString("database.path"), "SQLite database path (defaults to <data-dir>/config.db)")
	cmd.PersistentFlags().String("log-level", viper.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("ffmpeg-binary", viper.GetString("ffmpeg.binary"), "ffmpeg binary used for audio conversion")
	cmd.PersistentFlags().String("session-signing-secret", "", "Session signing secret shared with the auth service (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "data.dir", "data-dir")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "ffmpeg.binary", "ffmpeg-binary")
	bindFlag(cmd, "session.signing_secret", "session-signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		// An explicitly requested config file must exist; the implicit
		// search is allowed to come up empty.
		if cfgFile != "" {
			return err
		}
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	if err := os.MkdirAll(appConfig.DataDir, 0o755); err != nil {
		return err
	}

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	counterService, err := counter.NewService(db)
	if err != nil {
		return err
	}

	transcoder := transcode.NewFFmpeg(appConfig.FFmpegBinary)
	if err := transcoder.Available(); err != nil {
		logger.Warn("ffmpeg unavailable, flac uploads will fail", zap.Error(err))
	}

	tabStore, err := tabs.NewStore(tabs.StoreConfig{
		RootDir:    appConfig.TabsDir(),
		Counter:    counterService,
		Transcoder: transcoder,
		Logger:     logger,
		Clock:      time.Now,
	})
	if err != nil {
		return err
	}

	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.SessionSigningKey),
		Issuer:        appConfig.SessionIssuer,
		CookieName:    appConfig.SessionCookieName,
	})
	if err != nil {
		return err
	}

	tokenService, err := tokens.NewService(tokens.ServiceConfig{Database: db})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Sessions:   sessionValidator,
		TabStore:   tabStore,
		Tokens:     tokenService,
		Logger:     logger,
		DevOrigins: appConfig.DevOrigins,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
