package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"aibridge/internal/core/providers"
	"aibridge/internal/pkg/logger"
	"aibridge/internal/server"
	"aibridge/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the aibridge server",
	Long:  `Start the aibridge HTTP server and begin accepting generation requests.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logLevel := viper.GetString("log.level")
		if logLevel == "" {
			logLevel = "info"
		}

		zapLogger, err := logger.New(logLevel)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		defer zapLogger.Sync()
		log := logger.NewLogger(zapLogger)

		dbPath := viper.GetString("db.path")
		if dbPath == "" {
			dbPath = "aibridge.db"
		}
		st, err := store.Open(dbPath)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}

		transport := providers.NewTransport(
			viper.GetString("site.url"),
			viper.GetString("site.title"),
			log,
		)

		client := providers.NewClient(providers.ClientConfig{
			Models:      st,
			Assistants:  st,
			History:     st,
			Generations: st,
			Tokens:      store.NewTokenCounter(),
			Transport:   transport,
			Log:         log,
		})

		port := viper.GetInt("server.port")
		if port == 0 {
			port = 8080
		}
		host := viper.GetString("server.host")
		if host == "" {
			host = "0.0.0.0"
		}

		addr := fmt.Sprintf("%s:%d", host, port)
		srv := server.NewHTTPServer(addr, client, log)
		return srv.Start()
	},
}

func SetupServeCmd() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "Server port")
	serveCmd.Flags().StringP("host", "H", "0.0.0.0", "Server host")

	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
}
