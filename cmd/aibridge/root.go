package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"aibridge/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "aibridge",
	Short: "AI generation bridge",
	Long:  `aibridge - turns stored model/assistant configurations into calls against OpenAI-compatible text and image APIs.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/config.yaml)")
}

func initConfig() {
	config.Init(cfgFile)
}
