package main

import (
    "github.com/joho/godotenv"
    "github.com/spf13/cobra"
)

var envFile string

var rootCmd = &cobra.Command{
    Use:   "pdftrio",
    Short: "Classify PDFs as research publications with an ensemble of three models",
    Long: `pdftrio scores a PDF between 0 (not a research publication) and 1 (certainly
one) by combining a local fastText model, a BERT model and a first-page image
model served by TensorFlow Serving.

Configuration is read from the environment; a .env file is loaded first when present.`,
    Version:       Version,
    SilenceUsage:  true,
    SilenceErrors: true,
    PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
        if envFile != "" {
            return godotenv.Load(envFile)
        }
        // a missing default .env is fine
        _ = godotenv.Load()
        return nil
    },
}

func init() {
    rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "load environment from this file (default: ./.env if present)")

    rootCmd.AddCommand(serveCmd, classifyCmd, versionCmd)
}
