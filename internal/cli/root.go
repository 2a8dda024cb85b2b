package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time with -ldflags "-X ...cli.Version=...".
var Version = "v0.1.0"

var (
	cfgFile    string
	envFile    string
	verbose    bool
	cmdTimeout time.Duration
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "tactimerge",
	Short: "TactiMerge - evidence-grounded football tactics and match predictions",
	Long: `TactiMerge keeps a corpus of tagged match reports and answers two kinds
of questions from it:

- How did a team play in a given era? Every attribute of the answer cites
  the reports it was derived from.
- How is a fixture likely to go? A Poisson model over evidence-derived
  expected goals, lightly adjusted by qualitative signal.

Reports are ingested from JSON or YAML documents and embedded once; the same
embedding function serves retrieval.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadDotEnv()
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version number of TactiMerge.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "tactimerge %s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.tactimerge/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
	rootCmd.PersistentFlags().DurationVar(&cmdTimeout, "timeout", 2*time.Minute, "overall timeout for one-shot commands")

	// Bind flags to viper
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		// Search for config in home directory
		viper.AddConfigPath(home + "/.tactimerge")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Read in environment variables that match TACTIMERGE_*, e.g.
	// TACTIMERGE_LLM_PROVIDER for llm.provider
	viper.SetEnvPrefix("TACTIMERGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadDotEnv loads envFile without overriding variables already set. A
// missing default file is not an error.
func loadDotEnv() error {
	if envFile == "" {
		return nil
	}
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		if envFile == ".env" {
			return nil
		}
		return fmt.Errorf("env file not found: %s", envFile)
	}
	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("load %s: %w", envFile, err)
	}
	return nil
}

// newLogger builds the process logger. Servers log JSON, one-shot commands
// log text to stderr.
func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	if verbose {
		lvl = slog.LevelDebug
	} else if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}
