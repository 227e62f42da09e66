/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/valpere/perevod/internal/config"
	"github.com/valpere/perevod/internal/logging"
)

var version = "0.1.0"

var (
	cfgFile string
	envFile string

	cfg    *config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "perevod",
	Short: "Translation router for chat messages",
	Long: `perevod routes short informal texts between a generative translation model
and a dedicated machine-translation API.

The primary provider (OpenAI-compatible chat completions) handles ordinary text.
Explicit content, structured lists and answers that fail the quality gate go to
the secondary provider (DeepL, or Google Cloud Translation).

Use "perevod translate --help" for translation options.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	config.SetDefaults(viper.GetViper())

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is ./perevod.yaml or $HOME/perevod.yaml)")
	pf.StringVar(&envFile, "env", ".env", "dotenv file loaded before reading the environment")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("strictness", "standard", "quality gate strictness: basic, standard or strict")
	pf.String("db", "", "request history database (empty disables history)")
	pf.String("secondary", config.SecondaryDeepL, "secondary provider: deepl or google")

	viper.BindPFlag("log_level", pf.Lookup("log-level"))
	viper.BindPFlag("strictness", pf.Lookup("strictness"))
	viper.BindPFlag("db", pf.Lookup("db"))
	viper.BindPFlag("secondary.provider", pf.Lookup("secondary"))
}

func initConfig() error {
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigType("yaml")
		viper.SetConfigName("perevod")
	}

	if err := config.BindEnv(viper.GetViper()); err != nil {
		return err
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	loaded, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	cfg = loaded

	logger, err = logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return err
	}
	if used := viper.ConfigFileUsed(); used != "" {
		logger.Debug().Str("path", used).Msg("using config file")
	}
	return nil
}
