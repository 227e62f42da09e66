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
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/valpere/perevod/internal/bot"
	"github.com/valpere/perevod/internal/retry"
	"github.com/valpere/perevod/internal/stt"
	"github.com/valpere/perevod/internal/telegram"
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the Telegram bot",
	Long: `Run the Telegram bot with long polling.

Send the bot a text or a voice message and pick a target language from the
keyboard. Voice messages are transcribed first. TELEGRAM_BOT_TOKEN is
required; TG_ALLOWED_USERNAMES restricts who may use the bot.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Telegram.Token == "" {
			return fmt.Errorf("telegram token is missing (set TELEGRAM_BOT_TOKEN)")
		}

		router, db, err := buildRouter(cfg)
		if err != nil {
			return err
		}
		defer router.Close()
		if db != nil {
			defer db.Close()
		}

		var transcriber bot.Transcriber
		if cfg.STT.APIKey != "" {
			transcriber = stt.New(cfg.STT, retry.NewClient(cfg.RetryPolicy(), cfg.HTTPTimeouts()))
		} else {
			logger.Warn().Msg("speech-to-text is not configured; voice messages will be refused")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// getUpdates holds the connection open for the poll timeout.
		pollTimeout := time.Duration(cfg.Telegram.PollTimeout) * time.Second
		tg, err := telegram.New(ctx, cfg.Telegram.Token, cfg.Telegram.BaseURL, &http.Client{Timeout: pollTimeout + 30*time.Second})
		if err != nil {
			return err
		}
		logger.Info().Str("bot", tg.Self.UserName).Msg("telegram bot authorized")

		b := bot.New(tg, router, transcriber, logger, bot.Options{
			AllowedUsernames: cfg.Telegram.AllowedUsernames,
			PollTimeout:      cfg.Telegram.PollTimeout,
		})
		return b.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(botCmd)

	botCmd.Flags().Int("poll-timeout", 30, "getUpdates long-poll timeout in seconds")
	viper.BindPFlag("telegram.poll_timeout", botCmd.Flags().Lookup("poll-timeout"))
}
