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
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/valpere/perevod/internal/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the translation HTTP API",
	Long: `Start the HTTP API used by the Telegram WebApp.

  POST /api/translate  {"text": "...", "target": "ru", "source": "text"}
  GET  /health

Requests must carry the X-Tg-Initdata header unless http.require_init_data
is false. When telegram.allowed_usernames is set, only those users pass.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		router, db, err := buildRouter(cfg)
		if err != nil {
			return err
		}
		defer router.Close()
		if db != nil {
			defer db.Close()
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		server := httpapi.NewServer(router, logger, httpapi.Options{
			Host:             cfg.HTTP.Host,
			Port:             cfg.HTTP.Port,
			RequireInitData:  cfg.HTTP.RequireInitData,
			AllowedUsernames: cfg.Telegram.AllowedUsernames,
		})
		return server.Start(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "Listen host")
	serveCmd.Flags().Int("port", 8080, "Listen port")
	serveCmd.Flags().Bool("require-init-data", true, "Require the X-Tg-Initdata header")

	viper.BindPFlag("http.host", serveCmd.Flags().Lookup("host"))
	viper.BindPFlag("http.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("http.require_init_data", serveCmd.Flags().Lookup("require-init-data"))
}
