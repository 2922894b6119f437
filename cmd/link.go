package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/storyline/config"
	"github.com/mohammad-safakhou/storyline/internal/linker"
	"github.com/mohammad-safakhou/storyline/internal/runtime"
	srv "github.com/mohammad-safakhou/storyline/internal/server"
	"github.com/mohammad-safakhou/storyline/internal/store"
)

func linkCMD() *cobra.Command {
	var dateNewer string
	var dateOlder string
	var overwrite bool
	var cfgPath string

	var link = &cobra.Command{
		Use:   "link",
		Short: "Link one day's stories back to a previous day",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			if dateNewer == "" {
				dateNewer = time.Now().UTC().Format("2006-01-02")
			}
			newer, err := time.Parse("2006-01-02", dateNewer)
			if err != nil {
				return fmt.Errorf("invalid --date, expected YYYY-MM-DD: %w", err)
			}
			if dateOlder == "" {
				dateOlder = newer.AddDate(0, 0, -cfg.Linker.LookbackDays).Format("2006-01-02")
			}
			if _, err := time.Parse("2006-01-02", dateOlder); err != nil {
				return fmt.Errorf("invalid --previous, expected YYYY-MM-DD: %w", err)
			}

			oracle, err := linker.NewOpenAIOracle(cfg.Linker.APIKey, cfg.Linker.Model, cfg.Linker.BaseURL)
			if err != nil {
				return err
			}

			logger := log.New(log.Writer(), "[LINK] ", log.LstdFlags)
			metrics := runtime.NewMetrics()
			ctx := context.Background()

			st, err := store.NewWithDSN(ctx, cfg.Storage.Postgres.DSN())
			if err != nil {
				return err
			}
			defer st.DB.Close()

			lk := linker.New(st, oracle, logger, metrics)
			_, err = srv.RunLinkPass(ctx, st, lk, metrics, logger, dateOlder, dateNewer, cfg.Linker.TopN, cfg.General.EmbeddingModel, overwrite)
			return err
		},
	}
	link.Flags().StringVar(&dateNewer, "date", "", "newer period date YYYY-MM-DD (default today UTC)")
	link.Flags().StringVar(&dateOlder, "previous", "", "older period date YYYY-MM-DD (default date minus lookback)")
	link.Flags().BoolVar(&overwrite, "overwrite", false, "delete the date pair's previous links first")
	link.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return link
}
