package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract the market predictions made in one video",
	RunE: func(cmd *cobra.Command, _ []string) error {
		title, _ := cmd.Flags().GetString("title")
		url, _ := cmd.Flags().GetString("url")
		if title == "" && url == "" {
			return eris.New("extract: --title or --url is required")
		}

		ctx := cmd.Context()
		env, err := initPipeline(ctx, false, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Extractor.Extract(ctx, title, url)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"claims":          res.Claims,
			"isAnalysisHeavy": res.IsAnalysisHeavy,
			"dropped":         res.Dropped,
		})
	},
}

func init() {
	extractCmd.Flags().String("title", "", "video title")
	extractCmd.Flags().String("url", "", "video URL")
	rootCmd.AddCommand(extractCmd)
}
