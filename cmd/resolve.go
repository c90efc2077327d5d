package main

import (
	"strings"

	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <query>",
	Short: "Resolve a creator name, handle or URL to a channel with candidate videos",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initPipeline(ctx, false, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		ch, err := env.Resolver.Resolve(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), ch)
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}
