package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/sells-group/audit-engine/internal/evidence"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <claim text>",
	Short: "Verify one structured claim against market outcomes",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initPipeline(ctx, false, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Verifier.Verify(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}

		out := map[string]any{"result": res}
		if m, err := evidence.Movement(res.MarketData); err == nil {
			out["movement"] = m
		}
		return printJSON(cmd.OutOrStdout(), out)
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
