package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/audit-engine/internal/export"
	"github.com/sells-group/audit-engine/internal/model"
	"github.com/sells-group/audit-engine/internal/registry"
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Inspect and maintain the local audit registry",
	Long:  "Commands for listing audited creators, viewing one record, seeding demo data, and exporting to a spreadsheet.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		return cfg.Validate("registry")
	},
}

// -- registry list --

var registryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known creators as a leaderboard",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		kv, reg, err := initRegistry(ctx)
		if err != nil {
			return err
		}
		defer kv.Close() //nolint:errcheck

		sortFlag, _ := cmd.Flags().GetString("sort")
		sort, err := registry.ParseLeaderboardSort(sortFlag)
		if err != nil {
			return err
		}
		rows, err := reg.Leaderboard(ctx, sort)
		if err != nil {
			return eris.Wrap(err, "registry list")
		}
		if len(rows) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "Registry is empty.")
			return nil
		}
		return writeLeaderboard(cmd.OutOrStdout(), rows)
	},
}

func writeLeaderboard(w io.Writer, rows []registry.Row) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "HANDLE\tNAME\tCLAIMS\tLAST AUDITED\tSTATUS\tACCURACY")
	for _, r := range rows {
		claims, last, status, acc := "-", "-", "-", "-"
		if r.Summary != nil {
			claims = fmt.Sprint(r.Summary.Count)
			last, status = r.Summary.LastAudited, r.Summary.Status
		}
		if r.Stats != nil {
			acc = fmt.Sprintf("%.0f%%", r.Stats.AvgAccuracy*100)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.Handle, r.Name, claims, last, status, acc)
	}
	return tw.Flush()
}

// -- registry show --

type creatorRecord struct {
	Handle  string               `json:"handle"`
	Summary *model.AuditSummary  `json:"summary,omitempty"`
	Seeded  *model.SeededAudit   `json:"seeded,omitempty"`
	Stats   *model.AccuracyStats `json:"stats,omitempty"`
}

var registryShowCmd = &cobra.Command{
	Use:   "show <handle>",
	Short: "Show the stored record for one creator",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		kv, reg, err := initRegistry(ctx)
		if err != nil {
			return err
		}
		defer kv.Close() //nolint:errcheck

		rec := creatorRecord{Handle: model.AtHandle(args[0])}
		if rec.Summary, err = reg.AuditSummary(ctx, args[0]); err != nil {
			return err
		}
		if rec.Seeded, err = reg.SeededAudit(ctx, args[0]); err != nil {
			return err
		}
		if rec.Summary == nil && rec.Seeded == nil {
			return eris.Errorf("registry: no record for %s", rec.Handle)
		}
		if rec.Seeded != nil {
			stats := model.ComputeAccuracy(rec.Seeded.Claims)
			rec.Stats = &stats
		}
		return printJSON(cmd.OutOrStdout(), rec)
	},
}

// -- registry seed --

var registrySeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load demo records into the registry",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		kv, reg, err := initRegistry(ctx)
		if err != nil {
			return err
		}
		defer kv.Close() //nolint:errcheck

		file, _ := cmd.Flags().GetString("file")
		force, _ := cmd.Flags().GetBool("force")

		if file == "" && !force {
			seeded, err := reg.Seed(ctx, time.Now())
			if err != nil {
				return err
			}
			if !seeded {
				fmt.Fprintf(cmd.ErrOrStderr(), "Nothing seeded (policy %q). Use --force to overwrite.\n", cfg.Registry.SeedPolicy)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Registry seeded.")
			return nil
		}

		ds, err := registry.BuiltinSeed()
		if file != "" {
			ds, err = registry.LoadSeedFile(file)
		}
		if err != nil {
			return err
		}
		if err := reg.SeedWith(ctx, ds, time.Now()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d creators.\n", len(ds))
		return nil
	},
}

// -- registry export --

var registryExportCmd = &cobra.Command{
	Use:   "export <path.xlsx>",
	Short: "Export the leaderboard and seeded claims to a spreadsheet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		kv, reg, err := initRegistry(ctx)
		if err != nil {
			return err
		}
		defer kv.Close() //nolint:errcheck

		rows, err := reg.Leaderboard(ctx, registry.SortRecent)
		if err != nil {
			return err
		}
		ds, err := reg.SeededAudits(ctx)
		if err != nil {
			return err
		}
		if err := export.Save(args[0], rows, export.SeededClaims(ds)); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d creators to %s\n", len(rows), args[0])
		return nil
	},
}

func init() {
	registryListCmd.Flags().String("sort", "recent", "sort order: recent, accuracy, claims")
	registrySeedCmd.Flags().String("file", "", "YAML seed file (default: built-in demo records)")
	registrySeedCmd.Flags().Bool("force", false, "overwrite regardless of seed policy")

	registryCmd.AddCommand(registryListCmd, registryShowCmd, registrySeedCmd, registryExportCmd)
	rootCmd.AddCommand(registryCmd)
}
