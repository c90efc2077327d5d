package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/audit-engine/internal/model"
	"github.com/sells-group/audit-engine/internal/pipeline"
	"github.com/sells-group/audit-engine/internal/registry"
	"github.com/sells-group/audit-engine/internal/session"
)

// auditStages are the collaborators of a batch audit. Registry may be nil.
type auditStages struct {
	Resolver  session.Resolver
	Extractor session.Extractor
	Verifier  session.Verifier
	Registry  *registry.Registry
	Now       func() time.Time
}

type auditOptions struct {
	Videos      int
	Concurrency int
	Verify      bool
}

type videoAudit struct {
	Video           model.Video   `json:"video"`
	Claims          []model.Claim `json:"claims"`
	IsAnalysisHeavy bool          `json:"isAnalysisHeavy"`
	Error           string        `json:"error,omitempty"`
}

type auditReport struct {
	Channel *model.Channel      `json:"channel"`
	Videos  []videoAudit        `json:"videos"`
	Stats   model.AccuracyStats `json:"stats"`
	Summary *model.AuditSummary `json:"summary,omitempty"`
}

// Claims returns every claim in video order.
func (r *auditReport) Claims() []model.Claim {
	var out []model.Claim
	for _, v := range r.Videos {
		out = append(out, v.Claims...)
	}
	return out
}

// runAudit resolves query, then extracts claims from up to opts.Videos of
// the shortlisted videos concurrently. A failed video is reported in its
// entry; a configuration error aborts the whole run.
func runAudit(ctx context.Context, st auditStages, query string, opts auditOptions) (*auditReport, error) {
	ch, err := st.Resolver.Resolve(ctx, query)
	if err != nil {
		return nil, err
	}
	if st.Registry != nil {
		if err := st.Registry.AddRecentSearch(ctx, ch.ToRecentSearch()); err != nil {
			zap.L().Warn("audit: save recent search", zap.String("handle", ch.Handle), zap.Error(err))
		}
	}

	videos := ch.Videos
	if opts.Videos > 0 && len(videos) > opts.Videos {
		videos = videos[:opts.Videos]
	}
	results := make([]videoAudit, len(videos))

	g, gctx := errgroup.WithContext(ctx)
	if opts.Concurrency > 0 {
		g.SetLimit(opts.Concurrency)
	}
	for i, v := range videos {
		g.Go(func() error {
			va, err := auditOne(gctx, st, ch.Handle, v, opts.Verify)
			if err != nil {
				return err
			}
			results[i] = va
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &auditReport{Channel: ch, Videos: results}
	all := report.Claims()
	report.Stats = model.ComputeAccuracy(all)

	if st.Registry != nil {
		now := time.Now
		if st.Now != nil {
			now = st.Now
		}
		sum, err := st.Registry.RecordAudit(ctx, ch.Handle, all, now())
		if err != nil {
			return nil, err
		}
		report.Summary = &sum
	}
	return report, nil
}

func auditOne(ctx context.Context, st auditStages, handle string, v model.Video, verify bool) (videoAudit, error) {
	va := videoAudit{Video: v, Claims: []model.Claim{}}

	res, err := st.Extractor.Extract(ctx, v.Title, v.URL)
	if err != nil {
		if pipeline.IsConfigError(err) {
			return va, err
		}
		zap.L().Warn("audit: extract failed", zap.String("video", v.Title), zap.Error(err))
		va.Error = err.Error()
		return va, nil
	}
	va.Video.ClaimsExtracted = true
	va.IsAnalysisHeavy = res.IsAnalysisHeavy
	va.Claims = res.ToClaims(handle, v)

	if !verify {
		return va, nil
	}
	for i := range va.Claims {
		vr, err := st.Verifier.Verify(ctx, va.Claims[i].StructuredClaim)
		if err != nil {
			if pipeline.IsConfigError(err) {
				return va, err
			}
			zap.L().Warn("audit: verify failed", zap.String("claim", va.Claims[i].StructuredClaim), zap.Error(err))
			fb := pipeline.FallbackVerification(err)
			vr = &fb
		}
		va.Claims[i].Apply(*vr)
	}
	return va, nil
}

func writeAuditTable(w io.Writer, r *auditReport) error {
	fmt.Fprintf(w, "%s (%s)\n\n", r.Channel.Name, r.Channel.Handle)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VIDEO\tTIME\tASSET\tSTATUS\tSCORE\tCLAIM")
	for _, v := range r.Videos {
		if v.Error != "" {
			fmt.Fprintf(tw, "%s\t-\t-\tERROR\t-\t%s\n", truncate(v.Video.Title, 40), v.Error)
			continue
		}
		for _, c := range v.Claims {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.2f\t%s\n",
				truncate(v.Video.Title, 40), c.Timestamp, c.Asset, c.Status, c.Score, c.StructuredClaim)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d predictions, %d unverifiable, average accuracy %.2f\n",
		r.Stats.TotalPredictions, r.Stats.UnverifiableCount, r.Stats.AvgAccuracy)
	return err
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

var auditCmd = &cobra.Command{
	Use:   "audit <query>",
	Short: "Resolve a creator and extract predictions from its recent videos",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initPipeline(ctx, true, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		videos, _ := cmd.Flags().GetInt("videos")
		verify, _ := cmd.Flags().GetBool("verify")
		asJSON, _ := cmd.Flags().GetBool("json")

		report, err := runAudit(ctx, auditStages{
			Resolver:  env.Resolver,
			Extractor: env.Extractor,
			Verifier:  env.Verifier,
			Registry:  env.Registry,
		}, strings.Join(args, " "), auditOptions{
			Videos:      videos,
			Concurrency: cfg.Pipeline.AuditConcurrency,
			Verify:      verify,
		})
		if err != nil {
			return err
		}

		if asJSON {
			return printJSON(cmd.OutOrStdout(), report)
		}
		return writeAuditTable(cmd.OutOrStdout(), report)
	},
}

func init() {
	auditCmd.Flags().Int("videos", 3, "number of shortlisted videos to extract")
	auditCmd.Flags().Bool("verify", false, "verify every extracted claim")
	auditCmd.Flags().Bool("json", false, "print the report as JSON")
	rootCmd.AddCommand(auditCmd)
}
