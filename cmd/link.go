package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/audit-engine/pkg/youtube"
)

var linkCmd = &cobra.Command{
	Use:   "link <url> <timestamp>",
	Short: "Print the deep link and embed URL for a moment in a video",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		url, ts := args[0], args[1]
		w := cmd.OutOrStdout()
		if !youtube.ValidTimestamp(ts) {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %q is not MM:SS or H:MM:SS, starting at 0\n", ts)
		}
		fmt.Fprintf(w, "seconds: %d\n", youtube.ParseTimestamp(ts))
		fmt.Fprintf(w, "link:    %s\n", youtube.DeepLink(url, ts))
		if embed := youtube.EmbedURL(url, ts); embed != "" {
			fmt.Fprintf(w, "embed:   %s\n", embed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(linkCmd)
}
