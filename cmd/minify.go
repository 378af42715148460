package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/surfer/api/schemas"
	"github.com/xkilldash9x/surfer/internal/agent"
	"github.com/xkilldash9x/surfer/internal/browser/dom"
	"github.com/xkilldash9x/surfer/internal/browser/session"
	"github.com/xkilldash9x/surfer/internal/observability"
	"github.com/xkilldash9x/surfer/internal/oracle"
)

// newMinifyCmd prints the candidate list the oracle would see for a page.
func newMinifyCmd() *cobra.Command {
	var verify bool
	cmd := &cobra.Command{
		Use:   "minify <url>",
		Short: "Prints the interactive candidates of a page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			logger := observability.GetLogger()

			sess, err := session.New(ctx, cfg.Browser(), logger)
			if err != nil {
				return fmt.Errorf("failed to start browser: %w", err)
			}
			defer sess.Close(ctx)

			if err := sess.Navigate(ctx, args[0]); err != nil {
				return err
			}
			doc, err := sess.Snapshot(ctx)
			if err != nil {
				return err
			}
			href, err := sess.URL(ctx)
			if err != nil {
				return err
			}
			opts := dom.OptionsFor(agent.NewSitePolicy(cfg.Sites()).Resolve(href))
			candidates := dom.Minify(doc, opts)

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, oracle.RenderCandidates(candidates))
			fmt.Fprintf(out, "\n%d candidates\n", len(candidates))
			if verify {
				return printVerification(out, candidates, dom.Verify(doc, opts))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&verify, "verify", false, "re-resolve every selector and report the ones that do not round trip")
	cmd.Flags().Bool("headless", false, "run the browser without a window")
	return cmd
}

func printVerification(out io.Writer, candidates []schemas.CandidateElement, results []dom.Verification) error {
	byIdx := make(map[int]dom.Verification, len(results))
	for _, r := range results {
		byIdx[r.Idx] = r
	}
	failed := 0
	for _, c := range candidates {
		r, ok := byIdx[c.Idx]
		if !ok || r.RoundTrips {
			continue
		}
		failed++
		switch {
		case r.Err != nil:
			fmt.Fprintf(out, "idx=%d %q: %v\n", c.Idx, r.Selector, r.Err)
		default:
			fmt.Fprintf(out, "idx=%d %q: %d matches, first is another element\n", c.Idx, r.Selector, r.Matches)
		}
	}
	fmt.Fprintf(out, "%d of %d selectors round trip\n", len(candidates)-failed, len(candidates))
	if failed > 0 {
		return fmt.Errorf("%d selectors did not round trip", failed)
	}
	return nil
}
