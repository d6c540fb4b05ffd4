package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/knoguchi/talentsearch/internal/auth"
	"github.com/knoguchi/talentsearch/internal/config"
	"github.com/knoguchi/talentsearch/internal/enhancer"
	"github.com/knoguchi/talentsearch/internal/service"
)

type rootOptions struct {
	server  string
	timeout time.Duration
	json    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "rankctl",
		Short: "Talent search command line client",
		Long: `rankctl talks to a running talentd over HTTP.

Example usage:
  rankctl search "senior go developer" --category Backend --limit 5
  rankctl enhance "ml eng" --strategy openai
  rankctl token --subject ops`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.server, "server", "http://localhost:8080", "talentd base URL")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 60*time.Second, "request timeout")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "print raw JSON")

	root.AddCommand(newSearchCmd(opts), newEnhanceCmd(opts), newTokenCmd())
	return root
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var (
		category  string
		limit     int
		threshold float64
		enhance   bool
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Rank candidate profiles for a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{
				"query":                strings.Join(args, " "),
				"job_category":         category,
				"limit":                limit,
				"similarity_threshold": threshold,
				"enhance_query":        enhance,
			}
			raw, err := opts.do(cmd.Context(), http.MethodPost, "/search_profile", body)
			if err != nil {
				return err
			}
			if opts.json {
				_, err = cmd.OutOrStdout().Write(raw)
				return err
			}

			var resp service.SearchResponse
			if err := json.Unmarshal(raw, &resp); err != nil {
				return fmt.Errorf("decoding response: %w", err)
			}
			return printSearch(cmd.OutOrStdout(), &resp)
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", "", "job category filter")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of results")
	cmd.Flags().Float64VarP(&threshold, "threshold", "t", 0.5, "minimum similarity in [0, 1]")
	cmd.Flags().BoolVarP(&enhance, "enhance", "e", false, "rewrite the query before searching")
	return cmd
}

func newEnhanceCmd(opts *rootOptions) *cobra.Command {
	var strategy string
	cmd := &cobra.Command{
		Use:   "enhance <query>",
		Short: "Show how the service would rewrite a query",
		Long: `Without --strategy the active strategy is used. With --strategy the
query is rewritten once by that strategy; the active one is not changed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			var (
				raw []byte
				err error
			)
			if strategy == "" {
				raw, err = opts.do(cmd.Context(), http.MethodPost, "/enhancement/enhance", map[string]any{"query": query})
			} else {
				s, perr := enhancer.ParseStrategy(strategy)
				if perr != nil {
					return perr
				}
				path := "/enhancement/test/" + url.PathEscape(string(s)) + "?query=" + url.QueryEscape(query)
				raw, err = opts.do(cmd.Context(), http.MethodGet, path, nil)
			}
			if err != nil {
				return err
			}
			if opts.json {
				_, err = cmd.OutOrStdout().Write(raw)
				return err
			}

			var res enhancer.Result
			if err := json.Unmarshal(raw, &res); err != nil {
				return fmt.Errorf("decoding response: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "strategy: %s\napplied:  %t\noriginal: %s\nenhanced: %s\n",
				res.Strategy, res.Applied, res.Original, res.Enhanced)
			return nil
		},
	}
	cmd.Flags().StringVarP(&strategy, "strategy", "s", "", "strategy to try (none, openai, gemini, local_llm, custom_api)")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		subject string
		expiry  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an operator token signed with JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if expiry <= 0 {
				expiry = cfg.JWTExpiry
			}
			m := auth.NewJWTManager(auth.DefaultJWTConfig(cfg.JWTSecret))
			token, err := m.GenerateTokenWithExpiry(subject, expiry)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "operator name recorded in the token")
	cmd.Flags().DurationVar(&expiry, "expiry", 0, "token lifetime (default JWT_EXPIRY)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func (o *rootOptions) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(o.server, "/")+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return nil, fmt.Errorf("%s: %s", resp.Status, e.Error)
		}
		return nil, fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}

func printSearch(w io.Writer, resp *service.SearchResponse) error {
	fmt.Fprintf(w, "query: %s\n", resp.FinalQuery)
	fmt.Fprintf(w, "results: %d (embedding %s, rerank %s)\n\n",
		resp.TotalResults, resp.Metadata.EmbeddingStatus, resp.Metadata.RerankStatus)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tSCORE\tNAME\tTITLE\tEMAIL")
	for _, r := range resp.Results {
		fmt.Fprintf(tw, "%d\t%.3f\t%s\t%s\t%s\n", r.Rank, r.Score, r.Name, r.CurrentJobTitle, r.Email)
	}
	return tw.Flush()
}
