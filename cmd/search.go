package cmd

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/rvlookup/internal/api"
	"github.com/xkilldash9x/rvlookup/internal/lookup"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func newSearchCmd(a *app) *cobra.Command {
	var (
		criteria lookup.SearchCriteria
		pretty   bool
	)
	searchCmd := &cobra.Command{
		Use:   "search",
		Short: "Run one license search and print the result as JSON",
		Example: `  rvlookup search --last-name Smith --ssn 1234 --dob 01/02/1980
  rvlookup search --backend simulated --last-name Sample --ssn 1234 --dob 01/02/1980`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := a.search(cmd.Context(), criteria)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			if pretty {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(result)
		},
	}
	searchCmd.Flags().StringVar(&criteria.LastName, "last-name", "", "license holder's last name")
	searchCmd.Flags().StringVar(&criteria.Last4SSN, "ssn", "", "last four digits of the holder's SSN")
	searchCmd.Flags().StringVar(&criteria.DateOfBirth, "dob", "", "holder's date of birth as the site expects it")
	searchCmd.Flags().BoolVar(&pretty, "pretty", false, "indent the JSON output")
	return searchCmd
}

// search runs one search with the configured retry policy. Classified
// outcomes, including error outcomes, are results; only engine failures
// are returned as errors.
func (a *app) search(ctx context.Context, criteria lookup.SearchCriteria) (lookup.SearchResult, error) {
	criteria = criteria.Normalize()
	if err := criteria.Validate(); err != nil {
		return lookup.SearchResult{}, err
	}

	comps, err := a.factory.Create(ctx, a.cfg, a.logger)
	if err != nil {
		return lookup.SearchResult{}, fmt.Errorf("failed to initialize components: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := comps.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("Component shutdown reported errors.", zap.Error(err))
		}
	}()

	policy := api.NewRetryPolicy(a.cfg.Server.Retry)
	result, err := policy.Do(ctx, a.logger, func(ctx context.Context) (lookup.SearchResult, error) {
		return comps.Engine.Search(ctx, criteria)
	})
	if err != nil {
		return lookup.SearchResult{}, fmt.Errorf("search failed: %w", err)
	}
	return result, nil
}
