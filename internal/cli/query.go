package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"rfm-dashboard/internal/models"
)

func newSegmentsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "segments",
		Short: "Count customers per RFM segment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			analytics, err := a.loadAnalytics(cmd.Context())
			if err != nil {
				return err
			}
			counts, err := analytics.SegmentCounts()
			if err != nil {
				return err
			}

			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), counts)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "SEGMENT\tCUSTOMERS")
			for _, c := range counts {
				fmt.Fprintf(tw, "%s\t%d\n", c.Segment, c.Count)
			}
			return tw.Flush()
		},
	}
}

func newCustomersCmd(a *app) *cobra.Command {
	var segment string

	cmd := &cobra.Command{
		Use:   "customers",
		Short: "Print the per-customer RFM table",
		Long: `Print recency, frequency, monetary value, scores and segment for every
customer, in the order customers first appear in the ledger.

Example:
  rfm customers --segment Champions --source data.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			analytics, err := a.loadAnalytics(cmd.Context())
			if err != nil {
				return err
			}

			var rows []models.CustomerRFM
			if segment != "" {
				rows, err = analytics.CustomersInSegment(segment)
			} else {
				rows, err = analytics.RFMTable()
			}
			if err != nil {
				return err
			}

			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), rows)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "CUSTOMER\tRECENCY\tFREQUENCY\tMONETARY\tRFM\tSEGMENT")
			for _, r := range rows {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%s\n",
					r.CustomerID, r.RecencyDays, r.Frequency, r.Monetary.StringFixed(2), r.RFMCode, r.Segment)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&segment, "segment", "", "only customers in this segment")
	return cmd
}

func newAggregatesCmd(a *app) *cobra.Command {
	var (
		from, to              string
		categories, countries []string
	)

	cmd := &cobra.Command{
		Use:   "aggregates",
		Short: "Compute revenue aggregates for a filter",
		Long: `Filter the ledger by date range, categories and countries and print the
KPI summary with monthly, product, country and category revenue.

Example:
  rfm aggregates --from 2011-01-01 --to 2011-03-31 --country France --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := models.ParseFilter(from, to, categories, countries)
			if err != nil {
				return err
			}

			analytics, err := a.loadAnalytics(cmd.Context())
			if err != nil {
				return err
			}
			res, err := analytics.Aggregates(filter)
			if err != nil {
				return err
			}

			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), res)
			}
			return printAggregates(cmd, res)
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "first day (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVar(&to, "to", "", "last day, inclusive (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringSliceVar(&categories, "category", nil, "categories to include (repeatable)")
	cmd.Flags().StringSliceVar(&countries, "country", nil, "countries to include (repeatable)")
	return cmd
}

func printAggregates(cmd *cobra.Command, res models.AggregateResult) error {
	out := cmd.OutOrStdout()
	if res.RowCount == 0 {
		fmt.Fprintln(out, "No data for this filter")
		return nil
	}

	s := res.Summary
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Rows\t%d\n", res.RowCount)
	fmt.Fprintf(tw, "Total revenue\t%s\n", s.TotalRevenue.StringFixed(2))
	fmt.Fprintf(tw, "Orders\t%d\n", s.TotalOrders)
	fmt.Fprintf(tw, "Customers\t%d\n", s.Customers)
	fmt.Fprintf(tw, "Avg order value\t%s\n", s.AvgOrderValue.StringFixed(2))
	fmt.Fprintf(tw, "Products sold\t%d\n", s.ProductsSold)
	fmt.Fprintf(tw, "Avg rating\t%.2f\n", s.AvgRating)
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "MONTH\tREVENUE")
	for _, m := range res.MonthlyRevenue {
		fmt.Fprintf(tw, "%s\t%s\n", m.Month, m.Revenue.StringFixed(2))
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "TOP PRODUCT\tREVENUE")
	for _, p := range res.TopProducts {
		fmt.Fprintf(tw, "%s\t%s\n", p.Description, p.Revenue.StringFixed(2))
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "TOP COUNTRY\tREVENUE")
	for _, c := range res.TopCountries {
		fmt.Fprintf(tw, "%s\t%s\n", c.Country, c.Revenue.StringFixed(2))
	}
	return tw.Flush()
}
