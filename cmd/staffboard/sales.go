package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/example/staffboard/internal/application"
)

func newSalesCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sales",
		Short: "Inspect the counter sales ledger",
	}
	cmd.AddCommand(newSalesReportCommand(opts))
	return cmd
}

func newSalesReportCommand(opts *rootOptions) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the sales analysis of a day range",
		Long:  `Prints totals, branch standing, trend and alerts for the inclusive range. The range defaults to the current month up to today.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(cmd, nil)
			if err != nil {
				return err
			}

			loc := cfg.Status.Location
			today := time.Now().In(loc)
			start := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, loc)
			end := today
			if from != "" {
				if start, err = time.ParseInLocation(time.DateOnly, from, loc); err != nil {
					return fmt.Errorf("--from: expected YYYY-MM-DD")
				}
			}
			if to != "" {
				if end, err = time.ParseInLocation(time.DateOnly, to, loc); err != nil {
					return fmt.Errorf("--to: expected YYYY-MM-DD")
				}
			}

			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.sales.Report(cmd.Context(), start, end)
			if err != nil {
				return fmt.Errorf("sales report: %w", err)
			}
			return writeSalesReport(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day of the range (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last day of the range (YYYY-MM-DD)")
	return cmd
}

type salesReportOutput struct {
	Range           string               `yaml:"range"`
	Revenue         string               `yaml:"revenue"`
	RevenueUSD      string               `yaml:"revenue_usd"`
	Units           int64                `yaml:"units"`
	Tons            string               `yaml:"tons"`
	MonthRevenue    string               `yaml:"month_revenue"`
	Leader          string               `yaml:"leader,omitempty"`
	Trend           string               `yaml:"trend"`
	Products        []salesProductOutput `yaml:"products,omitempty"`
	Branches        []salesBranchOutput  `yaml:"branches,omitempty"`
	Recommendations []string             `yaml:"recommendations,omitempty"`
	Alerts          []string             `yaml:"alerts,omitempty"`
	Issues          []string             `yaml:"issues,omitempty"`
}

type salesProductOutput struct {
	Product string `yaml:"product"`
	Units   int64  `yaml:"units"`
	Revenue string `yaml:"revenue"`
}

type salesBranchOutput struct {
	Branch  string `yaml:"branch"`
	Revenue string `yaml:"revenue"`
	Share   string `yaml:"share"`
}

// writeSalesReport prints report as YAML with amounts grouped by thousands.
func writeSalesReport(w io.Writer, report application.SalesReport) error {
	out := salesReportOutput{
		Range:           report.From.Format(time.DateOnly) + " to " + report.To.Format(time.DateOnly),
		Revenue:         "$" + humanize.Comma(report.PeriodKPI.RevenueCLP),
		RevenueUSD:      "US$" + humanize.CommafWithDigits(report.PeriodKPI.RevenueUSD, 2),
		Units:           report.PeriodKPI.Units,
		Tons:            humanize.FtoaWithDigits(report.PeriodKPI.Tons, 3),
		MonthRevenue:    "$" + humanize.Comma(report.MonthKPI.RevenueCLP),
		Leader:          report.Performance.Leader,
		Trend:           string(report.Trend.Direction),
		Recommendations: report.Insights.Recommendations,
		Alerts:          report.Insights.Alerts,
		Issues:          report.Quality.Issues,
	}
	for _, p := range report.Period.Products {
		out.Products = append(out.Products, salesProductOutput{
			Product: p.Product,
			Units:   p.Units,
			Revenue: "$" + humanize.Comma(p.Gross),
		})
	}
	for _, b := range report.Performance.Branches {
		out.Branches = append(out.Branches, salesBranchOutput{
			Branch:  b.Branch,
			Revenue: "$" + humanize.Comma(b.Gross),
			Share:   humanize.FtoaWithDigits(b.Share, 1) + "%",
		})
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return err
	}
	return enc.Close()
}
