package sales

import (
	"fmt"
	"sort"
	"strings"
)

// Revenue thresholds in pesos that trigger a recommendation.
const (
	strongRevenue = 1_000_000
	weakRevenue   = 100_000
	leaderCount   = 3
)

// Line is the total of one product at one branch over a period.
type Line struct {
	Branch  string
	Product string
	Units   int64
	Kilos   float64
	Gross   int64
	Net     int64
}

// Totals accumulates units, tonnage and amounts.
type Totals struct {
	Units int64
	Tons  float64
	Net   int64
	Gross int64
}

func (t Totals) add(other Totals) Totals {
	return Totals{
		Units: t.Units + other.Units,
		Tons:  t.Tons + other.Tons,
		Net:   t.Net + other.Net,
		Gross: t.Gross + other.Gross,
	}
}

// BranchTotals splits the sales of a branch by channel.
type BranchTotals struct {
	Branch   string
	Channels map[Channel]Totals
}

// Total sums every channel of the branch.
func (b BranchTotals) Total() Totals {
	var total Totals
	for _, t := range b.Channels {
		total = total.add(t)
	}
	return total
}

// ByBranch groups lines per branch and channel. Products without a channel
// are skipped. Every seeded branch is present even when it sold nothing.
// Branches are ordered by name.
func ByBranch(lines []Line, catalog Catalog, seed ...string) []BranchTotals {
	index := make(map[string]*BranchTotals)
	get := func(branch string) *BranchTotals {
		bt, ok := index[branch]
		if !ok {
			bt = &BranchTotals{Branch: branch, Channels: map[Channel]Totals{
				ChannelLocal:       {},
				ChannelDistributor: {},
			}}
			index[branch] = bt
		}
		return bt
	}
	for _, branch := range seed {
		if branch = strings.TrimSpace(branch); branch != "" {
			get(branch)
		}
	}

	for _, line := range lines {
		product, ok := catalog.Lookup(line.Product)
		if !ok || product.Channel == "" {
			continue
		}
		bt := get(line.Branch)
		bt.Channels[product.Channel] = bt.Channels[product.Channel].add(Totals{
			Units: line.Units,
			Tons:  line.Kilos / 1000,
			Net:   line.Net,
			Gross: line.Gross,
		})
	}

	out := make([]BranchTotals, 0, len(index))
	for _, bt := range index {
		out = append(out, *bt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Branch < out[j].Branch })
	return out
}

// BranchPerformance is the standing of one branch against the others.
type BranchPerformance struct {
	Branch string
	Gross  int64
	Tons   float64
	// Share is the percentage of total gross sales. Zero when nothing sold.
	Share float64
	// RevenuePerTon is zero when the branch moved no volume.
	RevenuePerTon float64
}

// Performance compares branches.
type Performance struct {
	Branches   []BranchPerformance
	TotalGross int64
	TotalTons  float64
	Leader     string
	// Gap is how much more the leader sold than the runner-up.
	Gap int64
	// Ratio is leader over runner-up gross, zero when the runner-up sold nothing.
	Ratio float64
}

// Compare ranks branches by gross sales, ties broken by name.
func Compare(branches []BranchTotals) Performance {
	var perf Performance
	for _, bt := range branches {
		total := bt.Total()
		perf.TotalGross += total.Gross
		perf.TotalTons += total.Tons
		bp := BranchPerformance{Branch: bt.Branch, Gross: total.Gross, Tons: total.Tons}
		if total.Tons > 0 {
			bp.RevenuePerTon = float64(total.Gross) / total.Tons
		}
		perf.Branches = append(perf.Branches, bp)
	}
	if perf.TotalGross > 0 {
		for i := range perf.Branches {
			perf.Branches[i].Share = float64(perf.Branches[i].Gross) / float64(perf.TotalGross) * 100
		}
	}

	sort.SliceStable(perf.Branches, func(i, j int) bool {
		if perf.Branches[i].Gross == perf.Branches[j].Gross {
			return perf.Branches[i].Branch < perf.Branches[j].Branch
		}
		return perf.Branches[i].Gross > perf.Branches[j].Gross
	})
	if len(perf.Branches) > 0 {
		perf.Leader = perf.Branches[0].Branch
	}
	if len(perf.Branches) > 1 {
		leader, runnerUp := perf.Branches[0], perf.Branches[1]
		perf.Gap = leader.Gross - runnerUp.Gross
		if runnerUp.Gross > 0 {
			perf.Ratio = float64(leader.Gross) / float64(runnerUp.Gross)
		}
	}
	return perf
}

// ProductSummary is the total of one product, or of a category when it is a
// category row.
type ProductSummary struct {
	Product  string
	Category string
	Unit     string
	Units    int64
	Kilos    float64
	Gross    int64
	Net      float64
	USD      float64
	Tons     float64
}

func (p *ProductSummary) finish(rates Rates) {
	p.Net = rates.Net(float64(p.Gross))
	p.USD = rates.USD(float64(p.Gross))
	p.Tons = p.Kilos / 1000
}

// Summary lists product totals and the category totals built from them.
type Summary struct {
	Products   []ProductSummary
	Categories []ProductSummary
}

// Summarize totals lines per product across branches. A line without kilos
// is weighed with the catalog weight of its product. Category rows are named
// "Total <category>" and only appear when the category sold units.
func Summarize(lines []Line, catalog Catalog, rates Rates) Summary {
	byProduct := make(map[string]*ProductSummary)
	for _, line := range lines {
		product, known := catalog.Lookup(line.Product)
		ps, ok := byProduct[line.Product]
		if !ok {
			ps = &ProductSummary{Product: line.Product, Unit: "units"}
			if known {
				ps.Category = product.Category
				if product.Unit != "" {
					ps.Unit = product.Unit
				}
			}
			byProduct[line.Product] = ps
		}
		kilos := line.Kilos
		if kilos == 0 && known {
			kilos = float64(line.Units) * product.KilosPerUnit
		}
		ps.Units += line.Units
		ps.Kilos += kilos
		ps.Gross += line.Gross
	}

	var summary Summary
	categories := make(map[string]*ProductSummary)
	for _, ps := range byProduct {
		ps.finish(rates)
		summary.Products = append(summary.Products, *ps)
		if ps.Category == "" {
			continue
		}
		cat, ok := categories[ps.Category]
		if !ok {
			cat = &ProductSummary{Product: "Total " + ps.Category, Category: ps.Category, Unit: ps.Unit}
			categories[ps.Category] = cat
		}
		if cat.Unit != ps.Unit {
			cat.Unit = "total"
		}
		cat.Units += ps.Units
		cat.Kilos += ps.Kilos
		cat.Gross += ps.Gross
	}
	for _, cat := range categories {
		if cat.Units <= 0 {
			continue
		}
		cat.finish(rates)
		summary.Categories = append(summary.Categories, *cat)
	}

	sort.Slice(summary.Products, func(i, j int) bool { return summary.Products[i].Product < summary.Products[j].Product })
	sort.Slice(summary.Categories, func(i, j int) bool { return summary.Categories[i].Product < summary.Categories[j].Product })
	return summary
}

// KPI holds the headline indicators of a summary.
type KPI struct {
	RevenueCLP     int64
	RevenueUSD     float64
	Units          int64
	Tons           float64
	RevenuePerUnit float64
	RevenuePerTon  float64
	ActiveProducts int
}

// KPI computes indicators from the product rows. Category rows are not
// counted again.
func (s Summary) KPI(rates Rates) KPI {
	var kpi KPI
	for _, p := range s.Products {
		kpi.RevenueCLP += p.Gross
		kpi.Units += p.Units
		kpi.Tons += p.Tons
		if p.Units > 0 {
			kpi.ActiveProducts++
		}
	}
	kpi.RevenueUSD = rates.USD(float64(kpi.RevenueCLP))
	if kpi.Units > 0 {
		kpi.RevenuePerUnit = float64(kpi.RevenueCLP) / float64(kpi.Units)
	}
	if kpi.Tons > 0 {
		kpi.RevenuePerTon = float64(kpi.RevenueCLP) / kpi.Tons
	}
	return kpi
}

// Insights names the leading products and flags unusual figures.
type Insights struct {
	RevenueLeaders  []string
	VolumeLeaders   []string
	Recommendations []string
	Alerts          []string
}

// Insights ranks products and derives recommendations from total revenue.
func (s Summary) Insights() Insights {
	var insights Insights
	if len(s.Products) == 0 {
		return insights
	}

	byRevenue := append([]ProductSummary(nil), s.Products...)
	sort.SliceStable(byRevenue, func(i, j int) bool { return byRevenue[i].Gross > byRevenue[j].Gross })
	byVolume := append([]ProductSummary(nil), s.Products...)
	sort.SliceStable(byVolume, func(i, j int) bool { return byVolume[i].Units > byVolume[j].Units })
	for i := 0; i < len(s.Products) && i < leaderCount; i++ {
		insights.RevenueLeaders = append(insights.RevenueLeaders, byRevenue[i].Product)
		insights.VolumeLeaders = append(insights.VolumeLeaders, byVolume[i].Product)
	}

	var revenue int64
	for _, p := range s.Products {
		revenue += p.Gross
		switch {
		case p.Units == 0:
			insights.Alerts = append(insights.Alerts, fmt.Sprintf("No sales recorded for %s", p.Product))
		case p.Gross < 0:
			insights.Alerts = append(insights.Alerts, fmt.Sprintf("Negative revenue detected for %s", p.Product))
		}
	}
	switch {
	case revenue > strongRevenue:
		insights.Recommendations = append(insights.Recommendations, "Strong sales performance - consider expanding inventory")
	case revenue < weakRevenue:
		insights.Recommendations = append(insights.Recommendations, "Low sales volume - review pricing and marketing strategies")
	}
	return insights
}

// ValidationReport lists blocking issues and warnings found in lines.
type ValidationReport struct {
	Records  int
	Issues   []string
	Warnings []string
}

// Valid reports whether no blocking issue was found.
func (r ValidationReport) Valid() bool {
	return len(r.Issues) == 0
}

// Validate checks lines before they are summarized. Negative figures are
// warnings because credit notes produce them.
func Validate(lines []Line) ValidationReport {
	report := ValidationReport{Records: len(lines)}
	for i, line := range lines {
		if strings.TrimSpace(line.Branch) == "" {
			report.Issues = append(report.Issues, fmt.Sprintf("record %d: missing branch", i))
		}
		if strings.TrimSpace(line.Product) == "" {
			report.Issues = append(report.Issues, fmt.Sprintf("record %d: missing product", i))
		}
		if line.Units < 0 {
			report.Warnings = append(report.Warnings, fmt.Sprintf("record %d: negative quantity", i))
		}
		if line.Gross < 0 {
			report.Warnings = append(report.Warnings, fmt.Sprintf("record %d: negative total amount", i))
		}
	}
	return report
}
