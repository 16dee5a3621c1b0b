package sales_test

import (
	"github.com/example/staffboard/internal/sales"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Summaries", func() {
	var (
		catalog sales.Catalog
		rates   sales.Rates
		lines   []sales.Line
	)

	BeforeEach(func() {
		catalog = sales.DefaultCatalog()
		rates = sales.DefaultRates()
		lines = []sales.Line{
			{Branch: "Osorno", Product: retiro, Units: 10, Kilos: 150, Gross: 54900, Net: 46134},
			{Branch: "Osorno", Product: distribuidor, Units: 20, Kilos: 300, Gross: 99800, Net: 83866},
			{Branch: "La Unión", Product: despacho, Units: 5, Kilos: 75, Gross: 29950, Net: 25168},
			{Branch: "Osorno", Product: "Leña", Units: 4, Gross: 8000, Net: 6723},
		}
	})

	Describe("ByBranch", func() {
		It("splits channels per branch and keeps seeded branches", func() {
			branches := sales.ByBranch(lines, catalog, "Osorno", "La Unión", "Puerto Montt")
			Expect(branches).To(HaveLen(3))
			Expect(branches[0].Branch).To(Equal("La Unión"))
			Expect(branches[1].Branch).To(Equal("Osorno"))
			Expect(branches[2].Branch).To(Equal("Puerto Montt"))

			osorno := branches[1]
			Expect(osorno.Channels[sales.ChannelLocal].Gross).To(Equal(int64(54900)))
			Expect(osorno.Channels[sales.ChannelDistributor].Units).To(Equal(int64(20)))
			Expect(osorno.Total().Gross).To(Equal(int64(154700)))
			Expect(osorno.Total().Tons).To(BeNumerically("~", 0.45, 1e-9))
			Expect(branches[2].Total()).To(Equal(sales.Totals{}))
		})
	})

	Describe("Compare", func() {
		It("ranks branches and measures the gap to the runner-up", func() {
			perf := sales.Compare(sales.ByBranch(lines, catalog, "Puerto Montt"))
			Expect(perf.TotalGross).To(Equal(int64(184650)))
			Expect(perf.Leader).To(Equal("Osorno"))
			Expect(perf.Gap).To(Equal(int64(124750)))
			Expect(perf.Ratio).To(BeNumerically("~", 154700.0/29950.0, 1e-9))

			Expect(perf.Branches[0].Share).To(BeNumerically("~", 154700.0/184650.0*100, 1e-9))
			Expect(perf.Branches[0].RevenuePerTon).To(BeNumerically("~", 154700/0.45, 1e-6))
			last := perf.Branches[len(perf.Branches)-1]
			Expect(last.Branch).To(Equal("Puerto Montt"))
			Expect(last.Share).To(BeZero())
			Expect(last.RevenuePerTon).To(BeZero())
		})

		It("leaves shares and ratio at zero when nothing sold", func() {
			perf := sales.Compare(sales.ByBranch(nil, catalog, "Osorno", "La Unión"))
			Expect(perf.Leader).To(Equal("La Unión"))
			Expect(perf.Ratio).To(BeZero())
			for _, b := range perf.Branches {
				Expect(b.Share).To(BeZero())
			}
		})
	})

	Describe("Summarize", func() {
		It("totals products and adds category rows", func() {
			summary := sales.Summarize(lines, catalog, rates)
			Expect(summary.Products).To(HaveLen(4))
			Expect(summary.Products[0].Product).To(Equal("Leña"))
			Expect(summary.Products[0].Unit).To(Equal("units"))
			Expect(summary.Products[0].Category).To(BeEmpty())

			Expect(summary.Categories).To(HaveLen(1))
			pellet := summary.Categories[0]
			Expect(pellet.Product).To(Equal("Total Pellet"))
			Expect(pellet.Unit).To(Equal("bolsas"))
			Expect(pellet.Units).To(Equal(int64(35)))
			Expect(pellet.Gross).To(Equal(int64(184650)))
			Expect(pellet.Tons).To(BeNumerically("~", 0.525, 1e-9))
			Expect(pellet.Net).To(BeNumerically("~", 184650/1.19, 1e-6))
			Expect(pellet.USD).To(BeNumerically("~", 184650.0/945, 1e-6))
		})

		It("weighs lines without kilos from the catalog", func() {
			summary := sales.Summarize([]sales.Line{{Branch: "Osorno", Product: retiro, Units: 2, Gross: 10980}}, catalog, rates)
			Expect(summary.Products[0].Kilos).To(Equal(30.0))
		})

		It("drops category rows without units", func() {
			summary := sales.Summarize([]sales.Line{{Branch: "Osorno", Product: retiro, Units: 0, Gross: 0}}, catalog, rates)
			Expect(summary.Categories).To(BeEmpty())
		})
	})

	Describe("KPI", func() {
		It("counts product rows only", func() {
			kpi := sales.Summarize(lines, catalog, rates).KPI(rates)
			Expect(kpi.RevenueCLP).To(Equal(int64(192650)))
			Expect(kpi.Units).To(Equal(int64(39)))
			Expect(kpi.ActiveProducts).To(Equal(4))
			Expect(kpi.RevenuePerUnit).To(BeNumerically("~", 192650.0/39, 1e-9))
			Expect(kpi.RevenueUSD).To(BeNumerically("~", 192650.0/945, 1e-9))
		})

		It("leaves averages at zero for an empty summary", func() {
			kpi := sales.Summary{}.KPI(rates)
			Expect(kpi).To(Equal(sales.KPI{}))
		})
	})

	Describe("Insights", func() {
		It("ranks leaders by revenue and by volume", func() {
			insights := sales.Summarize(lines, catalog, rates).Insights()
			Expect(insights.RevenueLeaders).To(Equal([]string{distribuidor, retiro, despacho}))
			Expect(insights.VolumeLeaders).To(Equal([]string{distribuidor, retiro, despacho}))
			Expect(insights.Recommendations).To(BeEmpty())
			Expect(insights.Alerts).To(BeEmpty())
		})

		It("recommends action on weak revenue and flags odd products", func() {
			insights := sales.Summarize([]sales.Line{
				{Branch: "Osorno", Product: retiro, Units: 0},
				{Branch: "Osorno", Product: despacho, Units: -2, Gross: -11980},
				{Branch: "Osorno", Product: distribuidor, Units: 1, Gross: 4990},
			}, catalog, rates).Insights()
			Expect(insights.Recommendations).To(ConsistOf(ContainSubstring("Low sales volume")))
			Expect(insights.Alerts).To(ConsistOf(
				"Negative revenue detected for "+despacho,
				"No sales recorded for "+retiro,
			))
		})

		It("praises strong revenue", func() {
			insights := sales.Summarize([]sales.Line{{Branch: "Osorno", Product: retiro, Units: 200, Gross: 1098000}}, catalog, rates).Insights()
			Expect(insights.Recommendations).To(ConsistOf(ContainSubstring("Strong sales performance")))
		})
	})

	Describe("Validate", func() {
		It("separates blocking issues from warnings", func() {
			report := sales.Validate([]sales.Line{
				{Branch: "", Product: retiro, Units: 1, Gross: 5490},
				{Branch: "Osorno", Product: retiro, Units: -1, Gross: -5490},
			})
			Expect(report.Records).To(Equal(2))
			Expect(report.Valid()).To(BeFalse())
			Expect(report.Issues).To(Equal([]string{"record 0: missing branch"}))
			Expect(report.Warnings).To(Equal([]string{"record 1: negative quantity", "record 1: negative total amount"}))
		})

		It("accepts clean lines", func() {
			Expect(sales.Validate(lines).Valid()).To(BeTrue())
		})
	})
})
