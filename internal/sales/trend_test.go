package sales_test

import (
	"math"
	"time"
	_ "time/tzdata"

	"github.com/example/staffboard/internal/sales"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("AnalyzeTrend", func() {
	It("fits a perfect line and forecasts along it", func() {
		trend := sales.AnalyzeTrend([]float64{1, 2, 3, 4, 5}, 2)
		Expect(trend.Direction).To(Equal(sales.DirectionUp))
		Expect(trend.Slope).To(BeNumerically("~", 1, 1e-9))
		Expect(trend.Intercept).To(BeNumerically("~", 1, 1e-9))
		Expect(trend.RSquared).To(BeNumerically("~", 1, 1e-9))
		Expect(trend.Forecast).To(HaveLen(2))
		Expect(trend.Forecast[0]).To(BeNumerically("~", 6, 1e-9))
		Expect(trend.Forecast[1]).To(BeNumerically("~", 7, 1e-9))
		Expect(trend.Volatility).To(BeNumerically("~", math.Sqrt2, 1e-9))
		Expect(trend.MovingAverage7).To(Equal([]float64{1, 2, 3, 4, 5}))
	})

	It("averages over a sliding window once the series is long enough", func() {
		trend := sales.AnalyzeTrend([]float64{1, 2, 3, 4, 5, 6, 7, 8}, 0)
		Expect(trend.MovingAverage7).To(HaveLen(8))
		for i, want := range []float64{1, 1.5, 2, 2.5, 3, 3.5, 4, 5} {
			Expect(trend.MovingAverage7[i]).To(BeNumerically("~", want, 1e-9))
		}
		Expect(trend.MovingAverage30).To(HaveLen(8))
		Expect(trend.Forecast).To(BeEmpty())
	})

	DescribeTable("direction",
		func(series []float64, want sales.Direction) {
			Expect(sales.AnalyzeTrend(series, 1).Direction).To(Equal(want))
		},
		Entry("falling", []float64{10, 8, 6, 4}, sales.DirectionDown),
		Entry("flat", []float64{5, 5, 5}, sales.DirectionStable),
		Entry("within threshold", []float64{5, 5.05, 5.1}, sales.DirectionStable),
		Entry("too short", []float64{1, 2}, sales.DirectionInsufficient),
	)

	It("reports no fit quality for a constant series", func() {
		trend := sales.AnalyzeTrend([]float64{5, 5, 5}, 1)
		Expect(trend.RSquared).To(BeZero())
		Expect(trend.Volatility).To(BeZero())
	})
})

var _ = Describe("Periods", func() {
	day := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	businessStart := day(2024, time.April, 1)

	DescribeTable("ValidateRange",
		func(from, to, today time.Time, want error) {
			err := sales.ValidateRange(from, to, businessStart, today)
			if want == nil {
				Expect(err).NotTo(HaveOccurred())
			} else {
				Expect(err).To(MatchError(want))
			}
		},
		Entry("one month", day(2024, 5, 1), day(2024, 5, 31), day(2024, 6, 15), nil),
		Entry("single day", day(2024, 6, 15), day(2024, 6, 15), day(2024, 6, 15), nil),
		Entry("reversed", day(2024, 6, 1), day(2024, 5, 1), day(2024, 6, 15), sales.ErrRangeOrder),
		Entry("before operations", day(2024, 3, 31), day(2024, 4, 10), day(2024, 6, 15), sales.ErrBeforeBusinessStart),
		Entry("into the future", day(2024, 6, 1), day(2024, 6, 16), day(2024, 6, 15), sales.ErrFutureRange),
		Entry("exactly two years", day(2024, 4, 1), day(2026, 4, 1), day(2027, 1, 1), nil),
		Entry("over two years", day(2024, 4, 1), day(2026, 4, 2), day(2027, 1, 1), sales.ErrRangeTooLong),
	)

	It("ignores the clock when comparing days", func() {
		today := time.Date(2024, 6, 15, 8, 0, 0, 0, time.UTC)
		to := time.Date(2024, 6, 15, 23, 59, 0, 0, time.UTC)
		Expect(sales.ValidateRange(day(2024, 6, 1), to, businessStart, today)).To(Succeed())
	})

	DescribeTable("MonthBounds",
		func(from, to, wantStart, wantEnd time.Time) {
			start, end := sales.MonthBounds(from, to)
			Expect(start).To(Equal(wantStart))
			Expect(end).To(Equal(wantEnd))
		},
		Entry("within a year", day(2024, 5, 17), day(2024, 7, 3), day(2024, 5, 1), day(2024, 7, 31)),
		Entry("across new year", day(2024, 12, 10), day(2025, 2, 2), day(2024, 12, 1), day(2025, 2, 28)),
	)

	It("lists every day including leap days", func() {
		days := sales.Days(day(2024, 2, 27), day(2024, 3, 1))
		Expect(days).To(Equal([]time.Time{day(2024, 2, 27), day(2024, 2, 28), day(2024, 2, 29), day(2024, 3, 1)}))
	})

	It("counts calendar days across a clock change", func() {
		loc, err := time.LoadLocation("America/Santiago")
		Expect(err).NotTo(HaveOccurred())
		from := time.Date(2024, 4, 1, 0, 0, 0, 0, loc)
		to := time.Date(2024, 4, 10, 0, 0, 0, 0, loc)
		Expect(sales.DaysBetween(from, to)).To(Equal(9))
		Expect(sales.Days(from, to)).To(HaveLen(10))
	})
})
