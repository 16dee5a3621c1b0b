package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/staffboard/internal/application"
	"github.com/example/staffboard/internal/sales"
)

type salesService interface {
	Catalog() []sales.Product
	RecordSale(ctx context.Context, input application.SaleInput) (application.Sale, error)
	SearchSales(ctx context.Context, query application.SalesQuery) ([]application.Sale, error)
	Report(ctx context.Context, from, to time.Time) (application.SalesReport, error)
}

type SalesHandler struct {
	service   salesService
	responder responder
	logger    *slog.Logger
	location  *time.Location
}

// NewSalesHandler builds the sales handler. Dates are calendar days in loc.
func NewSalesHandler(service salesService, loc *time.Location, logger *slog.Logger) *SalesHandler {
	base := defaultLogger(logger)
	if loc == nil {
		loc = time.Local
	}
	return &SalesHandler{service: service, responder: newResponder(base), logger: base, location: loc}
}

func (h *SalesHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "SalesHandler", operation, attrs...)
}

func (h *SalesHandler) ready(w http.ResponseWriter) bool {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return false
	}
	return true
}

// Products serves GET /sales/products.
func (h *SalesHandler) Products(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	products := h.service.Catalog()
	resp := productListResponse{Products: make([]productDTO, 0, len(products))}
	for _, p := range products {
		resp.Products = append(resp.Products, productDTO{
			Name:         p.Name,
			Category:     p.Category,
			Channel:      string(p.Channel),
			Unit:         p.Unit,
			KilosPerUnit: p.KilosPerUnit,
			UnitPrice:    p.UnitPrice,
		})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, resp)
}

// Create serves POST /sales.
func (h *SalesHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	var req saleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode sale request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	input, err := req.toInput(h.location)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	sale, err := h.service.RecordSale(r.Context(), input)
	if err != nil {
		h.log(r.Context(), "Create").ErrorContext(r.Context(), "sale recording failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, saleResponse{Sale: toSaleDTO(sale)})
}

// Search serves GET /sales?from&to&branch&product&document_type&document_number&limit.
// List filters may repeat.
func (h *SalesHandler) Search(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	q := r.URL.Query()
	vErr := &application.ValidationError{FieldErrors: map[string]string{}}
	query := application.SalesQuery{
		Branches:       q["branch"],
		Products:       q["product"],
		DocumentTypes:  q["document_type"],
		DocumentNumber: q.Get("document_number"),
	}
	query.From, query.To = h.dayRange(q.Get("from"), q.Get("to"), vErr)
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			vErr.FieldErrors["limit"] = "limit must be a whole number"
		}
		query.Limit = limit
	}
	if vErr.HasErrors() {
		h.responder.handleServiceError(r.Context(), w, vErr)
		return
	}

	found, err := h.service.SearchSales(r.Context(), query)
	if err != nil {
		h.log(r.Context(), "Search").ErrorContext(r.Context(), "sale search failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	resp := saleListResponse{Sales: make([]saleDTO, 0, len(found))}
	for _, sale := range found {
		resp.Sales = append(resp.Sales, toSaleDTO(sale))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, resp)
}

// Report serves GET /sales/report?from&to.
func (h *SalesHandler) Report(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	q := r.URL.Query()
	vErr := &application.ValidationError{FieldErrors: map[string]string{}}
	from, to := h.dayRange(q.Get("from"), q.Get("to"), vErr)
	if vErr.HasErrors() {
		h.responder.handleServiceError(r.Context(), w, vErr)
		return
	}

	report, err := h.service.Report(r.Context(), from, to)
	if err != nil {
		h.log(r.Context(), "Report").ErrorContext(r.Context(), "sales report failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toSalesReportDTO(report))
}

// dayRange parses optional day bounds. Missing bounds stay zero and are
// reported by the service.
func (h *SalesHandler) dayRange(rawFrom, rawTo string, vErr *application.ValidationError) (from, to time.Time) {
	for _, bound := range []struct {
		name string
		raw  string
		dst  *time.Time
	}{{"from", rawFrom, &from}, {"to", rawTo, &to}} {
		if strings.TrimSpace(bound.raw) == "" {
			continue
		}
		t, err := parseInstant(bound.raw, h.location)
		if err != nil {
			vErr.FieldErrors[bound.name] = err.Error()
			continue
		}
		*bound.dst = t.In(h.location)
	}
	return from, to
}

type saleRequest struct {
	Date           string `json:"date"`
	Branch         string `json:"branch"`
	Product        string `json:"product"`
	DocumentType   string `json:"document_type"`
	DocumentNumber string `json:"document_number"`
	PaymentMethod  string `json:"payment_method"`
	Units          int64  `json:"units"`
	Discount       int64  `json:"discount"`
}

func (r saleRequest) toInput(loc *time.Location) (application.SaleInput, error) {
	input := application.SaleInput{
		Branch:         r.Branch,
		Product:        r.Product,
		DocumentType:   r.DocumentType,
		DocumentNumber: r.DocumentNumber,
		PaymentMethod:  r.PaymentMethod,
		Units:          r.Units,
		Discount:       r.Discount,
	}
	if strings.TrimSpace(r.Date) != "" {
		date, err := parseInstant(r.Date, loc)
		if err != nil {
			return application.SaleInput{}, &application.ValidationError{FieldErrors: map[string]string{"date": err.Error()}}
		}
		input.Date = date.In(loc)
	}
	return input, nil
}

type productDTO struct {
	Name         string  `json:"name"`
	Category     string  `json:"category"`
	Channel      string  `json:"channel,omitempty"`
	Unit         string  `json:"unit"`
	KilosPerUnit float64 `json:"kilos_per_unit"`
	UnitPrice    int64   `json:"unit_price"`
}

type productListResponse struct {
	Products []productDTO `json:"products"`
}

type saleDTO struct {
	ID             string  `json:"id"`
	Date           string  `json:"date"`
	Branch         string  `json:"branch"`
	Product        string  `json:"product"`
	DocumentType   string  `json:"document_type,omitempty"`
	DocumentNumber string  `json:"document_number,omitempty"`
	PaymentMethod  string  `json:"payment_method,omitempty"`
	Units          int64   `json:"units"`
	Kilos          float64 `json:"kilos"`
	UnitPrice      int64   `json:"unit_price"`
	Discount       int64   `json:"discount"`
	Net            int64   `json:"net"`
	VAT            int64   `json:"vat"`
	Total          int64   `json:"total"`
	CreatedAt      string  `json:"created_at"`
}

func toSaleDTO(sale application.Sale) saleDTO {
	return saleDTO{
		ID:             sale.ID,
		Date:           sale.Date.Format(time.DateOnly),
		Branch:         sale.Branch,
		Product:        sale.Product,
		DocumentType:   sale.DocumentType,
		DocumentNumber: sale.DocumentNumber,
		PaymentMethod:  sale.PaymentMethod,
		Units:          sale.Units,
		Kilos:          sale.Kilos,
		UnitPrice:      sale.UnitPrice,
		Discount:       sale.Discount,
		Net:            sale.Net,
		VAT:            sale.VAT,
		Total:          sale.Total,
		CreatedAt:      sale.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

type saleResponse struct {
	Sale saleDTO `json:"sale"`
}

type saleListResponse struct {
	Sales []saleDTO `json:"sales"`
}

type kpiDTO struct {
	RevenueCLP     int64   `json:"revenue_clp"`
	RevenueUSD     float64 `json:"revenue_usd"`
	Units          int64   `json:"units"`
	Tons           float64 `json:"tons"`
	RevenuePerUnit float64 `json:"revenue_per_unit"`
	RevenuePerTon  float64 `json:"revenue_per_ton"`
	ActiveProducts int     `json:"active_products"`
}

func toKPIDTO(k sales.KPI) kpiDTO {
	return kpiDTO(k)
}

type productSummaryDTO struct {
	Product  string  `json:"product"`
	Category string  `json:"category"`
	Unit     string  `json:"unit"`
	Units    int64   `json:"units"`
	Kilos    float64 `json:"kilos"`
	Gross    int64   `json:"gross"`
	Net      float64 `json:"net"`
	USD      float64 `json:"usd"`
	Tons     float64 `json:"tons"`
}

type summaryDTO struct {
	Products   []productSummaryDTO `json:"products"`
	Categories []productSummaryDTO `json:"categories"`
}

func toSummaryDTO(s sales.Summary) summaryDTO {
	convert := func(rows []sales.ProductSummary) []productSummaryDTO {
		out := make([]productSummaryDTO, 0, len(rows))
		for _, row := range rows {
			out = append(out, productSummaryDTO(row))
		}
		return out
	}
	return summaryDTO{Products: convert(s.Products), Categories: convert(s.Categories)}
}

type totalsDTO struct {
	Units int64   `json:"units"`
	Tons  float64 `json:"tons"`
	Net   int64   `json:"net"`
	Gross int64   `json:"gross"`
}

type branchDTO struct {
	Branch   string               `json:"branch"`
	Channels map[string]totalsDTO `json:"channels"`
	Total    totalsDTO            `json:"total"`
}

type branchPerformanceDTO struct {
	Branch        string  `json:"branch"`
	Gross         int64   `json:"gross"`
	Tons          float64 `json:"tons"`
	Share         float64 `json:"share"`
	RevenuePerTon float64 `json:"revenue_per_ton"`
}

type performanceDTO struct {
	Branches   []branchPerformanceDTO `json:"branches"`
	TotalGross int64                  `json:"total_gross"`
	TotalTons  float64                `json:"total_tons"`
	Leader     string                 `json:"leader,omitempty"`
	Gap        int64                  `json:"gap"`
	Ratio      float64                `json:"ratio"`
}

type insightsDTO struct {
	RevenueLeaders  []string `json:"revenue_leaders"`
	VolumeLeaders   []string `json:"volume_leaders"`
	Recommendations []string `json:"recommendations"`
	Alerts          []string `json:"alerts"`
}

type dailySalesDTO struct {
	Date  string  `json:"date"`
	Units int64   `json:"units"`
	Kilos float64 `json:"kilos"`
	Total int64   `json:"total"`
}

type trendDTO struct {
	Direction       string    `json:"direction"`
	Slope           float64   `json:"slope"`
	Intercept       float64   `json:"intercept"`
	RSquared        float64   `json:"r_squared"`
	Volatility      float64   `json:"volatility"`
	Forecast        []float64 `json:"forecast"`
	MovingAverage7  []float64 `json:"moving_average_7"`
	MovingAverage30 []float64 `json:"moving_average_30"`
}

type qualityDTO struct {
	Records  int      `json:"records"`
	Valid    bool     `json:"valid"`
	Issues   []string `json:"issues"`
	Warnings []string `json:"warnings"`
}

type financialsDTO struct {
	Gross float64 `json:"gross"`
	Net   float64 `json:"net"`
	VAT   float64 `json:"vat"`
	USD   float64 `json:"usd"`
}

type salesReportDTO struct {
	From         string          `json:"from"`
	To           string          `json:"to"`
	MonthFrom    string          `json:"month_from"`
	MonthTo      string          `json:"month_to"`
	ExchangeRate float64         `json:"exchange_rate"`
	VATRate      float64         `json:"vat_rate"`
	Period       summaryDTO      `json:"period"`
	PeriodKPI    kpiDTO          `json:"period_kpi"`
	Financials   financialsDTO   `json:"financials"`
	Month        summaryDTO      `json:"month"`
	MonthKPI     kpiDTO          `json:"month_kpi"`
	Branches     []branchDTO     `json:"branches"`
	Performance  performanceDTO  `json:"performance"`
	Insights     insightsDTO     `json:"insights"`
	Daily        []dailySalesDTO `json:"daily"`
	Trend        trendDTO        `json:"trend"`
	Quality      qualityDTO      `json:"quality"`
	GeneratedAt  string          `json:"generated_at"`
}

func toSalesReportDTO(report application.SalesReport) salesReportDTO {
	dto := salesReportDTO{
		From:         report.From.Format(time.DateOnly),
		To:           report.To.Format(time.DateOnly),
		MonthFrom:    report.MonthFrom.Format(time.DateOnly),
		MonthTo:      report.MonthTo.Format(time.DateOnly),
		ExchangeRate: report.Rates.ExchangeRate,
		VATRate:      report.Rates.VATRate,
		Period:       toSummaryDTO(report.Period),
		PeriodKPI:    toKPIDTO(report.PeriodKPI),
		Financials:   financialsDTO(report.Financials),
		Month:        toSummaryDTO(report.Month),
		MonthKPI:     toKPIDTO(report.MonthKPI),
		Branches:     make([]branchDTO, 0, len(report.Branches)),
		Performance: performanceDTO{
			Branches:   make([]branchPerformanceDTO, 0, len(report.Performance.Branches)),
			TotalGross: report.Performance.TotalGross,
			TotalTons:  report.Performance.TotalTons,
			Leader:     report.Performance.Leader,
			Gap:        report.Performance.Gap,
			Ratio:      report.Performance.Ratio,
		},
		Insights: insightsDTO{
			RevenueLeaders:  nonNil(report.Insights.RevenueLeaders),
			VolumeLeaders:   nonNil(report.Insights.VolumeLeaders),
			Recommendations: nonNil(report.Insights.Recommendations),
			Alerts:          nonNil(report.Insights.Alerts),
		},
		Daily: make([]dailySalesDTO, 0, len(report.Daily)),
		Trend: trendDTO{
			Direction:       string(report.Trend.Direction),
			Slope:           report.Trend.Slope,
			Intercept:       report.Trend.Intercept,
			RSquared:        report.Trend.RSquared,
			Volatility:      report.Trend.Volatility,
			Forecast:        nonNilFloats(report.Trend.Forecast),
			MovingAverage7:  nonNilFloats(report.Trend.MovingAverage7),
			MovingAverage30: nonNilFloats(report.Trend.MovingAverage30),
		},
		Quality: qualityDTO{
			Records:  report.Quality.Records,
			Valid:    report.Quality.Valid(),
			Issues:   nonNil(report.Quality.Issues),
			Warnings: nonNil(report.Quality.Warnings),
		},
		GeneratedAt: report.GeneratedAt.UTC().Format(time.RFC3339Nano),
	}
	for _, b := range report.Branches {
		channels := make(map[string]totalsDTO, len(b.Channels))
		for channel, totals := range b.Channels {
			channels[string(channel)] = totalsDTO(totals)
		}
		dto.Branches = append(dto.Branches, branchDTO{Branch: b.Branch, Channels: channels, Total: totalsDTO(b.Total())})
	}
	for _, p := range report.Performance.Branches {
		dto.Performance.Branches = append(dto.Performance.Branches, branchPerformanceDTO(p))
	}
	for _, d := range report.Daily {
		dto.Daily = append(dto.Daily, dailySalesDTO{Date: d.Date.Format(time.DateOnly), Units: d.Units, Kilos: d.Kilos, Total: d.Total})
	}
	return dto
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func nonNilFloats(values []float64) []float64 {
	if values == nil {
		return []float64{}
	}
	return values
}
