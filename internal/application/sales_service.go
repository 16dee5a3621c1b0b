package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/example/staffboard/internal/persistence"
	"github.com/example/staffboard/internal/sales"
)

const (
	maxSearchDays         = 366
	defaultSearchLimit    = 500
	maxSearchLimit        = 5000
	maxDocumentNumberLen  = 20
	defaultForecastPeriod = 5

	defaultReportCacheSize = 32
	defaultReportCacheTTL  = 5 * time.Minute
)

// SalesRepository captures the persistence operations needed by the service.
type SalesRepository interface {
	CreateSale(ctx context.Context, sale Sale) (Sale, error)
	SearchSales(ctx context.Context, query SalesQuery) ([]Sale, error)
	SalesTotals(ctx context.Context, from, to time.Time) ([]sales.Line, error)
	DailySales(ctx context.Context, from, to time.Time) ([]DailySales, error)
}

// SalesServiceConfig carries the business rules of the sales ledger.
type SalesServiceConfig struct {
	// Catalog prices entries. An empty catalog uses sales.DefaultCatalog.
	Catalog sales.Catalog
	// Rates converts and splits amounts. Zero rates use sales.DefaultRates.
	Rates sales.Rates
	// BusinessStart is the first day sales may be recorded or reported.
	BusinessStart time.Time
	// Branches always appear in branch breakdowns.
	Branches []string
	// Location decides which calendar day "today" is.
	Location     *time.Location
	ForecastDays int
	CacheSize    int
	CacheTTL     time.Duration
}

// SalesService records counter sales and builds their reports.
type SalesService struct {
	repo        SalesRepository
	catalog     sales.Catalog
	rates       sales.Rates
	start       time.Time
	branches    []string
	location    *time.Location
	forecast    int
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger

	// cacheMu orders report fills against new sales, as in EventService.
	cacheMu    sync.Mutex
	generation uint64
	cache      *expirable.LRU[string, SalesReport]
}

// NewSalesService constructs a sales service.
func NewSalesService(repo SalesRepository, idGenerator func() string, now func() time.Time, cfg SalesServiceConfig, logger *slog.Logger) *SalesService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	catalog := cfg.Catalog
	if len(catalog.Products()) == 0 {
		catalog = sales.DefaultCatalog()
	}
	rates := cfg.Rates
	if rates == (sales.Rates{}) {
		rates = sales.DefaultRates()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	forecast := cfg.ForecastDays
	if forecast <= 0 {
		forecast = defaultForecastPeriod
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = defaultReportCacheSize
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultReportCacheTTL
	}
	var start time.Time
	if !cfg.BusinessStart.IsZero() {
		y, m, d := cfg.BusinessStart.Date()
		start = time.Date(y, m, d, 0, 0, 0, 0, loc)
	}
	return &SalesService{
		repo:        repo,
		catalog:     catalog,
		rates:       rates,
		start:       start,
		branches:    append([]string(nil), cfg.Branches...),
		location:    loc,
		forecast:    forecast,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
		cache:       expirable.NewLRU[string, SalesReport](size, nil, ttl),
	}
}

func (s *SalesService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "SalesService", operation, attrs...)
}

// Catalog returns the products the service prices.
func (s *SalesService) Catalog() []sales.Product {
	if s == nil {
		return nil
	}
	return s.catalog.Products()
}

// RecordSale validates, prices and stores a sale.
func (s *SalesService) RecordSale(ctx context.Context, input SaleInput) (sale Sale, err error) {
	if s == nil {
		err = fmt.Errorf("SalesService is nil")
		return
	}

	logger := s.loggerWith(ctx, "RecordSale", "branch", input.Branch)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to record sale", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("sale_id", sale.ID, "total", sale.Total).InfoContext(ctx, "sale recorded")
	}()

	if s.repo == nil {
		err = fmt.Errorf("sales repository not configured")
		return
	}

	input = normalizeSaleInput(input, s.location)
	if vErr := s.validateSaleInput(input); vErr.HasErrors() {
		err = vErr
		return
	}

	amounts, pErr := s.catalog.Price(sales.Entry{
		Product:       input.Product,
		DocumentType:  input.DocumentType,
		PaymentMethod: input.PaymentMethod,
		Units:         input.Units,
		Discount:      input.Discount,
	}, s.rates)
	if pErr != nil {
		vErr := &ValidationError{}
		vErr.add("product", "product is not in the catalog")
		err = vErr
		return
	}

	sale, err = s.repo.CreateSale(ctx, Sale{
		ID:             s.idGenerator(),
		Date:           input.Date,
		Branch:         input.Branch,
		Product:        input.Product,
		DocumentType:   input.DocumentType,
		DocumentNumber: input.DocumentNumber,
		PaymentMethod:  input.PaymentMethod,
		Amounts:        amounts,
		CreatedAt:      s.now(),
	})
	if err != nil {
		err = mapSaleRepoError(err)
		return
	}
	s.invalidate()
	return
}

// SearchSales returns the sales matching query, newest first.
func (s *SalesService) SearchSales(ctx context.Context, query SalesQuery) ([]Sale, error) {
	if s == nil {
		return nil, fmt.Errorf("SalesService is nil")
	}
	if s.repo == nil {
		return nil, fmt.Errorf("sales repository not configured")
	}

	query = normalizeSalesQuery(query, s.location)
	if vErr := validateSalesQuery(query); vErr.HasErrors() {
		return nil, vErr
	}

	found, err := s.repo.SearchSales(ctx, query)
	if err != nil {
		s.loggerWith(ctx, "SearchSales").ErrorContext(ctx, "failed to search sales", "error", err, "error_kind", ErrorKind(err))
		return nil, mapSaleRepoError(err)
	}
	return found, nil
}

// Report analyzes the sales of the inclusive day range. Reports are cached
// until a sale is recorded or the cache entry expires.
func (s *SalesService) Report(ctx context.Context, from, to time.Time) (SalesReport, error) {
	if s == nil {
		return SalesReport{}, fmt.Errorf("SalesService is nil")
	}
	if s.repo == nil {
		return SalesReport{}, fmt.Errorf("sales repository not configured")
	}

	from, to = s.day(from), s.day(to)
	if vErr := s.validateReportRange(from, to); vErr.HasErrors() {
		return SalesReport{}, vErr
	}

	key := from.Format(persistence.DateLayout) + "|" + to.Format(persistence.DateLayout)
	if cached, ok := s.cache.Get(key); ok {
		return cached, nil
	}

	generation := s.currentGeneration()
	report, err := s.buildReport(ctx, from, to)
	if err != nil {
		s.loggerWith(ctx, "Report", "range", key).ErrorContext(ctx, "failed to build sales report", "error", err, "error_kind", ErrorKind(err))
		return SalesReport{}, err
	}
	s.store(key, report, generation)
	return report, nil
}

func (s *SalesService) buildReport(ctx context.Context, from, to time.Time) (SalesReport, error) {
	lines, err := s.repo.SalesTotals(ctx, from, to)
	if err != nil {
		return SalesReport{}, mapSaleRepoError(err)
	}
	monthFrom, monthTo := sales.MonthBounds(from, to)
	monthLines, err := s.repo.SalesTotals(ctx, monthFrom, monthTo)
	if err != nil {
		return SalesReport{}, mapSaleRepoError(err)
	}
	days, err := s.repo.DailySales(ctx, from, to)
	if err != nil {
		return SalesReport{}, mapSaleRepoError(err)
	}

	report := SalesReport{
		From:        from,
		To:          to,
		MonthFrom:   monthFrom,
		MonthTo:     monthTo,
		Rates:       s.rates,
		Period:      sales.Summarize(lines, s.catalog, s.rates),
		Month:       sales.Summarize(monthLines, s.catalog, s.rates),
		Branches:    sales.ByBranch(lines, s.catalog, s.branches...),
		Quality:     sales.Validate(lines),
		Daily:       fillDailySales(days, from, to),
		GeneratedAt: s.now(),
	}
	report.PeriodKPI = report.Period.KPI(s.rates)
	report.MonthKPI = report.Month.KPI(s.rates)
	report.Financials = s.rates.Financials(float64(report.PeriodKPI.RevenueCLP))
	report.Performance = sales.Compare(report.Branches)
	report.Insights = report.Period.Insights()

	series := make([]float64, 0, len(report.Daily))
	for _, d := range report.Daily {
		series = append(series, float64(d.Total))
	}
	report.Trend = sales.AnalyzeTrend(series, s.forecast)
	return report, nil
}

// fillDailySales returns one entry per day of the range, zero when nothing
// sold that day.
func fillDailySales(days []DailySales, from, to time.Time) []DailySales {
	byDay := make(map[string]DailySales, len(days))
	for _, d := range days {
		byDay[d.Date.Format(persistence.DateLayout)] = d
	}
	calendar := sales.Days(from, to)
	out := make([]DailySales, 0, len(calendar))
	for _, day := range calendar {
		entry := byDay[day.Format(persistence.DateLayout)]
		entry.Date = day
		out = append(out, entry)
	}
	return out
}

func (s *SalesService) currentGeneration() uint64 {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.generation
}

func (s *SalesService) store(key string, report SalesReport, generation uint64) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.generation != generation {
		return
	}
	s.cache.Add(key, report)
}

func (s *SalesService) invalidate() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.generation++
	s.cache.Purge()
}

// day maps t to midnight of its calendar date in the service location.
func (s *SalesService) day(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.location)
}

func (s *SalesService) today() time.Time {
	return sales.Day(s.now().In(s.location))
}

func (s *SalesService) validateReportRange(from, to time.Time) *ValidationError {
	vErr := &ValidationError{}
	if from.IsZero() {
		vErr.add("from", "from is required")
	}
	if to.IsZero() {
		vErr.add("to", "to is required")
	}
	if vErr.HasErrors() {
		return vErr
	}

	switch err := sales.ValidateRange(from, to, s.start, s.today()); {
	case err == nil:
	case errors.Is(err, sales.ErrBeforeBusinessStart):
		vErr.add("from", fmt.Sprintf("from must not be before %s", s.start.Format(persistence.DateLayout)))
	case errors.Is(err, sales.ErrRangeOrder):
		vErr.add("to", "to must not be before from")
	case errors.Is(err, sales.ErrFutureRange):
		vErr.add("to", "to must not be in the future")
	case errors.Is(err, sales.ErrRangeTooLong):
		vErr.add("to", fmt.Sprintf("range must not exceed %d days", sales.MaxReportDays))
	default:
		vErr.add("to", err.Error())
	}
	return vErr
}

func normalizeSaleInput(input SaleInput, loc *time.Location) SaleInput {
	input.Branch = strings.TrimSpace(input.Branch)
	input.Product = strings.TrimSpace(input.Product)
	input.DocumentType = normalizeCode(input.DocumentType)
	input.DocumentNumber = strings.TrimSpace(input.DocumentNumber)
	input.PaymentMethod = normalizeCode(input.PaymentMethod)
	if !input.Date.IsZero() {
		y, m, d := input.Date.Date()
		input.Date = time.Date(y, m, d, 0, 0, 0, 0, loc)
	}
	return input
}

// normalizeCode lower-cases a label and joins its words with underscores, so
// "Credit Note" and "credit_note" match.
func normalizeCode(value string) string {
	return strings.Join(strings.Fields(strings.ToLower(value)), "_")
}

func (s *SalesService) validateSaleInput(input SaleInput) *ValidationError {
	vErr := &ValidationError{}

	switch {
	case input.Date.IsZero():
		vErr.add("date", "date is required")
	case !s.start.IsZero() && input.Date.Before(s.start):
		vErr.add("date", fmt.Sprintf("date must not be before %s", s.start.Format(persistence.DateLayout)))
	case input.Date.After(s.today()):
		vErr.add("date", "date must not be in the future")
	}
	if input.Branch == "" {
		vErr.add("branch", "branch is required")
	}
	product, known := s.catalog.Lookup(input.Product)
	switch {
	case input.Product == "":
		vErr.add("product", "product is required")
	case !known:
		vErr.add("product", "product is not in the catalog")
	}
	if input.Units <= 0 {
		vErr.add("units", "units must be a positive number")
	}
	switch {
	case input.Discount < 0:
		vErr.add("discount", "discount must not be negative")
	case known && input.Discount > product.UnitPrice:
		vErr.add("discount", "discount must not exceed the unit price")
	}
	if msg := documentNumberProblem(input.DocumentNumber); msg != "" {
		vErr.add("document_number", msg)
	}
	return vErr
}

func documentNumberProblem(number string) string {
	if number == "" {
		return ""
	}
	if len(number) > maxDocumentNumberLen {
		return fmt.Sprintf("document number must be at most %d digits", maxDocumentNumberLen)
	}
	for _, r := range number {
		if r < '0' || r > '9' {
			return "document number must contain digits only"
		}
	}
	return ""
}

func normalizeSalesQuery(query SalesQuery, loc *time.Location) SalesQuery {
	trimAll := func(values []string, normalize func(string) string) []string {
		var out []string
		for _, v := range values {
			if v = normalize(v); v != "" {
				out = append(out, v)
			}
		}
		return out
	}
	query.Branches = trimAll(query.Branches, strings.TrimSpace)
	query.Products = trimAll(query.Products, strings.TrimSpace)
	query.DocumentTypes = trimAll(query.DocumentTypes, normalizeCode)
	query.DocumentNumber = strings.TrimSpace(query.DocumentNumber)
	for _, t := range []*time.Time{&query.From, &query.To} {
		if !t.IsZero() {
			y, m, d := t.Date()
			*t = time.Date(y, m, d, 0, 0, 0, 0, loc)
		}
	}
	if query.Limit == 0 {
		query.Limit = defaultSearchLimit
	}
	return query
}

func validateSalesQuery(query SalesQuery) *ValidationError {
	vErr := &ValidationError{}
	if query.From.IsZero() {
		vErr.add("from", "from is required")
	}
	if query.To.IsZero() {
		vErr.add("to", "to is required")
	}
	if !query.From.IsZero() && !query.To.IsZero() {
		if query.To.Before(query.From) {
			vErr.add("to", "to must not be before from")
		} else if sales.DaysBetween(query.From, query.To) > maxSearchDays {
			vErr.add("to", fmt.Sprintf("range must not exceed %d days", maxSearchDays))
		}
	}
	if msg := documentNumberProblem(query.DocumentNumber); msg != "" {
		vErr.add("document_number", msg)
	}
	if query.Limit < 0 || query.Limit > maxSearchLimit {
		vErr.add("limit", fmt.Sprintf("limit must be between 1 and %d", maxSearchLimit))
	}
	return vErr
}

func mapSaleRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrDuplicate) {
		return fmt.Errorf("%w: document number already recorded", ErrAlreadyExists)
	}
	if errors.Is(err, persistence.ErrConstraintViolation) {
		vErr := &ValidationError{}
		vErr.add("sale", "sale violates storage constraints")
		return vErr
	}
	return err
}
