package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/example/staffboard/internal/persistence"
	"github.com/jmoiron/sqlx"
)

type saleRow struct {
	ID             string  `db:"id"`
	SaleDate       string  `db:"sale_date"`
	Branch         string  `db:"branch"`
	Product        string  `db:"product"`
	DocumentType   string  `db:"document_type"`
	DocumentNumber string  `db:"document_number"`
	Units          int64   `db:"units"`
	Kilos          float64 `db:"kilos"`
	UnitPrice      int64   `db:"unit_price"`
	Discount       int64   `db:"discount"`
	Net            int64   `db:"net"`
	VAT            int64   `db:"vat"`
	Total          int64   `db:"total"`
	PaymentMethod  string  `db:"payment_method"`
	CreatedAt      string  `db:"created_at"`
}

func toSaleRow(sale persistence.Sale) saleRow {
	return saleRow{
		ID:             sale.ID,
		SaleDate:       formatDate(sale.Date),
		Branch:         sale.Branch,
		Product:        sale.Product,
		DocumentType:   sale.DocumentType,
		DocumentNumber: sale.DocumentNumber,
		Units:          sale.Units,
		Kilos:          sale.Kilos,
		UnitPrice:      sale.UnitPrice,
		Discount:       sale.Discount,
		Net:            sale.Net,
		VAT:            sale.VAT,
		Total:          sale.Total,
		PaymentMethod:  sale.PaymentMethod,
		CreatedAt:      formatTime(sale.CreatedAt),
	}
}

func (r saleRow) model() (persistence.Sale, error) {
	date, err := parseDate(r.SaleDate)
	if err != nil {
		return persistence.Sale{}, err
	}
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return persistence.Sale{}, err
	}
	return persistence.Sale{
		ID:             r.ID,
		Date:           date,
		Branch:         r.Branch,
		Product:        r.Product,
		DocumentType:   r.DocumentType,
		DocumentNumber: r.DocumentNumber,
		Units:          r.Units,
		Kilos:          r.Kilos,
		UnitPrice:      r.UnitPrice,
		Discount:       r.Discount,
		Net:            r.Net,
		VAT:            r.VAT,
		Total:          r.Total,
		PaymentMethod:  r.PaymentMethod,
		CreatedAt:      created,
	}, nil
}

const saleColumns = `id, sale_date, branch, product, document_type, document_number, units, kilos,
	unit_price, discount, net, vat, total, payment_method, created_at`

// CreateSale inserts a sale. A document number already used for the same
// document type yields persistence.ErrDuplicate.
func (s *Storage) CreateSale(ctx context.Context, sale persistence.Sale) error {
	if sale.ID == "" {
		return fmt.Errorf("%w: sale id is required", persistence.ErrConstraintViolation)
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO sales (`+saleColumns+`)
			VALUES (:id, :sale_date, :branch, :product, :document_type, :document_number, :units, :kilos,
			        :unit_price, :discount, :net, :vat, :total, :payment_method, :created_at)`,
			toSaleRow(sale))
		return err
	})
}

// GetSale retrieves a sale by id.
func (s *Storage) GetSale(ctx context.Context, id string) (persistence.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var row saleRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+saleColumns+` FROM sales WHERE id = ?`, id); err != nil {
		return persistence.Sale{}, mapError(err)
	}
	return row.model()
}

// SearchSales returns the sales matching filter, newest first.
func (s *Storage) SearchSales(ctx context.Context, filter persistence.SaleFilter) ([]persistence.Sale, error) {
	query, args, err := buildSaleSearch(filter)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []saleRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, mapError(err)
	}

	out := make([]persistence.Sale, 0, len(rows))
	for _, row := range rows {
		sale, err := row.model()
		if err != nil {
			return nil, err
		}
		out = append(out, sale)
	}
	return out, nil
}

// buildSaleSearch renders filter as a parameterized query. List filters are
// expanded by sqlx.In so every value stays a bind parameter.
func buildSaleSearch(filter persistence.SaleFilter) (string, []any, error) {
	var (
		clauses []string
		args    []any
	)
	if !filter.From.IsZero() {
		clauses = append(clauses, "sale_date >= ?")
		args = append(args, formatDate(filter.From))
	}
	if !filter.To.IsZero() {
		clauses = append(clauses, "sale_date <= ?")
		args = append(args, formatDate(filter.To))
	}
	for _, list := range []struct {
		column string
		values []string
	}{
		{"branch", filter.Branches},
		{"document_type", filter.DocumentTypes},
		{"product", filter.Products},
	} {
		if len(list.values) == 0 {
			continue
		}
		clauses = append(clauses, list.column+" IN (?)")
		args = append(args, list.values)
	}
	if number := strings.TrimSpace(filter.DocumentNumber); number != "" {
		clauses = append(clauses, "document_number = ?")
		args = append(args, number)
	}

	query := `SELECT ` + saleColumns + ` FROM sales`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY sale_date DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, fmt.Errorf("sqlite: expand sale search: %w", err)
	}
	return query, args, nil
}

type saleTotalRow struct {
	Branch  string  `db:"branch"`
	Product string  `db:"product"`
	Units   int64   `db:"units"`
	Kilos   float64 `db:"kilos"`
	Net     int64   `db:"net"`
	Total   int64   `db:"total"`
}

// SaleTotals sums sales per branch and product over the inclusive day range,
// ordered by branch then product.
func (s *Storage) SaleTotals(ctx context.Context, from, to time.Time) ([]persistence.SaleTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []saleTotalRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT branch, product, SUM(units) AS units, TOTAL(kilos) AS kilos, SUM(net) AS net, SUM(total) AS total
		FROM sales WHERE sale_date BETWEEN ? AND ?
		GROUP BY branch, product ORDER BY branch, product`, formatDate(from), formatDate(to))
	if err != nil {
		return nil, mapError(err)
	}

	out := make([]persistence.SaleTotal, 0, len(rows))
	for _, row := range rows {
		out = append(out, persistence.SaleTotal(row))
	}
	return out, nil
}

type dailySaleRow struct {
	SaleDate string  `db:"sale_date"`
	Units    int64   `db:"units"`
	Kilos    float64 `db:"kilos"`
	Total    int64   `db:"total"`
}

// DailySaleTotals sums sales per day over the inclusive range. Days without
// sales are absent.
func (s *Storage) DailySaleTotals(ctx context.Context, from, to time.Time) ([]persistence.DailySaleTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []dailySaleRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT sale_date, SUM(units) AS units, TOTAL(kilos) AS kilos, SUM(total) AS total
		FROM sales WHERE sale_date BETWEEN ? AND ?
		GROUP BY sale_date ORDER BY sale_date`, formatDate(from), formatDate(to))
	if err != nil {
		return nil, mapError(err)
	}

	out := make([]persistence.DailySaleTotal, 0, len(rows))
	for _, row := range rows {
		date, err := parseDate(row.SaleDate)
		if err != nil {
			return nil, err
		}
		out = append(out, persistence.DailySaleTotal{Date: date, Units: row.Units, Kilos: row.Kilos, Total: row.Total})
	}
	return out, nil
}
