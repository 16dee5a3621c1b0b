// Package sales prices counter sales and summarizes them per branch and product.
package sales

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Channel is the way a product reaches customers.
type Channel string

const (
	ChannelLocal       Channel = "local"
	ChannelDistributor Channel = "distributor"
)

// Document types that change the sign of a sale.
const (
	DocumentCreditNote = "credit_note"
	DocumentDebitNote  = "debit_note"
)

// PaymentFreeSample marks a sale that is handed out without charge.
const PaymentFreeSample = "free_sample"

// ErrUnknownProduct is returned when a product is missing from the catalog.
var ErrUnknownProduct = errors.New("sales: unknown product")

// Product is one catalog entry. Products sold by weight are listed with a
// per-kilo price and KilosPerUnit of 1.
type Product struct {
	Name         string
	Category     string
	Channel      Channel
	Unit         string
	KilosPerUnit float64
	UnitPrice    int64
}

// Catalog indexes products by name.
type Catalog struct {
	products map[string]Product
}

// NewCatalog builds a catalog. Later entries replace earlier ones with the
// same name.
func NewCatalog(products ...Product) Catalog {
	c := Catalog{products: make(map[string]Product, len(products))}
	for _, p := range products {
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			continue
		}
		c.products[p.Name] = p
	}
	return c
}

// DefaultCatalog lists the 15 kg pellet bags.
func DefaultCatalog() Catalog {
	return NewCatalog(
		Product{Name: "Pellet Bolsa 15 Kg (Retiro)", Category: "Pellet", Channel: ChannelLocal, Unit: "bolsas", KilosPerUnit: 15, UnitPrice: 5490},
		Product{Name: "Pellet Bolsa 15 Kg (Despacho)", Category: "Pellet", Channel: ChannelLocal, Unit: "bolsas", KilosPerUnit: 15, UnitPrice: 5990},
		Product{Name: "Pellet Bolsa 15 Kg (Distribuidor)", Category: "Pellet", Channel: ChannelDistributor, Unit: "bolsas", KilosPerUnit: 15, UnitPrice: 4990},
	)
}

// Lookup returns the product called name.
func (c Catalog) Lookup(name string) (Product, bool) {
	p, ok := c.products[strings.TrimSpace(name)]
	return p, ok
}

// Products returns every product ordered by name.
func (c Catalog) Products() []Product {
	out := make([]Product, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Rates holds the currency conversion and the value added tax factor.
type Rates struct {
	// ExchangeRate is pesos per US dollar.
	ExchangeRate float64
	// VATRate is the gross to net factor, 1.19 for a 19% tax.
	VATRate float64
}

// DefaultRates returns the rates used when none are configured.
func DefaultRates() Rates {
	return Rates{ExchangeRate: 945, VATRate: 1.19}
}

// Validate reports rates that would divide by zero or invert signs.
func (r Rates) Validate() error {
	if r.ExchangeRate <= 0 {
		return fmt.Errorf("sales: exchange rate must be positive")
	}
	if r.VATRate < 1 {
		return fmt.Errorf("sales: vat rate must be at least 1")
	}
	return nil
}

// Net removes the tax from a gross amount.
func (r Rates) Net(gross float64) float64 {
	return gross / r.VATRate
}

// USD converts pesos to dollars.
func (r Rates) USD(pesos float64) float64 {
	return pesos / r.ExchangeRate
}

// Financials splits a gross amount into its tax components.
type Financials struct {
	Gross float64
	Net   float64
	VAT   float64
	USD   float64
}

// Financials computes the standard breakdown of gross.
func (r Rates) Financials(gross float64) Financials {
	net := r.Net(gross)
	return Financials{
		Gross: gross,
		Net:   net,
		VAT:   net * (r.VATRate - 1),
		USD:   r.USD(gross),
	}
}

// Entry is a sale as typed at the counter.
type Entry struct {
	Product       string
	DocumentType  string
	PaymentMethod string
	Units         int64
	Discount      int64
}

// Amounts are the stored figures of a priced entry.
type Amounts struct {
	Units     int64
	Kilos     float64
	UnitPrice int64
	Discount  int64
	Net       int64
	VAT       int64
	Total     int64
}

// Price computes the amounts of entry. Discounts apply per unit, free samples
// are worth nothing and credit notes turn every figure negative.
func (c Catalog) Price(entry Entry, rates Rates) (Amounts, error) {
	product, ok := c.Lookup(entry.Product)
	if !ok {
		return Amounts{}, fmt.Errorf("%w: %q", ErrUnknownProduct, entry.Product)
	}

	units := abs(entry.Units)
	amounts := Amounts{
		Units:     units,
		Kilos:     float64(units) * product.KilosPerUnit,
		UnitPrice: product.UnitPrice,
		Discount:  entry.Discount,
	}
	if entry.PaymentMethod != PaymentFreeSample {
		amounts.Total = abs((product.UnitPrice - entry.Discount) * units)
	}
	amounts.Net = int64(math.Round(rates.Net(float64(amounts.Total))))
	amounts.VAT = amounts.Total - amounts.Net

	if entry.DocumentType == DocumentCreditNote {
		amounts.Units = -amounts.Units
		amounts.Kilos = -amounts.Kilos
		amounts.Net = -amounts.Net
		amounts.VAT = -amounts.VAT
		amounts.Total = -amounts.Total
	}
	return amounts, nil
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
