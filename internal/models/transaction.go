package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Transaction struct {
	InvoiceID   string
	StockCode   string
	Description string
	Quantity    int
	UnitPrice   decimal.Decimal
	InvoiceDate time.Time
	CustomerID  string
	Country     string
	Category    string
	// Rating is zero when the source row carried no usable rating.
	Rating  float64
	Revenue decimal.Decimal
	Segment string
}

type CustomerRFM struct {
	CustomerID  string          `json:"customer_id"`
	RecencyDays int             `json:"recency_days"`
	Frequency   int             `json:"frequency"`
	Monetary    decimal.Decimal `json:"monetary"`
	RScore      int             `json:"r_score"`
	FScore      int             `json:"f_score"`
	MScore      int             `json:"m_score"`
	RFMCode     string          `json:"rfm_code"`
	Segment     string          `json:"segment"`
}

type MonthlyRevenue struct {
	Month   string          `json:"month"`
	Revenue decimal.Decimal `json:"revenue"`
}

type SegmentCount struct {
	Segment string `json:"segment"`
	Count   int    `json:"count"`
}

type ProductRevenue struct {
	Description string          `json:"description"`
	Revenue     decimal.Decimal `json:"revenue"`
}

type CountryRevenue struct {
	Country string          `json:"country"`
	Revenue decimal.Decimal `json:"revenue"`
}

type CategoryRevenue struct {
	Category string          `json:"category"`
	Revenue  decimal.Decimal `json:"revenue"`
}

type Summary struct {
	TotalRevenue  decimal.Decimal `json:"total_revenue"`
	TotalOrders   int             `json:"total_orders"`
	Customers     int             `json:"customers"`
	AvgOrderValue decimal.Decimal `json:"avg_order_value"`
	ProductsSold  int             `json:"products_sold"`
	AvgRating     float64         `json:"avg_rating"`
}

type AggregateResult struct {
	MonthlyRevenue  []MonthlyRevenue  `json:"monthly_revenue"`
	Segments        []SegmentCount    `json:"segments"`
	TopProducts     []ProductRevenue  `json:"top_products"`
	TopCountries    []CountryRevenue  `json:"top_countries"`
	CategoryRevenue []CategoryRevenue `json:"category_revenue"`
	Summary         Summary           `json:"summary"`
	RowCount        int               `json:"row_count"`
}

type FilterOptions struct {
	Categories []string   `json:"categories"`
	Countries  []string   `json:"countries"`
	DateMin    *time.Time `json:"date_min,omitempty"`
	DateMax    *time.Time `json:"date_max,omitempty"`
}
