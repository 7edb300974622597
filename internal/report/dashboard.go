// Package report holds the in-memory aggregation behind the dashboard and
// product statistics endpoints. Aggregators are pure functions over flat
// sale/item rows so they can be tested without a database.
package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/somsri-pos/api/internal/database"
)

const (
	ViewDaily  = "daily"
	ViewYearly = "yearly"
)

// fallbackCategory labels items whose product has no category.
const fallbackCategory = "อื่นๆ"

const topRankSize = 5

// DashboardParams selects the chart window. Year/Month of zero mean the
// current year/month at Now. Now must carry the shop's local zone.
type DashboardParams struct {
	ViewType string
	Year     int
	Month    int
	Now      time.Time
}

func (p DashboardParams) normalize() DashboardParams {
	if p.ViewType != ViewYearly {
		p.ViewType = ViewDaily
	}
	if p.Year == 0 {
		p.Year = p.Now.Year()
	}
	if p.Month == 0 {
		p.Month = int(p.Now.Month())
	}
	return p
}

// Window returns the fetch range for the dashboard query: the chart window
// widened to always include the last 30 days (for the payment and top-seller
// panels) and the current moment.
func (p DashboardParams) Window() (start, end time.Time) {
	p = p.normalize()
	loc := p.Now.Location()

	if p.ViewType == ViewYearly {
		start = time.Date(p.Year, time.January, 1, 0, 0, 0, 0, loc)
		end = time.Date(p.Year, time.December, 31, 23, 59, 59, 0, loc)
	} else {
		start = time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, loc)
		end = start.AddDate(0, 1, 0).Add(-time.Second)
	}

	last30 := p.Now.AddDate(0, 0, -30)
	if last30.Before(start) {
		start = last30
	}
	if p.Now.After(end) {
		end = p.Now
	}
	return start, end
}

// SalesTotals is the lifetime rollup of completed sales.
type SalesTotals struct {
	Amount    decimal.Decimal
	BillCount int64
}

type ChartPoint struct {
	Date   string          `json:"date"`
	Total  decimal.Decimal `json:"total"`
	Cost   decimal.Decimal `json:"cost"`
	Profit decimal.Decimal `json:"profit"`
}

type PaymentStat struct {
	PaymentMethod string          `json:"paymentMethod"`
	Total         decimal.Decimal `json:"total"`
	Count         int64           `json:"count"`
}

type ProductRank struct {
	ProductName string          `json:"productName"`
	TotalQty    int64           `json:"totalQty"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
}

type CategoryRank struct {
	Category    string          `json:"category"`
	TotalQty    int64           `json:"totalQty"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
}

type DashboardData struct {
	TotalSales  decimal.Decimal `json:"totalSales"`
	TotalProfit decimal.Decimal `json:"totalProfit"`
	TotalCost   decimal.Decimal `json:"totalCost"`
	BillCount   int64           `json:"billCount"`
}

type TodaySales struct {
	Date                    time.Time       `json:"date"`
	TotalAmount             decimal.Decimal `json:"totalAmount"`
	TotalCost               decimal.Decimal `json:"totalCost"`
	TotalProfit             decimal.Decimal `json:"totalProfit"`
	BillCount               int64           `json:"billCount"`
	AveragePerBill          decimal.Decimal `json:"averagePerBill"`
	GrowthRate              decimal.Decimal `json:"growthRate"`
	YesterdayTotal          decimal.Decimal `json:"yesterdayTotal"`
	YesterdayBillCount      int64           `json:"yesterdayBillCount"`
	YesterdayAveragePerBill decimal.Decimal `json:"yesterdayAveragePerBill"`
	TopProducts             []ProductRank   `json:"topProducts"`
}

type Dashboard struct {
	DashboardData        DashboardData  `json:"dashboardData"`
	TodaySales           TodaySales     `json:"todaySales"`
	ChartData            []ChartPoint   `json:"chartData"`
	PaymentStats         []PaymentStat  `json:"paymentStats"`
	TopSellingProducts   []ProductRank  `json:"topSellingProducts"`
	TopSellingCategories []CategoryRank `json:"topSellingCategories"`
}

type chartBucket struct {
	total decimal.Decimal
	cost  decimal.Decimal
}

// BuildDashboard aggregates the fetched rows in a single pass. Rows are one
// per sale item; a sale's header fields repeat on every one of its rows, so
// header stats (totals, bill counts, payment mix) are counted once per
// distinct sale ID. TotalCost covers only the fetched window while the
// lifetime totals come from a separate rollup, so TotalProfit is lifetime
// revenue minus windowed cost.
func BuildDashboard(rows []database.SaleItemRow, lifetime SalesTotals, params DashboardParams) Dashboard {
	params = params.normalize()
	loc := params.Now.Location()

	today := midnight(params.Now)
	yesterday := today.AddDate(0, 0, -1)
	last30 := params.Now.AddDate(0, 0, -30)

	// Bucket keys are pre-seeded so a month with no sales still charts a
	// zero point for every day.
	bucketKeys, buckets := seedBuckets(params)

	var (
		todayAmount, yesterdayAmount decimal.Decimal
		todayCost, yesterdayCost     decimal.Decimal
		windowCost                   decimal.Decimal
		todayBills, yesterdayBills   int64
	)
	payments := map[string]*PaymentStat{}
	products := map[string]*ProductRank{}
	categories := map[string]*CategoryRank{}
	seenSales := map[int64]bool{}

	for _, row := range rows {
		saleTime := row.CreatedAt.Time.In(loc)
		saleTotal := toDecimal(row.SaleTotal)
		isToday := !saleTime.Before(today)
		isYesterday := !saleTime.Before(yesterday) && saleTime.Before(today)
		isLast30 := !saleTime.Before(last30)

		if !seenSales[row.SaleID] {
			seenSales[row.SaleID] = true

			if isToday {
				todayAmount = todayAmount.Add(saleTotal)
				todayBills++
			} else if isYesterday {
				yesterdayAmount = yesterdayAmount.Add(saleTotal)
				yesterdayBills++
			}

			if isLast30 {
				method := row.PaymentMethod
				if method == "" {
					method = "other"
				}
				p, ok := payments[method]
				if !ok {
					p = &PaymentStat{PaymentMethod: method}
					payments[method] = p
				}
				p.Total = p.Total.Add(saleTotal)
				p.Count++
			}
		}

		// Rows from sales without items carry null item columns.
		if !row.Quantity.Valid {
			continue
		}

		qty := int64(row.Quantity.Int32)
		subtotal := toDecimal(row.ItemSubtotal)
		itemCost := toDecimal(row.ProductCost).Mul(decimal.NewFromInt(qty))

		if isToday {
			todayCost = todayCost.Add(itemCost)
		}
		if isYesterday {
			yesterdayCost = yesterdayCost.Add(itemCost)
		}
		windowCost = windowCost.Add(itemCost)

		if key, ok := bucketKey(params, saleTime); ok {
			if b, ok := buckets[key]; ok {
				b.total = b.total.Add(subtotal)
				b.cost = b.cost.Add(itemCost)
			}
		}

		if isLast30 {
			name := row.ProductName.String
			p, ok := products[name]
			if !ok {
				p = &ProductRank{ProductName: name}
				products[name] = p
			}
			p.TotalQty += qty
			p.TotalAmount = p.TotalAmount.Add(subtotal)

			cat := row.CategoryName.String
			if cat == "" {
				cat = fallbackCategory
			}
			c, ok := categories[cat]
			if !ok {
				c = &CategoryRank{Category: cat}
				categories[cat] = c
			}
			c.TotalQty += qty
			c.TotalAmount = c.TotalAmount.Add(subtotal)
		}
	}

	chart := make([]ChartPoint, 0, len(bucketKeys))
	for _, key := range bucketKeys {
		b := buckets[key]
		chart = append(chart, ChartPoint{
			Date:   key,
			Total:  b.total,
			Cost:   b.cost,
			Profit: b.total.Sub(b.cost),
		})
	}

	paymentStats := make([]PaymentStat, 0, len(payments))
	for _, p := range payments {
		paymentStats = append(paymentStats, *p)
	}
	sort.Slice(paymentStats, func(i, j int) bool {
		return paymentStats[i].Total.GreaterThan(paymentStats[j].Total)
	})

	topProducts := make([]ProductRank, 0, len(products))
	for _, p := range products {
		topProducts = append(topProducts, *p)
	}
	sort.Slice(topProducts, func(i, j int) bool {
		return topProducts[i].TotalQty > topProducts[j].TotalQty
	})
	if len(topProducts) > topRankSize {
		topProducts = topProducts[:topRankSize]
	}

	topCategories := make([]CategoryRank, 0, len(categories))
	for _, c := range categories {
		topCategories = append(topCategories, *c)
	}
	sort.Slice(topCategories, func(i, j int) bool {
		return topCategories[i].TotalQty > topCategories[j].TotalQty
	})
	if len(topCategories) > topRankSize {
		topCategories = topCategories[:topRankSize]
	}

	growthRate := decimal.Zero
	if yesterdayAmount.IsPositive() {
		growthRate = todayAmount.Sub(yesterdayAmount).Div(yesterdayAmount).Mul(decimal.NewFromInt(100))
	} else if todayAmount.IsPositive() {
		growthRate = decimal.NewFromInt(100)
	}

	avgToday := decimal.Zero
	if todayBills > 0 {
		avgToday = todayAmount.Div(decimal.NewFromInt(todayBills))
	}
	avgYesterday := decimal.Zero
	if yesterdayBills > 0 {
		avgYesterday = yesterdayAmount.Div(decimal.NewFromInt(yesterdayBills))
	}

	return Dashboard{
		DashboardData: DashboardData{
			TotalSales:  lifetime.Amount,
			TotalProfit: lifetime.Amount.Sub(windowCost),
			TotalCost:   windowCost,
			BillCount:   lifetime.BillCount,
		},
		TodaySales: TodaySales{
			Date:                    today,
			TotalAmount:             todayAmount,
			TotalCost:               todayCost,
			TotalProfit:             todayAmount.Sub(todayCost),
			BillCount:               todayBills,
			AveragePerBill:          avgToday,
			GrowthRate:              growthRate,
			YesterdayTotal:          yesterdayAmount,
			YesterdayBillCount:      yesterdayBills,
			YesterdayAveragePerBill: avgYesterday,
			TopProducts:             topProducts,
		},
		ChartData:            chart,
		PaymentStats:         paymentStats,
		TopSellingProducts:   topProducts,
		TopSellingCategories: topCategories,
	}
}

// seedBuckets pre-creates one zeroed bucket per day of the month (daily) or
// per month of the year (yearly), in chart order.
func seedBuckets(params DashboardParams) ([]string, map[string]*chartBucket) {
	var keys []string
	buckets := map[string]*chartBucket{}

	if params.ViewType == ViewYearly {
		for m := 1; m <= 12; m++ {
			key := fmt.Sprintf("%d/%d", m, params.Year)
			keys = append(keys, key)
			buckets[key] = &chartBucket{}
		}
		return keys, buckets
	}

	days := daysInMonth(params.Year, time.Month(params.Month))
	for d := 1; d <= days; d++ {
		key := fmt.Sprintf("%d/%d", d, params.Month)
		keys = append(keys, key)
		buckets[key] = &chartBucket{}
	}
	return keys, buckets
}

func bucketKey(params DashboardParams, t time.Time) (string, bool) {
	if params.ViewType == ViewYearly {
		if t.Year() != params.Year {
			return "", false
		}
		return fmt.Sprintf("%d/%d", int(t.Month()), params.Year), true
	}
	if t.Year() != params.Year || int(t.Month()) != params.Month {
		return "", false
	}
	return fmt.Sprintf("%d/%d", t.Day(), params.Month), true
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func toDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}
