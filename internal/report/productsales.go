package report

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/somsri-pos/api/internal/database"
)

const (
	RangeToday      = "today"
	RangeYesterday  = "yesterday"
	RangeLast7Days  = "last7days"
	RangeLast30Days = "last30days"
)

const (
	fallbackBarcode     = "-"
	fallbackProductName = "Unknown"
)

// ProductSalesWindow maps a named date range onto a fetch interval relative
// to now (which must carry the shop's local zone). Unknown ranges fall back
// to today.
func ProductSalesWindow(dateRange string, now time.Time) (start, end time.Time) {
	startOfDay := midnight(now)
	switch dateRange {
	case RangeYesterday:
		return startOfDay.AddDate(0, 0, -1), startOfDay
	case RangeLast7Days:
		return startOfDay.AddDate(0, 0, -7), now
	case RangeLast30Days:
		return startOfDay.AddDate(0, 0, -30), now
	default:
		return startOfDay, now
	}
}

type ProductStat struct {
	ID          int64           `json:"id"`
	Barcode     string          `json:"barcode"`
	Name        string          `json:"name"`
	SoldQty     int64           `json:"soldQty"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	NetProfit   decimal.Decimal `json:"netProfit"`
}

type ProductSalesPage struct {
	Data     []ProductStat `json:"data"`
	Total    int           `json:"total"`
	Limit    int           `json:"limit"`
	Offset   int           `json:"offset"`
	NextPage *int          `json:"nextPage"`
}

// BuildProductSales folds the fetched rows into per-product totals, ranks
// them by revenue, and pages the result. Lines without a catalog product
// are grouped under ID 0. NextPage is the next offset, or null when the
// requested page reaches the end of the ranking.
func BuildProductSales(rows []database.SaleItemRow, limit, offset int) ProductSalesPage {
	stats := map[int64]*ProductStat{}
	var order []int64

	for _, row := range rows {
		if !row.Quantity.Valid {
			continue
		}

		productID := row.ProductID.Int64
		stat, ok := stats[productID]
		if !ok {
			barcode := row.Barcode.String
			if barcode == "" {
				barcode = fallbackBarcode
			}
			name := row.ProductName.String
			if name == "" {
				name = fallbackProductName
			}
			stat = &ProductStat{ID: productID, Barcode: barcode, Name: name}
			stats[productID] = stat
			order = append(order, productID)
		}

		qty := int64(row.Quantity.Int32)
		amount := toDecimal(row.ItemSubtotal)
		cost := toDecimal(row.ProductCost).Mul(decimal.NewFromInt(qty))

		stat.SoldQty += qty
		stat.TotalAmount = stat.TotalAmount.Add(amount)
		stat.NetProfit = stat.NetProfit.Add(amount.Sub(cost))
	}

	ranked := make([]ProductStat, 0, len(order))
	for _, id := range order {
		ranked = append(ranked, *stats[id])
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].TotalAmount.GreaterThan(ranked[j].TotalAmount)
	})

	total := len(ranked)
	if offset > total {
		offset = total
	}
	high := offset + limit
	if high > total {
		high = total
	}
	page := ranked[offset:high]

	var nextPage *int
	if offset+limit < total {
		n := offset + limit
		nextPage = &n
	}

	return ProductSalesPage{
		Data:     page,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
		NextPage: nextPage,
	}
}
