package reports

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/pharmacy_backend/config"
	"github.com/shopspring/decimal"
)

type StockSummaryResponse struct {
	MedicineId    int             `json:"MedicineId"`
	MedicineName  string          `json:"MedicineName"`
	Unit          string          `json:"Unit"`
	BatchCount    int             `json:"BatchCount"`
	TotalOnHand   decimal.Decimal `json:"TotalOnHand"`
	StockValue    decimal.Decimal `json:"StockValue"`
	EarliestLot   *string         `json:"EarliestLot,omitempty"`
	EarliestBatch *int            `json:"EarliestBatch,omitempty"`
}

// GetStockSummaryReport aggregates on-hand quantity and value per medicine
// from the batch projections, with the next batch to leave under earliest
// expiry first.
func GetStockSummaryReport(ctx context.Context) ([]*StockSummaryResponse, error) {
	started := time.Now()
	defer logSlowReport(ctx, "stock_summary", started)

	const cacheKey = "report:stock-summary"
	if reportCacheEnabled() {
		var cached []*StockSummaryResponse
		if hit, err := cacheGet(cacheKey, &cached); err == nil && hit {
			return cached, nil
		}
	}

	sql := `
SELECT
    m.id AS medicine_id,
    m.name AS medicine_name,
    m.unit,
    bt.batch_count,
    bt.total_on_hand,
    bt.stock_value,
    nb.lot_number AS earliest_lot,
    nb.id AS earliest_batch
FROM
    medicines m
    JOIN (
        SELECT
            medicine_id,
            COUNT(id) AS batch_count,
            SUM(remaining_qty) AS total_on_hand,
            SUM(remaining_qty * unit_cost) AS stock_value
        FROM batches
        WHERE is_deleted = 0
        GROUP BY medicine_id
    ) AS bt ON bt.medicine_id = m.id
    LEFT JOIN batches nb ON nb.id = (
        SELECT id FROM batches
        WHERE medicine_id = m.id AND is_deleted = 0 AND remaining_qty > 0
        ORDER BY expiry_date ASC, id ASC
        LIMIT 1
    )
WHERE
    m.is_deleted = 0
ORDER BY m.name;
`

	var records []*StockSummaryResponse
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql).Scan(&records).Error; err != nil {
		return nil, err
	}
	if reportCacheEnabled() {
		_ = cacheSet(cacheKey, records, reportCacheTTL())
	}
	return records, nil
}
