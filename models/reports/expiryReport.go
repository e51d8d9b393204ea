package reports

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/pharmacy_backend/config"
	"github.com/shopspring/decimal"
)

type ExpiryReportResponse struct {
	BatchId      int             `json:"BatchId"`
	MedicineId   int             `json:"MedicineId"`
	MedicineName string          `json:"MedicineName"`
	LotNumber    string          `json:"LotNumber"`
	ExpiryDate   time.Time       `json:"ExpiryDate"`
	RemainingQty decimal.Decimal `json:"RemainingQty"`
	StockValue   decimal.Decimal `json:"StockValue"`
	DaysLeft     int             `json:"DaysLeft"`
}

// GetExpiryReport lists batches with stock expiring within the configured
// window, soonest first, including already-expired stock awaiting write-off.
func GetExpiryReport(ctx context.Context) ([]*ExpiryReportResponse, error) {
	started := time.Now()
	defer logSlowReport(ctx, "expiry", started)

	const cacheKey = "report:expiry"
	if reportCacheEnabled() {
		var cached []*ExpiryReportResponse
		if hit, err := cacheGet(cacheKey, &cached); err == nil && hit {
			return cached, nil
		}
	}

	sql := `
SELECT
    b.id AS batch_id,
    b.medicine_id,
    m.name AS medicine_name,
    b.lot_number,
    b.expiry_date,
    b.remaining_qty,
    b.remaining_qty * b.unit_cost AS stock_value,
    DATEDIFF(b.expiry_date, @now) AS days_left
FROM
    batches b
    JOIN medicines m ON m.id = b.medicine_id
WHERE
    b.is_deleted = 0
    AND b.remaining_qty > 0
    AND b.expiry_date <= @horizon
ORDER BY b.expiry_date ASC, b.id ASC;
`

	now := time.Now().UTC()
	horizon := now.AddDate(0, 0, config.BatchExpiringSoonDays())

	var records []*ExpiryReportResponse
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql,
		map[string]interface{}{"now": now, "horizon": horizon}).
		Scan(&records).Error; err != nil {
		return nil, err
	}
	if reportCacheEnabled() {
		_ = cacheSet(cacheKey, records, reportCacheTTL())
	}
	return records, nil
}
