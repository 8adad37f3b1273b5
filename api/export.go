/*
export.go - revenue reporting and spreadsheet export

PURPOSE:
  Aggregates treatments, medicine sales, and loyalty activity over a date
  range into a revenue summary, served as JSON or as a downloadable XLSX
  workbook for the front desk.

SEE ALSO:
  - handlers.go: shared helpers
*/
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/brightsmile/clinic-engine/clinic"
)

// revenueReport is the aggregate plus the rows that produced it, so the
// XLSX export can include detail sheets without re-querying.
type revenueReport struct {
	summary RevenueSummaryDTO
	records []clinic.ClinicalRecord
	sales   []clinic.MedicineSale
}

// RevenueSummary returns aggregate revenue for a date range.
// GET /api/reports/summary?from=2026-08-01&to=2026-08-31
func (h *Handler) RevenueSummary(w http.ResponseWriter, r *http.Request) {
	report, ok := h.buildRevenueReport(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, report.summary)
}

// ExportRevenueReport serves the same range as an XLSX workbook with a
// summary sheet and per-row detail sheets.
// GET /api/reports/export?from=...&to=...
func (h *Handler) ExportRevenueReport(w http.ResponseWriter, r *http.Request) {
	report, ok := h.buildRevenueReport(w, r)
	if !ok {
		return
	}

	f, err := buildRevenueWorkbook(report)
	if err != nil {
		h.Logger.Error("workbook generation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to generate report", err)
		return
	}
	defer f.Close()

	filename := fmt.Sprintf("revenue_%s_%s.xlsx", report.summary.From, report.summary.To)
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, filename))
	if err := f.Write(w); err != nil {
		h.Logger.Error("report write failed", zap.Error(err))
	}
}

func (h *Handler) buildRevenueReport(w http.ResponseWriter, r *http.Request) (*revenueReport, bool) {
	q := r.URL.Query()
	from, err := time.Parse("2006-01-02", q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or missing from date (use YYYY-MM-DD)", err)
		return nil, false
	}
	toDay, err := time.Parse("2006-01-02", q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or missing to date (use YYYY-MM-DD)", err)
		return nil, false
	}
	if toDay.Before(from) {
		writeError(w, http.StatusBadRequest, "to must not be before from", nil)
		return nil, false
	}
	// Range is inclusive of the whole end day.
	to := toDay.Add(24*time.Hour - time.Second)

	ctx := r.Context()
	records, err := h.Store.ListRecordsInRange(ctx, from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load treatments", err)
		return nil, false
	}
	sales, err := h.Store.ListSalesInRange(ctx, from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load sales", err)
		return nil, false
	}
	txs, err := h.Store.ListLoyaltyTransactionsInRange(ctx, from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load loyalty activity", err)
		return nil, false
	}

	treatmentRevenue := decimal.Zero
	for _, rec := range records {
		treatmentRevenue = treatmentRevenue.Add(rec.Cost)
	}
	saleRevenue := decimal.Zero
	for _, s := range sales {
		saleRevenue = saleRevenue.Add(s.Total)
	}
	var earned, redeemed int64
	for _, tx := range txs {
		switch tx.Type {
		case clinic.LoyaltyEarned:
			earned += tx.Points
		case clinic.LoyaltyRedeemed:
			redeemed += -tx.Points
		}
	}

	return &revenueReport{
		summary: RevenueSummaryDTO{
			From:             q.Get("from"),
			To:               q.Get("to"),
			Currency:         h.Currency,
			TreatmentCount:   len(records),
			TreatmentRevenue: treatmentRevenue.String(),
			SaleCount:        len(sales),
			SaleRevenue:      saleRevenue.String(),
			TotalRevenue:     treatmentRevenue.Add(saleRevenue).String(),
			PointsEarned:     earned,
			PointsRedeemed:   redeemed,
		},
		records: records,
		sales:   sales,
	}, true
}

// =============================================================================
// XLSX GENERATION
// =============================================================================

var treatmentSheetHeader = []string{"Date", "Patient ID", "Description", "Teeth", "Cost"}

var saleSheetHeader = []string{"Date", "Patient ID", "Medicine ID", "Quantity", "Unit Price", "Total"}

func buildRevenueWorkbook(report *revenueReport) (*excelize.File, error) {
	f := excelize.NewFile()

	const summarySheet = "Summary"
	index, err := f.NewSheet(summarySheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create summary sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}

	s := report.summary
	summaryRows := [][2]any{
		{"Period", s.From + " to " + s.To},
		{"Currency", s.Currency},
		{"Treatments", s.TreatmentCount},
		{"Treatment revenue", s.TreatmentRevenue},
		{"Medicine sales", s.SaleCount},
		{"Sale revenue", s.SaleRevenue},
		{"Total revenue", s.TotalRevenue},
		{"Points earned", s.PointsEarned},
		{"Points redeemed", s.PointsRedeemed},
	}
	for i, row := range summaryRows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetCellValue(summarySheet, cell, row[0]); err != nil {
			f.Close()
			return nil, fmt.Errorf("set summary label: %w", err)
		}
		cell, _ = excelize.CoordinatesToCellName(2, i+1)
		if err := f.SetCellValue(summarySheet, cell, row[1]); err != nil {
			f.Close()
			return nil, fmt.Errorf("set summary value: %w", err)
		}
	}
	f.SetColWidth(summarySheet, "A", "A", 22)
	f.SetColWidth(summarySheet, "B", "B", 28)

	treatmentRows := make([][]any, 0, len(report.records))
	for _, rec := range report.records {
		treatmentRows = append(treatmentRows, []any{
			rec.Date.Format("2006-01-02"),
			string(rec.PatientID),
			rec.Description,
			len(rec.Teeth),
			rec.Cost.String(),
		})
	}
	if err := writeDetailSheet(f, "Treatments", treatmentSheetHeader, treatmentRows, headerStyle); err != nil {
		f.Close()
		return nil, err
	}

	saleRows := make([][]any, 0, len(report.sales))
	for _, sale := range report.sales {
		saleRows = append(saleRows, []any{
			sale.Date.Format("2006-01-02"),
			string(sale.PatientID),
			string(sale.MedicineID),
			sale.Quantity,
			sale.UnitPrice.String(),
			sale.Total.String(),
		})
	}
	if err := writeDetailSheet(f, "Sales", saleSheetHeader, saleRows, headerStyle); err != nil {
		f.Close()
		return nil, err
	}

	return f, nil
}

func writeDetailSheet(f *excelize.File, name string, headers []string, rows [][]any, headerStyle int) error {
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}
	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("convert coordinates: %w", err)
		}
		if err := f.SetCellValue(name, cell, header); err != nil {
			return fmt.Errorf("set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(name, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("set header style: %w", err)
		}
	}
	for i, row := range rows {
		for col, value := range row {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return fmt.Errorf("convert coordinates: %w", err)
			}
			if err := f.SetCellValue(name, cell, value); err != nil {
				return fmt.Errorf("set cell %s: %w", cell, err)
			}
		}
	}
	return nil
}
