// Package audit exports bookings to spreadsheets.
package audit

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"labreserve/internal/model"
)

// BookingSource lists bookings starting within [from, to) with requester and
// facility loaded.
type BookingSource interface {
	ListBookingsBetween(ctx context.Context, from, to time.Time) ([]model.Booking, error)
}

const (
	bookingsSheet = "Bookings"
	summarySheet  = "Summary"
)

var bookingColumns = []string{"ID", "Facility", "Requester", "Start (UTC)", "End (UTC)", "Status", "Calendar ref", "Created (UTC)"}

// Exporter writes booking workbooks.
type Exporter struct {
	source BookingSource
}

func NewExporter(source BookingSource) *Exporter {
	return &Exporter{source: source}
}

// Export writes an xlsx workbook of the bookings starting within
// [from, to) to w. It returns the number of bookings written.
func (e *Exporter) Export(ctx context.Context, from, to time.Time, w io.Writer) (int, error) {
	bookings, err := e.source.ListBookingsBetween(ctx, from, to)
	if err != nil {
		return 0, err
	}

	wb := newWorkbook()
	defer wb.Close()

	if err := wb.addSheet(bookingsSheet); err != nil {
		return 0, err
	}
	if err := wb.writeHeader(bookingColumns); err != nil {
		return 0, err
	}

	perFacility := make(map[string][2]int)
	for _, b := range bookings {
		facility, requester := facilityName(b), requesterName(b)
		var ref string
		if b.ExternalCalendarRef != nil {
			ref = *b.ExternalCalendarRef
		}
		row := []interface{}{
			b.ID, facility, requester,
			b.Start.UTC().Format(time.RFC3339), b.End.UTC().Format(time.RFC3339),
			string(b.Status), ref, b.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := wb.writeRow(row); err != nil {
			return 0, err
		}

		counts := perFacility[facility]
		if b.Active() {
			counts[0]++
		} else {
			counts[1]++
		}
		perFacility[facility] = counts
	}

	if err := wb.addSheet(summarySheet); err != nil {
		return 0, err
	}
	if err := wb.writeHeader([]string{"Facility", "Active", "Cancelled"}); err != nil {
		return 0, err
	}
	names := make([]string, 0, len(perFacility))
	for name := range perFacility {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		counts := perFacility[name]
		if err := wb.writeRow([]interface{}{name, counts[0], counts[1]}); err != nil {
			return 0, err
		}
	}

	if err := wb.file.Write(w); err != nil {
		return 0, fmt.Errorf("write workbook: %w", err)
	}
	return len(bookings), nil
}

func facilityName(b model.Booking) string {
	if b.Facility != nil {
		return b.Facility.Name
	}
	return fmt.Sprintf("facility #%d", b.FacilityID)
}

func requesterName(b model.Booking) string {
	if b.Requester != nil {
		return b.Requester.Name
	}
	return fmt.Sprintf("user #%d", b.RequesterID)
}

// workbook writes sheets row by row.
type workbook struct {
	file       *excelize.File
	sheet      string
	currentRow int
}

func newWorkbook() *workbook {
	return &workbook{file: excelize.NewFile()}
}

func (w *workbook) addSheet(name string) error {
	if w.sheet == "" {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet %s: %w", name, err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}
	w.sheet = name
	w.currentRow = 1
	return nil
}

func (w *workbook) writeHeader(columns []string) error {
	row := make([]interface{}, len(columns))
	for i, c := range columns {
		row[i] = c
	}
	if err := w.writeRow(row); err != nil {
		return err
	}

	if style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		start, _ := excelize.CoordinatesToCellName(1, w.currentRow-1)
		end, _ := excelize.CoordinatesToCellName(len(columns), w.currentRow-1)
		_ = w.file.SetCellStyle(w.sheet, start, end, style)
	}
	return nil
}

func (w *workbook) writeRow(values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, w.currentRow)
	if err != nil {
		return err
	}
	if err := w.file.SetSheetRow(w.sheet, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", w.currentRow, err)
	}
	w.currentRow++
	return nil
}

func (w *workbook) Close() error {
	return w.file.Close()
}
