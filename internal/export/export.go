package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"consultbot/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	BookingsSheet = "Bookings"
	ScheduleSheet = "Schedule"
)

var bookingHeaders = []string{
	"Booking ID", "Status", "Date", "Time", "Service", "Consultant",
	"Client", "Email", "Phone", "Price", "Payment ID", "Created At",
}

// Build создает книгу с листом бронирований и сеткой расписания по консультантам
func Build(bookings []*models.Booking) (*excelize.File, error) {
	sorted := make([]*models.Booking, 0, len(bookings))
	for _, b := range bookings {
		if b != nil {
			sorted = append(sorted, b)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].Date.Before(sorted[j].Date)
		}
		if sorted[i].Slot.Time != sorted[j].Slot.Time {
			return sorted[i].Slot.Time < sorted[j].Slot.Time
		}
		return sorted[i].ID < sorted[j].ID
	})

	f := excelize.NewFile()

	index, err := f.NewSheet(BookingsSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	if err := writeBookingRows(f, sorted); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.NewSheet(ScheduleSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	writeSchedule(f, sorted)

	// Удаляем стандартный лист
	_ = f.DeleteSheet("Sheet1")
	return f, nil
}

// WriteBookings writes the workbook to w.
func WriteBookings(w io.Writer, bookings []*models.Booking) error {
	f, err := Build(bookings)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

// SaveBookings writes the workbook into dir and returns the file path.
func SaveBookings(dir string, bookings []*models.Booking, now time.Time) (string, error) {
	// Создаем папку для экспорта, если не существует
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f, err := Build(bookings)
	if err != nil {
		return "", err
	}
	defer f.Close()

	filePath := filepath.Join(dir, fmt.Sprintf("bookings_%s.xlsx", now.Format("2006-01-02_150405")))
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}
	return filePath, nil
}

func writeBookingRows(f *excelize.File, bookings []*models.Booking) error {
	for i, h := range bookingHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(BookingsSheet, cell, h)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err == nil {
		lastHeader, _ := excelize.CoordinatesToCellName(len(bookingHeaders), 1)
		_ = f.SetCellStyle(BookingsSheet, "A1", lastHeader, headerStyle)
	}

	cancelledStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Color: "#9C0006", Strike: true},
	})

	for i, b := range bookings {
		row := i + 2
		values := bookingRow(b)
		start, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(BookingsSheet, start, &values); err != nil {
			return fmt.Errorf("error writing row %d: %w", row, err)
		}
		if !b.IsActive() && cancelledStyle != 0 {
			end, _ := excelize.CoordinatesToCellName(len(bookingHeaders), row)
			_ = f.SetCellStyle(BookingsSheet, start, end, cancelledStyle)
		}
	}

	_ = f.SetColWidth(BookingsSheet, "A", "A", 14)
	_ = f.SetColWidth(BookingsSheet, "B", "D", 12)
	_ = f.SetColWidth(BookingsSheet, "E", "I", 24)
	_ = f.SetColWidth(BookingsSheet, "J", "L", 16)
	_ = f.SetPanes(BookingsSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
	return nil
}

func bookingRow(b *models.Booking) []interface{} {
	created := ""
	if !b.CreatedAt.IsZero() {
		created = b.CreatedAt.Format("2006-01-02 15:04:05")
	}
	return []interface{}{
		b.ID,
		string(b.Status),
		b.DateString(),
		b.Slot.Time,
		b.Service.Name,
		b.Consultant.Name,
		b.ContactDetails.Name,
		b.ContactDetails.Email,
		b.ContactDetails.Phone,
		b.Service.Price,
		b.PaymentID,
		created,
	}
}

// writeSchedule раскладывает активные брони по консультантам (строки) и датам (колонки)
func writeSchedule(f *excelize.File, bookings []*models.Booking) {
	var dates []string
	dateCols := make(map[string]int)
	var consultants []models.Consultant
	consultantRows := make(map[string]int)
	cells := make(map[[2]int]string)

	for _, b := range bookings {
		if !b.IsActive() {
			continue
		}
		d := b.DateString()
		if _, ok := dateCols[d]; !ok {
			dates = append(dates, d)
			dateCols[d] = 0
		}
		if _, ok := consultantRows[b.Consultant.ID]; !ok {
			consultants = append(consultants, b.Consultant)
			consultantRows[b.Consultant.ID] = 0
		}
	}
	sort.Strings(dates)
	sort.Slice(consultants, func(i, j int) bool { return consultants[i].Name < consultants[j].Name })
	for i, d := range dates {
		dateCols[d] = i + 2
	}
	for i, c := range consultants {
		consultantRows[c.ID] = i + 2
	}

	for _, b := range bookings {
		if !b.IsActive() {
			continue
		}
		key := [2]int{dateCols[b.DateString()], consultantRows[b.Consultant.ID]}
		cells[key] += fmt.Sprintf("%s %s (%s)\n", b.Slot.Time, b.ContactDetails.Name, b.ID)
	}

	_ = f.SetCellValue(ScheduleSheet, "A1", "Consultant")
	dateStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for _, d := range dates {
		cell, _ := excelize.CoordinatesToCellName(dateCols[d], 1)
		_ = f.SetCellValue(ScheduleSheet, cell, d)
		_ = f.SetCellStyle(ScheduleSheet, cell, cell, dateStyle)
	}

	nameStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E2EFDA"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	for _, c := range consultants {
		cell, _ := excelize.CoordinatesToCellName(1, consultantRows[c.ID])
		_ = f.SetCellValue(ScheduleSheet, cell, c.Name)
		_ = f.SetCellStyle(ScheduleSheet, cell, cell, nameStyle)
	}

	wrap, _ := f.NewStyle(&excelize.Style{Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"}})
	for key, value := range cells {
		cell, _ := excelize.CoordinatesToCellName(key[0], key[1])
		_ = f.SetCellValue(ScheduleSheet, cell, value)
		_ = f.SetCellStyle(ScheduleSheet, cell, cell, wrap)
	}

	_ = f.SetColWidth(ScheduleSheet, "A", "A", 25)
	if len(dates) > 0 {
		last, _ := excelize.ColumnNumberToName(len(dates) + 1)
		_ = f.SetColWidth(ScheduleSheet, "B", last, 28)
	}
}
