package seed

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/carepulse/analytics-platform/pkg/common/models"
)

const (
	dateLayout     = "2006-01-02"
	datetimeLayout = "2006-01-02 15:04:05"
)

// RowError is a recoverable per-row failure. It excludes the row from the
// plan but never aborts the file.
type RowError struct {
	Line   int
	Column string
	Reason string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d, column %q: %s", e.Line, e.Column, e.Reason)
}

func rowErr(line int, column, format string, args ...interface{}) *RowError {
	return &RowError{Line: line, Column: column, Reason: fmt.Sprintf(format, args...)}
}

// RowReader streams a delimited file as column-name -> raw-value maps, using
// the header row for names. Rows shorter than the header simply lack the
// trailing keys.
type RowReader struct {
	r      *csv.Reader
	header []string
	line   int
}

func NewRowReader(rd io.Reader) (*RowReader, error) {
	cr := csv.NewReader(rd)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	return &RowReader{r: cr, header: header, line: 1}, nil
}

// Next returns the next row and its 1-based line number. io.EOF signals the
// end of the file; a *csv.ParseError is recoverable and reading may continue.
func (rr *RowReader) Next() (map[string]string, int, error) {
	record, err := rr.r.Read()
	rr.line++
	if err != nil {
		return nil, rr.line, err
	}

	row := make(map[string]string, len(rr.header))
	for i, name := range rr.header {
		if i >= len(record) {
			break
		}
		row[name] = record[i]
	}
	return row, rr.line, nil
}

// NormalizeProfile builds a typed profile record from one raw row.
func NormalizeProfile(line int, row map[string]string) (models.AppProfile, *RowError) {
	pid, err := requiredInt(line, row, "patient_id")
	if err != nil {
		return models.AppProfile{}, err
	}
	return models.AppProfile{
		PatientID:     pid,
		TrafficSource: optionalString(row, "traffic_source"),
		Device:        optionalString(row, "device"),
	}, nil
}

func NormalizeAppointment(line int, row map[string]string) (models.Appointment, *RowError) {
	pid, rerr := requiredInt(line, row, "patient_id")
	if rerr != nil {
		return models.Appointment{}, rerr
	}
	age, rerr := optionalInt(line, row, "age")
	if rerr != nil {
		return models.Appointment{}, rerr
	}
	date, rerr := optionalDate(line, row, "appointment_date")
	if rerr != nil {
		return models.Appointment{}, rerr
	}
	return models.Appointment{
		PatientID:         pid,
		Age:               age,
		Gender:            optionalString(row, "gender"),
		DoctorName:        optionalString(row, "doctor_name"),
		AppointmentReason: optionalString(row, "appointment_reason"),
		AppointmentDate:   date,
		AppointmentStatus: optionalString(row, "appointment_status"),
	}, nil
}

func NormalizeABEvent(line int, row map[string]string) (models.ABEvent, *RowError) {
	pid, rerr := requiredInt(line, row, "patient_id")
	if rerr != nil {
		return models.ABEvent{}, rerr
	}
	at, rerr := optionalDatetime(line, row, "event_datetime")
	if rerr != nil {
		return models.ABEvent{}, rerr
	}
	return models.ABEvent{
		PatientID:     pid,
		Group:         optionalString(row, "group"),
		EventName:     optionalString(row, "event_name"),
		EventDatetime: at,
	}, nil
}

// Empty string and missing key are both "absent".
func optionalString(row map[string]string, column string) *string {
	value := strings.TrimSpace(row[column])
	if value == "" {
		return nil
	}
	return &value
}

func requiredInt(line int, row map[string]string, column string) (int, *RowError) {
	value := strings.TrimSpace(row[column])
	if value == "" {
		return 0, rowErr(line, column, "required field missing")
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, rowErr(line, column, "not an integer: %q", value)
	}
	return n, nil
}

func optionalInt(line int, row map[string]string, column string) (*int, *RowError) {
	value := strings.TrimSpace(row[column])
	if value == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return nil, rowErr(line, column, "not an integer: %q", value)
	}
	return &n, nil
}

func optionalDate(line int, row map[string]string, column string) (*time.Time, *RowError) {
	value := strings.TrimSpace(row[column])
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil, rowErr(line, column, "not a %s date: %q", dateLayout, value)
	}
	return &t, nil
}

func optionalDatetime(line int, row map[string]string, column string) (*time.Time, *RowError) {
	value := strings.TrimSpace(row[column])
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(datetimeLayout, value)
	if err != nil {
		return nil, rowErr(line, column, "not a %s timestamp: %q", datetimeLayout, value)
	}
	return &t, nil
}
