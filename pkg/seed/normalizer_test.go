package seed

import (
	"strings"
	"testing"
)

func TestNormalizeProfile(t *testing.T) {
	rec, rerr := NormalizeProfile(2, map[string]string{
		"patient_id":     "42",
		"traffic_source": "google",
		"device":         "iOS 16",
	})
	if rerr != nil {
		t.Fatalf("unexpected row error: %v", rerr)
	}
	if rec.PatientID != 42 {
		t.Fatalf("expected patient 42, got %d", rec.PatientID)
	}
	if rec.TrafficSource == nil || *rec.TrafficSource != "google" {
		t.Fatalf("unexpected traffic source: %v", rec.TrafficSource)
	}
}

func TestNormalizeProfileMissingPatientID(t *testing.T) {
	for _, row := range []map[string]string{
		{"traffic_source": "google"},
		{"patient_id": "", "traffic_source": "google"},
		{"patient_id": "abc"},
	} {
		_, rerr := NormalizeProfile(3, row)
		if rerr == nil {
			t.Fatalf("expected row error for %v", row)
		}
		if rerr.Column != "patient_id" {
			t.Fatalf("expected patient_id column in error, got %q", rerr.Column)
		}
		if rerr.Line != 3 {
			t.Fatalf("expected line 3, got %d", rerr.Line)
		}
	}
}

func TestNormalizeAppointment(t *testing.T) {
	rec, rerr := NormalizeAppointment(2, map[string]string{
		"patient_id":         "7",
		"age":                "34",
		"gender":             "F",
		"doctor_name":        "Dr. Adams",
		"appointment_reason": "checkup",
		"appointment_date":   "2023-02-01",
		"appointment_status": "completed",
	})
	if rerr != nil {
		t.Fatalf("unexpected row error: %v", rerr)
	}
	if rec.Age == nil || *rec.Age != 34 {
		t.Fatalf("unexpected age: %v", rec.Age)
	}
	if rec.AppointmentDate == nil || rec.AppointmentDate.Format(dateLayout) != "2023-02-01" {
		t.Fatalf("unexpected date: %v", rec.AppointmentDate)
	}
}

func TestNormalizeAppointmentOptionalFieldsAbsent(t *testing.T) {
	rec, rerr := NormalizeAppointment(2, map[string]string{
		"patient_id": "7",
		"age":        "",
	})
	if rerr != nil {
		t.Fatalf("unexpected row error: %v", rerr)
	}
	if rec.Age != nil || rec.Gender != nil || rec.AppointmentDate != nil {
		t.Fatal("expected absent optionals to be nil")
	}
}

func TestNormalizeAppointmentBadDate(t *testing.T) {
	_, rerr := NormalizeAppointment(5, map[string]string{
		"patient_id":       "7",
		"appointment_date": "01/02/2023",
	})
	if rerr == nil {
		t.Fatal("expected row error for bad date")
	}
	if rerr.Column != "appointment_date" {
		t.Fatalf("expected appointment_date column, got %q", rerr.Column)
	}
}

func TestNormalizeABEvent(t *testing.T) {
	rec, rerr := NormalizeABEvent(2, map[string]string{
		"patient_id":     "9",
		"group":          "Test",
		"event_name":     "reminder_sent",
		"event_datetime": "2023-07-05 23:47:28",
	})
	if rerr != nil {
		t.Fatalf("unexpected row error: %v", rerr)
	}
	if rec.EventDatetime == nil || rec.EventDatetime.Format(datetimeLayout) != "2023-07-05 23:47:28" {
		t.Fatalf("unexpected event datetime: %v", rec.EventDatetime)
	}
}

func TestNormalizeABEventBadTimestamp(t *testing.T) {
	_, rerr := NormalizeABEvent(4, map[string]string{
		"patient_id":     "9",
		"event_datetime": "2023-07-05T23:47:28Z",
	})
	if rerr == nil {
		t.Fatal("expected row error for bad timestamp")
	}
}

func TestRowReaderShortRows(t *testing.T) {
	rows, err := NewRowReader(strings.NewReader("patient_id,traffic_source,device\n1,google\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	row, line, err := rows.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if line != 2 {
		t.Fatalf("expected line 2, got %d", line)
	}
	if row["traffic_source"] != "google" {
		t.Fatalf("unexpected row: %v", row)
	}
	if _, ok := row["device"]; ok {
		t.Fatal("expected missing trailing column to be absent")
	}
}
