package models

import "time"

// AppProfile is keyed by the patient it belongs to; re-ingesting the same
// patient_id overwrites the attributes in place.
type AppProfile struct {
	PatientID     int     `json:"patient_id"`
	TrafficSource *string `json:"traffic_source"`
	Device        *string `json:"device"`
}

// Appointment rows are immutable historical facts. The surrogate ID is
// assigned by storage; (patient_id, appointment_date, appointment_reason)
// identifies "the same appointment" for dedup purposes.
type Appointment struct {
	ID                int64      `json:"id"`
	PatientID         int        `json:"patient_id"`
	Age               *int       `json:"age"`
	Gender            *string    `json:"gender"`
	DoctorName        *string    `json:"doctor_name"`
	AppointmentReason *string    `json:"appointment_reason"`
	AppointmentDate   *time.Time `json:"appointment_date"`
	AppointmentStatus *string    `json:"appointment_status"`
}

// ABEvent rows are write-once; (patient_id, event_name, event_datetime) is
// unique at the storage level.
type ABEvent struct {
	ID            int64      `json:"id"`
	PatientID     int        `json:"patient_id"`
	Group         *string    `json:"group"`
	EventName     *string    `json:"event_name"`
	EventDatetime *time.Time `json:"event_datetime"`
}

// Query facade filters. Nil/zero fields impose no constraint.

type ProfileFilter struct {
	TrafficSource string
	DeviceLike    string
}

type AppointmentFilter struct {
	PatientID *int
	Status    string
	Doctor    string
	Reason    string
	DateFrom  *time.Time // inclusive
	DateTo    *time.Time // inclusive
}

type ABEventFilter struct {
	PatientID *int
	Group     string
	EventName string
	Since     *time.Time // inclusive
	Before    *time.Time // exclusive
}

type Page struct {
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
	Total  int64 `json:"total"`
}

// FunnelRow is one experiment arm's reminder funnel, counting distinct
// patients per step.
type FunnelRow struct {
	Group     string `json:"group"`
	Sent      int64  `json:"sent"`
	Viewed    int64  `json:"viewed"`
	Confirmed int64  `json:"confirmed"`
}

// FileReport is the outcome of ingesting one source file.
type FileReport struct {
	Entity    string    `json:"entity"`
	File      string    `json:"file"`
	Skipped   bool      `json:"skipped_missing_file,omitempty"`
	Inserted  int       `json:"inserted"`
	Updated   int       `json:"updated"`
	Duplicate int       `json:"duplicate"`
	RowErrors int       `json:"row_errors"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`
}
