package seed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/carepulse/analytics-platform/pkg/common/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

type profileModel struct {
	PatientID     int     `gorm:"primaryKey;column:patient_id"`
	TrafficSource *string `gorm:"column:traffic_source;size:80;index"`
	Device        *string `gorm:"column:device;size:80;index"`
}

func (profileModel) TableName() string { return "app_profile" }

// The composite index on (patient_id, appointment_date, appointment_reason)
// is deliberately not unique: appointment dedup is application-level only.
type appointmentModel struct {
	ID                int64      `gorm:"primaryKey;column:id"`
	PatientID         int        `gorm:"column:patient_id;index;index:ix_appt_patient_date_reason,priority:1"`
	Age               *int       `gorm:"column:age"`
	Gender            *string    `gorm:"column:gender;size:16;index"`
	DoctorName        *string    `gorm:"column:doctor_name;size:80;index"`
	AppointmentReason *string    `gorm:"column:appointment_reason;size:120;index:ix_appt_patient_date_reason,priority:3"`
	AppointmentDate   *time.Time `gorm:"column:appointment_date;index;index:ix_appt_patient_date_reason,priority:2"`
	AppointmentStatus *string    `gorm:"column:appointment_status;size:32;index"`
}

func (appointmentModel) TableName() string { return "appointment" }

// ab_event carries a hard unique constraint on its natural key; the dedup
// index only exists to avoid tripping it.
type abEventModel struct {
	ID            int64      `gorm:"primaryKey;column:id"`
	PatientID     int        `gorm:"column:patient_id;index;uniqueIndex:ix_ab_event_unique,priority:1"`
	Group         *string    `gorm:"column:group;size:16;index"`
	EventName     *string    `gorm:"column:event_name;size:64;index;uniqueIndex:ix_ab_event_unique,priority:2"`
	EventDatetime *time.Time `gorm:"column:event_datetime;index;uniqueIndex:ix_ab_event_unique,priority:3"`
}

func (abEventModel) TableName() string { return "ab_event" }

type ingestionRunModel struct {
	ID        int64          `gorm:"primaryKey;column:id"`
	RunID     string         `gorm:"column:run_id;size:36;index"`
	Entity    string         `gorm:"column:entity;size:32"`
	File      string         `gorm:"column:file;size:255"`
	Inserted  int            `gorm:"column:inserted"`
	Updated   int            `gorm:"column:updated"`
	Skipped   int            `gorm:"column:skipped"`
	RowErrors int            `gorm:"column:row_errors"`
	Error     string         `gorm:"column:error"`
	Report    datatypes.JSON `gorm:"column:report"`
	CreatedAt time.Time      `gorm:"column:created_at"`
}

func (ingestionRunModel) TableName() string { return "ingestion_runs" }

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(
		&profileModel{},
		&appointmentModel{},
		&abEventModel{},
		&ingestionRunModel{},
	)
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.WithContext(ctx).Exec("SELECT 1").Error
}

// BuildProfileIndex scans the stored patient IDs once.
func (r *Repository) BuildProfileIndex(ctx context.Context) (*Index[int], error) {
	var ids []int
	if err := r.db.WithContext(ctx).Model(&profileModel{}).Pluck("patient_id", &ids).Error; err != nil {
		return nil, err
	}
	return NewIndex(ids), nil
}

func (r *Repository) BuildAppointmentIndex(ctx context.Context) (*Index[AppointmentKey], error) {
	var rows []appointmentModel
	err := r.db.WithContext(ctx).Model(&appointmentModel{}).
		Select("patient_id", "appointment_date", "appointment_reason").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	keys := make([]AppointmentKey, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, appointmentKeyOf(row.PatientID, row.AppointmentDate, row.AppointmentReason))
	}
	return NewIndex(keys), nil
}

func (r *Repository) BuildABEventIndex(ctx context.Context) (*Index[ABEventKey], error) {
	var rows []abEventModel
	err := r.db.WithContext(ctx).Model(&abEventModel{}).
		Select("patient_id", "event_name", "event_datetime").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	keys := make([]ABEventKey, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, abEventKeyOf(row.PatientID, row.EventName, row.EventDatetime))
	}
	return NewIndex(keys), nil
}

// RecordRun persists one file's outcome to the ingestion audit table. Row
// errors are sampled into the JSON report rather than stored exhaustively.
func (r *Repository) RecordRun(ctx context.Context, runID string, rep models.FileReport, rowErrors []*RowError) error {
	const errorSampleLimit = 20

	sample := make([]string, 0, errorSampleLimit)
	for _, re := range rowErrors {
		if len(sample) == errorSampleLimit {
			break
		}
		sample = append(sample, re.Error())
	}

	payload, err := json.Marshal(map[string]interface{}{
		"file":              rep,
		"row_error_sample":  sample,
		"row_error_total":   len(rowErrors),
		"skipped_missing":   rep.Skipped,
		"report_created_at": time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	row := ingestionRunModel{
		RunID:     runID,
		Entity:    rep.Entity,
		File:      rep.File,
		Inserted:  rep.Inserted,
		Updated:   rep.Updated,
		Skipped:   rep.Duplicate,
		RowErrors: rep.RowErrors,
		Error:     rep.Error,
		Report:    datatypes.JSON(payload),
		CreatedAt: time.Now().UTC(),
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

func profileModelOf(p models.AppProfile) profileModel {
	return profileModel{
		PatientID:     p.PatientID,
		TrafficSource: p.TrafficSource,
		Device:        p.Device,
	}
}

func appointmentModelOf(a models.Appointment) appointmentModel {
	return appointmentModel{
		PatientID:         a.PatientID,
		Age:               a.Age,
		Gender:            a.Gender,
		DoctorName:        a.DoctorName,
		AppointmentReason: a.AppointmentReason,
		AppointmentDate:   a.AppointmentDate,
		AppointmentStatus: a.AppointmentStatus,
	}
}

func abEventModelOf(e models.ABEvent) abEventModel {
	return abEventModel{
		PatientID:     e.PatientID,
		Group:         e.Group,
		EventName:     e.EventName,
		EventDatetime: e.EventDatetime,
	}
}
