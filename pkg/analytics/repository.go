package analytics

import (
	"context"
	"strings"
	"time"

	"github.com/carepulse/analytics-platform/pkg/common/models"
	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Read models over the tables the ingestion pipeline owns.

type profileRow struct {
	PatientID     int     `gorm:"column:patient_id"`
	TrafficSource *string `gorm:"column:traffic_source"`
	Device        *string `gorm:"column:device"`
}

func (profileRow) TableName() string { return "app_profile" }

type appointmentRow struct {
	ID                int64      `gorm:"column:id"`
	PatientID         int        `gorm:"column:patient_id"`
	Age               *int       `gorm:"column:age"`
	Gender            *string    `gorm:"column:gender"`
	DoctorName        *string    `gorm:"column:doctor_name"`
	AppointmentReason *string    `gorm:"column:appointment_reason"`
	AppointmentDate   *time.Time `gorm:"column:appointment_date"`
	AppointmentStatus *string    `gorm:"column:appointment_status"`
}

func (appointmentRow) TableName() string { return "appointment" }

type abEventRow struct {
	ID            int64      `gorm:"column:id"`
	PatientID     int        `gorm:"column:patient_id"`
	Group         *string    `gorm:"column:group"`
	EventName     *string    `gorm:"column:event_name"`
	EventDatetime *time.Time `gorm:"column:event_datetime"`
}

func (abEventRow) TableName() string { return "ab_event" }

func (r *Repository) profileQuery(ctx context.Context, f models.ProfileFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&profileRow{})
	if f.TrafficSource != "" {
		q = q.Where("traffic_source = ?", f.TrafficSource)
	}
	if f.DeviceLike != "" {
		q = q.Where("LOWER(device) LIKE ?", "%"+strings.ToLower(f.DeviceLike)+"%")
	}
	return q
}

// ListProfiles returns profiles ordered by patient_id so pagination is stable.
func (r *Repository) ListProfiles(ctx context.Context, f models.ProfileFilter, limit, offset int) ([]models.AppProfile, error) {
	var rows []profileRow
	err := r.profileQuery(ctx, f).
		Order("patient_id").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]models.AppProfile, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.AppProfile{
			PatientID:     row.PatientID,
			TrafficSource: row.TrafficSource,
			Device:        row.Device,
		})
	}
	return out, nil
}

func (r *Repository) CountProfiles(ctx context.Context, f models.ProfileFilter) (int64, error) {
	var total int64
	err := r.profileQuery(ctx, f).Count(&total).Error
	return total, err
}

func (r *Repository) appointmentQuery(ctx context.Context, f models.AppointmentFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&appointmentRow{})
	if f.PatientID != nil {
		q = q.Where("patient_id = ?", *f.PatientID)
	}
	if f.Status != "" {
		q = q.Where("appointment_status = ?", f.Status)
	}
	if f.Doctor != "" {
		q = q.Where("doctor_name = ?", f.Doctor)
	}
	if f.Reason != "" {
		q = q.Where("appointment_reason = ?", f.Reason)
	}
	if f.DateFrom != nil {
		q = q.Where("appointment_date >= ?", *f.DateFrom)
	}
	if f.DateTo != nil {
		q = q.Where("appointment_date <= ?", *f.DateTo)
	}
	return q
}

func (r *Repository) ListAppointments(ctx context.Context, f models.AppointmentFilter, limit, offset int) ([]models.Appointment, error) {
	var rows []appointmentRow
	err := r.appointmentQuery(ctx, f).
		Order("appointment_date, id").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]models.Appointment, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.Appointment{
			ID:                row.ID,
			PatientID:         row.PatientID,
			Age:               row.Age,
			Gender:            row.Gender,
			DoctorName:        row.DoctorName,
			AppointmentReason: row.AppointmentReason,
			AppointmentDate:   row.AppointmentDate,
			AppointmentStatus: row.AppointmentStatus,
		})
	}
	return out, nil
}

func (r *Repository) CountAppointments(ctx context.Context, f models.AppointmentFilter) (int64, error) {
	var total int64
	err := r.appointmentQuery(ctx, f).Count(&total).Error
	return total, err
}

func (r *Repository) abEventQuery(ctx context.Context, f models.ABEventFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&abEventRow{})
	if f.PatientID != nil {
		q = q.Where("patient_id = ?", *f.PatientID)
	}
	if f.Group != "" {
		q = q.Where(`"group" = ?`, f.Group)
	}
	if f.EventName != "" {
		q = q.Where("event_name = ?", f.EventName)
	}
	if f.Since != nil {
		q = q.Where("event_datetime >= ?", *f.Since)
	}
	if f.Before != nil {
		q = q.Where("event_datetime < ?", *f.Before)
	}
	return q
}

func (r *Repository) ListABEvents(ctx context.Context, f models.ABEventFilter, limit, offset int) ([]models.ABEvent, error) {
	var rows []abEventRow
	err := r.abEventQuery(ctx, f).
		Order("event_datetime").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]models.ABEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.ABEvent{
			ID:            row.ID,
			PatientID:     row.PatientID,
			Group:         row.Group,
			EventName:     row.EventName,
			EventDatetime: row.EventDatetime,
		})
	}
	return out, nil
}

func (r *Repository) CountABEvents(ctx context.Context, f models.ABEventFilter) (int64, error) {
	var total int64
	err := r.abEventQuery(ctx, f).Count(&total).Error
	return total, err
}

// Counts reports per-table row totals for the counts probe.
func (r *Repository) Counts(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64, 3)
	for _, table := range []string{"app_profile", "appointment", "ab_event"} {
		var total int64
		if err := r.db.WithContext(ctx).Table(table).Count(&total).Error; err != nil {
			return nil, err
		}
		out[table] = total
	}
	return out, nil
}

func (r *Repository) Health(ctx context.Context) error {
	return r.db.WithContext(ctx).Exec("SELECT 1").Error
}

// ABFunnel counts distinct patients per experiment arm at each reminder
// funnel step. Rows without an arm label are excluded.
func (r *Repository) ABFunnel(ctx context.Context) ([]models.FunnelRow, error) {
	const query = `
with ev as (
  select patient_id, "group", event_name
  from ab_event
  where "group" is not null
  group by patient_id, "group", event_name
)
select
  "group",
  sum(case when event_name = 'reminder_sent' then 1 else 0 end) as sent,
  sum(case when event_name = 'reminder_viewed' then 1 else 0 end) as viewed,
  sum(case when event_name = 'appointment_confirmed' then 1 else 0 end) as confirmed
from ev
group by "group"
order by "group"`

	var rows []models.FunnelRow
	if err := r.db.WithContext(ctx).Raw(query).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
