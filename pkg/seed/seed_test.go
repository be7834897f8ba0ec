package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/carepulse/analytics-platform/pkg/common/logger"
	"github.com/carepulse/analytics-platform/pkg/common/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to resolve sql pool: %v", err)
	}
	// A single connection keeps every session on the same in-memory database.
	sqlDB.SetMaxOpenConns(1)

	repo := NewRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return repo
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
}

func writeAllSources(t *testing.T, dir string) {
	writeFile(t, dir, "app_data.csv",
		"patient_id,traffic_source,device\n"+
			"1,google,iOS 16\n"+
			"2,facebook,Android 12\n")
	writeFile(t, dir, "appointments_data.csv",
		"patient_id,age,gender,doctor_name,appointment_reason,appointment_date,appointment_status\n"+
			"1,30,F,Dr. Adams,checkup,2023-01-01,completed\n"+
			"2,41,M,Dr. Baker,flu,2023-01-02,no_show\n"+
			"2,41,M,Dr. Baker,flu,2023-01-02,no_show\n")
	writeFile(t, dir, "ab_test_data.csv",
		"patient_id,group,event_name,event_datetime\n"+
			"1,Test,reminder_sent,2023-07-05 10:00:00\n"+
			"2,Control,reminder_sent,2023-07-05 11:00:00\n")
}

func newTestService(repo *Repository, dir string) *Service {
	return NewService(repo, dir, DefaultSources(), nil, nil)
}

func tableCount(t *testing.T, repo *Repository, table string) int64 {
	t.Helper()
	var n int64
	if err := repo.db.Table(table).Count(&n).Error; err != nil {
		t.Fatalf("failed to count %s: %v", table, err)
	}
	return n
}

func reportFor(t *testing.T, reports []models.FileReport, entity string) models.FileReport {
	t.Helper()
	for _, rep := range reports {
		if rep.Entity == entity {
			return rep
		}
	}
	t.Fatalf("no report for entity %s", entity)
	return models.FileReport{}
}

func TestRunIsIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	dir := t.TempDir()
	writeAllSources(t, dir)
	svc := newTestService(repo, dir)

	first, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if rep := reportFor(t, first, EntityProfile); rep.Inserted != 2 || rep.Updated != 0 {
		t.Fatalf("unexpected first profile report: %+v", rep)
	}
	if rep := reportFor(t, first, EntityAppointment); rep.Inserted != 2 || rep.Duplicate != 1 {
		t.Fatalf("unexpected first appointment report: %+v", rep)
	}
	if rep := reportFor(t, first, EntityABEvent); rep.Inserted != 2 {
		t.Fatalf("unexpected first ab event report: %+v", rep)
	}

	second, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if rep := reportFor(t, second, EntityProfile); rep.Inserted != 0 || rep.Updated != 2 {
		t.Fatalf("expected pure upserts on rerun, got %+v", rep)
	}
	if rep := reportFor(t, second, EntityAppointment); rep.Inserted != 0 || rep.Duplicate != 3 {
		t.Fatalf("expected zero appointment inserts on rerun, got %+v", rep)
	}
	if rep := reportFor(t, second, EntityABEvent); rep.Inserted != 0 || rep.Duplicate != 2 {
		t.Fatalf("expected zero ab event inserts on rerun, got %+v", rep)
	}

	if n := tableCount(t, repo, "app_profile"); n != 2 {
		t.Fatalf("expected 2 profiles, got %d", n)
	}
	if n := tableCount(t, repo, "appointment"); n != 2 {
		t.Fatalf("expected 2 appointments, got %d", n)
	}
	if n := tableCount(t, repo, "ab_event"); n != 2 {
		t.Fatalf("expected 2 ab events, got %d", n)
	}
}

func TestProfileReingestOverwritesAttributes(t *testing.T) {
	repo := newTestRepo(t)
	dir := t.TempDir()
	writeFile(t, dir, "app_data.csv",
		"patient_id,traffic_source,device\n7,google,iOS 16\n")
	svc := newTestService(repo, dir)

	if _, err := svc.Run(context.Background()); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	writeFile(t, dir, "app_data.csv",
		"patient_id,traffic_source,device\n7,google,Android 13\n")
	if _, err := svc.Run(context.Background()); err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	var rows []profileModel
	if err := repo.db.Find(&rows).Error; err != nil {
		t.Fatalf("failed to read profiles: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected exactly one profile row, got %d", len(rows))
	}
	if rows[0].Device == nil || *rows[0].Device != "Android 13" {
		t.Fatalf("expected overwritten device, got %+v", rows[0])
	}
}

func TestAppointmentDedupAcrossRuns(t *testing.T) {
	repo := newTestRepo(t)
	dir := t.TempDir()
	writeFile(t, dir, "appointments_data.csv",
		"patient_id,age,gender,doctor_name,appointment_reason,appointment_date,appointment_status\n"+
			"7,30,F,Dr. Adams,checkup,2023-01-01,completed\n")
	svc := newTestService(repo, dir)

	if _, err := svc.Run(context.Background()); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	// Same natural key with different non-key attributes, plus one new row.
	writeFile(t, dir, "appointments_data.csv",
		"patient_id,age,gender,doctor_name,appointment_reason,appointment_date,appointment_status\n"+
			"7,31,F,Dr. Chen,checkup,2023-01-01,no_show\n"+
			"7,31,F,Dr. Chen,dental,2023-03-01,scheduled\n")
	reports, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	rep := reportFor(t, reports, EntityAppointment)
	if rep.Inserted != 1 || rep.Duplicate != 1 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if n := tableCount(t, repo, "appointment"); n != 2 {
		t.Fatalf("expected 2 appointment rows, got %d", n)
	}

	// Appointments are immutable once recorded: the stored row keeps its
	// original attributes.
	var stored appointmentModel
	if err := repo.db.Where("appointment_reason = ?", "checkup").First(&stored).Error; err != nil {
		t.Fatalf("failed to read appointment: %v", err)
	}
	if stored.DoctorName == nil || *stored.DoctorName != "Dr. Adams" {
		t.Fatalf("expected original doctor preserved, got %+v", stored)
	}
}

func TestRowErrorsDoNotBlockFileOrRun(t *testing.T) {
	repo := newTestRepo(t)
	dir := t.TempDir()
	writeAllSources(t, dir)
	writeFile(t, dir, "appointments_data.csv",
		"patient_id,age,gender,doctor_name,appointment_reason,appointment_date,appointment_status\n"+
			"1,30,F,Dr. Adams,checkup,2023-01-01,completed\n"+
			"2,not_an_age,M,Dr. Baker,flu,2023-01-02,no_show\n"+
			"3,52,M,Dr. Baker,flu,bad-date,no_show\n"+
			"4,28,F,Dr. Chen,dental,2023-01-03,scheduled\n")
	svc := newTestService(repo, dir)

	reports, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	rep := reportFor(t, reports, EntityAppointment)
	if rep.Error != "" {
		t.Fatalf("expected no file-level error, got %q", rep.Error)
	}
	if rep.Inserted != 2 || rep.RowErrors != 2 {
		t.Fatalf("unexpected appointment report: %+v", rep)
	}
	if rep := reportFor(t, reports, EntityProfile); rep.Inserted != 2 {
		t.Fatalf("profile ingestion affected by appointment errors: %+v", rep)
	}
	if rep := reportFor(t, reports, EntityABEvent); rep.Inserted != 2 {
		t.Fatalf("ab event ingestion affected by appointment errors: %+v", rep)
	}
}

func TestAbsentFileSkipsEntity(t *testing.T) {
	repo := newTestRepo(t)
	dir := t.TempDir()
	writeFile(t, dir, "app_data.csv",
		"patient_id,traffic_source,device\n1,google,iOS\n")
	svc := newTestService(repo, dir)

	reports, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if rep := reportFor(t, reports, EntityProfile); rep.Skipped || rep.Inserted != 1 {
		t.Fatalf("unexpected profile report: %+v", rep)
	}
	for _, entity := range []string{EntityAppointment, EntityABEvent} {
		rep := reportFor(t, reports, entity)
		if !rep.Skipped || rep.Error != "" {
			t.Fatalf("expected %s skipped without error, got %+v", entity, rep)
		}
	}
}

func TestABEventUniqueConstraintBackstop(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	group := "Test"
	name := "reminder_sent"
	at := mustParseDatetime(t, "2023-07-05 10:00:00")
	event := models.ABEvent{PatientID: 1, Group: &group, EventName: &name, EventDatetime: &at}

	if _, err := repo.CommitABEvents(ctx, &ABEventPlan{ToInsert: []models.ABEvent{event}}); err != nil {
		t.Fatalf("initial commit failed: %v", err)
	}

	// A plan that bypassed the dedup index, as if the index were stale.
	otherAt := mustParseDatetime(t, "2023-07-06 10:00:00")
	fresh := models.ABEvent{PatientID: 2, Group: &group, EventName: &name, EventDatetime: &otherAt}
	_, err := repo.CommitABEvents(ctx, &ABEventPlan{ToInsert: []models.ABEvent{fresh, event}})
	if err == nil {
		t.Fatal("expected unique constraint violation")
	}

	// The whole file rolls back: the fresh row must not have landed either.
	if n := tableCount(t, repo, "ab_event"); n != 1 {
		t.Fatalf("expected rollback to leave 1 row, got %d", n)
	}
}

func TestRunRecordsIngestionAudit(t *testing.T) {
	repo := newTestRepo(t)
	dir := t.TempDir()
	writeAllSources(t, dir)
	svc := newTestService(repo, dir)

	if _, err := svc.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	var runs []ingestionRunModel
	if err := repo.db.Find(&runs).Error; err != nil {
		t.Fatalf("failed to read ingestion runs: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 audit rows, got %d", len(runs))
	}
	if runs[0].RunID == "" || runs[0].RunID != runs[1].RunID {
		t.Fatalf("expected a shared run_id, got %+v", runs)
	}
}

func mustParseDatetime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(datetimeLayout, s)
	if err != nil {
		t.Fatalf("failed to parse %q: %v", s, err)
	}
	return ts
}
