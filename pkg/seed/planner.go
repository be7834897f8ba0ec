package seed

import (
	"encoding/csv"
	"errors"
	"io"

	"github.com/carepulse/analytics-platform/pkg/common/models"
)

type SkipReason string

const (
	SkipDuplicateInStore SkipReason = "duplicate_in_store"
	SkipDuplicateInBatch SkipReason = "duplicate_in_batch"
)

type SkippedRow struct {
	Line   int
	Reason SkipReason
}

// ProfilePlan upserts: a patient already in the table gets a point update,
// everything else is a bulk insert. A patient repeated within the file ends
// up with the last row's attributes.
type ProfilePlan struct {
	ToInsert []models.AppProfile
	ToUpdate []models.AppProfile
	Errors   []*RowError
}

// AppointmentPlan is insert-once: duplicates of the natural key are skipped,
// whether they were stored by an earlier run or appeared earlier in this file.
type AppointmentPlan struct {
	ToInsert []models.Appointment
	Skipped  []SkippedRow
	Errors   []*RowError
}

type ABEventPlan struct {
	ToInsert []models.ABEvent
	Skipped  []SkippedRow
	Errors   []*RowError
}

// nextRow pulls one row, folding recoverable CSV parse failures into row
// errors. done is true at end of file; a returned error is fatal for the file.
func nextRow(rows *RowReader, rowErrors *[]*RowError) (map[string]string, int, bool, error) {
	for {
		row, line, err := rows.Next()
		if err == nil {
			return row, line, false, nil
		}
		if errors.Is(err, io.EOF) {
			return nil, 0, true, nil
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			*rowErrors = append(*rowErrors, rowErr(line, "", "malformed row: %v", err))
			continue
		}
		return nil, 0, false, err
	}
}

func PlanProfiles(rows *RowReader, ix *Index[int]) (*ProfilePlan, error) {
	plan := &ProfilePlan{}
	for {
		row, line, done, err := nextRow(rows, &plan.Errors)
		if err != nil {
			return nil, err
		}
		if done {
			return plan, nil
		}

		rec, rerr := NormalizeProfile(line, row)
		if rerr != nil {
			plan.Errors = append(plan.Errors, rerr)
			continue
		}

		if ix.Contains(rec.PatientID) {
			plan.ToUpdate = append(plan.ToUpdate, rec)
		} else {
			plan.ToInsert = append(plan.ToInsert, rec)
		}
		ix.MarkSeen(rec.PatientID)
	}
}

func PlanAppointments(rows *RowReader, ix *Index[AppointmentKey]) (*AppointmentPlan, error) {
	plan := &AppointmentPlan{}
	for {
		row, line, done, err := nextRow(rows, &plan.Errors)
		if err != nil {
			return nil, err
		}
		if done {
			return plan, nil
		}

		rec, rerr := NormalizeAppointment(line, row)
		if rerr != nil {
			plan.Errors = append(plan.Errors, rerr)
			continue
		}

		key := keyOfAppointment(rec)
		switch {
		case ix.InStore(key):
			plan.Skipped = append(plan.Skipped, SkippedRow{Line: line, Reason: SkipDuplicateInStore})
		case ix.SeenThisRun(key):
			plan.Skipped = append(plan.Skipped, SkippedRow{Line: line, Reason: SkipDuplicateInBatch})
		default:
			plan.ToInsert = append(plan.ToInsert, rec)
		}
		ix.MarkSeen(key)
	}
}

func PlanABEvents(rows *RowReader, ix *Index[ABEventKey]) (*ABEventPlan, error) {
	plan := &ABEventPlan{}
	for {
		row, line, done, err := nextRow(rows, &plan.Errors)
		if err != nil {
			return nil, err
		}
		if done {
			return plan, nil
		}

		rec, rerr := NormalizeABEvent(line, row)
		if rerr != nil {
			plan.Errors = append(plan.Errors, rerr)
			continue
		}

		key := keyOfABEvent(rec)
		switch {
		case ix.InStore(key):
			plan.Skipped = append(plan.Skipped, SkippedRow{Line: line, Reason: SkipDuplicateInStore})
		case ix.SeenThisRun(key):
			plan.Skipped = append(plan.Skipped, SkippedRow{Line: line, Reason: SkipDuplicateInBatch})
		default:
			plan.ToInsert = append(plan.ToInsert, rec)
		}
		ix.MarkSeen(key)
	}
}
