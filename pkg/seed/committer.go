package seed

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// insertChunkSize bounds single INSERT payloads; chunk boundaries do not
// weaken atomicity since all chunks share the file's transaction.
const insertChunkSize = 1000

type CommitResult struct {
	Inserted  int
	Updated   int
	Skipped   int
	RowErrors int
}

// CommitProfiles applies a profile plan in one transaction: bulk inserts
// first, then point updates keyed by patient_id, so a within-file repeat of a
// new patient lands as insert-then-overwrite.
func (r *Repository) CommitProfiles(ctx context.Context, plan *ProfilePlan) (CommitResult, error) {
	res := CommitResult{RowErrors: len(plan.Errors)}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(plan.ToInsert) > 0 {
			rows := make([]profileModel, 0, len(plan.ToInsert))
			for _, p := range plan.ToInsert {
				rows = append(rows, profileModelOf(p))
			}
			if err := tx.CreateInBatches(rows, insertChunkSize).Error; err != nil {
				return fmt.Errorf("bulk inserting profiles: %w", err)
			}
		}

		for _, p := range plan.ToUpdate {
			err := tx.Model(&profileModel{}).
				Where("patient_id = ?", p.PatientID).
				Updates(map[string]interface{}{
					"traffic_source": p.TrafficSource,
					"device":         p.Device,
				}).Error
			if err != nil {
				return fmt.Errorf("updating profile %d: %w", p.PatientID, err)
			}
		}
		return nil
	})
	if err != nil {
		return CommitResult{RowErrors: len(plan.Errors)}, err
	}

	res.Inserted = len(plan.ToInsert)
	res.Updated = len(plan.ToUpdate)
	return res, nil
}

func (r *Repository) CommitAppointments(ctx context.Context, plan *AppointmentPlan) (CommitResult, error) {
	res := CommitResult{Skipped: len(plan.Skipped), RowErrors: len(plan.Errors)}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(plan.ToInsert) == 0 {
			return nil
		}
		rows := make([]appointmentModel, 0, len(plan.ToInsert))
		for _, a := range plan.ToInsert {
			rows = append(rows, appointmentModelOf(a))
		}
		if err := tx.CreateInBatches(rows, insertChunkSize).Error; err != nil {
			return fmt.Errorf("bulk inserting appointments: %w", err)
		}
		return nil
	})
	if err != nil {
		return CommitResult{Skipped: len(plan.Skipped), RowErrors: len(plan.Errors)}, err
	}

	res.Inserted = len(plan.ToInsert)
	return res, nil
}

// CommitABEvents may still hit the unique constraint if a concurrent writer
// raced the index build; the whole file rolls back in that case rather than
// silently losing or duplicating rows.
func (r *Repository) CommitABEvents(ctx context.Context, plan *ABEventPlan) (CommitResult, error) {
	res := CommitResult{Skipped: len(plan.Skipped), RowErrors: len(plan.Errors)}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(plan.ToInsert) == 0 {
			return nil
		}
		rows := make([]abEventModel, 0, len(plan.ToInsert))
		for _, e := range plan.ToInsert {
			rows = append(rows, abEventModelOf(e))
		}
		if err := tx.CreateInBatches(rows, insertChunkSize).Error; err != nil {
			return fmt.Errorf("bulk inserting ab events: %w", err)
		}
		return nil
	})
	if err != nil {
		return CommitResult{Skipped: len(plan.Skipped), RowErrors: len(plan.Errors)}, err
	}

	res.Inserted = len(plan.ToInsert)
	return res, nil
}
