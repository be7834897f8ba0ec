package seed

import (
	"time"

	"github.com/carepulse/analytics-platform/pkg/common/models"
)

// Index is the per-run dedup set for one entity type. It is rebuilt from a
// single key-column scan at the start of every ingestion run and never cached
// across runs: storage may have changed out of band. The stored set and the
// marked-this-run set are kept apart so the planner can report why a row was
// skipped.
type Index[K comparable] struct {
	stored map[K]struct{}
	seen   map[K]struct{}
}

func NewIndex[K comparable](storedKeys []K) *Index[K] {
	ix := &Index[K]{
		stored: make(map[K]struct{}, len(storedKeys)),
		seen:   make(map[K]struct{}),
	}
	for _, k := range storedKeys {
		ix.stored[k] = struct{}{}
	}
	return ix
}

func (ix *Index[K]) InStore(k K) bool {
	_, ok := ix.stored[k]
	return ok
}

// SeenThisRun reports whether an earlier row of the current run already
// claimed the key.
func (ix *Index[K]) SeenThisRun(k K) bool {
	_, ok := ix.seen[k]
	return ok
}

func (ix *Index[K]) Contains(k K) bool {
	return ix.InStore(k) || ix.SeenThisRun(k)
}

func (ix *Index[K]) MarkSeen(k K) {
	ix.seen[k] = struct{}{}
}

func (ix *Index[K]) Len() int {
	return len(ix.stored) + len(ix.seen)
}

// AppointmentKey identifies "the same appointment" regardless of surrogate
// ID. Null components collapse to the empty string so keys stay comparable.
type AppointmentKey struct {
	PatientID int
	Date      string
	Reason    string
}

func appointmentKeyOf(patientID int, date *time.Time, reason *string) AppointmentKey {
	k := AppointmentKey{PatientID: patientID}
	if date != nil {
		k.Date = date.UTC().Format(dateLayout)
	}
	if reason != nil {
		k.Reason = *reason
	}
	return k
}

func keyOfAppointment(a models.Appointment) AppointmentKey {
	return appointmentKeyOf(a.PatientID, a.AppointmentDate, a.AppointmentReason)
}

// ABEventKey mirrors the storage-level unique constraint; the index is an
// optimization in front of it, not the source of truth.
type ABEventKey struct {
	PatientID int
	Name      string
	At        string
}

func abEventKeyOf(patientID int, name *string, at *time.Time) ABEventKey {
	k := ABEventKey{PatientID: patientID}
	if name != nil {
		k.Name = *name
	}
	if at != nil {
		k.At = at.UTC().Format(datetimeLayout)
	}
	return k
}

func keyOfABEvent(e models.ABEvent) ABEventKey {
	return abEventKeyOf(e.PatientID, e.EventName, e.EventDatetime)
}
