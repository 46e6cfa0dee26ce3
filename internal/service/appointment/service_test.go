package appointment

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carebook/booking-api/internal/model"
	"github.com/carebook/booking-api/internal/repository"
	apperrors "github.com/carebook/booking-api/pkg/errors"
	"github.com/carebook/booking-api/pkg/logger"
)

// fakeAppointmentRepo reproduces the store's concurrency semantics in memory:
// the active-slot unique index on insert and the compare-and-set status
// writes, all under one mutex.
type fakeAppointmentRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*model.Appointment
}

func newFakeAppointmentRepo() *fakeAppointmentRepo {
	return &fakeAppointmentRepo{items: make(map[uuid.UUID]*model.Appointment)}
}

func (f *fakeAppointmentRepo) slotHeld(providerID uuid.UUID, date time.Time, slotStart string, excludeID *uuid.UUID) bool {
	for _, a := range f.items {
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		if a.Status == model.AppointmentStatusCancelled || a.Status == model.AppointmentStatusNoShow {
			continue
		}
		if a.ProviderID == providerID && a.Date.Equal(date) && a.SlotStart == slotStart {
			return true
		}
	}
	return false
}

func (f *fakeAppointmentRepo) Create(ctx context.Context, appt *model.Appointment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.slotHeld(appt.ProviderID, appt.Date, appt.SlotStart, nil) {
		return repository.ErrSlotTaken
	}
	cp := *appt
	f.items[appt.ID] = &cp
	return nil
}

func (f *fakeAppointmentRepo) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAppointmentRepo) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Appointment
	for _, a := range f.items {
		if filters.PatientID != uuid.Nil && a.PatientID != filters.PatientID {
			continue
		}
		if filters.ProviderID != uuid.Nil && a.ProviderID != filters.ProviderID {
			continue
		}
		if filters.Status != "" && a.Status != filters.Status {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeAppointmentRepo) HasSlotConflict(ctx context.Context, providerID uuid.UUID, date time.Time, slotStart string, excludeID *uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slotHeld(providerID, date, slotStart, excludeID), nil
}

func (f *fakeAppointmentRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.AppointmentStatus, cancelReason *string) (*model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[id]
	if !ok || a.Status != from {
		return nil, repository.ErrStaleRecord
	}
	a.Status = to
	if cancelReason != nil {
		a.CancelReason = cancelReason
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAppointmentRepo) Reschedule(ctx context.Context, id uuid.UUID, date time.Time, slot model.TimeSlot) (*model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[id]
	if !ok || (a.Status != model.AppointmentStatusPending && a.Status != model.AppointmentStatusConfirmed) {
		return nil, repository.ErrStaleRecord
	}
	if f.slotHeld(a.ProviderID, date, slot.Start, &id) {
		return nil, repository.ErrSlotTaken
	}
	a.Date = date
	a.SlotStart = slot.Start
	a.SlotEnd = slot.End
	a.Status = model.AppointmentStatusPending
	cp := *a
	return &cp, nil
}

func (f *fakeAppointmentRepo) UpdateNotes(ctx context.Context, id uuid.UUID, notes, prescription *string) (*model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if a.IsTerminal() {
		return nil, repository.ErrStaleRecord
	}
	if notes != nil {
		a.Notes = *notes
	}
	if prescription != nil {
		a.Prescription = prescription
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAppointmentRepo) MarkPaid(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[id]
	if !ok || a.PaymentStatus != model.PaymentStatusPending {
		return nil, repository.ErrStaleRecord
	}
	a.PaymentStatus = model.PaymentStatusPaid
	cp := *a
	return &cp, nil
}

func (f *fakeAppointmentRepo) MarkRefunded(ctx context.Context, id uuid.UUID, auditNote string) (*model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[id]
	if !ok || a.PaymentStatus != model.PaymentStatusPaid {
		return nil, repository.ErrStaleRecord
	}
	a.PaymentStatus = model.PaymentStatusRefunded
	if a.Notes == "" {
		a.Notes = auditNote
	} else {
		a.Notes = a.Notes + "\n" + auditNote
	}
	cp := *a
	return &cp, nil
}

// fakeSequence matches the allocator contract: the first value is the floor,
// each subsequent call increments by one.
type fakeSequence struct {
	mu    sync.Mutex
	floor int64
	seqs  map[string]int64
}

func newFakeSequence(floor int64) *fakeSequence {
	return &fakeSequence{floor: floor, seqs: make(map[string]int64)}
}

func (f *fakeSequence) Next(ctx context.Context, scope string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.seqs[scope]; !ok {
		f.seqs[scope] = f.floor
	} else {
		f.seqs[scope]++
	}
	return f.seqs[scope], nil
}

type fakeProviders struct {
	mu    sync.Mutex
	items map[uuid.UUID]*model.Provider
}

func (f *fakeProviders) Get(ctx context.Context, id uuid.UUID) (*model.Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

type fakePatients struct {
	items map[uuid.UUID]*model.Patient
}

func (f *fakePatients) Get(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	p, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

type fakeOutbox struct {
	mu     sync.Mutex
	events []*model.OutboxEvent
}

func (f *fakeOutbox) Create(ctx context.Context, event *model.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeOutbox) GetPendingEventsWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	return nil, nil
}

func (f *fakeOutbox) MarkProcessed(ctx context.Context, id uuid.UUID) error { return nil }

func (f *fakeOutbox) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error { return nil }

func (f *fakeOutbox) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.EventType
	}
	return out
}

type fixture struct {
	svc        *Service
	repo       *fakeAppointmentRepo
	outbox     *fakeOutbox
	providerID uuid.UUID
	patientID  uuid.UUID
	admin      *model.Caller
	patient    *model.Caller
	provider   *model.Caller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	providerID := uuid.New()
	patientID := uuid.New()

	providers := &fakeProviders{items: map[uuid.UUID]*model.Provider{
		providerID: {
			Base:      model.Base{ID: providerID},
			Name:      "Dr. Osei",
			Specialty: "cardiology",
			Fee:       5000,
			Available: true,
		},
	}}
	patients := &fakePatients{items: map[uuid.UUID]*model.Patient{
		patientID: {
			Base:  model.Base{ID: patientID},
			Name:  "Ama Mensah",
			Email: "ama@example.com",
		},
	}}

	repo := newFakeAppointmentRepo()
	outbox := &fakeOutbox{}
	log := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})

	svc := NewService(repo, newFakeSequence(100), providers, patients, outbox, log, nil)
	// Tests book for a fixed "today" well clear of midnight.
	svc.now = func() time.Time {
		return time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	}

	return &fixture{
		svc:        svc,
		repo:       repo,
		outbox:     outbox,
		providerID: providerID,
		patientID:  patientID,
		admin:      &model.Caller{ID: uuid.New(), Role: model.RoleAdmin},
		patient:    &model.Caller{ID: patientID, Role: model.RolePatient},
		provider:   &model.Caller{ID: providerID, Role: model.RoleProvider},
	}
}

func (f *fixture) createRequest() *model.CreateAppointmentRequest {
	return &model.CreateAppointmentRequest{
		PatientID:  f.patientID,
		ProviderID: f.providerID,
		Date:       "2026-09-01",
		TimeSlot:   model.TimeSlot{Start: "10:00", End: "10:30"},
		Mode:       model.ConsultationModeVideo,
		Symptoms:   "persistent cough",
	}
}

func (f *fixture) book(t *testing.T) *model.Appointment {
	t.Helper()
	appt, err := f.svc.CreateAppointment(context.Background(), f.createRequest())
	require.NoError(t, err)
	return appt
}

func TestCreateAppointment(t *testing.T) {
	f := newFixture(t)

	appt, err := f.svc.CreateAppointment(context.Background(), f.createRequest())
	require.NoError(t, err)

	assert.Equal(t, model.AppointmentStatusPending, appt.Status)
	assert.Equal(t, model.PaymentStatusPending, appt.PaymentStatus)
	assert.Equal(t, int64(100), appt.Number)
	assert.Equal(t, int64(5000), appt.Amount, "amount is the provider fee at booking time")
	assert.Equal(t, []string{model.EventAppointmentCreated}, f.outbox.types())
}

func TestCreateAppointmentFeeSnapshot(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t)

	// A later fee change must not touch existing appointments.
	f.svc.providers.(*fakeProviders).items[f.providerID].Fee = 9000

	stored, err := f.repo.Get(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), stored.Amount)
}

func TestCreateAppointmentSlotConflict(t *testing.T) {
	f := newFixture(t)
	f.book(t)

	_, err := f.svc.CreateAppointment(context.Background(), f.createRequest())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))
}

func TestCreateAppointmentCancelledSlotRebookable(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t)

	_, err := f.svc.CancelAppointment(context.Background(), appt.ID, "cannot make it", f.patient)
	require.NoError(t, err)

	again, err := f.svc.CreateAppointment(context.Background(), f.createRequest())
	require.NoError(t, err)
	assert.Equal(t, int64(101), again.Number)
}

func TestCreateAppointmentConcurrentDoubleBooking(t *testing.T) {
	f := newFixture(t)

	const racers = 16
	var wg sync.WaitGroup
	results := make(chan error, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateAppointment(context.Background(), f.createRequest())
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, conflicts int
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		if apperrors.Is(err, apperrors.ErrConflict) {
			conflicts++
		}
	}
	assert.Equal(t, 1, successes, "exactly one racer wins the slot")
	assert.Equal(t, racers-1, conflicts, "every loser gets the same conflict answer")
}

func TestCreateAppointmentValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		mutate func(*model.CreateAppointmentRequest)
	}{
		{"past date", func(r *model.CreateAppointmentRequest) { r.Date = "2026-08-30" }},
		{"same day slot already passed", func(r *model.CreateAppointmentRequest) {
			r.Date = "2026-08-31"
			r.TimeSlot = model.TimeSlot{Start: "08:00", End: "08:30"}
		}},
		{"bad slot format", func(r *model.CreateAppointmentRequest) {
			r.TimeSlot = model.TimeSlot{Start: "10am", End: "11am"}
		}},
		{"hour out of range", func(r *model.CreateAppointmentRequest) {
			r.TimeSlot = model.TimeSlot{Start: "24:00", End: "24:30"}
		}},
		{"end before start", func(r *model.CreateAppointmentRequest) {
			r.TimeSlot = model.TimeSlot{Start: "10:30", End: "10:00"}
		}},
		{"malformed date", func(r *model.CreateAppointmentRequest) { r.Date = "01-09-2026" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := f.createRequest()
			tt.mutate(req)
			_, err := f.svc.CreateAppointment(context.Background(), req)
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))
		})
	}
}

func TestCreateAppointmentSameDayFutureSlot(t *testing.T) {
	f := newFixture(t)

	req := f.createRequest()
	req.Date = "2026-08-31"
	req.TimeSlot = model.TimeSlot{Start: "15:00", End: "15:30"}

	_, err := f.svc.CreateAppointment(context.Background(), req)
	assert.NoError(t, err)
}

func TestCreateAppointmentUnknownProvider(t *testing.T) {
	f := newFixture(t)

	req := f.createRequest()
	req.ProviderID = uuid.New()

	_, err := f.svc.CreateAppointment(context.Background(), req)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestSequenceNumbersAreConsecutive(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 5; i++ {
		req := f.createRequest()
		req.TimeSlot = model.TimeSlot{
			Start: fmt.Sprintf("1%d:00", i),
			End:   fmt.Sprintf("1%d:30", i),
		}
		appt, err := f.svc.CreateAppointment(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, int64(100+i), appt.Number)
	}
}

func TestUpdateStatusHappyPath(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t)
	ctx := context.Background()

	updated, err := f.svc.UpdateStatus(ctx, appt.ID, model.AppointmentStatusConfirmed, "", f.provider)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusConfirmed, updated.Status)

	updated, err = f.svc.UpdateStatus(ctx, appt.ID, model.AppointmentStatusInProgress, "", f.provider)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusInProgress, updated.Status)

	updated, err = f.svc.UpdateStatus(ctx, appt.ID, model.AppointmentStatusCompleted, "", f.provider)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCompleted, updated.Status)
}

func TestUpdateStatusSkippingInProgress(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t)
	ctx := context.Background()

	_, err := f.svc.UpdateStatus(ctx, appt.ID, model.AppointmentStatusConfirmed, "", f.provider)
	require.NoError(t, err)

	// confirmed→completed skips in_progress and must be refused.
	_, err = f.svc.UpdateStatus(ctx, appt.ID, model.AppointmentStatusCompleted, "", f.provider)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrIllegalTransition))
	assert.Contains(t, err.Error(), "confirmed")
	assert.Contains(t, err.Error(), "completed")
}

func TestUpdateStatusPatientMayOnlyCancel(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t)
	ctx := context.Background()

	_, err := f.svc.UpdateStatus(ctx, appt.ID, model.AppointmentStatusConfirmed, "", f.patient)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))

	updated, err := f.svc.UpdateStatus(ctx, appt.ID, model.AppointmentStatusCancelled, "changed my mind", f.patient)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCancelled, updated.Status)
	require.NotNil(t, updated.CancelReason)
	assert.Equal(t, "changed my mind", *updated.CancelReason)
}

func TestUpdateStatusPatientCannotCancelStartedVisit(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t)
	ctx := context.Background()

	_, err := f.svc.UpdateStatus(ctx, appt.ID, model.AppointmentStatusConfirmed, "", f.provider)
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, appt.ID, model.AppointmentStatusInProgress, "", f.provider)
	require.NoError(t, err)

	// in_progress→cancelled is table-legal, but a patient may not walk out
	// of a visit that has already started.
	_, err = f.svc.CancelAppointment(ctx, appt.ID, "leaving", f.patient)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))

	current, err := f.svc.GetAppointment(ctx, appt.ID, f.patient)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusInProgress, current.Status)

	// Providers keep the ability to cancel mid-visit.
	cancelled, err := f.svc.CancelAppointment(ctx, appt.ID, "patient unwell", f.provider)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCancelled, cancelled.Status)
}

func TestUpdateStatusPatientCancelConfirmed(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t)
	ctx := context.Background()

	_, err := f.svc.UpdateStatus(ctx, appt.ID, model.AppointmentStatusConfirmed, "", f.provider)
	require.NoError(t, err)

	cancelled, err := f.svc.CancelAppointment(ctx, appt.ID, "conflict came up", f.patient)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCancelled, cancelled.Status)
}

func TestUpdateStatusOwnership(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t)
	ctx := context.Background()

	stranger := &model.Caller{ID: uuid.New(), Role: model.RolePatient}
	_, err := f.svc.UpdateStatus(ctx, appt.ID, model.AppointmentStatusCancelled, "", stranger)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))

	otherProvider := &model.Caller{ID: uuid.New(), Role: model.RoleProvider}
	_, err = f.svc.UpdateStatus(ctx, appt.ID, model.AppointmentStatusConfirmed, "", otherProvider)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))
}

func TestUpdateStatusTerminalIsImmutable(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t)
	ctx := context.Background()

	_, err := f.svc.CancelAppointment(ctx, appt.ID, "", f.admin)
	require.NoError(t, err)

	for _, target := range []model.AppointmentStatus{
		model.AppointmentStatusPending,
		model.AppointmentStatusConfirmed,
		model.AppointmentStatusCompleted,
	} {
		_, err := f.svc.UpdateStatus(ctx, appt.ID, target, "", f.admin)
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.ErrIllegalTransition))
	}
}

func TestUpdateStatusLostRace(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t)
	ctx := context.Background()

	// Another writer cancels between this caller's read and write.
	_, err := f.repo.UpdateStatus(ctx, appt.ID, model.AppointmentStatusPending, model.AppointmentStatusCancelled, nil)
	require.NoError(t, err)

	// The fake CAS now refuses pending→confirmed; the caller gets the
	// transition named against the current state, not a raw storage error.
	_, err = f.svc.UpdateStatus(ctx, appt.ID, model.AppointmentStatusConfirmed, "", f.admin)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrIllegalTransition))
	assert.Contains(t, err.Error(), "cancelled")
}

func TestUpdateStatusNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.UpdateStatus(context.Background(), uuid.New(), model.AppointmentStatusConfirmed, "", f.admin)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestRescheduleResetsToPending(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t)
	ctx := context.Background()

	_, err := f.svc.UpdateStatus(ctx, appt.ID, model.AppointmentStatusConfirmed, "", f.provider)
	require.NoError(t, err)

	updated, err := f.svc.RescheduleAppointment(ctx, appt.ID, &model.RescheduleAppointmentRequest{
		Date:     "2026-09-02",
		TimeSlot: model.TimeSlot{Start: "11:00", End: "11:30"},
	}, f.patient)
	require.NoError(t, err)

	assert.Equal(t, model.AppointmentStatusPending, updated.Status, "reschedule re-enters the lifecycle at pending")
	assert.Equal(t, "11:00", updated.SlotStart)
	assert.Equal(t, appt.Number, updated.Number, "identity survives a reschedule")
	assert.Contains(t, f.outbox.types(), model.EventAppointmentRescheduled)
}

func TestRescheduleBlockedAfterStart(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t)
	ctx := context.Background()

	_, err := f.svc.UpdateStatus(ctx, appt.ID, model.AppointmentStatusConfirmed, "", f.provider)
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, appt.ID, model.AppointmentStatusInProgress, "", f.provider)
	require.NoError(t, err)

	_, err = f.svc.RescheduleAppointment(ctx, appt.ID, &model.RescheduleAppointmentRequest{
		Date:     "2026-09-02",
		TimeSlot: model.TimeSlot{Start: "11:00", End: "11:30"},
	}, f.patient)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrIllegalTransition))
	assert.Contains(t, err.Error(), "in_progress")
}

func TestRescheduleTargetSlotTaken(t *testing.T) {
	f := newFixture(t)
	first := f.book(t)
	ctx := context.Background()

	req := f.createRequest()
	req.TimeSlot = model.TimeSlot{Start: "11:00", End: "11:30"}
	_, err := f.svc.CreateAppointment(ctx, req)
	require.NoError(t, err)

	_, err = f.svc.RescheduleAppointment(ctx, first.ID, &model.RescheduleAppointmentRequest{
		Date:     "2026-09-01",
		TimeSlot: model.TimeSlot{Start: "11:00", End: "11:30"},
	}, f.patient)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))
}

func TestRescheduleOntoOwnSlot(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t)

	// Re-confirming the same slot is not a conflict with itself.
	_, err := f.svc.RescheduleAppointment(context.Background(), appt.ID, &model.RescheduleAppointmentRequest{
		Date:     "2026-09-01",
		TimeSlot: model.TimeSlot{Start: "10:00", End: "10:30"},
	}, f.patient)
	assert.NoError(t, err)
}

func TestUpdateNotes(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t)
	ctx := context.Background()

	notes := "BP elevated, follow up in two weeks"
	rx := "amlodipine 5mg"
	updated, err := f.svc.UpdateNotes(ctx, appt.ID, &model.UpdateNotesRequest{Notes: &notes, Prescription: &rx}, f.provider)
	require.NoError(t, err)
	assert.Equal(t, notes, updated.Notes)
	require.NotNil(t, updated.Prescription)
	assert.Equal(t, rx, *updated.Prescription)
}

func TestUpdateNotesRejections(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t)
	ctx := context.Background()
	notes := "late entry"

	_, err := f.svc.UpdateNotes(ctx, appt.ID, &model.UpdateNotesRequest{}, f.provider)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	_, err = f.svc.UpdateNotes(ctx, appt.ID, &model.UpdateNotesRequest{Notes: &notes}, f.patient)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))

	_, err = f.svc.CancelAppointment(ctx, appt.ID, "", f.admin)
	require.NoError(t, err)

	_, err = f.svc.UpdateNotes(ctx, appt.ID, &model.UpdateNotesRequest{Notes: &notes}, f.provider)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrIllegalTransition))
}

func TestMarkPaid(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t)
	ctx := context.Background()

	_, err := f.svc.MarkPaid(ctx, appt.ID, f.patient)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))

	updated, err := f.svc.MarkPaid(ctx, appt.ID, f.admin)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPaid, updated.PaymentStatus)

	_, err = f.svc.MarkPaid(ctx, appt.ID, f.admin)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))
}

func TestProcessRefund(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t)
	ctx := context.Background()
	req := &model.ProcessRefundRequest{Amount: 5000, Reason: "duplicate charge"}

	_, err := f.svc.ProcessRefund(ctx, appt.ID, req, f.provider)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))

	// Unpaid appointments cannot be refunded.
	_, err = f.svc.ProcessRefund(ctx, appt.ID, req, f.admin)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))

	_, err = f.svc.MarkPaid(ctx, appt.ID, f.admin)
	require.NoError(t, err)

	_, err = f.svc.ProcessRefund(ctx, appt.ID, &model.ProcessRefundRequest{Amount: 6000, Reason: "x"}, f.admin)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	_, err = f.svc.ProcessRefund(ctx, appt.ID, &model.ProcessRefundRequest{Amount: 0, Reason: "x"}, f.admin)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	updated, err := f.svc.ProcessRefund(ctx, appt.ID, req, f.admin)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusRefunded, updated.PaymentStatus)
	assert.True(t, strings.Contains(updated.Notes, "[refund] 5000"), "audit line lands in notes: %q", updated.Notes)
	assert.Contains(t, updated.Notes, f.admin.ID.String())

	// Refunds are not reversible and not repeatable.
	_, err = f.svc.ProcessRefund(ctx, appt.ID, req, f.admin)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))
	assert.Contains(t, f.outbox.types(), model.EventAppointmentRefunded)
}

func TestRefundAllowedAfterCompletion(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t)
	ctx := context.Background()

	_, err := f.svc.MarkPaid(ctx, appt.ID, f.admin)
	require.NoError(t, err)
	for _, s := range []model.AppointmentStatus{
		model.AppointmentStatusConfirmed,
		model.AppointmentStatusInProgress,
		model.AppointmentStatusCompleted,
	} {
		_, err = f.svc.UpdateStatus(ctx, appt.ID, s, "", f.admin)
		require.NoError(t, err)
	}

	updated, err := f.svc.ProcessRefund(ctx, appt.ID, &model.ProcessRefundRequest{Amount: 2500, Reason: "partial goodwill"}, f.admin)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusRefunded, updated.PaymentStatus)
}

func TestGetAppointment(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t)
	ctx := context.Background()

	detail, err := f.svc.GetAppointment(ctx, appt.ID, f.patient)
	require.NoError(t, err)
	assert.Equal(t, "Dr. Osei", detail.ProviderName)
	assert.Equal(t, "cardiology", detail.ProviderSpecialty)
	assert.Equal(t, "Ama Mensah", detail.PatientName)

	stranger := &model.Caller{ID: uuid.New(), Role: model.RolePatient}
	_, err = f.svc.GetAppointment(ctx, appt.ID, stranger)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))
}

func TestListAppointmentsScoping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.book(t)

	// A second patient books with the same provider.
	otherPatient := uuid.New()
	f.svc.patients.(*fakePatients).items[otherPatient] = &model.Patient{Base: model.Base{ID: otherPatient}}
	req := f.createRequest()
	req.PatientID = otherPatient
	req.TimeSlot = model.TimeSlot{Start: "12:00", End: "12:30"}
	_, err := f.svc.CreateAppointment(ctx, req)
	require.NoError(t, err)

	mine, err := f.svc.ListAppointments(ctx, nil, f.patient)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	theirs, err := f.svc.ListAppointments(ctx, nil, f.provider)
	require.NoError(t, err)
	assert.Len(t, theirs, 2)

	all, err := f.svc.ListAppointments(ctx, nil, f.admin)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
