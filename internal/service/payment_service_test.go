package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctcadmin/ctc-admin-api/internal/models"
	appErrors "github.com/ctcadmin/ctc-admin-api/pkg/errors"
)

type mockPaymentRepo struct {
	payments map[string]*models.Payment
	byPreReg map[string]*models.Payment
	receipts map[string]string
}

func newMockPaymentRepo() *mockPaymentRepo {
	return &mockPaymentRepo{
		payments: map[string]*models.Payment{},
		byPreReg: map[string]*models.Payment{},
		receipts: map[string]string{},
	}
}

func (m *mockPaymentRepo) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	if p, ok := m.payments[id]; ok {
		copy := *p
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockPaymentRepo) FindByPreRegistration(ctx context.Context, preRegistrationID string) (*models.Payment, error) {
	if p, ok := m.byPreReg[preRegistrationID]; ok {
		copy := *p
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockPaymentRepo) ReceiptExists(ctx context.Context, receiptNumber, excludeID string) (bool, error) {
	id, ok := m.receipts[receiptNumber]
	return ok && id != excludeID, nil
}

func (m *mockPaymentRepo) Create(ctx context.Context, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = "pay-" + payment.ReceiptNumber
	}
	stored := *payment
	m.payments[payment.ID] = &stored
	m.byPreReg[payment.PreRegistrationID] = &stored
	m.receipts[payment.ReceiptNumber] = payment.ID
	return nil
}

func (m *mockPaymentRepo) Update(ctx context.Context, payment *models.Payment) error {
	old := m.payments[payment.ID]
	if old != nil {
		delete(m.receipts, old.ReceiptNumber)
	}
	stored := *payment
	m.payments[payment.ID] = &stored
	m.byPreReg[payment.PreRegistrationID] = &stored
	m.receipts[payment.ReceiptNumber] = payment.ID
	return nil
}

type mockParticipantReader struct {
	participants map[string]*models.Participant
}

func (m *mockParticipantReader) FindByID(ctx context.Context, id string) (*models.Participant, error) {
	if p, ok := m.participants[id]; ok {
		return p, nil
	}
	return nil, sql.ErrNoRows
}

type mockPriceReader struct {
	prices map[string]float64
}

func (m *mockPriceReader) GetPrice(ctx context.Context, courseID, participantTypeID string) (float64, error) {
	if price, ok := m.prices[courseID+"/"+participantTypeID]; ok {
		return price, nil
	}
	return 0, sql.ErrNoRows
}

type mockPaymentMetrics struct {
	recorded      int
	discrepancies int
}

func (m *mockPaymentMetrics) RecordPayment(discrepancy bool) {
	m.recorded++
	if discrepancy {
		m.discrepancies++
	}
}

type paymentFixture struct {
	svc      *PaymentService
	payments *mockPaymentRepo
	preRegs  *mockPreRegRepo
	metrics  *mockPaymentMetrics
}

func newPaymentFixture(status models.PreRegistrationStatus) *paymentFixture {
	payments := newMockPaymentRepo()
	preRegs := &mockPreRegRepo{
		preRegs: map[string]*models.PreRegistration{
			"pr-1": {ID: "pr-1", ParticipantID: "p-1", CourseID: "c-1", Status: status},
		},
		enrolled: map[string]bool{},
	}
	people := &mockParticipantReader{participants: map[string]*models.Participant{
		"p-1": {ID: "p-1", FullName: "Ana Gomez", ParticipantTypeID: "pt-student"},
	}}
	prices := &mockPriceReader{prices: map[string]float64{
		"c-1/pt-student": 120,
	}}
	metrics := &mockPaymentMetrics{}
	svc := NewPaymentService(payments, preRegs, people, prices, metrics, 0.01, nil, nil)
	return &paymentFixture{svc: svc, payments: payments, preRegs: preRegs, metrics: metrics}
}

func TestPaymentRecord(t *testing.T) {
	f := newPaymentFixture(models.PreRegistrationStatusApproved)

	result, err := f.svc.Record(context.Background(), RecordPaymentRequest{
		PreRegistrationID: "pr-1",
		Amount:            120,
		ReceiptNumber:     "R-001",
	})
	require.NoError(t, err)
	assert.Nil(t, result.Discrepancy)
	assert.Equal(t, 120.0, result.Payment.Amount)
	assert.False(t, result.Payment.PaidAt.IsZero())
	assert.Equal(t, 1, f.metrics.recorded)
	assert.Zero(t, f.metrics.discrepancies)
}

func TestPaymentRecordDiscrepancy(t *testing.T) {
	f := newPaymentFixture(models.PreRegistrationStatusApproved)

	result, err := f.svc.Record(context.Background(), RecordPaymentRequest{
		PreRegistrationID: "pr-1",
		Amount:            100,
		ReceiptNumber:     "R-001",
	})
	require.NoError(t, err)
	require.NotNil(t, result.Discrepancy)
	assert.Equal(t, 120.0, result.Discrepancy.Expected)
	assert.Equal(t, 100.0, result.Discrepancy.Actual)
	assert.Equal(t, -20.0, result.Discrepancy.Delta)
	assert.Equal(t, 1, f.metrics.discrepancies)

	// The write still happened.
	stored, err := f.payments.FindByPreRegistration(context.Background(), "pr-1")
	require.NoError(t, err)
	assert.Equal(t, 100.0, stored.Amount)
}

func TestPaymentRecordNotApproved(t *testing.T) {
	f := newPaymentFixture(models.PreRegistrationStatusPending)

	_, err := f.svc.Record(context.Background(), RecordPaymentRequest{
		PreRegistrationID: "pr-1",
		Amount:            120,
		ReceiptNumber:     "R-001",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))
}

func TestPaymentRecordAlreadyPaid(t *testing.T) {
	f := newPaymentFixture(models.PreRegistrationStatusApproved)
	_, err := f.svc.Record(context.Background(), RecordPaymentRequest{
		PreRegistrationID: "pr-1", Amount: 120, ReceiptNumber: "R-001",
	})
	require.NoError(t, err)

	_, err = f.svc.Record(context.Background(), RecordPaymentRequest{
		PreRegistrationID: "pr-1", Amount: 120, ReceiptNumber: "R-002",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrDuplicate))
	assert.Equal(t, "pre-registration already paid", appErrors.FromError(err).Message)
}

func TestPaymentRecordDuplicateReceipt(t *testing.T) {
	f := newPaymentFixture(models.PreRegistrationStatusApproved)
	f.preRegs.preRegs["pr-2"] = &models.PreRegistration{
		ID: "pr-2", ParticipantID: "p-1", CourseID: "c-1", Status: models.PreRegistrationStatusApproved,
	}
	_, err := f.svc.Record(context.Background(), RecordPaymentRequest{
		PreRegistrationID: "pr-1", Amount: 120, ReceiptNumber: "R-001",
	})
	require.NoError(t, err)

	_, err = f.svc.Record(context.Background(), RecordPaymentRequest{
		PreRegistrationID: "pr-2", Amount: 120, ReceiptNumber: "R-001",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrDuplicate))
	assert.Equal(t, "receipt number already used", appErrors.FromError(err).Message)
}

func TestPaymentRecordNoPriceSchedule(t *testing.T) {
	payments := newMockPaymentRepo()
	preRegs := &mockPreRegRepo{preRegs: map[string]*models.PreRegistration{
		"pr-1": {ID: "pr-1", ParticipantID: "p-1", CourseID: "c-unpriced", Status: models.PreRegistrationStatusApproved},
	}}
	people := &mockParticipantReader{participants: map[string]*models.Participant{
		"p-1": {ID: "p-1", ParticipantTypeID: "pt-student"},
	}}
	svc := NewPaymentService(payments, preRegs, people, &mockPriceReader{}, nil, 0.01, nil, nil)

	_, err := svc.Record(context.Background(), RecordPaymentRequest{
		PreRegistrationID: "pr-1", Amount: 120, ReceiptNumber: "R-001",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestPaymentEdit(t *testing.T) {
	f := newPaymentFixture(models.PreRegistrationStatusApproved)
	result, err := f.svc.Record(context.Background(), RecordPaymentRequest{
		PreRegistrationID: "pr-1", Amount: 100, ReceiptNumber: "R-001",
	})
	require.NoError(t, err)

	edited, err := f.svc.Edit(context.Background(), result.Payment.ID, EditPaymentRequest{
		Amount:        120,
		ReceiptNumber: "R-001-FIX",
	})
	require.NoError(t, err)
	assert.Nil(t, edited.Discrepancy)
	assert.Equal(t, 120.0, edited.Payment.Amount)
	assert.Equal(t, "R-001-FIX", edited.Payment.ReceiptNumber)
}

func TestPaymentEditImmutableOnceEnrolled(t *testing.T) {
	f := newPaymentFixture(models.PreRegistrationStatusApproved)
	result, err := f.svc.Record(context.Background(), RecordPaymentRequest{
		PreRegistrationID: "pr-1", Amount: 120, ReceiptNumber: "R-001",
	})
	require.NoError(t, err)

	f.preRegs.enrolled["pr-1"] = true
	_, err = f.svc.Edit(context.Background(), result.Payment.ID, EditPaymentRequest{
		Amount: 130, ReceiptNumber: "R-001",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))
}
