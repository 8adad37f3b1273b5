// Package store provides an in-memory clinic.Store implementation for
// tests and development. All mutations hold one mutex, so the atomic delta
// contract of the gateway holds trivially.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brightsmile/clinic-engine/clinic"
)

// Memory implements clinic.Store with maps. Slices returned to callers are
// copies; mutating them does not touch stored state.
type Memory struct {
	mu           sync.RWMutex
	patients     map[clinic.PatientID]clinic.Patient
	records      map[clinic.RecordID]clinic.ClinicalRecord
	medicines    map[clinic.MedicineID]clinic.Medicine
	sales        []clinic.MedicineSale
	rules        []clinic.LoyaltyRule
	loyaltyTxs   []clinic.LoyaltyTransaction
	doctors      map[clinic.DoctorID]clinic.Doctor
	appointments map[clinic.AppointmentID]clinic.Appointment
	users        map[string]clinic.User

	patientOrder []clinic.PatientID
}

var _ clinic.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		patients:     make(map[clinic.PatientID]clinic.Patient),
		records:      make(map[clinic.RecordID]clinic.ClinicalRecord),
		medicines:    make(map[clinic.MedicineID]clinic.Medicine),
		doctors:      make(map[clinic.DoctorID]clinic.Doctor),
		appointments: make(map[clinic.AppointmentID]clinic.Appointment),
		users:        make(map[string]clinic.User),
	}
}

// =============================================================================
// PATIENTS
// =============================================================================

func (m *Memory) GetPatient(_ context.Context, id clinic.PatientID) (*clinic.Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *Memory) ListPatients(_ context.Context) ([]clinic.Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]clinic.Patient, 0, len(m.patientOrder))
	for _, id := range m.patientOrder {
		out = append(out, m.patients[id])
	}
	return out, nil
}

func (m *Memory) InsertPatient(_ context.Context, p clinic.Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.patients[p.ID]; !ok {
		m.patientOrder = append(m.patientOrder, p.ID)
	}
	m.patients[p.ID] = p
	return nil
}

func (m *Memory) UpdatePatient(_ context.Context, id clinic.PatientID, upd clinic.PatientUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return clinic.ErrPatientNotFound
	}
	if upd.Name != nil {
		p.Name = *upd.Name
	}
	if upd.Phone != nil {
		p.Phone = *upd.Phone
	}
	if upd.Email != nil {
		p.Email = *upd.Email
	}
	if upd.Address != nil {
		p.Address = *upd.Address
	}
	m.patients[id] = p
	return nil
}

func (m *Memory) AdjustBalance(_ context.Context, id clinic.PatientID, delta decimal.Decimal, clampZero bool) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return decimal.Zero, clinic.ErrPatientNotFound
	}
	p.Balance = p.Balance.Add(delta)
	if clampZero && p.Balance.IsNegative() {
		p.Balance = decimal.Zero
	}
	m.patients[id] = p
	return p.Balance, nil
}

func (m *Memory) AdjustPoints(_ context.Context, id clinic.PatientID, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return 0, clinic.ErrPatientNotFound
	}
	p.LoyaltyPoints += delta
	if p.LoyaltyPoints < 0 {
		p.LoyaltyPoints = 0
	}
	m.patients[id] = p
	return p.LoyaltyPoints, nil
}

// =============================================================================
// TREATMENTS
// =============================================================================

func (m *Memory) InsertRecord(_ context.Context, rec clinic.ClinicalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = rec
	return nil
}

func (m *Memory) GetRecord(_ context.Context, id clinic.RecordID) (*clinic.ClinicalRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *Memory) ListRecordsByPatient(_ context.Context, patientID clinic.PatientID) ([]clinic.ClinicalRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []clinic.ClinicalRecord
	for _, rec := range m.records {
		if rec.PatientID == patientID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *Memory) ListRecordsInRange(_ context.Context, from, to time.Time) ([]clinic.ClinicalRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []clinic.ClinicalRecord
	for _, rec := range m.records {
		if !rec.Date.Before(from) && !rec.Date.After(to) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *Memory) DeleteRecord(_ context.Context, id clinic.RecordID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return clinic.ErrRecordNotFound
	}
	delete(m.records, id)
	return nil
}

// =============================================================================
// INVENTORY
// =============================================================================

func (m *Memory) GetMedicine(_ context.Context, id clinic.MedicineID) (*clinic.Medicine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	med, ok := m.medicines[id]
	if !ok {
		return nil, nil
	}
	return &med, nil
}

func (m *Memory) ListMedicines(_ context.Context) ([]clinic.Medicine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]clinic.Medicine, 0, len(m.medicines))
	for _, med := range m.medicines {
		out = append(out, med)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) InsertMedicine(_ context.Context, med clinic.Medicine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.medicines[med.ID] = med
	return nil
}

func (m *Memory) UpdateMedicine(_ context.Context, med clinic.Medicine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.medicines[med.ID]; !ok {
		return clinic.ErrMedicineNotFound
	}
	m.medicines[med.ID] = med
	return nil
}

func (m *Memory) DecrementStock(_ context.Context, id clinic.MedicineID, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	med, ok := m.medicines[id]
	if !ok {
		return clinic.ErrMedicineNotFound
	}
	if quantity > med.Stock {
		return &clinic.InsufficientStockError{MedicineID: id, Requested: quantity, Available: med.Stock}
	}
	med.Stock -= quantity
	m.medicines[id] = med
	return nil
}

func (m *Memory) InsertSale(_ context.Context, sale clinic.MedicineSale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sales = append(m.sales, sale)
	return nil
}

func (m *Memory) ListSalesByPatient(_ context.Context, patientID clinic.PatientID) ([]clinic.MedicineSale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []clinic.MedicineSale
	for _, s := range m.sales {
		if s.PatientID == patientID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *Memory) ListSalesInRange(_ context.Context, from, to time.Time) ([]clinic.MedicineSale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []clinic.MedicineSale
	for _, s := range m.sales {
		if !s.Date.Before(from) && !s.Date.After(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

// =============================================================================
// LOYALTY
// =============================================================================

func (m *Memory) ListRules(_ context.Context, locationID clinic.LocationID) ([]clinic.LoyaltyRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []clinic.LoyaltyRule
	for _, r := range m.rules {
		if r.LocationID == locationID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) InsertRule(_ context.Context, rule clinic.LoyaltyRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := clinic.ValidateNewRule(m.rules, rule); err != nil {
		return err
	}
	m.rules = append(m.rules, rule)
	return nil
}

func (m *Memory) UpdateRule(_ context.Context, rule clinic.LoyaltyRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := clinic.ValidateNewRule(m.rules, rule); err != nil {
		return err
	}
	for i, r := range m.rules {
		if r.ID == rule.ID {
			m.rules[i] = rule
			return nil
		}
	}
	return clinic.ErrRuleNotFound
}

func (m *Memory) DeleteRule(_ context.Context, id clinic.RuleID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.rules {
		if r.ID == id {
			m.rules = append(m.rules[:i], m.rules[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *Memory) AppendLoyaltyTransaction(_ context.Context, tx clinic.LoyaltyTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loyaltyTxs = append(m.loyaltyTxs, tx)
	return nil
}

func (m *Memory) ListLoyaltyTransactions(_ context.Context, patientID clinic.PatientID) ([]clinic.LoyaltyTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []clinic.LoyaltyTransaction
	for _, tx := range m.loyaltyTxs {
		if tx.PatientID == patientID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (m *Memory) ListLoyaltyTransactionsInRange(_ context.Context, from, to time.Time) ([]clinic.LoyaltyTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []clinic.LoyaltyTransaction
	for _, tx := range m.loyaltyTxs {
		if !tx.CreatedAt.Before(from) && !tx.CreatedAt.After(to) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (m *Memory) ResetLoyalty(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.patients {
		p.LoyaltyPoints = 0
		m.patients[id] = p
	}
	m.loyaltyTxs = nil
	return nil
}

// =============================================================================
// SCHEDULING
// =============================================================================

func (m *Memory) GetDoctor(_ context.Context, id clinic.DoctorID) (*clinic.Doctor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (m *Memory) ListDoctors(_ context.Context) ([]clinic.Doctor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]clinic.Doctor, 0, len(m.doctors))
	for _, d := range m.doctors {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) InsertDoctor(_ context.Context, d clinic.Doctor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doctors[d.ID] = d
	return nil
}

func (m *Memory) UpdateDoctor(_ context.Context, d clinic.Doctor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.doctors[d.ID]; !ok {
		return clinic.ErrDoctorNotFound
	}
	m.doctors[d.ID] = d
	return nil
}

func (m *Memory) GetAppointment(_ context.Context, id clinic.AppointmentID) (*clinic.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *Memory) ListAppointments(_ context.Context, filter clinic.AppointmentFilter) ([]clinic.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []clinic.Appointment
	for _, a := range m.appointments {
		if filter.PatientID != "" && a.PatientID != filter.PatientID {
			continue
		}
		if filter.DoctorID != "" && a.DoctorID != filter.DoctorID {
			continue
		}
		if filter.Date != "" && a.Date != filter.Date {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Time < out[j].Time
	})
	return out, nil
}

func (m *Memory) InsertAppointment(_ context.Context, a clinic.Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appointments[a.ID] = a
	return nil
}

func (m *Memory) UpdateAppointmentStatus(_ context.Context, id clinic.AppointmentID, status clinic.AppointmentStatus, notes string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return clinic.ErrAppointmentNotFound
	}
	a.Status = status
	if notes != "" {
		a.Notes = notes
	}
	m.appointments[id] = a
	return nil
}

func (m *Memory) BookedTimes(_ context.Context, doctorID clinic.DoctorID, date string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for _, a := range m.appointments {
		if a.DoctorID == doctorID && a.Date == date && a.Status == clinic.AppointmentScheduled {
			out = append(out, a.Time)
		}
	}
	sort.Strings(out)
	return out, nil
}

// =============================================================================
// USERS
// =============================================================================

func (m *Memory) GetUserByUsername(_ context.Context, username string) (*clinic.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[username]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *Memory) InsertUser(_ context.Context, u clinic.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.Username] = u
	return nil
}

func (m *Memory) CountUsers(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users), nil
}
