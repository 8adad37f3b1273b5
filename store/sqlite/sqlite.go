/*
Package sqlite provides the SQLite-backed implementation of the clinic
persistence interfaces.

PURPOSE:
  Implements clinic.Store (patients, treatments, inventory, loyalty,
  scheduling, users) on database/sql + mattn/go-sqlite3. The same SQL
  shapes port to PostgreSQL with minor dialect changes.

ATOMIC DELTAS:
  Balance and point adjustments run inside a single DB transaction under the
  store's write mutex, so the read-compute-write of a decimal balance cannot
  interleave with another writer. Stock decrements are a single conditional
  UPDATE guarded by `stock >= ?`. This satisfies the gateway's atomic delta
  contract without giving up decimal-string storage for money.

KEY INVARIANTS ENFORCED IN SCHEMA:
  - idx_unique_active_rule: at most one active loyalty rule per
    location + event type (violations map to ErrDuplicateActiveRule)
  - users.username UNIQUE
  - doctor_schedules primary key (doctor_id, day_of_week): one window per
    weekday

MONEY:
  Monetary values are stored as decimal strings (never REAL) and parsed back
  through shopspring/decimal.

USAGE:
  store, err := sqlite.New("./clinic.db")   // ":memory:" for tests
  defer store.Close()

SEE ALSO:
  - clinic/gateway.go: interface definitions
  - clinic/store/memory.go: in-memory implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/brightsmile/clinic-engine/clinic"
)

// Store implements clinic.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ clinic.Store = (*Store)(nil)

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS patients (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT,
		email TEXT,
		address TEXT,
		balance TEXT NOT NULL DEFAULT '0',
		loyalty_points INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS clinical_records (
		id TEXT PRIMARY KEY,
		patient_id TEXT NOT NULL,
		teeth_json TEXT,
		description TEXT,
		cost TEXT NOT NULL,
		date TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_records_patient
		ON clinical_records(patient_id, date);

	CREATE TABLE IF NOT EXISTS medicines (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		unit TEXT,
		price TEXT NOT NULL,
		stock INTEGER NOT NULL DEFAULT 0,
		min_stock INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS medicine_sales (
		id TEXT PRIMARY KEY,
		patient_id TEXT NOT NULL,
		medicine_id TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		unit_price TEXT NOT NULL,
		total TEXT NOT NULL,
		date TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sales_patient
		ON medicine_sales(patient_id, date);
	CREATE INDEX IF NOT EXISTS idx_sales_date
		ON medicine_sales(date);

	CREATE TABLE IF NOT EXISTS loyalty_rules (
		id TEXT PRIMARY KEY,
		location_id TEXT NOT NULL,
		name TEXT NOT NULL,
		event_type TEXT NOT NULL,
		points_per_unit TEXT NOT NULL,
		min_amount TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	-- At most one active rule per location + event type. The resolver is
	-- first-match; a second active rule would silently shadow the first.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_active_rule
		ON loyalty_rules(location_id, event_type)
		WHERE active = 1;

	CREATE TABLE IF NOT EXISTS loyalty_transactions (
		id TEXT PRIMARY KEY,
		patient_id TEXT NOT NULL,
		location_id TEXT NOT NULL,
		points INTEGER NOT NULL,
		tx_type TEXT NOT NULL,
		description TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_loyalty_tx_patient
		ON loyalty_transactions(patient_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_loyalty_tx_created
		ON loyalty_transactions(created_at);

	CREATE TABLE IF NOT EXISTS doctors (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT,
		specialization TEXT
	);

	CREATE TABLE IF NOT EXISTS doctor_schedules (
		doctor_id TEXT NOT NULL,
		day_of_week INTEGER NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		PRIMARY KEY (doctor_id, day_of_week)
	);

	CREATE TABLE IF NOT EXISTS appointments (
		id TEXT PRIMARY KEY,
		patient_id TEXT NOT NULL,
		doctor_id TEXT NOT NULL,
		date TEXT NOT NULL,
		time TEXT NOT NULL,
		type TEXT,
		status TEXT NOT NULL DEFAULT 'Scheduled',
		notes TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_appointments_doctor_date
		ON appointments(doctor_id, date, status);
	CREATE INDEX IF NOT EXISTS idx_appointments_patient
		ON appointments(patient_id, date);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL,
		location_id TEXT,
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// PATIENTS (clinic.PatientStore)
// =============================================================================

func (s *Store) GetPatient(ctx context.Context, id clinic.PatientID) (*clinic.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getPatient(ctx, s.db, id)
}

func (s *Store) getPatient(ctx context.Context, q queryer, id clinic.PatientID) (*clinic.Patient, error) {
	var p clinic.Patient
	var balance, createdAt string
	err := q.QueryRowContext(ctx,
		`SELECT id, name, phone, email, address, balance, loyalty_points, created_at
		 FROM patients WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.Phone, &p.Email, &p.Address, &balance, &p.LoyaltyPoints, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &clinic.GatewayError{Op: "get patient", Err: err}
	}
	p.Balance = parseDecimal(balance)
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &p, nil
}

func (s *Store) ListPatients(ctx context.Context) ([]clinic.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, phone, email, address, balance, loyalty_points, created_at
		 FROM patients ORDER BY created_at, id`)
	if err != nil {
		return nil, &clinic.GatewayError{Op: "list patients", Err: err}
	}
	defer rows.Close()

	var out []clinic.Patient
	for rows.Next() {
		var p clinic.Patient
		var balance, createdAt string
		if err := rows.Scan(&p.ID, &p.Name, &p.Phone, &p.Email, &p.Address, &balance, &p.LoyaltyPoints, &createdAt); err != nil {
			return nil, &clinic.GatewayError{Op: "scan patient", Err: err}
		}
		p.Balance = parseDecimal(balance)
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) InsertPatient(ctx context.Context, p clinic.Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO patients (id, name, phone, email, address, balance, loyalty_points, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Phone, p.Email, p.Address,
		p.Balance.String(), p.LoyaltyPoints, createdAt.Format(time.RFC3339),
	)
	if err != nil {
		return &clinic.GatewayError{Op: "insert patient", Err: err}
	}
	return nil
}

func (s *Store) UpdatePatient(ctx context.Context, id clinic.PatientID, upd clinic.PatientUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sets := []string{}
	args := []any{}
	if upd.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *upd.Name)
	}
	if upd.Phone != nil {
		sets = append(sets, "phone = ?")
		args = append(args, *upd.Phone)
	}
	if upd.Email != nil {
		sets = append(sets, "email = ?")
		args = append(args, *upd.Email)
	}
	if upd.Address != nil {
		sets = append(sets, "address = ?")
		args = append(args, *upd.Address)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		"UPDATE patients SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return &clinic.GatewayError{Op: "update patient", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return clinic.ErrPatientNotFound
	}
	return nil
}

// AdjustBalance applies the delta inside one DB transaction under the write
// mutex. Decimal arithmetic happens in Go on the value read within the same
// transaction, so no concurrent writer can interleave.
func (s *Store) AdjustBalance(ctx context.Context, id clinic.PatientID, delta decimal.Decimal, clampZero bool) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return decimal.Zero, &clinic.GatewayError{Op: "adjust balance", Err: err}
	}
	defer tx.Rollback()

	var balance string
	err = tx.QueryRowContext(ctx, "SELECT balance FROM patients WHERE id = ?", id).Scan(&balance)
	if err == sql.ErrNoRows {
		return decimal.Zero, clinic.ErrPatientNotFound
	}
	if err != nil {
		return decimal.Zero, &clinic.GatewayError{Op: "adjust balance", Err: err}
	}

	newBalance := parseDecimal(balance).Add(delta)
	if clampZero && newBalance.IsNegative() {
		newBalance = decimal.Zero
	}
	if _, err := tx.ExecContext(ctx, "UPDATE patients SET balance = ? WHERE id = ?", newBalance.String(), id); err != nil {
		return decimal.Zero, &clinic.GatewayError{Op: "adjust balance", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return decimal.Zero, &clinic.GatewayError{Op: "adjust balance", Err: err}
	}
	return newBalance, nil
}

func (s *Store) AdjustPoints(ctx context.Context, id clinic.PatientID, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE patients SET loyalty_points = MAX(0, loyalty_points + ?) WHERE id = ?", delta, id)
	if err != nil {
		return 0, &clinic.GatewayError{Op: "adjust points", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, clinic.ErrPatientNotFound
	}

	var points int64
	if err := s.db.QueryRowContext(ctx, "SELECT loyalty_points FROM patients WHERE id = ?", id).Scan(&points); err != nil {
		return 0, &clinic.GatewayError{Op: "adjust points", Err: err}
	}
	return points, nil
}

// =============================================================================
// TREATMENTS (clinic.TreatmentStore)
// =============================================================================

func (s *Store) InsertRecord(ctx context.Context, rec clinic.ClinicalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	teethJSON, _ := json.Marshal(rec.Teeth)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO clinical_records (id, patient_id, teeth_json, description, cost, date)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.PatientID, string(teethJSON), rec.Description,
		rec.Cost.String(), rec.Date.Format(time.RFC3339),
	)
	if err != nil {
		return &clinic.GatewayError{Op: "insert record", Err: err}
	}
	return nil
}

func (s *Store) GetRecord(ctx context.Context, id clinic.RecordID) (*clinic.ClinicalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.queryRecords(ctx, "WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (s *Store) ListRecordsByPatient(ctx context.Context, patientID clinic.PatientID) ([]clinic.ClinicalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryRecords(ctx, "WHERE patient_id = ? ORDER BY date", patientID)
}

func (s *Store) ListRecordsInRange(ctx context.Context, from, to time.Time) ([]clinic.ClinicalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryRecords(ctx, "WHERE date >= ? AND date <= ? ORDER BY date",
		from.Format(time.RFC3339), to.Format(time.RFC3339))
}

func (s *Store) queryRecords(ctx context.Context, where string, args ...any) ([]clinic.ClinicalRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, patient_id, teeth_json, description, cost, date FROM clinical_records `+where, args...)
	if err != nil {
		return nil, &clinic.GatewayError{Op: "query records", Err: err}
	}
	defer rows.Close()

	var out []clinic.ClinicalRecord
	for rows.Next() {
		var rec clinic.ClinicalRecord
		var teethJSON, cost, date string
		if err := rows.Scan(&rec.ID, &rec.PatientID, &teethJSON, &rec.Description, &cost, &date); err != nil {
			return nil, &clinic.GatewayError{Op: "scan record", Err: err}
		}
		json.Unmarshal([]byte(teethJSON), &rec.Teeth)
		rec.Cost = parseDecimal(cost)
		rec.Date, _ = time.Parse(time.RFC3339, date)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) DeleteRecord(ctx context.Context, id clinic.RecordID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM clinical_records WHERE id = ?", id)
	if err != nil {
		return &clinic.GatewayError{Op: "delete record", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return clinic.ErrRecordNotFound
	}
	return nil
}

// =============================================================================
// INVENTORY (clinic.InventoryStore)
// =============================================================================

func (s *Store) GetMedicine(ctx context.Context, id clinic.MedicineID) (*clinic.Medicine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var m clinic.Medicine
	var price string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, unit, price, stock, min_stock FROM medicines WHERE id = ?", id,
	).Scan(&m.ID, &m.Name, &m.Unit, &price, &m.Stock, &m.MinStock)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &clinic.GatewayError{Op: "get medicine", Err: err}
	}
	m.Price = parseDecimal(price)
	return &m, nil
}

func (s *Store) ListMedicines(ctx context.Context) ([]clinic.Medicine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, unit, price, stock, min_stock FROM medicines ORDER BY name")
	if err != nil {
		return nil, &clinic.GatewayError{Op: "list medicines", Err: err}
	}
	defer rows.Close()

	var out []clinic.Medicine
	for rows.Next() {
		var m clinic.Medicine
		var price string
		if err := rows.Scan(&m.ID, &m.Name, &m.Unit, &price, &m.Stock, &m.MinStock); err != nil {
			return nil, &clinic.GatewayError{Op: "scan medicine", Err: err}
		}
		m.Price = parseDecimal(price)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) InsertMedicine(ctx context.Context, m clinic.Medicine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO medicines (id, name, unit, price, stock, min_stock)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.Name, m.Unit, m.Price.String(), m.Stock, m.MinStock)
	if err != nil {
		return &clinic.GatewayError{Op: "insert medicine", Err: err}
	}
	return nil
}

func (s *Store) UpdateMedicine(ctx context.Context, m clinic.Medicine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE medicines SET name = ?, unit = ?, price = ?, stock = ?, min_stock = ?
		 WHERE id = ?`,
		m.Name, m.Unit, m.Price.String(), m.Stock, m.MinStock, m.ID)
	if err != nil {
		return &clinic.GatewayError{Op: "update medicine", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return clinic.ErrMedicineNotFound
	}
	return nil
}

// DecrementStock is a single conditional UPDATE; the `stock >= ?` guard
// keeps stock non-negative even under concurrent sales.
func (s *Store) DecrementStock(ctx context.Context, id clinic.MedicineID, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE medicines SET stock = stock - ? WHERE id = ? AND stock >= ?",
		quantity, id, quantity)
	if err != nil {
		return &clinic.GatewayError{Op: "decrement stock", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var stock int
		err := s.db.QueryRowContext(ctx, "SELECT stock FROM medicines WHERE id = ?", id).Scan(&stock)
		if err == sql.ErrNoRows {
			return clinic.ErrMedicineNotFound
		}
		if err != nil {
			return &clinic.GatewayError{Op: "decrement stock", Err: err}
		}
		return &clinic.InsufficientStockError{MedicineID: id, Requested: quantity, Available: stock}
	}
	return nil
}

func (s *Store) InsertSale(ctx context.Context, sale clinic.MedicineSale) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO medicine_sales (id, patient_id, medicine_id, quantity, unit_price, total, date)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sale.ID, sale.PatientID, sale.MedicineID, sale.Quantity,
		sale.UnitPrice.String(), sale.Total.String(), sale.Date.Format(time.RFC3339))
	if err != nil {
		return &clinic.GatewayError{Op: "insert sale", Err: err}
	}
	return nil
}

func (s *Store) ListSalesByPatient(ctx context.Context, patientID clinic.PatientID) ([]clinic.MedicineSale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.querySales(ctx, "WHERE patient_id = ? ORDER BY date", patientID)
}

func (s *Store) ListSalesInRange(ctx context.Context, from, to time.Time) ([]clinic.MedicineSale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.querySales(ctx, "WHERE date >= ? AND date <= ? ORDER BY date",
		from.Format(time.RFC3339), to.Format(time.RFC3339))
}

func (s *Store) querySales(ctx context.Context, where string, args ...any) ([]clinic.MedicineSale, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, patient_id, medicine_id, quantity, unit_price, total, date
		 FROM medicine_sales `+where, args...)
	if err != nil {
		return nil, &clinic.GatewayError{Op: "query sales", Err: err}
	}
	defer rows.Close()

	var out []clinic.MedicineSale
	for rows.Next() {
		var sale clinic.MedicineSale
		var unitPrice, total, date string
		if err := rows.Scan(&sale.ID, &sale.PatientID, &sale.MedicineID, &sale.Quantity,
			&unitPrice, &total, &date); err != nil {
			return nil, &clinic.GatewayError{Op: "scan sale", Err: err}
		}
		sale.UnitPrice = parseDecimal(unitPrice)
		sale.Total = parseDecimal(total)
		sale.Date, _ = time.Parse(time.RFC3339, date)
		out = append(out, sale)
	}
	return out, rows.Err()
}

// =============================================================================
// LOYALTY (clinic.LoyaltyStore)
// =============================================================================

func (s *Store) ListRules(ctx context.Context, locationID clinic.LocationID) ([]clinic.LoyaltyRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, location_id, name, event_type, points_per_unit, min_amount, active
		 FROM loyalty_rules WHERE location_id = ? ORDER BY rowid`, locationID)
	if err != nil {
		return nil, &clinic.GatewayError{Op: "list rules", Err: err}
	}
	defer rows.Close()

	var out []clinic.LoyaltyRule
	for rows.Next() {
		var r clinic.LoyaltyRule
		var ppu, minAmount string
		var active int
		if err := rows.Scan(&r.ID, &r.LocationID, &r.Name, &r.EventType, &ppu, &minAmount, &active); err != nil {
			return nil, &clinic.GatewayError{Op: "scan rule", Err: err}
		}
		r.PointsPerUnit = parseDecimal(ppu)
		r.MinAmount = parseDecimal(minAmount)
		r.Active = active == 1
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) InsertRule(ctx context.Context, rule clinic.LoyaltyRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO loyalty_rules (id, location_id, name, event_type, points_per_unit, min_amount, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.LocationID, rule.Name, rule.EventType,
		rule.PointsPerUnit.String(), rule.MinAmount.String(), boolInt(rule.Active),
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		if isActiveRuleConflict(err) {
			return clinic.ErrDuplicateActiveRule
		}
		return &clinic.GatewayError{Op: "insert rule", Err: err}
	}
	return nil
}

func (s *Store) UpdateRule(ctx context.Context, rule clinic.LoyaltyRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE loyalty_rules SET location_id = ?, name = ?, event_type = ?,
		 points_per_unit = ?, min_amount = ?, active = ? WHERE id = ?`,
		rule.LocationID, rule.Name, rule.EventType,
		rule.PointsPerUnit.String(), rule.MinAmount.String(), boolInt(rule.Active), rule.ID)
	if err != nil {
		if isActiveRuleConflict(err) {
			return clinic.ErrDuplicateActiveRule
		}
		return &clinic.GatewayError{Op: "update rule", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return clinic.ErrRuleNotFound
	}
	return nil
}

func (s *Store) DeleteRule(ctx context.Context, id clinic.RuleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM loyalty_rules WHERE id = ?", id); err != nil {
		return &clinic.GatewayError{Op: "delete rule", Err: err}
	}
	return nil
}

func (s *Store) AppendLoyaltyTransaction(ctx context.Context, tx clinic.LoyaltyTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := tx.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO loyalty_transactions (id, patient_id, location_id, points, tx_type, description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.PatientID, tx.LocationID, tx.Points, tx.Type, tx.Description,
		createdAt.Format(time.RFC3339))
	if err != nil {
		return &clinic.GatewayError{Op: "append loyalty tx", Err: err}
	}
	return nil
}

func (s *Store) ListLoyaltyTransactions(ctx context.Context, patientID clinic.PatientID) ([]clinic.LoyaltyTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryLoyaltyTxs(ctx, "WHERE patient_id = ? ORDER BY created_at, id", patientID)
}

func (s *Store) ListLoyaltyTransactionsInRange(ctx context.Context, from, to time.Time) ([]clinic.LoyaltyTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryLoyaltyTxs(ctx, "WHERE created_at >= ? AND created_at <= ? ORDER BY created_at, id",
		from.Format(time.RFC3339), to.Format(time.RFC3339))
}

func (s *Store) queryLoyaltyTxs(ctx context.Context, where string, args ...any) ([]clinic.LoyaltyTransaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, patient_id, location_id, points, tx_type, description, created_at
		 FROM loyalty_transactions `+where, args...)
	if err != nil {
		return nil, &clinic.GatewayError{Op: "query loyalty txs", Err: err}
	}
	defer rows.Close()

	var out []clinic.LoyaltyTransaction
	for rows.Next() {
		var tx clinic.LoyaltyTransaction
		var createdAt string
		if err := rows.Scan(&tx.ID, &tx.PatientID, &tx.LocationID, &tx.Points, &tx.Type,
			&tx.Description, &createdAt); err != nil {
			return nil, &clinic.GatewayError{Op: "scan loyalty tx", Err: err}
		}
		tx.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, tx)
	}
	return out, rows.Err()
}

// ResetLoyalty zeroes all point counters and purges the transaction history
// in one DB transaction.
func (s *Store) ResetLoyalty(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &clinic.GatewayError{Op: "reset loyalty", Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "UPDATE patients SET loyalty_points = 0"); err != nil {
		return &clinic.GatewayError{Op: "reset loyalty", Err: err}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM loyalty_transactions"); err != nil {
		return &clinic.GatewayError{Op: "reset loyalty", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &clinic.GatewayError{Op: "reset loyalty", Err: err}
	}
	return nil
}

// =============================================================================
// SCHEDULING (clinic.SchedulingStore)
// =============================================================================

func (s *Store) GetDoctor(ctx context.Context, id clinic.DoctorID) (*clinic.Doctor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var d clinic.Doctor
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, phone, specialization FROM doctors WHERE id = ?", id,
	).Scan(&d.ID, &d.Name, &d.Phone, &d.Specialization)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &clinic.GatewayError{Op: "get doctor", Err: err}
	}

	schedules, err := s.loadSchedules(ctx, id)
	if err != nil {
		return nil, err
	}
	d.Schedules = schedules
	return &d, nil
}

func (s *Store) loadSchedules(ctx context.Context, id clinic.DoctorID) ([]clinic.DoctorSchedule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT day_of_week, start_time, end_time FROM doctor_schedules
		 WHERE doctor_id = ? ORDER BY day_of_week`, id)
	if err != nil {
		return nil, &clinic.GatewayError{Op: "load schedules", Err: err}
	}
	defer rows.Close()

	var out []clinic.DoctorSchedule
	for rows.Next() {
		var sch clinic.DoctorSchedule
		var day int
		if err := rows.Scan(&day, &sch.StartTime, &sch.EndTime); err != nil {
			return nil, &clinic.GatewayError{Op: "scan schedule", Err: err}
		}
		sch.DayOfWeek = time.Weekday(day)
		out = append(out, sch)
	}
	return out, rows.Err()
}

func (s *Store) ListDoctors(ctx context.Context) ([]clinic.Doctor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, phone, specialization FROM doctors ORDER BY name")
	if err != nil {
		return nil, &clinic.GatewayError{Op: "list doctors", Err: err}
	}
	defer rows.Close()

	var out []clinic.Doctor
	for rows.Next() {
		var d clinic.Doctor
		if err := rows.Scan(&d.ID, &d.Name, &d.Phone, &d.Specialization); err != nil {
			return nil, &clinic.GatewayError{Op: "scan doctor", Err: err}
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		schedules, err := s.loadSchedules(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Schedules = schedules
	}
	return out, nil
}

func (s *Store) InsertDoctor(ctx context.Context, d clinic.Doctor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveDoctor(ctx, d, true)
}

func (s *Store) UpdateDoctor(ctx context.Context, d clinic.Doctor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveDoctor(ctx, d, false)
}

func (s *Store) saveDoctor(ctx context.Context, d clinic.Doctor, insert bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &clinic.GatewayError{Op: "save doctor", Err: err}
	}
	defer tx.Rollback()

	if insert {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO doctors (id, name, phone, specialization) VALUES (?, ?, ?, ?)",
			d.ID, d.Name, d.Phone, d.Specialization)
	} else {
		var res sql.Result
		res, err = tx.ExecContext(ctx,
			"UPDATE doctors SET name = ?, phone = ?, specialization = ? WHERE id = ?",
			d.Name, d.Phone, d.Specialization, d.ID)
		if err == nil {
			if n, _ := res.RowsAffected(); n == 0 {
				return clinic.ErrDoctorNotFound
			}
		}
	}
	if err != nil {
		return &clinic.GatewayError{Op: "save doctor", Err: err}
	}

	// Schedules are replaced wholesale on every save.
	if _, err := tx.ExecContext(ctx, "DELETE FROM doctor_schedules WHERE doctor_id = ?", d.ID); err != nil {
		return &clinic.GatewayError{Op: "save doctor", Err: err}
	}
	for _, sch := range d.Schedules {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO doctor_schedules (doctor_id, day_of_week, start_time, end_time)
			 VALUES (?, ?, ?, ?)`,
			d.ID, int(sch.DayOfWeek), sch.StartTime, sch.EndTime); err != nil {
			return &clinic.GatewayError{Op: "save doctor", Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &clinic.GatewayError{Op: "save doctor", Err: err}
	}
	return nil
}

func (s *Store) GetAppointment(ctx context.Context, id clinic.AppointmentID) (*clinic.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var a clinic.Appointment
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, patient_id, doctor_id, date, time, type, status, notes, created_at
		 FROM appointments WHERE id = ?`, id,
	).Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.Date, &a.Time, &a.Type, &a.Status, &a.Notes, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &clinic.GatewayError{Op: "get appointment", Err: err}
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &a, nil
}

func (s *Store) ListAppointments(ctx context.Context, filter clinic.AppointmentFilter) ([]clinic.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where := []string{"1=1"}
	args := []any{}
	if filter.PatientID != "" {
		where = append(where, "patient_id = ?")
		args = append(args, filter.PatientID)
	}
	if filter.DoctorID != "" {
		where = append(where, "doctor_id = ?")
		args = append(args, filter.DoctorID)
	}
	if filter.Date != "" {
		where = append(where, "date = ?")
		args = append(args, filter.Date)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, patient_id, doctor_id, date, time, type, status, notes, created_at
		 FROM appointments WHERE `+strings.Join(where, " AND ")+` ORDER BY date, time`, args...)
	if err != nil {
		return nil, &clinic.GatewayError{Op: "list appointments", Err: err}
	}
	defer rows.Close()

	var out []clinic.Appointment
	for rows.Next() {
		var a clinic.Appointment
		var createdAt string
		if err := rows.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.Date, &a.Time, &a.Type,
			&a.Status, &a.Notes, &createdAt); err != nil {
			return nil, &clinic.GatewayError{Op: "scan appointment", Err: err}
		}
		a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) InsertAppointment(ctx context.Context, a clinic.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO appointments (id, patient_id, doctor_id, date, time, type, status, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.PatientID, a.DoctorID, a.Date, a.Time, a.Type, a.Status, a.Notes,
		createdAt.Format(time.RFC3339))
	if err != nil {
		return &clinic.GatewayError{Op: "insert appointment", Err: err}
	}
	return nil
}

func (s *Store) UpdateAppointmentStatus(ctx context.Context, id clinic.AppointmentID, status clinic.AppointmentStatus, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res sql.Result
	var err error
	if notes != "" {
		res, err = s.db.ExecContext(ctx,
			"UPDATE appointments SET status = ?, notes = ? WHERE id = ?", status, notes, id)
	} else {
		res, err = s.db.ExecContext(ctx,
			"UPDATE appointments SET status = ? WHERE id = ?", status, id)
	}
	if err != nil {
		return &clinic.GatewayError{Op: "update appointment", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return clinic.ErrAppointmentNotFound
	}
	return nil
}

func (s *Store) BookedTimes(ctx context.Context, doctorID clinic.DoctorID, date string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT time FROM appointments
		 WHERE doctor_id = ? AND date = ? AND status = ? ORDER BY time`,
		doctorID, date, clinic.AppointmentScheduled)
	if err != nil {
		return nil, &clinic.GatewayError{Op: "booked times", Err: err}
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, &clinic.GatewayError{Op: "scan booked time", Err: err}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// =============================================================================
// USERS (clinic.UserStore)
// =============================================================================

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*clinic.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var u clinic.User
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, role, location_id, created_at
		 FROM users WHERE username = ?`, username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.LocationID, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &clinic.GatewayError{Op: "get user", Err: err}
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &u, nil
}

func (s *Store) InsertUser(ctx context.Context, u clinic.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := u.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, role, location_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.PasswordHash, u.Role, u.LocationID,
		createdAt.Format(time.RFC3339))
	if err != nil {
		return &clinic.GatewayError{Op: "insert user", Err: err}
	}
	return nil
}

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&n); err != nil {
		return 0, &clinic.GatewayError{Op: "count users", Err: err}
	}
	return n, nil
}

// =============================================================================
// HELPERS
// =============================================================================

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isActiveRuleConflict reports whether err is the unique-constraint violation
// raised by idx_unique_active_rule. The driver reports partial-index
// violations by column list, not index name, so the check is on the
// constraint class rather than the error text.
func isActiveRuleConflict(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
