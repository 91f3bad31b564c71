// Package sqlite implements the inventory store over SQLite. It
// mirrors the semantics of inventory.MemoryStore; the primary-key
// constraint on cable_endpoints is the authoritative backstop for the
// "interface used at most once" invariant, so two invocations racing
// for the same endpoint resolve to exactly one created cable and one
// conflict regardless of process interleaving.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	sqlite3 "modernc.org/sqlite"

	"github.com/signalsfoundry/fabric-planner/inventory"
	"github.com/signalsfoundry/fabric-planner/model"
)

// Store is a SQLite-backed inventory.Store.
type Store struct {
	db      *sql.DB
	metrics inventory.MetricsRecorder
}

// Option customises Store construction.
type Option func(*Store)

// WithMetricsRecorder attaches an optional recorder for entity counts.
func WithMetricsRecorder(m inventory.MetricsRecorder) Option {
	return func(s *Store) { s.metrics = m }
}

// New opens (or creates) the database at path and applies the schema.
// WAL mode and a busy timeout keep concurrent invocations from
// tripping over each other's write locks.
func New(path string, opts ...Option) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS racks (
		name       TEXT PRIMARY KEY,
		datacenter TEXT NOT NULL DEFAULT '',
		pod        TEXT NOT NULL,
		row        TEXT NOT NULL,
		kind       TEXT NOT NULL,
		deployment TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS devices (
		name TEXT PRIMARY KEY,
		role TEXT NOT NULL,
		rack TEXT NOT NULL REFERENCES racks(name)
	);

	CREATE TABLE IF NOT EXISTS interfaces (
		ref    TEXT PRIMARY KEY,
		device TEXT NOT NULL REFERENCES devices(name),
		name   TEXT NOT NULL,
		role   TEXT NOT NULL,
		speed  TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'free'
	);

	CREATE TABLE IF NOT EXISTS cables (
		id          TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL UNIQUE,
		endpoint_a  TEXT NOT NULL,
		endpoint_b  TEXT NOT NULL,
		workspace   TEXT NOT NULL DEFAULT '',
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS cable_endpoints (
		interface_ref TEXT PRIMARY KEY REFERENCES interfaces(ref),
		cable_id      TEXT NOT NULL REFERENCES cables(id)
	);

	CREATE INDEX IF NOT EXISTS idx_devices_rack ON devices(rack);
	CREATE INDEX IF NOT EXISTS idx_interfaces_device ON interfaces(device);
	`
	_, err := s.db.Exec(schema)
	return err
}

// AddRack registers a rack; network racks must not carry a deployment
// classification of their own.
func (s *Store) AddRack(ctx context.Context, r model.Rack) error {
	if r.Name == "" {
		return fmt.Errorf("rack name is required")
	}
	if r.Kind == model.RackKindNetwork && r.Deployment != "" {
		return fmt.Errorf("network rack %q must not carry a deployment classification", r.Name)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO racks (name, datacenter, pod, row, kind, deployment) VALUES (?, ?, ?, ?, ?, ?)`,
		r.Name, r.Datacenter, r.Pod, r.Row, string(r.Kind), string(r.Deployment))
	if err != nil {
		if isConstraintErr(err) {
			return fmt.Errorf("rack %q already exists", r.Name)
		}
		return fmt.Errorf("insert rack %s: %w", r.Name, err)
	}
	s.recordCounts(ctx)
	return nil
}

// AddDevice registers a device; the owning rack must exist.
func (s *Store) AddDevice(ctx context.Context, d model.Device) error {
	if d.Name == "" {
		return fmt.Errorf("device name is required")
	}
	var one int
	if err := s.db.QueryRowContext(ctx, `SELECT 1 FROM racks WHERE name = ?`, d.Rack).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("rack %q not found for device %q", d.Rack, d.Name)
		}
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO devices (name, role, rack) VALUES (?, ?, ?)`,
		d.Name, string(d.Role), d.Rack)
	if err != nil {
		if isConstraintErr(err) {
			return fmt.Errorf("device %q already exists", d.Name)
		}
		return fmt.Errorf("insert device %s: %w", d.Name, err)
	}
	s.recordCounts(ctx)
	return nil
}

// AddInterface registers an interface; status defaults to free.
func (s *Store) AddInterface(ctx context.Context, i model.Interface) error {
	if i.Name == "" || i.Device == "" {
		return fmt.Errorf("interface name and device are required")
	}
	if i.Status == "" {
		i.Status = model.StatusFree
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO interfaces (ref, device, name, role, speed, status) VALUES (?, ?, ?, ?, ?, ?)`,
		i.Ref(), i.Device, i.Name, string(i.Role), string(i.Speed), string(i.Status))
	if err != nil {
		if isConstraintErr(err) {
			return fmt.Errorf("interface %q already exists or device %q unknown", i.Ref(), i.Device)
		}
		return fmt.Errorf("insert interface %s: %w", i.Ref(), err)
	}
	s.recordCounts(ctx)
	return nil
}

// GetRack returns the named rack.
func (s *Store) GetRack(ctx context.Context, name string) (*model.Rack, error) {
	var r model.Rack
	var kind, deployment string
	err := s.db.QueryRowContext(ctx,
		`SELECT name, datacenter, pod, row, kind, deployment FROM racks WHERE name = ?`, name).
		Scan(&r.Name, &r.Datacenter, &r.Pod, &r.Row, &kind, &deployment)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rack %q: %w", name, inventory.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	r.Kind = model.RackKind(kind)
	r.Deployment = model.Deployment(deployment)
	return &r, nil
}

// GetDevice returns the named device.
func (s *Store) GetDevice(ctx context.Context, name string) (*model.Device, error) {
	var d model.Device
	var role string
	err := s.db.QueryRowContext(ctx,
		`SELECT name, role, rack FROM devices WHERE name = ?`, name).
		Scan(&d.Name, &role, &d.Rack)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("device %q: %w", name, inventory.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	d.Role = model.DeviceRole(role)
	return &d, nil
}

// Query builds a filtered snapshot. Cables are matched against all
// interfaces of the in-scope devices before interface filters are
// applied, so consumed endpoints stay visible to callers.
func (s *Store) Query(ctx context.Context, f inventory.QueryFilter) (*inventory.Snapshot, error) {
	racks, err := s.queryRacks(ctx, f)
	if err != nil {
		return nil, err
	}

	snap := &inventory.Snapshot{}
	var deviceNames []string
	for _, rack := range racks {
		ri := &inventory.RackInventory{Rack: rack}
		devices, err := s.queryDevices(ctx, rack.Name, f)
		if err != nil {
			return nil, err
		}
		for _, dev := range devices {
			deviceNames = append(deviceNames, dev.Name)
			di := &inventory.DeviceInventory{Device: dev}
			ifaces, err := s.queryInterfaces(ctx, dev.Name, f)
			if err != nil {
				return nil, err
			}
			di.Interfaces = ifaces
			ri.Devices = append(ri.Devices, di)
		}
		snap.Racks = append(snap.Racks, ri)
	}

	if len(deviceNames) > 0 {
		cables, err := s.queryCables(ctx, deviceNames)
		if err != nil {
			return nil, err
		}
		snap.Cables = cables
	}
	return snap, nil
}

func (s *Store) queryRacks(ctx context.Context, f inventory.QueryFilter) ([]model.Rack, error) {
	query := `SELECT name, datacenter, pod, row, kind, deployment FROM racks`
	var conds []string
	var args []any
	if len(f.Racks) > 0 {
		conds = append(conds, `name IN (`+placeholders(len(f.Racks))+`)`)
		for _, n := range f.Racks {
			args = append(args, n)
		}
	} else {
		if f.Pod != "" {
			conds = append(conds, `pod = ?`)
			args = append(args, f.Pod)
		}
		if f.Row != "" {
			conds = append(conds, `row = ?`)
			args = append(args, f.Row)
		}
	}
	if len(f.RackKinds) > 0 {
		conds = append(conds, `kind IN (`+placeholders(len(f.RackKinds))+`)`)
		for _, k := range f.RackKinds {
			args = append(args, string(k))
		}
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query racks: %w", err)
	}
	defer rows.Close()

	var out []model.Rack
	for rows.Next() {
		var r model.Rack
		var kind, deployment string
		if err := rows.Scan(&r.Name, &r.Datacenter, &r.Pod, &r.Row, &kind, &deployment); err != nil {
			return nil, err
		}
		r.Kind = model.RackKind(kind)
		r.Deployment = model.Deployment(deployment)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) queryDevices(ctx context.Context, rack string, f inventory.QueryFilter) ([]model.Device, error) {
	query := `SELECT name, role, rack FROM devices WHERE rack = ?`
	args := []any{rack}
	if len(f.DeviceRoles) > 0 {
		query += ` AND role IN (` + placeholders(len(f.DeviceRoles)) + `)`
		for _, r := range f.DeviceRoles {
			args = append(args, string(r))
		}
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query devices: %w", err)
	}
	defer rows.Close()

	var out []model.Device
	for rows.Next() {
		var d model.Device
		var role string
		if err := rows.Scan(&d.Name, &role, &d.Rack); err != nil {
			return nil, err
		}
		d.Role = model.DeviceRole(role)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) queryInterfaces(ctx context.Context, device string, f inventory.QueryFilter) ([]model.Interface, error) {
	query := `SELECT name, device, role, speed, status FROM interfaces WHERE device = ?`
	args := []any{device}
	if len(f.InterfaceRoles) > 0 {
		query += ` AND role IN (` + placeholders(len(f.InterfaceRoles)) + `)`
		for _, r := range f.InterfaceRoles {
			args = append(args, string(r))
		}
	}
	if len(f.InterfaceStatuses) > 0 {
		query += ` AND status IN (` + placeholders(len(f.InterfaceStatuses)) + `)`
		for _, st := range f.InterfaceStatuses {
			args = append(args, string(st))
		}
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query interfaces: %w", err)
	}
	defer rows.Close()

	var out []model.Interface
	for rows.Next() {
		var i model.Interface
		var role, speed, status string
		if err := rows.Scan(&i.Name, &i.Device, &role, &speed, &status); err != nil {
			return nil, err
		}
		i.Role = model.InterfaceRole(role)
		i.Speed = model.Speed(speed)
		i.Status = model.InterfaceStatus(status)
		out = append(out, i)
	}
	return out, rows.Err()
}

func (s *Store) queryCables(ctx context.Context, devices []string) ([]model.Cable, error) {
	query := `
		SELECT DISTINCT c.id, c.fingerprint, c.endpoint_a, c.endpoint_b, c.workspace
		FROM cables c
		JOIN cable_endpoints e ON e.cable_id = c.id
		JOIN interfaces i ON i.ref = e.interface_ref
		WHERE i.device IN (` + placeholders(len(devices)) + `)
		ORDER BY c.fingerprint`
	args := make([]any, 0, len(devices))
	for _, d := range devices {
		args = append(args, d)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query cables: %w", err)
	}
	defer rows.Close()

	var out []model.Cable
	for rows.Next() {
		var c model.Cable
		if err := rows.Scan(&c.ID, &c.Fingerprint, &c.EndpointA, &c.EndpointB, &c.Workspace); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateCables decides each request in its own transaction so one
// conflicting pair never poisons the rest of the batch.
func (s *Store) CreateCables(ctx context.Context, reqs []inventory.CableRequest) ([]inventory.CableResult, error) {
	results := make([]inventory.CableResult, 0, len(reqs))
	for _, req := range reqs {
		res, err := s.createCable(ctx, req)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	s.recordCounts(ctx)
	return results, nil
}

func (s *Store) createCable(ctx context.Context, req inventory.CableRequest) (inventory.CableResult, error) {
	a, b := req.EndpointA, req.EndpointB
	if b < a {
		a, b = b, a
	}
	fp := model.PairFingerprint(a, b)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return inventory.CableResult{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	// Idempotent replay: exact fingerprint already committed.
	var existing model.Cable
	err = tx.QueryRowContext(ctx,
		`SELECT id, fingerprint, endpoint_a, endpoint_b, workspace FROM cables WHERE fingerprint = ?`, fp).
		Scan(&existing.ID, &existing.Fingerprint, &existing.EndpointA, &existing.EndpointB, &existing.Workspace)
	if err == nil {
		return inventory.CableResult{Outcome: inventory.OutcomeDuplicate, Cable: &existing}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return inventory.CableResult{}, err
	}

	var devA, devB string
	if err := tx.QueryRowContext(ctx, `SELECT device FROM interfaces WHERE ref = ?`, a).Scan(&devA); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return inventory.CableResult{Outcome: inventory.OutcomeConflict, Reason: "unknown interface endpoint"}, nil
		}
		return inventory.CableResult{}, err
	}
	if err := tx.QueryRowContext(ctx, `SELECT device FROM interfaces WHERE ref = ?`, b).Scan(&devB); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return inventory.CableResult{Outcome: inventory.OutcomeConflict, Reason: "unknown interface endpoint"}, nil
		}
		return inventory.CableResult{}, err
	}
	if devA == devB {
		return inventory.CableResult{Outcome: inventory.OutcomeConflict, Reason: "both endpoints on device " + devA}, nil
	}

	cable := model.Cable{
		ID:          uuid.NewString(),
		EndpointA:   a,
		EndpointB:   b,
		Fingerprint: fp,
		Workspace:   req.Workspace,
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO cables (id, fingerprint, endpoint_a, endpoint_b, workspace) VALUES (?, ?, ?, ?, ?)`,
		cable.ID, cable.Fingerprint, cable.EndpointA, cable.EndpointB, cable.Workspace); err != nil {
		if isConstraintErr(err) {
			return inventory.CableResult{Outcome: inventory.OutcomeConflict, Reason: "fingerprint committed concurrently"}, nil
		}
		return inventory.CableResult{}, err
	}
	for _, ref := range []string{a, b} {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO cable_endpoints (interface_ref, cable_id) VALUES (?, ?)`,
			ref, cable.ID); err != nil {
			if isConstraintErr(err) {
				// The used-once backstop fired: someone else owns
				// this endpoint. The enclosing rollback undoes the
				// cable row.
				return inventory.CableResult{Outcome: inventory.OutcomeConflict,
					Reason: fmt.Sprintf("endpoint %s already cabled", ref)}, nil
			}
			return inventory.CableResult{}, err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE interfaces SET status = ? WHERE ref IN (?, ?)`,
		string(model.StatusActive), a, b); err != nil {
		return inventory.CableResult{}, err
	}

	if err := tx.Commit(); err != nil {
		if isConstraintErr(err) {
			return inventory.CableResult{Outcome: inventory.OutcomeConflict, Reason: "commit lost a concurrent race"}, nil
		}
		return inventory.CableResult{}, err
	}
	return inventory.CableResult{Outcome: inventory.OutcomeCreated, Cable: &cable}, nil
}

func (s *Store) recordCounts(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	var racks, devices, interfaces, cables int
	row := s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM racks),
		       (SELECT COUNT(*) FROM devices),
		       (SELECT COUNT(*) FROM interfaces),
		       (SELECT COUNT(*) FROM cables)`)
	if err := row.Scan(&racks, &devices, &interfaces, &cables); err != nil {
		return
	}
	s.metrics.SetInventoryCounts(racks, devices, interfaces, cables)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// isConstraintErr recognises SQLITE_CONSTRAINT and its extended codes.
func isConstraintErr(err error) bool {
	var se *sqlite3.Error
	if errors.As(err, &se) {
		return se.Code()&0xff == 19
	}
	return err != nil && strings.Contains(err.Error(), "constraint")
}
