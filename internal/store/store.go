// Package store implements pykuang's durable relational storage: hosts,
// the services discovered on them, and DNS zone-transfer attempts. It is
// backed by modernc.org/sqlite, a pure-Go SQLite engine, with WAL
// journaling. Each Store holds one *sql.DB capped at a single
// connection, and every goroutine that persists data opens its own
// Store, which gives the "one connection per thread" contract in
// spec.md §4.1; SQLite's busy timeout serializes their writes.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/netip"
	"time"

	_ "modernc.org/sqlite"

	"github.com/krylon/pykuang/internal/model"
	"github.com/krylon/pykuang/pkg/applog"
)

// lockTimeout bounds how long a writer waits to acquire the database
// before HostAdd (and friends) surface a LockError.
const lockTimeout = 10 * time.Second

// Store wraps the single shared database connection pool pykuang uses
// for all persistence.
type Store struct {
	db  *sql.DB
	log *log.Logger
}

// Open creates (if necessary) and opens the store at path, running the
// schema migration on a fresh database.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)",
		path, lockTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite only serializes writers usefully with one writer connection.

	s := &Store{db: db, log: applog.Get("store")}

	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	var exists int
	err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'host'`,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("store: probe schema: %w", err)
	}
	if exists > 0 {
		return nil
	}

	s.log.Printf("initializing fresh database")
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin schema tx: %w", err)
	}
	for _, stmt := range schema {
		if _, err := tx.Exec(stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("store: apply schema: %w\n%s", err, stmt)
		}
	}
	return tx.Commit()
}

// HostAdd inserts host, assigning its ID and Added timestamp.
func (s *Store) HostAdd(h *model.Host) error {
	now := time.Now()
	row := s.db.QueryRow(
		`INSERT INTO host (name, addr, src, added) VALUES (?, ?, ?, ?) RETURNING id`,
		h.Name, h.Addr.String(), int(h.Src), now.Unix(),
	)

	var id int64
	if err := row.Scan(&id); err != nil {
		return classifyErr("HostAdd", err)
	}
	h.ID = id
	h.Added = now
	return nil
}

func scanHost(row interface{ Scan(...any) error }) (*model.Host, error) {
	var (
		id                    int64
		name, addr, sysname, location string
		src                   int
		added                 int64
		lastContact           sql.NullInt64
		xfrFlag               int
	)
	if err := row.Scan(&id, &name, &addr, &src, &added, &lastContact, &sysname, &location, &xfrFlag); err != nil {
		return nil, err
	}

	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return nil, fmt.Errorf("store: corrupt address %q for host %d: %w", addr, id, err)
	}

	h := &model.Host{
		ID:       id,
		Name:     name,
		Addr:     ip,
		Src:      model.HostSource(src),
		Added:    time.Unix(added, 0),
		Sysname:  sysname,
		Location: location,
		XFR:      xfrFlag != 0,
	}
	if lastContact.Valid {
		t := time.Unix(lastContact.Int64, 0)
		h.LastContact = &t
	}
	return h, nil
}

const hostSelectCols = `id, name, addr, src, added, last_contact, sysname, location, xfr`

// HostGetByAddr looks up a Host by its address. It returns (nil, nil) if
// no such host exists.
func (s *Store) HostGetByAddr(addr netip.Addr) (*model.Host, error) {
	row := s.db.QueryRow(`SELECT `+hostSelectCols+` FROM host WHERE addr = ?`, addr.String())
	h, err := scanHost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classifyErr("HostGetByAddr", err)
	}
	return h, nil
}

// HostGetByID looks up a Host by its store-assigned ID. It returns
// (nil, nil) if no such host exists.
func (s *Store) HostGetByID(id int64) (*model.Host, error) {
	row := s.db.QueryRow(`SELECT `+hostSelectCols+` FROM host WHERE id = ?`, id)
	h, err := scanHost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classifyErr("HostGetByID", err)
	}
	return h, nil
}

// HostGetAll returns every Host in the store. Use with caution on a
// large database.
func (s *Store) HostGetAll() ([]*model.Host, error) {
	rows, err := s.db.Query(`SELECT ` + hostSelectCols + ` FROM host`)
	if err != nil {
		return nil, classifyErr("HostGetAll", err)
	}
	defer rows.Close()
	return scanHosts(rows)
}

// HostGetRandom returns up to n hosts chosen via a uniform random
// offset into the table, used by the scanner's feeder.
func (s *Store) HostGetRandom(n int) ([]*model.Host, error) {
	rows, err := s.db.Query(
		`SELECT `+hostSelectCols+` FROM host
		 ORDER BY id
		 LIMIT ? OFFSET ABS(RANDOM()) % MAX((SELECT COUNT(*) FROM host), 1)`,
		n)
	if err != nil {
		return nil, classifyErr("HostGetRandom", err)
	}
	defer rows.Close()
	return scanHosts(rows)
}

// HostGetNoXFR returns up to n hosts whose zone has not yet been
// offered to the XFR pipeline, oldest first.
func (s *Store) HostGetNoXFR(n int) ([]*model.Host, error) {
	rows, err := s.db.Query(
		`SELECT `+hostSelectCols+` FROM host WHERE xfr = 0 ORDER BY added LIMIT ?`, n)
	if err != nil {
		return nil, classifyErr("HostGetNoXFR", err)
	}
	defer rows.Close()
	return scanHosts(rows)
}

// HostCount returns the number of hosts in the store.
func (s *Store) HostCount() (int64, error) {
	return s.countRows("host")
}

// ServiceCount returns the number of services recorded in the store.
func (s *Store) ServiceCount() (int64, error) {
	return s.countRows("svc")
}

// XfrCount returns the number of XFR rows recorded in the store.
func (s *Store) XfrCount() (int64, error) {
	return s.countRows("xfr")
}

func (s *Store) countRows(table string) (int64, error) {
	var n int64
	err := s.db.QueryRow(`SELECT count(*) FROM ` + table).Scan(&n)
	if err != nil {
		return 0, classifyErr("countRows", err)
	}
	return n, nil
}

func scanHosts(rows *sql.Rows) ([]*model.Host, error) {
	var out []*model.Host
	for rows.Next() {
		h, err := scanHost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// HostSetXfr flips a Host's xfr flag, recording that its zone has been
// offered to the XFR pipeline.
func (s *Store) HostSetXfr(h *model.Host) error {
	_, err := s.db.Exec(`UPDATE host SET xfr = 1 WHERE id = ?`, h.ID)
	if err != nil {
		return classifyErr("HostSetXfr", err)
	}
	h.XFR = true
	return nil
}

// HostUpdateContact sets a Host's last_contact timestamp. If t is the
// zero Time, the current time is used.
func (s *Store) HostUpdateContact(h *model.Host, t time.Time) error {
	if t.IsZero() {
		t = time.Now()
	}
	_, err := s.db.Exec(`UPDATE host SET last_contact = ? WHERE id = ?`, t.Unix(), h.ID)
	if err != nil {
		return classifyErr("HostUpdateContact", err)
	}
	h.LastContact = &t
	return nil
}

// HostUpdateSysname sets a Host's sysname field.
func (s *Store) HostUpdateSysname(h *model.Host, sysname string) error {
	_, err := s.db.Exec(`UPDATE host SET sysname = ? WHERE id = ?`, sysname, h.ID)
	if err != nil {
		return classifyErr("HostUpdateSysname", err)
	}
	h.Sysname = sysname
	return nil
}

// HostUpdateLocation sets a Host's location field.
func (s *Store) HostUpdateLocation(h *model.Host, location string) error {
	_, err := s.db.Exec(`UPDATE host SET location = ? WHERE id = ?`, location, h.ID)
	if err != nil {
		return classifyErr("HostUpdateLocation", err)
	}
	h.Location = location
	return nil
}

// ServiceAdd inserts svc, assigning its ID. The store's tr_host_contact
// trigger refreshes the owning Host's last_contact in the same
// transaction.
func (s *Store) ServiceAdd(svc *model.Service) error {
	row := s.db.QueryRow(
		`INSERT INTO svc (host_id, port, added, response) VALUES (?, ?, ?, ?) RETURNING id`,
		svc.HostID, svc.Port, svc.Added.Unix(), svc.Response,
	)
	var id int64
	if err := row.Scan(&id); err != nil {
		return classifyErr("ServiceAdd", err)
	}
	svc.ID = id
	return nil
}

// ServiceGetByHost returns every Service recorded for h, ordered by port
// ascending.
func (s *Store) ServiceGetByHost(h *model.Host) ([]*model.Service, error) {
	rows, err := s.db.Query(
		`SELECT id, port, added, response FROM svc WHERE host_id = ? ORDER BY port`, h.ID)
	if err != nil {
		return nil, classifyErr("ServiceGetByHost", err)
	}
	defer rows.Close()

	var out []*model.Service
	for rows.Next() {
		var (
			id, added int64
			port      int
			response  sql.NullString
		)
		if err := rows.Scan(&id, &port, &added, &response); err != nil {
			return nil, classifyErr("ServiceGetByHost", err)
		}
		svc := &model.Service{
			ID:     id,
			HostID: h.ID,
			Port:   port,
			Added:  time.Unix(added, 0),
		}
		if response.Valid {
			svc.Response = &response.String
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}

// XfrAdd inserts a new XFR row for x.Name, assigning its ID. Attempting
// to add the same zone twice yields an IntegrityError.
func (s *Store) XfrAdd(x *model.XFR) error {
	now := time.Now()
	row := s.db.QueryRow(`INSERT INTO xfr (name, added) VALUES (?, ?) RETURNING id`, x.Name, now.Unix())
	var id int64
	if err := row.Scan(&id); err != nil {
		return classifyErr("XfrAdd", err)
	}
	x.ID = id
	x.Added = now
	return nil
}

// XfrStart marks x as started at the current time.
func (s *Store) XfrStart(x *model.XFR) error {
	now := time.Now()
	_, err := s.db.Exec(`UPDATE xfr SET started = ? WHERE id = ?`, now.Unix(), x.ID)
	if err != nil {
		return classifyErr("XfrStart", err)
	}
	x.Started = now
	return nil
}

// XfrFinish marks x as finished, recording the success flag.
func (s *Store) XfrFinish(x *model.XFR, status bool) error {
	now := time.Now()
	_, err := s.db.Exec(`UPDATE xfr SET finished = ?, status = ? WHERE id = ?`, now.Unix(), status, x.ID)
	if err != nil {
		return classifyErr("XfrFinish", err)
	}
	x.Finished = now
	x.Status = status
	return nil
}

// XfrGetUnfinished returns up to n XFR rows that have not yet been
// marked finished.
func (s *Store) XfrGetUnfinished(n int) ([]*model.XFR, error) {
	rows, err := s.db.Query(
		`SELECT id, name, added, started, finished, status FROM xfr WHERE finished = 0 LIMIT ?`, n)
	if err != nil {
		return nil, classifyErr("XfrGetUnfinished", err)
	}
	defer rows.Close()
	return scanXfrs(rows)
}

// XfrGetByName looks up an XFR row by zone name. It returns (nil, nil)
// if no such zone has been queued.
func (s *Store) XfrGetByName(name string) (*model.XFR, error) {
	row := s.db.QueryRow(
		`SELECT id, name, added, started, finished, status FROM xfr WHERE name = ?`, name)
	x, err := scanXfr(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classifyErr("XfrGetByName", err)
	}
	return x, nil
}

func scanXfr(row interface{ Scan(...any) error }) (*model.XFR, error) {
	var (
		id                       int64
		name                     string
		added, started, finished int64
		status                   int
	)
	if err := row.Scan(&id, &name, &added, &started, &finished, &status); err != nil {
		return nil, err
	}
	x := &model.XFR{
		ID:     id,
		Name:   name,
		Added:  time.Unix(added, 0),
		Status: status != 0,
	}
	if started != 0 {
		x.Started = time.Unix(started, 0)
	}
	if finished != 0 {
		x.Finished = time.Unix(finished, 0)
	}
	return x, nil
}

func scanXfrs(rows *sql.Rows) ([]*model.XFR, error) {
	var out []*model.XFR
	for rows.Next() {
		x, err := scanXfr(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, x)
	}
	return out, rows.Err()
}
