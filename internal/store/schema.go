package store

// schema is executed once, in order, against a freshly created
// database. It is transcribed from the original Python project's
// database.py qinit list, translated to the STRICT-table/trigger
// features modernc.org/sqlite's bundled SQLite supports.
var schema = []string{
	`CREATE TABLE host (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		addr TEXT UNIQUE NOT NULL,
		src INTEGER NOT NULL,
		added INTEGER NOT NULL,
		last_contact INTEGER,
		sysname TEXT NOT NULL DEFAULT '',
		location TEXT NOT NULL DEFAULT '',
		xfr INTEGER NOT NULL DEFAULT 0,
		CHECK (src BETWEEN 1 AND 5)
	) STRICT`,
	`CREATE INDEX host_addr_idx ON host (addr)`,
	`CREATE INDEX host_added_idx ON host (added)`,
	`CREATE INDEX host_last_contact_idx ON host (COALESCE(last_contact, 0))`,
	`CREATE INDEX host_xfr_idx ON host (xfr) WHERE xfr = 0`,
	`CREATE TABLE svc (
		id INTEGER PRIMARY KEY,
		host_id INTEGER NOT NULL,
		port INTEGER NOT NULL,
		added INTEGER NOT NULL,
		response TEXT,
		FOREIGN KEY (host_id) REFERENCES host (id)
			ON UPDATE RESTRICT
			ON DELETE CASCADE,
		UNIQUE (host_id, port),
		CHECK (port BETWEEN 1 AND 65535)
	) STRICT`,
	`CREATE INDEX svc_host_port_idx ON svc (host_id, port)`,
	`CREATE INDEX svc_port_idx ON svc (port)`,
	`CREATE INDEX svc_added_idx ON svc (added)`,
	`CREATE TRIGGER tr_host_contact
	AFTER INSERT ON svc
	BEGIN
		UPDATE host
		SET last_contact = unixepoch()
		WHERE id = NEW.host_id;
	END`,
	`CREATE TABLE xfr (
		id INTEGER PRIMARY KEY,
		name TEXT UNIQUE NOT NULL CHECK (name <> ''),
		added INTEGER NOT NULL,
		started INTEGER NOT NULL DEFAULT 0,
		finished INTEGER NOT NULL DEFAULT 0,
		status INTEGER NOT NULL DEFAULT 0,
		CHECK (finished >= started)
	) STRICT`,
	`CREATE INDEX xfr_finished_idx ON xfr (finished)`,
	`CREATE INDEX xfr_name_idx ON xfr (name)`,
}
