package postgres

// Schema is the DDL for the five persisted tables of spec §6:
// employees, shifts, demands, runs, assignments. Both the production
// connection and the integration-test harness apply this same schema, so
// tests exercise exactly the shape the service runs against.
const Schema = `
CREATE TABLE IF NOT EXISTS employees (
	employee_id       TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	role              TEXT NOT NULL,
	skills            TEXT[] NOT NULL DEFAULT '{}',
	hourly_cost       DOUBLE PRECISION NOT NULL,
	max_weekly_hours  DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS shifts (
	shift_id   TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	start_min  INTEGER NOT NULL,
	end_min    INTEGER NOT NULL,
	length_hrs DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS demands (
	id          BIGSERIAL PRIMARY KEY,
	date        DATE NOT NULL,
	shift_id    TEXT NOT NULL REFERENCES shifts(shift_id),
	skill       TEXT NOT NULL,
	required    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id              UUID PRIMARY KEY,
	status          TEXT NOT NULL,
	request         JSONB NOT NULL,
	objective_value DOUBLE PRECISION,
	logs            TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL,
	completed_at    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS assignments (
	run_id      UUID NOT NULL REFERENCES runs(id),
	employee_id TEXT NOT NULL,
	date        DATE NOT NULL,
	shift_id    TEXT NOT NULL,
	hours       DOUBLE PRECISION NOT NULL,
	cost        DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (run_id, employee_id, date)
);
`
