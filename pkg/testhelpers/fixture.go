package testhelpers

// FixtureRoutine is the user-defined function created by the fixture.
const FixtureRoutine = "score_user"

// fixtureSchema is executed statement by statement after the container
// starts. Integration tests across packages assert against these rows.
var fixtureSchema = []string{
	`CREATE TABLE users (
		id         serial PRIMARY KEY,
		name       text NOT NULL,
		city       text,
		email      text,
		created_at date NOT NULL DEFAULT DATE '2024-01-01'
	)`,
	`COMMENT ON TABLE users IS 'Registered customers'`,
	`COMMENT ON COLUMN users.city IS 'Home city'`,

	`CREATE TABLE orders (
		id         bigserial PRIMARY KEY,
		user_id    integer NOT NULL REFERENCES users (id),
		total      numeric(10, 2) NOT NULL,
		status     text NOT NULL,
		tags       text[],
		meta       jsonb,
		created_at timestamptz NOT NULL DEFAULT TIMESTAMPTZ '2024-02-01 10:00:00+00'
	)`,

	`CREATE SCHEMA sales`,
	`CREATE TABLE sales.invoices (
		id     uuid PRIMARY KEY,
		amount numeric(12, 2),
		paid   boolean NOT NULL DEFAULT false
	)`,

	`CREATE TABLE audit_log (id serial PRIMARY KEY, message text)`,
	`CREATE VIEW active_users AS SELECT id, name FROM users WHERE email IS NOT NULL`,
	`CREATE FUNCTION score_user(uid integer) RETURNS integer LANGUAGE sql AS 'SELECT uid * 2'`,

	`INSERT INTO users (name, city, email) VALUES
		('Ada', 'Boston', 'ada@example.com'),
		('Grace', 'Boston', NULL),
		('Linus', 'Helsinki', 'linus@example.com')`,
	`INSERT INTO orders (user_id, total, status, tags, meta) VALUES
		(1, 10.50, 'paid', ARRAY['a', 'b'], '{"b": 1, "a": "x"}'),
		(1, 99.99, 'open', NULL, NULL),
		(3, 5.00, 'paid', '{}', '{}')`,
	`INSERT INTO sales.invoices (id, amount, paid) VALUES
		('6f1c2a9e-2d4b-4c1a-9a55-0c8f6f2a7b10', 100.00, true)`,
}
