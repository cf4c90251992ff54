package persist

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

// stdlibOpen returns a *sql.DB backed by pgx's database/sql driver
// (registered under "pgx" by the blank import above), used only where
// sqlx's struct-scanning helpers (SpotsWithIssues) are convenient; the
// pgxpool.Pool above handles the hot insert/query path.
func stdlibOpen(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

const schema = `
create table if not exists holy_spots (
	id bigserial primary key,
	date_time bigint not null,
	dx_callsign text not null,
	spotter_callsign text not null,
	frequency double precision not null,
	band text not null,
	mode text not null,
	mode_selection text not null,
	comment text,
	source_endpoint text,
	spotter_locator_source text,
	spotter_locator text,
	spotter_lat double precision,
	spotter_lon double precision,
	spotter_country text,
	spotter_continent text,
	dx_locator_source text,
	dx_locator text,
	dx_lat double precision,
	dx_lon double precision,
	dx_country text,
	dx_continent text,
	unique (date_time, dx_callsign, frequency, spotter_callsign)
);
create index if not exists idx_holy_spots_date_time on holy_spots(date_time);
create index if not exists idx_holy_spots_dx on holy_spots(dx_callsign, date_time);

create table if not exists spots_with_issues (
	id bigserial primary key,
	date_time bigint not null,
	dx_callsign text not null,
	spotter_callsign text not null,
	frequency double precision not null,
	band text,
	mode text,
	comment text,
	issues text not null,
	recorded_at timestamptz not null default now()
);
create index if not exists idx_spots_with_issues_recorded_at on spots_with_issues(recorded_at);
`

const insertSQL = `
insert into holy_spots (
	date_time, dx_callsign, spotter_callsign, frequency, band, mode, mode_selection, comment, source_endpoint,
	spotter_locator_source, spotter_locator, spotter_lat, spotter_lon, spotter_country, spotter_continent,
	dx_locator_source, dx_locator, dx_lat, dx_lon, dx_country, dx_continent
) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
`

const insertIssueSQL = `
insert into spots_with_issues (date_time, dx_callsign, spotter_callsign, frequency, band, mode, comment, issues)
values ($1,$2,$3,$4,$5,$6,$7,$8)
`

const selectRecentSQL = `
select
	date_time, dx_callsign, spotter_callsign, frequency, band, mode, mode_selection, comment, source_endpoint,
	spotter_locator_source, spotter_locator, spotter_lat, spotter_lon, spotter_country, spotter_continent,
	dx_locator_source, dx_locator, dx_lat, dx_lon, dx_country, dx_continent
from holy_spots
where date_time > $1
order by date_time desc
limit $2
`

const selectIssuesSQL = `
select date_time, dx_callsign, spotter_callsign, frequency, band, mode, comment, issues
from spots_with_issues
order by recorded_at desc
limit $1
`

func ensureSchema(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}
