// Package postgres provides the PostgreSQL-backed part store and the
// embedded schema migrations it depends on. It uses database/sql with the
// pgx stdlib driver, so callers open the pool with sql.Open("pgx", url).
package postgres
