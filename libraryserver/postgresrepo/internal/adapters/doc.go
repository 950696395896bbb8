// Package adapters lets the PostgreSQL repository run on pgxpool.Pool, sql.DB or sqlx.DB.
// Each adapter executes plain SQL strings and hides how its library returns rows and results.
package adapters
