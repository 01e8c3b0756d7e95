package errors

import (
	stdErrors "errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// PostgresDetail is the server-side context of a failed statement.
type PostgresDetail struct {
	SQLState   string `json:"sqlstate"`
	Message    string `json:"message,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Table      string `json:"table,omitempty"`
	Column     string `json:"column,omitempty"`
	Constraint string `json:"constraint,omitempty"`
}

// Transient reports SQLSTATEs worth retrying: serialization failures,
// deadlocks, connection loss and admin shutdown.
func (p *PostgresDetail) Transient() bool {
	if p == nil {
		return false
	}
	switch p.SQLState {
	case "40001", "40P01", "57P01":
		return true
	}
	return strings.HasPrefix(p.SQLState, "08")
}

// Diagnostics is the log-only view of an error chain.
type Diagnostics struct {
	Message  string          `json:"message"`
	Code     Code            `json:"code,omitempty"`
	Chain    []string        `json:"chain,omitempty"`
	Postgres *PostgresDetail `json:"postgres,omitempty"`
}

// Diagnose walks err's chain and pulls out the typed code and any Postgres
// detail from either the pgx or lib/pq driver.
func Diagnose(err error) Diagnostics {
	if err == nil {
		return Diagnostics{}
	}
	d := Diagnostics{Message: err.Error()}
	if typed := As(err); typed != nil {
		d.Code = typed.Code()
	}
	for e := err; e != nil; e = stdErrors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T", e))
	}
	d.Postgres = postgresDetail(err)
	return d
}

func postgresDetail(err error) *PostgresDetail {
	var pgxErr *pgconn.PgError
	if stdErrors.As(err, &pgxErr) {
		return &PostgresDetail{
			SQLState:   pgxErr.Code,
			Message:    pgxErr.Message,
			Detail:     pgxErr.Detail,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Constraint: pgxErr.ConstraintName,
		}
	}
	var pqErr *pq.Error
	if stdErrors.As(err, &pqErr) {
		return &PostgresDetail{
			SQLState:   string(pqErr.Code),
			Message:    pqErr.Message,
			Detail:     pqErr.Detail,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Constraint: pqErr.Constraint,
		}
	}
	return nil
}

// Fields flattens the diagnostics into log fields, skipping empty values.
func (d Diagnostics) Fields() map[string]any {
	fields := map[string]any{"error_chain": d.Chain}
	if d.Code != "" {
		fields["error_code"] = string(d.Code)
	}
	if pg := d.Postgres; pg != nil {
		fields["pg_sqlstate"] = pg.SQLState
		fields["pg_transient"] = pg.Transient()
		for key, value := range map[string]string{
			"pg_message":    pg.Message,
			"pg_detail":     pg.Detail,
			"pg_table":      pg.Table,
			"pg_column":     pg.Column,
			"pg_constraint": pg.Constraint,
		} {
			if value != "" {
				fields[key] = value
			}
		}
	}
	return fields
}
