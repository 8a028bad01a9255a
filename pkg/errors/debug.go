package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stripe/stripe-go/v84"
)

// LogFields flattens an error for structured logging: the code, the wrapped
// chain, and whatever Postgres or Stripe detail sits underneath. Empty values
// are left out.
func LogFields(err error) map[string]any {
	if err == nil {
		return map[string]any{}
	}
	fields := map[string]any{"error": err.Error()}
	if te := As(err); te != nil {
		fields["error_code"] = string(te.Code())
	}
	var chain []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		chain = append(chain, fmt.Sprintf("%T", e))
	}
	fields["error_chain"] = chain

	for key, value := range postgresDetail(err) {
		if value != "" {
			fields["pg_"+key] = value
		}
	}

	var se *stripe.Error
	if errors.As(err, &se) {
		for key, value := range map[string]string{
			"type":       string(se.Type),
			"code":       string(se.Code),
			"request_id": se.RequestID,
		} {
			if value != "" {
				fields["stripe_"+key] = value
			}
		}
		if se.HTTPStatusCode != 0 {
			fields["stripe_status"] = se.HTTPStatusCode
		}
	}
	return fields
}

// postgresDetail reads the server error from either driver gorm may sit on.
func postgresDetail(err error) map[string]string {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return map[string]string{
			"code":       pgxErr.Code,
			"constraint": pgxErr.ConstraintName,
			"table":      pgxErr.TableName,
			"detail":     pgxErr.Detail,
		}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return map[string]string{
			"code":       string(pqErr.Code),
			"constraint": pqErr.Constraint,
			"table":      pqErr.Table,
			"detail":     pqErr.Detail,
		}
	}
	return nil
}
