// Package postgres stores orders in PostgreSQL.
//
// It uses pgx v5 with connection pooling (pgxpool). Each order is one row
// in the orders table, keyed by order id, with the customer id, amount and
// currency as columns and the full order as JSONB in attrs.
//
// # Usage
//
//	client := postgres.New(
//	    postgres.WithHost("localhost"),
//	    postgres.WithUser("postgres"),
//	    postgres.WithPassword("secret"),
//	    postgres.WithDatabase("orders"),
//	)
//
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
//	if err := client.Init(ctx, false); err != nil {
//	    return err
//	}
//
// [Client.Init] creates the table when it is missing. With
// skipSchemaValidation false it also checks every expected column in
// information_schema.columns for data type and nullability.
//
// SSL behaviour is controlled by [WithSSLMode]. The default is [SSLModePrefer].
package postgres
