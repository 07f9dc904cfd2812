// Package dynamodb stores orders in a DynamoDB table.
//
// Every order is one item keyed by a partition key ("pk") of the form
// ORDER#<order_id> and a sort key ("sk") of the form CUSTOMER#<customer_id>.
// The order fields are stored as top-level attributes and the full order is
// also kept as JSON in the "body" attribute.
//
// # Getting Started
//
//	client := dynamodb.New(&awsCfg, "orders")
//
//	if err := client.Connect(); err != nil {
//	    return err
//	}
//
//	if err := client.Init(ctx, false); err != nil {
//	    return err
//	}
//
// Init verifies that the table exists with the expected key schema. Use
// [Client.CreateTableIfNotExists] to provision it for local development.
package dynamodb
