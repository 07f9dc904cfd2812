package dynamodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/slackmgr/orderbus/orders"
)

const (
	// PartitionKey is the DynamoDB partition key attribute name.
	PartitionKey = "pk"

	// SortKey is the DynamoDB sort key attribute name.
	SortKey = "sk"

	// BodyAttr is the attribute name used to store the JSON-encoded order.
	BodyAttr = "body"

	// PersistedAtAttr records when the item was last written.
	PersistedAtAttr = "persisted_at"

	orderKeyPrefix    = "ORDER#"
	customerKeyPrefix = "CUSTOMER#"
)

// API is the subset of the DynamoDB client used by [Client].
type API interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// Client is a DynamoDB-backed [orders.Store].
//
// Use [New] to create a Client, [Client.Connect] to initialize the underlying
// DynamoDB connection, and [Client.Init] to validate the table schema.
type Client struct {
	client    API
	tableName string
	awsCfg    *aws.Config
	opts      *Options
}

var _ orders.Store = (*Client)(nil)

// New creates a new Client configured with the given AWS config, table name,
// and optional options. Call [Client.Connect] on the returned client before use.
func New(awsCfg *aws.Config, tableName string, opts ...Option) *Client {
	options := newOptions()

	for _, o := range opts {
		o(options)
	}

	return &Client{
		awsCfg:    awsCfg,
		tableName: tableName,
		opts:      options,
	}
}

// Connect initializes the DynamoDB client from the AWS config provided to [New].
// It must be called before any other Client methods, and must complete before
// the Client is used concurrently.
func (c *Client) Connect() error {
	if c.tableName == "" {
		return errors.New("DynamoDB table name cannot be empty")
	}

	if err := c.opts.validate(); err != nil {
		return fmt.Errorf("invalid DynamoDB options: %w", err)
	}

	if c.opts.dynamoDBAPI != nil {
		c.client = c.opts.dynamoDBAPI
	} else {
		if c.awsCfg == nil {
			return errors.New("AWS config cannot be nil")
		}

		c.client = dynamodb.NewFromConfig(*c.awsCfg)
	}

	return nil
}

// Init validates the table schema: the table must exist, be active, and
// have pk as partition key and sk as sort key.
//
// Pass skipSchemaValidation true to skip all checks and return immediately.
func (c *Client) Init(ctx context.Context, skipSchemaValidation bool) error {
	if skipSchemaValidation {
		return nil
	}

	response, err := c.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(c.tableName),
	})
	if err != nil {
		var notFoundError *dynamodbtypes.ResourceNotFoundException
		if errors.As(err, &notFoundError) {
			return fmt.Errorf("table %s does not exist", c.tableName)
		}
		return fmt.Errorf("failed to describe table %s: %w", c.tableName, err)
	}

	table := response.Table
	if table == nil || len(table.KeySchema) < 1 {
		return fmt.Errorf("table %s has no key schema", c.tableName)
	}

	if aws.ToString(table.KeySchema[0].AttributeName) != PartitionKey {
		return fmt.Errorf("table %s has partition key %s, expected %s", c.tableName, aws.ToString(table.KeySchema[0].AttributeName), PartitionKey)
	}

	if len(table.KeySchema) < 2 {
		return fmt.Errorf("table %s has a simple primary key, expected composite", c.tableName)
	}

	if aws.ToString(table.KeySchema[1].AttributeName) != SortKey {
		return fmt.Errorf("table %s has sort key %s, expected %s", c.tableName, aws.ToString(table.KeySchema[1].AttributeName), SortKey)
	}

	if table.TableStatus != dynamodbtypes.TableStatusActive {
		return fmt.Errorf("table %s is not active (status: %s)", c.tableName, table.TableStatus)
	}

	return nil
}

// CreateTableIfNotExists creates the orders table with on-demand billing
// when it does not exist yet. It reports whether the table was created.
func (c *Client) CreateTableIfNotExists(ctx context.Context) (bool, error) {
	_, err := c.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(c.tableName),
	})
	if err == nil {
		return false, nil
	}

	var notFoundError *dynamodbtypes.ResourceNotFoundException
	if !errors.As(err, &notFoundError) {
		return false, fmt.Errorf("failed to describe table %s: %w", c.tableName, err)
	}

	_, err = c.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(c.tableName),
		AttributeDefinitions: []dynamodbtypes.AttributeDefinition{
			{AttributeName: aws.String(PartitionKey), AttributeType: dynamodbtypes.ScalarAttributeTypeS},
			{AttributeName: aws.String(SortKey), AttributeType: dynamodbtypes.ScalarAttributeTypeS},
		},
		KeySchema: []dynamodbtypes.KeySchemaElement{
			{AttributeName: aws.String(PartitionKey), KeyType: dynamodbtypes.KeyTypeHash},
			{AttributeName: aws.String(SortKey), KeyType: dynamodbtypes.KeyTypeRange},
		},
		BillingMode: dynamodbtypes.BillingModePayPerRequest,
	})
	if err != nil {
		return false, fmt.Errorf("failed to create table %s: %w", c.tableName, err)
	}

	return true, nil
}

// SaveOrder writes the order, replacing any previous version.
func (c *Client) SaveOrder(ctx context.Context, order orders.Order) error {
	item, err := c.createOrderItem(order)
	if err != nil {
		return err
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      item,
	}

	if _, err := c.client.PutItem(ctx, input); err != nil {
		return fmt.Errorf("failed to put order %s in DynamoDB table %s: %w", order.OrderID, c.tableName, err)
	}

	return nil
}

// FindOrder returns the stored order, or nil if it does not exist.
func (c *Client) FindOrder(ctx context.Context, orderID, customerID string) (*orders.Order, error) {
	input := &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]dynamodbtypes.AttributeValue{
			PartitionKey: &dynamodbtypes.AttributeValueMemberS{Value: orderKeyPrefix + orderID},
			SortKey:      &dynamodbtypes.AttributeValueMemberS{Value: customerKeyPrefix + customerID},
		},
	}

	output, err := c.client.GetItem(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to get order %s from DynamoDB table %s: %w", orderID, c.tableName, err)
	}

	if len(output.Item) == 0 {
		return nil, nil //nolint:nilnil
	}

	var body string

	if err := attributevalue.Unmarshal(output.Item[BodyAttr], &body); err != nil {
		return nil, fmt.Errorf("failed to decode %s attribute of order %s: %w", BodyAttr, orderID, err)
	}

	if body == "" {
		return nil, fmt.Errorf("order %s has no %s attribute", orderID, BodyAttr)
	}

	var order orders.Order

	if err := json.Unmarshal([]byte(body), &order); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order %s: %w", orderID, err)
	}

	return &order, nil
}

func (c *Client) createOrderItem(order orders.Order) (map[string]dynamodbtypes.AttributeValue, error) {
	if err := order.Validate(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(order)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order %s: %w", order.OrderID, err)
	}

	items, err := attributevalue.Marshal(order.Items)
	if err != nil {
		return nil, fmt.Errorf("failed to convert items of order %s: %w", order.OrderID, err)
	}

	metadata := order.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	meta, err := attributevalue.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to convert metadata of order %s: %w", order.OrderID, err)
	}

	item := map[string]dynamodbtypes.AttributeValue{
		PartitionKey:    &dynamodbtypes.AttributeValueMemberS{Value: orderKeyPrefix + order.OrderID},
		SortKey:         &dynamodbtypes.AttributeValueMemberS{Value: customerKeyPrefix + order.CustomerID},
		"orderId":       &dynamodbtypes.AttributeValueMemberS{Value: order.OrderID},
		"customerId":    &dynamodbtypes.AttributeValueMemberS{Value: order.CustomerID},
		"totalAmount":   &dynamodbtypes.AttributeValueMemberN{Value: strconv.FormatFloat(order.TotalAmount, 'f', -1, 64)},
		"currency":      &dynamodbtypes.AttributeValueMemberS{Value: order.Currency},
		"createdAtIso":  &dynamodbtypes.AttributeValueMemberS{Value: order.CreatedAt},
		"items":         items,
		"metadata":      meta,
		BodyAttr:        &dynamodbtypes.AttributeValueMemberS{Value: string(body)},
		PersistedAtAttr: &dynamodbtypes.AttributeValueMemberS{Value: c.opts.clock().UTC().Format(time.RFC3339Nano)},
	}

	if order.Notes != "" {
		item["notes"] = &dynamodbtypes.AttributeValueMemberS{Value: order.Notes}
	}

	return item, nil
}
