package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"parkfee-bot/internal/domain"
)

const (
	skSession         = "SESSION"
	defaultSessionTTL = 10 * time.Minute
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Client stores dialogue sessions in a DynamoDB table. The table's TTL
// attribute is "ttl"; DynamoDB removes expired items lazily, so reads also
// filter on it.
type Client struct {
	api       dynamodbAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string, ttl time.Duration) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &Client{api: api, tableName: tableName, ttl: ttl, now: time.Now}, nil
}

// userPK returns the DynamoDB partition key for a user.
func userPK(userID string) string {
	return "USER#" + userID
}

func (c *Client) key(userID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: userPK(userID)},
		"SK": &types.AttributeValueMemberS{Value: skSession},
	}
}

// Load reads the user's session; missing or expired items report found=false.
func (c *Client) Load(ctx context.Context, userID string) (domain.Session, bool, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            c.key(userID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("repository: Load get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Session{}, false, nil
	}

	expires, err := intAttr(out.Item, "ttl")
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("repository: Load decode ttl: %w", err)
	}
	if c.now().Unix() >= int64(expires) {
		return domain.Session{}, false, nil
	}

	s, err := itemToSession(out.Item)
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("repository: Load unmarshal: %w", err)
	}
	s.UserID = userID
	return s, true, nil
}

// Save writes or replaces the user's session and pushes its expiry forward.
func (c *Client) Save(ctx context.Context, s domain.Session) error {
	if strings.TrimSpace(s.UserID) == "" {
		return errors.New("repository: Save: user id is required")
	}
	updated := s.UpdatedAt
	if updated.IsZero() {
		updated = c.now()
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      sessionItem(s, updated, updated.Add(c.ttl).Unix()),
	})
	if err != nil {
		return fmt.Errorf("repository: Save: %w", err)
	}
	return nil
}

// Delete removes the user's session. Deleting a missing item is not an error.
func (c *Client) Delete(ctx context.Context, userID string) error {
	_, err := c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.tableName),
		Key:       c.key(userID),
	})
	if err != nil {
		return fmt.Errorf("repository: Delete: %w", err)
	}
	return nil
}

func sessionItem(s domain.Session, updated time.Time, expires int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: userPK(s.UserID)},
		"SK":        &types.AttributeValueMemberS{Value: skSession},
		"userId":    &types.AttributeValueMemberS{Value: s.UserID},
		"stage":     &types.AttributeValueMemberS{Value: string(s.Stage)},
		"plate":     &types.AttributeValueMemberS{Value: s.Plate.String()},
		"updatedAt": &types.AttributeValueMemberS{Value: updated.UTC().Format(time.RFC3339Nano)},
		"ttl":       &types.AttributeValueMemberN{Value: strconv.FormatInt(expires, 10)},
	}
}

// itemToSession converts a DynamoDB attribute map to a Session.
func itemToSession(item map[string]types.AttributeValue) (domain.Session, error) {
	stage, err := strAttr(item, "stage")
	if err != nil {
		return domain.Session{}, err
	}
	plate, _ := strAttr(item, "plate") // allow empty
	var updated time.Time
	if raw, err := strAttr(item, "updatedAt"); err == nil {
		updated, _ = time.Parse(time.RFC3339Nano, raw)
	}
	return domain.Session{
		Stage:     domain.ParseStage(stage),
		Plate:     domain.Plate(plate),
		UpdatedAt: updated,
	}, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
