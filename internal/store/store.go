// Package store persists conversations, their state, the message log and
// quotes. SQLite is the default backend; DynamoDB serves serverless deploys.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"floorbot/internal/domain"
)

const (
	DriverSQLite   = "sqlite"
	DriverDynamoDB = "dynamodb"
)

// Options selects and configures the backend.
type Options struct {
	Driver      string
	DBPath      string
	DynamoTable string
	Dynamo      *dynamodb.Client // required for the dynamodb driver
	Logger      *slog.Logger
}

// Open returns the configured backend, ready for use.
func Open(ctx context.Context, opts Options) (domain.AdminStore, error) {
	switch opts.Driver {
	case "", DriverSQLite:
		if opts.DBPath == "" {
			return nil, errors.New("store: sqlite needs a database path")
		}
		s, err := NewSQLiteStore(ctx, opts.DBPath, opts.Logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverDynamoDB:
		if opts.Dynamo == nil {
			return nil, errors.New("store: dynamodb driver needs a client")
		}
		s, err := NewDynamoStore(opts.Dynamo, opts.DynamoTable)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("store: unknown driver %q", opts.Driver)
	}
}
