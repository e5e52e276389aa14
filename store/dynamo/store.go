// Package dynamo implements the store client on DynamoDB. Each projection
// maps to one table whose hash key is the projection's partition attribute;
// DynamoDB's LastEvaluatedKey/ExclusiveStartKey pair is the native
// continuation token.
//
// All access goes through Query with expression attribute placeholders, never
// interpolated values.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/scoutdex/scoutdex/model"
	"github.com/scoutdex/scoutdex/predicate"
	"github.com/scoutdex/scoutdex/store"
)

// QueryAPI is the slice of the DynamoDB client the store needs.
// Kept minimal so tests can mock it.
type QueryAPI interface {
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Table maps one projection onto a DynamoDB table.
type Table struct {
	// Name is the DynamoDB table name.
	Name string

	// PartitionAttr is the hash key attribute.
	PartitionAttr string

	// SortAttr is the range key attribute (clustering key). Required for
	// prefix reads.
	SortAttr string

	// IDAttr is the attribute holding the entity id. Defaults to
	// "entity_id".
	IDAttr string

	// Descending reads the range key newest-first.
	Descending bool
}

func (t Table) idAttr() string {
	if t.IDAttr == "" {
		return "entity_id"
	}
	return t.IDAttr
}

// Store implements store.Client on DynamoDB.
type Store struct {
	client QueryAPI
	tables map[string]Table
}

// NewStore creates a DynamoDB store. tables maps projection names to their
// table layout.
func NewStore(client QueryAPI, tables map[string]Table) *Store {
	return &Store{client: client, tables: tables}
}

// ReadPartition implements store.Client.
func (s *Store) ReadPartition(ctx context.Context, req store.ReadRequest) (store.Page, error) {
	tbl, ok := s.tables[req.Projection]
	if !ok {
		return store.Page{}, fmt.Errorf("dynamo: unmapped projection %q", req.Projection)
	}

	keyCond := "#pk = :pk"
	names := map[string]string{"#pk": tbl.PartitionAttr}
	values := map[string]types.AttributeValue{
		":pk": &types.AttributeValueMemberS{Value: req.Key},
	}
	if req.Prefix != "" {
		if tbl.SortAttr == "" {
			return store.Page{}, fmt.Errorf("dynamo: projection %q has no sort attribute for prefix reads", req.Projection)
		}
		keyCond += " AND begins_with(#sk, :prefix)"
		names["#sk"] = tbl.SortAttr
		values[":prefix"] = &types.AttributeValueMemberS{Value: strings.ToLower(req.Prefix)}
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(tbl.Name),
		KeyConditionExpression:    aws.String(keyCond),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ScanIndexForward:          aws.Bool(!tbl.Descending),
	}
	if req.PageSize > 0 {
		input.Limit = aws.Int32(req.PageSize)
	}
	if len(req.PageState) > 0 {
		start, err := decodeKey(req.PageState)
		if err != nil {
			return store.Page{}, fmt.Errorf("dynamo: page state: %w", err)
		}
		input.ExclusiveStartKey = start
	}

	out, err := s.client.Query(ctx, input)
	if err != nil {
		var nf *types.ResourceNotFoundException
		if errors.As(err, &nf) {
			// Missing table/partition is an empty result, not a failure.
			return store.Page{}, nil
		}
		return store.Page{}, translateErr(err)
	}

	page := store.Page{Rows: make([]model.Entity, 0, len(out.Items))}
	for _, item := range out.Items {
		page.Rows = append(page.Rows, itemToEntity(item, tbl.idAttr()))
	}
	if len(out.LastEvaluatedKey) > 0 {
		page.PageState, err = encodeKey(out.LastEvaluatedKey)
		if err != nil {
			return store.Page{}, fmt.Errorf("dynamo: page state: %w", err)
		}
	}
	return page, nil
}

func translateErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", store.ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
}

func itemToEntity(item map[string]types.AttributeValue, idAttr string) model.Entity {
	e := model.Entity{Fields: make(predicate.Document, len(item))}
	for name, av := range item {
		v, ok := attrToValue(av)
		if !ok {
			continue
		}
		if name == idAttr && v.Kind == predicate.KindString {
			e.ID = v.S
		}
		e.Fields[name] = v
	}
	return e
}

func attrToValue(av types.AttributeValue) (predicate.Value, bool) {
	switch t := av.(type) {
	case *types.AttributeValueMemberS:
		return predicate.String(t.Value), true
	case *types.AttributeValueMemberN:
		if i, err := strconv.ParseInt(t.Value, 10, 64); err == nil {
			return predicate.Int(i), true
		}
		if f, err := strconv.ParseFloat(t.Value, 64); err == nil {
			return predicate.Float(f), true
		}
		return predicate.Value{}, false
	case *types.AttributeValueMemberBOOL:
		return predicate.Bool(t.Value), true
	case *types.AttributeValueMemberNULL:
		return predicate.Null(), true
	default:
		// Sets, lists and binary attributes are not part of the predicate
		// model; skip them.
		return predicate.Value{}, false
	}
}

var _ store.Client = (*Store)(nil)
