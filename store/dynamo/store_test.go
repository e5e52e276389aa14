package dynamo

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/scoutdex/scoutdex/predicate"
	"github.com/scoutdex/scoutdex/store"
)

type mockQueryAPI struct {
	mock.Mock
}

func (m *mockQueryAPI) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*dynamodb.QueryOutput)
	return out, args.Error(1)
}

func testTables() map[string]Table {
	return map[string]Table{
		"players_by_position": {
			Name:          "players_by_position",
			PartitionAttr: "position",
			SortAttr:      "entity_id",
		},
		"players_search_index": {
			Name:          "players_search_index",
			PartitionAttr: "search_partition",
			SortAttr:      "name_lower",
		},
		"market_value_by_player": {
			Name:          "market_value_by_player",
			PartitionAttr: "entity_id",
			SortAttr:      "as_of_date",
			Descending:    true,
		},
	}
}

func item(id, name string, value int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"entity_id":        &types.AttributeValueMemberS{Value: id},
		"player_name":      &types.AttributeValueMemberS{Value: name},
		"market_value_eur": &types.AttributeValueMemberN{Value: strconv.FormatInt(value, 10)},
		"active":           &types.AttributeValueMemberBOOL{Value: true},
	}
}

func TestReadPartitionQueryShape(t *testing.T) {
	client := new(mockQueryAPI)
	s := NewStore(client, testTables())

	client.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return *in.TableName == "players_by_position" &&
			*in.KeyConditionExpression == "#pk = :pk" &&
			in.ExpressionAttributeNames["#pk"] == "position" &&
			in.ExpressionAttributeValues[":pk"].(*types.AttributeValueMemberS).Value == "GK" &&
			*in.Limit == 25 &&
			*in.ScanIndexForward
	})).Return(&dynamodb.QueryOutput{
		Items: []map[string]types.AttributeValue{item("p1", "Alisson", 42_000_000)},
	}, nil).Once()

	page, err := s.ReadPartition(context.Background(), store.ReadRequest{
		Projection: "players_by_position",
		Key:        "GK",
		PageSize:   25,
	})
	require.NoError(t, err)
	require.Len(t, page.Rows, 1)
	assert.Equal(t, "p1", page.Rows[0].ID)
	assert.Equal(t, predicate.String("Alisson"), page.Rows[0].Fields["player_name"])
	assert.Equal(t, predicate.Int(42_000_000), page.Rows[0].Fields["market_value_eur"])
	assert.Equal(t, predicate.Bool(true), page.Rows[0].Fields["active"])
	assert.Nil(t, page.PageState)
	client.AssertExpectations(t)
}

func TestReadPartitionPrefix(t *testing.T) {
	client := new(mockQueryAPI)
	s := NewStore(client, testTables())

	client.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return *in.KeyConditionExpression == "#pk = :pk AND begins_with(#sk, :prefix)" &&
			in.ExpressionAttributeNames["#sk"] == "name_lower" &&
			in.ExpressionAttributeValues[":prefix"].(*types.AttributeValueMemberS).Value == "ron"
	})).Return(&dynamodb.QueryOutput{}, nil).Once()

	_, err := s.ReadPartition(context.Background(), store.ReadRequest{
		Projection: "players_search_index",
		Key:        "all",
		Prefix:     "Ron",
		PageSize:   10,
	})
	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestReadPartitionContinuation(t *testing.T) {
	client := new(mockQueryAPI)
	s := NewStore(client, testTables())

	lastKey := map[string]types.AttributeValue{
		"position":  &types.AttributeValueMemberS{Value: "GK"},
		"entity_id": &types.AttributeValueMemberS{Value: "p7"},
	}

	client.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return in.ExclusiveStartKey == nil
	})).Return(&dynamodb.QueryOutput{
		Items:            []map[string]types.AttributeValue{item("p7", "x", 1)},
		LastEvaluatedKey: lastKey,
	}, nil).Once()

	page1, err := s.ReadPartition(context.Background(), store.ReadRequest{
		Projection: "players_by_position",
		Key:        "GK",
		PageSize:   1,
	})
	require.NoError(t, err)
	require.NotNil(t, page1.PageState)

	client.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		if in.ExclusiveStartKey == nil {
			return false
		}
		got := in.ExclusiveStartKey["entity_id"].(*types.AttributeValueMemberS).Value
		return got == "p7"
	})).Return(&dynamodb.QueryOutput{}, nil).Once()

	page2, err := s.ReadPartition(context.Background(), store.ReadRequest{
		Projection: "players_by_position",
		Key:        "GK",
		PageSize:   1,
		PageState:  page1.PageState,
	})
	require.NoError(t, err)
	assert.Nil(t, page2.PageState)
	client.AssertExpectations(t)
}

func TestReadPartitionDescending(t *testing.T) {
	client := new(mockQueryAPI)
	s := NewStore(client, testTables())

	client.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return *in.TableName == "market_value_by_player" && !*in.ScanIndexForward
	})).Return(&dynamodb.QueryOutput{}, nil).Once()

	_, err := s.ReadPartition(context.Background(), store.ReadRequest{
		Projection: "market_value_by_player",
		Key:        "p1",
		PageSize:   10,
	})
	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestReadPartitionErrorTranslation(t *testing.T) {
	t.Run("missing table is empty", func(t *testing.T) {
		client := new(mockQueryAPI)
		s := NewStore(client, testTables())
		client.On("Query", mock.Anything, mock.Anything).
			Return(nil, &types.ResourceNotFoundException{Message: aws.String("no table")}).Once()

		page, err := s.ReadPartition(context.Background(), store.ReadRequest{
			Projection: "players_by_position", Key: "GK", PageSize: 1,
		})
		require.NoError(t, err)
		assert.Empty(t, page.Rows)
	})

	t.Run("deadline becomes timeout", func(t *testing.T) {
		client := new(mockQueryAPI)
		s := NewStore(client, testTables())
		client.On("Query", mock.Anything, mock.Anything).
			Return(nil, context.DeadlineExceeded).Once()

		_, err := s.ReadPartition(context.Background(), store.ReadRequest{
			Projection: "players_by_position", Key: "GK", PageSize: 1,
		})
		assert.True(t, errors.Is(err, store.ErrTimeout))
	})

	t.Run("other errors become unavailable", func(t *testing.T) {
		client := new(mockQueryAPI)
		s := NewStore(client, testTables())
		client.On("Query", mock.Anything, mock.Anything).
			Return(nil, errors.New("connection reset")).Once()

		_, err := s.ReadPartition(context.Background(), store.ReadRequest{
			Projection: "players_by_position", Key: "GK", PageSize: 1,
		})
		assert.True(t, errors.Is(err, store.ErrUnavailable))
	})

	t.Run("unmapped projection", func(t *testing.T) {
		s := NewStore(new(mockQueryAPI), testTables())
		_, err := s.ReadPartition(context.Background(), store.ReadRequest{
			Projection: "nope", Key: "x", PageSize: 1,
		})
		assert.Error(t, err)
	})
}

func TestKeyTokenRoundTrip(t *testing.T) {
	key := map[string]types.AttributeValue{
		"position": &types.AttributeValueMemberS{Value: "GK"},
		"fee_eur":  &types.AttributeValueMemberN{Value: "90000000"},
		"opaque":   &types.AttributeValueMemberB{Value: []byte{0x01, 0x02}},
	}

	buf, err := encodeKey(key)
	require.NoError(t, err)

	got, err := decodeKey(buf)
	require.NoError(t, err)
	assert.Equal(t, key, got)

	// Deterministic across map iteration order.
	buf2, err := encodeKey(key)
	require.NoError(t, err)
	assert.Equal(t, buf, buf2)
}

func TestKeyTokenRejectsMalformed(t *testing.T) {
	for _, data := range [][]byte{
		{},
		{0x01},
		{0x01, 0x02, 'a'},
		{0x01, 0x01, 'a', 'X', 0x00},
	} {
		_, err := decodeKey(data)
		assert.Error(t, err)
	}
}
