package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDynamo records calls and delegates to optional function fields.
type mockDynamo struct {
	GetItemFn            func(*dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error)
	QueryFn              func(*dynamodb.QueryInput) (*dynamodb.QueryOutput, error)
	ScanFn               func(*dynamodb.ScanInput) (*dynamodb.ScanOutput, error)
	TransactWriteItemsFn func(*dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error)

	transactions []*dynamodb.TransactWriteItemsInput
}

func (m *mockDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if m.GetItemFn != nil {
		return m.GetItemFn(in)
	}
	return &dynamodb.GetItemOutput{}, nil
}

func (m *mockDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if m.QueryFn != nil {
		return m.QueryFn(in)
	}
	return &dynamodb.QueryOutput{}, nil
}

func (m *mockDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	if m.ScanFn != nil {
		return m.ScanFn(in)
	}
	return &dynamodb.ScanOutput{}, nil
}

func (m *mockDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	m.transactions = append(m.transactions, in)
	if m.TransactWriteItemsFn != nil {
		return m.TransactWriteItemsFn(in)
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func sampleMovement() Movement {
	return Movement{
		ID:            "01HV0000000000000000000000",
		AccountNumber: "001",
		Seq:           3,
		Date:          time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Type:          "deposit",
		Value:         dec("500.25"),
		Balance:       dec("1500.25"),
		CreatedAt:     time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC),
	}
}

func marshalMovement(t *testing.T, m Movement) map[string]types.AttributeValue {
	t.Helper()
	av, err := attributevalue.MarshalMap(toItem(m))
	require.NoError(t, err)
	return av
}

func stringAttr(t *testing.T, item map[string]types.AttributeValue, name string) string {
	t.Helper()
	v, ok := item[name].(*types.AttributeValueMemberS)
	require.True(t, ok, "attribute %s is not a string", name)
	return v.Value
}

func TestDynamoStore_AppendGuardsHead(t *testing.T) {
	client := &mockDynamo{}
	store := NewDynamoStore(client, "ledger")

	m := sampleMovement()
	m.Seq = 0
	saved, err := store.Append(context.Background(), m, Head{AccountNumber: "001"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.Seq)

	require.Len(t, client.transactions, 1)
	items := client.transactions[0].TransactItems
	require.Len(t, items, 2)

	update := items[0].Update
	require.NotNil(t, update)
	assert.Equal(t, "ACCOUNT#001", stringAttr(t, update.Key, "PK"))
	assert.Equal(t, "HEAD", stringAttr(t, update.Key, "SK"))
	assert.Contains(t, aws.ToString(update.ConditionExpression), "attribute_not_exists")

	put := items[1].Put
	require.NotNil(t, put)
	assert.Equal(t, "ledger", aws.ToString(put.TableName))
	assert.Equal(t, "MOV#2024-03-15#00000000000000000001", stringAttr(t, put.Item, "SK"))
	assert.Equal(t, "MOVEMENT#"+m.ID, stringAttr(t, put.Item, "GSI1PK"))
	assert.Equal(t, "500.25", stringAttr(t, put.Item, "value"))
}

func TestDynamoStore_ConditionFailureIsWriteConflict(t *testing.T) {
	client := &mockDynamo{
		TransactWriteItemsFn: func(*dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error) {
			return nil, &types.TransactionCanceledException{
				Message: aws.String("Transaction cancelled"),
				CancellationReasons: []types.CancellationReason{
					{Code: aws.String("ConditionalCheckFailed"), Message: aws.String("version mismatch")},
					{Code: aws.String("None")},
				},
			}
		},
	}
	store := NewDynamoStore(client, "ledger")

	_, err := store.Append(context.Background(), sampleMovement(), Head{AccountNumber: "001", Version: 2})
	assert.ErrorIs(t, err, ErrWriteConflict)

	err = store.Remove(context.Background(), sampleMovement(), Head{AccountNumber: "001", Version: 3})
	assert.ErrorIs(t, err, ErrWriteConflict)
}

func TestDynamoStore_Head(t *testing.T) {
	m := sampleMovement()
	client := &mockDynamo{
		GetItemFn: func(in *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
			assert.True(t, aws.ToBool(in.ConsistentRead))
			item, err := attributevalue.MarshalMap(headItem{PK: "ACCOUNT#001", SK: "HEAD", Version: 3})
			return &dynamodb.GetItemOutput{Item: item}, err
		},
		QueryFn: func(in *dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
			assert.False(t, aws.ToBool(in.ScanIndexForward))
			assert.Equal(t, int32(1), aws.ToInt32(in.Limit))
			return &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{marshalMovement(t, m)}}, nil
		},
	}
	store := NewDynamoStore(client, "ledger")

	head, err := store.Head(context.Background(), "001")
	require.NoError(t, err)
	assert.Equal(t, int64(3), head.Version)
	require.NotNil(t, head.Last)
	assert.Equal(t, m.ID, head.Last.ID)
	assert.True(t, head.Last.Balance.Equal(m.Balance))
	assert.True(t, head.Last.Date.Equal(m.Date))
}

func TestDynamoStore_GetMissing(t *testing.T) {
	store := NewDynamoStore(&mockDynamo{}, "ledger")
	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDynamoStore_RewriteMovesItemWhenKeyChanges(t *testing.T) {
	stored := sampleMovement()
	client := &mockDynamo{
		QueryFn: func(*dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
			t.Fatal("rewrite must locate the stored item from the revision, not the index")
			return nil, nil
		},
	}
	store := NewDynamoStore(client, "ledger")

	moved := stored
	moved.AccountNumber = "002"
	moved.Seq = 8
	err := store.Rewrite(context.Background(),
		[]Head{{AccountNumber: "002", Version: 7}, {AccountNumber: "001", Version: 3}},
		[]Revision{{Before: stored, After: moved}})
	require.NoError(t, err)

	require.Len(t, client.transactions, 1)
	items := client.transactions[0].TransactItems
	require.Len(t, items, 4)
	assert.NotNil(t, items[0].Update)
	assert.NotNil(t, items[1].Update)
	require.NotNil(t, items[2].Delete)
	assert.Equal(t, "ACCOUNT#001", stringAttr(t, items[2].Delete.Key, "PK"))
	assert.Equal(t, movementSK(stored), stringAttr(t, items[2].Delete.Key, "SK"))
	require.NotNil(t, items[3].Put)
	assert.Equal(t, "ACCOUNT#002", stringAttr(t, items[3].Put.Item, "PK"))
}

func largeRewrite(n int) []Revision {
	revs := make([]Revision, n)
	for i := range revs {
		m := sampleMovement()
		m.ID = fmt.Sprintf("01HV%022d", i)
		m.Seq = int64(i + 1)
		after := m
		after.Balance = m.Balance.Add(dec("1"))
		revs[i] = Revision{Before: m, After: after}
	}
	return revs
}

func TestDynamoStore_RewriteGuardsEveryBatch(t *testing.T) {
	client := &mockDynamo{}
	store := NewDynamoStore(client, "ledger")

	err := store.Rewrite(context.Background(), []Head{{AccountNumber: "001", Version: 250}}, largeRewrite(250))
	require.NoError(t, err)

	require.Len(t, client.transactions, 3)
	newest := client.transactions[0].TransactItems[1].Put
	require.NotNil(t, newest)
	assert.Equal(t, fmt.Sprintf("01HV%022d", 249), stringAttr(t, newest.Item, "id"), "tail is rewritten first")
	puts := 0
	for i, tx := range client.transactions {
		items := tx.TransactItems
		assert.LessOrEqual(t, len(items), maxTransactItems)
		if i == 0 {
			require.NotNil(t, items[0].Update, "first batch advances the head")
			assert.Equal(t, headSK, stringAttr(t, items[0].Update.Key, "SK"))
		} else {
			check := items[0].ConditionCheck
			require.NotNil(t, check, "batch %d opens with a head check", i)
			assert.Equal(t, "ACCOUNT#001", stringAttr(t, check.Key, "PK"))
			assert.Equal(t, headSK, stringAttr(t, check.Key, "SK"))
			assert.Contains(t, check.ExpressionAttributeValues, ":0")
			v, ok := check.ExpressionAttributeValues[":0"].(*types.AttributeValueMemberN)
			require.True(t, ok)
			assert.Equal(t, "251", v.Value, "head must still hold the version the first batch wrote")
		}
		for _, item := range items[1:] {
			require.NotNil(t, item.Put)
			puts++
		}
	}
	assert.Equal(t, 250, puts)
}

func TestDynamoStore_RewriteStopsWhenLaterBatchLosesHead(t *testing.T) {
	client := &mockDynamo{
		TransactWriteItemsFn: func(in *dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error) {
			if in.TransactItems[0].ConditionCheck == nil {
				return &dynamodb.TransactWriteItemsOutput{}, nil
			}
			return nil, &types.TransactionCanceledException{
				Message: aws.String("canceled"),
				CancellationReasons: []types.CancellationReason{
					{Code: aws.String("ConditionalCheckFailed"), Message: aws.String("head moved")},
				},
			}
		},
	}
	store := NewDynamoStore(client, "ledger")

	err := store.Rewrite(context.Background(), []Head{{AccountNumber: "001", Version: 4}}, largeRewrite(150))
	assert.ErrorIs(t, err, ErrWriteConflict)
	assert.Len(t, client.transactions, 2)
}

func TestDynamoStore_FindPaginates(t *testing.T) {
	first, second := sampleMovement(), sampleMovement()
	second.ID = "01HV0000000000000000000001"
	second.Seq = 4

	calls := 0
	client := &mockDynamo{
		QueryFn: func(in *dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
			calls++
			if calls == 1 {
				return &dynamodb.QueryOutput{
					Items:            []map[string]types.AttributeValue{marshalMovement(t, first)},
					LastEvaluatedKey: itemKey("ACCOUNT#001", movementSK(first)),
				}, nil
			}
			assert.NotEmpty(t, in.ExclusiveStartKey)
			return &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{marshalMovement(t, second)}}, nil
		},
	}
	store := NewDynamoStore(client, "ledger")

	ms, err := store.Find(context.Background(), Query{AccountNumbers: []string{"001"}})
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, second.ID, ms[0].ID, "newest insertion first")
	assert.Equal(t, 2, calls)
}

func TestMovementSK_SortsLikeChain(t *testing.T) {
	a, b := sampleMovement(), sampleMovement()
	a.Seq, b.Seq = 9, 10
	assert.True(t, before(a, b))
	assert.Less(t, movementSK(a), movementSK(b))

	c := sampleMovement()
	c.Date = c.Date.AddDate(0, 0, 1)
	c.Seq = 1
	assert.Less(t, movementSK(b), movementSK(c))
}
