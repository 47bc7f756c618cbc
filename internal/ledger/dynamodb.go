package ledger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
)

// maxTransactItems is the DynamoDB limit on actions per TransactWriteItems call.
const maxTransactItems = 100

const (
	headSK         = "HEAD"
	movementPrefix = "MOV#"
	movementGSI    = "GSI1"
	movementGSISK  = "MOVEMENT"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// DynamoStore keeps movements in a single DynamoDB table. Every account owns a
// partition holding a HEAD item (the version) and one item per movement keyed
// by date and sequence, so a partition query returns the chain in order.
type DynamoStore struct {
	client DynamoAPI
	table  string
}

// NewDynamoStore constructs a DynamoDB-backed movement store.
func NewDynamoStore(client DynamoAPI, table string) *DynamoStore {
	return &DynamoStore{client: client, table: table}
}

type headItem struct {
	PK      string `dynamodbav:"PK"`
	SK      string `dynamodbav:"SK"`
	Version int64  `dynamodbav:"version"`
}

type movementItem struct {
	PK            string    `dynamodbav:"PK"`
	SK            string    `dynamodbav:"SK"`
	GSI1PK        string    `dynamodbav:"GSI1PK"`
	GSI1SK        string    `dynamodbav:"GSI1SK"`
	ID            string    `dynamodbav:"id"`
	AccountNumber string    `dynamodbav:"account_number"`
	Seq           int64     `dynamodbav:"seq"`
	Date          string    `dynamodbav:"date"`
	Kind          string    `dynamodbav:"kind"`
	Value         string    `dynamodbav:"value"`
	Balance       string    `dynamodbav:"balance"`
	CreatedAt     time.Time `dynamodbav:"created_at"`
}

func accountPK(number string) string { return "ACCOUNT#" + number }

func movementSK(m Movement) string {
	return fmt.Sprintf("%s%s#%020d", movementPrefix, FormatDate(m.Date), m.Seq)
}

func toItem(m Movement) movementItem {
	return movementItem{
		PK:            accountPK(m.AccountNumber),
		SK:            movementSK(m),
		GSI1PK:        "MOVEMENT#" + m.ID,
		GSI1SK:        movementGSISK,
		ID:            m.ID,
		AccountNumber: m.AccountNumber,
		Seq:           m.Seq,
		Date:          FormatDate(m.Date),
		Kind:          m.Type,
		Value:         m.Value.String(),
		Balance:       m.Balance.String(),
		CreatedAt:     m.CreatedAt.UTC(),
	}
}

func (it movementItem) movement() (Movement, error) {
	date, err := ParseDate(it.Date)
	if err != nil {
		return Movement{}, fmt.Errorf("movement %s date: %w", it.ID, err)
	}
	value, err := decimal.NewFromString(it.Value)
	if err != nil {
		return Movement{}, fmt.Errorf("movement %s value: %w", it.ID, err)
	}
	balance, err := decimal.NewFromString(it.Balance)
	if err != nil {
		return Movement{}, fmt.Errorf("movement %s balance: %w", it.ID, err)
	}
	return Movement{
		ID:            it.ID,
		AccountNumber: it.AccountNumber,
		Seq:           it.Seq,
		Date:          date,
		Type:          it.Kind,
		Value:         value,
		Balance:       balance,
		CreatedAt:     it.CreatedAt,
	}, nil
}

func itemKey(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

func (s *DynamoStore) Head(ctx context.Context, accountNumber string) (Head, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            itemKey(accountPK(accountNumber), headSK),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return Head{}, fmt.Errorf("get account head: %w", err)
	}
	head := Head{AccountNumber: accountNumber}
	if len(out.Item) > 0 {
		var hi headItem
		if err := attributevalue.UnmarshalMap(out.Item, &hi); err != nil {
			return Head{}, fmt.Errorf("unmarshal account head: %w", err)
		}
		head.Version = hi.Version
	}

	keyCond := expression.Key("PK").Equal(expression.Value(accountPK(accountNumber))).
		And(expression.Key("SK").BeginsWith(movementPrefix))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return Head{}, fmt.Errorf("build expression: %w", err)
	}
	res, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(false),
		ConsistentRead:            aws.Bool(true),
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return Head{}, fmt.Errorf("query latest movement: %w", err)
	}
	if len(res.Items) == 0 {
		return head, nil
	}
	last, err := decodeMovement(res.Items[0])
	if err != nil {
		return Head{}, err
	}
	head.Last = &last
	return head, nil
}

func (s *DynamoStore) Append(ctx context.Context, m Movement, expected Head) (Movement, error) {
	m.Seq = expected.Version + 1
	advance, err := s.advanceHead(expected)
	if err != nil {
		return Movement{}, err
	}
	put, err := s.putMovement(m, expression.AttributeNotExists(expression.Name("PK")))
	if err != nil {
		return Movement{}, err
	}
	if err := s.transact(ctx, []types.TransactWriteItem{advance, put}); err != nil {
		return Movement{}, err
	}
	return m, nil
}

// Rewrite advances every expected head in the first transaction. Rewrites
// larger than one transaction continue in further batches, each opening with a
// check that the heads still hold the version the first batch wrote, so a
// competing writer cancels the remaining batches with ErrWriteConflict.
func (s *DynamoStore) Rewrite(ctx context.Context, expected []Head, revisions []Revision) error {
	room := maxTransactItems - len(expected)
	if room < 2 {
		return fmt.Errorf("rewrite guards %d heads, leaving no room for movements", len(expected))
	}

	first := make([]types.TransactWriteItem, 0, len(expected))
	guards := make([]types.TransactWriteItem, 0, len(expected))
	for _, h := range expected {
		advance, err := s.advanceHead(h)
		if err != nil {
			return err
		}
		first = append(first, advance)
		guard, err := s.checkHead(Head{AccountNumber: h.AccountNumber, Version: h.Version + 1})
		if err != nil {
			return err
		}
		guards = append(guards, guard)
	}

	// Newest first, so the first batch already fixes the tail that Head reads.
	ordered := slices.Clone(revisions)
	slices.SortStableFunc(ordered, func(a, b Revision) int {
		switch {
		case before(b.After, a.After):
			return -1
		case before(a.After, b.After):
			return 1
		}
		return 0
	})

	batches := [][]types.TransactWriteItem{first}
	for _, r := range ordered {
		// A moved movement's delete and put stay in one batch.
		unit := make([]types.TransactWriteItem, 0, 2)
		if accountPK(r.Before.AccountNumber) != accountPK(r.After.AccountNumber) || movementSK(r.Before) != movementSK(r.After) {
			del, err := s.deleteMovement(r.Before)
			if err != nil {
				return err
			}
			unit = append(unit, del)
		}
		put, err := s.putMovement(r.After, expression.ConditionBuilder{})
		if err != nil {
			return err
		}
		unit = append(unit, put)

		last := batches[len(batches)-1]
		if len(last)-len(expected)+len(unit) > room {
			last = append(make([]types.TransactWriteItem, 0, maxTransactItems), guards...)
			batches = append(batches, last)
		}
		batches[len(batches)-1] = append(last, unit...)
	}

	for _, batch := range batches {
		if err := s.transact(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}

func (s *DynamoStore) Remove(ctx context.Context, m Movement, expected Head) error {
	advance, err := s.advanceHead(expected)
	if err != nil {
		return err
	}
	del, err := s.deleteMovement(m)
	if err != nil {
		return err
	}
	return s.transact(ctx, []types.TransactWriteItem{advance, del})
}

func (s *DynamoStore) Get(ctx context.Context, id string) (Movement, error) {
	keyCond := expression.Key("GSI1PK").Equal(expression.Value("MOVEMENT#" + id)).
		And(expression.Key("GSI1SK").Equal(expression.Value(movementGSISK)))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return Movement{}, fmt.Errorf("build expression: %w", err)
	}
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		IndexName:                 aws.String(movementGSI),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return Movement{}, fmt.Errorf("query movement: %w", err)
	}
	if len(out.Items) == 0 {
		return Movement{}, ErrNotFound
	}
	return decodeMovement(out.Items[0])
}

// Find queries each requested account partition, or scans the table when no
// account is named.
func (s *DynamoStore) Find(ctx context.Context, q Query) ([]Movement, error) {
	lo, hi := movementPrefix, movementPrefix+"~"
	if !q.From.IsZero() {
		lo = movementPrefix + FormatDate(q.From)
	}
	if !q.To.IsZero() {
		hi = movementPrefix + FormatDate(q.To) + "#~"
	}

	out := make([]Movement, 0)
	if len(q.AccountNumbers) == 0 {
		filter := expression.Name("SK").Between(expression.Value(lo), expression.Value(hi))
		expr, err := expression.NewBuilder().WithFilter(filter).Build()
		if err != nil {
			return nil, fmt.Errorf("build expression: %w", err)
		}
		input := &dynamodb.ScanInput{
			TableName:                 aws.String(s.table),
			FilterExpression:          expr.Filter(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		}
		for {
			page, err := s.client.Scan(ctx, input)
			if err != nil {
				return nil, fmt.Errorf("scan movements: %w", err)
			}
			if out, err = appendDecoded(out, page.Items); err != nil {
				return nil, err
			}
			if len(page.LastEvaluatedKey) == 0 {
				break
			}
			input.ExclusiveStartKey = page.LastEvaluatedKey
		}
		SortNewestFirst(out)
		return out, nil
	}

	for _, number := range q.AccountNumbers {
		keyCond := expression.Key("PK").Equal(expression.Value(accountPK(number))).
			And(expression.Key("SK").Between(expression.Value(lo), expression.Value(hi)))
		expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
		if err != nil {
			return nil, fmt.Errorf("build expression: %w", err)
		}
		input := &dynamodb.QueryInput{
			TableName:                 aws.String(s.table),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ScanIndexForward:          aws.Bool(false),
			ConsistentRead:            aws.Bool(true),
		}
		for {
			page, err := s.client.Query(ctx, input)
			if err != nil {
				return nil, fmt.Errorf("query movements of %s: %w", number, err)
			}
			if out, err = appendDecoded(out, page.Items); err != nil {
				return nil, err
			}
			if len(page.LastEvaluatedKey) == 0 {
				break
			}
			input.ExclusiveStartKey = page.LastEvaluatedKey
		}
	}
	SortNewestFirst(out)
	return out, nil
}

// advanceHead builds the conditional version bump that guards every write.
func (s *DynamoStore) advanceHead(expected Head) (types.TransactWriteItem, error) {
	cond := expression.Name("version").Equal(expression.Value(expected.Version))
	if expected.Version == 0 {
		cond = expression.AttributeNotExists(expression.Name("PK"))
	}
	update := expression.Set(expression.Name("version"), expression.Value(expected.Version+1))
	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("build expression: %w", err)
	}
	return types.TransactWriteItem{Update: &types.Update{
		TableName:                 aws.String(s.table),
		Key:                       itemKey(accountPK(expected.AccountNumber), headSK),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}}, nil
}

// checkHead builds a condition check that the head still holds h.Version.
func (s *DynamoStore) checkHead(h Head) (types.TransactWriteItem, error) {
	expr, err := expression.NewBuilder().
		WithCondition(expression.Name("version").Equal(expression.Value(h.Version))).
		Build()
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("build expression: %w", err)
	}
	return types.TransactWriteItem{ConditionCheck: &types.ConditionCheck{
		TableName:                 aws.String(s.table),
		Key:                       itemKey(accountPK(h.AccountNumber), headSK),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}}, nil
}

func (s *DynamoStore) putMovement(m Movement, cond expression.ConditionBuilder) (types.TransactWriteItem, error) {
	item, err := attributevalue.MarshalMap(toItem(m))
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("marshal movement: %w", err)
	}
	put := &types.Put{TableName: aws.String(s.table), Item: item}
	if cond.IsSet() {
		expr, err := expression.NewBuilder().WithCondition(cond).Build()
		if err != nil {
			return types.TransactWriteItem{}, fmt.Errorf("build expression: %w", err)
		}
		put.ConditionExpression = expr.Condition()
		put.ExpressionAttributeNames = expr.Names()
		put.ExpressionAttributeValues = expr.Values()
	}
	return types.TransactWriteItem{Put: put}, nil
}

func (s *DynamoStore) deleteMovement(m Movement) (types.TransactWriteItem, error) {
	expr, err := expression.NewBuilder().
		WithCondition(expression.AttributeExists(expression.Name("PK"))).
		Build()
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("build expression: %w", err)
	}
	return types.TransactWriteItem{Delete: &types.Delete{
		TableName:                aws.String(s.table),
		Key:                      itemKey(accountPK(m.AccountNumber), movementSK(m)),
		ConditionExpression:      expr.Condition(),
		ExpressionAttributeNames: expr.Names(),
	}}, nil
}

func (s *DynamoStore) transact(ctx context.Context, items []types.TransactWriteItem) error {
	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	return mapDynamoError(err)
}

// mapDynamoError turns failed conditions and transaction races into ErrWriteConflict.
func mapDynamoError(err error) error {
	if err == nil {
		return nil
	}
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		for _, reason := range canceled.CancellationReasons {
			switch aws.ToString(reason.Code) {
			case "ConditionalCheckFailed", "TransactionConflict":
				return fmt.Errorf("%s: %w", aws.ToString(reason.Message), ErrWriteConflict)
			}
		}
		return err
	}
	var condFailed *types.ConditionalCheckFailedException
	if errors.As(err, &condFailed) {
		return fmt.Errorf("%s: %w", condFailed.ErrorMessage(), ErrWriteConflict)
	}
	var conflict *types.TransactionConflictException
	if errors.As(err, &conflict) {
		return fmt.Errorf("%s: %w", conflict.ErrorMessage(), ErrWriteConflict)
	}
	return err
}

func decodeMovement(av map[string]types.AttributeValue) (Movement, error) {
	var it movementItem
	if err := attributevalue.UnmarshalMap(av, &it); err != nil {
		return Movement{}, fmt.Errorf("unmarshal movement: %w", err)
	}
	return it.movement()
}

func appendDecoded(out []Movement, items []map[string]types.AttributeValue) ([]Movement, error) {
	for _, av := range items {
		m, err := decodeMovement(av)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
