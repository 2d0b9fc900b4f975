// Package dynamodb implements the repository contracts on a single DynamoDB
// table. Entries live under PK=<owner>, SK=ENTRY#<date>, so the key itself
// enforces one row per owner and date and Upsert is one UpdateItem call.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wangmul/emotion-tracker/internal/domain/entry"
	"github.com/wangmul/emotion-tracker/internal/domain/soothing"
	apperrors "github.com/wangmul/emotion-tracker/internal/errors"
	"github.com/wangmul/emotion-tracker/internal/repository"
)

const (
	anonymousPK   = "ANONYMOUS"
	entryPrefix   = "ENTRY#"
	methodPrefix  = "METHOD#"
	entryIDPrefix = "ENTRYID#"
	timeLayout    = time.RFC3339Nano
)

// API is the subset of the DynamoDB client the stores use.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Config names the table and the ID lookup index.
type Config struct {
	TableName string
	IndexName string
}

// ddbEntry is the stored shape of a daily entry.
type ddbEntry struct {
	PK                    string   `dynamodbav:"PK"`
	SK                    string   `dynamodbav:"SK"`
	GSI1PK                string   `dynamodbav:"GSI1PK"`
	GSI1SK                string   `dynamodbav:"GSI1SK"`
	EntryID               string   `dynamodbav:"EntryID"`
	UserID                string   `dynamodbav:"UserID,omitempty"`
	EntryDate             string   `dynamodbav:"EntryDate"`
	SaidNoCount           int      `dynamodbav:"SaidNoCount"`
	AskedHelpCount        int      `dynamodbav:"AskedHelpCount"`
	ChoseForJoyCount      int      `dynamodbav:"ChoseForJoyCount"`
	TookRest              bool     `dynamodbav:"TookRest"`
	DidCook               bool     `dynamodbav:"DidCook"`
	DidExercise           bool     `dynamodbav:"DidExercise"`
	MustDoTasks           []string `dynamodbav:"MustDoTasks"`
	WantedButSkippedTasks []string `dynamodbav:"WantedButSkippedTasks"`
	SelfSoothingMethods   string   `dynamodbav:"SelfSoothingMethods,omitempty"`
	CreatedAt             string   `dynamodbav:"CreatedAt"`
	UpdatedAt             string   `dynamodbav:"UpdatedAt"`
}

// ddbMethod is the stored shape of a self-soothing method.
type ddbMethod struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	MethodID  string `dynamodbav:"MethodID"`
	UserID    string `dynamodbav:"UserID,omitempty"`
	Content   string `dynamodbav:"Content"`
	CreatedAt string `dynamodbav:"CreatedAt"`
}

func ownerPK(owner entry.Owner) string {
	if id, ok := owner.ID(); ok {
		return fmt.Sprintf("USER#%s", id)
	}
	return anonymousPK
}

func entryKey(owner entry.Owner, date entry.Date) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: ownerPK(owner)},
		"SK": &types.AttributeValueMemberS{Value: entryPrefix + date.String()},
	}
}

func toItem(e entry.DailyEntry) ddbEntry {
	userID, _ := e.Owner.ID()
	return ddbEntry{
		PK:                    ownerPK(e.Owner),
		SK:                    entryPrefix + e.Date.String(),
		GSI1PK:                entryIDPrefix + e.ID,
		GSI1SK:                "ENTRY",
		EntryID:               e.ID,
		UserID:                userID,
		EntryDate:             e.Date.String(),
		SaidNoCount:           e.SaidNoCount,
		AskedHelpCount:        e.AskedHelpCount,
		ChoseForJoyCount:      e.ChoseForJoyCount,
		TookRest:              e.TookRest,
		DidCook:               e.DidCook,
		DidExercise:           e.DidExercise,
		MustDoTasks:           e.MustDoTasks.Slice(),
		WantedButSkippedTasks: e.WantedButSkippedTasks.Slice(),
		SelfSoothingMethods:   e.SelfSoothingMethods,
		CreatedAt:             e.CreatedAt.UTC().Format(timeLayout),
		UpdatedAt:             e.UpdatedAt.UTC().Format(timeLayout),
	}
}

func fromItem(item map[string]types.AttributeValue) (*entry.DailyEntry, error) {
	var d ddbEntry
	if err := attributevalue.UnmarshalMap(item, &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry item: %w", err)
	}
	date, err := entry.ParseDate(d.EntryDate)
	if err != nil {
		return nil, err
	}
	e := &entry.DailyEntry{
		ID:                    d.EntryID,
		Date:                  date,
		SaidNoCount:           d.SaidNoCount,
		AskedHelpCount:        d.AskedHelpCount,
		ChoseForJoyCount:      d.ChoseForJoyCount,
		TookRest:              d.TookRest,
		DidCook:               d.DidCook,
		DidExercise:           d.DidExercise,
		MustDoTasks:           entry.NewTaskList(d.MustDoTasks...),
		WantedButSkippedTasks: entry.NewTaskList(d.WantedButSkippedTasks...),
		SelfSoothingMethods:   d.SelfSoothingMethods,
	}
	if d.UserID != "" {
		e.Owner = entry.UserOwner(d.UserID)
	}
	if e.CreatedAt, err = parseTime("CreatedAt", d.CreatedAt); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = parseTime("UpdatedAt", d.UpdatedAt); err != nil {
		return nil, err
	}
	return e, nil
}

func parseTime(attr, raw string) (time.Time, error) {
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %q: %w", attr, raw, err)
	}
	return t, nil
}

// patchUpdate adds one SET (or REMOVE, for a cleared note) per patched field.
func patchUpdate(update expression.UpdateBuilder, p entry.Patch) expression.UpdateBuilder {
	set := func(name string, v any) {
		update = update.Set(expression.Name(name), expression.Value(v))
	}
	if p.SaidNoCount != nil {
		set("SaidNoCount", *p.SaidNoCount)
	}
	if p.AskedHelpCount != nil {
		set("AskedHelpCount", *p.AskedHelpCount)
	}
	if p.ChoseForJoyCount != nil {
		set("ChoseForJoyCount", *p.ChoseForJoyCount)
	}
	if p.TookRest != nil {
		set("TookRest", *p.TookRest)
	}
	if p.DidCook != nil {
		set("DidCook", *p.DidCook)
	}
	if p.DidExercise != nil {
		set("DidExercise", *p.DidExercise)
	}
	if p.MustDoTasks != nil {
		set("MustDoTasks", p.MustDoTasks.Slice())
	}
	if p.WantedButSkippedTasks != nil {
		set("WantedButSkippedTasks", p.WantedButSkippedTasks.Slice())
	}
	if p.SelfSoothingMethods != nil {
		if *p.SelfSoothingMethods == "" {
			update = update.Remove(expression.Name("SelfSoothingMethods"))
		} else {
			set("SelfSoothingMethods", *p.SelfSoothingMethods)
		}
	}
	return update
}

func classify(op string, err error) error {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return apperrors.Conflict("daily_entry", ccf.ErrorMessage())
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apperrors.NewError(apperrors.ErrorTypeRepository, apiErr.ErrorCode(), apiErr.Error()).
			WithOperation(op).
			WithRetryable(apiErr.ErrorFault() != smithy.FaultClient).
			WithCause(err).
			Build()
	}
	return apperrors.Repository(op, err)
}

// EntryStore implements repository.EntryRepository and AtomicUpserter.
type EntryStore struct {
	client API
	config Config
	logger *zap.Logger
	now    func() time.Time
}

func NewEntryStore(client API, config Config, logger *zap.Logger) *EntryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EntryStore{client: client, config: config, logger: logger, now: time.Now}
}

// WithClock overrides the timestamp source.
func (s *EntryStore) WithClock(now func() time.Time) *EntryStore {
	s.now = now
	return s
}

func (s *EntryStore) FindByDate(ctx context.Context, owner entry.Owner, date entry.Date) (*entry.DailyEntry, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.config.TableName),
		Key:            entryKey(owner, date),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, classify("FindByDate", err)
	}
	if out.Item == nil {
		return nil, nil
	}
	e, err := fromItem(out.Item)
	if err != nil {
		return nil, apperrors.Repository("FindByDate", err)
	}
	return e, nil
}

func (s *EntryStore) Insert(ctx context.Context, e entry.DailyEntry) (*entry.DailyEntry, error) {
	now := s.now().UTC()
	e.ID = uuid.NewString()
	e.CreatedAt, e.UpdatedAt = now, now

	item, err := attributevalue.MarshalMap(toItem(e))
	if err != nil {
		return nil, apperrors.Repository("Insert", err)
	}
	expr, err := expression.NewBuilder().
		WithCondition(expression.Name("PK").AttributeNotExists()).
		Build()
	if err != nil {
		return nil, apperrors.Repository("Insert", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(s.config.TableName),
		Item:                      item,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return nil, classify("Insert", err)
	}
	s.logger.Debug("Entry inserted", zap.String("entry_id", e.ID), zap.String("entry_date", e.Date.String()))
	return &e, nil
}

func (s *EntryStore) updateKey(ctx context.Context, op string, key map[string]types.AttributeValue, p entry.Patch, notFoundID string) (*entry.DailyEntry, error) {
	update := expression.Set(expression.Name("UpdatedAt"), expression.Value(s.now().UTC().Format(timeLayout)))
	update = patchUpdate(update, p)

	expr, err := expression.NewBuilder().
		WithUpdate(update).
		WithCondition(expression.Name("PK").AttributeExists()).
		Build()
	if err != nil {
		return nil, apperrors.Repository(op, err)
	}

	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.config.TableName),
		Key:                       key,
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, apperrors.NotFound("daily_entry", notFoundID)
		}
		return nil, classify(op, err)
	}
	e, err := fromItem(out.Attributes)
	if err != nil {
		return nil, apperrors.Repository(op, err)
	}
	return e, nil
}

func (s *EntryStore) Update(ctx context.Context, owner entry.Owner, date entry.Date, p entry.Patch) (*entry.DailyEntry, error) {
	return s.updateKey(ctx, "Update", entryKey(owner, date), p, date.String())
}

// UpdateByID resolves the primary key through the ID index first.
func (s *EntryStore) UpdateByID(ctx context.Context, id string, p entry.Patch) (*entry.DailyEntry, error) {
	keyExpr := expression.Key("GSI1PK").Equal(expression.Value(entryIDPrefix + id))
	expr, err := expression.NewBuilder().WithKeyCondition(keyExpr).Build()
	if err != nil {
		return nil, apperrors.Repository("UpdateByID", err)
	}
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.config.TableName),
		IndexName:                 aws.String(s.config.IndexName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, classify("UpdateByID", err)
	}
	if len(out.Items) == 0 {
		return nil, apperrors.NotFound("daily_entry", id)
	}
	key := map[string]types.AttributeValue{"PK": out.Items[0]["PK"], "SK": out.Items[0]["SK"]}
	return s.updateKey(ctx, "UpdateByID", key, p, id)
}

// Upsert sets the patched fields and fills every other field from seed only
// when the item does not exist yet.
func (s *EntryStore) Upsert(ctx context.Context, owner entry.Owner, date entry.Date, p, seed entry.Patch) (*entry.DailyEntry, error) {
	now := s.now().UTC().Format(timeLayout)
	full := entry.New(owner, date, seed.Merge(p))
	id := uuid.NewString()

	update := expression.Set(expression.Name("UpdatedAt"), expression.Value(now))
	update = patchUpdate(update, p)
	ifMissing := func(name string, v any) {
		update = update.Set(expression.Name(name), expression.IfNotExists(expression.Name(name), expression.Value(v)))
	}
	ifMissing("EntryID", id)
	ifMissing("GSI1PK", entryIDPrefix+id)
	ifMissing("GSI1SK", "ENTRY")
	ifMissing("EntryDate", date.String())
	ifMissing("CreatedAt", now)
	if userID, ok := owner.ID(); ok {
		ifMissing("UserID", userID)
	}
	if p.SaidNoCount == nil {
		ifMissing("SaidNoCount", full.SaidNoCount)
	}
	if p.AskedHelpCount == nil {
		ifMissing("AskedHelpCount", full.AskedHelpCount)
	}
	if p.ChoseForJoyCount == nil {
		ifMissing("ChoseForJoyCount", full.ChoseForJoyCount)
	}
	if p.TookRest == nil {
		ifMissing("TookRest", full.TookRest)
	}
	if p.DidCook == nil {
		ifMissing("DidCook", full.DidCook)
	}
	if p.DidExercise == nil {
		ifMissing("DidExercise", full.DidExercise)
	}
	if p.MustDoTasks == nil {
		ifMissing("MustDoTasks", full.MustDoTasks.Slice())
	}
	if p.WantedButSkippedTasks == nil {
		ifMissing("WantedButSkippedTasks", full.WantedButSkippedTasks.Slice())
	}
	if p.SelfSoothingMethods == nil && full.SelfSoothingMethods != "" {
		ifMissing("SelfSoothingMethods", full.SelfSoothingMethods)
	}

	expr, err := expression.NewBuilder().WithUpdate(update).Build()
	if err != nil {
		return nil, apperrors.Repository("Upsert", err)
	}
	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.config.TableName),
		Key:                       entryKey(owner, date),
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		return nil, classify("Upsert", err)
	}
	e, err := fromItem(out.Attributes)
	if err != nil {
		return nil, apperrors.Repository("Upsert", err)
	}
	return e, nil
}

// queryEntries pages through the owner's entries, newest first, keeping
// those accepted by keep until limit is reached.
func (s *EntryStore) queryEntries(ctx context.Context, op string, owner entry.Owner, limit int, keep func(*entry.DailyEntry) bool) ([]entry.DailyEntry, error) {
	keyExpr := expression.Key("PK").Equal(expression.Value(ownerPK(owner))).
		And(expression.Key("SK").BeginsWith(entryPrefix))
	expr, err := expression.NewBuilder().WithKeyCondition(keyExpr).Build()
	if err != nil {
		return nil, apperrors.Repository(op, err)
	}

	out := make([]entry.DailyEntry, 0)
	var startKey map[string]types.AttributeValue
	for {
		page, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(s.config.TableName),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ScanIndexForward:          aws.Bool(false),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, classify(op, err)
		}
		for _, item := range page.Items {
			e, err := fromItem(item)
			if err != nil {
				s.logger.Warn("Failed to parse entry item", zap.Error(err))
				continue
			}
			if keep(e) {
				out = append(out, *e)
				if len(out) == limit {
					return out, nil
				}
			}
		}
		if len(page.LastEvaluatedKey) == 0 {
			return out, nil
		}
		startKey = page.LastEvaluatedKey
	}
}

func (s *EntryStore) ListRecent(ctx context.Context, owner entry.Owner, limit int) ([]entry.DailyEntry, error) {
	out, err := s.queryEntries(ctx, "ListRecent", owner, limit, func(*entry.DailyEntry) bool { return true })
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *EntryStore) ListNotes(ctx context.Context, owner entry.Owner, limit int) ([]entry.DailyEntry, error) {
	return s.queryEntries(ctx, "ListNotes", owner, limit, func(e *entry.DailyEntry) bool {
		return strings.TrimSpace(e.SelfSoothingMethods) != ""
	})
}

func (s *EntryStore) Ping(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.config.TableName)})
	if err != nil {
		return classify("Ping", err)
	}
	return nil
}

// SoothingStore implements repository.SoothingRepository on the same table.
type SoothingStore struct {
	client API
	config Config
	now    func() time.Time
}

func NewSoothingStore(client API, config Config) *SoothingStore {
	return &SoothingStore{client: client, config: config, now: time.Now}
}

func methodKey(owner entry.Owner, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: ownerPK(owner)},
		"SK": &types.AttributeValueMemberS{Value: methodPrefix + id},
	}
}

func (s *SoothingStore) Add(ctx context.Context, m soothing.Method) (*soothing.Method, error) {
	m.ID = uuid.NewString()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now().UTC()
	}
	userID, _ := m.Owner.ID()
	item, err := attributevalue.MarshalMap(ddbMethod{
		PK:        ownerPK(m.Owner),
		SK:        methodPrefix + m.ID,
		MethodID:  m.ID,
		UserID:    userID,
		Content:   m.Content,
		CreatedAt: m.CreatedAt.UTC().Format(timeLayout),
	})
	if err != nil {
		return nil, apperrors.Repository("Add", err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.config.TableName),
		Item:      item,
	}); err != nil {
		return nil, classify("Add", err)
	}
	return &m, nil
}

// List sorts in memory because the sort key orders by ID, not time.
func (s *SoothingStore) List(ctx context.Context, owner entry.Owner, limit int) ([]soothing.Method, error) {
	keyExpr := expression.Key("PK").Equal(expression.Value(ownerPK(owner))).
		And(expression.Key("SK").BeginsWith(methodPrefix))
	expr, err := expression.NewBuilder().WithKeyCondition(keyExpr).Build()
	if err != nil {
		return nil, apperrors.Repository("List", err)
	}

	out := make([]soothing.Method, 0)
	var startKey map[string]types.AttributeValue
	for {
		page, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(s.config.TableName),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, classify("List", err)
		}
		for _, item := range page.Items {
			var d ddbMethod
			if err := attributevalue.UnmarshalMap(item, &d); err != nil {
				return nil, apperrors.Repository("List", err)
			}
			m := soothing.Method{ID: d.MethodID, Content: d.Content}
			if d.UserID != "" {
				m.Owner = entry.UserOwner(d.UserID)
			}
			if m.CreatedAt, err = parseTime("CreatedAt", d.CreatedAt); err != nil {
				return nil, apperrors.Repository("List", err)
			}
			out = append(out, m)
		}
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		startKey = page.LastEvaluatedKey
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *SoothingStore) Delete(ctx context.Context, owner entry.Owner, id string) error {
	expr, err := expression.NewBuilder().
		WithCondition(expression.Name("PK").AttributeExists()).
		Build()
	if err != nil {
		return apperrors.Repository("Delete", err)
	}
	_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String(s.config.TableName),
		Key:                       methodKey(owner, id),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return apperrors.NotFound("self_soothing_method", id)
		}
		return classify("Delete", err)
	}
	return nil
}

// NewStore wires both repositories over one client.
func NewStore(client API, config Config, logger *zap.Logger) repository.Store {
	return repository.Store{
		Entries:  NewEntryStore(client, config, logger),
		Soothing: NewSoothingStore(client, config),
	}
}

var (
	_ repository.EntryRepository    = (*EntryStore)(nil)
	_ repository.AtomicUpserter     = (*EntryStore)(nil)
	_ repository.SoothingRepository = (*SoothingStore)(nil)
	_ API                           = (*dynamodb.Client)(nil)
)
