package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"floorbot/internal/domain"
)

// Single-table layout:
//
//	CONV#<phone>   META#                 conversation
//	CONV#<phone>   STATE#                conversation state
//	CONV#<phone>   MSG#<time>#<id>       message log entry
//	WAMID#<id>     WAMID#                provider message id guard
//	QUOTE#<id>     QUOTE#                quote
const (
	skMeta      = "META#"
	skState     = "STATE#"
	skPrefixMsg = "MSG#"
	skQuote     = "QUOTE#"

	entityConversation = "conversation"
	entityQuote        = "quote"
)

// dynamodbAPI is the subset of the DynamoDB client the store uses.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// DynamoStore implements domain.AdminStore on one DynamoDB table keyed by PK/SK.
type DynamoStore struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

func NewDynamoStore(api dynamodbAPI, tableName string) (*DynamoStore, error) {
	if api == nil {
		return nil, errors.New("store: dynamodb api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("store: dynamodb table name must not be empty")
	}
	return &DynamoStore{api: api, tableName: tableName, now: time.Now}, nil
}

func convPK(phone string) string { return "CONV#" + phone }

func quotePK(id string) string { return "QUOTE#" + id }

func wamidPK(id string) string { return "WAMID#" + id }

func msgSK(ts time.Time, id string) string {
	return skPrefixMsg + formatTime(ts) + "#" + id
}

func key(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

func (s *DynamoStore) Ping(ctx context.Context) error {
	_, err := s.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.tableName)})
	if err != nil {
		return fmt.Errorf("store: describe table: %w", err)
	}
	return nil
}

func (s *DynamoStore) Close() error { return nil }

func (s *DynamoStore) UpsertConversation(ctx context.Context, phone string, p domain.ConversationPatch) (*domain.Conversation, error) {
	if p.Status != "" && !p.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidStatus, p.Status)
	}
	now := formatTime(s.now())
	sets := []string{
		"entity = :entity",
		"phone = :phone",
		"createdAt = if_not_exists(createdAt, :now)",
		"updatedAt = :now",
	}
	values := map[string]types.AttributeValue{
		":entity": &types.AttributeValueMemberS{Value: entityConversation},
		":phone":  &types.AttributeValueMemberS{Value: phone},
		":now":    &types.AttributeValueMemberS{Value: now},
	}
	if p.Status != "" {
		sets = append(sets, "#status = :status")
		values[":status"] = &types.AttributeValueMemberS{Value: string(p.Status)}
	} else {
		sets = append(sets, "#status = if_not_exists(#status, :active)")
		values[":active"] = &types.AttributeValueMemberS{Value: string(domain.ConversationActive)}
	}
	if p.LastMessageAt.IsZero() {
		sets = append(sets, "lastMessageAt = if_not_exists(lastMessageAt, :now)")
	} else {
		sets = append(sets, "lastMessageAt = :last")
		values[":last"] = &types.AttributeValueMemberS{Value: formatTime(p.LastMessageAt)}
	}
	names := map[string]string{"#status": "status"}
	if p.Name != "" {
		sets = append(sets, "#name = if_not_exists(#name, :name)")
		names["#name"] = "name"
		values[":name"] = &types.AttributeValueMemberS{Value: p.Name}
	}

	out, err := s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       key(convPK(phone), skMeta),
		UpdateExpression:          aws.String("SET " + strings.Join(sets, ", ")),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		return nil, fmt.Errorf("store: upsert conversation: %w", err)
	}
	c, err := itemToConversation(out.Attributes)
	if err != nil {
		return nil, fmt.Errorf("store: upsert conversation decode: %w", err)
	}
	return c, nil
}

func (s *DynamoStore) GetConversation(ctx context.Context, phone string) (*domain.Conversation, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            key(convPK(phone), skMeta),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("store: get conversation: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, domain.ErrNotFound
	}
	return itemToConversation(out.Item)
}

// ListConversations scans the table; fine for the admin view of a single shop.
func (s *DynamoStore) ListConversations(ctx context.Context, limit int) ([]domain.Conversation, error) {
	items, err := s.scanEntity(ctx, entityConversation, "", nil)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Conversation, 0, len(items))
	for _, item := range items {
		c, err := itemToConversation(item)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastMessageAt.After(out[j].LastMessageAt) })
	if n := listLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (s *DynamoStore) GetState(ctx context.Context, phone string) (*domain.ConversationState, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            key(convPK(phone), skState),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("store: get state: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, nil
	}
	step, err := strAttr(out.Item, "step")
	if err != nil {
		return nil, err
	}
	st := &domain.ConversationState{Step: domain.Step(step)}
	if data, _ := strAttr(out.Item, "data"); data != "" {
		if err := json.Unmarshal([]byte(data), &st.Data); err != nil {
			return nil, fmt.Errorf("store: decode state data: %w", err)
		}
	}
	st.UpdatedAt = timeAttr(out.Item, "updatedAt")
	return st, nil
}

func (s *DynamoStore) PutState(ctx context.Context, phone string, st domain.ConversationState) error {
	data, err := json.Marshal(st.Data)
	if err != nil {
		return fmt.Errorf("store: encode state data: %w", err)
	}
	updated := st.UpdatedAt
	if updated.IsZero() {
		updated = s.now()
	}
	item := key(convPK(phone), skState)
	item["step"] = &types.AttributeValueMemberS{Value: string(st.Step)}
	item["data"] = &types.AttributeValueMemberS{Value: string(data)}
	item["updatedAt"] = &types.AttributeValueMemberS{Value: formatTime(updated)}

	if _, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(s.tableName), Item: item}); err != nil {
		return fmt.Errorf("store: put state: %w", err)
	}
	return nil
}

// AppendMessage writes the log entry. With a provider id, a guard item is
// written in the same transaction so a redelivered message is rejected.
func (s *DynamoStore) AppendMessage(ctx context.Context, phone string, m domain.Message) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	suffix := m.ProviderID
	if suffix == "" {
		suffix = uuid.NewString()
	}
	item := messageItem(phone, m, msgSK(m.CreatedAt, suffix))

	if m.ProviderID == "" {
		if _, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(s.tableName), Item: item}); err != nil {
			return fmt.Errorf("store: append message: %w", err)
		}
		return nil
	}

	guard := key(wamidPK(m.ProviderID), wamidPK(""))
	guard["phone"] = &types.AttributeValueMemberS{Value: phone}
	_, err := s.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(s.tableName),
					Item:                guard,
					ConditionExpression: aws.String("attribute_not_exists(PK)"),
				},
			},
			{
				Put: &types.Put{
					TableName: aws.String(s.tableName),
					Item:      item,
				},
			},
		},
	})
	if err != nil {
		if isConditionFailure(err) {
			return domain.ErrDuplicateMessage
		}
		return fmt.Errorf("store: append message: %w", err)
	}
	return nil
}

// ListMessages queries the newest entries and returns them oldest first.
func (s *DynamoStore) ListMessages(ctx context.Context, phone string, limit int) ([]domain.Message, error) {
	out, err := s.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: convPK(phone)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixMsg},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(listLimit(limit))),
	})
	if err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	msgs := make([]domain.Message, 0, len(out.Items))
	for _, item := range out.Items {
		m, err := itemToMessage(item)
		if err != nil {
			return nil, fmt.Errorf("store: list messages decode: %w", err)
		}
		msgs = append(msgs, m)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *DynamoStore) CreateQuote(ctx context.Context, q domain.Quote) error {
	if q.ID == "" {
		return errors.New("store: quote id is required")
	}
	if q.Status == "" {
		q.Status = domain.QuotePending
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = s.now()
	}
	if q.UpdatedAt.IsZero() {
		q.UpdatedAt = q.CreatedAt
	}
	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                quoteItem(q),
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if isConditionFailure(err) {
		return fmt.Errorf("store: create quote %s: %w", q.ID, domain.ErrDuplicateQuote)
	}
	if err != nil {
		return fmt.Errorf("store: create quote: %w", err)
	}
	return nil
}

func (s *DynamoStore) GetQuote(ctx context.Context, id string) (*domain.Quote, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            key(quotePK(id), skQuote),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("store: get quote: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, domain.ErrNotFound
	}
	return itemToQuote(out.Item)
}

func (s *DynamoStore) ListQuotes(ctx context.Context, f domain.QuoteFilter) ([]domain.Quote, error) {
	var extra map[string]types.AttributeValue
	filter := ""
	if f.Status != "" {
		filter = "#status = :status"
		extra = map[string]types.AttributeValue{":status": &types.AttributeValueMemberS{Value: string(f.Status)}}
	}
	items, err := s.scanEntity(ctx, entityQuote, filter, extra)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Quote, 0, len(items))
	for _, item := range items {
		q, err := itemToQuote(item)
		if err != nil {
			return nil, err
		}
		out = append(out, *q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if n := listLimit(f.Limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (s *DynamoStore) UpdateQuoteStatus(ctx context.Context, id string, status domain.QuoteStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidStatus, status)
	}
	_, err := s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(s.tableName),
		Key:                      key(quotePK(id), skQuote),
		UpdateExpression:         aws.String("SET #status = :status, updatedAt = :now"),
		ConditionExpression:      aws.String("attribute_exists(PK)"),
		ExpressionAttributeNames: map[string]string{"#status": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(status)},
			":now":    &types.AttributeValueMemberS{Value: formatTime(s.now())},
		},
	})
	if err != nil {
		if isConditionFailure(err) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("store: update quote status: %w", err)
	}
	return nil
}

func (s *DynamoStore) Stats(ctx context.Context) (*domain.Stats, error) {
	st := &domain.Stats{
		ConversationsByStatus: map[domain.ConversationStatus]int{},
		QuotesByStatus:        map[domain.QuoteStatus]int{},
		QuotesByProjectType:   map[domain.ProjectType]int{},
	}
	convs, err := s.scanEntity(ctx, entityConversation, "", nil)
	if err != nil {
		return nil, err
	}
	for _, item := range convs {
		status, _ := strAttr(item, "status")
		st.ConversationsByStatus[domain.ConversationStatus(status)]++
	}
	quotes, err := s.scanEntity(ctx, entityQuote, "", nil)
	if err != nil {
		return nil, err
	}
	for _, item := range quotes {
		status, _ := strAttr(item, "status")
		pt, _ := strAttr(item, "projectType")
		st.QuotesByStatus[domain.QuoteStatus(status)]++
		st.QuotesByProjectType[domain.ProjectType(pt)]++
	}
	return st, nil
}

// scanEntity pages through every item of one entity kind.
func (s *DynamoStore) scanEntity(ctx context.Context, entity, filter string, values map[string]types.AttributeValue) ([]map[string]types.AttributeValue, error) {
	expr := "entity = :entity"
	if filter != "" {
		expr += " AND " + filter
	}
	vals := map[string]types.AttributeValue{":entity": &types.AttributeValueMemberS{Value: entity}}
	for k, v := range values {
		vals[k] = v
	}
	var names map[string]string
	if strings.Contains(expr, "#status") {
		names = map[string]string{"#status": "status"}
	}

	var (
		items []map[string]types.AttributeValue
		start map[string]types.AttributeValue
	)
	for {
		out, err := s.api.Scan(ctx, &dynamodb.ScanInput{
			TableName:                 aws.String(s.tableName),
			FilterExpression:          aws.String(expr),
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: vals,
			ExclusiveStartKey:         start,
		})
		if err != nil {
			return nil, fmt.Errorf("store: scan %s: %w", entity, err)
		}
		items = append(items, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		start = out.LastEvaluatedKey
	}
}

func isConditionFailure(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		for _, r := range tce.CancellationReasons {
			if aws.ToString(r.Code) == "ConditionalCheckFailed" {
				return true
			}
		}
	}
	return false
}

// --- item codecs ---

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func timeAttr(item map[string]types.AttributeValue, k string) time.Time {
	s, err := strAttr(item, k)
	if err != nil {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func itemToConversation(item map[string]types.AttributeValue) (*domain.Conversation, error) {
	phone, err := strAttr(item, "phone")
	if err != nil {
		return nil, err
	}
	name, _ := strAttr(item, "name")
	status, _ := strAttr(item, "status")
	return &domain.Conversation{
		Phone:         phone,
		Name:          name,
		Status:        domain.ConversationStatus(status),
		LastMessageAt: timeAttr(item, "lastMessageAt"),
		CreatedAt:     timeAttr(item, "createdAt"),
		UpdatedAt:     timeAttr(item, "updatedAt"),
	}, nil
}

func messageItem(phone string, m domain.Message, sk string) map[string]types.AttributeValue {
	item := key(convPK(phone), sk)
	item["phone"] = &types.AttributeValueMemberS{Value: phone}
	item["providerId"] = &types.AttributeValueMemberS{Value: m.ProviderID}
	item["direction"] = &types.AttributeValueMemberS{Value: string(m.Direction)}
	item["type"] = &types.AttributeValueMemberS{Value: m.Type}
	item["content"] = &types.AttributeValueMemberS{Value: m.Content}
	item["mediaId"] = &types.AttributeValueMemberS{Value: m.MediaID}
	item["mediaType"] = &types.AttributeValueMemberS{Value: m.MediaType}
	item["createdAt"] = &types.AttributeValueMemberS{Value: formatTime(m.CreatedAt)}
	return item
}

func itemToMessage(item map[string]types.AttributeValue) (domain.Message, error) {
	phone, err := strAttr(item, "phone")
	if err != nil {
		return domain.Message{}, err
	}
	direction, err := strAttr(item, "direction")
	if err != nil {
		return domain.Message{}, err
	}
	providerID, _ := strAttr(item, "providerId")
	typ, _ := strAttr(item, "type")
	content, _ := strAttr(item, "content")
	mediaID, _ := strAttr(item, "mediaId")
	mediaType, _ := strAttr(item, "mediaType")
	return domain.Message{
		Phone:      phone,
		ProviderID: providerID,
		Direction:  domain.MessageDirection(direction),
		Type:       typ,
		Content:    content,
		MediaID:    mediaID,
		MediaType:  mediaType,
		CreatedAt:  timeAttr(item, "createdAt"),
	}, nil
}

func quoteItem(q domain.Quote) map[string]types.AttributeValue {
	photos := make([]types.AttributeValue, 0, len(q.Photos))
	for _, p := range q.Photos {
		photos = append(photos, &types.AttributeValueMemberS{Value: p})
	}
	item := key(quotePK(q.ID), skQuote)
	item["entity"] = &types.AttributeValueMemberS{Value: entityQuote}
	item["id"] = &types.AttributeValueMemberS{Value: q.ID}
	item["name"] = &types.AttributeValueMemberS{Value: q.Name}
	item["email"] = &types.AttributeValueMemberS{Value: q.Email}
	item["phone"] = &types.AttributeValueMemberS{Value: q.Phone}
	item["description"] = &types.AttributeValueMemberS{Value: q.Description}
	item["projectType"] = &types.AttributeValueMemberS{Value: string(q.ProjectType)}
	item["roomSize"] = &types.AttributeValueMemberS{Value: q.RoomSize}
	item["timeline"] = &types.AttributeValueMemberS{Value: string(q.Timeline)}
	item["budget"] = &types.AttributeValueMemberS{Value: string(q.Budget)}
	item["photos"] = &types.AttributeValueMemberL{Value: photos}
	item["status"] = &types.AttributeValueMemberS{Value: string(q.Status)}
	item["createdAt"] = &types.AttributeValueMemberS{Value: formatTime(q.CreatedAt)}
	item["updatedAt"] = &types.AttributeValueMemberS{Value: formatTime(q.UpdatedAt)}
	return item
}

func itemToQuote(item map[string]types.AttributeValue) (*domain.Quote, error) {
	id, err := strAttr(item, "id")
	if err != nil {
		return nil, err
	}
	q := &domain.Quote{ID: id}
	q.Name, _ = strAttr(item, "name")
	q.Email, _ = strAttr(item, "email")
	q.Phone, _ = strAttr(item, "phone")
	q.Description, _ = strAttr(item, "description")
	q.RoomSize, _ = strAttr(item, "roomSize")
	pt, _ := strAttr(item, "projectType")
	tl, _ := strAttr(item, "timeline")
	bg, _ := strAttr(item, "budget")
	st, _ := strAttr(item, "status")
	q.ProjectType = domain.ProjectType(pt)
	q.Timeline = domain.Timeline(tl)
	q.Budget = domain.Budget(bg)
	q.Status = domain.QuoteStatus(st)
	if l, ok := item["photos"].(*types.AttributeValueMemberL); ok {
		for _, v := range l.Value {
			if s, ok := v.(*types.AttributeValueMemberS); ok {
				q.Photos = append(q.Photos, s.Value)
			}
		}
	}
	q.CreatedAt = timeAttr(item, "createdAt")
	q.UpdatedAt = timeAttr(item, "updatedAt")
	return q, nil
}

func strAttr(item map[string]types.AttributeValue, k string) (string, error) {
	v, ok := item[k]
	if !ok {
		return "", fmt.Errorf("store: missing attribute %q", k)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("store: attribute %q is not a string", k)
	}
	return s.Value, nil
}
