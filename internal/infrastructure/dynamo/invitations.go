package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/coach-onboarding/internal/domain"
)

// InvitationRepo provides typed DynamoDB operations for the invitations table.
type InvitationRepo struct {
	client    API
	tableName string
}

func NewInvitationRepo(client API, tableName string) *InvitationRepo {
	return &InvitationRepo{client: client, tableName: tableName}
}

func (r *InvitationRepo) Put(ctx context.Context, inv *domain.Invitation) error {
	item, err := attributevalue.MarshalMap(inv)
	if err != nil {
		return fmt.Errorf("marshal invitation: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *InvitationRepo) Get(ctx context.Context, invitationID string) (*domain.Invitation, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey(fieldInvitationID, invitationID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("invitation not found: %w", domain.ErrNotFound)
	}
	var inv domain.Invitation
	if err := attributevalue.UnmarshalMap(out.Item, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// ListByEmail returns every invitation sent to email.
func (r *InvitationRepo) ListByEmail(ctx context.Context, email string) ([]domain.Invitation, error) {
	p := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(indexEmail),
		KeyConditionExpression: aws.String("email = :email"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":email": &types.AttributeValueMemberS{Value: email},
		},
	})
	var invs []domain.Invitation
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		var batch []domain.Invitation
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal invitations: %w", err)
		}
		invs = append(invs, batch...)
	}
	return invs, nil
}

// SetStatus updates the invitation status, stamping accepted_at on acceptance.
func (r *InvitationRepo) SetStatus(ctx context.Context, invitationID, status string) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		fieldStatus:    status,
		fieldUpdatedAt: now,
	}
	if status == domain.InvitationAccepted {
		updates[fieldAcceptedAt] = now
	}
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldInvitationID, invitationID),
		UpdateExpression:          aws.String(ue.Expr),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
		ConditionExpression:       aws.String("attribute_exists(invitation_id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("invitation not found: %w", domain.ErrNotFound)
		}
		return err
	}
	return nil
}
