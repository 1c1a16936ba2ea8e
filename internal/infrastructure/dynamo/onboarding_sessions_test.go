package dynamo

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/coach-onboarding/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI records inputs and serves canned query pages.
type fakeAPI struct {
	API
	put        *dynamodb.PutItemInput
	getItem    map[string]types.AttributeValue
	queryPages []*dynamodb.QueryOutput
	queries    int
	deleted    []string
	update     *dynamodb.UpdateItemInput
	updateErr  error
}

func (f *fakeAPI) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.put = in
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeAPI) GetItem(_ context.Context, _ *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{Item: f.getItem}, nil
}

func (f *fakeAPI) Query(_ context.Context, _ *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	out := f.queryPages[f.queries]
	f.queries++
	return out, nil
}

func (f *fakeAPI) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.deleted = append(f.deleted, in.Key[fieldSessionID].(*types.AttributeValueMemberS).Value)
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeAPI) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.update = in
	return &dynamodb.UpdateItemOutput{}, f.updateErr
}

func sessionItem(t *testing.T, id, email string) map[string]types.AttributeValue {
	t.Helper()
	item, err := attributevalue.MarshalMap(domain.OnboardingSession{SessionID: id, Email: email})
	require.NoError(t, err)
	return item
}

func TestOnboardingSessionRepo_Put_SetsTTL(t *testing.T) {
	api := &fakeAPI{}
	repo := NewOnboardingSessionRepo(api, "onboarding_sessions")
	exp := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Put(context.Background(), &domain.OnboardingSession{SessionID: "s1", ExpiresAt: exp}))

	ttl, ok := api.put.Item[fieldTTL].(*types.AttributeValueMemberN)
	require.True(t, ok)
	assert.Equal(t, "1767268800", ttl.Value)
	_, hasInvitation := api.put.Item[fieldInvitationID]
	assert.False(t, hasInvitation)
}

func TestOnboardingSessionRepo_Get_NotFound(t *testing.T) {
	repo := NewOnboardingSessionRepo(&fakeAPI{}, "t")
	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOnboardingSessionRepo_ListByEmail_FollowsPages(t *testing.T) {
	api := &fakeAPI{queryPages: []*dynamodb.QueryOutput{
		{
			Items:            []map[string]types.AttributeValue{sessionItem(t, "s1", "a@b.com")},
			LastEvaluatedKey: strKey(fieldSessionID, "s1"),
		},
		{Items: []map[string]types.AttributeValue{sessionItem(t, "s2", "a@b.com")}},
	}}
	repo := NewOnboardingSessionRepo(api, "t")

	got, err := repo.ListByEmail(context.Background(), "a@b.com")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "s1", got[0].SessionID)
	assert.Equal(t, "s2", got[1].SessionID)
}

func TestOnboardingSessionRepo_Delete(t *testing.T) {
	api := &fakeAPI{}
	require.NoError(t, NewOnboardingSessionRepo(api, "t").Delete(context.Background(), "s9"))
	assert.Equal(t, []string{"s9"}, api.deleted)
}

func TestInvitationRepo_ListByEmail_FollowsPages(t *testing.T) {
	item := func(id string) map[string]types.AttributeValue {
		m, err := attributevalue.MarshalMap(domain.Invitation{InvitationID: id, Email: "a@b.com", Status: domain.InvitationPending})
		require.NoError(t, err)
		return m
	}
	api := &fakeAPI{queryPages: []*dynamodb.QueryOutput{
		{Items: []map[string]types.AttributeValue{item("inv1")}, LastEvaluatedKey: strKey(fieldInvitationID, "inv1")},
		{Items: []map[string]types.AttributeValue{item("inv2")}},
	}}

	got, err := NewInvitationRepo(api, "invitations").ListByEmail(context.Background(), "a@b.com")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "inv2", got[1].InvitationID)
	assert.Equal(t, domain.InvitationPending, got[0].Status)
}

func TestInvitationRepo_SetStatus_Accepted(t *testing.T) {
	api := &fakeAPI{}
	require.NoError(t, NewInvitationRepo(api, "invitations").SetStatus(context.Background(), "inv1", domain.InvitationAccepted))
	assert.Equal(t, "SET #f0 = :v0, #f1 = :v1, #f2 = :v2", *api.update.UpdateExpression)
	assert.Equal(t, "accepted_at", api.update.ExpressionAttributeNames["#f0"])
}

func TestInvitationRepo_SetStatus_Missing(t *testing.T) {
	api := &fakeAPI{updateErr: &types.ConditionalCheckFailedException{}}
	err := NewInvitationRepo(api, "invitations").SetStatus(context.Background(), "nope", domain.InvitationRevoked)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
