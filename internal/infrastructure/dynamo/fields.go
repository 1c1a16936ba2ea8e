package dynamo

// DynamoDB attribute names used in keys, indexes and update expressions.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldSessionID    = "session_id"
	fieldInvitationID = "invitation_id"
	fieldEmail        = "email"
	fieldStatus       = "status"
	fieldAcceptedAt   = "accepted_at"
	fieldUpdatedAt    = "updated_at"
	fieldTTL          = "ttl"

	indexEmail = "email-index"
)
