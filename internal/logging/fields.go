package logging

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldProjectID is the standardized structured logging key for project identifiers.
	FieldProjectID = "project_id"
	// FieldEpisodeID is the standardized structured logging key for episode identifiers.
	FieldEpisodeID = "episode_id"
	// FieldEntryID is the standardized structured logging key for queue entry identifiers.
	FieldEntryID = "entry_id"
	// FieldOrganizationID is the standardized structured logging key for organization identifiers.
	FieldOrganizationID = "organization_id"
	// FieldEventType tags log records for downstream filtering.
	FieldEventType = "event_type"
	// FieldRequestID is the standardized structured logging key for dispatch correlation identifiers.
	FieldRequestID = "request_id"
)
