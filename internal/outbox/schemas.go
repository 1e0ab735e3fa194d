package outbox

// SchemaCatalogEntry maps an event type to its JSON schema definition.
type SchemaCatalogEntry struct {
	Schema string
}

var schemaCatalog = map[string]SchemaCatalogEntry{
	"baseline.started": {
		Schema: baselineStartedSchema,
	},
	"baseline.completed": {
		Schema: baselineCompletedSchema,
	},
	"baseline.state_changed": {
		Schema: baselineStateChangedSchema,
	},
}

const baselineStartedSchema = `{
  "type": "object",
  "title": "BaselineStarted",
  "properties": {
    "baseline_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "target_days": {"type": "integer"},
    "started_at": {"type": "string", "format": "date-time"}
  },
  "required": ["baseline_id", "tenant_id", "user_id", "target_days", "started_at"],
  "additionalProperties": false
}`

const baselineStateChangedSchema = `{
  "type": "object",
  "title": "BaselineStateChanged",
  "properties": {
    "baseline_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "status": {"type": "string"},
    "occurred_at": {"type": "string", "format": "date-time"},
    "reason": {"type": "string"}
  },
  "required": ["baseline_id", "tenant_id", "user_id", "status", "occurred_at"],
  "additionalProperties": false
}`

const baselineCompletedSchema = `{
  "type": "object",
  "title": "BaselineCompleted",
  "properties": {
    "baseline_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "completed_at": {"type": "string", "format": "date-time"},
    "data_point_count": {"type": "integer"},
    "adaptive_difficulty": {
      "type": "object",
      "properties": {
        "overall": {"type": "number"},
        "strength": {"type": "number"},
        "agility": {"type": "number"},
        "intelligence": {"type": "number"},
        "vitality": {"type": "number"},
        "perception": {"type": "number"}
      },
      "required": ["overall", "strength", "agility", "intelligence", "vitality", "perception"],
      "additionalProperties": false
    }
  },
  "required": ["baseline_id", "tenant_id", "user_id", "completed_at", "data_point_count", "adaptive_difficulty"],
  "additionalProperties": false
}`
