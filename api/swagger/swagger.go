package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Timetable API",
        "description": "Timetable generation and degradation service: strict solve, single best-effort fallback, conflict analysis and versioned publication",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Generation", "description": "Synchronous generation runs and the accept/publish lifecycle"},
        {"name": "Timetables", "description": "Stored timetable versions and their slots"},
        {"name": "Analysis", "description": "Conflict analysis of stored timetables"},
        {"name": "Jobs", "description": "Queued generation runs"},
        {"name": "Exports", "description": "Conflict report downloads"},
        {"name": "Metrics", "description": "Service counters"}
    ],
    "paths": {
        "/timetables/generate": {
            "post": {
                "tags": ["Generation"],
                "summary": "Generate a timetable",
                "description": "Runs the strict solver, falling back to a single best-effort pass when hard constraints cannot all be met.",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GenerateTimetableRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid payload", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Generation failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetables/results/{id}": {
            "get": {
                "tags": ["Generation"],
                "summary": "Fetch a pending generation result",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Result expired or unknown", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetables/accept": {
            "post": {
                "tags": ["Generation"],
                "summary": "Accept a pending result",
                "description": "Persists the generated slots as a new timetable version carrying the result status.",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AcceptTimetableRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Result expired or unknown", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetables/{id}/publish": {
            "post": {
                "tags": ["Generation"],
                "summary": "Publish a timetable version",
                "description": "Marks the version active for its term and archives any previously published version.",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "412": {"description": "Version has blocking conflicts", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetables": {
            "get": {
                "tags": ["Timetables"],
                "summary": "List timetable versions for a term",
                "parameters": [
                    {"name": "termId", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetables/summary": {
            "get": {
                "tags": ["Timetables"],
                "summary": "Summarise versions for a term",
                "parameters": [
                    {"name": "termId", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetables/{id}/slots": {
            "get": {
                "tags": ["Timetables"],
                "summary": "List slots of a timetable version",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown timetable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetables/{id}": {
            "delete": {
                "tags": ["Timetables"],
                "summary": "Delete a timetable version",
                "description": "Published versions cannot be deleted.",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Deleted"},
                    "409": {"description": "Version is published", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetables/{id}/analysis": {
            "get": {
                "tags": ["Analysis"],
                "summary": "Analyze a stored timetable",
                "description": "Re-runs conflict analysis over the stored slots. Responses may be served from cache.",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown timetable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/terms/{id}/analysis": {
            "get": {
                "tags": ["Analysis"],
                "summary": "Analyze every version in a term",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/metrics/summary": {
            "get": {
                "tags": ["Metrics"],
                "summary": "Service counters snapshot",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/jobs/generation": {
            "post": {
                "tags": ["Jobs"],
                "summary": "Queue a generation run",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GenerateTimetableRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/jobs/generation/{id}": {
            "get": {
                "tags": ["Jobs"],
                "summary": "Poll a queued run",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown job", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/exports": {
            "post": {
                "tags": ["Exports"],
                "summary": "Render a conflict report",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ExportRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/exports/{token}": {
            "get": {
                "tags": ["Exports"],
                "summary": "Download a rendered report",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "token", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File"},
                    "412": {"description": "Token invalid or expired", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "GenerateTimetableRequest": {
            "type": "object",
            "properties": {
                "termId": {"type": "string"},
                "days": {"type": "array", "items": {"type": "integer"}},
                "periodsPerDay": {"type": "integer"},
                "periodMinutes": {"type": "integer"},
                "dayStartMinute": {"type": "integer"},
                "courses": {"type": "array", "items": {"$ref": "#/definitions/CourseDemandRequest"}},
                "rooms": {"type": "array", "items": {"$ref": "#/definitions/RoomOptionRequest"}},
                "constraints": {"$ref": "#/definitions/ConstraintRequest"}
            },
            "required": ["termId", "days", "periodsPerDay", "courses", "rooms"]
        },
        "CourseDemandRequest": {
            "type": "object",
            "properties": {
                "courseId": {"type": "string"},
                "teacherId": {"type": "string"},
                "groupId": {"type": "string"},
                "groupSize": {"type": "integer"},
                "weeklyCount": {"type": "integer"},
                "difficulty": {"type": "integer"},
                "preferredPeriods": {"type": "array", "items": {"type": "integer"}}
            },
            "required": ["courseId", "teacherId", "groupId", "groupSize", "weeklyCount"]
        },
        "RoomOptionRequest": {
            "type": "object",
            "properties": {
                "roomId": {"type": "string"},
                "capacity": {"type": "integer"}
            },
            "required": ["roomId", "capacity"]
        },
        "ConstraintRequest": {
            "type": "object",
            "properties": {
                "maxTeacherLoadPerDay": {"type": "integer"}
            }
        },
        "AcceptTimetableRequest": {
            "type": "object",
            "properties": {
                "resultId": {"type": "string"}
            },
            "required": ["resultId"]
        },
        "ExportRequest": {
            "type": "object",
            "properties": {
                "timetableId": {"type": "string"},
                "format": {"type": "string", "enum": ["csv", "pdf"]}
            },
            "required": ["timetableId", "format"]
        },
        "GenerationResult": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "term_id": {"type": "string"},
                "timetable_id": {"type": "string"},
                "status": {"type": "string"},
                "fallback": {"type": "boolean"},
                "slots": {"type": "array", "items": {"$ref": "#/definitions/TimetableSlot"}},
                "conflicts": {"type": "array", "items": {"$ref": "#/definitions/ConflictDetail"}},
                "total_courses": {"type": "integer"},
                "scheduled_courses": {"type": "integer"},
                "unscheduled_courses": {"type": "integer"},
                "critical_conflicts": {"type": "integer"},
                "major_conflicts": {"type": "integer"},
                "minor_conflicts": {"type": "integer"},
                "completion": {"type": "number"},
                "acceptance_floor": {"type": "number"},
                "recommendation": {"type": "string"},
                "duration_ms": {"type": "integer"},
                "generated_at": {"type": "string", "format": "date-time"}
            }
        },
        "TimetableSlot": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "timetable_id": {"type": "string"},
                "course_id": {"type": "string"},
                "group_id": {"type": "string"},
                "group_size": {"type": "integer"},
                "teacher_id": {"type": "string"},
                "room_id": {"type": "string"},
                "room_capacity": {"type": "integer"},
                "day_of_week": {"type": "integer"},
                "start_minute": {"type": "integer"},
                "end_minute": {"type": "integer"}
            }
        },
        "ConflictDetail": {
            "type": "object",
            "properties": {
                "slot_ids": {"type": "array", "items": {"type": "string"}},
                "course_ids": {"type": "array", "items": {"type": "string"}},
                "kind": {"type": "string"},
                "severity": {"type": "string"},
                "description": {"type": "string"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
