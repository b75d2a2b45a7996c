// Package docs registers the OpenAPI document served under /swagger/.
// Regenerate the paths with `swag init -g cmd/queue-manager/main.go`.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Liveness probe",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/jobs": {
            "get": {
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "List jobs",
                "parameters": [
                    {"type": "string", "name": "status", "in": "query"},
                    {"type": "string", "name": "type", "in": "query"},
                    {"type": "integer", "name": "article_id", "in": "query"},
                    {"type": "string", "name": "created_since", "in": "query"},
                    {"type": "integer", "name": "limit", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "Create a job",
                "responses": {"201": {"description": "Created"}, "400": {"description": "Bad Request"}}
            }
        },
        "/jobs/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "Get job by id",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        },
        "/jobs/{id}/claim": {
            "post": {
                "tags": ["jobs"],
                "summary": "Claim one pending job",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "409": {"description": "Conflict"}}
            }
        },
        "/jobs/{id}/complete": {
            "post": {
                "tags": ["jobs"],
                "summary": "Mark a job completed",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "409": {"description": "Conflict"}}
            }
        },
        "/jobs/{id}/fail": {
            "post": {
                "tags": ["jobs"],
                "summary": "Record a failed attempt",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "409": {"description": "Conflict"}}
            }
        },
        "/jobs/{id}/retry": {
            "post": {
                "tags": ["jobs"],
                "summary": "Reset a job to pending",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "409": {"description": "Conflict"}}
            }
        },
        "/workers/poll": {
            "post": {
                "tags": ["workers"],
                "summary": "Claim jobs for a worker",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/cleanup": {
            "post": {
                "tags": ["maintenance"],
                "summary": "Reclaim expired leases",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/stats": {
            "get": {
                "tags": ["maintenance"],
                "summary": "Job counters",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/process": {
            "post": {
                "tags": ["worker"],
                "summary": "Run one poll-and-drain cycle",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/batch-extract": {
            "post": {
                "tags": ["worker"],
                "summary": "Queue extraction for pending articles",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/run-pipeline": {
            "post": {
                "tags": ["orchestrator"],
                "summary": "Trigger one pipeline cycle",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/retry": {
            "post": {
                "tags": ["orchestrator"],
                "summary": "Run the retry sweep now",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/pipeline-status": {
            "get": {
                "tags": ["orchestrator"],
                "summary": "Article and job counters",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/articles": {
            "post": {
                "tags": ["orchestrator"],
                "summary": "Add an article",
                "responses": {"201": {"description": "Created"}, "400": {"description": "Bad Request"}}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Article Pipeline API",
	Description:      "Queue manager, stage worker and orchestrator endpoints.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
