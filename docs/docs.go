// Package docs holds the OpenAPI description served at /swagger.
// Regenerate with: swag init -g cmd/server/main.go
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
        "/healthz": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Liveness check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.HealthResponse"}}
                }
            }
        },
        "/healthz/db": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Database health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.DBHealthResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/models.DBHealthResponse"}}
                }
            }
        },
        "/api/webhooks/messages": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["webhooks"],
                "summary": "Receive an inbound chat message",
                "parameters": [
                    {"description": "Normalized inbound event", "name": "event", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.InboundEvent"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/autoreply.Outcome"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.WebhookAck"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/models.WebhookAck"}}
                }
            }
        },
        "/api/analysis/run": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["analysis"],
                "summary": "Run batch analysis",
                "parameters": [
                    {"description": "Analysis window", "name": "request", "in": "body", "schema": {"$ref": "#/definitions/models.AnalysisRunRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.AnalysisRunResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/models.AnalysisRunResponse"}}
                }
            }
        },
        "/api/issues": {
            "get": {
                "produces": ["application/json"],
                "tags": ["issues"],
                "summary": "List issues",
                "parameters": [
                    {"type": "string", "description": "Filter by status (PENDING, REPLIED, WAITING_CUSTOMER, RESOLVED, TIMEOUT, IGNORED)", "name": "status", "in": "query"},
                    {"type": "integer", "default": 50, "description": "Maximum issues returned", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.IssueListResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.IssueListResponse"}}
                }
            }
        },
        "/api/issues/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["issues"],
                "summary": "Get an issue",
                "parameters": [
                    {"type": "integer", "description": "Issue ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.IssueResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/models.IssueResponse"}}
                }
            }
        },
        "/api/issues/{id}/status": {
            "patch": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["issues"],
                "summary": "Update issue status",
                "parameters": [
                    {"type": "integer", "description": "Issue ID", "name": "id", "in": "path", "required": true},
                    {"description": "Target status", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.IssueStatusRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.IssueResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/models.IssueResponse"}}
                }
            }
        },
        "/api/conversations/{id}/auto-reply": {
            "patch": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["conversations"],
                "summary": "Switch conversation auto-reply",
                "parameters": [
                    {"type": "string", "description": "Conversation ID", "name": "id", "in": "path", "required": true},
                    {"description": "Auto-reply switch", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.ConversationAutoReplyRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.ConversationResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/models.ConversationResponse"}}
                }
            }
        },
        "/api/knowledge/search": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["knowledge"],
                "summary": "Search the knowledge base",
                "parameters": [
                    {"description": "Search query", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.KnowledgeSearchRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.KnowledgeSearchResponse"}}
                }
            }
        },
        "/api/knowledge/embeddings/jobs": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["knowledge"],
                "summary": "Trigger knowledge embedding job",
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/models.EmbeddingJobResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/models.EmbeddingJobResponse"}}
                }
            }
        },
        "/api/knowledge/embeddings/jobs/{name}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["knowledge"],
                "summary": "Get embedding job status",
                "parameters": [
                    {"type": "string", "description": "Job name", "name": "name", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.EmbeddingJobResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/models.EmbeddingJobResponse"}}
                }
            }
        },
        "/api/analytics": {
            "get": {
                "produces": ["application/json"],
                "tags": ["analytics"],
                "summary": "Get analytics summary",
                "parameters": [
                    {"type": "string", "default": "yesterday", "description": "Time period (today, yesterday, last_7_days, last_30_days)", "name": "period", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.AnalyticsResponse"}}
                }
            }
        }
    },
    "definitions": {
        "autoreply.Outcome": {"type": "object"},
        "models.AnalysisRunRequest": {"type": "object"},
        "models.AnalysisRunResponse": {"type": "object"},
        "models.AnalyticsResponse": {"type": "object"},
        "models.ConversationAutoReplyRequest": {"type": "object"},
        "models.ConversationResponse": {"type": "object"},
        "models.DBHealthResponse": {"type": "object"},
        "models.EmbeddingJobResponse": {"type": "object"},
        "models.HealthResponse": {"type": "object"},
        "models.InboundEvent": {"type": "object"},
        "models.IssueListResponse": {"type": "object"},
        "models.IssueResponse": {"type": "object"},
        "models.IssueStatusRequest": {"type": "object"},
        "models.KnowledgeSearchRequest": {"type": "object"},
        "models.KnowledgeSearchResponse": {"type": "object"},
        "models.WebhookAck": {"type": "object"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "SupportWatch API",
	Description:      "Customer-service message classification, issue tracking and knowledge-base auto replies.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
