// Package docs registers the OpenAPI description served under /swagger.
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
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "paths": {
        "/auth/register": {
            "post": {
                "tags": ["auth"],
                "summary": "Register a student, parent, teacher or institution account",
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/user.RegisterInput"}}],
                "responses": {"201": {"description": "Created"}, "400": {"description": "Invalid input"}, "409": {"description": "Email already registered"}}
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["auth"],
                "summary": "Exchange email and password for a JWT",
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.LoginRequest"}}],
                "responses": {"200": {"description": "OK"}, "401": {"description": "Invalid credentials"}}
            }
        },
        "/user/profile": {
            "get": {"tags": ["user"], "summary": "Current profile", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}},
            "put": {"tags": ["user"], "summary": "Update profile", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}
        },
        "/user/password": {
            "put": {"tags": ["user"], "summary": "Change password", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}, "401": {"description": "Wrong current password"}}}
        },
        "/ai/generate-exercise": {
            "post": {
                "tags": ["ai"],
                "summary": "Generate practice questions",
                "security": [{"BearerAuth": []}],
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/tutor.ExerciseRequest"}}],
                "responses": {"200": {"description": "Outcome; success=false on AI failure, degraded=true when the reply was not JSON"}, "400": {"description": "Invalid request"}, "429": {"description": "Rate limited"}, "503": {"description": "No usable provider configured"}}
            }
        },
        "/ai/generate-analysis": {
            "post": {"tags": ["ai"], "summary": "Explain a student's answer", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "Outcome"}, "400": {"description": "Invalid request"}, "503": {"description": "No usable provider configured"}}}
        },
        "/ai/analyze-errors": {
            "post": {"tags": ["ai"], "summary": "Learning report from error records", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "Outcome with statistics"}, "400": {"description": "Invalid dates"}, "503": {"description": "No usable provider configured"}}}
        },
        "/ai/photo-correction": {
            "post": {"tags": ["ai"], "summary": "Grade a homework photo or solve a question photo", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "Outcome"}, "400": {"description": "Invalid image"}, "503": {"description": "No usable provider configured"}}}
        },
        "/ai/test-connection": {
            "get": {
                "tags": ["ai"],
                "summary": "Check a provider is reachable",
                "security": [{"BearerAuth": []}],
                "parameters": [{"type": "string", "name": "provider", "in": "query"}],
                "responses": {"200": {"description": "Outcome with latency"}, "503": {"description": "Provider missing or inactive"}}
            }
        },
        "/error-records": {
            "get": {
                "tags": ["error-records"],
                "summary": "List the caller's error records",
                "security": [{"BearerAuth": []}],
                "parameters": [{"type": "string", "name": "subject", "in": "query"}, {"type": "boolean", "name": "resolved", "in": "query"}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/error-records/{id}/resolve": {
            "post": {"tags": ["error-records"], "summary": "Mark an error record resolved", "security": [{"BearerAuth": []}], "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}}
        },
        "/usage/summary": {
            "get": {"tags": ["usage"], "summary": "The caller's AI usage", "security": [{"BearerAuth": []}], "parameters": [{"type": "integer", "name": "days", "in": "query"}], "responses": {"200": {"description": "OK"}}}
        },
        "/admin/providers": {
            "get": {"tags": ["admin"], "summary": "List provider configs with masked credentials", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["admin"], "summary": "Create a provider config", "security": [{"BearerAuth": []}], "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/aiconfig.CreateInput"}}], "responses": {"201": {"description": "Created"}, "400": {"description": "Invalid input"}, "409": {"description": "Name taken"}}}
        },
        "/admin/providers/probe": {
            "post": {"tags": ["admin"], "summary": "Test every active provider", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}
        },
        "/admin/providers/{id}": {
            "get": {"tags": ["admin"], "summary": "Get a provider config", "security": [{"BearerAuth": []}], "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}},
            "put": {"tags": ["admin"], "summary": "Update a provider config", "security": [{"BearerAuth": []}], "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "400": {"description": "Invalid input"}}},
            "delete": {"tags": ["admin"], "summary": "Delete a provider config", "security": [{"BearerAuth": []}], "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "409": {"description": "The default cannot be deleted"}}}
        },
        "/admin/providers/{id}/default": {
            "post": {"tags": ["admin"], "summary": "Make a provider the default", "security": [{"BearerAuth": []}], "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not found or inactive"}}}
        },
        "/admin/providers/{id}/toggle": {
            "post": {"tags": ["admin"], "summary": "Activate or deactivate a provider", "security": [{"BearerAuth": []}], "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}}}
        },
        "/admin/providers/{id}/test": {
            "post": {"tags": ["admin"], "summary": "Test one provider", "security": [{"BearerAuth": []}], "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}}}
        },
        "/admin/usage/summary": {"get": {"tags": ["admin"], "summary": "Platform usage summary", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}},
        "/admin/usage/daily": {"get": {"tags": ["admin"], "summary": "Per-day usage", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}},
        "/admin/usage/by-provider": {"get": {"tags": ["admin"], "summary": "Usage per provider", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}},
        "/admin/usage/by-function": {"get": {"tags": ["admin"], "summary": "Usage per function", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}},
        "/admin/usage/recent": {"get": {"tags": ["admin"], "summary": "Newest call records", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}}
    },
    "definitions": {
        "user.RegisterInput": {
            "type": "object",
            "required": ["email", "name", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string", "minLength": 6},
                "name": {"type": "string"},
                "role": {"type": "string", "enum": ["student", "parent", "teacher", "institution"]},
                "grade": {"type": "string"}
            }
        },
        "handlers.LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {"email": {"type": "string"}, "password": {"type": "string"}}
        },
        "tutor.ExerciseRequest": {
            "type": "object",
            "required": ["grade", "subject"],
            "properties": {
                "subject": {"type": "string"},
                "grade": {"type": "string"},
                "knowledge_point": {"type": "string"},
                "question_type": {"type": "string", "enum": ["choice", "fill", "solve", "judge"]},
                "question_count": {"type": "integer", "minimum": 1, "maximum": 20},
                "difficulty": {"type": "integer", "minimum": 1, "maximum": 5},
                "provider": {"type": "string"}
            }
        },
        "aiconfig.CreateInput": {
            "type": "object",
            "required": ["credential", "endpoint_url", "internal_name"],
            "properties": {
                "internal_name": {"type": "string"},
                "display_name": {"type": "string"},
                "endpoint_url": {"type": "string"},
                "credential": {"type": "string"},
                "max_tokens": {"type": "integer"},
                "temperature": {"type": "number"},
                "extra_params": {"type": "object"},
                "is_active": {"type": "boolean"},
                "is_default": {"type": "boolean"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api",
	Schemes:          []string{},
	Title:            "Tutoring AI Gateway API",
	Description:      "Exercise generation, answer analysis, learning reports and photo correction over configurable LLM providers.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
