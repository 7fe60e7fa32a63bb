package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger serves the API description.
// - GET /swagger/index.html  -> Swagger UI page loading doc.json
// - GET /swagger/doc.json    -> OpenAPI document
func RegisterSwagger(r gin.IRouter) {
	r.GET("/swagger/index.html", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(swaggerHTML))
	})
	r.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>drilldocs API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "drilldocs", "version": "v1.0.0" },
  "components": {
    "parameters": {
      "id": { "name": "id", "in": "path", "required": true, "schema": { "type": "string" } },
      "user": { "name": "X-User", "in": "header", "required": false, "schema": { "type": "string" } }
    },
    "schemas": {
      "Section": { "type": "object", "properties": { "id": {"type":"string"}, "title": {"type":"string"}, "content": {"type":"string"} } },
      "Document": { "type": "object", "properties": {
        "id": {"type":"string"}, "title": {"type":"string"}, "category": {"type":"string"}, "isFeatured": {"type":"boolean"},
        "equipmentTags": {"type":"array","items":{"type":"string"}}, "operationsTags": {"type":"array","items":{"type":"string"}},
        "sections": {"type":"array","items":{"$ref":"#/components/schemas/Section"}},
        "lastModified": {"type":"integer"}, "version": {"type":"integer"} } },
      "Draft": { "type": "object", "properties": {
        "title": {"type":"string"}, "category": {"type":"string"}, "isFeatured": {"type":"boolean"},
        "sections": {"type":"array","items":{"$ref":"#/components/schemas/Section"}},
        "equipmentTags": {"type":"array","items":{"type":"string"}}, "operationsTags": {"type":"array","items":{"type":"string"}},
        "timestamp": {"type":"integer"} } },
      "Error": { "type": "object", "properties": { "error": {"type":"string"}, "field": {"type":"string"} } }
    }
  },
  "paths": {
    "/api/documents": {
      "get": { "summary": "List documents, newest first",
        "parameters": [
          {"name":"equipment","in":"query","schema":{"type":"string"}},
          {"name":"operations","in":"query","schema":{"type":"string"}},
          {"name":"category","in":"query","schema":{"type":"string"}},
          {"name":"featured","in":"query","schema":{"type":"boolean"}}],
        "responses": { "200": { "description": "documents" } } },
      "post": { "summary": "Create a document", "parameters": [{"$ref":"#/components/parameters/user"}],
        "requestBody": { "content": { "application/json": { "schema": {"$ref":"#/components/schemas/Document"} } } },
        "responses": { "201": { "description": "created" }, "400": { "description": "validation failed" }, "409": { "description": "id taken" } } }
    },
    "/api/documents/{id}": {
      "get": { "summary": "Get a document", "parameters": [{"$ref":"#/components/parameters/id"}], "responses": { "200": { "description": "document" }, "404": { "description": "not found" } } },
      "put": { "summary": "Save a document", "parameters": [{"$ref":"#/components/parameters/id"},{"$ref":"#/components/parameters/user"}], "responses": { "200": { "description": "saved" }, "400": { "description": "validation failed" }, "404": { "description": "not found" } } },
      "delete": { "summary": "Delete a document", "parameters": [{"$ref":"#/components/parameters/id"},{"$ref":"#/components/parameters/user"}], "responses": { "204": { "description": "deleted or absent" } } }
    },
    "/api/documents/{id}/view": {
      "get": { "summary": "Read-only rendering with resolved document links",
        "parameters": [{"$ref":"#/components/parameters/id"},{"name":"from","in":"query","schema":{"type":"string"}}],
        "responses": { "200": { "description": "view" }, "404": { "description": "not found" } } }
    },
    "/api/documents/{id}/revisions": {
      "get": { "summary": "Revision history, oldest first", "parameters": [{"$ref":"#/components/parameters/id"}], "responses": { "200": { "description": "revisions" } } }
    },
    "/api/documents/{id}/revisions/{rev}/restore": {
      "post": { "summary": "Commit a revision snapshot as a new save",
        "parameters": [{"$ref":"#/components/parameters/id"},{"name":"rev","in":"path","required":true,"schema":{"type":"string"}}],
        "responses": { "200": { "description": "restored" }, "404": { "description": "not found" } } }
    },
    "/api/documents/{id}/export": {
      "get": { "summary": "Export as html or markdown",
        "parameters": [{"$ref":"#/components/parameters/id"},
          {"name":"format","in":"query","schema":{"type":"string","enum":["html","md","markdown"]}},
          {"name":"archive","in":"query","schema":{"type":"boolean"}}],
        "responses": { "200": { "description": "file, or archive key and URL" }, "400": { "description": "unknown format" } } }
    },
    "/api/drafts/{id}": {
      "get": { "summary": "Read a draft slot (id 'new' for unsaved documents)", "parameters": [{"$ref":"#/components/parameters/id"}], "responses": { "200": { "description": "draft" }, "404": { "description": "empty slot" } } },
      "put": { "summary": "Write a draft slot", "parameters": [{"$ref":"#/components/parameters/id"}],
        "requestBody": { "content": { "application/json": { "schema": {"$ref":"#/components/schemas/Draft"} } } },
        "responses": { "204": { "description": "stored" } } },
      "delete": { "summary": "Clear a draft slot", "parameters": [{"$ref":"#/components/parameters/id"}], "responses": { "204": { "description": "cleared" } } }
    },
    "/api/import": {
      "post": { "summary": "Convert an uploaded .docx, .html or .txt file",
        "requestBody": { "content": { "multipart/form-data": { "schema": { "type": "object", "properties": {
          "file": {"type":"string","format":"binary"}, "split": {"type":"boolean"}, "commit": {"type":"boolean"} } } } } },
        "responses": { "200": { "description": "converted, not saved" }, "201": { "description": "converted and saved" }, "422": { "description": "conversion failed" } } }
    },
    "/api/search": {
      "get": { "summary": "Keyword search over titles and section text", "parameters": [{"name":"q","in":"query","schema":{"type":"string"}}], "responses": { "200": { "description": "results" } } }
    },
    "/api/activity": { "get": { "summary": "Recent activity, newest first", "responses": { "200": { "description": "activity" } } } },
    "/api/recent": { "get": { "summary": "Recently viewed documents", "responses": { "200": { "description": "documents" } } } },
    "/api/taxonomy": { "get": { "summary": "Equipment and operations categories", "responses": { "200": { "description": "taxonomy" } } } },
    "/api/data": { "delete": { "summary": "Clear all stored data", "responses": { "204": { "description": "cleared" } } } },
    "/api/events": { "get": { "summary": "Server-sent store change events", "responses": { "200": { "description": "text/event-stream" } } } }
  }
}`
