// Package swagger registers the catalog API description served at /swagger/.
package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/books/": {
            "get": {
                "produces": ["application/json"],
                "tags": ["books"],
                "summary": "List books",
                "parameters": [
                    {"type": "string", "description": "exact title", "name": "title", "in": "query"},
                    {"type": "string", "description": "exact author name", "name": "author__name", "in": "query"},
                    {"type": "integer", "description": "exact year", "name": "publication_year", "in": "query"},
                    {"type": "string", "description": "substring of title or author name", "name": "search", "in": "query"},
                    {"type": "string", "description": "title, publication_year, prefix - for descending", "name": "ordering", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/model.Book"}}}
                }
            }
        },
        "/books/{id}/": {
            "get": {
                "produces": ["application/json"],
                "tags": ["books"],
                "summary": "Get a book",
                "parameters": [{"type": "integer", "description": "book id", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.Book"}},
                    "404": {"description": "Not Found"}
                }
            }
        },
        "/books/create/": {
            "post": {
                "security": [{"TokenAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["books"],
                "summary": "Create a book",
                "parameters": [{"description": "book", "name": "book", "in": "body", "required": true, "schema": {"$ref": "#/definitions/model.BookRequest"}}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/model.Book"}},
                    "400": {"description": "Bad Request"},
                    "401": {"description": "Unauthorized"}
                }
            }
        },
        "/books/{id}/update/": {
            "put": {
                "security": [{"TokenAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["books"],
                "summary": "Replace a book",
                "parameters": [
                    {"type": "integer", "description": "book id", "name": "id", "in": "path", "required": true},
                    {"description": "book", "name": "book", "in": "body", "required": true, "schema": {"$ref": "#/definitions/model.BookRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/model.Book"}}}
            },
            "patch": {
                "security": [{"TokenAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["books"],
                "summary": "Partially update a book",
                "parameters": [
                    {"type": "integer", "description": "book id", "name": "id", "in": "path", "required": true},
                    {"description": "fields to change", "name": "book", "in": "body", "required": true, "schema": {"$ref": "#/definitions/model.BookRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/model.Book"}}}
            }
        },
        "/books/{id}/delete/": {
            "delete": {
                "security": [{"TokenAuth": []}],
                "tags": ["books"],
                "summary": "Delete a book",
                "parameters": [{"type": "integer", "description": "book id", "name": "id", "in": "path", "required": true}],
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/authors/": {
            "get": {
                "produces": ["application/json"],
                "tags": ["authors"],
                "summary": "List authors with their books",
                "responses": {"200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/model.Author"}}}}
            },
            "post": {
                "security": [{"TokenAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["authors"],
                "summary": "Create an author",
                "parameters": [{"description": "author", "name": "author", "in": "body", "required": true, "schema": {"$ref": "#/definitions/model.AuthorRequest"}}],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/model.Author"}}}
            }
        },
        "/authors/{id}/": {
            "get": {
                "produces": ["application/json"],
                "tags": ["authors"],
                "summary": "Get an author with its books",
                "parameters": [{"type": "integer", "description": "author id", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/model.Author"}}}
            }
        }
    },
    "definitions": {
        "model.Book": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "title": {"type": "string"},
                "publication_year": {"type": "integer"},
                "author": {"type": "integer"}
            }
        },
        "model.BookRequest": {
            "type": "object",
            "required": ["title", "publication_year", "author"],
            "properties": {
                "title": {"type": "string", "maxLength": 255},
                "publication_year": {"type": "integer"},
                "author": {"type": "integer"}
            }
        },
        "model.Author": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "name": {"type": "string"},
                "books": {"type": "array", "items": {"$ref": "#/definitions/model.Book"}}
            }
        },
        "model.AuthorRequest": {
            "type": "object",
            "required": ["name"],
            "properties": {"name": {"type": "string", "maxLength": 255}}
        }
    },
    "securityDefinitions": {
        "TokenAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api",
	Schemes:          []string{},
	Title:            "Catalog API",
	Description:      "Books and authors.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
