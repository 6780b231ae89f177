// Package docs registers the Swagger specification for the situation
// monitor API.
//
//	Schemes: http, https
//	Host: localhost:8080
//	BasePath: /api/v1
//	Version: 1.0.0
//
// swagger:meta
package docs

import "github.com/swaggo/swag"

func init() {
	swag.Register(swag.Name, &swag.Spec{
		InfoInstanceName: "swagger",
		SwaggerTemplate:  docTemplate,
	})
}

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Situation Monitor API",
        "description": "Event feed ingestion service: GDELT-backed query profiles, geo clusters and a live event stream",
        "version": "1.0.0",
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        }
    },
    "host": "localhost:8080",
    "basePath": "/api/v1",
    "schemes": ["http", "https"],
    "consumes": ["application/json"],
    "produces": ["application/json"],
    "paths": {
        "/health": {
            "get": {
                "description": "Health check endpoint",
                "summary": "Health Check",
                "operationId": "healthCheck",
                "responses": {
                    "200": {
                        "description": "Service is healthy",
                        "schema": {
                            "type": "object",
                            "properties": {
                                "status": {"type": "string", "example": "healthy"},
                                "service": {"type": "string", "example": "situation-monitor"},
                                "poller_active": {"type": "boolean"}
                            }
                        }
                    }
                }
            }
        },
        "/profiles": {
            "get": {
                "description": "List seeded query profiles in creation order",
                "summary": "List Profiles",
                "operationId": "getProfiles",
                "responses": {
                    "200": {
                        "description": "Profile list",
                        "schema": {
                            "type": "object",
                            "properties": {
                                "profiles": {"type": "array", "items": {"$ref": "#/definitions/QueryProfile"}},
                                "count": {"type": "integer"}
                            }
                        }
                    }
                }
            }
        },
        "/map-data": {
            "get": {
                "description": "Aggregated clusters, located articles and run health for one profile",
                "summary": "Map Data",
                "operationId": "getMapData",
                "parameters": [
                    {"name": "profileId", "in": "query", "type": "string"},
                    {"name": "language", "in": "query", "type": "string", "default": "all"},
                    {"name": "sourceCountry", "in": "query", "type": "string", "default": "all"},
                    {"name": "topN", "in": "query", "type": "integer", "default": 100}
                ],
                "responses": {
                    "200": {"description": "Map payload for the selected profile"}
                }
            }
        },
        "/refresh": {
            "post": {
                "description": "Trigger an ingestion cycle. Returns skipped=true when a cycle is already in flight.",
                "summary": "Trigger Refresh",
                "operationId": "triggerRefresh",
                "parameters": [
                    {
                        "name": "body",
                        "in": "body",
                        "schema": {
                            "type": "object",
                            "properties": {"profileId": {"type": "string"}}
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "Refresh outcome",
                        "schema": {
                            "type": "object",
                            "properties": {
                                "ok": {"type": "boolean"},
                                "skipped": {"type": "boolean"},
                                "refreshedAt": {"type": "string", "format": "date-time"}
                            }
                        }
                    }
                }
            }
        },
        "/stream": {
            "get": {
                "description": "Server-sent event stream: connected, heartbeat, update and error events",
                "summary": "Event Stream",
                "operationId": "streamEvents",
                "produces": ["text/event-stream"],
                "responses": {
                    "200": {"description": "Long-lived event stream"}
                }
            }
        },
        "/poller/status": {
            "get": {
                "description": "Background poller state",
                "summary": "Poller Status",
                "operationId": "getPollerStatus",
                "responses": {
                    "200": {"description": "Poller status"}
                }
            }
        },
        "/poller/force-refresh": {
            "post": {
                "description": "Trigger a refresh cycle outside the regular schedule",
                "summary": "Force Refresh",
                "operationId": "forceRefresh",
                "responses": {
                    "200": {"description": "Refresh outcome"}
                }
            }
        }
    },
    "definitions": {
        "QueryProfile": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "queryString": {"type": "string"},
                "timespan": {"type": "string", "enum": ["1h", "6h", "24h", "7d"]},
                "filtersJson": {"type": "object"},
                "createdAt": {"type": "string", "format": "date-time"}
            }
        }
    }
}`
