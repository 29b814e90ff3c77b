// Package docs holds the OpenAPI document of the control API.
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
		"/api/accounts": {
			"get": {
				"produces": [
					"application/json"
				],
				"tags": [
					"Accounts"
				],
				"summary": "List registered accounts",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					}
				}
			},
			"post": {
				"description": "Accepts an exchange code, or an account id with a device id and secret.",
				"consumes": [
					"application/json"
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"Accounts"
				],
				"summary": "Register an account",
				"parameters": [
					{
						"description": "Login material",
						"name": "body",
						"in": "body",
						"required": true,
						"schema": {
							"$ref": "#/definitions/httptransport.AddAccountRequest"
						}
					}
				],
				"responses": {
					"201": {
						"description": "Created",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					},
					"400": {
						"description": "Error",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					},
					"503": {
						"description": "account login is not configured",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					}
				}
			}
		},
		"/api/accounts/{id}": {
			"delete": {
				"produces": [
					"application/json"
				],
				"tags": [
					"Accounts"
				],
				"summary": "Remove an account",
				"parameters": [
					{
						"type": "string",
						"description": "Account id",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					},
					"404": {
						"description": "unknown account",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					}
				}
			}
		},
		"/api/automation": {
			"get": {
				"produces": [
					"application/json"
				],
				"tags": [
					"Automation"
				],
				"summary": "List automations",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					}
				}
			}
		},
		"/api/automation/{id}": {
			"get": {
				"produces": [
					"application/json"
				],
				"tags": [
					"Automation"
				],
				"summary": "Read one automation",
				"parameters": [
					{
						"type": "string",
						"description": "Account id",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					},
					"404": {
						"description": "not automated",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					}
				}
			},
			"put": {
				"consumes": [
					"application/json"
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"Automation"
				],
				"summary": "Start, reconfigure or stop an automation",
				"parameters": [
					{
						"type": "string",
						"description": "Account id",
						"name": "id",
						"in": "path",
						"required": true
					},
					{
						"description": "Automation settings",
						"name": "body",
						"in": "body",
						"required": true,
						"schema": {
							"$ref": "#/definitions/automation.Settings"
						}
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					},
					"400": {
						"description": "Error",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					},
					"404": {
						"description": "unknown account",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					}
				}
			},
			"delete": {
				"produces": [
					"application/json"
				],
				"tags": [
					"Automation"
				],
				"summary": "Stop an automation",
				"parameters": [
					{
						"type": "string",
						"description": "Account id",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					},
					"404": {
						"description": "not automated",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					}
				}
			}
		},
		"/api/events/{id}": {
			"get": {
				"produces": [
					"application/json"
				],
				"tags": [
					"Events"
				],
				"summary": "Journaled events of an account",
				"parameters": [
					{
						"type": "string",
						"description": "Account id",
						"name": "id",
						"in": "path",
						"required": true
					},
					{
						"type": "integer",
						"description": "Maximum number of events (default 50, at most 500)",
						"name": "limit",
						"in": "query",
						"required": false
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					},
					"400": {
						"description": "Error",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					}
				}
			}
		},
		"/api/friends/{id}": {
			"get": {
				"produces": [
					"application/json"
				],
				"tags": [
					"Friends"
				],
				"summary": "Read the mirrored friends list",
				"parameters": [
					{
						"type": "string",
						"description": "Account id",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					},
					"404": {
						"description": "unknown account",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					}
				}
			}
		},
		"/api/friends/{id}/accept-all": {
			"post": {
				"produces": [
					"application/json"
				],
				"tags": [
					"Friends"
				],
				"summary": "Accept every incoming friend request",
				"parameters": [
					{
						"type": "string",
						"description": "Account id",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					},
					"404": {
						"description": "unknown account",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					}
				}
			}
		},
		"/api/friends/{id}/{friend}": {
			"get": {
				"produces": [
					"application/json"
				],
				"tags": [
					"Friends"
				],
				"summary": "Read one friend",
				"parameters": [
					{
						"type": "string",
						"description": "Account id",
						"name": "id",
						"in": "path",
						"required": true
					},
					{
						"type": "string",
						"description": "Friend account id",
						"name": "friend",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					},
					"404": {
						"description": "unknown account",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					}
				}
			},
			"put": {
				"produces": [
					"application/json"
				],
				"tags": [
					"Friends"
				],
				"summary": "Send or accept a friend request",
				"parameters": [
					{
						"type": "string",
						"description": "Account id",
						"name": "id",
						"in": "path",
						"required": true
					},
					{
						"type": "string",
						"description": "Friend account id",
						"name": "friend",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					},
					"404": {
						"description": "unknown account",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					}
				}
			},
			"delete": {
				"produces": [
					"application/json"
				],
				"tags": [
					"Friends"
				],
				"summary": "Remove a friend or decline a request",
				"parameters": [
					{
						"type": "string",
						"description": "Account id",
						"name": "id",
						"in": "path",
						"required": true
					},
					{
						"type": "string",
						"description": "Friend account id",
						"name": "friend",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					},
					"404": {
						"description": "unknown account",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					}
				}
			}
		},
		"/api/metrics": {
			"get": {
				"produces": [
					"application/json"
				],
				"tags": [
					"System"
				],
				"summary": "In-process counters",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					}
				}
			}
		},
		"/api/party/{id}": {
			"get": {
				"produces": [
					"application/json"
				],
				"tags": [
					"Party"
				],
				"summary": "Read the mirrored party",
				"parameters": [
					{
						"type": "string",
						"description": "Account id",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					},
					"404": {
						"description": "unknown account",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					}
				}
			}
		},
		"/api/party/{id}/invite/{friend}": {
			"post": {
				"produces": [
					"application/json"
				],
				"tags": [
					"Party"
				],
				"summary": "Invite a friend into the party",
				"parameters": [
					{
						"type": "string",
						"description": "Account id",
						"name": "id",
						"in": "path",
						"required": true
					},
					{
						"type": "string",
						"description": "Friend account id",
						"name": "friend",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					},
					"404": {
						"description": "unknown account or no party",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					}
				}
			}
		},
		"/api/party/{id}/kick/{member}": {
			"post": {
				"description": "The account must be the party captain.",
				"produces": [
					"application/json"
				],
				"tags": [
					"Party"
				],
				"summary": "Kick a party member",
				"parameters": [
					{
						"type": "string",
						"description": "Account id",
						"name": "id",
						"in": "path",
						"required": true
					},
					{
						"type": "string",
						"description": "Member account id",
						"name": "member",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					},
					"400": {
						"description": "Error",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					},
					"404": {
						"description": "unknown account, no party or not a member",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					}
				}
			}
		},
		"/api/party/{id}/leave": {
			"post": {
				"produces": [
					"application/json"
				],
				"tags": [
					"Party"
				],
				"summary": "Leave the current party",
				"parameters": [
					{
						"type": "string",
						"description": "Account id",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					},
					"404": {
						"description": "unknown account or no party",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					}
				}
			}
		},
		"/api/party/{id}/privacy": {
			"put": {
				"description": "Applies the public or private preset to the party meta. The account must be the party captain.",
				"consumes": [
					"application/json"
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"Party"
				],
				"summary": "Set the party privacy",
				"parameters": [
					{
						"type": "string",
						"description": "Account id",
						"name": "id",
						"in": "path",
						"required": true
					},
					{
						"description": "public or private",
						"name": "body",
						"in": "body",
						"required": true,
						"schema": {
							"$ref": "#/definitions/httptransport.PrivacyRequest"
						}
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					},
					"400": {
						"description": "Error",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					},
					"404": {
						"description": "unknown account or no party",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					}
				}
			}
		},
		"/api/party/{id}/promote/{member}": {
			"post": {
				"produces": [
					"application/json"
				],
				"tags": [
					"Party"
				],
				"summary": "Promote a party member to captain",
				"parameters": [
					{
						"type": "string",
						"description": "Account id",
						"name": "id",
						"in": "path",
						"required": true
					},
					{
						"type": "string",
						"description": "Member account id",
						"name": "member",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					},
					"400": {
						"description": "Error",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					},
					"404": {
						"description": "unknown account, no party or not a member",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					}
				}
			}
		},
		"/api/status/{id}": {
			"put": {
				"consumes": [
					"application/json"
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"Status"
				],
				"summary": "Set a custom presence status",
				"parameters": [
					{
						"type": "string",
						"description": "Account id",
						"name": "id",
						"in": "path",
						"required": true
					},
					{
						"description": "Status text and mode",
						"name": "body",
						"in": "body",
						"required": true,
						"schema": {
							"$ref": "#/definitions/httptransport.StatusRequest"
						}
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					},
					"400": {
						"description": "Error",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					},
					"404": {
						"description": "unknown account",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					}
				}
			},
			"delete": {
				"produces": [
					"application/json"
				],
				"tags": [
					"Status"
				],
				"summary": "Clear the custom presence status",
				"parameters": [
					{
						"type": "string",
						"description": "Account id",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					},
					"404": {
						"description": "unknown account or no stream",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					}
				}
			}
		},
		"/api/taxi": {
			"get": {
				"produces": [
					"application/json"
				],
				"tags": [
					"Taxi"
				],
				"summary": "List taxi accounts",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					}
				}
			}
		},
		"/api/taxi/{id}": {
			"get": {
				"produces": [
					"application/json"
				],
				"tags": [
					"Taxi"
				],
				"summary": "Read one taxi",
				"parameters": [
					{
						"type": "string",
						"description": "Account id",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					},
					"404": {
						"description": "not running as a taxi",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					}
				}
			},
			"put": {
				"description": "Empty fields take the configured defaults.",
				"consumes": [
					"application/json"
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"Taxi"
				],
				"summary": "Start or reconfigure a taxi",
				"parameters": [
					{
						"type": "string",
						"description": "Account id",
						"name": "id",
						"in": "path",
						"required": true
					},
					{
						"description": "Taxi settings",
						"name": "body",
						"in": "body",
						"required": false,
						"schema": {
							"$ref": "#/definitions/taxi.Settings"
						}
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					},
					"400": {
						"description": "Error",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					},
					"404": {
						"description": "unknown account",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					}
				}
			},
			"delete": {
				"produces": [
					"application/json"
				],
				"tags": [
					"Taxi"
				],
				"summary": "Stop a taxi",
				"parameters": [
					{
						"type": "string",
						"description": "Account id",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					},
					"404": {
						"description": "not running as a taxi",
						"schema": {
							"$ref": "#/definitions/httptransport.APIResponse"
						}
					}
				}
			}
		},
		"/healthz": {
			"get": {
				"produces": [
					"application/json"
				],
				"tags": [
					"System"
				],
				"summary": "Service health",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"type": "object"
						}
					}
				}
			}
		}
	},
	"definitions": {
		"automation.Settings": {
			"type": "object",
			"properties": {
				"autoClaim": {
					"type": "boolean"
				},
				"autoInvite": {
					"type": "boolean"
				},
				"autoKick": {
					"type": "boolean"
				},
				"autoTransferMaterials": {
					"type": "boolean"
				},
				"claimRewardsDelay": {
					"type": "number"
				},
				"managePresence": {
					"type": "boolean"
				},
				"missionCheckInterval": {
					"type": "number"
				}
			}
		},
		"httptransport.APIResponse": {
			"type": "object",
			"properties": {
				"code": {
					"type": "integer"
				},
				"data": {},
				"message": {
					"type": "string"
				},
				"success": {
					"type": "boolean"
				}
			}
		},
		"httptransport.AddAccountRequest": {
			"type": "object",
			"properties": {
				"accountId": {
					"type": "string"
				},
				"deviceId": {
					"type": "string"
				},
				"exchangeCode": {
					"type": "string"
				},
				"secret": {
					"type": "string"
				}
			}
		},
		"httptransport.PrivacyRequest": {
			"type": "object",
			"required": [
				"privacy"
			],
			"properties": {
				"privacy": {
					"type": "string",
					"enum": [
						"public",
						"private"
					]
				}
			}
		},
		"httptransport.StatusRequest": {
			"type": "object",
			"required": [
				"status"
			],
			"properties": {
				"mode": {
					"description": "Mode is the presence show value; empty means online.",
					"type": "string"
				},
				"status": {
					"type": "string"
				}
			}
		},
		"taxi.Settings": {
			"type": "object",
			"properties": {
				"autoAcceptFriendRequests": {
					"type": "boolean"
				},
				"availableStatus": {
					"type": "string"
				},
				"busyStatus": {
					"type": "string"
				},
				"fort": {
					"description": "FORT is written to every FORTStats entry. Zero leaves the stats out.",
					"type": "integer"
				},
				"level": {
					"description": "Level is the power level advertised to the party.",
					"type": "integer"
				}
			}
		}
	}
}`

// SwaggerInfo holds the document metadata filled into docTemplate.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "partybot control API",
	Description:      "Account registry, automation, taxi, party and friends control for the party bot server.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
