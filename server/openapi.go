package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/labstack/echo/v4"
	"gopkg.in/yaml.v3"
)

// buildOpenAPISpec describes the MFA surface. The document is assembled once
// and served from memory.
func buildOpenAPISpec(appName string) *openapi3.T {
	spec := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       appName + " Trust & Sync API",
			Description: "Multi-factor credential verification for " + appName,
			Version:     "1.0.0",
		},
		Paths: openapi3.NewPaths(),
		Components: &openapi3.Components{
			SecuritySchemes: openapi3.SecuritySchemes{
				"challengeToken": &openapi3.SecuritySchemeRef{
					Value: &openapi3.SecurityScheme{
						Type:         "http",
						Scheme:       "bearer",
						BearerFormat: "JWT",
						Description:  "Short-lived MFA challenge token issued after first-factor login",
					},
				},
			},
		},
	}

	verdictSchema := &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type: &openapi3.Types{"object"},
		Properties: openapi3.Schemas{
			"result":             stringSchema(),
			"message":            stringSchema(),
			"remaining_attempts": intSchema(),
		},
	}}

	spec.Paths.Set("/auth/mfa/setup", &openapi3.PathItem{
		Post: operation("mfaSetup", "Begin TOTP enrollment",
			jsonBody(objectSchema(map[string]*openapi3.SchemaRef{
				"user_id": intSchema(),
				"contact": stringSchema(),
			})),
			responses(map[int]*openapi3.SchemaRef{
				http.StatusOK: objectSchema(map[string]*openapi3.SchemaRef{
					"secret":           stringSchema(),
					"provisioning_uri": stringSchema(),
					"backup_codes":     arraySchema(stringSchema()),
				}),
				http.StatusConflict: nil,
			})),
	})

	spec.Paths.Set("/auth/mfa/confirm", &openapi3.PathItem{
		Post: operation("mfaConfirm", "Confirm enrollment with a first valid code",
			jsonBody(objectSchema(map[string]*openapi3.SchemaRef{
				"user_id": intSchema(),
				"code":    stringSchema(),
			})),
			responses(map[int]*openapi3.SchemaRef{
				http.StatusOK:           verdictSchema,
				http.StatusUnauthorized: verdictSchema,
			})),
	})

	verifyOp := operation("mfaVerify", "Verify a login-time code",
		jsonBody(objectSchema(map[string]*openapi3.SchemaRef{
			"code": stringSchema(),
		})),
		responses(map[int]*openapi3.SchemaRef{
			http.StatusOK:              verdictSchema,
			http.StatusUnauthorized:    verdictSchema,
			http.StatusTooManyRequests: verdictSchema,
		}))
	verifyOp.Security = &openapi3.SecurityRequirements{
		openapi3.SecurityRequirement{"challengeToken": []string{}},
	}
	spec.Paths.Set("/auth/mfa/verify", &openapi3.PathItem{Post: verifyOp})

	spec.Paths.Set("/auth/mfa/challenge", &openapi3.PathItem{
		Post: operation("mfaChallenge", "Issue an MFA challenge token",
			jsonBody(objectSchema(map[string]*openapi3.SchemaRef{
				"user_id": intSchema(),
			})),
			responses(map[int]*openapi3.SchemaRef{
				http.StatusOK: objectSchema(map[string]*openapi3.SchemaRef{
					"token":      stringSchema(),
					"expires_in": intSchema(),
				}),
			})),
	})

	spec.Paths.Set("/auth/mfa/send-code", &openapi3.PathItem{
		Post: operation("mfaSendCode", "Dispatch the current code to the user's contact",
			jsonBody(objectSchema(map[string]*openapi3.SchemaRef{
				"user_id": intSchema(),
			})),
			responses(map[int]*openapi3.SchemaRef{
				http.StatusOK:       nil,
				http.StatusNotFound: nil,
				http.StatusConflict: nil,
			})),
	})

	spec.Paths.Set("/auth/mfa/backup-codes/regenerate", &openapi3.PathItem{
		Post: operation("mfaRegenerateBackupCodes", "Replace all outstanding backup codes",
			jsonBody(objectSchema(map[string]*openapi3.SchemaRef{
				"user_id": intSchema(),
			})),
			responses(map[int]*openapi3.SchemaRef{
				http.StatusOK: objectSchema(map[string]*openapi3.SchemaRef{
					"backup_codes": arraySchema(stringSchema()),
				}),
				http.StatusConflict: nil,
			})),
	})

	spec.Paths.Set("/auth/mfa/disable", &openapi3.PathItem{
		Post: operation("mfaDisable", "Disable MFA for a user",
			jsonBody(objectSchema(map[string]*openapi3.SchemaRef{
				"user_id":         intSchema(),
				"acting_admin_id": intSchema(),
			})),
			responses(map[int]*openapi3.SchemaRef{
				http.StatusOK:       nil,
				http.StatusNotFound: nil,
			})),
	})

	statusOp := operation("mfaStatus", "Enrollment status for a user", nil,
		responses(map[int]*openapi3.SchemaRef{
			http.StatusOK: objectSchema(map[string]*openapi3.SchemaRef{
				"enabled":          boolSchema(),
				"method":           stringSchema(),
				"setup_at":         stringSchema(),
				"confirmed_at":     stringSchema(),
				"has_backup_codes": boolSchema(),
			}),
			http.StatusNotFound: nil,
		}))
	statusOp.Parameters = openapi3.Parameters{
		&openapi3.ParameterRef{Value: &openapi3.Parameter{
			Name:     "user_id",
			In:       "path",
			Required: true,
			Schema:   intSchema(),
		}},
	}
	spec.Paths.Set("/auth/mfa/status/{user_id}", &openapi3.PathItem{Get: statusOp})

	return spec
}

func (h *Handler) OpenAPIJSON(c echo.Context) error {
	data, err := json.MarshalIndent(h.apiSpec, "", "  ")
	if err != nil {
		return h.internalError(c, err, "failed to marshal OpenAPI document")
	}
	return c.JSONBlob(http.StatusOK, data)
}

func (h *Handler) OpenAPIYAML(c echo.Context) error {
	intermediate, err := h.apiSpec.MarshalYAML()
	if err != nil {
		return h.internalError(c, err, "failed to marshal OpenAPI document")
	}
	data, err := yaml.Marshal(intermediate)
	if err != nil {
		return h.internalError(c, err, "failed to marshal OpenAPI document")
	}
	return c.Blob(http.StatusOK, "application/yaml", data)
}

func operation(id, summary string, body *openapi3.RequestBodyRef, resp *openapi3.Responses) *openapi3.Operation {
	return &openapi3.Operation{
		OperationID: id,
		Summary:     summary,
		Tags:        []string{"mfa"},
		RequestBody: body,
		Responses:   resp,
	}
}

func jsonBody(schema *openapi3.SchemaRef) *openapi3.RequestBodyRef {
	return &openapi3.RequestBodyRef{
		Value: &openapi3.RequestBody{
			Required: true,
			Content: openapi3.Content{
				"application/json": &openapi3.MediaType{Schema: schema},
			},
		},
	}
}

func responses(byStatus map[int]*openapi3.SchemaRef) *openapi3.Responses {
	resp := openapi3.NewResponses()
	for status, schema := range byStatus {
		desc := http.StatusText(status)
		value := &openapi3.Response{Description: &desc}
		if schema != nil {
			value.Content = openapi3.Content{
				"application/json": &openapi3.MediaType{Schema: schema},
			}
		}
		resp.Set(strconv.Itoa(status), &openapi3.ResponseRef{Value: value})
	}
	return resp
}

func stringSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}}
}

func intSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}}}
}

func boolSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}}
}

func arraySchema(items *openapi3.SchemaRef) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type:  &openapi3.Types{"array"},
		Items: items,
	}}
}

func objectSchema(props map[string]*openapi3.SchemaRef) *openapi3.SchemaRef {
	schemas := make(openapi3.Schemas, len(props))
	for name, prop := range props {
		schemas[name] = prop
	}
	return &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type:       &openapi3.Types{"object"},
		Properties: schemas,
	}}
}
