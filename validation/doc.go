// Package validation validates request payloads.
//
// Struct tags are checked with go-playground/validator; field names in
// messages follow the json tags:
//
//	type Request struct {
//	    Prompt string `json:"prompt" validate:"required"`
//	}
//	err := validation.Validate(req)
//
// Rules that depend on runtime configuration, such as an allow-list loaded
// from the environment, are collected with a Validator:
//
//	v := validation.New()
//	v.OneOf("model", req.Model, models)
//	err := v.Validate()
package validation
