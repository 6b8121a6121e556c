// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

// Package validation provides struct validation using go-playground/validator v10.
//
// This package wraps the go-playground/validator library to provide a thread-safe
// singleton validator instance with custom validators and user-friendly error
// messages. The API layer flattens RequestValidationError into the detail of an
// RFC 7807 problem response.
//
// # Overview
//
// The package provides:
//   - Thread-safe singleton validator (initialized once, cached struct info)
//   - Error translation to human-readable per-field messages
//   - Domain enum validators: dlqstatus, entitytype, rulefield, ruleoperator
//   - Future v11 compatibility with WithRequiredStructEnabled
//
// # Quick Start
//
//	type CreateRuleRequest struct {
//	    Name              string `validate:"required,min=1,max=200"`
//	    MaxReplaysPerHour int    `validate:"min=1,max=10000"`
//	}
//
//	func handler(w http.ResponseWriter, r *http.Request) {
//	    var req CreateRuleRequest
//	    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
//	        // handle decode error
//	    }
//
//	    if verr := validation.ValidateStruct(&req); verr != nil {
//	        problems.Validation(w, r, verr)
//	        return
//	    }
//
//	    // proceed with valid request
//	}
//
// # Domain Validators
//
// Custom tags registered on the singleton:
//
//	dlqstatus    -> value is a known DLQ history status
//	entitytype   -> value is Queue, Topic or Subscription
//	rulefield    -> value is a known rule condition field
//	ruleoperator -> value is a known rule condition operator
//
// # Thread Safety
//
// The singleton validator is initialized once and safe for concurrent use:
//
//	validate := validation.GetValidator()  // Thread-safe
//	err := validation.ValidateStruct(&req) // Thread-safe
//
// # See Also
//
//   - internal/api: Request handlers using validation
//   - github.com/go-playground/validator/v10: Underlying library
package validation
