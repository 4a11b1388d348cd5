// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package faults owns the error taxonomy of the production pipeline.
//
// Every error that leaves a pipeline stage falls into one Kind. The kind decides
// what happens next: transient failures advance the fallback matrix, safety
// rejections end the scene without trying another credential or model, parse
// and decode failures are retried locally by their stage, persistence failures
// fail the item while keeping its media, and a missing credential stops before
// any remote call is made.
//
// Types:
//   - Kind: The failure class.
//   - SafetyRejection: A content-safety verdict returned by a model.
//   - PersistenceError: A gateway or object storage failure after synthesis.
//
// Functions:
//   - Fatal / IsFatal: Mark an error as not worth another credential or model.
//   - Classify: Map any error to its Kind.
//   - Translate: Map a terminal error to user guidance.
package faults

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// Kind is the failure class of an error.
type Kind int

const (
	KindUnknown Kind = iota
	KindTransient
	KindSafety
	KindInvalidArgument
	KindParse
	KindDecode
	KindPersistence
	KindNoCredential
)

var kindNames = map[Kind]string{
	KindUnknown:         "unknown",
	KindTransient:       "transient",
	KindSafety:          "safety",
	KindInvalidArgument: "invalid_argument",
	KindParse:           "parse",
	KindDecode:          "decode",
	KindPersistence:     "persistence",
	KindNoCredential:    "no_credential",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Kinded is implemented by errors that know their own kind.
type Kinded interface {
	Kind() Kind
}

var (
	// ErrNoCredential is returned before any remote call when no credential is configured.
	ErrNoCredential = errors.New("no credential available")
	// ErrResourceExhausted is matched by every exhausted fallback matrix.
	ErrResourceExhausted = errors.New("resource exhausted")
)

// SafetyRejection is a content-safety verdict. It is terminal for the scene.
type SafetyRejection struct {
	Reasons []string
	Count   int
}

func (e *SafetyRejection) Error() string {
	if len(e.Reasons) == 0 {
		return fmt.Sprintf("content safety filter rejected %d result(s)", e.Count)
	}
	return "raiMediaFilteredReasons: " + strings.Join(e.Reasons, ". ")
}

func (e *SafetyRejection) Kind() Kind { return KindSafety }

// PersistenceError wraps a gateway or storage failure.
type PersistenceError struct {
	Op     string
	Err    error
	Upload bool // Storing the finished artifacts failed.
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Kind() Kind { return KindPersistence }

// Persistence wraps err as a PersistenceError, nil stays nil.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

// Upload wraps err as a PersistenceError raised while storing the finished
// artifacts, nil stays nil.
func Upload(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err, Upload: true}
}

type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Fatal marks err so the fallback engine aborts instead of advancing.
func Fatal(err error) error {
	if err == nil || IsFatal(err) {
		return err
	}
	return &fatalError{err: err}
}

// IsFatal reports whether err was marked fatal or is a safety rejection.
func IsFatal(err error) bool {
	var f *fatalError
	if errors.As(err, &f) {
		return true
	}
	var s *SafetyRejection
	return errors.As(err, &s)
}

var transientMarkers = []string{
	"resource_exhausted",
	"quota",
	"429",
	"503",
	"unavailable",
	"deadline exceeded",
	"overloaded",
	"not found",
	"404",
}

// Classify returns the kind of err. Typed errors and Kinded implementations
// win over message inspection.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, ErrNoCredential) {
		return KindNoCredential
	}
	var kinded Kinded
	if errors.As(err, &kinded) {
		return kinded.Kind()
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusBadRequest || apiErr.Status == "INVALID_ARGUMENT":
			return KindInvalidArgument
		case apiErr.Code == http.StatusTooManyRequests, apiErr.Code == http.StatusNotFound, apiErr.Code >= 500:
			return KindTransient
		}
	}
	message := strings.ToLower(err.Error())
	if strings.Contains(message, "raimediafilteredreasons") || strings.Contains(message, "safety") {
		return KindSafety
	}
	if strings.Contains(message, "invalid_argument") {
		return KindInvalidArgument
	}
	for _, marker := range transientMarkers {
		if strings.Contains(message, marker) {
			return KindTransient
		}
	}
	return KindUnknown
}

// Translation keys, matched against the lowercased error message.
var translations = []struct {
	markers []string
	message string
}{
	{[]string{"photorealistic children"}, "Safety policy: realistic depictions of children are not allowed."},
	{[]string{"requested entity was not found", "404"}, "Your Google Cloud project does not have access to this model."},
	{[]string{"billing", "403"}, "Billing problem: check the billing status of the project in the Cloud Console."},
	{[]string{"resource_exhausted", "quota", "429"}, "Quota exhausted for every configured credential and model. Try again later or add a credential."},
}

// Translate maps a terminal error to the guidance shown to a user. Safety
// verdicts pass through verbatim so the filter reasons stay visible.
func Translate(err error) string {
	if err == nil {
		return ""
	}
	message := err.Error()
	var rejection *SafetyRejection
	if errors.As(err, &rejection) {
		return rejection.Error()
	}
	if strings.Contains(message, "raiMediaFilteredReasons") {
		return message
	}
	lower := strings.ToLower(message)
	for _, t := range translations {
		for _, marker := range t.markers {
			if strings.Contains(lower, marker) {
				return t.message
			}
		}
	}
	if message == "" {
		return "Internal error in the generative service."
	}
	return message
}
