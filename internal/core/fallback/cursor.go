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

package fallback

import "github.com/jaycherian/gcp-go-media-studio/internal/core/faults"

// Action is the outcome of Decide.
type Action int

const (
	// Stop ends the search with the current result.
	Stop Action = iota
	// AdvanceModel retries the same credential with its next model.
	AdvanceModel
	// AdvanceCredential moves to the next credential and its first model.
	AdvanceCredential
	// Abort ends the search with the current error.
	Abort
	// Exhausted ends the search because no pair is left.
	Exhausted
)

func (a Action) String() string {
	switch a {
	case Stop:
		return "stop"
	case AdvanceModel:
		return "advance_model"
	case AdvanceCredential:
		return "advance_credential"
	case Abort:
		return "abort"
	case Exhausted:
		return "exhausted"
	}
	return "unknown"
}

// Policy tunes classification.
type Policy struct {
	// FailFastInvalidArgument aborts on invalid-argument failures instead of
	// advancing. Off by default, which treats them like any other failure.
	FailFastInvalidArgument bool
}

// Cursor is the position in a credential x model matrix.
type Cursor struct {
	Credentials int // Number of credentials.
	Models      int // Number of models per credential.
	Credential  int // Current credential index.
	Model       int // Current model index.
	Attempts    int // Attempts made, including the current one once it has run.
}

// NewCursor returns a cursor at the first pair of a credentials x models matrix.
func NewCursor(credentials, models int) Cursor {
	return Cursor{Credentials: credentials, Models: models}
}

// Valid reports whether the cursor points inside the matrix.
func (c Cursor) Valid() bool {
	return c.Credential >= 0 && c.Credential < c.Credentials && c.Model >= 0 && c.Model < c.Models
}

// Size is the number of pairs in the matrix.
func (c Cursor) Size() int {
	return c.Credentials * c.Models
}

// Decision is the result of classifying one attempt.
type Decision struct {
	Action Action
	Kind   faults.Kind
}

// Decide classifies the outcome err of the attempt at c. It performs no I/O.
//
// Logic Flow:
//  1. No error stops the search.
//  2. Fatal errors, safety verdicts, a missing credential and, when the policy
//     asks for it, invalid-argument failures abort.
//  3. Otherwise the search advances to the next model of the same credential,
//     then to the first model of the next credential, and is exhausted after
//     the last pair.
func Decide(c Cursor, err error, policy Policy) Decision {
	if err == nil {
		return Decision{Action: Stop}
	}
	kind := faults.Classify(err)
	switch {
	case faults.IsFatal(err), kind == faults.KindSafety, kind == faults.KindNoCredential:
		return Decision{Action: Abort, Kind: kind}
	case policy.FailFastInvalidArgument && kind == faults.KindInvalidArgument:
		return Decision{Action: Abort, Kind: kind}
	case c.Model+1 < c.Models:
		return Decision{Action: AdvanceModel, Kind: kind}
	case c.Credential+1 < c.Credentials:
		return Decision{Action: AdvanceCredential, Kind: kind}
	}
	return Decision{Action: Exhausted, Kind: kind}
}

// Next returns the cursor after applying d. Terminal actions leave the
// position unchanged.
func (c Cursor) Next(d Decision) Cursor {
	switch d.Action {
	case AdvanceModel:
		c.Model++
	case AdvanceCredential:
		c.Credential++
		c.Model = 0
	}
	return c
}
