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

package commands

import (
	"encoding/json"
	"fmt"

	"github.com/jaycherian/gcp-go-media-studio/internal/core/cor"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/model"
)

// RequestReader parses a production request message, applies the defaults
// and validates it.
type RequestReader struct {
	cor.BaseCommand
}

// NewRequestReader creates the reader. The message is read from CtxIn.
func NewRequestReader(name string) *RequestReader {
	return &RequestReader{BaseCommand: *cor.NewBaseCommand(name)}
}

func (c *RequestReader) Execute(context cor.Context) {
	var raw []byte
	switch in := context.Get(c.GetInputParam()).(type) {
	case string:
		raw = []byte(in)
	case []byte:
		raw = in
	default:
		c.Fail(context, fmt.Errorf("unsupported request message of type %T", in))
		return
	}
	var req model.ProductionRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		c.Fail(context, fmt.Errorf("failed to unmarshal production request: %w", err))
		return
	}
	req.ApplyDefaults()
	if err := req.Validate(); err != nil {
		c.Fail(context, err)
		return
	}
	c.Succeed(context)
	context.Add(RequestParam, req)
	context.Add(c.GetOutputParam(), req)
}
