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

package workflow

import (
	"github.com/jaycherian/gcp-go-media-studio/internal/core/commands"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/cor"
	"github.com/jaycherian/gcp-go-media-studio/internal/core/production"
)

// RequestWorkflow handles a production request message: it reads and
// validates the request, then opens and runs its batch. It is the command of
// the Pub/Sub listener.
type RequestWorkflow struct {
	cor.BaseCommand
	chain cor.Chain
}

// NewRequestWorkflow creates the workflow. register, when not nil, sees every
// opened batch before it runs.
func NewRequestWorkflow(runner commands.BatchRunner, register func(*production.Batch)) *RequestWorkflow {
	chain := cor.NewBaseChain("production-request")
	chain.AddCommand(commands.NewRequestReader("read-request"))
	chain.AddCommand(commands.NewBatchProducer("produce-batch", runner, register))
	return &RequestWorkflow{BaseCommand: *cor.NewBaseCommand("production-request-workflow"), chain: chain}
}

func (w *RequestWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
}
