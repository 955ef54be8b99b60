// Copyright 2025 Antfly, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pipelines

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline failures.
type Kind uint8

const (
	// KindIO is a failure reading a model resource.
	KindIO Kind = iota + 1
	// KindDeserialize is a malformed model resource.
	KindDeserialize
	// KindEngine is a rejected scoring-engine call or a mismatched output list.
	KindEngine
	// KindTensorExtract is an output tensor of unexpected type, rank or content.
	KindTensorExtract
	// KindShape is a batch whose tensors disagree with the packed layout.
	KindShape
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindDeserialize:
		return "deserialize"
	case KindEngine:
		return "engine"
	case KindTensorExtract:
		return "tensor extract"
	case KindShape:
		return "shape"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Error is the single error type returned by the pipeline.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("ltp %s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of a pipeline error, or 0 for other errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func newError(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}
