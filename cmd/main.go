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


// Command ltp runs the LTP Chinese language analysis pipeline.
//
// It segments sentences and optionally tags parts of speech, named
// entities, semantic roles, dependency trees and semantic dependency
// graphs with a single exported multi-task model.
//
// Usage:
//
//	ltp run                         # Start the HTTP service
//	ltp analyze "他叫汤姆去拿外衣。"   # Analyze sentences from the command line
//	ltp pull LTP/small              # Download a model from the HuggingFace Hub
//	ltp list                        # List local models
//	ltp tasks                       # Show the tasks a model supports
package main

import (
	"io"

	json "github.com/antflydb/antfly-go/libaf/json"
	"github.com/HIT-SCIR/libltp/cmd/cmd"
	gojson "github.com/goccy/go-json"
)

func init() {
	// Configure the JSON wrapper to use goccy/go-json for performance
	json.SetConfig(json.Config{
		Marshal:   gojson.Marshal,
		Unmarshal: gojson.Unmarshal,
		MarshalString: func(v any) (string, error) {
			data, err := gojson.Marshal(v)
			if err != nil {
				return "", err
			}
			return string(data), nil
		},
		UnmarshalString: func(s string, v any) error {
			return gojson.Unmarshal([]byte(s), v)
		},
		NewEncoder: func(w io.Writer) json.Encoder {
			return gojson.NewEncoder(w)
		},
		NewDecoder: func(r io.Reader) json.Decoder {
			return gojson.NewDecoder(r)
		},
	})
}

// main.version is set by GoReleaser from the current git tag.
var version = "dev"

func main() {
	cmd.Version = version
	cmd.Execute()
}
