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


package modelhub

import (
	"fmt"
	"path/filepath"
	"strings"
)

// RepoRef names a model repository on the HuggingFace Hub.
type RepoRef struct {
	// Owner is the user or organization, e.g. "LTP".
	Owner string
	// Name is the repository name, e.g. "small".
	Name string
	// Revision is a branch, tag or commit. Empty means the default branch.
	Revision string
}

// RepoID returns "owner/name".
func (r RepoRef) RepoID() string {
	return r.Owner + "/" + r.Name
}

// DirPath returns the directory of the model below a models directory.
func (r RepoRef) DirPath() string {
	return filepath.Join(r.Owner, r.Name)
}

func (r RepoRef) String() string {
	if r.Revision == "" {
		return r.RepoID()
	}
	return r.RepoID() + "@" + r.Revision
}

// ParseRepoID parses a repository reference:
//
//	"LTP/small"          -> Owner: LTP, Name: small
//	"hf:LTP/small"       -> same
//	"LTP/small@v4.2.0"   -> same, Revision: v4.2.0
func ParseRepoID(ref string) (RepoRef, error) {
	ref = strings.TrimPrefix(strings.TrimSpace(ref), "hf:")
	if ref == "" {
		return RepoRef{}, fmt.Errorf("empty repository reference")
	}

	var out RepoRef
	if idx := strings.LastIndex(ref, "@"); idx != -1 {
		out.Revision = ref[idx+1:]
		ref = ref[:idx]
		if out.Revision == "" {
			return RepoRef{}, fmt.Errorf("empty revision in %q", ref)
		}
	}

	owner, name, ok := strings.Cut(ref, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return RepoRef{}, fmt.Errorf("repository reference %q must have the form owner/name", ref)
	}
	out.Owner, out.Name = owner, name
	return out, nil
}
