// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package resources

import "fmt"

// ConfigurationError reports a setting the bridge cannot work without, such as
// a CI queue that has no partition mapping.
type ConfigurationError struct {
	Setting string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Setting, e.Reason)
}

// TagParseError reports an agent query rule that is not of the form key=value.
type TagParseError struct {
	Tag string
}

func (e *TagParseError) Error() string {
	return fmt.Sprintf("malformed tag %q: expected key=value", e.Tag)
}
