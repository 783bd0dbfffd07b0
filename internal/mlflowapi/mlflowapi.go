// Package mlflowapi holds the MLflow model-registry REST wire types shared by the
// mlflow client and the mlflowserver handler. Prompts are registered models tagged
// mlflow.prompt.is_prompt=true; the body lives in the mlflow.prompt.text version tag.
package mlflowapi

import (
	"maps"
	"slices"
	"strconv"
	"strings"
)

// BasePath prefixes every endpoint.
const BasePath = "/api/2.0/mlflow"

// Endpoints relative to BasePath.
const (
	PathCreateRegisteredModel = "/registered-models/create"
	PathGetRegisteredModel    = "/registered-models/get"
	PathSetRegisteredModelTag = "/registered-models/set-tag"
	PathAlias                 = "/registered-models/alias"
	PathCreateModelVersion    = "/model-versions/create"
	PathGetModelVersion       = "/model-versions/get"
	PathSearchModelVersions   = "/model-versions/search"
)

// Reserved tag keys.
const (
	TagIsPrompt   = "mlflow.prompt.is_prompt"
	TagPromptText = "mlflow.prompt.text"

	// ReservedPrefix marks tags owned by MLflow itself; they are not reported as user tags.
	ReservedPrefix = "mlflow."
)

// PromptSource is the artifact source sent with every prompt version; prompts have no artifacts.
const PromptSource = "dummy-source"

// Error codes returned in ErrorResponse.ErrorCode.
const (
	CodeNotFound        = "RESOURCE_DOES_NOT_EXIST"
	CodeAlreadyExists   = "RESOURCE_ALREADY_EXISTS"
	CodeInvalidParam    = "INVALID_PARAMETER_VALUE"
	CodeInternal        = "INTERNAL_ERROR"
	CodeUnauthenticated = "UNAUTHENTICATED"
)

// Tag is a key/value pair on a registered model or model version.
type Tag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// RegisteredModelAlias maps an alias to a version number (as a string).
type RegisteredModelAlias struct {
	Alias   string `json:"alias"`
	Version string `json:"version"`
}

// RegisteredModel is the name-level record.
type RegisteredModel struct {
	Name                 string                 `json:"name"`
	CreationTimestamp    int64                  `json:"creation_timestamp,omitempty"`
	LastUpdatedTimestamp int64                  `json:"last_updated_timestamp,omitempty"`
	Description          string                 `json:"description,omitempty"`
	Tags                 []Tag                  `json:"tags,omitempty"`
	Aliases              []RegisteredModelAlias `json:"aliases,omitempty"`
}

// ModelVersion is one immutable version.
type ModelVersion struct {
	Name                 string   `json:"name"`
	Version              string   `json:"version"`
	CreationTimestamp    int64    `json:"creation_timestamp,omitempty"`
	LastUpdatedTimestamp int64    `json:"last_updated_timestamp,omitempty"`
	Description          string   `json:"description,omitempty"`
	Source               string   `json:"source,omitempty"`
	Status               string   `json:"status,omitempty"`
	Tags                 []Tag    `json:"tags,omitempty"`
	Aliases              []string `json:"aliases,omitempty"`
}

// CreateRegisteredModelRequest is the body of registered-models/create.
type CreateRegisteredModelRequest struct {
	Name        string `json:"name"`
	Tags        []Tag  `json:"tags,omitempty"`
	Description string `json:"description,omitempty"`
}

// RegisteredModelResponse is returned by registered-models/create and registered-models/get.
type RegisteredModelResponse struct {
	RegisteredModel *RegisteredModel `json:"registered_model"`
}

// SetRegisteredModelTagRequest is the body of registered-models/set-tag.
type SetRegisteredModelTagRequest struct {
	Name  string `json:"name"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

// CreateModelVersionRequest is the body of model-versions/create.
type CreateModelVersionRequest struct {
	Name        string `json:"name"`
	Source      string `json:"source"`
	Description string `json:"description,omitempty"`
	Tags        []Tag  `json:"tags,omitempty"`
}

// ModelVersionResponse is returned by model-versions/create, model-versions/get and
// GET registered-models/alias.
type ModelVersionResponse struct {
	ModelVersion *ModelVersion `json:"model_version"`
}

// SetAliasRequest is the body of POST registered-models/alias.
type SetAliasRequest struct {
	Name    string `json:"name"`
	Alias   string `json:"alias"`
	Version string `json:"version"`
}

// SearchModelVersionsResponse is returned by model-versions/search.
type SearchModelVersionsResponse struct {
	ModelVersions []ModelVersion `json:"model_versions,omitempty"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

// TagsFromMap converts m to a tag list sorted by key.
func TagsFromMap(m map[string]string) []Tag {
	keys := slices.Sorted(maps.Keys(m))
	out := make([]Tag, 0, len(keys))
	for _, k := range keys {
		out = append(out, Tag{Key: k, Value: m[k]})
	}
	return out
}

// UserTags returns tags as a map, dropping keys with ReservedPrefix.
func UserTags(tags []Tag) map[string]string {
	out := make(map[string]string, len(tags))
	for _, t := range tags {
		if strings.HasPrefix(t.Key, ReservedPrefix) {
			continue
		}
		out[t.Key] = t.Value
	}
	return out
}

// TagValue returns the value of key in tags.
func TagValue(tags []Tag, key string) (string, bool) {
	for _, t := range tags {
		if t.Key == key {
			return t.Value, true
		}
	}
	return "", false
}

// NameFilter builds the search filter selecting every version of name.
func NameFilter(name string) string {
	return "name='" + strings.ReplaceAll(name, "'", `\'`) + "'"
}

// ParseNameFilter is the inverse of NameFilter. It reports false for any other filter.
func ParseNameFilter(filter string) (string, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(filter), "name=")
	if !ok || len(rest) < 2 || rest[0] != '\'' || rest[len(rest)-1] != '\'' {
		return "", false
	}
	return strings.ReplaceAll(rest[1:len(rest)-1], `\'`, "'"), true
}

// FormatVersion renders a version number the way the API carries it.
func FormatVersion(v int) string { return strconv.Itoa(v) }

// ParseVersion parses a version string. It reports false for anything but a positive integer.
func ParseVersion(s string) (int, bool) {
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return 0, false
	}
	return v, true
}
