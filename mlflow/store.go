package mlflow

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/skosovsky/promptreg"
	"github.com/skosovsky/promptreg/internal/mlflowapi"

	"go.uber.org/zap"
)

// Ensures Client implements the promptreg capability interfaces.
var (
	_ promptreg.Store         = (*Client)(nil)
	_ promptreg.VersionLister = (*Client)(nil)
	_ promptreg.AliasDeleter  = (*Client)(nil)
	_ promptreg.PromptManager = (*Client)(nil)
)

// CreateVersion makes sure the prompt exists with req.Tags, then creates a version
// carrying the body and commit message. The server assigns the version number.
func (c *Client) CreateVersion(ctx context.Context, req promptreg.VersionRequest) (*promptreg.Template, error) {
	if err := c.ensurePrompt(ctx, req.Name, req.Tags); err != nil {
		return nil, err
	}
	var resp mlflowapi.ModelVersionResponse
	err := c.do(ctx, http.MethodPost, mlflowapi.PathCreateModelVersion, nil, mlflowapi.CreateModelVersionRequest{
		Name:        req.Name,
		Source:      mlflowapi.PromptSource,
		Description: req.CommitMessage,
		Tags: []mlflowapi.Tag{
			{Key: mlflowapi.TagIsPrompt, Value: "true"},
			{Key: mlflowapi.TagPromptText, Value: req.Body},
		},
	}, &resp)
	if err != nil {
		return nil, err
	}
	return c.withPromptTags(ctx, resp.ModelVersion)
}

// ensurePrompt creates the registered model or, if it already exists, sets each tag on it.
// Concurrent calls for the same name and tags share one round trip.
func (c *Client) ensurePrompt(ctx context.Context, name string, tags map[string]string) error {
	key := name
	for _, t := range mlflowapi.TagsFromMap(tags) {
		key += "\x00" + t.Key + "=" + t.Value
	}
	_, err, shared := c.sf.Do(key, func() (any, error) {
		ctx, cancel := detachCancel(ctx)
		defer cancel()
		err := c.CreatePrompt(ctx, name, tags)
		if !isCode(err, mlflowapi.CodeAlreadyExists) {
			return nil, err
		}
		for _, t := range mlflowapi.TagsFromMap(tags) {
			if err := c.SetPromptTag(ctx, name, t.Key, t.Value); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if shared {
		c.logger.Debug("ensure prompt shared", zap.String("name", name))
	}
	return err
}

// CreatePrompt creates the registered model flagged as a prompt.
// Returns an error wrapping ErrAlreadyExists if name exists.
func (c *Client) CreatePrompt(ctx context.Context, name string, tags map[string]string) error {
	all := []mlflowapi.Tag{{Key: mlflowapi.TagIsPrompt, Value: "true"}}
	all = append(all, mlflowapi.TagsFromMap(tags)...)
	return c.do(ctx, http.MethodPost, mlflowapi.PathCreateRegisteredModel, nil,
		mlflowapi.CreateRegisteredModelRequest{Name: name, Tags: all}, nil)
}

// GetPrompt returns the registered model's user tags and aliases.
func (c *Client) GetPrompt(ctx context.Context, name string) (*promptreg.Prompt, error) {
	var resp mlflowapi.RegisteredModelResponse
	q := url.Values{"name": {name}}
	if err := c.do(ctx, http.MethodGet, mlflowapi.PathGetRegisteredModel, q, nil, &resp); err != nil {
		return nil, err
	}
	rm := resp.RegisteredModel
	if rm == nil {
		return nil, fmt.Errorf("%w: mlflow: empty registered_model for %q", promptreg.ErrRegistryUnavailable, name)
	}
	if v, _ := mlflowapi.TagValue(rm.Tags, mlflowapi.TagIsPrompt); v != "true" {
		return nil, fmt.Errorf("%w: %q is a model, not a prompt", promptreg.ErrNotFound, name)
	}
	p := &promptreg.Prompt{
		Name:    rm.Name,
		Tags:    mlflowapi.UserTags(rm.Tags),
		Aliases: make(map[string]int, len(rm.Aliases)),
	}
	if rm.CreationTimestamp > 0 {
		p.CreatedAt = time.UnixMilli(rm.CreationTimestamp).UTC()
	}
	for _, a := range rm.Aliases {
		if v, ok := mlflowapi.ParseVersion(a.Version); ok {
			p.Aliases[a.Alias] = v
		}
	}
	return p, nil
}

// SetPromptTag sets one tag on the registered model.
func (c *Client) SetPromptTag(ctx context.Context, name, key, value string) error {
	return c.do(ctx, http.MethodPost, mlflowapi.PathSetRegisteredModelTag, nil,
		mlflowapi.SetRegisteredModelTagRequest{Name: name, Key: key, Value: value}, nil)
}

// SetAlias points alias at version. A missing prompt or version is reported as
// ErrVersionNotFound and a rejected parameter as ErrInvalidAlias.
func (c *Client) SetAlias(ctx context.Context, name, alias string, version int) error {
	err := c.do(ctx, http.MethodPost, mlflowapi.PathAlias, nil, mlflowapi.SetAliasRequest{
		Name:    name,
		Alias:   alias,
		Version: mlflowapi.FormatVersion(version),
	}, nil)
	err = reclassify(err, promptreg.ErrNotFound, promptreg.ErrVersionNotFound)
	return reclassify(err, promptreg.ErrInvalidTemplate, promptreg.ErrInvalidAlias)
}

// GetVersion fetches one version and its prompt's tags.
func (c *Client) GetVersion(ctx context.Context, name string, version int) (*promptreg.Template, error) {
	var resp mlflowapi.ModelVersionResponse
	q := url.Values{"name": {name}, "version": {mlflowapi.FormatVersion(version)}}
	if err := c.do(ctx, http.MethodGet, mlflowapi.PathGetModelVersion, q, nil, &resp); err != nil {
		return nil, err
	}
	return c.withPromptTags(ctx, resp.ModelVersion)
}

// GetByAlias fetches the version alias points at.
func (c *Client) GetByAlias(ctx context.Context, name, alias string) (*promptreg.Template, error) {
	var resp mlflowapi.ModelVersionResponse
	q := url.Values{"name": {name}, "alias": {alias}}
	if err := c.do(ctx, http.MethodGet, mlflowapi.PathAlias, q, nil, &resp); err != nil {
		return nil, err
	}
	return c.withPromptTags(ctx, resp.ModelVersion)
}

// ListVersions pages through model-versions/search and returns every version, oldest first.
func (c *Client) ListVersions(ctx context.Context, name string) ([]*promptreg.Template, error) {
	p, err := c.GetPrompt(ctx, name)
	if err != nil {
		return nil, err
	}
	var out []*promptreg.Template
	token := ""
	for {
		q := url.Values{
			"filter":      {mlflowapi.NameFilter(name)},
			"max_results": {strconv.Itoa(c.pageSize)},
		}
		if token != "" {
			q.Set("page_token", token)
		}
		var resp mlflowapi.SearchModelVersionsResponse
		if err := c.do(ctx, http.MethodGet, mlflowapi.PathSearchModelVersions, q, nil, &resp); err != nil {
			return nil, err
		}
		for i := range resp.ModelVersions {
			tpl, err := toTemplate(&resp.ModelVersions[i])
			if err != nil {
				return nil, err
			}
			out = append(out, tpl)
		}
		if resp.NextPageToken == "" {
			break
		}
		token = resp.NextPageToken
	}
	slices.SortFunc(out, func(a, b *promptreg.Template) int { return a.Version - b.Version })
	for _, tpl := range out {
		tpl.Tags = maps.Clone(p.Tags)
	}
	return out, nil
}

// DeleteAlias removes alias from the registered model.
func (c *Client) DeleteAlias(ctx context.Context, name, alias string) error {
	q := url.Values{"name": {name}, "alias": {alias}}
	return c.do(ctx, http.MethodDelete, mlflowapi.PathAlias, q, nil, nil)
}

func (c *Client) withPromptTags(ctx context.Context, mv *mlflowapi.ModelVersion) (*promptreg.Template, error) {
	tpl, err := toTemplate(mv)
	if err != nil {
		return nil, err
	}
	p, err := c.GetPrompt(ctx, tpl.Name)
	if err != nil {
		return nil, err
	}
	tpl.Tags = p.Tags
	return tpl, nil
}

// toTemplate converts a model version. Versions not flagged as prompts are reported as not found.
func toTemplate(mv *mlflowapi.ModelVersion) (*promptreg.Template, error) {
	if mv == nil {
		return nil, fmt.Errorf("%w: mlflow: empty model_version", promptreg.ErrRegistryUnavailable)
	}
	if v, _ := mlflowapi.TagValue(mv.Tags, mlflowapi.TagIsPrompt); v != "true" {
		return nil, fmt.Errorf("%w: %s version %s is not a prompt", promptreg.ErrNotFound, mv.Name, mv.Version)
	}
	version, ok := mlflowapi.ParseVersion(mv.Version)
	if !ok {
		return nil, fmt.Errorf("%w: mlflow: bad version %q", promptreg.ErrRegistryUnavailable, mv.Version)
	}
	body, _ := mlflowapi.TagValue(mv.Tags, mlflowapi.TagPromptText)
	tpl := &promptreg.Template{
		Name:          mv.Name,
		Version:       version,
		Body:          body,
		CommitMessage: mv.Description,
		Aliases:       slices.Sorted(slices.Values(mv.Aliases)),
	}
	if mv.CreationTimestamp > 0 {
		tpl.CreatedAt = time.UnixMilli(mv.CreationTimestamp).UTC()
	}
	return tpl, nil
}

// detachCancel returns a context that is not cancelled when parent is cancelled,
// but still respects parent's deadline. Work shared through singleflight outlives
// any single caller.
func detachCancel(parent context.Context) (context.Context, context.CancelFunc) {
	ctx := context.WithoutCancel(parent)
	if dl, ok := parent.Deadline(); ok {
		return context.WithDeadline(ctx, dl)
	}
	return context.WithCancel(ctx)
}
