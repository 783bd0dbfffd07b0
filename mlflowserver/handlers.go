package mlflowserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/skosovsky/promptreg"
	"github.com/skosovsky/promptreg/internal/mlflowapi"

	"go.uber.org/zap"
)

// maxRequestBody limits JSON request bodies.
const maxRequestBody = 1 << 20

const (
	defaultMaxResults = 100
	maxMaxResults     = 1000
)

func (s *Server) createRegisteredModel(w http.ResponseWriter, r *http.Request) {
	var req mlflowapi.CreateRegisteredModelRequest
	if !decode(w, r, &req) {
		return
	}
	if v, _ := mlflowapi.TagValue(req.Tags, mlflowapi.TagIsPrompt); v != "true" {
		writeError(w, http.StatusBadRequest, mlflowapi.CodeInvalidParam,
			"only prompts are supported: tag "+mlflowapi.TagIsPrompt+"=true is required")
		return
	}
	if err := s.backend.CreatePrompt(r.Context(), req.Name, mlflowapi.UserTags(req.Tags)); err != nil {
		s.fail(w, err)
		return
	}
	s.writeRegisteredModel(w, r, req.Name)
}

func (s *Server) getRegisteredModel(w http.ResponseWriter, r *http.Request) {
	s.writeRegisteredModel(w, r, r.URL.Query().Get("name"))
}

func (s *Server) writeRegisteredModel(w http.ResponseWriter, r *http.Request, name string) {
	p, err := s.backend.GetPrompt(r.Context(), name)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mlflowapi.RegisteredModelResponse{RegisteredModel: toRegisteredModel(p)})
}

func (s *Server) setRegisteredModelTag(w http.ResponseWriter, r *http.Request) {
	var req mlflowapi.SetRegisteredModelTagRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Key == "" {
		writeError(w, http.StatusBadRequest, mlflowapi.CodeInvalidParam, "tag key must not be empty")
		return
	}
	if !strings.HasPrefix(req.Key, mlflowapi.ReservedPrefix) {
		if err := s.backend.SetPromptTag(r.Context(), req.Name, req.Key, req.Value); err != nil {
			s.fail(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) createModelVersion(w http.ResponseWriter, r *http.Request) {
	var req mlflowapi.CreateModelVersionRequest
	if !decode(w, r, &req) {
		return
	}
	if v, _ := mlflowapi.TagValue(req.Tags, mlflowapi.TagIsPrompt); v != "true" {
		writeError(w, http.StatusBadRequest, mlflowapi.CodeInvalidParam,
			"only prompt versions are supported: tag "+mlflowapi.TagIsPrompt+"=true is required")
		return
	}
	body, ok := mlflowapi.TagValue(req.Tags, mlflowapi.TagPromptText)
	if !ok || body == "" {
		writeError(w, http.StatusBadRequest, mlflowapi.CodeInvalidParam,
			"tag "+mlflowapi.TagPromptText+" must carry the prompt template")
		return
	}
	if _, err := s.backend.GetPrompt(r.Context(), req.Name); err != nil {
		s.fail(w, err)
		return
	}
	tpl, err := s.backend.CreateVersion(r.Context(), promptreg.VersionRequest{
		Name:          req.Name,
		Body:          body,
		CommitMessage: req.Description,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	s.logger.Info("created prompt version", zap.String("name", tpl.Name), zap.Int("version", tpl.Version))
	writeJSON(w, http.StatusOK, mlflowapi.ModelVersionResponse{ModelVersion: toModelVersion(tpl)})
}

func (s *Server) getModelVersion(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	version, ok := mlflowapi.ParseVersion(q.Get("version"))
	if !ok {
		writeError(w, http.StatusBadRequest, mlflowapi.CodeInvalidParam,
			fmt.Sprintf("invalid version %q", q.Get("version")))
		return
	}
	tpl, err := s.backend.GetVersion(r.Context(), q.Get("name"), version)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mlflowapi.ModelVersionResponse{ModelVersion: toModelVersion(tpl)})
}

func (s *Server) searchModelVersions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name, ok := mlflowapi.ParseNameFilter(q.Get("filter"))
	if !ok {
		writeError(w, http.StatusBadRequest, mlflowapi.CodeInvalidParam,
			fmt.Sprintf("unsupported filter %q: only name='<prompt>' is supported", q.Get("filter")))
		return
	}
	limit := defaultMaxResults
	if raw := q.Get("max_results"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxMaxResults {
			writeError(w, http.StatusBadRequest, mlflowapi.CodeInvalidParam, fmt.Sprintf("invalid max_results %q", raw))
			return
		}
		limit = n
	}
	offset := 0
	if raw := q.Get("page_token"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, mlflowapi.CodeInvalidParam, fmt.Sprintf("invalid page_token %q", raw))
			return
		}
		offset = n
	}

	versions, err := s.backend.ListVersions(r.Context(), name)
	if errors.Is(err, promptreg.ErrNotFound) {
		versions, err = nil, nil
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	var resp mlflowapi.SearchModelVersionsResponse
	end := min(offset+limit, len(versions))
	for i := offset; i < end; i++ {
		resp.ModelVersions = append(resp.ModelVersions, *toModelVersion(versions[i]))
	}
	if end < len(versions) {
		resp.NextPageToken = strconv.Itoa(end)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getByAlias(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tpl, err := s.backend.GetByAlias(r.Context(), q.Get("name"), q.Get("alias"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mlflowapi.ModelVersionResponse{ModelVersion: toModelVersion(tpl)})
}

func (s *Server) setAlias(w http.ResponseWriter, r *http.Request) {
	var req mlflowapi.SetAliasRequest
	if !decode(w, r, &req) {
		return
	}
	if err := promptreg.ValidateAlias(req.Alias); err != nil {
		s.fail(w, err)
		return
	}
	version, ok := mlflowapi.ParseVersion(req.Version)
	if !ok {
		writeError(w, http.StatusBadRequest, mlflowapi.CodeInvalidParam, fmt.Sprintf("invalid version %q", req.Version))
		return
	}
	if err := s.backend.SetAlias(r.Context(), req.Name, req.Alias, version); err != nil {
		s.fail(w, err)
		return
	}
	s.logger.Info("set alias", zap.String("name", req.Name), zap.String("alias", req.Alias), zap.Int("version", version))
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) deleteAlias(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if err := s.backend.DeleteAlias(r.Context(), q.Get("name"), q.Get("alias")); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

// fail maps a store error to an MLflow error response.
func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, promptreg.ErrNotFound), errors.Is(err, promptreg.ErrVersionNotFound):
		writeError(w, http.StatusNotFound, mlflowapi.CodeNotFound, err.Error())
	case errors.Is(err, promptreg.ErrAlreadyExists):
		writeError(w, http.StatusBadRequest, mlflowapi.CodeAlreadyExists, err.Error())
	case errors.Is(err, promptreg.ErrInvalidTemplate),
		errors.Is(err, promptreg.ErrInvalidName),
		errors.Is(err, promptreg.ErrInvalidAlias):
		writeError(w, http.StatusBadRequest, mlflowapi.CodeInvalidParam, err.Error())
	default:
		s.logger.Error("backend failure", zap.Error(err))
		writeError(w, http.StatusInternalServerError, mlflowapi.CodeInternal, err.Error())
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, mlflowapi.CodeInvalidParam, "malformed JSON body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, mlflowapi.ErrorResponse{ErrorCode: code, Message: msg})
}

func toRegisteredModel(p *promptreg.Prompt) *mlflowapi.RegisteredModel {
	tags := maps.Clone(p.Tags)
	if tags == nil {
		tags = make(map[string]string)
	}
	tags[mlflowapi.TagIsPrompt] = "true"
	rm := &mlflowapi.RegisteredModel{
		Name: p.Name,
		Tags: mlflowapi.TagsFromMap(tags),
	}
	if !p.CreatedAt.IsZero() {
		rm.CreationTimestamp = p.CreatedAt.UnixMilli()
	}
	for _, alias := range slices.Sorted(maps.Keys(p.Aliases)) {
		rm.Aliases = append(rm.Aliases, mlflowapi.RegisteredModelAlias{
			Alias:   alias,
			Version: mlflowapi.FormatVersion(p.Aliases[alias]),
		})
	}
	return rm
}

func toModelVersion(tpl *promptreg.Template) *mlflowapi.ModelVersion {
	mv := &mlflowapi.ModelVersion{
		Name:        tpl.Name,
		Version:     mlflowapi.FormatVersion(tpl.Version),
		Description: tpl.CommitMessage,
		Source:      mlflowapi.PromptSource,
		Status:      "READY",
		Tags: []mlflowapi.Tag{
			{Key: mlflowapi.TagIsPrompt, Value: "true"},
			{Key: mlflowapi.TagPromptText, Value: tpl.Body},
		},
		Aliases: tpl.Aliases,
	}
	if !tpl.CreatedAt.IsZero() {
		mv.CreationTimestamp = tpl.CreatedAt.UnixMilli()
		mv.LastUpdatedTimestamp = mv.CreationTimestamp
	}
	return mv
}
