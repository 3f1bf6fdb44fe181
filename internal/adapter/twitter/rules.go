package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/couchcryptid/earthquake-notify/internal/domain"
)

const rulesPath = "/2/tweets/search/stream/rules"

// Rule is a filtered stream rule.
type Rule struct {
	ID    string `json:"id,omitempty"`
	Value string `json:"value"`
	Tag   string `json:"tag,omitempty"`
}

type rulesResponse struct {
	Data   []Rule     `json:"data"`
	Errors []apiError `json:"errors"`
}

type rulesRequest struct {
	Add    []Rule       `json:"add,omitempty"`
	Delete *deleteRules `json:"delete,omitempty"`
}

type deleteRules struct {
	IDs []string `json:"ids"`
}

type apiError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Type   string `json:"type"`
}

func (e apiError) String() string {
	if e.Detail != "" {
		return e.Title + ": " + e.Detail
	}
	return e.Title
}

// PublisherRules returns one author rule per recognized publisher.
func PublisherRules() []Rule {
	publishers := domain.Publishers()
	rules := make([]Rule, 0, len(publishers))
	for _, p := range publishers {
		rules = append(rules, Rule{Value: p.FilterRule(), Tag: domain.FilterTag})
	}
	return rules
}

// Rules lists the rules currently registered for the stream.
func (s *Stream) Rules(ctx context.Context) ([]Rule, error) {
	var resp rulesResponse
	if err := s.doRules(ctx, http.MethodGet, nil, &resp); err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return resp.Data, nil
}

// ReplaceRules deletes every registered rule and installs the publisher rules.
func (s *Stream) ReplaceRules(ctx context.Context) error {
	existing, err := s.Rules(ctx)
	if err != nil {
		return err
	}

	if len(existing) > 0 {
		ids := make([]string, 0, len(existing))
		for _, r := range existing {
			ids = append(ids, r.ID)
		}
		var resp rulesResponse
		if err := s.doRules(ctx, http.MethodPost, &rulesRequest{Delete: &deleteRules{IDs: ids}}, &resp); err != nil {
			return fmt.Errorf("delete rules: %w", err)
		}
		s.logger.Info("stream rules deleted", "count", len(ids))
	}

	add := PublisherRules()
	var resp rulesResponse
	if err := s.doRules(ctx, http.MethodPost, &rulesRequest{Add: add}, &resp); err != nil {
		return fmt.Errorf("add rules: %w", err)
	}
	if len(resp.Errors) > 0 {
		return fmt.Errorf("add rules: %s", resp.Errors[0])
	}
	s.logger.Info("stream rules registered", "rules", len(add), "tag", domain.FilterTag)
	return nil
}

func (s *Stream) doRules(ctx context.Context, method string, body any, out *rulesResponse) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+rulesPath, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	s.authorize(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.apiClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
