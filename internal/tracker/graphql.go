package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// graphQLRequest is the JSON envelope for a GraphQL call.
type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

// graphQLResponse is the common envelope of a GraphQL reply.
type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"errors"`
}

// doGraphQL posts a GraphQL request and returns the raw data payload.
// GraphQL-level errors arrive with HTTP 200, so they are surfaced here
// rather than in the transport layer.
func (c *Client) doGraphQL(ctx context.Context, query string, variables map[string]interface{}) (json.RawMessage, error) {
	data, err := c.doRequest(ctx, http.MethodPost, c.BaseURL+"/graphql", graphQLRequest{
		Query:     query,
		Variables: variables,
	})
	if err != nil {
		return nil, err
	}

	var resp graphQLResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse graphql response: %w", err)
	}
	if len(resp.Errors) > 0 {
		first := resp.Errors[0]
		if first.Type == "NOT_FOUND" {
			return nil, fmt.Errorf("graphql: %s: %w", first.Message, ErrNotFound)
		}
		return nil, fmt.Errorf("graphql error: %s", first.Message)
	}
	return resp.Data, nil
}

// addSubIssueMutation links a child issue under a parent by node ID.
const addSubIssueMutation = `
mutation($parentId: ID!, $childId: ID!) {
  addSubIssue(input: {issueId: $parentId, subIssueId: $childId}) {
    issue { number }
    subIssue { number }
  }
}`

// AddSubIssue links the issue identified by childNodeID as a sub-issue of the
// issue identified by parentNodeID.
func (c *Client) AddSubIssue(ctx context.Context, parentNodeID, childNodeID string) error {
	_, err := c.doGraphQL(ctx, addSubIssueMutation, map[string]interface{}{
		"parentId": parentNodeID,
		"childId":  childNodeID,
	})
	if err != nil {
		return fmt.Errorf("link sub-issue: %w", err)
	}
	return nil
}

// addToProjectMutation adds an item (issue or PR) to a Projects v2 board.
const addToProjectMutation = `
mutation($projectId: ID!, $contentId: ID!) {
  addProjectV2ItemById(input: {projectId: $projectId, contentId: $contentId}) {
    item { id }
  }
}`

// AddToProject adds the item identified by contentNodeID to the project board
// identified by projectNodeID. Returns the created project item ID.
func (c *Client) AddToProject(ctx context.Context, projectNodeID, contentNodeID string) (string, error) {
	data, err := c.doGraphQL(ctx, addToProjectMutation, map[string]interface{}{
		"projectId": projectNodeID,
		"contentId": contentNodeID,
	})
	if err != nil {
		return "", fmt.Errorf("add to project: %w", err)
	}

	var result struct {
		AddProjectV2ItemById struct {
			Item struct {
				ID string `json:"id"`
			} `json:"item"`
		} `json:"addProjectV2ItemById"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("parse project item response: %w", err)
	}
	return result.AddProjectV2ItemById.Item.ID, nil
}
