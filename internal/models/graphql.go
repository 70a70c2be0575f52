package models

import "encoding/json"

// GraphQLRequest is the POST body sent to the console's GraphQL endpoint
type GraphQLRequest struct {
	OperationName string                 `json:"operationName"`
	Variables     map[string]interface{} `json:"variables"`
	Query         string                 `json:"query"`
}

// GraphQLErrorEntry is one element of a GraphQL errors array
type GraphQLErrorEntry struct {
	Message string        `json:"message"`
	Path    []interface{} `json:"path,omitempty"`
}

// GraphQLEnvelope is a decoded GraphQL response
type GraphQLEnvelope struct {
	Data   json.RawMessage     `json:"data"`
	Errors []GraphQLErrorEntry `json:"errors,omitempty"`
}
