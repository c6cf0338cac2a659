package protocol

import (
	"encoding/json"
)

// Params are the request parameters of an operation. They are opaque to
// the client and serialized verbatim as the start payload; Extra carries
// any additional keys the server understands.
type Params struct {
	Query         string                 `json:"query" yaml:"query"`
	Variables     map[string]interface{} `json:"variables,omitempty" yaml:"variables"`
	OperationName string                 `json:"operationName,omitempty" yaml:"operationName"`
	Extensions    map[string]interface{} `json:"extensions,omitempty" yaml:"extensions"`
	Extra         map[string]interface{} `json:"-" yaml:"extra"`
}

// GetQuery gets the query
func (p Params) GetQuery() string {
	return p.Query
}

// GetOperationName gets the operation name
func (p Params) GetOperationName() string {
	return p.OperationName
}

// GetVariables gets the variables
func (p Params) GetVariables() map[string]interface{} {
	if p.Variables == nil {
		return map[string]interface{}{}
	}
	return p.Variables
}

// MarshalJSON merges the free-form keys with the well-known ones. The
// well-known fields win on conflict.
func (p Params) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{}, len(p.Extra)+4)
	for k, v := range p.Extra {
		m[k] = v
	}

	m["query"] = p.Query
	if p.Variables != nil {
		m["variables"] = p.Variables
	}
	if p.OperationName != "" {
		m["operationName"] = p.OperationName
	}
	if p.Extensions != nil {
		m["extensions"] = p.Extensions
	}

	return json.Marshal(m)
}

// UnmarshalJSON splits a payload into the well-known fields and Extra
func (p *Params) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	known := map[string]interface{}{
		"query":         &p.Query,
		"variables":     &p.Variables,
		"operationName": &p.OperationName,
		"extensions":    &p.Extensions,
	}

	for k, v := range raw {
		if target, ok := known[k]; ok {
			if string(v) == "null" {
				continue
			}
			if err := json.Unmarshal(v, target); err != nil {
				return err
			}
			continue
		}

		if p.Extra == nil {
			p.Extra = map[string]interface{}{}
		}

		var value interface{}
		if err := json.Unmarshal(v, &value); err != nil {
			return err
		}
		p.Extra[k] = value
	}

	return nil
}
