package utils

import (
	"encoding/json"
	"fmt"

	"github.com/graphql-go/graphql/gqlerrors"
	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/source"
)

// GetOperationAST
func GetOperationAST(nodes *ast.Document, operationName string) (*ast.OperationDefinition, error) {
	var operation *ast.OperationDefinition

	for _, def := range nodes.Definitions {
		switch def := def.(type) {
		case *ast.OperationDefinition:
			if operationName == "" && operation != nil {
				return nil, fmt.Errorf("must provide operation name if query contains multiple operations")
			}
			if operationName == "" || (def.GetName() != nil && def.GetName().Value == operationName) {
				operation = def
			}
		}
	}

	return operation, nil
}

func ParseQuery(query string) (*ast.Document, error) {
	return parser.Parse(parser.ParseParams{
		Source: source.NewSource(&source.Source{
			Body: []byte(query),
			Name: "GraphQL request",
		}),
	})
}

// OperationName returns a human readable name for an operation, used to
// label log entries. Queries that fail to parse are labelled, not rejected.
func OperationName(query, operationName string) string {
	if operationName != "" {
		return operationName
	}

	doc, err := ParseQuery(query)
	if err != nil {
		return "Unparsed Operation"
	}

	op, err := GetOperationAST(doc, "")
	if err != nil || op == nil {
		return "Unnamed Operation"
	}

	if op.GetName() != nil && op.GetName().Value != "" {
		return op.GetName().Value
	}

	return "Unnamed " + op.Operation
}

// ReMarshal converts one type to another
func ReMarshal(in, out interface{}) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

type errorsPayload struct {
	Errors  gqlerrors.FormattedErrors `json:"errors"`
	Message string                    `json:"message"`
}

// FirstError extracts the first error of an error message payload. The
// payload is normally {"errors":[...]} but servers also send a bare
// {"message":"..."} for connection errors.
func FirstError(payload json.RawMessage) error {
	if len(payload) > 0 {
		p := errorsPayload{}
		if err := json.Unmarshal(payload, &p); err == nil {
			if len(p.Errors) > 0 {
				return p.Errors[0]
			}
			if p.Message != "" {
				return gqlerrors.NewFormattedError(p.Message)
			}
		}

		// a list of errors as the payload itself
		errs := gqlerrors.FormattedErrors{}
		if err := json.Unmarshal(payload, &errs); err == nil && len(errs) > 0 {
			return errs[0]
		}
	}

	return gqlerrors.NewFormattedError("unspecified error")
}
