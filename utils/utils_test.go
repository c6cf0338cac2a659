package utils_test

import (
	"encoding/json"
	"testing"

	"github.com/bhoriuchi/graphql-ws-client/utils"
	"github.com/graphql-go/graphql/gqlerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstError(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"errors list", `{"errors":[{"message":"first"},{"message":"second"}]}`, "first"},
		{"bare message", `{"message":"prohibited connection"}`, "prohibited connection"},
		{"array payload", `[{"message":"array"}]`, "array"},
		{"empty errors", `{"errors":[]}`, "unspecified error"},
		{"garbage", `42`, "unspecified error"},
		{"missing", ``, "unspecified error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := utils.FirstError(json.RawMessage(tt.payload))
			require.Error(t, err)
			assert.Equal(t, tt.want, err.Error())

			var formatted gqlerrors.FormattedError
			assert.ErrorAs(t, err, &formatted)
		})
	}
}

func TestOperationName(t *testing.T) {
	assert.Equal(t, "Given", utils.OperationName("subscription Other { a }", "Given"))
	assert.Equal(t, "OnTick", utils.OperationName("subscription OnTick { tick }", ""))
	assert.Equal(t, "Unnamed subscription", utils.OperationName("subscription { tick }", ""))
	assert.Equal(t, "Unnamed query", utils.OperationName("{a}", ""))
	assert.Equal(t, "Unparsed Operation", utils.OperationName("subscription {", ""))
	assert.Equal(t, "Unnamed Operation", utils.OperationName("query A { a } query B { b }", ""))
}

func TestReMarshal(t *testing.T) {
	in := map[string]interface{}{"query": "{a}"}
	out := struct {
		Query string `json:"query"`
	}{}

	require.NoError(t, utils.ReMarshal(in, &out))
	assert.Equal(t, "{a}", out.Query)
}
