package envelope

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ctxErr struct{}

func (ctxErr) Error() string           { return "no user found for twitter_id=bob" }
func (ctxErr) Context() map[string]any { return map[string]any{"field": "twitter_id"} }

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestOK(t *testing.T) {
	res := OK(map[string]string{"tx_hash": "0xabc"})
	assert.False(t, res.IsError)
	assert.JSONEq(t, `{"success":true,"data":{"tx_hash":"0xabc"}}`, text(t, res))
}

func TestFail_PlainError(t *testing.T) {
	res := Fail(errors.New("quote expired"), nil)
	assert.True(t, res.IsError)
	assert.JSONEq(t, `{"success":false,"error":{"message":"quote expired"}}`, text(t, res))
}

func TestFail_MergesContext(t *testing.T) {
	res := Fail(ctxErr{}, map[string]any{"tool": "same_chain_swap"})
	assert.True(t, res.IsError)
	assert.JSONEq(t, `{
		"success": false,
		"error": {
			"message": "no user found for twitter_id=bob",
			"context": {"field": "twitter_id", "tool": "same_chain_swap"}
		}
	}`, text(t, res))
}

func TestFail_WrappedContexter(t *testing.T) {
	wrapped := errors.Join(errors.New("outer"), ctxErr{})
	env, err := Decode(Fail(wrapped, nil))
	require.NoError(t, err)
	assert.Equal(t, "twitter_id", env.Error.Context["field"])
}

func TestResult(t *testing.T) {
	assert.False(t, Result("ok", nil).IsError)
	assert.True(t, Result("ignored", errors.New("x")).IsError)
}

func TestRender_UnencodableData(t *testing.T) {
	res := OK(math.Inf(1))
	assert.True(t, res.IsError)
	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &env))
	assert.False(t, env.Success)
	assert.Contains(t, env.Error.Message, "encode result")
}

func TestRender_UnencodableDataStructuredMatchesText(t *testing.T) {
	res := OK(map[string]any{"ch": make(chan int)})

	structured, ok := res.StructuredContent.(Envelope)
	require.True(t, ok, "structured content is %T", res.StructuredContent)
	assert.False(t, structured.Success)
	assert.Nil(t, structured.Data, "the unencodable value must not leak into structured content")
	require.NotNil(t, structured.Error)
	assert.Contains(t, structured.Error.Message, "encode result")

	env, err := Decode(res)
	require.NoError(t, err)
	assert.Equal(t, structured.Error.Message, env.Error.Message)
}

func TestDecode(t *testing.T) {
	env, err := Decode(OK([]int{1, 2}))
	require.NoError(t, err)
	assert.True(t, env.Success)
	assert.Equal(t, []any{float64(1), float64(2)}, env.Data)

	_, err = Decode(&mcp.CallToolResult{})
	assert.Error(t, err)

	_, err = Decode(&mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent("not json")}})
	assert.Error(t, err)
}
