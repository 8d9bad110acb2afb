package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitError(t *testing.T) {
	err := NewExitError(ExitCommandError, "bad input")
	assert.Equal(t, "bad input", err.Error())
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	cause := fmt.Errorf("disk full")
	wrapped := WrapExitError(ExitFailure, "write", cause)
	assert.Equal(t, "write: disk full", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)

	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("outer: %w", err)))
	assert.Equal(t, ExitFailure, GetExitCode(fmt.Errorf("plain")))
}

func TestPrinter_Print(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var out bytes.Buffer
		p := &Printer{Format: "json", Out: &out}
		require.NoError(t, p.Print([]int{1, 2}, func(io.Writer) { t.Fatal("text writer called in json mode") }))

		var resp struct {
			Status string `json:"status"`
			Data   []int  `json:"data"`
		}
		require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, []int{1, 2}, resp.Data)
	})

	t.Run("text", func(t *testing.T) {
		var out bytes.Buffer
		p := &Printer{Format: "text", Out: &out}
		require.NoError(t, p.Print(nil, func(w io.Writer) { fmt.Fprint(w, "hello") }))
		assert.Equal(t, "hello", out.String())
	})
}

func TestPrinter_Fail(t *testing.T) {
	t.Run("json goes to out", func(t *testing.T) {
		var out, errOut bytes.Buffer
		p := &Printer{Format: "json", Out: &out, Err: &errOut}
		err := p.Fail(ExitFailure, CodeNotFound, "no entity")
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Empty(t, errOut.String())

		var resp Response
		require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
		assert.Equal(t, "error", resp.Status)
		require.NotNil(t, resp.Error)
		assert.Equal(t, CodeNotFound, resp.Error.Code)
		assert.Equal(t, "no entity", resp.Error.Message)
	})

	t.Run("text goes to err", func(t *testing.T) {
		var out, errOut bytes.Buffer
		p := &Printer{Format: "text", Out: &out, Err: &errOut}
		err := p.Fail(ExitCommandError, CodeInvalidArg, "bad flag")
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Empty(t, out.String())
		assert.Equal(t, "Error [INVALID_ARGUMENT]: bad flag\n", errOut.String())
	})
}

func TestPrinter_Debugf(t *testing.T) {
	var errOut bytes.Buffer
	p := &Printer{Format: "json", Err: &errOut}
	p.Debugf("hidden %d", 1)
	assert.Empty(t, errOut.String())

	p.Verbose = true
	p.Debugf("shown %d", 2)
	assert.Equal(t, "shown 2\n", errOut.String())
}

func TestExitError_Reported(t *testing.T) {
	assert.False(t, NewExitError(ExitFailure, "x").Reported())

	p := &Printer{Format: "text", Out: io.Discard, Err: io.Discard}
	var exitErr *ExitError
	require.ErrorAs(t, p.Fail(ExitFailure, CodeNotFound, "x"), &exitErr)
	assert.True(t, exitErr.Reported())
}
