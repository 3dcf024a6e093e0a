package printer

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	var out, errOut bytes.Buffer
	SetOutput(&out, &errOut)
	t.Cleanup(func() {
		SetOutput(nil, nil)
		color.NoColor = prev
	})
	return &out, &errOut
}

func TestError(t *testing.T) {
	t.Run("returns error with title", func(t *testing.T) {
		capture(t)
		err := Error("Test Error", "This is a test error", []string{})
		require.Error(t, err)
		require.Equal(t, "Test Error", err.Error())
	})

	t.Run("single suggestion is printed plainly", func(t *testing.T) {
		_, errOut := capture(t)
		err := Error("Test Error", "Explanation", []string{"Try this fix"})
		require.Error(t, err)
		assert.Contains(t, errOut.String(), "Explanation\n\nTry this fix\n")
		assert.NotContains(t, errOut.String(), "Either:")
	})

	t.Run("multiple suggestions are numbered", func(t *testing.T) {
		_, errOut := capture(t)
		err := Error("Test Error", "Explanation", []string{
			"First option",
			"Second option",
		})
		require.Error(t, err)
		assert.Contains(t, errOut.String(), "Either:\n  1. First option\n  2. Second option\n")
	})
}

func TestErrorWithContext(t *testing.T) {
	_, errOut := capture(t)
	context := map[string]string{
		"Slot":     "2",
		"Location": "/saves/2.sav",
	}
	err := ErrorWithContext("Test Error", "Explanation", context, []string{"Fix it"})
	require.Error(t, err)
	require.Equal(t, "Test Error", err.Error())

	output := errOut.String()
	assert.Less(t, strings.Index(output, "Location:"), strings.Index(output, "Slot:"), "context keys are sorted")
}

func TestOutputHelpers(t *testing.T) {
	out, errOut := capture(t)

	Success("saved slot %d\n", 2)
	Success("✓ already marked\n")
	Warning("slot %d missing\n", 4)
	Step("loading\n")
	Info("plain %s\n", "info")
	Step("→ already stepped\n")
	Println("line")

	output := out.String()
	assert.Contains(t, output, "✓ saved slot 2\n")
	assert.Contains(t, output, "✓ already marked\n")
	assert.NotContains(t, output, "✓ ✓")
	assert.Contains(t, output, "⚠️  slot 4 missing\n")
	assert.Contains(t, output, "→ loading\n")
	assert.Contains(t, output, "plain info\n")
	assert.Contains(t, output, "line\n")
	assert.Contains(t, output, "→ already stepped\n")
	assert.NotContains(t, output, "→ →")
	assert.Empty(t, errOut.String())
	assert.Same(t, out, Out())
}
