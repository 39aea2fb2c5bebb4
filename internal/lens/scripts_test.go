package lens

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 13, 'I', 'H', 'D', 'R'}

func TestDataURL(t *testing.T) {
	url := dataURL(pngHeader)
	assert.True(t, strings.HasPrefix(url, "data:image/png;base64,"))
	assert.True(t, strings.HasSuffix(url, base64.StdEncoding.EncodeToString(pngHeader)))

	jpeg := []byte{0xff, 0xd8, 0xff, 0xe0, 0, 0x10, 'J', 'F', 'I', 'F', 0}
	assert.True(t, strings.HasPrefix(dataURL(jpeg), "data:image/jpeg;base64,"))

	assert.True(t, strings.HasPrefix(dataURL([]byte("plain text")), "data:image/png;base64,"))
}

func TestInjectScript(t *testing.T) {
	script := injectScript(pngHeader)

	assert.Contains(t, script, `img.src = "data:image/png;base64,`)
	assert.Contains(t, script, "-9999px")
	assert.Contains(t, script, "document.body.appendChild(img)")

	guard := strings.Index(script, "if (!document.body) return null;")
	require.GreaterOrEqual(t, guard, 0)
	assert.Less(t, guard, strings.Index(script, "document.body.appendChild(img)"))
}

func TestResultsReadyScript(t *testing.T) {
	script := resultsReadyScript("https://lens.example/search?p", "")
	assert.Contains(t, script, `location.href !== "https://lens.example/search?p"`)
	assert.NotContains(t, script, "querySelector")

	script = resultsReadyScript("https://lens.example/", `div[data-x="1"]`)
	assert.Contains(t, script, `document.querySelector("div[data-x=\"1\"]")`)
}
