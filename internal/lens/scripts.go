package lens

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// injectImageJS appends an off-screen <img> holding the data URL and returns
// it, or null when the document has no body
const injectImageJS = `(() => {
	if (!document.body) return null;
	const img = document.createElement('img');
	img.src = %s;
	img.style.position = 'absolute';
	img.style.left = '-9999px';
	img.setAttribute('data-lensshot', '1');
	document.body.appendChild(img);
	return img;
})()`

const bodyBoxJS = `(() => {
	if (!document.body) return null;
	const r = document.body.getBoundingClientRect();
	return {x: r.x, y: r.y, width: r.width, height: r.height};
})()`

const pageReadyJS = `document.readyState === 'complete' && !!document.body`

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// dataURL encodes raw image bytes, sniffing the MIME type
func dataURL(data []byte) string {
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func injectScript(data []byte) string {
	return fmt.Sprintf(injectImageJS, jsString(dataURL(data)))
}

// resultsReadyScript is truthy once the page left startURL or, when
// selector is set, an element matching it exists
func resultsReadyScript(startURL, selector string) string {
	var b strings.Builder
	b.WriteString("(() => {\n")
	fmt.Fprintf(&b, "\tif (location.href !== %s) return true;\n", jsString(startURL))
	if selector != "" {
		fmt.Fprintf(&b, "\tif (document.querySelector(%s)) return true;\n", jsString(selector))
	}
	b.WriteString("\treturn false;\n})()")
	return b.String()
}
