package report

import (
	"bytes"
	"encoding/json"
	"html/template"
)

// escapeForScriptTag makes a JSON literal safe to inline inside a <script>
// tag: escape '<', '>', '&', and the two line-terminator code points JS
// treats specially inside string literals.
func escapeForScriptTag(data []byte) string {
	var buf bytes.Buffer
	for _, r := range string(data) {
		switch r {
		case '<':
			buf.WriteString(`\u003c`)
		case '>':
			buf.WriteString(`\u003e`)
		case '&':
			buf.WriteString(`\u0026`)
		case ' ':
			buf.WriteString(`\u2028`)
		case ' ':
			buf.WriteString(`\u2029`)
		default:
			buf.WriteRune(r)
		}
	}
	return buf.String()
}

var pageTemplate = template.Must(template.New("report").Parse(reportHTMLTemplate))

// Render produces the final HTML document: the static page shell, the
// inlined viewer bundle, and the OTLP-derived document as a JSON literal
// assigned to window.__CCPROFILE_DATA__.
func Render(doc Document) (string, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	data := struct {
		JSONLiteral template.JS
		Viewer      template.JS
		Empty       bool
	}{
		JSONLiteral: template.JS(escapeForScriptTag(raw)),
		Viewer:      template.JS(viewerBundle),
		Empty:       doc.Aggregate.SpanCount == 0,
	}
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const reportHTMLTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>ccprofile trace report</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif; margin: 2rem; color: #1b1b1b; }
h1 { font-size: 1.25rem; }
.summary { display: flex; gap: 1.5rem; margin-bottom: 1.5rem; flex-wrap: wrap; }
.summary div { background: #f4f4f5; border-radius: 6px; padding: .5rem .75rem; }
.empty { color: #6b7280; font-style: italic; }
#tree { font-family: ui-monospace, monospace; font-size: .85rem; white-space: pre; }
</style>
</head>
<body>
<h1>ccprofile trace report</h1>
{{if .Empty}}
<p class="empty">No spans were recorded for this run.</p>
{{else}}
<div id="app"></div>
{{end}}
<script>
window.__CCPROFILE_DATA__ = {{.JSONLiteral}};
</script>
<script>
{{.Viewer}}
</script>
</body>
</html>
`

// viewerBundle is the pre-built JavaScript viewer. It reads
// window.__CCPROFILE_DATA__ and renders a simple indented span tree plus
// the aggregate counters computed by Build; no external fetches.
const viewerBundle = `
(function () {
  var data = window.__CCPROFILE_DATA__;
  if (!data || !data.roots || data.roots.length === 0) return;

  var app = document.getElementById("app");
  if (!app) return;

  var agg = data.aggregate || {};
  var summary = document.createElement("div");
  summary.className = "summary";
  var cells = [
    ["spans", agg.spanCount],
    ["input tokens", agg.totalInputTokens],
    ["output tokens", agg.totalOutputTokens],
    ["cost (USD)", (agg.totalCostUsd || 0).toFixed(4)],
    ["duration (ms)", agg.durationMs]
  ];
  cells.forEach(function (pair) {
    var cell = document.createElement("div");
    cell.textContent = pair[0] + ": " + pair[1];
    summary.appendChild(cell);
  });
  app.appendChild(summary);

  var tree = document.createElement("div");
  tree.id = "tree";
  app.appendChild(tree);

  function renderNode(node, depth, lines) {
    var span = node.span || {};
    var indent = new Array(depth * 2 + 1).join(" ");
    var label = span.name + " [" + span.Category + "]";
    lines.push(indent + label);
    (node.children || []).forEach(function (child) {
      renderNode(child, depth + 1, lines);
    });
  }

  var lines = [];
  data.roots.forEach(function (root) {
    renderNode(root, 0, lines);
  });
  tree.textContent = lines.join("\n");
})();
`
