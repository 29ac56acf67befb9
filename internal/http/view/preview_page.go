package view

import (
	"bytes"
	"html/template"
	"time"
)

// PreviewPageData provides the dynamic fields required by the preview template.
type PreviewPageData struct {
	Title      string
	Code       string
	TargetURL  string
	VisitCount int64
	CreatedAt  time.Time
	ExpiresAt  *time.Time
}

var previewPageTmpl = template.Must(template.New("preview_page").Parse(`
<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="utf-8" />
	<meta name="viewport" content="width=device-width, initial-scale=1" />
	<title>{{if .Title}}{{.Title}}{{else}}Link preview{{end}}</title>
	<style>
		:root {
			--bg: #090a0f;
			--card: rgba(255, 255, 255, 0.05);
			--border: rgba(255, 255, 255, 0.15);
			--text: #e7ecff;
			--muted: #a1acc5;
			--accent: #7dd3fc;
			--accent-strong: #38bdf8;
			font-family: "Inter", -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif;
		}
		* { box-sizing: border-box; }
		body {
			margin: 0;
			min-height: 100vh;
			display: flex;
			align-items: center;
			justify-content: center;
			background: radial-gradient(circle at 20% 20%, #111827, #030712 60%);
			color: var(--text);
		}
		.card {
			background: var(--card);
			border: 1px solid var(--border);
			border-radius: 18px;
			padding: 32px;
			width: min(520px, 92vw);
			box-shadow: 0 45px 100px rgba(0,0,0,0.35);
			backdrop-filter: blur(18px);
		}
		h1 {
			font-size: 1.5rem;
			margin-bottom: 6px;
		}
		p {
			color: var(--muted);
			margin-top: 0;
		}
		.destination {
			margin: 24px 0;
			padding: 18px;
			border-radius: 14px;
			background: rgba(125, 211, 252, 0.07);
			border: 1px solid rgba(125, 211, 252, 0.25);
			word-break: break-all;
		}
		.destination-label {
			font-size: 0.82rem;
			text-transform: uppercase;
			letter-spacing: 0.08em;
			color: var(--muted);
			margin-bottom: 8px;
		}
		.actions {
			display: flex;
			align-items: center;
			gap: 12px;
			margin-top: 24px;
			flex-wrap: wrap;
		}
		a.button {
			display: inline-flex;
			align-items: center;
			justify-content: center;
			padding: 0 28px;
			height: 48px;
			border-radius: 999px;
			background: linear-gradient(120deg, var(--accent), var(--accent-strong));
			color: #050708;
			font-weight: 600;
			text-decoration: none;
			transition: transform 0.15s ease, opacity 0.15s ease;
		}
		a.button:hover {
			transform: translateY(-1px);
			opacity: 0.92;
		}
		.meta {
			margin-top: 16px;
			font-size: 0.85rem;
			color: rgba(231, 236, 255, 0.65);
		}
	</style>
</head>
<body>
	<div class="card">
		<h1>Link preview</h1>
		<p>Short link <strong>/{{.Code}}</strong> points to:</p>

		<div class="destination">
			<div class="destination-label">Destination</div>
			<div>{{.TargetURL}}</div>
		</div>

		<div class="actions">
			<a class="button" href="/{{.Code}}">Visit now</a>
		</div>

		<div class="meta">
			{{.VisitCount}} visit{{if ne .VisitCount 1}}s{{end}}
			&middot; created {{.CreatedAt.Format "2006-01-02 15:04 MST"}}
			{{if .ExpiresAt}}&middot; expires {{.ExpiresAt.Format "2006-01-02 15:04 MST"}}{{end}}
		</div>
	</div>
</body>
</html>
`))

// RenderPreviewPage expands the preview page template with the provided data.
// Viewing a preview never counts as a visit.
func RenderPreviewPage(data PreviewPageData) (string, error) {
	if data.Title == "" {
		data.Title = "Link preview"
	}
	var buf bytes.Buffer
	if err := previewPageTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
