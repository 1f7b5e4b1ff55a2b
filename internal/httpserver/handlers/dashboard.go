package handlers

import (
	"html/template"
	"net/http"

	"github.com/fleetwatch/monitor/internal/httpserver/deps"
)

var dashboardTmpl = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>{{.Title}} — fleet monitor</title>
  <meta name="viewport" content="width=device-width, initial-scale=1">
</head>
<body>
  <h1>{{.Title}}</h1>
  <p>Live status: <a href="/api/services">/api/services</a> &middot; <a href="/health/aggregate">/health/aggregate</a> &middot; <a href="/metrics">/metrics</a></p>
  <p>Connect to <code>/ws</code> for the live event stream.</p>
</body>
</html>
`))

// Dashboard implements GET /: a minimal static HTML shell that points
// operators at the JSON/WS surfaces; it is not a JS single-page app.
func Dashboard(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = dashboardTmpl.Execute(w, struct{ Title string }{Title: "fleet monitor"})
	}
}
