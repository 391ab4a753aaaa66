package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/intercom-monitor/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Intercom Monitor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.ACTIVE { color: green; font-weight: bold; }
.IDLE { color: #888; }
.UNKNOWN { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Intercom Monitor</h1>

<h2>Line</h2>
<table>
<tr><th>State</th><td id="line-state" class="{{.Line}}">{{.Line}}</td></tr>
<tr><th>Pulses</th><td>{{.Counts.Pulses}}</td></tr>
<tr><th>State changes</th><td>{{.Counts.StateChanges}}</td></tr>
<tr><th>Last width</th><td>{{if .Counts.Pulses}}{{.LastWidthMs}} ms at {{.LastPulseAt.UTC.Format "2006-01-02T15:04:05Z"}}{{else}}none{{end}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>Telnet</th><td class="{{if .Client}}connected{{else}}disconnected{{end}}">port {{.Config.TelnetPort}}, {{if .Client}}client attached{{else}}no client{{end}}</td></tr>
{{if .Config.Broker}}<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}} ({{.Config.Broker}})</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Input</th><td>{{.Config.Chip}} line {{.Config.Pin}}</td></tr>
<tr><th>Sample</th><td>{{.Config.SampleMs}}ms</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has methods; the template wants plain fields.
	data := struct {
		status.Snapshot
		Uptime time.Duration
		Line   string
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Line:     status.LineState(snap),
	}
	indexTmpl.Execute(w, data)
}
