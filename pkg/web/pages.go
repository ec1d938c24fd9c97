package web

import (
	"html/template"
	"io"

	"github.com/ericogr/fsr-logger/pkg/clock"
)

const layout = `{{define "head"}}<!DOCTYPE html>
<html>
<head>
<meta charset='UTF-8'>
<meta name='viewport' content='width=device-width, initial-scale=1.0'>
<title>{{.Title}}</title>
</head>
<body>
{{end}}
{{define "foot"}}<p>Device address: {{.Address}}</p>
</body>
</html>
{{end}}`

const homeHTML = `{{template "head" .}}<h1>Force Sensor</h1>
<h2>Last {{.TailSize}} Readings</h2>
<table border='1'>
<tr><th>ID</th><th>Date</th><th>Analog Data</th><th>Force (g)</th></tr>
{{range .Rows}}<tr><td>{{.ID}}</td><td>{{.Date}}</td><td>{{.Raw}}</td><td>{{.Force}}</td></tr>
{{end}}</table>
<h2>Set Clock Manually</h2>
<form action='/config' method='post'>
Year: <input type='number' name='year' placeholder='{{.Now.Year}}'><br>
Month: <input type='number' name='month' placeholder='{{.Now.Month}}'><br>
Day: <input type='number' name='day' placeholder='{{.Now.Day}}'><br>
Hour: <input type='number' name='hour' placeholder='{{.Now.Hour}}'><br>
Minute: <input type='number' name='minute' placeholder='{{.Now.Minute}}'><br>
Second: <input type='number' name='second' placeholder='{{.Now.Second}}'><br>
<input type='submit' value='Set Clock'>
</form>
<h2>Download Database</h2>
<form action='/download' method='get'>
<input type='submit' value='Download Database'>
</form>
<h2>Delete Database</h2>
<form action='/delete' method='post'>
<input type='submit' value='Delete Database'>
</form>
{{template "foot" .}}`

const messageHTML = `{{template "head" .}}<h1>{{.Heading}}</h1>
{{template "foot" .}}`

const confirmDeleteHTML = `{{template "head" .}}<h1>Are you sure you want to delete the database?</h1>
<form action='/confirmed_delete' method='post'>
<input type='submit' value='Yes'>
</form>
<form action='/' method='get'>
<input type='submit' value='No'>
</form>
{{template "foot" .}}`

var (
	homeTmpl          = template.Must(template.Must(template.New("layout").Parse(layout)).New("home").Parse(homeHTML))
	messageTmpl       = template.Must(template.Must(template.New("layout").Parse(layout)).New("message").Parse(messageHTML))
	confirmDeleteTmpl = template.Must(template.Must(template.New("layout").Parse(layout)).New("confirm").Parse(confirmDeleteHTML))
)

type page struct {
	Title   string
	Address string
}

type row struct {
	ID    uint64
	Date  string
	Raw   int
	Force string
}

type homePage struct {
	page
	TailSize int
	Rows     []row
	Now      clock.Fields
}

type messagePage struct {
	page
	Heading string
}

type templateExecutor interface {
	Name() string
	Execute(w io.Writer, data any) error
}

func render(w io.Writer, t templateExecutor, data any) error {
	return t.Execute(w, data)
}
