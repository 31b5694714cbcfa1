package handler

import (
	"html/template"
	"net/http"
)

// Pages served to approvers who follow an emailed link. They are reached
// without a login, so they show only what the link already implies.
var pages = template.Must(template.New("pages").Parse(`
{{define "layout-top"}}<!DOCTYPE html>
<html lang="en"><head><meta charset="utf-8"><title>{{.Title}}</title>
<meta name="viewport" content="width=device-width, initial-scale=1">
<style>body{font-family:sans-serif;max-width:36rem;margin:3rem auto;padding:0 1rem}textarea{width:100%}</style>
</head><body>
<h1>{{.Title}}</h1>
{{end}}

{{define "result"}}{{template "layout-top" .}}
<p>{{.Message}}</p>
</body></html>
{{end}}

{{define "reject-form"}}{{template "layout-top" .}}
<p>Tell {{.Submitter}} why the timesheet for <strong>{{.Project}}</strong>, {{.Start}} to {{.End}}, is being rejected.</p>
<form method="post" action="{{.Action}}">
<input type="hidden" name="id" value="{{.ID}}">
<input type="hidden" name="token" value="{{.Token}}">
<p><textarea name="reason" rows="5" required></textarea></p>
<p><button type="submit">Reject timesheet</button></p>
</form>
</body></html>
{{end}}
`))

type resultPage struct {
	Title   string
	Message string
}

type rejectFormPage struct {
	Title     string
	Action    string
	ID        string
	Token     string
	Submitter string
	Project   string
	Start     string
	End       string
}

func (h *HTTPHandler) renderPage(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		h.log.Error().Err(err).Str("page", name).Msg("Failed to render page")
	}
}
