package service

import (
	"bytes"
	"html/template"

	"github.com/pesio-ai/be-timesheet-approvals/internal/approval"
)

var emailTemplates = template.Must(template.New("emails").Parse(`
{{define "request"}}<!DOCTYPE html>
<html><body>
<p>Hello {{if .Approval.Project.ApproverName}}{{.Approval.Project.ApproverName}}{{else}}there{{end}},</p>
<p>{{.Submitter}} submitted {{.Approval.TotalHours.StringFixed 2}} hours on
<strong>{{.Approval.Project.Name}}</strong>{{if .Approval.Client.Name}} ({{.Approval.Client.Name}}){{end}}
for {{.Start}} to {{.End}}.</p>
<p>
<a href="{{.ApproveURL}}">Approve</a> &nbsp;|&nbsp;
<a href="{{.RejectURL}}">Reject</a>
</p>
<p>These links expire in {{.ExpiresInDays}} days.</p>
</body></html>
{{end}}

{{define "approved"}}<!DOCTYPE html>
<html><body>
<p>Your timesheet for <strong>{{.Approval.Project.Name}}</strong>, {{.Start}} to {{.End}}
({{.Approval.TotalHours.StringFixed 2}} hours), was approved.</p>
</body></html>
{{end}}

{{define "rejected"}}<!DOCTYPE html>
<html><body>
<p>Your timesheet for <strong>{{.Approval.Project.Name}}</strong>, {{.Start}} to {{.End}}
was rejected.</p>
{{with .Reason}}<p>Reason: {{.}}</p>{{end}}
<p>You can correct your entries and submit again.</p>
</body></html>
{{end}}
`))

type emailData struct {
	Approval      *approval.Approval
	Submitter     string
	Start, End    string
	ApproveURL    string
	RejectURL     string
	Reason        string
	ExpiresInDays int
}

func newEmailData(a *approval.Approval) emailData {
	submitter := a.SubmitterEmail
	if submitter == "" {
		submitter = a.UserID
	}
	d := emailData{
		Approval:  a,
		Submitter: submitter,
		Start:     a.Period.Start.Format(approval.DateLayout),
		End:       a.Period.End.Format(approval.DateLayout),
	}
	if a.RejectionReason != nil {
		d.Reason = *a.RejectionReason
	}
	return d
}

func renderEmail(name string, data emailData) (string, error) {
	var buf bytes.Buffer
	if err := emailTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
