package template

// DefaultSuccess is the notification sent after every write succeeded.
const DefaultSuccess = `Istio Config {{action}} for {{service}} service.`

// DefaultFailure is the notification sent when any write failed.
const DefaultFailure = `Could not {{verb}} Istio config objects.`

// DefaultSummary is the markdown shown above a preview.
const DefaultSummary = `# {{wizard}}: {{namespace}}/{{service}}

{{documents}}
{{tabs}}`
