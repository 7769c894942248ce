package hooks

// Config is the content of .meshwiz.hooks.yml.
type Config struct {
	Version int         `yaml:"version"`
	Hooks   HooksConfig `yaml:"hooks"`
}

// HooksConfig lists the hooks around a submission.
type HooksConfig struct {
	// PreSubmit hooks run after review and before any write.
	PreSubmit []*HookConfig `yaml:"pre_submit"`
	// PostSubmit hooks run after the notification, whatever the outcome.
	PostSubmit []*HookConfig `yaml:"post_submit"`
}

// HookConfig is one shell command.
type HookConfig struct {
	Command    string `yaml:"command"`
	Timeout    int    `yaml:"timeout"`     // seconds, default 30
	PipeOutput bool   `yaml:"pipe_output"` // include output in the submission report
	Stdin      bool   `yaml:"stdin"`       // feed the submitted YAML documents on stdin
	// Required aborts the submission when the hook fails. Only meaningful
	// for pre_submit hooks.
	Required bool `yaml:"required"`
}

// DefaultTimeout applies to hooks without a timeout, in seconds.
const DefaultTimeout = 30
