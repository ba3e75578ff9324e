package story

import (
	"fmt"
	"strings"
	"text/template"
)

const defaultPromptTemplate = `You are the narrator of an interactive visual novel titled "{{.Title}}".

## Setting
Genre: {{.Genre}}{{if .Tone}}
Tone: {{.Tone}}{{end}}

{{.Background}}

## Characters
{{range .Characters}}- {{.Name}}{{if .Description}}: {{.Description}}{{end}}
{{end}}{{if .Constraints}}
## Rules you must follow
{{range .Constraints}}- {{.}}
{{end}}{{end}}{{if .Attributes}}
## Attributes
The player has these attributes. Change them only with the attribute directive and only when the story gives a reason.
{{range $name, $value := .Attributes}}- {{$name}} (starts at {{$value}})
{{end}}{{end}}{{if .Sounds}}
## Sounds
You may play these sound cues, and no others: {{join .Sounds ", "}}
{{end}}
## Output format
Write every line of your reply with exactly one of these prefixes:
[text]<one paragraph of narration or dialogue>
[sound]<cue name>
[attribute=<NAME>.<signed integer>]<why it changed>
[choice]<option 1>|<option 2>|<option 3>
[end]<closing text, only when the story is over>

Each reply is one scene. End it with exactly one [choice] line offering three options, unless the story is over, in which case end it with an [end] line and no choices.{{if .TextLength.Max}}
Keep the narration of each reply between {{.TextLength.Min}} and {{.TextLength.Max}} characters.{{end}}
Never write anything outside these directives.

## Example
[text]The lantern gutters as the cellar door swings shut behind you.
[sound]door_slam
[attribute=SAN.-5]Something breathes in the dark below.
[text]Three steps down, a voice whispers your name.
[choice]Call out|Climb back up|Stay silent
`

var promptFuncs = template.FuncMap{
	"join": strings.Join,
}

// SystemPrompt renders the system turn for a new session. A story's
// prompt_template replaces the built-in template.
func (s *Story) SystemPrompt() (string, error) {
	text := defaultPromptTemplate
	if strings.TrimSpace(s.PromptTemplate) != "" {
		text = s.PromptTemplate
	}
	tmpl, err := template.New("system").Funcs(promptFuncs).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse prompt template: %w", err)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, s); err != nil {
		return "", fmt.Errorf("render prompt template: %w", err)
	}
	return strings.TrimSpace(sb.String()), nil
}
