package util

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/hupe1980/symflow/core"
)

// RenderTemplate renders prompt templates using Go's text/template package.
// text/template is deliberate: html/template would entity-escape the JSON
// punctuation that prompts are full of. This lives in internal to avoid
// committing to public API stability prematurely.
func RenderTemplate(text string, data any) (string, error) {
	if !strings.Contains(text, "{{") { // fast path: no template markers
		return text, nil
	}

	// Create a new template with helper funcs
	tmpl, err := template.New("prompt").Funcs(template.FuncMap{
		"default": func(defaultVal any, val any) any {
			if val == nil || val == "" {
				return defaultVal
			}
			return val
		},
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		"title": func(s string) string {
			if len(s) == 0 {
				return s
			}
			return strings.ToUpper(string(s[0])) + strings.ToLower(s[1:])
		},
		"join": func(sep string, items []interface{}) string {
			strItems := make([]string, len(items))
			for i, item := range items {
				strItems[i] = fmt.Sprintf("%v", item)
			}
			return strings.Join(strItems, sep)
		},
	}).Parse(text)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

// ParseMessages splits a rendered prompt into chat messages on the
// <system>, <user> and <assistant> tag lines. Content before the first tag
// belongs to the system message. Blank-only messages are dropped.
func ParseMessages(text string) []core.ChatMessage {
	var messages []core.ChatMessage
	role := core.ChatRoleSystem
	var content []string

	flush := func() {
		joined := strings.TrimSpace(strings.Join(content, "\n"))
		if joined != "" {
			messages = append(messages, core.ChatMessage{Role: role, Content: joined})
		}
		content = content[:0]
	}

	for _, line := range strings.Split(text, "\n") {
		switch strings.TrimSpace(line) {
		case "<system>":
			flush()
			role = core.ChatRoleSystem
		case "<user>":
			flush()
			role = core.ChatRoleUser
		case "<assistant>":
			flush()
			role = core.ChatRoleAssistant
		default:
			content = append(content, line)
		}
	}
	flush()

	return messages
}
