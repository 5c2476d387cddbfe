package service

import "strings"

// RenderTemplate fills {key} placeholders from data in a single pass, so a
// value containing braces is never expanded again. Unknown placeholders are
// left as is.
func RenderTemplate(tpl string, data map[string]string) string {
	if len(data) == 0 {
		return tpl
	}
	pairs := make([]string, 0, 2*len(data))
	for k, v := range data {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}
