package logging

import "strings"

// FormatSubject builds the component/stage/sample subject shown in console
// output, for example "extract · S1".
func FormatSubject(component, stage, sample string) string {
	parts := make([]string, 0, 3)
	component = strings.TrimSpace(component)
	stage = strings.TrimSpace(stage)
	if stage != "" {
		parts = append(parts, stage)
	} else if component != "" {
		parts = append(parts, component)
	}
	if sample = strings.TrimSpace(sample); sample != "" {
		parts = append(parts, sample)
	}
	return strings.Join(parts, " · ")
}
