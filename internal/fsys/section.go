package fsys

import (
	"fmt"
	"strings"
)

// LoadSection loads path (as Load does) and extracts the named markdown
// section from it, for the `section` ExecutableDef kind (§3.3). LoadContent
// nodes that carry a `#section` suffix call ExtractMarkdownSection directly.
func (l *ContentLoader) LoadSection(baseDir, path, section string) (string, error) {
	raw, resolved, err := l.Load(baseDir, path)
	if err != nil {
		return "", err
	}
	if section == "" {
		return string(raw), nil
	}
	body, ok := ExtractMarkdownSection(string(raw), section)
	if !ok {
		return "", fmt.Errorf("fsys: section %q not found in %q", section, resolved)
	}
	return body, nil
}

// ExtractMarkdownSection returns the first ATX heading in text whose
// trimmed title matches heading (case-insensitively), heading line
// included, together with the lines under it up to (but not including)
// the next heading at the same or shallower level.
func ExtractMarkdownSection(text, heading string) (string, bool) {
	lines := strings.Split(text, "\n")
	startLevel, start := -1, -1
	for i, line := range lines {
		level, title := parseHeading(line)
		if level == 0 {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(title), strings.TrimSpace(heading)) {
			start, startLevel = i, level
			break
		}
	}
	if start < 0 {
		return "", false
	}
	end := len(lines)
	for i := start + 1; i < len(lines); i++ {
		level, _ := parseHeading(lines[i])
		if level > 0 && level <= startLevel {
			end = i
			break
		}
	}
	return strings.Join(lines[start:end], "\n"), true
}

func parseHeading(line string) (level int, title string) {
	trimmed := strings.TrimLeft(line, " ")
	i := 0
	for i < len(trimmed) && trimmed[i] == '#' {
		i++
	}
	if i == 0 || i > 6 || i >= len(trimmed) || trimmed[i] != ' ' {
		return 0, ""
	}
	return i, strings.TrimSpace(trimmed[i:])
}
