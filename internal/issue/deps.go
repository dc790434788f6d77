package issue

import (
	"regexp"
	"strconv"
)

// Dependency references are declared in issue description text. The label
// patterns below are the ones the planning agent emits; they all resolve to
// "this issue needs #N done first".
var dependsRe = regexp.MustCompile(`(?i)(?:depends\s+on|blocked\s+by|requires|after)\s+((?:#\d+(?:\s*,\s*(?:and\s+)?|\s+and\s+)?)+)`)

var issueRefRe = regexp.MustCompile(`#(\d+)`)

// ParseDependencies extracts prerequisite issue ids from description text.
// Ids are returned in order of first appearance, deduplicated.
func ParseDependencies(body string) []int {
	var deps []int
	seen := make(map[int]bool)

	for _, m := range dependsRe.FindAllStringSubmatch(body, -1) {
		for _, ref := range issueRefRe.FindAllStringSubmatch(m[1], -1) {
			id, err := strconv.Atoi(ref[1])
			if err != nil || id <= 0 {
				continue
			}
			if !seen[id] {
				seen[id] = true
				deps = append(deps, id)
			}
		}
	}
	return deps
}
