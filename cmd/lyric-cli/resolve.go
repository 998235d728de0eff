package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gosimple/slug"
)

// resolveNamed picks the item whose name or ID matches input. Names compare
// by slug, so "upstairs hallway" matches "Upstairs Hallway".
func resolveNamed(kind, input string, items []map[string]any, idKey string) (map[string]any, error) {
	needle := slug.Make(input)
	for _, item := range items {
		if id(item[idKey]) == input || (needle != "" && slug.Make(str(item["name"])) == needle) {
			return item, nil
		}
	}
	available := make([]string, 0, len(items))
	for _, item := range items {
		available = append(available, str(item["name"]))
	}
	sort.Strings(available)
	return nil, fmt.Errorf("%s %q not found. Available: %s", kind, input, strings.Join(available, ", "))
}
