package bridge

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// parseBodyNames extracts rigid-body names from a GetParameters 6d reply.
// The root and section element names carry the protocol version, so any
// second-level Body/Name pair counts.
func parseBodyNames(doc []byte) ([]string, error) {
	var params struct {
		Sections []struct {
			Bodies []struct {
				Name string `xml:"Name"`
			} `xml:"Body"`
		} `xml:",any"`
	}
	if err := xml.Unmarshal(doc, &params); err != nil {
		return nil, fmt.Errorf("bridge: parse 6dof parameters: %w", err)
	}
	var names []string
	for _, section := range params.Sections {
		for _, body := range section.Bodies {
			if name := strings.TrimSpace(body.Name); name != "" {
				names = append(names, name)
			}
		}
	}
	return names, nil
}
