package pdfagent

import (
	_ "embed"
	"fmt"

	"ieee-pdf-agent/internal/yamlutil"
)

//go:embed updates.yaml
var updatesYAML []byte

// LoadUpdates parses the embedded announcement feed. The feed is static
// and version-tagged; dismissals are tracked per session, not here.
func LoadUpdates() ([]UpdateNotification, error) {
	var updates []UpdateNotification
	if err := yamlutil.UnmarshalStrict(updatesYAML, &updates); err != nil {
		return nil, fmt.Errorf("parsing updates feed: %w", err)
	}
	return updates, nil
}
