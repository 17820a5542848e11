package version

import (
	"strings"
	"testing"
)

func TestInfo(t *testing.T) {
	if Version != "dev" || GitCommit != "unknown" || BuildDate != "unknown" {
		t.Errorf("defaults = %q/%q/%q, want dev/unknown/unknown", Version, GitCommit, BuildDate)
	}

	info := Info()
	for _, part := range []string{Version, GitCommit, BuildDate} {
		if !strings.Contains(info, part) {
			t.Errorf("Info() = %q, missing %q", info, part)
		}
	}
}
