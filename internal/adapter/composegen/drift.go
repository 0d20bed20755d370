// File: internal/adapter/composegen/drift.go
// Brief: Drift detection between the compose file on disk and the plan.

package composegen

import (
	"bytes"
	"os"

	"github.com/pmezard/go-difflib/difflib"
)

// Diff compares the compose file at path with freshly generated
// content and returns a unified diff. An empty string means the file
// matches the plan; a missing file diffs against empty content.
func Diff(path string, generated []byte) (string, error) {
	current, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return "", err
	}
	if bytes.Equal(current, generated) {
		return "", nil
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(current)),
		B:        difflib.SplitLines(string(generated)),
		FromFile: path,
		ToFile:   path + " (from plan)",
		Context:  3,
	})
}
