package export

import (
	"fmt"
	"sort"
	"strings"

	"github.com/requill/requill/internal/core/executor"
	"github.com/requill/requill/internal/core/request"
)

// AsCurl converts a request description to a curl command string.
func AsCurl(desc *request.Description) string {
	var parts []string
	parts = append(parts, "curl")

	if desc.Method != "GET" {
		parts = append(parts, "-X", desc.Method)
	}

	names := make([]string, 0, len(desc.Headers))
	for name := range desc.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		parts = append(parts, "-H", fmt.Sprintf("'%s: %s'", name, desc.Headers[name]))
	}

	if request.AllowsBody(desc.Method) && desc.Body != nil {
		if wire, err := desc.Body.Wire(); err == nil && len(wire) > 0 {
			body := strings.ReplaceAll(string(wire), "'", "'\\''")
			parts = append(parts, "-d", fmt.Sprintf("'%s'", body))
		}
	}

	parts = append(parts, fmt.Sprintf("'%s'", executor.BuildURL(desc)))

	return strings.Join(parts, " ")
}
