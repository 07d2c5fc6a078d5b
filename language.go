package thebekit

import "strings"

// DetectLanguage maps a kernel name onto a language identifier the widget's
// editor understands. Versioned Python kernels ("python3", "ipython") become
// "python" and the IRkernel name "ir" becomes "r". Anything else is returned
// unchanged.
func DetectLanguage(name string) string {
	switch {
	case strings.Contains(name, "python"):
		return "python"
	case name == "ir":
		return "r"
	default:
		return name
	}
}
