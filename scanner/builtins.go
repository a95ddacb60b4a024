package scanner

import (
	"sync"

	"github.com/AnkitD0811/cloud-security-scanner/tools"
)

// Bundle groups every scanner tool for tools.BuildSelection ("@scanners").
const Bundle = "scanners"

var (
	binMu    sync.RWMutex
	binaries = map[string]string{}
)

// SetBinary overrides the executable used by catalog-built scanner tools.
func SetBinary(tool, path string) {
	binMu.Lock()
	defer binMu.Unlock()
	binaries[tool] = path
}

func binaryFor(tool string) string {
	binMu.RLock()
	defer binMu.RUnlock()
	return binaries[tool]
}

func init() {
	tools.MustRegisterTool(
		Checkov,
		"Checkov static analysis of a single IaC file.",
		func() tools.Tool { return NewCheckov(WithBinary(binaryFor(Checkov))).Tool() },
	)
	tools.MustRegisterTool(
		Tfsec,
		"tfsec scan of the Terraform directory containing a file.",
		func() tools.Tool { return NewTfsec(WithBinary(binaryFor(Tfsec))).Tool() },
	)
	tools.MustRegisterTool(
		Trivy,
		"Trivy misconfiguration scan of a single IaC file.",
		func() tools.Tool { return NewTrivy(WithBinary(binaryFor(Trivy))).Tool() },
	)
	tools.MustRegisterBundle(Bundle, "All IaC security scanners", []string{Checkov, Tfsec, Trivy})
}
