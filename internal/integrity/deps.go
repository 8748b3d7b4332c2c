package integrity

import (
	"runtime"
	"runtime/debug"
	"sort"
	"time"
)

// Module is one dependency of the running binary.
type Module struct {
	Path    string `json:"path"`
	Version string `json:"version"`
}

type Vulnerability struct {
	Package     string `json:"package"`
	Version     string `json:"version"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

type Report struct {
	Timestamp          time.Time       `json:"timestamp"`
	GoVersion          string          `json:"goVersion"`
	TotalDependencies  int             `json:"totalDependencies"`
	VulnerabilityCount int             `json:"vulnerabilityCount"`
	Vulnerabilities    []Vulnerability `json:"vulnerabilities"`
	Recommendations    []string        `json:"recommendations"`
}

// knownVulnerable maps module@version, or a bare module path for every
// version, to an advisory summary.
var knownVulnerable = map[string]string{
	"github.com/dgrijalva/jwt-go":                 "unmaintained, audience check bypass (CVE-2020-26160)",
	"github.com/golang-jwt/jwt/v4@v4.5.0":         "excessive memory allocation in header parsing (CVE-2025-30204)",
	"golang.org/x/crypto@v0.30.0":                 "ssh public key callback misuse (CVE-2024-45337)",
	"gopkg.in/yaml.v2@v2.2.2":                     "resource exhaustion on crafted input (CVE-2019-11254)",
	"github.com/prometheus/client_golang@v1.11.0": "unbounded label cardinality in promhttp (CVE-2022-21698)",
}

// CheckDependencies matches mods against the known-vulnerable list.
func CheckDependencies(mods []Module) Report {
	r := Report{
		Timestamp:         time.Now().UTC(),
		GoVersion:         runtime.Version(),
		TotalDependencies: len(mods),
		Vulnerabilities:   []Vulnerability{},
	}
	for _, m := range mods {
		desc, ok := knownVulnerable[m.Path+"@"+m.Version]
		if !ok {
			desc, ok = knownVulnerable[m.Path]
		}
		if ok {
			r.Vulnerabilities = append(r.Vulnerabilities, Vulnerability{
				Package:     m.Path,
				Version:     m.Version,
				Severity:    "HIGH",
				Description: desc,
			})
		}
	}
	sort.Slice(r.Vulnerabilities, func(i, j int) bool {
		return r.Vulnerabilities[i].Package < r.Vulnerabilities[j].Package
	})
	r.VulnerabilityCount = len(r.Vulnerabilities)

	if r.VulnerabilityCount > 0 {
		r.Recommendations = append(r.Recommendations,
			"update vulnerable dependencies immediately",
			"run govulncheck for details")
	}
	r.Recommendations = append(r.Recommendations,
		"review dependencies regularly",
		"pin exact versions in go.mod")
	return r
}

// BuildModules lists the dependencies compiled into the running binary.
func BuildModules() []Module {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return nil
	}
	mods := make([]Module, 0, len(info.Deps))
	for _, d := range info.Deps {
		if d.Replace != nil {
			d = d.Replace
		}
		mods = append(mods, Module{Path: d.Path, Version: d.Version})
	}
	return mods
}

// DependencyReport checks the running binary's own dependencies.
func DependencyReport() Report {
	return CheckDependencies(BuildModules())
}
