package threat

import (
	"regexp"

	"github.com/mssola/useragent"
)

var suspiciousAgents = []*regexp.Regexp{
	regexp.MustCompile(`(?i)sqlmap`),
	regexp.MustCompile(`(?i)nmap`),
	regexp.MustCompile(`(?i)nikto`),
	regexp.MustCompile(`(?i)wget`),
	regexp.MustCompile(`(?i)curl`),
	regexp.MustCompile(`(?i)python-requests`),
	regexp.MustCompile(`(?i)bot`),
	regexp.MustCompile(`(?i)scanner`),
	regexp.MustCompile(`(?i)crawl`),
}

// SuspiciousAgent reports whether ua looks like an automated or attack tool.
// Callers only log the result; requests are never blocked on it.
func SuspiciousAgent(ua string) bool {
	for _, re := range suspiciousAgents {
		if re.MatchString(ua) {
			return true
		}
	}
	return false
}

// Agent is the parsed form of a User-Agent header, attached to
// suspicious-agent events.
type Agent struct {
	Browser string `json:"browser,omitempty"`
	Version string `json:"version,omitempty"`
	OS      string `json:"os,omitempty"`
	Bot     bool   `json:"bot"`
}

func DescribeAgent(ua string) Agent {
	p := useragent.New(ua)
	name, version := p.Browser()
	return Agent{Browser: name, Version: version, OS: p.OS(), Bot: p.Bot()}
}
