package threat

import (
	"errors"
	"regexp"
	"strings"
)

// MaxGraphQLDepth is the largest number of '{' a query may contain.
const MaxGraphQLDepth = 10

var ErrEmptyQuery = errors.New("query is empty")

var graphQLSignatures = []*regexp.Regexp{
	regexp.MustCompile(`(?i)introspection`),
	regexp.MustCompile(`(?i)__schema`),
	regexp.MustCompile(`(?i)__type`),
	regexp.MustCompile(`\.\.\.`),
	regexp.MustCompile(`(?i)union\s+\w+\s*=`),
}

// ScanGraphQL returns a description of every problem found in query.
// An empty result means the query may be executed.
func ScanGraphQL(query string) ([]string, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	var threats []string
	for _, re := range graphQLSignatures {
		if re.MatchString(query) {
			threats = append(threats, "dangerous pattern: "+re.String())
		}
	}
	if strings.Count(query, "{") > MaxGraphQLDepth {
		threats = append(threats, "query nesting too deep")
	}
	return threats, nil
}
