package testrunner

import (
	"encoding/xml"
	"regexp"
	"strings"
)

type junitCase struct {
	ClassName string        `xml:"classname,attr"`
	Name      string        `xml:"name,attr"`
	Failures  []junitDetail `xml:"failure"`
	Errors    []junitDetail `xml:"error"`
}

type junitDetail struct {
	Message string `xml:"message,attr"`
	Text    string `xml:",chardata"`
}

type junitSuite struct {
	Cases []junitCase `xml:"testcase"`
}

type junitRoot struct {
	XMLName xml.Name
	Suites  []junitSuite `xml:"testsuite"`
	Cases   []junitCase  `xml:"testcase"`
}

// parseJUnit accepts both <testsuites> and bare <testsuite> roots.
func parseJUnit(data []byte) ([]Failure, error) {
	var root junitRoot
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, err
	}

	cases := root.Cases
	for _, s := range root.Suites {
		cases = append(cases, s.Cases...)
	}

	var out []Failure
	for _, c := range cases {
		name := c.Name
		if c.ClassName != "" {
			name = c.ClassName + "." + c.Name
		}
		for _, d := range append(c.Failures, c.Errors...) {
			out = append(out, Failure{
				Test:      name,
				Message:   strings.TrimSpace(d.Message),
				Traceback: strings.TrimSpace(d.Text),
			})
		}
	}
	return out, nil
}

var failRe = regexp.MustCompile(`^(?:FAILED|ERROR)\s+(\S+)(?:\s+-\s+(.*))?$`)

// scrapeFailures reads pytest's short test summary lines ("FAILED path::test - message").
func scrapeFailures(output string) []Failure {
	var out []Failure
	seen := make(map[string]struct{})
	for _, line := range strings.Split(output, "\n") {
		m := failRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		out = append(out, Failure{Test: m[1], Message: strings.TrimSpace(m[2])})
	}
	return out
}
