package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LoadTargets builds the ordered, de-duplicated target list from CLI
// arguments and an optional inputs file. Arguments may be comma or
// whitespace separated; the file holds one target per line with
// #-comments and blank lines ignored. First occurrence wins, so output
// order follows input order.
func LoadTargets(args []string, inputsFile string) ([]string, error) {
	var raw []string
	for _, arg := range args {
		raw = append(raw, splitTargets(arg)...)
	}

	if inputsFile != "" {
		fromFile, err := readTargetsFile(inputsFile)
		if err != nil {
			return nil, err
		}
		raw = append(raw, fromFile...)
	}

	seen := make(map[string]struct{}, len(raw))
	targets := make([]string, 0, len(raw))
	for _, t := range raw {
		t = strings.TrimPrefix(t, "@")
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		targets = append(targets, t)
	}

	if len(targets) == 0 {
		return nil, fmt.Errorf("no targets given (pass arguments or --inputs)")
	}
	return targets, nil
}

func splitTargets(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
}

func readTargetsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open inputs file: %w", err)
	}
	defer f.Close()

	var targets []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// Allow trailing comments after the target.
		if i := strings.Index(line, "#"); i > 0 {
			line = strings.TrimSpace(line[:i])
		}
		targets = append(targets, splitTargets(line)...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read inputs file: %w", err)
	}
	return targets, nil
}
