package manifest

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"

	bkerrors "bakekit/internal/errors"
)

// Entry is a single dependency declared in the manifest: a package name and
// an optional version constraint (e.g. "==2.0", ">=1.4").
type Entry struct {
	Name       string
	Constraint string
}

// String returns the entry in manifest notation.
func (e Entry) String() string {
	return e.Name + e.Constraint
}

// nameRegex matches valid package names.
var nameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// constraint operators, longest first so "==" wins over "=".
var operators = []string{"==", ">=", "<=", "~=", "!=", ">", "<"}

// Read loads the dependency manifest at path and returns its entries in file
// order. Blank lines and '#' comments are ignored. It has no side effects
// beyond reading the file.
func Read(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", bkerrors.ErrManifestNotFound, path)
		}
		return nil, fmt.Errorf("failed to open manifest %s: %w", path, err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		entry, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", bkerrors.ErrManifestParse, lineNo, err)
		}
		entries = append(entries, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	return entries, nil
}

// parseLine splits a manifest line into a package name and version constraint.
func parseLine(line string) (Entry, error) {
	name := line
	constraint := ""

	for _, op := range operators {
		if idx := strings.Index(line, op); idx >= 0 {
			name = strings.TrimSpace(line[:idx])
			constraint = op + strings.TrimSpace(line[idx+len(op):])
			if strings.TrimSpace(line[idx+len(op):]) == "" {
				return Entry{}, fmt.Errorf("missing version after %q in %q", op, line)
			}
			break
		}
	}

	if !nameRegex.MatchString(name) {
		return Entry{}, fmt.Errorf("invalid package name %q", name)
	}

	return Entry{Name: name, Constraint: constraint}, nil
}

// Names returns the package names of all entries, in manifest order.
func Names(entries []Entry) []string {
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	return names
}
