package terminal

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// maxMatches caps how many files FindMatchingFiles returns
const maxMatches = 100

// Reader reads lines of user input
type Reader struct {
	r *bufio.Reader
}

// NewReader creates a line reader over r
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// ReadLine reads a line of input from the user. A final line without a
// newline is returned before io.EOF.
func (r *Reader) ReadLine() (string, error) {
	input, err := r.r.ReadString('\n')
	if err != nil && (err != io.EOF || input == "") {
		return "", err
	}

	// Trim whitespace and newline
	return strings.TrimSpace(input), nil
}

// ParseCommand splits a /command line into its name and arguments. It
// reports false for anything that is not a command. Arguments may be
// double-quoted to include spaces.
func ParseCommand(line string) (string, []string, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return "", nil, false
	}
	fields := splitArgs(line)
	return strings.ToLower(fields[0]), fields[1:], true
}

func splitArgs(s string) []string {
	var args []string
	var cur strings.Builder
	inQuote, have := false, false
	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
			have = true
		case (r == ' ' || r == '\t') && !inQuote:
			if have {
				args = append(args, cur.String())
				cur.Reset()
				have = false
			}
		default:
			cur.WriteRune(r)
			have = true
		}
	}
	if have {
		args = append(args, cur.String())
	}
	return args
}

// ExpandPaths resolves shell-style globs and ~ in args. Arguments that
// match nothing are returned as-is so the caller can report them.
func ExpandPaths(args []string, home string) []string {
	var paths []string
	for _, arg := range args {
		if strings.HasPrefix(arg, "~") && home != "" {
			arg = home + arg[1:]
		}
		if !strings.ContainsAny(arg, "*?[") {
			paths = append(paths, arg)
			continue
		}
		matches, err := filepath.Glob(arg)
		if err != nil || len(matches) == 0 {
			paths = append(paths, arg)
			continue
		}
		sort.Strings(matches)
		paths = append(paths, matches...)
	}
	return paths
}

// FindMatchingFiles lists files below workingDir whose relative path
// contains partial and that accept admits. Hidden entries are skipped and
// the walk stops a few levels deep.
func FindMatchingFiles(workingDir string, partial string, accept func(name string) bool) []string {
	matches := []string{}

	// Determine search directory and pattern
	searchDir := workingDir
	pattern := strings.ToLower(partial)

	if strings.Contains(partial, "/") {
		// If partial contains /, split into dir and pattern
		dir, file := filepath.Split(partial)
		searchDir = filepath.Join(workingDir, dir)
		pattern = strings.ToLower(file)
	}

	filepath.Walk(searchDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}

		// Get relative path from working directory
		relPath, err := filepath.Rel(workingDir, path)
		if err != nil || relPath == "." {
			return nil
		}

		// Skip hidden files and directories
		if strings.HasPrefix(info.Name(), ".") {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if info.IsDir() {
			// Limit depth to avoid scanning too deep
			if strings.Count(relPath, string(filepath.Separator)) >= 4 {
				return filepath.SkipDir
			}
			return nil
		}

		if accept != nil && !accept(info.Name()) {
			return nil
		}
		if pattern == "" || strings.Contains(strings.ToLower(relPath), pattern) {
			matches = append(matches, relPath)
			if len(matches) >= maxMatches {
				return filepath.SkipAll
			}
		}
		return nil
	})

	return matches
}
