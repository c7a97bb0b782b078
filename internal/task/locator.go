package task

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// allowedSchemes defines the repository URL protocols that are permitted.
var allowedSchemes = map[string]bool{
	"https": true,
	"http":  true,
	"git":   true,
	"ssh":   true,
}

var (
	// shorthandPattern matches GitHub "owner/repo" shorthand
	shorthandPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*/[A-Za-z0-9._-]+$`)

	// scpPattern matches scp-like git locations such as git@github.com:owner/repo.git
	scpPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+@[A-Za-z0-9.-]+:[A-Za-z0-9._/-]+$`)
)

// NormalizeLocator validates a repository locator and returns its canonical form.
// GitHub shorthand ("owner/repo") expands to an https URL; trailing slashes and
// whitespace are removed.
func NormalizeLocator(raw string) (string, error) {
	locator := strings.TrimSpace(raw)
	if locator == "" {
		return "", fmt.Errorf("%w: repository locator is empty", ErrInvalidInput)
	}
	if strings.ContainsAny(locator, " \t\r\n;|&$`\\\"'<>") {
		return "", fmt.Errorf("%w: repository locator %q contains invalid characters", ErrInvalidInput, raw)
	}
	if strings.HasPrefix(locator, "-") {
		return "", fmt.Errorf("%w: repository locator %q may not start with '-'", ErrInvalidInput, raw)
	}

	if shorthandPattern.MatchString(locator) && !strings.Contains(locator, "..") {
		return "https://github.com/" + strings.TrimSuffix(locator, ".git"), nil
	}

	if scpPattern.MatchString(locator) {
		if strings.Contains(locator, "..") {
			return "", fmt.Errorf("%w: repository locator %q contains a path traversal", ErrInvalidInput, raw)
		}
		return locator, nil
	}

	parsed, err := url.Parse(locator)
	if err != nil {
		return "", fmt.Errorf("%w: invalid repository URL %q", ErrInvalidInput, raw)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !allowedSchemes[scheme] {
		return "", fmt.Errorf("%w: protocol %q not allowed; must be https, http, git, or ssh", ErrInvalidInput, parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("%w: repository URL %q has no host", ErrInvalidInput, raw)
	}

	path := strings.Trim(parsed.Path, "/")
	if path == "" || strings.Contains(path, "..") {
		return "", fmt.Errorf("%w: repository URL %q has no repository path", ErrInvalidInput, raw)
	}

	// Credentials never get persisted with the task
	if scheme == "https" || scheme == "http" {
		parsed.User = nil
	}
	parsed.Scheme = scheme
	parsed.Path = "/" + path
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return parsed.String(), nil
}

// RepositoryName derives the "owner/repo" display name of a normalized locator.
func RepositoryName(locator string) string {
	path := locator
	if scpPattern.MatchString(locator) {
		path = locator[strings.Index(locator, ":")+1:]
	} else if parsed, err := url.Parse(locator); err == nil && parsed.Host != "" {
		path = parsed.Path
	}

	path = strings.TrimSuffix(strings.Trim(path, "/"), ".git")
	parts := strings.Split(path, "/")

	switch {
	case len(parts) >= 2:
		return parts[len(parts)-2] + "/" + parts[len(parts)-1]
	case len(parts) == 1 && parts[0] != "":
		return parts[0]
	default:
		return "repository"
	}
}
