package middleware

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Input validation and sanitization utilities

// ValidateBranch checks git branch names for shell-hostile characters.
// Branch names end up in docker CLI invocations, so keep these strict.
func ValidateBranch(branch string) error {
	if branch == "" {
		return fmt.Errorf("branch cannot be empty")
	}

	pattern := `^[a-zA-Z0-9._/-]{1,255}$`
	matched, _ := regexp.MatchString(pattern, branch)
	if !matched {
		return fmt.Errorf("invalid branch name format")
	}

	if strings.HasPrefix(branch, "-") || strings.Contains(branch, "..") {
		return fmt.Errorf("invalid branch name format")
	}
	return nil
}

// ValidateCommitSHA validates a git commit hash (short or full form).
func ValidateCommitSHA(sha string) error {
	if sha == "" {
		return nil // Optional field
	}

	pattern := `^[a-f0-9]{7,64}$`
	matched, _ := regexp.MatchString(pattern, strings.ToLower(sha))
	if !matched {
		return fmt.Errorf("invalid commit sha format")
	}
	return nil
}

// ValidateImageName validates Docker image names
func ValidateImageName(image string) error {
	if image == "" {
		return nil // Optional field
	}

	// Docker image name pattern: [registry/]name[:tag][@digest]
	pattern := `^([a-z0-9]+([._-][a-z0-9]+)*(/[a-z0-9]+([._-][a-z0-9]+)*)*(:[a-zA-Z0-9._-]+)?(@sha256:[a-f0-9]{64})?)$`
	matched, _ := regexp.MatchString(pattern, strings.ToLower(image))
	if !matched {
		return fmt.Errorf("invalid Docker image name format")
	}

	// Block dangerous patterns
	dangerous := []string{"../", "..", "$(", "`", "&", "|", ";", "\n", "\r"}
	for _, d := range dangerous {
		if strings.Contains(image, d) {
			return fmt.Errorf("invalid characters in image name")
		}
	}

	return nil
}

// ValidatePath validates file paths (for security)
func ValidatePath(path string) error {
	if path == "" {
		return nil // Optional field
	}

	// Clean the path
	cleaned := filepath.Clean(path)

	// Block path traversal attempts
	if strings.Contains(cleaned, "..") {
		return fmt.Errorf("path traversal detected")
	}

	// Block absolute paths to sensitive directories
	blocked := []string{"/etc", "/proc", "/sys", "/dev", "/root", "/var", "/boot"}
	for _, b := range blocked {
		if strings.HasPrefix(cleaned, b) {
			return fmt.Errorf("access to %s is not allowed", b)
		}
	}

	// Block dangerous patterns
	dangerous := []string{"$(", "`", "&", "|", ";", "\n", "\r", "&&", "||"}
	for _, d := range dangerous {
		if strings.Contains(path, d) {
			return fmt.Errorf("invalid characters in path")
		}
	}

	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	// Remove null bytes
	input = strings.ReplaceAll(input, "\x00", "")

	// Remove control characters
	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
}

// ValidateTenantID validates tenant ID format
func ValidateTenantID(tenant string) error {
	if tenant == "" {
		return fmt.Errorf("tenant ID cannot be empty")
	}

	// Allow alphanumeric, dash, underscore (max 64 chars)
	pattern := `^[a-zA-Z0-9_-]{1,64}$`
	matched, _ := regexp.MatchString(pattern, tenant)
	if !matched {
		return fmt.Errorf("invalid tenant ID format (alphanumeric, dash, underscore only, max 64 chars)")
	}

	return nil
}

// ValidateRunID validates run ID format
func ValidateRunID(runID string) error {
	if runID == "" {
		return fmt.Errorf("run ID cannot be empty")
	}

	// UUID pattern with pipeline suffix: uuid-pipeline
	pattern := `^[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}-.+$`
	matched, _ := regexp.MatchString(pattern, runID)
	if !matched {
		return fmt.Errorf("invalid run ID format")
	}

	return nil
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20 // default
	}
	if limit > 100 {
		return 100 // max limit
	}
	return limit
}

// ValidateDays validates days parameter
func ValidateDays(days int) int {
	if days <= 0 {
		return 7 // default
	}
	if days > 365 {
		return 365 // max 1 year
	}
	return days
}
