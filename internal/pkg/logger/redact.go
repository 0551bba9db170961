package logger

import "strings"

// RedactEmail masks an email address for safe logging.
// "jane.doe@example.com" -> "ja***@example.com"; local parts of two
// characters or fewer are fully masked.
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	name := parts[0]
	if len(name) > 2 {
		return name[:2] + "***@" + parts[1]
	}
	return "***@" + parts[1]
}

// RedactName reduces a donor name to initials: "Jane Doe" -> "J. D.".
func RedactName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	initials := make([]string, 0, len(fields))
	for _, f := range fields {
		r := []rune(f)
		initials = append(initials, string(r[0])+".")
	}
	return strings.Join(initials, " ")
}
