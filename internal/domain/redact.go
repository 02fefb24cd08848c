// Copyright (c) 2026, the sweeparr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

const redactedPlaceholder = "********"

// RedactString replaces a non-empty secret with a fixed placeholder for API output.
func RedactString(s string) string {
	if s == "" {
		return ""
	}
	return redactedPlaceholder
}

// IsRedactedString reports whether a value is the redaction placeholder,
// meaning the client sent back an unchanged secret field.
func IsRedactedString(s string) bool {
	return s == redactedPlaceholder
}
