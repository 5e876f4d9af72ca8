// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"bufio"
	"embed"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

//go:embed common_passwords.txt
var commonPasswordsFS embed.FS

var commonPasswords map[string]struct{}

func init() {
	commonPasswords = make(map[string]struct{})
	file, err := commonPasswordsFS.Open("common_passwords.txt")
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		password := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if password != "" && !strings.HasPrefix(password, "#") {
			commonPasswords[password] = struct{}{}
		}
	}
}

// DefaultPasswordMinLength is used when no minimum is configured.
const DefaultPasswordMinLength = 6

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

// similarityThreshold mirrors the ratio at which a password counts as a
// variation of a personal attribute.
const similarityThreshold = 0.7

// minAttributeLength keeps very short attributes (a one letter mailbox, say)
// from rejecting every password that happens to contain them.
const minAttributeLength = 3

// PasswordValidator enforces the password policy.
type PasswordValidator struct {
	MinLength            int
	CheckCommonPasswords bool
	CheckUserSimilarity  bool
}

// NewPasswordValidator returns the policy with the given minimum length.
func NewPasswordValidator(minLength int) *PasswordValidator {
	if minLength <= 0 {
		minLength = DefaultPasswordMinLength
	}
	return &PasswordValidator{
		MinLength:            minLength,
		CheckCommonPasswords: true,
		CheckUserSimilarity:  true,
	}
}

// Validate returns the list of policy violations, empty if the password is
// acceptable. userAttributes are personal values the password must not resemble.
func (v *PasswordValidator) Validate(password string, userAttributes ...string) []string {
	// Oversized input gets no further checks, the similarity check is quadratic.
	if len(password) > MaxPasswordBytes {
		return []string{fmt.Sprintf(
			"This password is too long. It must contain at most %d bytes.", MaxPasswordBytes)}
	}

	var problems []string

	if utf8.RuneCountInString(password) < v.MinLength {
		problems = append(problems, fmt.Sprintf(
			"This password is too short. It must contain at least %d characters.", v.MinLength))
	}

	if v.CheckUserSimilarity && isSimilarToUserAttributes(password, userAttributes) {
		problems = append(problems, "The password is too similar to your personal information.")
	}

	if v.CheckCommonPasswords && isCommonPassword(password) {
		problems = append(problems, "This password is too common.")
	}

	if isEntirelyNumeric(password) {
		problems = append(problems, "This password is entirely numeric.")
	}

	return problems
}

// HelpTexts describes the policy to clients.
func (v *PasswordValidator) HelpTexts() []string {
	texts := []string{
		fmt.Sprintf("At least %d characters", v.MinLength),
		fmt.Sprintf("At most %d bytes", MaxPasswordBytes),
	}
	if v.CheckUserSimilarity {
		texts = append(texts, "Not too similar to your personal information")
	}
	if v.CheckCommonPasswords {
		texts = append(texts, "Not a commonly used password")
	}
	return append(texts, "Cannot be entirely numeric")
}

func isEntirelyNumeric(password string) bool {
	for _, r := range password {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(password) > 0
}

func isCommonPassword(password string) bool {
	_, exists := commonPasswords[strings.ToLower(password)]
	return exists
}

// personalAttributes expands an email into the full address and its local
// part, next to the other values.
func personalAttributes(email string, others ...string) []string {
	attrs := []string{email}
	if local, _, ok := strings.Cut(email, "@"); ok {
		attrs = append(attrs, local)
	}
	return append(attrs, others...)
}

func isSimilarToUserAttributes(password string, attributes []string) bool {
	passwordLower := strings.ToLower(password)
	if passwordLower == "" {
		return false
	}

	for _, attr := range attributes {
		attrLower := strings.ToLower(strings.TrimSpace(attr))
		if len(attrLower) < minAttributeLength {
			continue
		}

		if strings.Contains(passwordLower, attrLower) || strings.Contains(attrLower, passwordLower) {
			return true
		}

		if similarity(passwordLower, attrLower) >= similarityThreshold {
			return true
		}
	}

	return false
}

func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	lcs := longestCommonSubsequence(a, b)
	maxLen := max(len(a), len(b))

	return float64(lcs) / float64(maxLen)
}

func longestCommonSubsequence(a, b string) int {
	m, n := len(a), len(b)
	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
	}

	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			if a[i-1] == b[j-1] {
				dp[i][j] = dp[i-1][j-1] + 1
			} else {
				dp[i][j] = max(dp[i-1][j], dp[i][j-1])
			}
		}
	}

	return dp[m][n]
}
