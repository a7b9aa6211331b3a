package usecase

import (
	"regexp"

	"repair-agent/internal/domain"
)

// Best-effort contact extraction from free text. Nothing here is validated;
// the result only seeds agent context.
var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`0\d{1,4}[-−ー]?\d{1,4}[-−ー]?\d{3,4}`)

	// 株式会社ヤマダ / ヤマダ株式会社 and the common variants.
	companyPattern = regexp.MustCompile(`(?:株式会社|有限会社|合同会社)[^\s、。,.]{1,24}|[^\s、。,.]{1,24}(?:株式会社|有限会社|合同会社)`)
)

// ExtractContactHint pulls company, email and phone substrings out of text.
// Missing fields stay empty; it never fails.
func ExtractContactHint(text string) domain.ContactHint {
	return domain.ContactHint{
		Company: companyPattern.FindString(text),
		Email:   emailPattern.FindString(text),
		Phone:   phonePattern.FindString(text),
	}
}
