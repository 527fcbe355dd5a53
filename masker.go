package authcore

import "strings"

// MaskEmail hides the local part of an address except its first character,
// keeping the domain visible: "bob@example.com" becomes "b******@example.com".
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return email
	}

	local := email[:at]
	masked := local[:1] + strings.Repeat("*", len(local)-1)
	return masked + email[at:]
}

// MaskPhone hides all but the last four digits: "07700900321" becomes
// "*******0321".
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
