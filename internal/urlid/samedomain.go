package urlid

// trustedDomainGroups treats disparate properties of one company as
// mutually "same-domain" for scanning-skip purposes. This is a usability
// heuristic allow-list, not a security boundary, and must never be used as
// an authorization check.
var trustedDomainGroups = [][]string{
	{
		"google.com", "google.co.uk", "google.ca", "google.com.au", "google.de", "google.fr",
		"accounts.google.com", "myaccount.google.com", "docs.google.com", "drive.google.com",
		"mail.google.com", "gmail.com", "youtube.com", "googlesource.com", "gstatic.com",
		"googleusercontent.com", "googleapis.com", "googleadservices.com", "googlesyndication.com",
	},
	{"microsoft.com", "live.com", "outlook.com", "office.com", "xbox.com", "msn.com", "bing.com"},
	{"facebook.com", "instagram.com", "whatsapp.com", "fb.com"},
	{"amazon.com", "aws.amazon.com", "amazonaws.com", "amazon.co.uk", "amazon.ca"},
}

// SameDomain reports whether two URLs share a normalized hostname, or both
// belong to the same trusted service group.
func SameDomain(urlA, urlB string) bool {
	a := ExtractDomain(urlA)
	b := ExtractDomain(urlB)
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	for _, group := range trustedDomainGroups {
		if inGroup(a, group) && inGroup(b, group) {
			return true
		}
	}
	return false
}

func inGroup(domain string, group []string) bool {
	for _, trusted := range group {
		if domain == trusted || hasDomainSuffix(domain, trusted) {
			return true
		}
	}
	return false
}

func hasDomainSuffix(domain, trusted string) bool {
	return len(domain) > len(trusted)+1 &&
		domain[len(domain)-len(trusted)-1] == '.' &&
		domain[len(domain)-len(trusted):] == trusted
}
