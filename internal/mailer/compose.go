package mailer

import "fmt"

// ComposeETARequest builds the standard ETA request email for a load. The
// subject carries the PO number so the inbound parser can route the reply;
// urgencyNote is appended when the requesting tier wants to convey time
// pressure.
func ComposeETARequest(poNumber, siteCode, urgencyNote string) (subject, body string) {
	subject = fmt.Sprintf("ETA Request - %s", poNumber)
	body = fmt.Sprintf(
		"Hello,\n\nCould you provide an updated ETA for load %s to site %s?\n",
		poNumber, siteCode)
	if urgencyNote != "" {
		body += "\n" + urgencyNote + "\n"
	}
	body += "\nPlease reply to this email with the expected arrival time.\n\nThank you,\nFuel Dispatch"
	return subject, body
}
