package mailer

import "fmt"

// AccountSetup builds the invitation mail sent when a registration is
// approved. The link carries the one-time setup token.
func AccountSetup(to, contactName, clinicName, portalBaseURL, setupToken string) Message {
	return Message{
		To:      to,
		Subject: "Your Lumera Dental account is ready",
		Body: fmt.Sprintf(
			"Hello %s,\n\n"+
				"Your registration for %s has been approved.\n"+
				"Set your password to activate your account:\n\n"+
				"%s/account/setup?token=%s\n\n"+
				"This link can only be used once.\n\n"+
				"Lumera Dental",
			contactName, clinicName, portalBaseURL, setupToken),
	}
}

// RegistrationRejected notifies the applicant their request was declined.
func RegistrationRejected(to, contactName string) Message {
	return Message{
		To:      to,
		Subject: "Lumera Dental registration update",
		Body: fmt.Sprintf(
			"Hello %s,\n\n"+
				"We were unable to approve your registration at this time.\n"+
				"Reply to this email if you believe this is a mistake.\n\n"+
				"Lumera Dental",
			contactName),
	}
}

// CaseShipped notifies the case owner that their case left the lab.
func CaseShipped(to, patientRef, trackingNumber string) Message {
	body := fmt.Sprintf("Case %s has shipped.", patientRef)
	if trackingNumber != "" {
		body += fmt.Sprintf("\nTracking number: %s", trackingNumber)
	}
	return Message{
		To:      to,
		Subject: fmt.Sprintf("Case %s shipped", patientRef),
		Body:    body + "\n\nLumera Dental",
	}
}
