package service

import (
	"fmt"

	"pawhaven/internal/domain"
)

func reservationPaidNotice(breederID, applicationID, listingTitle string, amount int64, currency string) notice {
	return notice{
		userID: breederID,
		kind:   domain.NotifReservationPaid,
		title:  "Reservation fee paid",
		body:   fmt.Sprintf("The reservation fee for %s has been paid.", titleOr(listingTitle)),
		data:   map[string]interface{}{"application_id": applicationID, "amount": amount, "currency": currency},
	}
}

func finalPaymentNotice(breederID, applicationID, listingTitle string, amount int64, currency string) notice {
	return notice{
		userID: breederID,
		kind:   domain.NotifFinalPaymentDone,
		title:  "Final payment completed",
		body:   fmt.Sprintf("The final payment for %s is complete.", titleOr(listingTitle)),
		data:   map[string]interface{}{"application_id": applicationID, "amount": amount, "currency": currency},
	}
}

func expiredSeekerNotice(seekerID, applicationID, listingTitle string) notice {
	return notice{
		userID: seekerID,
		kind:   domain.NotifApplicationExpired,
		title:  "Application expired",
		body:   fmt.Sprintf("Your application for %s expired because the reservation fee was not paid within 24 hours.", titleOr(listingTitle)),
		data:   map[string]interface{}{"application_id": applicationID},
	}
}

func expiredBreederNotice(breederID, applicationID, listingID, listingTitle string, released bool) notice {
	body := fmt.Sprintf("An application for %s expired unpaid.", titleOr(listingTitle))
	if released {
		body += " The listing is available again."
	}
	return notice{
		userID: breederID,
		kind:   domain.NotifApplicationExpired,
		title:  "Application expired",
		body:   body,
		data:   map[string]interface{}{"application_id": applicationID, "listing_id": listingID, "listing_released": released},
	}
}

func lateSeekerNotice(seekerID, applicationID, reference string) notice {
	return notice{
		userID: seekerID,
		kind:   domain.NotifPaymentAfterExpiry,
		title:  "Payment received after expiry",
		body:   "We received your payment after the application expired. Our team will contact you about a refund.",
		data:   map[string]interface{}{"application_id": applicationID, "reference": reference},
	}
}

func lateBreederNotice(breederID, applicationID, reference string) notice {
	return notice{
		userID: breederID,
		kind:   domain.NotifPaymentAfterExpiry,
		title:  "Late payment on expired application",
		body:   "A payment arrived for an application that had already expired.",
		data:   map[string]interface{}{"application_id": applicationID, "reference": reference},
	}
}

func duplicatePaymentNotice(seekerID, applicationID, reference string) notice {
	return notice{
		userID: seekerID,
		kind:   domain.NotifDuplicatePayment,
		title:  "Duplicate payment",
		body:   "This payment was already made. The duplicate charge will be refunded.",
		data:   map[string]interface{}{"application_id": applicationID, "reference": reference},
	}
}

func titleOr(title string) string {
	if title == "" {
		return "your listing"
	}
	return title
}
