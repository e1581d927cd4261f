package bot

import (
	"fmt"
	"strconv"
	"strings"
)

const welcomeMessage = `🏨 Welcome to Hotel Booking Bot!

I can help you find and book hotels in Kenya.

Please choose an option:
1. 📍 Browse hotels by location
2. 🔍 Search hotels by name
3. 💬 Speak to customer service

Reply with the number of your choice.`

const locationMenuMessage = `📍 Select a location:

1. Nairobi
2. Mombasa
3. Kisumu
4. Nakuru
5. Eldoret

Reply with the number or type your preferred location.`

const (
	searchPromptMessage    = "🔍 Please type the hotel name you're looking for:"
	handoffMessage         = "💬 Connecting you to customer service... Please wait."
	menuRetryMessage       = "Please reply with 1, 2, or 3 to continue."
	invalidStepMessage     = "Invalid step in hotel selection. Please start over."
	invalidHotelMessage    = "Please select a valid hotel number from the list."
	badDateRangeMessage    = "Check-out date must be after check-in date. Please provide valid dates."
	badDetailsMessage      = "I could not understand the booking details. Please provide them in the *exact format* shown above."
	confirmOrCancelMessage = "Please confirm your booking or cancel."
	paymentRetryMessage    = "Please reply *CONFIRM* to proceed with payment or *CANCEL* to cancel booking."
	cancelledMessage       = "Booking cancelled. Feel free to start a new search anytime!"
	catalogErrorMessage    = "Sorry, something went wrong while looking up hotels. Please try again in a moment."
	paymentIssueMessage    = "There was an issue confirming your payment. Please contact support with your Booking ID."
	paymentPendingMessage  = "Your payment is already being processed. Please wait for the M-Pesa prompt or reply *CANCEL* to cancel booking."
	paymentFailedMessage   = "❌ Payment was not completed. Please reply *CONFIRM* to try again or *CANCEL* to cancel booking."
	paymentInitFailMessage = "M-Pesa payment initiation failed. Please try again or contact support."
)

// formatAmount renders a price without a forced decimal tail, matching
// how whole-shilling amounts read in chat (12000, not 12000.00).
func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func hotelListMessage(step, query string, hotels []Hotel) string {
	var b strings.Builder
	if step == stepLocation {
		fmt.Fprintf(&b, "🏨 Hotels in %s:\n\n", capitalize(query))
	} else {
		fmt.Fprintf(&b, "🏨 Hotels matching %q:\n\n", query)
	}

	for i, h := range hotels {
		fmt.Fprintf(&b, "%d. %s\n", i+1, h.Name)
		fmt.Fprintf(&b, "   📍 %s\n", h.Location)
		fmt.Fprintf(&b, "   💰 KSh %s/night\n", formatAmount(h.PricePerNight))
		amenities := "Standard amenities"
		if len(h.Amenities) > 0 {
			amenities = strings.Join(h.Amenities, ", ")
		}
		fmt.Fprintf(&b, "   ⭐ %s\n\n", amenities)
	}

	b.WriteString("Reply with the hotel number to continue booking.")
	return b.String()
}

func noHotelsMessage(step, query string) string {
	if step == stepLocation {
		return fmt.Sprintf("Sorry, no hotels found in %s. Please try another %s or contact customer service.", query, step)
	}
	return fmt.Sprintf("Sorry, no hotels found matching %q. Please try another %s or contact customer service.", query, step)
}

func dateRequestMessage(h *Hotel) string {
	return fmt.Sprintf(`🏨 You selected: *%s*
💰 Price: KSh %s/night

Please provide your booking details in this format:
Check-in date: DD/MM/YYYY
Check-out date: DD/MM/YYYY
Number of guests: X

Example:
Check-in date: 15/08/2024
Check-out date: 17/08/2024
Number of guests: 2`, h.Name, formatAmount(h.PricePerNight))
}

func bookingSummaryMessage(h *Hotel, d BookingDetails, nights int, total float64) string {
	return fmt.Sprintf(`📋 Booking Summary:

🏨 Hotel: *%s*
📅 Check-in: %s
📅 Check-out: %s
👥 Guests: %d
🌙 Nights: %d
💰 Total: KSh %s

Reply 'CONFIRM' to proceed to payment or 'CANCEL' to start over.`,
		h.Name, d.CheckIn, d.CheckOut, d.Guests, nights, formatAmount(total))
}

func paymentRequestMessage(phone string, total float64, bookingID int64) string {
	return fmt.Sprintf(`💳 Payment Required:

Amount: KSh %s
Booking ID: %d

You will receive an M-Pesa STK push shortly. Please enter your M-Pesa PIN to complete the payment.

The payment request is being sent to %s...`, formatAmount(total), bookingID, phone)
}

func paymentSuccessMessage(bookingID int64, txRef string) string {
	return fmt.Sprintf(`✅ Payment successful!

Your booking is confirmed.
Booking ID: %d
Transaction ID: %s

You will receive a confirmation email shortly. Thank you for choosing our service! 🏨`, bookingID, txRef)
}
