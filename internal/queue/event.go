// Package queue defines message payloads exchanged over the message broker.
package queue

// OTPDispatchEvent is published when an OTP has passed the send
// throttle and must be delivered to the user. The mail worker
// consumes it; the API never talks to the mail provider directly, so
// a slow or down provider cannot stall request handling.
type OTPDispatchEvent struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	Purpose     string `json:"purpose"` // verify_email, reset_password
	RequestedAt string `json:"requested_at"`
}
