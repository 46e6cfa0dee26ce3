package model

// RequestOTPRequest asks for a one-time login code to be delivered to the
// identity's registered email.
type RequestOTPRequest struct {
	Email string `json:"email" binding:"required,email"`
	Role  Role   `json:"role" binding:"required,oneof=patient provider admin"`
}

type VerifyOTPRequest struct {
	Email string `json:"email" binding:"required,email"`
	Role  Role   `json:"role" binding:"required,oneof=patient provider admin"`
	Code  string `json:"code" binding:"required,len=6,numeric"`
}

type TokenResponse struct {
	Token string `json:"token"`
	Role  Role   `json:"role"`
}
