package models

import "strings"

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse mirrors the remote /login body. SessionData and AccessToken
// are only present when Auth is true.
type LoginResponse struct {
	Auth        bool   `json:"auth"`
	SessionData string `json:"session_data,omitempty"`
	AccessToken string `json:"accessToken,omitempty"`
	Error       string `json:"error,omitempty"`
}

type DeviceFingerprint struct {
	DeviceID    string `json:"device_id"`
	AccessToken string `json:"accessToken"`
	IPAddress   string `json:"ipAddress"`
	Fingerprint string `json:"fingerprint"`
}

type Profile struct {
	Email             string              `json:"email"`
	FullName          string              `json:"full_name"`
	Phone             string              `json:"phone"`
	UserRole          string              `json:"userRole"`
	RewardPoint       int                 `json:"rewardPoint"`
	DeviceFingerprint []DeviceFingerprint `json:"deviceFingerprint"`
	CreationTime      string              `json:"creationTime"`
	SchoolID          *string             `json:"schoolId"`
}

// DisplayName returns "FirstName L." format (first name + last initial).
func (p Profile) DisplayName() string {
	parts := splitName(p.FullName)
	if len(parts) == 0 {
		return "Unknown User"
	}
	if len(parts) == 1 {
		return parts[0]
	}
	lastName := parts[len(parts)-1]
	return parts[0] + " " + string([]rune(lastName)[0]) + "."
}

func splitName(name string) []string {
	var parts []string
	for _, p := range strings.Split(strings.TrimSpace(name), " ") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

type ErrorResponse struct {
	Error string `json:"error"`
}
