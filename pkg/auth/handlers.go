package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/antibyte/picobasic/pkg/configuration"
	"github.com/antibyte/picobasic/pkg/logger"

	"golang.org/x/crypto/bcrypt"
)

// ErrBadPassword is returned when the console password does not match.
var ErrBadPassword = errors.New("wrong password")

// LoginRequest is the body of a login request.
type LoginRequest struct {
	Password string `json:"password"`
}

// LoginResponse is the body of every auth response.
type LoginResponse struct {
	Success   bool   `json:"success"`
	Token     string `json:"token,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message"`
}

// CheckPassword compares password with the configured bcrypt hash.
func CheckPassword(password string) error {
	hash := configuration.GetString("JWT", "password_hash", "")
	if hash == "" {
		return nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrBadPassword
	}
	return nil
}

// HashPassword returns the bcrypt hash to put into [JWT] password_hash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func setJSONHeaders(w http.ResponseWriter, methods string) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", methods)
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Content-Type", "application/json")
}

func setTokenCookie(w http.ResponseWriter, token string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// HandleLogin verifies the console password and issues a session token.
func HandleLogin(w http.ResponseWriter, r *http.Request) {
	setJSONHeaders(w, "POST, OPTIONS")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		logger.AuthWarn("Invalid method for login: %s", r.Method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var loginReq LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&loginReq); err != nil {
		logger.AuthWarn("Invalid JSON in login request: %v", err)
		respondWithError(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	if err := CheckPassword(loginReq.Password); err != nil {
		logger.AuthWarn("Failed login from %s", getClientIP(r))
		respondWithError(w, "Invalid password", http.StatusUnauthorized)
		return
	}

	sessionID := NewSessionID()
	token, err := GenerateSessionToken(sessionID)
	if err != nil {
		logger.Error(logger.AreaAuth, "Failed to generate token for session %s: %v", sessionID, err)
		respondWithError(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}
	setTokenCookie(w, token, int(getTokenExpiration().Seconds()))

	logger.AuthInfo("Login from %s, session %s", getClientIP(r), sessionID)
	json.NewEncoder(w).Encode(LoginResponse{
		Success:   true,
		Token:     token,
		SessionID: sessionID,
		Message:   "Login successful",
	})
}

// HandleTokenValidation reports whether the request carries a valid token.
func HandleTokenValidation(w http.ResponseWriter, r *http.Request) {
	setJSONHeaders(w, "GET, POST, OPTIONS")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	tokenString, err := ExtractTokenFromRequest(r)
	if err != nil {
		respondWithError(w, "Token not found", http.StatusUnauthorized)
		return
	}
	claims, err := ValidateSessionToken(tokenString)
	if err != nil {
		logger.AuthWarn("Token validation failed: %v", err)
		respondWithError(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	json.NewEncoder(w).Encode(LoginResponse{
		Success:   true,
		SessionID: claims.SessionID,
		Message:   "Token valid",
	})
}

// HandleLogout clears the token cookie.
func HandleLogout(w http.ResponseWriter, r *http.Request) {
	setJSONHeaders(w, "POST, OPTIONS")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	setTokenCookie(w, "", -1)
	logger.AuthInfo("Logout from %s", getClientIP(r))
	json.NewEncoder(w).Encode(LoginResponse{
		Success: true,
		Message: "Logout successful",
	})
}

// getClientIP extracts the client IP address from the request
func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}

func respondWithError(w http.ResponseWriter, message string, statusCode int) {
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(LoginResponse{
		Success: false,
		Message: message,
	})
}
