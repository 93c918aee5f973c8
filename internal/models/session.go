package models

// Status is the authentication state of a Session.
type Status string

const (
	StatusAnonymous      Status = "anonymous"
	StatusAuthenticating Status = "authenticating"
	StatusAuthenticated  Status = "authenticated"
	StatusRefreshing     Status = "refreshing"
	StatusErrored        Status = "errored"
)

// Session represents the client's view of the signed in user.
// Tokens are opaque to the client; only the server interprets them.
type Session struct {
	User         *User
	AccessToken  string
	RefreshToken string
	Status       Status

	// Error holds the message of the last failed session operation, if any.
	Error string
}

// IsAuthenticated returns true if the session holds a user and an access token.
func (s Session) IsAuthenticated() bool {
	return s.User != nil && s.AccessToken != ""
}

// IsEmpty returns true if no user or tokens are held.
func (s Session) IsEmpty() bool {
	return s.User == nil && s.AccessToken == "" && s.RefreshToken == ""
}

// Credentials are the email and password used to log in.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterInput is the payload used to create a new account.
type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone,omitempty"`
}

// TokenPair is returned by the refresh endpoint.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// AuthResponse is returned by the login and register endpoints.
type AuthResponse struct {
	User         *User  `json:"user"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
