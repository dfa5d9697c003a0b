package platformapi

// Credential is the token pair issued by login, verification, and refresh.
// Both parts are opaque bearer strings; the client never parses them for
// trust decisions.
type Credential struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// User is the wire shape of the authenticated principal as returned by the
// platform.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role,omitempty"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// LoginResult is the outcome of a login or second-factor verification call.
// When RequiresSecondFactor is set, Credential and User are absent and the
// TransactionID must be passed to VerifySecondFactor.
type LoginResult struct {
	RequiresSecondFactor bool       `json:"requiresSecondFactor,omitempty"`
	TransactionID        string     `json:"transactionId,omitempty"`
	Credential           Credential `json:"-"`
	User                 *User      `json:"user,omitempty"`
}

// loginResponse is the raw wire payload shared by login and verification.
type loginResponse struct {
	RequiresSecondFactor bool   `json:"requiresSecondFactor,omitempty"`
	TransactionID        string `json:"transactionId,omitempty"`
	AccessToken          string `json:"accessToken,omitempty"`
	RefreshToken         string `json:"refreshToken,omitempty"`
	User                 *User  `json:"user,omitempty"`
}

// meResponse wraps the authoritative-profile payload.
type meResponse struct {
	User User `json:"user"`
}
