package auth

// TokenPayload is the password grant a wallabag client sends. Client id and
// secret are accepted and ignored.
type TokenPayload struct {
	GrantType    string `json:"grant_type" form:"grant_type"`
	ClientID     string `json:"client_id" form:"client_id"`
	ClientSecret string `json:"client_secret" form:"client_secret"`
	Username     string `json:"username" form:"username" mod:"trim" validate:"required"`
	Password     string `json:"password" form:"password" validate:"required"`
}

type TokenResponse struct {
	AccessToken string  `json:"access_token"`
	ExpiresIn   int     `json:"expires_in"`
	Scope       *string `json:"scope"`
}
