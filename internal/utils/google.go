package utils

import (
	"fmt"
	"io"
	"net/http"
)

const oauthGoogleUrlAPI = "https://www.googleapis.com/oauth2/v2/userinfo?access_token="

// GetUserDataFromGoogle exchanges an interactive sign-in access token for the
// provider's user record. A bad or expired token surfaces here as a non-2xx.
func GetUserDataFromGoogle(accessToken string) ([]byte, error) {
	response, err := http.Get(oauthGoogleUrlAPI + accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed getting user info: %s", err.Error())
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google userinfo returned status %d", response.StatusCode)
	}

	contents, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed read response: %s", err.Error())
	}

	return contents, nil
}
