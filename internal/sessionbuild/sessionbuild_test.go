package sessionbuild

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outpostctl/outpost/internal/gamesession"
	"github.com/outpostctl/outpost/internal/loginmachine"
)

func TestFromLoginResultImportsCookiesAndTokens(t *testing.T) {
	result := &loginmachine.LoginResult{
		URLBase:         "https://s1-en.example-game.com/index.php",
		GameHost:        "s1-en.example-game.com",
		InitialPageHTML: `{"actionRequest":"123456","currentCityId":"987"}`,
		Cookies: []*http.Cookie{
			{Name: "ikariam", Value: "abc", Domain: "s1-en.example-game.com"},
		},
	}

	session, err := FromLoginResult(context.Background(), gamesession.Config{}, result)
	require.NoError(t, err)

	snap := session.Tokens().Export()
	assert.Equal(t, "123456", snap.CSRF)
	assert.Equal(t, "987", snap.CityID)
}
